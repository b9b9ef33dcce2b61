package clover

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

const notificationsTable = "notifications"

type NotificationType string

const (
	NotificationTypeInfo       NotificationType = "INFO"
	NotificationTypeWarning    NotificationType = "WARNING"
	NotificationTypeAssignment NotificationType = "ASSIGNMENT"
	NotificationTypeReminder   NotificationType = "REMINDER"
	NotificationTypeSystem     NotificationType = "SYSTEM"
)

type Notification struct {
	ID        uuid.UUID                      `db:"id" json:"id"`
	TenantID  uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	UserID    uuid.UUID                      `db:"user_id" json:"user_id"`
	Type      NotificationType               `db:"type" json:"type"`
	Title     string                         `db:"title" json:"title"`
	Message   string                         `db:"message" json:"message"`
	Read      bool                           `db:"read" json:"read"`
	Data      database.JSONB[map[string]any] `db:"data" json:"data"`
	CreatedAt time.Time                      `db:"created_at" json:"created_at"`

	Tenant *Tenant `db:"-" json:"tenant,omitempty"`
	User   *User   `db:"-" json:"user,omitempty"`
}

func (n Notification) Unique() NotificationWhereUnique {
	return NotificationWhereUnique{ID: n.ID}
}

var NotificationFields = struct {
	ID        Field[Notification, uuid.UUID]
	TenantID  Field[Notification, uuid.UUID]
	UserID    Field[Notification, uuid.UUID]
	Type      Field[Notification, NotificationType]
	Title     StringField[Notification]
	Message   StringField[Notification]
	Read      Field[Notification, bool]
	Data      JSONField[Notification]
	CreatedAt Field[Notification, time.Time]
}{
	ID:        newField[Notification, uuid.UUID]("id"),
	TenantID:  newField[Notification, uuid.UUID]("tenant_id"),
	UserID:    newField[Notification, uuid.UUID]("user_id"),
	Type:      newField[Notification, NotificationType]("type"),
	Title:     newStringField[Notification]("title"),
	Message:   newStringField[Notification]("message"),
	Read:      newField[Notification, bool]("read"),
	Data:      newJSONField[Notification]("data"),
	CreatedAt: newField[Notification, time.Time]("created_at"),
}

var NotificationRelations = struct {
	Tenant OneRelation[Notification, Tenant]
	User   OneRelation[Notification, User]
}{
	Tenant: oneRelation(tenantsTable, "tenant_id",
		func(n *Notification) any { return n.TenantID }, func(t *Tenant) any { return t.ID },
		func(n *Notification, t *Tenant) { n.Tenant = t }, func(db *DB) *Delegate[Tenant] { return db.Tenant }),
	User: oneRelation(usersTable, "user_id",
		func(n *Notification) any { return n.UserID }, func(u *User) any { return u.ID },
		func(n *Notification, u *User) { n.User = u }, func(db *DB) *Delegate[User] { return db.User }),
}

var notificationModel = &model[Notification]{
	name:         "Notification",
	table:        notificationsTable,
	columns:      []string{"id", "tenant_id", "user_id", "type", "title", "message", "read", "data", "created_at"},
	tenantColumn: "tenant_id",
	scope: func(tenantID uuid.UUID) Predicate[Notification] {
		return NotificationFields.TenantID.Equals(tenantID)
	},
}

type NotificationWhereUnique struct {
	ID  uuid.UUID
	And Predicate[Notification]
}

func (u NotificationWhereUnique) uniquePredicate() (Predicate[Notification], error) {
	if u.ID == uuid.Nil {
		return nil, missingUnique("Notification", "id")
	}
	return And(NotificationFields.ID.Equals(u.ID), u.And), nil
}

type NotificationCreateInput struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	UserID   uuid.UUID        `validate:"required"`
	Type     NotificationType `validate:"required,oneof=INFO WARNING ASSIGNMENT REMINDER SYSTEM"`
	Title    string           `validate:"required,max=255"`
	Message  string           `validate:"required"`
	Read     bool
	Data     map[string]any
}

func (in NotificationCreateInput) insertValues() assignments {
	var v assignments
	v.set("id", in.ID)
	v.set("tenant_id", in.TenantID)
	v.set("user_id", in.UserID)
	v.set("type", in.Type)
	v.set("title", in.Title)
	v.set("message", in.Message)
	v.set("read", in.Read)
	if in.Data != nil {
		v.set("data", database.NewJSONB(in.Data))
	}
	return v
}

type NotificationUpdateInput struct {
	Type    *NotificationType `validate:"omitempty,oneof=INFO WARNING ASSIGNMENT REMINDER SYSTEM"`
	Title   *string           `validate:"omitempty,max=255"`
	Message *string
	Read    *bool
	Data    *map[string]any
}

func (in NotificationUpdateInput) updateValues() assignments {
	var v assignments
	setPtr(&v, "type", in.Type)
	setPtr(&v, "title", in.Title)
	setPtr(&v, "message", in.Message)
	setPtr(&v, "read", in.Read)
	if in.Data != nil {
		v.set("data", database.NewJSONB(*in.Data))
	}
	return v
}
