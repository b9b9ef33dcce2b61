package clover

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

const tenantsTable = "tenants"

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusArchived  TenantStatus = "ARCHIVED"
)

type Tenant struct {
	ID        uuid.UUID                      `db:"id" json:"id"`
	Name      string                         `db:"name" json:"name"`
	Slug      string                         `db:"slug" json:"slug"`
	Status    TenantStatus                   `db:"status" json:"status"`
	Settings  database.JSONB[map[string]any] `db:"settings" json:"settings"`
	CreatedAt time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time                      `db:"updated_at" json:"updated_at"`

	Users         []User         `db:"-" json:"users,omitempty"`
	Clients       []Client       `db:"-" json:"clients,omitempty"`
	Interactions  []Interaction  `db:"-" json:"interactions,omitempty"`
	Segments      []Segment      `db:"-" json:"segments,omitempty"`
	Notifications []Notification `db:"-" json:"notifications,omitempty"`
	AuditLogs     []AuditLog     `db:"-" json:"audit_logs,omitempty"`
}

// Unique returns the unique input selecting t.
func (t Tenant) Unique() TenantWhereUnique {
	return TenantWhereUnique{ID: t.ID}
}

var TenantFields = struct {
	ID        Field[Tenant, uuid.UUID]
	Name      StringField[Tenant]
	Slug      StringField[Tenant]
	Status    Field[Tenant, TenantStatus]
	Settings  JSONField[Tenant]
	CreatedAt Field[Tenant, time.Time]
	UpdatedAt Field[Tenant, time.Time]
}{
	ID:        newField[Tenant, uuid.UUID]("id"),
	Name:      newStringField[Tenant]("name"),
	Slug:      newStringField[Tenant]("slug"),
	Status:    newField[Tenant, TenantStatus]("status"),
	Settings:  newJSONField[Tenant]("settings"),
	CreatedAt: newField[Tenant, time.Time]("created_at"),
	UpdatedAt: newField[Tenant, time.Time]("updated_at"),
}

var TenantRelations = struct {
	Users         ListRelation[Tenant, User]
	Clients       ListRelation[Tenant, Client]
	Interactions  ListRelation[Tenant, Interaction]
	Segments      ListRelation[Tenant, Segment]
	Notifications ListRelation[Tenant, Notification]
	AuditLogs     ListRelation[Tenant, AuditLog]
}{
	Users: listRelation(usersTable, "tenant_id",
		func(t *Tenant) any { return t.ID }, func(u *User) any { return u.TenantID },
		func(t *Tenant, rows []User) { t.Users = rows }, func(db *DB) *Delegate[User] { return db.User }),
	Clients: listRelation(clientsTable, "tenant_id",
		func(t *Tenant) any { return t.ID }, func(c *Client) any { return c.TenantID },
		func(t *Tenant, rows []Client) { t.Clients = rows }, func(db *DB) *Delegate[Client] { return db.Client }),
	Interactions: listRelation(interactionsTable, "tenant_id",
		func(t *Tenant) any { return t.ID }, func(i *Interaction) any { return i.TenantID },
		func(t *Tenant, rows []Interaction) { t.Interactions = rows }, func(db *DB) *Delegate[Interaction] { return db.Interaction }),
	Segments: listRelation(segmentsTable, "tenant_id",
		func(t *Tenant) any { return t.ID }, func(s *Segment) any { return s.TenantID },
		func(t *Tenant, rows []Segment) { t.Segments = rows }, func(db *DB) *Delegate[Segment] { return db.Segment }),
	Notifications: listRelation(notificationsTable, "tenant_id",
		func(t *Tenant) any { return t.ID }, func(n *Notification) any { return n.TenantID },
		func(t *Tenant, rows []Notification) { t.Notifications = rows }, func(db *DB) *Delegate[Notification] { return db.Notification }),
	AuditLogs: listRelation(auditLogsTable, "tenant_id",
		func(t *Tenant) any { return t.ID }, func(a *AuditLog) any { return a.TenantID },
		func(t *Tenant, rows []AuditLog) { t.AuditLogs = rows }, func(db *DB) *Delegate[AuditLog] { return db.AuditLog }),
}

var tenantModel = &model[Tenant]{
	name:         "Tenant",
	table:        tenantsTable,
	columns:      []string{"id", "name", "slug", "status", "settings", "created_at", "updated_at"},
	tenantColumn: "id",
	updatedAt:    true,
	scope: func(tenantID uuid.UUID) Predicate[Tenant] {
		return TenantFields.ID.Equals(tenantID)
	},
}

// TenantWhereUnique selects a tenant by ID or Slug.
type TenantWhereUnique struct {
	ID   uuid.UUID
	Slug string
	// And adds non-unique filters.
	And Predicate[Tenant]
}

func (u TenantWhereUnique) uniquePredicate() (Predicate[Tenant], error) {
	var preds []Predicate[Tenant]
	if u.ID != uuid.Nil {
		preds = append(preds, TenantFields.ID.Equals(u.ID))
	}
	if u.Slug != "" {
		preds = append(preds, TenantFields.Slug.Equals(u.Slug))
	}
	if len(preds) == 0 {
		return nil, missingUnique("Tenant", "id", "slug")
	}
	return And(append(preds, u.And)...), nil
}

type TenantCreateInput struct {
	ID       uuid.UUID
	Name     string       `validate:"required,max=255"`
	Slug     string       `validate:"required,max=100"`
	Status   TenantStatus `validate:"omitempty,oneof=ACTIVE SUSPENDED ARCHIVED"`
	Settings map[string]any
}

func (in TenantCreateInput) insertValues() assignments {
	var v assignments
	v.set("id", in.ID)
	v.set("name", in.Name)
	v.set("slug", in.Slug)
	if in.Status != "" {
		v.set("status", in.Status)
	}
	if in.Settings != nil {
		v.set("settings", database.NewJSONB(in.Settings))
	}
	return v
}

type TenantUpdateInput struct {
	Name     *string       `validate:"omitempty,max=255"`
	Slug     *string       `validate:"omitempty,max=100"`
	Status   *TenantStatus `validate:"omitempty,oneof=ACTIVE SUSPENDED ARCHIVED"`
	Settings *map[string]any
}

func (in TenantUpdateInput) updateValues() assignments {
	var v assignments
	setPtr(&v, "name", in.Name)
	setPtr(&v, "slug", in.Slug)
	setPtr(&v, "status", in.Status)
	if in.Settings != nil {
		v.set("settings", database.NewJSONB(*in.Settings))
	}
	return v
}
