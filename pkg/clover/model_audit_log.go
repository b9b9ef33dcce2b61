package clover

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

const auditLogsTable = "audit_logs"

// AuditLog records a change made within a tenant. Rows are append-only.
type AuditLog struct {
	ID        uuid.UUID                       `db:"id" json:"id"`
	TenantID  uuid.UUID                       `db:"tenant_id" json:"tenant_id"`
	UserID    *uuid.UUID                      `db:"user_id" json:"user_id,omitempty"`
	Action    string                          `db:"action" json:"action"`
	Entity    string                          `db:"entity" json:"entity"`
	EntityID  *string                         `db:"entity_id" json:"entity_id,omitempty"`
	OldValues *database.JSONB[map[string]any] `db:"old_values" json:"old_values,omitempty"`
	NewValues *database.JSONB[map[string]any] `db:"new_values" json:"new_values,omitempty"`
	IPAddress *string                         `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent *string                         `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time                       `db:"created_at" json:"created_at"`

	Tenant *Tenant `db:"-" json:"tenant,omitempty"`
	User   *User   `db:"-" json:"user,omitempty"`
}

func (a AuditLog) Unique() AuditLogWhereUnique {
	return AuditLogWhereUnique{ID: a.ID}
}

var AuditLogFields = struct {
	ID        Field[AuditLog, uuid.UUID]
	TenantID  Field[AuditLog, uuid.UUID]
	UserID    Field[AuditLog, uuid.UUID]
	Action    StringField[AuditLog]
	Entity    StringField[AuditLog]
	EntityID  StringField[AuditLog]
	OldValues JSONField[AuditLog]
	NewValues JSONField[AuditLog]
	IPAddress StringField[AuditLog]
	UserAgent StringField[AuditLog]
	CreatedAt Field[AuditLog, time.Time]
}{
	ID:        newField[AuditLog, uuid.UUID]("id"),
	TenantID:  newField[AuditLog, uuid.UUID]("tenant_id"),
	UserID:    newField[AuditLog, uuid.UUID]("user_id"),
	Action:    newStringField[AuditLog]("action"),
	Entity:    newStringField[AuditLog]("entity"),
	EntityID:  newStringField[AuditLog]("entity_id"),
	OldValues: newJSONField[AuditLog]("old_values"),
	NewValues: newJSONField[AuditLog]("new_values"),
	IPAddress: newStringField[AuditLog]("ip_address"),
	UserAgent: newStringField[AuditLog]("user_agent"),
	CreatedAt: newField[AuditLog, time.Time]("created_at"),
}

var AuditLogRelations = struct {
	Tenant OneRelation[AuditLog, Tenant]
	User   OneRelation[AuditLog, User]
}{
	Tenant: oneRelation(tenantsTable, "tenant_id",
		func(a *AuditLog) any { return a.TenantID }, func(t *Tenant) any { return t.ID },
		func(a *AuditLog, t *Tenant) { a.Tenant = t }, func(db *DB) *Delegate[Tenant] { return db.Tenant }),
	User: oneRelation(usersTable, "user_id",
		func(a *AuditLog) any { return uuidPtrKey(a.UserID) }, func(u *User) any { return u.ID },
		func(a *AuditLog, u *User) { a.User = u }, func(db *DB) *Delegate[User] { return db.User }),
}

var auditLogModel = &model[AuditLog]{
	name:  "AuditLog",
	table: auditLogsTable,
	columns: []string{"id", "tenant_id", "user_id", "action", "entity", "entity_id", "old_values", "new_values",
		"ip_address", "user_agent", "created_at"},
	tenantColumn: "tenant_id",
	scope: func(tenantID uuid.UUID) Predicate[AuditLog] {
		return AuditLogFields.TenantID.Equals(tenantID)
	},
}

type AuditLogWhereUnique struct {
	ID  uuid.UUID
	And Predicate[AuditLog]
}

func (u AuditLogWhereUnique) uniquePredicate() (Predicate[AuditLog], error) {
	if u.ID == uuid.Nil {
		return nil, missingUnique("AuditLog", "id")
	}
	return And(AuditLogFields.ID.Equals(u.ID), u.And), nil
}

type AuditLogCreateInput struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	UserID    *uuid.UUID
	Action    string `validate:"required,max=100"`
	Entity    string `validate:"required,max=100"`
	EntityID  *string
	OldValues map[string]any
	NewValues map[string]any
	IPAddress *string `validate:"omitempty,ip"`
	UserAgent *string
}

func (in AuditLogCreateInput) insertValues() assignments {
	var v assignments
	v.set("id", in.ID)
	v.set("tenant_id", in.TenantID)
	setPtr(&v, "user_id", in.UserID)
	v.set("action", in.Action)
	v.set("entity", in.Entity)
	setPtr(&v, "entity_id", in.EntityID)
	if in.OldValues != nil {
		v.set("old_values", database.NewJSONB(in.OldValues))
	}
	if in.NewValues != nil {
		v.set("new_values", database.NewJSONB(in.NewValues))
	}
	setPtr(&v, "ip_address", in.IPAddress)
	setPtr(&v, "user_agent", in.UserAgent)
	return v
}

// AuditLogUpdateInput exists for completeness; audit rows are normally never updated.
type AuditLogUpdateInput struct {
	Action   *string `validate:"omitempty,max=100"`
	Entity   *string `validate:"omitempty,max=100"`
	EntityID *string
}

func (in AuditLogUpdateInput) updateValues() assignments {
	var v assignments
	setPtr(&v, "action", in.Action)
	setPtr(&v, "entity", in.Entity)
	setPtr(&v, "entity_id", in.EntityID)
	return v
}
