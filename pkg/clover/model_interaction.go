package clover

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

const interactionsTable = "interactions"

type InteractionType string

const (
	InteractionTypeCall    InteractionType = "CALL"
	InteractionTypeEmail   InteractionType = "EMAIL"
	InteractionTypeMeeting InteractionType = "MEETING"
	InteractionTypeNote    InteractionType = "NOTE"
	InteractionTypeTask    InteractionType = "TASK"
)

// Interaction is a touchpoint between a user and a client.
type Interaction struct {
	ID              uuid.UUID                      `db:"id" json:"id"`
	TenantID        uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	ClientID        uuid.UUID                      `db:"client_id" json:"client_id"`
	UserID          uuid.UUID                      `db:"user_id" json:"user_id"`
	Type            InteractionType                `db:"type" json:"type"`
	Subject         string                         `db:"subject" json:"subject"`
	Notes           *string                        `db:"notes" json:"notes,omitempty"`
	DurationMinutes *int                           `db:"duration_minutes" json:"duration_minutes,omitempty"`
	OccurredAt      time.Time                      `db:"occurred_at" json:"occurred_at"`
	Metadata        database.JSONB[map[string]any] `db:"metadata" json:"metadata"`
	CreatedAt       time.Time                      `db:"created_at" json:"created_at"`

	Tenant *Tenant `db:"-" json:"tenant,omitempty"`
	Client *Client `db:"-" json:"client,omitempty"`
	User   *User   `db:"-" json:"user,omitempty"`
}

func (i Interaction) Unique() InteractionWhereUnique {
	return InteractionWhereUnique{ID: i.ID}
}

var InteractionFields = struct {
	ID              Field[Interaction, uuid.UUID]
	TenantID        Field[Interaction, uuid.UUID]
	ClientID        Field[Interaction, uuid.UUID]
	UserID          Field[Interaction, uuid.UUID]
	Type            Field[Interaction, InteractionType]
	Subject         StringField[Interaction]
	Notes           StringField[Interaction]
	DurationMinutes Field[Interaction, int]
	OccurredAt      Field[Interaction, time.Time]
	Metadata        JSONField[Interaction]
	CreatedAt       Field[Interaction, time.Time]
}{
	ID:              newField[Interaction, uuid.UUID]("id"),
	TenantID:        newField[Interaction, uuid.UUID]("tenant_id"),
	ClientID:        newField[Interaction, uuid.UUID]("client_id"),
	UserID:          newField[Interaction, uuid.UUID]("user_id"),
	Type:            newField[Interaction, InteractionType]("type"),
	Subject:         newStringField[Interaction]("subject"),
	Notes:           newStringField[Interaction]("notes"),
	DurationMinutes: newField[Interaction, int]("duration_minutes"),
	OccurredAt:      newField[Interaction, time.Time]("occurred_at"),
	Metadata:        newJSONField[Interaction]("metadata"),
	CreatedAt:       newField[Interaction, time.Time]("created_at"),
}

var InteractionRelations = struct {
	Tenant OneRelation[Interaction, Tenant]
	Client OneRelation[Interaction, Client]
	User   OneRelation[Interaction, User]
}{
	Tenant: oneRelation(tenantsTable, "tenant_id",
		func(i *Interaction) any { return i.TenantID }, func(t *Tenant) any { return t.ID },
		func(i *Interaction, t *Tenant) { i.Tenant = t }, func(db *DB) *Delegate[Tenant] { return db.Tenant }),
	Client: oneRelation(clientsTable, "client_id",
		func(i *Interaction) any { return i.ClientID }, func(c *Client) any { return c.ID },
		func(i *Interaction, c *Client) { i.Client = c }, func(db *DB) *Delegate[Client] { return db.Client }),
	User: oneRelation(usersTable, "user_id",
		func(i *Interaction) any { return i.UserID }, func(u *User) any { return u.ID },
		func(i *Interaction, u *User) { i.User = u }, func(db *DB) *Delegate[User] { return db.User }),
}

var interactionModel = &model[Interaction]{
	name:  "Interaction",
	table: interactionsTable,
	columns: []string{"id", "tenant_id", "client_id", "user_id", "type", "subject", "notes", "duration_minutes",
		"occurred_at", "metadata", "created_at"},
	numeric:      []string{"duration_minutes"},
	tenantColumn: "tenant_id",
	scope: func(tenantID uuid.UUID) Predicate[Interaction] {
		return InteractionFields.TenantID.Equals(tenantID)
	},
}

type InteractionWhereUnique struct {
	ID  uuid.UUID
	And Predicate[Interaction]
}

func (u InteractionWhereUnique) uniquePredicate() (Predicate[Interaction], error) {
	if u.ID == uuid.Nil {
		return nil, missingUnique("Interaction", "id")
	}
	return And(InteractionFields.ID.Equals(u.ID), u.And), nil
}

type InteractionCreateInput struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ClientID        uuid.UUID       `validate:"required"`
	UserID          uuid.UUID       `validate:"required"`
	Type            InteractionType `validate:"required,oneof=CALL EMAIL MEETING NOTE TASK"`
	Subject         string          `validate:"required,max=255"`
	Notes           *string
	DurationMinutes *int `validate:"omitempty,min=0"`
	// OccurredAt defaults to now.
	OccurredAt time.Time
	Metadata   map[string]any
}

func (in InteractionCreateInput) insertValues() assignments {
	var v assignments
	v.set("id", in.ID)
	v.set("tenant_id", in.TenantID)
	v.set("client_id", in.ClientID)
	v.set("user_id", in.UserID)
	v.set("type", in.Type)
	v.set("subject", in.Subject)
	setPtr(&v, "notes", in.Notes)
	setPtr(&v, "duration_minutes", in.DurationMinutes)
	if !in.OccurredAt.IsZero() {
		v.set("occurred_at", in.OccurredAt)
	}
	if in.Metadata != nil {
		v.set("metadata", database.NewJSONB(in.Metadata))
	}
	return v
}

type InteractionUpdateInput struct {
	Type            *InteractionType `validate:"omitempty,oneof=CALL EMAIL MEETING NOTE TASK"`
	Subject         *string          `validate:"omitempty,max=255"`
	Notes           *sql.Null[string]
	DurationMinutes *IntUpdate
	OccurredAt      *time.Time
	Metadata        *map[string]any
}

func (in InteractionUpdateInput) updateValues() assignments {
	var v assignments
	setPtr(&v, "type", in.Type)
	setPtr(&v, "subject", in.Subject)
	setNullable(&v, "notes", in.Notes)
	in.DurationMinutes.apply(&v, "duration_minutes")
	setPtr(&v, "occurred_at", in.OccurredAt)
	if in.Metadata != nil {
		v.set("metadata", database.NewJSONB(*in.Metadata))
	}
	return v
}
