package clover

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

const clientsTable = "clients"

type ClientStatus string

const (
	ClientStatusLead     ClientStatus = "LEAD"
	ClientStatusProspect ClientStatus = "PROSPECT"
	ClientStatusActive   ClientStatus = "ACTIVE"
	ClientStatusInactive ClientStatus = "INACTIVE"
	ClientStatusChurned  ClientStatus = "CHURNED"
)

// Client is a customer account owned by a tenant.
type Client struct {
	ID           uuid.UUID                      `db:"id" json:"id"`
	TenantID     uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	AssignedToID *uuid.UUID                     `db:"assigned_to_id" json:"assigned_to_id,omitempty"`
	CompanyName  string                         `db:"company_name" json:"company_name"`
	ContactName  *string                        `db:"contact_name" json:"contact_name,omitempty"`
	Email        *string                        `db:"email" json:"email,omitempty"`
	Phone        *string                        `db:"phone" json:"phone,omitempty"`
	Status       ClientStatus                   `db:"status" json:"status"`
	Tags         database.JSONB[[]string]       `db:"tags" json:"tags"`
	CustomFields database.JSONB[map[string]any] `db:"custom_fields" json:"custom_fields"`
	CreatedAt    time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time                      `db:"updated_at" json:"updated_at"`

	Tenant       *Tenant       `db:"-" json:"tenant,omitempty"`
	AssignedTo   *User         `db:"-" json:"assigned_to,omitempty"`
	Interactions []Interaction `db:"-" json:"interactions,omitempty"`
}

func (c Client) Unique() ClientWhereUnique {
	return ClientWhereUnique{ID: c.ID}
}

var ClientFields = struct {
	ID           Field[Client, uuid.UUID]
	TenantID     Field[Client, uuid.UUID]
	AssignedToID Field[Client, uuid.UUID]
	CompanyName  StringField[Client]
	ContactName  StringField[Client]
	Email        StringField[Client]
	Phone        StringField[Client]
	Status       Field[Client, ClientStatus]
	Tags         JSONField[Client]
	CustomFields JSONField[Client]
	CreatedAt    Field[Client, time.Time]
	UpdatedAt    Field[Client, time.Time]
}{
	ID:           newField[Client, uuid.UUID]("id"),
	TenantID:     newField[Client, uuid.UUID]("tenant_id"),
	AssignedToID: newField[Client, uuid.UUID]("assigned_to_id"),
	CompanyName:  newStringField[Client]("company_name"),
	ContactName:  newStringField[Client]("contact_name"),
	Email:        newStringField[Client]("email"),
	Phone:        newStringField[Client]("phone"),
	Status:       newField[Client, ClientStatus]("status"),
	Tags:         newJSONField[Client]("tags"),
	CustomFields: newJSONField[Client]("custom_fields"),
	CreatedAt:    newField[Client, time.Time]("created_at"),
	UpdatedAt:    newField[Client, time.Time]("updated_at"),
}

var ClientRelations = struct {
	Tenant       OneRelation[Client, Tenant]
	AssignedTo   OneRelation[Client, User]
	Interactions ListRelation[Client, Interaction]
}{
	Tenant: oneRelation(tenantsTable, "tenant_id",
		func(c *Client) any { return c.TenantID }, func(t *Tenant) any { return t.ID },
		func(c *Client, t *Tenant) { c.Tenant = t }, func(db *DB) *Delegate[Tenant] { return db.Tenant }),
	AssignedTo: oneRelation(usersTable, "assigned_to_id",
		func(c *Client) any { return uuidPtrKey(c.AssignedToID) }, func(u *User) any { return u.ID },
		func(c *Client, u *User) { c.AssignedTo = u }, func(db *DB) *Delegate[User] { return db.User }),
	Interactions: listRelation(interactionsTable, "client_id",
		func(c *Client) any { return c.ID }, func(i *Interaction) any { return i.ClientID },
		func(c *Client, rows []Interaction) { c.Interactions = rows }, func(db *DB) *Delegate[Interaction] { return db.Interaction }),
}

var clientModel = &model[Client]{
	name:  "Client",
	table: clientsTable,
	columns: []string{"id", "tenant_id", "assigned_to_id", "company_name", "contact_name", "email", "phone", "status",
		"tags", "custom_fields", "created_at", "updated_at"},
	tenantColumn: "tenant_id",
	updatedAt:    true,
	scope: func(tenantID uuid.UUID) Predicate[Client] {
		return ClientFields.TenantID.Equals(tenantID)
	},
}

type ClientWhereUnique struct {
	ID  uuid.UUID
	And Predicate[Client]
}

func (u ClientWhereUnique) uniquePredicate() (Predicate[Client], error) {
	if u.ID == uuid.Nil {
		return nil, missingUnique("Client", "id")
	}
	return And(ClientFields.ID.Equals(u.ID), u.And), nil
}

type ClientCreateInput struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	AssignedToID *uuid.UUID
	CompanyName  string       `validate:"required,max=255"`
	ContactName  *string      `validate:"omitempty,max=255"`
	Email        *string      `validate:"omitempty,email"`
	Phone        *string      `validate:"omitempty,max=50"`
	Status       ClientStatus `validate:"omitempty,oneof=LEAD PROSPECT ACTIVE INACTIVE CHURNED"`
	Tags         []string
	CustomFields map[string]any
}

func (in ClientCreateInput) insertValues() assignments {
	var v assignments
	v.set("id", in.ID)
	v.set("tenant_id", in.TenantID)
	setPtr(&v, "assigned_to_id", in.AssignedToID)
	v.set("company_name", in.CompanyName)
	setPtr(&v, "contact_name", in.ContactName)
	setPtr(&v, "email", in.Email)
	setPtr(&v, "phone", in.Phone)
	if in.Status != "" {
		v.set("status", in.Status)
	}
	if in.Tags != nil {
		v.set("tags", database.NewJSONB(in.Tags))
	}
	if in.CustomFields != nil {
		v.set("custom_fields", database.NewJSONB(in.CustomFields))
	}
	return v
}

type ClientUpdateInput struct {
	AssignedToID *sql.Null[uuid.UUID]
	CompanyName  *string `validate:"omitempty,max=255"`
	ContactName  *sql.Null[string]
	Email        *sql.Null[string]
	Phone        *sql.Null[string]
	Status       *ClientStatus `validate:"omitempty,oneof=LEAD PROSPECT ACTIVE INACTIVE CHURNED"`
	Tags         *[]string
	CustomFields *map[string]any
}

func (in ClientUpdateInput) updateValues() assignments {
	var v assignments
	setNullable(&v, "assigned_to_id", in.AssignedToID)
	setPtr(&v, "company_name", in.CompanyName)
	setNullable(&v, "contact_name", in.ContactName)
	setNullable(&v, "email", in.Email)
	setNullable(&v, "phone", in.Phone)
	setPtr(&v, "status", in.Status)
	if in.Tags != nil {
		v.set("tags", database.NewJSONB(*in.Tags))
	}
	if in.CustomFields != nil {
		v.set("custom_fields", database.NewJSONB(*in.CustomFields))
	}
	return v
}
