package clover

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const usersTable = "users"

type UserRole string

const (
	UserRoleAdmin   UserRole = "ADMIN"
	UserRoleManager UserRole = "MANAGER"
	UserRoleAgent   UserRole = "AGENT"
	UserRoleViewer  UserRole = "VIEWER"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
	UserStatusInvited  UserStatus = "INVITED"
)

type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TenantID     uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Role         UserRole   `db:"role" json:"role"`
	Status       UserStatus `db:"status" json:"status"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Tenant          *Tenant        `db:"-" json:"tenant,omitempty"`
	RefreshTokens   []RefreshToken `db:"-" json:"refresh_tokens,omitempty"`
	AssignedClients []Client       `db:"-" json:"assigned_clients,omitempty"`
	Interactions    []Interaction  `db:"-" json:"interactions,omitempty"`
	Notifications   []Notification `db:"-" json:"notifications,omitempty"`
	AuditLogs       []AuditLog     `db:"-" json:"audit_logs,omitempty"`
}

func (u User) Unique() UserWhereUnique {
	return UserWhereUnique{ID: u.ID}
}

var UserFields = struct {
	ID           Field[User, uuid.UUID]
	TenantID     Field[User, uuid.UUID]
	Email        StringField[User]
	PasswordHash StringField[User]
	FirstName    StringField[User]
	LastName     StringField[User]
	Role         Field[User, UserRole]
	Status       Field[User, UserStatus]
	LastLoginAt  Field[User, time.Time]
	CreatedAt    Field[User, time.Time]
	UpdatedAt    Field[User, time.Time]
}{
	ID:           newField[User, uuid.UUID]("id"),
	TenantID:     newField[User, uuid.UUID]("tenant_id"),
	Email:        newStringField[User]("email"),
	PasswordHash: newStringField[User]("password_hash"),
	FirstName:    newStringField[User]("first_name"),
	LastName:     newStringField[User]("last_name"),
	Role:         newField[User, UserRole]("role"),
	Status:       newField[User, UserStatus]("status"),
	LastLoginAt:  newField[User, time.Time]("last_login_at"),
	CreatedAt:    newField[User, time.Time]("created_at"),
	UpdatedAt:    newField[User, time.Time]("updated_at"),
}

var UserRelations = struct {
	Tenant          OneRelation[User, Tenant]
	RefreshTokens   ListRelation[User, RefreshToken]
	AssignedClients ListRelation[User, Client]
	Interactions    ListRelation[User, Interaction]
	Notifications   ListRelation[User, Notification]
	AuditLogs       ListRelation[User, AuditLog]
}{
	Tenant: oneRelation(tenantsTable, "tenant_id",
		func(u *User) any { return u.TenantID }, func(t *Tenant) any { return t.ID },
		func(u *User, t *Tenant) { u.Tenant = t }, func(db *DB) *Delegate[Tenant] { return db.Tenant }),
	RefreshTokens: listRelation(refreshTokensTable, "user_id",
		func(u *User) any { return u.ID }, func(r *RefreshToken) any { return r.UserID },
		func(u *User, rows []RefreshToken) { u.RefreshTokens = rows }, func(db *DB) *Delegate[RefreshToken] { return db.RefreshToken }),
	AssignedClients: listRelation(clientsTable, "assigned_to_id",
		func(u *User) any { return u.ID }, func(c *Client) any { return uuidPtrKey(c.AssignedToID) },
		func(u *User, rows []Client) { u.AssignedClients = rows }, func(db *DB) *Delegate[Client] { return db.Client }),
	Interactions: listRelation(interactionsTable, "user_id",
		func(u *User) any { return u.ID }, func(i *Interaction) any { return i.UserID },
		func(u *User, rows []Interaction) { u.Interactions = rows }, func(db *DB) *Delegate[Interaction] { return db.Interaction }),
	Notifications: listRelation(notificationsTable, "user_id",
		func(u *User) any { return u.ID }, func(n *Notification) any { return n.UserID },
		func(u *User, rows []Notification) { u.Notifications = rows }, func(db *DB) *Delegate[Notification] { return db.Notification }),
	AuditLogs: listRelation(auditLogsTable, "user_id",
		func(u *User) any { return u.ID }, func(a *AuditLog) any { return uuidPtrKey(a.UserID) },
		func(u *User, rows []AuditLog) { u.AuditLogs = rows }, func(db *DB) *Delegate[AuditLog] { return db.AuditLog }),
}

var userModel = &model[User]{
	name:  "User",
	table: usersTable,
	columns: []string{"id", "tenant_id", "email", "password_hash", "first_name", "last_name", "role", "status",
		"last_login_at", "created_at", "updated_at"},
	tenantColumn: "tenant_id",
	updatedAt:    true,
	scope: func(tenantID uuid.UUID) Predicate[User] {
		return UserFields.TenantID.Equals(tenantID)
	},
}

// UserTenantIDEmail is the compound (tenant_id, email) key.
type UserTenantIDEmail struct {
	TenantID uuid.UUID
	Email    string
}

// UserWhereUnique selects a user by ID or by tenant and email.
type UserWhereUnique struct {
	ID            uuid.UUID
	TenantIDEmail *UserTenantIDEmail
	And           Predicate[User]
}

func (u UserWhereUnique) uniquePredicate() (Predicate[User], error) {
	var preds []Predicate[User]
	if u.ID != uuid.Nil {
		preds = append(preds, UserFields.ID.Equals(u.ID))
	}
	if k := u.TenantIDEmail; k != nil {
		if k.TenantID == uuid.Nil || k.Email == "" {
			return nil, validationError("Argument `tenantId_email` needs both `tenantId` and `email`.")
		}
		preds = append(preds, UserFields.TenantID.Equals(k.TenantID), UserFields.Email.Equals(k.Email))
	}
	if len(preds) == 0 {
		return nil, missingUnique("User", "id", "tenantId_email")
	}
	return And(append(preds, u.And)...), nil
}

type UserCreateInput struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string     `validate:"required,email,max=255"`
	PasswordHash string     `validate:"required"`
	FirstName    string     `validate:"required,max=100"`
	LastName     string     `validate:"required,max=100"`
	Role         UserRole   `validate:"omitempty,oneof=ADMIN MANAGER AGENT VIEWER"`
	Status       UserStatus `validate:"omitempty,oneof=ACTIVE INACTIVE INVITED"`
	LastLoginAt  *time.Time
}

func (in UserCreateInput) insertValues() assignments {
	var v assignments
	v.set("id", in.ID)
	v.set("tenant_id", in.TenantID)
	v.set("email", in.Email)
	v.set("password_hash", in.PasswordHash)
	v.set("first_name", in.FirstName)
	v.set("last_name", in.LastName)
	if in.Role != "" {
		v.set("role", in.Role)
	}
	if in.Status != "" {
		v.set("status", in.Status)
	}
	setPtr(&v, "last_login_at", in.LastLoginAt)
	return v
}

type UserUpdateInput struct {
	Email        *string     `validate:"omitempty,email,max=255"`
	PasswordHash *string     `validate:"omitempty,min=1"`
	FirstName    *string     `validate:"omitempty,max=100"`
	LastName     *string     `validate:"omitempty,max=100"`
	Role         *UserRole   `validate:"omitempty,oneof=ADMIN MANAGER AGENT VIEWER"`
	Status       *UserStatus `validate:"omitempty,oneof=ACTIVE INACTIVE INVITED"`
	LastLoginAt  *sql.Null[time.Time]
}

func (in UserUpdateInput) updateValues() assignments {
	var v assignments
	setPtr(&v, "email", in.Email)
	setPtr(&v, "password_hash", in.PasswordHash)
	setPtr(&v, "first_name", in.FirstName)
	setPtr(&v, "last_name", in.LastName)
	setPtr(&v, "role", in.Role)
	setPtr(&v, "status", in.Status)
	setNullable(&v, "last_login_at", in.LastLoginAt)
	return v
}
