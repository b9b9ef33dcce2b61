package clover

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const refreshTokensTable = "refresh_tokens"

type RefreshToken struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	TokenHash string     `db:"token_hash" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`

	User *User `db:"-" json:"user,omitempty"`
}

func (r RefreshToken) Unique() RefreshTokenWhereUnique {
	return RefreshTokenWhereUnique{ID: r.ID}
}

// Active reports whether the token is neither revoked nor expired at now.
func (r RefreshToken) Active(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

var RefreshTokenFields = struct {
	ID        Field[RefreshToken, uuid.UUID]
	UserID    Field[RefreshToken, uuid.UUID]
	TokenHash StringField[RefreshToken]
	ExpiresAt Field[RefreshToken, time.Time]
	RevokedAt Field[RefreshToken, time.Time]
	CreatedAt Field[RefreshToken, time.Time]
}{
	ID:        newField[RefreshToken, uuid.UUID]("id"),
	UserID:    newField[RefreshToken, uuid.UUID]("user_id"),
	TokenHash: newStringField[RefreshToken]("token_hash"),
	ExpiresAt: newField[RefreshToken, time.Time]("expires_at"),
	RevokedAt: newField[RefreshToken, time.Time]("revoked_at"),
	CreatedAt: newField[RefreshToken, time.Time]("created_at"),
}

var RefreshTokenRelations = struct {
	User OneRelation[RefreshToken, User]
}{
	User: oneRelation(usersTable, "user_id",
		func(r *RefreshToken) any { return r.UserID }, func(u *User) any { return u.ID },
		func(r *RefreshToken, u *User) { r.User = u }, func(db *DB) *Delegate[User] { return db.User }),
}

// Refresh tokens carry no tenant column; they are scoped through their user.
var refreshTokenModel = &model[RefreshToken]{
	name:    "RefreshToken",
	table:   refreshTokensTable,
	columns: []string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"},
	scope: func(tenantID uuid.UUID) Predicate[RefreshToken] {
		return RefreshTokenRelations.User.Is(UserFields.TenantID.Equals(tenantID))
	},
}

type RefreshTokenWhereUnique struct {
	ID        uuid.UUID
	TokenHash string
	And       Predicate[RefreshToken]
}

func (u RefreshTokenWhereUnique) uniquePredicate() (Predicate[RefreshToken], error) {
	var preds []Predicate[RefreshToken]
	if u.ID != uuid.Nil {
		preds = append(preds, RefreshTokenFields.ID.Equals(u.ID))
	}
	if u.TokenHash != "" {
		preds = append(preds, RefreshTokenFields.TokenHash.Equals(u.TokenHash))
	}
	if len(preds) == 0 {
		return nil, missingUnique("RefreshToken", "id", "tokenHash")
	}
	return And(append(preds, u.And)...), nil
}

type RefreshTokenCreateInput struct {
	ID        uuid.UUID
	UserID    uuid.UUID `validate:"required"`
	TokenHash string    `validate:"required,max=255"`
	ExpiresAt time.Time `validate:"required"`
	RevokedAt *time.Time
}

func (in RefreshTokenCreateInput) insertValues() assignments {
	var v assignments
	v.set("id", in.ID)
	v.set("user_id", in.UserID)
	v.set("token_hash", in.TokenHash)
	v.set("expires_at", in.ExpiresAt)
	setPtr(&v, "revoked_at", in.RevokedAt)
	return v
}

type RefreshTokenUpdateInput struct {
	ExpiresAt *time.Time
	RevokedAt *sql.Null[time.Time]
}

func (in RefreshTokenUpdateInput) updateValues() assignments {
	var v assignments
	setPtr(&v, "expires_at", in.ExpiresAt)
	setNullable(&v, "revoked_at", in.RevokedAt)
	return v
}
