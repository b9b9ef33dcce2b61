package clover

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryRaw_Maps(t *testing.T) {
	db, mock := newMockDB(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS n FROM clients WHERE tenant_id = \$1 GROUP BY status`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).
			AddRow([]byte("LEAD"), int64(2)).
			AddRow([]byte("ACTIVE"), int64(5)))

	var rows []map[string]any
	err := db.QueryRaw(context.Background(), &rows, "SELECT status, COUNT(*) AS n FROM clients WHERE tenant_id = $? GROUP BY status", tenantID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "LEAD", rows[0]["status"])
	assert.Equal(t, int64(5), rows[1]["n"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRaw_Structs(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT id, email FROM users WHERE email LIKE \$1`).
		WithArgs("%@acme.io").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(uuid.NewString(), "ann@acme.io"))

	var users []User
	err := db.QueryRawUnsafe(context.Background(), &users, "SELECT id, email FROM users WHERE email LIKE $1", "%@acme.io")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ann@acme.io", users[0].Email)
}

func TestExecuteRaw(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE users SET status = \$1 WHERE last_login_at < NOW\(\) - INTERVAL '90 days'`).
		WithArgs("INACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := db.ExecuteRaw(context.Background(), "UPDATE users SET status = $? WHERE last_login_at < NOW() - INTERVAL '90 days'", "INACTIVE")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRaw_Errors(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectExec(`SELEC`).WillReturnError(&pq.Error{Code: "42601", Message: `syntax error at or near "SELEC"`})
	_, err := db.ExecuteRawUnsafe(ctx, "SELEC 1")
	var known *KnownRequestError
	require.ErrorAs(t, err, &known)
	assert.Equal(t, CodeRawQueryFailed, known.Code)
	assert.Equal(t, "42601", known.Meta["code"])

	mock.ExpectExec(`INSERT INTO tenants`).WillReturnError(&pq.Error{Code: "23505", Detail: "Key (slug)=(acme) already exists."})
	_, err = db.ExecuteRawUnsafe(ctx, "INSERT INTO tenants (id, name, slug) VALUES ($1, $2, $3)", uuid.New(), "Acme", "acme")
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
