// Package testenv builds clients for tests, either over sqlmock or over containers.
package testenv

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/clover"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
)

var FixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var ClientColumns = []string{"id", "tenant_id", "assigned_to_id", "company_name", "contact_name", "email", "phone",
	"status", "tags", "custom_fields", "created_at", "updated_at"}

func Logger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// NewMockDB returns a client over sqlmock. opts are applied on top of the mock adapter.
func NewMockDB(t testing.TB, opts ...func(*clover.Options)) (*clover.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := Logger()
	o := clover.Options{Adapter: clover.FromDB(database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger))}
	for _, fn := range opts {
		fn(&o)
	}
	db, err := clover.New(logger, o)
	require.NoError(t, err)
	return db, mock
}

func TenantContext(tenantID uuid.UUID) context.Context {
	return appctx.SetTenantID(context.Background(), tenantID.String())
}

// ClientRow appends a client row with the given custom fields JSON.
func ClientRow(rows *sqlmock.Rows, id, tenantID uuid.UUID, name string, status clover.ClientStatus, customFields string) *sqlmock.Rows {
	if customFields == "" {
		customFields = "{}"
	}
	return rows.AddRow(id.String(), tenantID.String(), nil, name, nil, nil, nil, string(status),
		[]byte(`[]`), []byte(customFields), FixedTime, FixedTime)
}

// UniqueViolation is the driver error PostgreSQL returns for a duplicate key on constraint.
func UniqueViolation(constraint string) error {
	return &pq.Error{Code: "23505", Constraint: constraint}
}
