package clover

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// newMockDB returns a client backed by sqlmock. opts are applied on top of the mock adapter.
func newMockDB(t *testing.T, opts ...func(*Options)) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := getTestLogger()
	conn := database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger)

	o := Options{Adapter: FromDB(conn)}
	for _, fn := range opts {
		fn(&o)
	}
	db, err := New(logger, o)
	require.NoError(t, err)
	return db, mock
}

func tenantContext(tenantID uuid.UUID) context.Context {
	return appctx.SetTenantID(context.Background(), tenantID.String())
}

// compileWhere renders a predicate into a standalone SELECT for assertions.
func compileWhere[T any](p Predicate[T], table string) (string, []any) {
	sb := database.NewSelectBuilder()
	sb.Select("1").From(table)
	if expr := p.compile(newWhere(sb, table)); expr != "" {
		sb.Where(expr)
	}
	return sb.Build()
}

var clientColumns = []string{"id", "tenant_id", "assigned_to_id", "company_name", "contact_name", "email", "phone",
	"status", "tags", "custom_fields", "created_at", "updated_at"}

func clientRow(rows *sqlmock.Rows, id, tenantID uuid.UUID, name string, status ClientStatus) *sqlmock.Rows {
	return rows.AddRow(id.String(), tenantID.String(), nil, name, nil, nil, nil, string(status),
		[]byte(`["vip"]`), []byte(`{}`), fixedTime, fixedTime)
}
