package clover

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_Order(t *testing.T) {
	db, mock := newMockDB(t)

	var calls []string
	trace := func(name string) Middleware {
		return func(next QueryFunc) QueryFunc {
			return func(ctx context.Context, params QueryParams) (any, error) {
				calls = append(calls, name+":"+params.Model+"."+string(params.Action))
				res, err := next(ctx, params)
				calls = append(calls, name+":done")
				return res, err
			}
		}
	}
	db.Use(trace("outer"), trace("inner"))

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnRows(sqlmock.NewRows([]string{"_count___all"}).AddRow(int64(1)))
	_, err := db.User.Count(context.Background(), CountArgs[User]{})
	require.NoError(t, err)

	assert.Equal(t, []string{"outer:User.count", "inner:User.count", "inner:done", "outer:done"}, calls)
}

func TestMiddleware_RewritesArgs(t *testing.T) {
	db, mock := newMockDB(t)

	db.Use(func(next QueryFunc) QueryFunc {
		return func(ctx context.Context, params QueryParams) (any, error) {
			if args, ok := params.Args.(FindManyArgs[Client]); ok && args.Where == nil {
				args.Where = ClientFields.Status.Not(ClientStatusChurned)
				params.Args = args
			}
			return next(ctx, params)
		}
	})

	mock.ExpectQuery(`FROM clients WHERE clients\.status <> \$1`).
		WithArgs(ClientStatusChurned).
		WillReturnRows(sqlmock.NewRows(clientColumns))

	_, err := db.Client.FindMany(context.Background(), FindManyArgs[Client]{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_ShortCircuit(t *testing.T) {
	db, mock := newMockDB(t)

	db.Use(func(next QueryFunc) QueryFunc {
		return func(ctx context.Context, params QueryParams) (any, error) {
			if params.Action == ActionCount {
				return int64(42), nil
			}
			if params.Action == ActionDeleteMany {
				return "not a count", nil
			}
			return next(ctx, params)
		}
	})

	n, err := db.Client.Count(context.Background(), CountArgs[Client]{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = db.Client.DeleteMany(context.Background(), DeleteManyArgs[Client]{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_SeesTransaction(t *testing.T) {
	db, mock := newMockDB(t)

	var inTx []bool
	db.Use(func(next QueryFunc) QueryFunc {
		return func(ctx context.Context, params QueryParams) (any, error) {
			inTx = append(inTx, params.RunInTransaction)
			return next(ctx, params)
		}
	})

	mock.ExpectExec(`DELETE FROM audit_logs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM audit_logs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	_, err := db.AuditLog.DeleteMany(ctx, DeleteManyArgs[AuditLog]{})
	require.NoError(t, err)
	err = db.Transaction(ctx, func(ctx context.Context) error {
		_, err := db.AuditLog.DeleteMany(ctx, DeleteManyArgs[AuditLog]{})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true}, inTx)
	assert.True(t, ActionDeleteMany.IsWrite())
	assert.False(t, ActionFindMany.IsWrite())
}
