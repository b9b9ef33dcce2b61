package clover

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
)

// RawArgs is what middleware sees for raw queries.
type RawArgs struct {
	Query  string
	Params []any
}

// QueryRaw runs a SELECT built from a template with $? placeholders, so every value is a bind parameter:
//
//	db.QueryRaw(ctx, &rows, "SELECT id, email FROM users WHERE tenant_id = $?", tenantID)
//
// dest is a pointer to a slice of structs or a *[]map[string]any.
func (db *DB) QueryRaw(ctx context.Context, dest any, format string, args ...any) error {
	query, params := database.Build(format, args...)
	return db.queryRaw(ctx, ActionQueryRaw, dest, query, params)
}

// QueryRawUnsafe runs query as written. Use $1, $2 for parameters.
func (db *DB) QueryRawUnsafe(ctx context.Context, dest any, query string, args ...any) error {
	return db.queryRaw(ctx, ActionQueryRawUnsafe, dest, query, args)
}

// ExecuteRaw runs a statement built from a $? template and returns the rows affected.
func (db *DB) ExecuteRaw(ctx context.Context, format string, args ...any) (int64, error) {
	query, params := database.Build(format, args...)
	return db.executeRaw(ctx, ActionExecuteRaw, query, params)
}

// ExecuteRawUnsafe runs query as written and returns the rows affected.
func (db *DB) ExecuteRawUnsafe(ctx context.Context, query string, args ...any) (int64, error) {
	return db.executeRaw(ctx, ActionExecuteRawUnsafe, query, args)
}

func (db *DB) queryRaw(ctx context.Context, action Action, dest any, query string, params []any) error {
	_, err := invoke(db, ctx, "", action, RawArgs{Query: query, Params: params}, func(ctx context.Context, args RawArgs) (any, error) {
		if maps, ok := dest.(*[]map[string]any); ok {
			rows, err := db.queryMaps(ctx, "", args.Query, args.Params)
			if err != nil {
				return nil, rawError(err)
			}
			*maps = rows
			return rows, nil
		}
		if err := db.selectRows(ctx, "", dest, args.Query, args.Params); err != nil {
			return nil, rawError(err)
		}
		return dest, nil
	})
	return err
}

func (db *DB) executeRaw(ctx context.Context, action Action, query string, params []any) (int64, error) {
	return invoke(db, ctx, "", action, RawArgs{Query: query, Params: params}, func(ctx context.Context, args RawArgs) (int64, error) {
		n, err := db.exec(ctx, "", "raw", args.Query, args.Params)
		if err != nil {
			return 0, rawError(err)
		}
		// Raw statements can touch any table.
		db.invalidate(ctx, allModels()...)
		return n, nil
	})
}

// rawError reports database failures without a specific code as P2010.
func rawError(err error) error {
	var unknown *UnknownRequestError
	var pqErr *pq.Error
	if errors.As(err, &unknown) && errors.As(err, &pqErr) {
		return knownError(CodeRawQueryFailed,
			fmt.Sprintf("Raw query failed. Code: `%s`. Message: `%s`", pqErr.Code, pqErr.Message),
			map[string]any{"code": string(pqErr.Code), "message": pqErr.Message}, err)
	}
	return err
}
