package clover

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

// statement runs one SQL statement on the context transaction or the pool.
func (db *DB) statement(ctx context.Context, model, kind, query string, args []any, fn func(r database.Runner, query string) error) error {
	conn, err := db.connection(ctx)
	if err != nil {
		return err
	}
	runner := database.Resolve(ctx, conn)
	query = db.comment(ctx, query)

	start := time.Now()
	err = fn(runner, query)
	db.logQuery(ctx, query, args, time.Since(start))

	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
		db.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"model": model,
			"kind":  kind,
		}).Debug("statement failed")
	}
	metrics.StatementsTotal.WithLabelValues(kind, status).Inc()

	return mapError(model, err)
}

func (db *DB) selectRows(ctx context.Context, model string, dest any, query string, args []any) error {
	return db.statement(ctx, model, "select", query, args, func(r database.Runner, q string) error {
		return r.SelectContext(ctx, dest, q, args...)
	})
}

func (db *DB) getRow(ctx context.Context, model, kind string, dest any, query string, args []any) error {
	return db.statement(ctx, model, kind, query, args, func(r database.Runner, q string) error {
		return r.GetContext(ctx, dest, q, args...)
	})
}

func (db *DB) exec(ctx context.Context, model, kind, query string, args []any) (int64, error) {
	var affected int64
	err := db.statement(ctx, model, kind, query, args, func(r database.Runner, q string) error {
		res, err := r.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (db *DB) queryMaps(ctx context.Context, model string, query string, args []any) ([]map[string]any, error) {
	out := []map[string]any{}
	err := db.statement(ctx, model, "select", query, args, func(r database.Runner, q string) error {
		rows, err := r.QueryxContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanMaps(rows)
		return err
	})
	return out, err
}

func scanMaps(rows *sqlx.Rows) ([]map[string]any, error) {
	out := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			row[k] = normalizeValue(v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeValue turns driver byte slices (uuid, numeric, text) into strings.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
