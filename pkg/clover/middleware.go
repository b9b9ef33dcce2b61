package clover

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Action names a client operation.
type Action string

const (
	ActionFindUnique          Action = "findUnique"
	ActionFindUniqueOrThrow   Action = "findUniqueOrThrow"
	ActionFindFirst           Action = "findFirst"
	ActionFindFirstOrThrow    Action = "findFirstOrThrow"
	ActionFindMany            Action = "findMany"
	ActionCreate              Action = "create"
	ActionCreateMany          Action = "createMany"
	ActionCreateManyAndReturn Action = "createManyAndReturn"
	ActionUpdate              Action = "update"
	ActionUpdateMany          Action = "updateMany"
	ActionUpdateManyAndReturn Action = "updateManyAndReturn"
	ActionUpsert              Action = "upsert"
	ActionDelete              Action = "delete"
	ActionDeleteMany          Action = "deleteMany"
	ActionCount               Action = "count"
	ActionAggregate           Action = "aggregate"
	ActionGroupBy             Action = "groupBy"
	ActionQueryRaw            Action = "queryRaw"
	ActionQueryRawUnsafe      Action = "queryRawUnsafe"
	ActionExecuteRaw          Action = "executeRaw"
	ActionExecuteRawUnsafe    Action = "executeRawUnsafe"
)

// IsWrite reports whether the action can change rows.
func (a Action) IsWrite() bool {
	switch a {
	case ActionCreate, ActionCreateMany, ActionCreateManyAndReturn, ActionUpdate, ActionUpdateMany,
		ActionUpdateManyAndReturn, ActionUpsert, ActionDelete, ActionDeleteMany, ActionExecuteRaw, ActionExecuteRawUnsafe:
		return true
	}
	return false
}

// QueryParams describes an operation passing through middleware. Model is empty for raw queries.
type QueryParams struct {
	Model            string
	Action           Action
	Args             any
	RunInTransaction bool
}

type QueryFunc func(ctx context.Context, params QueryParams) (any, error)

// Middleware wraps every operation. It may inspect or replace Args and the result.
type Middleware func(next QueryFunc) QueryFunc

// Use appends middleware. The first registered runs outermost.
func (db *DB) Use(mw ...Middleware) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.middlewares = append(db.middlewares, mw...)
}

func (db *DB) dispatch(ctx context.Context, params QueryParams, final QueryFunc) (any, error) {
	db.mu.RLock()
	chain := db.middlewares
	db.mu.RUnlock()

	next := final
	for i := len(chain) - 1; i >= 0; i-- {
		next = chain[i](next)
	}
	return next(ctx, params)
}

type operationKey struct{}

type operation struct {
	model  string
	action Action
}

func withOperation(ctx context.Context, model string, action Action) context.Context {
	return context.WithValue(ctx, operationKey{}, operation{model: model, action: action})
}

func operationFrom(ctx context.Context) (operation, bool) {
	op, ok := ctx.Value(operationKey{}).(operation)
	return op, ok
}

type upsertOutcomeKey struct{}

type upsertOutcome struct {
	created bool
}

// UpsertCreated reports whether the upsert running with ctx took its create branch. Middleware
// reads it after next returns.
func UpsertCreated(ctx context.Context) bool {
	o, ok := ctx.Value(upsertOutcomeKey{}).(*upsertOutcome)
	return ok && o.created
}

func setUpsertCreated(ctx context.Context, created bool) {
	if o, ok := ctx.Value(upsertOutcomeKey{}).(*upsertOutcome); ok {
		o.created = created
	}
}

// run executes fn for a model operation behind tracing, middleware and metrics.
func run[T any, A any, R any](d *Delegate[T], ctx context.Context, action Action, args A, fn func(context.Context, A) (R, error)) (R, error) {
	return invoke(d.db, ctx, d.model.name, action, args, fn)
}

func invoke[A any, R any](db *DB, ctx context.Context, model string, action Action, args A, fn func(context.Context, A) (R, error)) (R, error) {
	var zero R

	name := "clover." + string(action)
	if model != "" {
		name = "clover." + model + "." + string(action)
	}
	ctx, span := tracing.StartSpan(ctx, name,
		attribute.String("db.system", "postgresql"),
		attribute.String("clover.model", model),
		attribute.String("clover.action", string(action)),
	)
	defer span.End()

	ctx = withOperation(ctx, model, action)
	if action == ActionUpsert {
		ctx = context.WithValue(ctx, upsertOutcomeKey{}, &upsertOutcome{})
	}
	_, inTx := database.TxFromContext(ctx)
	start := time.Now()

	res, err := db.dispatch(ctx, QueryParams{Model: model, Action: action, Args: args, RunInTransaction: inTx},
		func(ctx context.Context, params QueryParams) (any, error) {
			a, ok := params.Args.(A)
			if !ok {
				return nil, validationError("Middleware replaced the arguments of %s.%s with %T", model, action, params.Args)
			}
			return fn(ctx, a)
		})

	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	metrics.QueriesTotal.WithLabelValues(model, string(action), outcome).Inc()
	metrics.QueryDuration.WithLabelValues(model, string(action)).Observe(time.Since(start).Seconds())

	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	r, ok := res.(R)
	if !ok {
		return zero, validationError("Middleware returned %T from %s.%s", res, model, action)
	}
	return r, nil
}
