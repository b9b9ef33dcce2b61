package clover

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/jmoiron/sqlx/reflectx"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
)

// Delegate exposes the operations of one model.
type Delegate[T any] struct {
	db    *DB
	model *model[T]
}

// Name is the model name, as reported in QueryParams.Model.
func (d *Delegate[T]) Name() string {
	return d.model.name
}

// Table is the table the model is stored in.
func (d *Delegate[T]) Table() string {
	return d.model.table
}

func (d *Delegate[T]) FindUnique(ctx context.Context, args FindUniqueArgs[T]) (*T, error) {
	return run(d, ctx, ActionFindUnique, args, d.findUnique)
}

// FindUniqueOrThrow is FindUnique returning a P2025 error on a miss.
func (d *Delegate[T]) FindUniqueOrThrow(ctx context.Context, args FindUniqueArgs[T]) (*T, error) {
	return run(d, ctx, ActionFindUniqueOrThrow, args, func(ctx context.Context, args FindUniqueArgs[T]) (*T, error) {
		row, err := d.findUnique(ctx, args)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, notFoundError(d.model.name, "Expected a record, found none.")
		}
		return row, nil
	})
}

func (d *Delegate[T]) FindFirst(ctx context.Context, args FindFirstArgs[T]) (*T, error) {
	return run(d, ctx, ActionFindFirst, args, d.findFirst)
}

// FindFirstOrThrow is FindFirst returning a P2025 error on a miss.
func (d *Delegate[T]) FindFirstOrThrow(ctx context.Context, args FindFirstArgs[T]) (*T, error) {
	return run(d, ctx, ActionFindFirstOrThrow, args, func(ctx context.Context, args FindFirstArgs[T]) (*T, error) {
		row, err := d.findFirst(ctx, args)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, notFoundError(d.model.name, "Expected a record, found none.")
		}
		return row, nil
	})
}

func (d *Delegate[T]) FindMany(ctx context.Context, args FindManyArgs[T]) ([]T, error) {
	return run(d, ctx, ActionFindMany, args, d.findMany)
}

// Count returns the number of rows in the window described by args.
func (d *Delegate[T]) Count(ctx context.Context, args CountArgs[T]) (int64, error) {
	return run(d, ctx, ActionCount, args, func(ctx context.Context, args CountArgs[T]) (int64, error) {
		args.Select = nil
		counts, err := d.count(ctx, args)
		if err != nil {
			return 0, err
		}
		return counts[countAllColumn], nil
	})
}

// CountFields counts non-null values of each selected column. "_all" holds the row count.
func (d *Delegate[T]) CountFields(ctx context.Context, args CountArgs[T]) (map[string]int64, error) {
	return run(d, ctx, ActionCount, args, d.count)
}

func (d *Delegate[T]) findUnique(ctx context.Context, args FindUniqueArgs[T]) (*T, error) {
	pred, err := d.unique(args.Where)
	if err != nil {
		return nil, err
	}

	rows, err := d.findMany(ctx, FindManyArgs[T]{
		Where:   pred,
		Take:    1,
		Select:  args.Select,
		Omit:    args.Omit,
		Include: args.Include,
		Cache:   args.Cache,
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (d *Delegate[T]) findFirst(ctx context.Context, args FindFirstArgs[T]) (*T, error) {
	if args.Take >= 0 {
		args.Take = 1
	} else {
		args.Take = -1
	}
	rows, err := d.findMany(ctx, args)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (d *Delegate[T]) findMany(ctx context.Context, args FindManyArgs[T]) ([]T, error) {
	if args.Skip < 0 {
		return nil, validationError("Invalid value for skip argument: Value can only be positive, found: %d", args.Skip)
	}

	cols, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}

	distinct := columnNames(args.Distinct)
	for _, name := range distinct {
		if !d.model.hasColumn(name) {
			return nil, unknownField(d.model.name, name)
		}
		if !slices.Contains(cols, name) {
			cols = append(cols, name)
		}
	}

	win := windowArgs[T]{
		where:     args.Where,
		orderBy:   args.OrderBy,
		cursor:    args.Cursor,
		take:      abs(args.Take),
		skip:      args.Skip,
		backwards: args.Take < 0,
	}
	if len(distinct) > 0 {
		win.take, win.skip = 0, 0
	}

	sb, found, err := d.windowQuery(ctx, win, cols)
	if err != nil {
		return nil, err
	}
	if !found {
		return []T{}, nil
	}

	query, queryArgs := sb.Build()
	rows := []T{}
	err = d.db.cached(ctx, d.model.name, args.Cache, query, queryArgs, &rows, func() error {
		return d.db.selectRows(ctx, d.model.name, &rows, query, queryArgs)
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}

	if len(distinct) > 0 {
		rows = page(distinctBy(rows, distinct), args.Skip, abs(args.Take))
	}
	if win.backwards {
		slices.Reverse(rows)
	}

	if err := loadIncludes(ctx, d.db, rows, args.Include); err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *Delegate[T]) count(ctx context.Context, args CountArgs[T]) (map[string]int64, error) {
	aggs := []aggSelect{{fn: "count", column: countAllColumn}}
	for _, name := range columnNames(args.Select) {
		if !d.model.hasColumn(name) {
			return nil, unknownField(d.model.name, name)
		}
		aggs = append(aggs, aggSelect{fn: "count", column: name})
	}

	row, err := d.aggregateRow(ctx, windowArgs[T]{
		where:     args.Where,
		orderBy:   args.OrderBy,
		cursor:    args.Cursor,
		take:      abs(args.Take),
		skip:      args.Skip,
		backwards: args.Take < 0,
	}, aggs)
	if err != nil {
		return nil, err
	}
	return parseAggregates(row, aggs).Count, nil
}

// unique validates a unique input and returns its predicate.
func (d *Delegate[T]) unique(where Unique[T]) (Predicate[T], error) {
	if where == nil || reflect.ValueOf(where).Kind() == reflect.Ptr && reflect.ValueOf(where).IsNil() {
		return nil, validationError("Argument `where` of type %sWhereUniqueInput is needed.", d.model.name)
	}
	return where.uniquePredicate()
}

// scope returns the tenant filter for ctx, or nil when isolation is off or ctx has no tenant.
func (d *Delegate[T]) scope(ctx context.Context) (Predicate[T], error) {
	if !d.db.opts.TenantIsolation || d.model.scope == nil {
		return nil, nil
	}
	tenantID, ok, err := appctx.TenantUUID(ctx)
	if err != nil {
		return nil, validationError("Invalid tenant id in context: %v", err)
	}
	if !ok {
		return nil, nil
	}
	return d.model.scope(tenantID), nil
}

// conditions compiles the tenant scope and preds into WHERE expressions.
func (d *Delegate[T]) conditions(ctx context.Context, w *whereBuilder, preds ...Predicate[T]) ([]string, error) {
	scope, err := d.scope(ctx)
	if err != nil {
		return nil, err
	}
	return compileAll(w, append([]Predicate[T]{scope}, preds...)), nil
}

// projection resolves the columns fetched for a result.
func (d *Delegate[T]) projection(sel, omit []ColumnRef[T], include []Include[T]) ([]string, error) {
	if len(sel) > 0 && len(omit) > 0 {
		return nil, validationError("Please either use `select` or `omit`, not both at the same time.")
	}
	if len(sel) > 0 && len(include) > 0 {
		return nil, validationError("Please either use `include` or `select`, but not both at the same time.")
	}

	var cols []string
	if len(sel) > 0 {
		for _, name := range columnNames(sel) {
			if !d.model.hasColumn(name) {
				return nil, unknownField(d.model.name, name)
			}
			if !slices.Contains(cols, name) {
				cols = append(cols, name)
			}
		}
		return cols, nil
	}

	omitted := columnNames(omit)
	for _, name := range omitted {
		if !d.model.hasColumn(name) {
			return nil, unknownField(d.model.name, name)
		}
	}
	global := d.db.opts.Omit[d.model.name]
	cols = ectolinq.Filter(d.model.columns, func(name string) bool {
		return !slices.Contains(omitted, name) && !slices.Contains(global, name)
	})
	for _, key := range includeKeys(include) {
		if !slices.Contains(cols, key) {
			cols = append(cols, key)
		}
	}
	if len(cols) == 0 {
		return nil, validationError("The query for model %s does not select any field.", d.model.name)
	}
	return cols, nil
}

type windowArgs[T any] struct {
	where     Predicate[T]
	orderBy   []OrderBy[T]
	cursor    Unique[T]
	take      int
	skip      int
	backwards bool
}

func (w windowArgs[T]) bounded() bool {
	return w.take != 0 || w.skip != 0 || w.cursor != nil
}

// orderings validates the order list, adds an id tie-breaker for cursors and reverses it when paging backwards.
func (d *Delegate[T]) orderings(in []OrderBy[T], tieBreak, backwards bool) ([]OrderBy[T], error) {
	orders := make([]OrderBy[T], 0, len(in)+1)
	hasID := false
	for _, o := range in {
		if o.aggregate != "" {
			return nil, validationError("Ordering by an aggregate is only supported in groupBy.")
		}
		if !d.model.hasColumn(o.column) {
			return nil, unknownField(d.model.name, o.column)
		}
		hasID = hasID || o.column == "id"
		orders = append(orders, o)
	}
	if tieBreak && !hasID {
		orders = append(orders, OrderBy[T]{column: "id"})
	}
	if backwards {
		for i := range orders {
			orders[i] = orders[i].reversed()
		}
	}
	return orders, nil
}

// windowQuery builds the SELECT for a filtered, ordered and paginated window.
// found is false when the cursor record does not exist.
func (d *Delegate[T]) windowQuery(ctx context.Context, win windowArgs[T], cols []string) (*database.SelectBuilder, bool, error) {
	if win.skip < 0 {
		return nil, false, validationError("Invalid value for skip argument: Value can only be positive, found: %d", win.skip)
	}

	orders, err := d.orderings(win.orderBy, win.cursor != nil || win.backwards, win.backwards)
	if err != nil {
		return nil, false, err
	}

	table := d.model.table
	sb := database.NewSelectBuilder()
	sb.Select(qualify(table, cols)...).From(table)
	w := newWhere(sb, table)

	conds, err := d.conditions(ctx, w, win.where)
	if err != nil {
		return nil, false, err
	}
	if win.cursor != nil {
		cond, found, err := d.cursorCondition(ctx, w, win.cursor, orders)
		if err != nil || !found {
			return nil, false, err
		}
		conds = append(conds, cond)
	}

	if len(conds) > 0 {
		sb.Where(conds...)
	}
	if len(orders) > 0 {
		sb.OrderBy(ectolinq.Map(orders, func(o OrderBy[T]) string { return o.clause(table) })...)
	}
	if win.take > 0 {
		sb.Limit(win.take)
	}
	if win.skip > 0 {
		sb.Offset(win.skip)
	}
	return sb, true, nil
}

// cursorCondition fetches the cursor record's order values and returns a condition selecting
// rows at or after it in the given order.
func (d *Delegate[T]) cursorCondition(ctx context.Context, w *whereBuilder, cursor Unique[T], orders []OrderBy[T]) (string, bool, error) {
	pred, err := d.unique(cursor)
	if err != nil {
		return "", false, err
	}

	cols := make([]string, 0, len(orders))
	for _, o := range orders {
		if !slices.Contains(cols, o.column) {
			cols = append(cols, o.column)
		}
	}

	table := d.model.table
	csb := database.NewSelectBuilder()
	csb.Select(qualify(table, cols)...).From(table)
	conds, err := d.conditions(ctx, newWhere(csb, table), pred)
	if err != nil {
		return "", false, err
	}
	if len(conds) > 0 {
		csb.Where(conds...)
	}
	csb.Limit(1)

	query, args := csb.Build()
	rows, err := d.db.queryMaps(ctx, d.model.name, query, args)
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	values := rows[0]

	ors := make([]string, 0, len(orders))
	for i, o := range orders {
		ands := make([]string, 0, i+1)
		for _, prev := range orders[:i] {
			ands = append(ands, equalOrNull(w, prev.column, values[prev.column]))
		}
		ands = append(ands, afterCursor(w, o, values[o.column], i == len(orders)-1))
		ors = append(ors, joinAnd(ands))
	}
	if len(ors) == 1 {
		return ors[0], true, nil
	}
	return "(" + strings.Join(ors, " OR ") + ")", true, nil
}

func equalOrNull(w *whereBuilder, column string, value any) string {
	if value == nil {
		return w.cond.IsNull(w.col(column))
	}
	return w.cond.Equal(w.col(column), value)
}

// afterCursor compares a column against the cursor value, honouring PostgreSQL null placement.
func afterCursor[T any](w *whereBuilder, o OrderBy[T], value any, inclusive bool) string {
	col := w.col(o.column)
	nullsLast := o.nulls == NullsLast || (o.nulls == NullsDefault && !o.desc)

	if value == nil {
		switch {
		case inclusive && nullsLast:
			return w.cond.IsNull(col)
		case inclusive:
			return "TRUE"
		case nullsLast:
			return "FALSE"
		default:
			return w.cond.IsNotNull(col)
		}
	}

	var expr string
	switch {
	case o.desc && inclusive:
		expr = w.cond.LessEqualThan(col, value)
	case o.desc:
		expr = w.cond.LessThan(col, value)
	case inclusive:
		expr = w.cond.GreaterEqualThan(col, value)
	default:
		expr = w.cond.GreaterThan(col, value)
	}
	if nullsLast {
		return fmt.Sprintf("(%s OR %s)", expr, w.cond.IsNull(col))
	}
	return expr
}

var fieldMapper = reflectx.NewMapperFunc("db", strings.ToLower)

// distinctBy keeps the first row of each combination of column values.
func distinctBy[T any](rows []T, columns []string) []T {
	seen := make(map[string]struct{}, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v := reflect.ValueOf(&row).Elem()
		parts := make([]string, len(columns))
		for i, c := range columns {
			parts[i] = fmt.Sprintf("%v", fieldMapper.FieldByName(v, c).Interface())
		}
		key := strings.Join(parts, "\x00")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}

// page applies skip then take. A negative take keeps the last rows.
func page[T any](rows []T, skip, take int) []T {
	if skip > 0 {
		if skip >= len(rows) {
			return rows[:0]
		}
		rows = rows[skip:]
	}
	switch {
	case take > 0 && take < len(rows):
		rows = rows[:take]
	case take < 0 && -take < len(rows):
		rows = rows[len(rows)+take:]
	}
	return rows
}

func qualify(alias string, cols []string) []string {
	return ectolinq.Map(cols, func(c string) string { return alias + "." + c })
}

func joinAnd(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func unknownField(model, field string) *ValidationError {
	return validationError("Unknown field `%s` for model `%s`.", field, model)
}
