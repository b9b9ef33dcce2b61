package clover

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/clover/pkg/database"
)

const subqueryAlias = "sub"

type aggSelect struct {
	fn     string
	column string
}

// alias names the result column, e.g. _avg__duration_minutes or _count___all.
func (a aggSelect) alias() string {
	return "_" + a.fn + "__" + a.column
}

func (a aggSelect) expr(alias string) string {
	return aggregateSQL(a.fn, a.column, alias) + " AS " + a.alias()
}

func (a Aggregations[T]) list(m *model[T]) ([]aggSelect, error) {
	var out []aggSelect
	if a.CountAll {
		out = append(out, aggSelect{fn: "count", column: countAllColumn})
	}

	groups := []struct {
		fn      string
		refs    []ColumnRef[T]
		numeric bool
	}{
		{"count", a.Count, false},
		{"avg", a.Avg, true},
		{"sum", a.Sum, true},
		{"min", a.Min, false},
		{"max", a.Max, false},
	}
	for _, g := range groups {
		for _, name := range columnNames(g.refs) {
			if !m.hasColumn(name) {
				return nil, unknownField(m.name, name)
			}
			if g.numeric && !m.isNumeric(name) {
				return nil, validationError("Field `%s` of model %s is not numeric and cannot be used in _%s.", name, m.name, g.fn)
			}
			out = append(out, aggSelect{fn: g.fn, column: name})
		}
	}
	return out, nil
}

func (d *Delegate[T]) Aggregate(ctx context.Context, args AggregateArgs[T]) (AggregateResult, error) {
	return run(d, ctx, ActionAggregate, args, d.aggregate)
}

func (d *Delegate[T]) GroupBy(ctx context.Context, args GroupByArgs[T]) ([]GroupByResult, error) {
	return run(d, ctx, ActionGroupBy, args, d.groupBy)
}

func (d *Delegate[T]) aggregate(ctx context.Context, args AggregateArgs[T]) (AggregateResult, error) {
	aggs, err := args.Aggregations.list(d.model)
	if err != nil {
		return AggregateResult{}, err
	}
	if len(aggs) == 0 {
		return AggregateResult{}, validationError("Aggregate requires at least one aggregation.")
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
		return AggregateResult{}, err
	}
	return parseAggregates(row, aggs), nil
}

// aggregateRow computes aggs over the table, or over the paginated window as a subquery.
func (d *Delegate[T]) aggregateRow(ctx context.Context, win windowArgs[T], aggs []aggSelect) (map[string]any, error) {
	table := d.model.table

	var (
		query string
		args  []any
	)
	if win.bounded() {
		cols := []string{}
		for _, a := range aggs {
			if a.column != countAllColumn && !slices.Contains(cols, a.column) {
				cols = append(cols, a.column)
			}
		}
		if len(cols) == 0 {
			cols = append(cols, "id")
		}

		inner, found, err := d.windowQuery(ctx, win, cols)
		if err != nil {
			return nil, err
		}
		if !found {
			return map[string]any{}, nil
		}

		outer := database.NewSelectBuilder()
		outer.Select(ectolinq.Map(aggs, func(a aggSelect) string { return a.expr(subqueryAlias) })...).
			From(outer.BuilderAs(inner.SelectBuilder, subqueryAlias))
		query, args = outer.Build()
	} else {
		sb := database.NewSelectBuilder()
		sb.Select(ectolinq.Map(aggs, func(a aggSelect) string { return a.expr(table) })...).From(table)
		conds, err := d.conditions(ctx, newWhere(sb, table), win.where)
		if err != nil {
			return nil, err
		}
		if len(conds) > 0 {
			sb.Where(conds...)
		}
		query, args = sb.Build()
	}

	rows, err := d.db.queryMaps(ctx, d.model.name, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[string]any{}, nil
	}
	return rows[0], nil
}

func (d *Delegate[T]) groupBy(ctx context.Context, args GroupByArgs[T]) ([]GroupByResult, error) {
	by := columnNames(args.By)
	if len(by) == 0 {
		return nil, validationError("Argument `by` is missing.")
	}
	for _, name := range by {
		if !d.model.hasColumn(name) {
			return nil, unknownField(d.model.name, name)
		}
	}

	for _, o := range args.OrderBy {
		if o.aggregate == "" && !slices.Contains(by, o.column) {
			return nil, validationError("Every field used for `orderBy` must be included in the `by`-arguments of the query. Missing fields: %s", o.column)
		}
		if o.aggregate != "" && o.column != countAllColumn && !d.model.hasColumn(o.column) {
			return nil, unknownField(d.model.name, o.column)
		}
	}
	if (args.Take != 0 || args.Skip != 0) && len(args.OrderBy) == 0 {
		return nil, validationError("Argument `orderBy` is required when using `take` or `skip` with groupBy.")
	}
	if args.Skip < 0 {
		return nil, validationError("Invalid value for skip argument: Value can only be positive, found: %d", args.Skip)
	}

	aggs, err := args.Aggregations.list(d.model)
	if err != nil {
		return nil, err
	}

	table := d.model.table
	grouped := qualify(table, by)

	sb := database.NewSelectBuilder()
	sb.Select(append(slices.Clone(grouped), ectolinq.Map(aggs, func(a aggSelect) string { return a.expr(table) })...)...).
		From(table)

	w := newWhere(sb, table)
	conds, err := d.conditions(ctx, w, args.Where)
	if err != nil {
		return nil, err
	}
	if len(conds) > 0 {
		sb.Where(conds...)
	}
	sb.GroupBy(grouped...)
	if having := args.Having.compile(w); having != "" {
		sb.Having(having)
	}

	backwards := args.Take < 0
	if len(args.OrderBy) > 0 {
		sb.OrderBy(ectolinq.Map(args.OrderBy, func(o OrderBy[T]) string {
			if backwards {
				o = o.reversed()
			}
			return o.clause(table)
		})...)
	}
	if args.Take != 0 {
		sb.Limit(abs(args.Take))
	}
	if args.Skip > 0 {
		sb.Offset(args.Skip)
	}

	query, queryArgs := sb.Build()
	rows, err := d.db.queryMaps(ctx, d.model.name, query, queryArgs)
	if err != nil {
		return nil, err
	}

	results := make([]GroupByResult, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]any, len(by))
		for _, name := range by {
			fields[name] = row[name]
		}
		results = append(results, GroupByResult{Fields: fields, AggregateResult: parseAggregates(row, aggs)})
	}
	if backwards {
		slices.Reverse(results)
	}
	return results, nil
}

func parseAggregates(row map[string]any, aggs []aggSelect) AggregateResult {
	res := AggregateResult{
		Count: map[string]int64{},
		Avg:   map[string]*float64{},
		Sum:   map[string]any{},
		Min:   map[string]any{},
		Max:   map[string]any{},
	}
	for _, a := range aggs {
		v := row[a.alias()]
		switch a.fn {
		case "count":
			res.Count[a.column] = toInt64(v)
		case "avg":
			res.Avg[a.column] = toFloatPtr(v)
		case "sum":
			res.Sum[a.column] = v
		case "min":
			res.Min[a.column] = v
		case "max":
			res.Max[a.column] = v
		}
	}
	return res
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i
	}
	return 0
}

func toFloatPtr(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
