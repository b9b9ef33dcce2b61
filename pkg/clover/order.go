package clover

import (
	"fmt"
	"strings"
)

// NullsOrder places NULL values first or last.
type NullsOrder string

const (
	NullsDefault NullsOrder = ""
	NullsFirst   NullsOrder = "NULLS FIRST"
	NullsLast    NullsOrder = "NULLS LAST"
)

// OrderBy sorts by a column or, in GroupBy, by an aggregate.
type OrderBy[T any] struct {
	column    string
	aggregate string
	desc      bool
	nulls     NullsOrder
}

func (o OrderBy[T]) NullsFirst() OrderBy[T] {
	o.nulls = NullsFirst
	return o
}

func (o OrderBy[T]) NullsLast() OrderBy[T] {
	o.nulls = NullsLast
	return o
}

func (o OrderBy[T]) reversed() OrderBy[T] {
	o.desc = !o.desc
	switch o.nulls {
	case NullsFirst:
		o.nulls = NullsLast
	case NullsLast:
		o.nulls = NullsFirst
	}
	return o
}

func (o OrderBy[T]) expr(alias string) string {
	if o.aggregate != "" {
		return aggregateSQL(o.aggregate, o.column, alias)
	}
	return alias + "." + o.column
}

func (o OrderBy[T]) clause(alias string) string {
	parts := []string{o.expr(alias)}
	if o.desc {
		parts = append(parts, "DESC")
	} else {
		parts = append(parts, "ASC")
	}
	if o.nulls != NullsDefault {
		parts = append(parts, string(o.nulls))
	}
	return strings.Join(parts, " ")
}

const countAllColumn = "_all"

func aggregateSQL(fn, column, alias string) string {
	if column == countAllColumn {
		return "COUNT(*)"
	}
	switch fn {
	case "avg":
		return fmt.Sprintf("AVG(%s.%s)::float8", alias, column)
	case "sum":
		return fmt.Sprintf("SUM(%s.%s)", alias, column)
	case "min":
		return fmt.Sprintf("MIN(%s.%s)", alias, column)
	case "max":
		return fmt.Sprintf("MAX(%s.%s)", alias, column)
	default:
		return fmt.Sprintf("COUNT(%s.%s)", alias, column)
	}
}

// AggregateExpr is an aggregate over a column, usable in GroupBy Having and OrderBy.
type AggregateExpr[T any] struct {
	fn     string
	column string
}

// CountAll is COUNT(*).
func CountAll[T any]() AggregateExpr[T] {
	return AggregateExpr[T]{fn: "count", column: countAllColumn}
}

func Count[T any](c ColumnRef[T]) AggregateExpr[T] {
	return AggregateExpr[T]{fn: "count", column: c.Col().name}
}

func Avg[T any](c ColumnRef[T]) AggregateExpr[T] {
	return AggregateExpr[T]{fn: "avg", column: c.Col().name}
}

func Sum[T any](c ColumnRef[T]) AggregateExpr[T] {
	return AggregateExpr[T]{fn: "sum", column: c.Col().name}
}

func Min[T any](c ColumnRef[T]) AggregateExpr[T] {
	return AggregateExpr[T]{fn: "min", column: c.Col().name}
}

func Max[T any](c ColumnRef[T]) AggregateExpr[T] {
	return AggregateExpr[T]{fn: "max", column: c.Col().name}
}

func (a AggregateExpr[T]) sql(w *whereBuilder) string {
	return aggregateSQL(a.fn, a.column, w.alias)
}

func (a AggregateExpr[T]) Asc() OrderBy[T] {
	return OrderBy[T]{column: a.column, aggregate: a.fn}
}

func (a AggregateExpr[T]) Desc() OrderBy[T] {
	return OrderBy[T]{column: a.column, aggregate: a.fn, desc: true}
}

func (a AggregateExpr[T]) Equals(v any) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.Equal(a.sql(w), v) }
}

func (a AggregateExpr[T]) Not(v any) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.NotEqual(a.sql(w), v) }
}

func (a AggregateExpr[T]) Gt(v any) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.GreaterThan(a.sql(w), v) }
}

func (a AggregateExpr[T]) Gte(v any) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.GreaterEqualThan(a.sql(w), v) }
}

func (a AggregateExpr[T]) Lt(v any) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.LessThan(a.sql(w), v) }
}

func (a AggregateExpr[T]) Lte(v any) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.LessEqualThan(a.sql(w), v) }
}

func (c Column[T]) Count() AggregateExpr[T] { return AggregateExpr[T]{fn: "count", column: c.name} }

func (c Column[T]) Avg() AggregateExpr[T] { return AggregateExpr[T]{fn: "avg", column: c.name} }

func (c Column[T]) Sum() AggregateExpr[T] { return AggregateExpr[T]{fn: "sum", column: c.name} }

func (c Column[T]) Min() AggregateExpr[T] { return AggregateExpr[T]{fn: "min", column: c.name} }

func (c Column[T]) Max() AggregateExpr[T] { return AggregateExpr[T]{fn: "max", column: c.name} }
