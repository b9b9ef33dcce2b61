package clover

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Cond is the subset of go-sqlbuilder's condition helpers predicates compile against.
// Select, update and delete builders all satisfy it.
type Cond interface {
	Var(arg any) string
	Equal(field string, value any) string
	NotEqual(field string, value any) string
	GreaterThan(field string, value any) string
	GreaterEqualThan(field string, value any) string
	LessThan(field string, value any) string
	LessEqualThan(field string, value any) string
	In(field string, values ...any) string
	NotIn(field string, values ...any) string
	Like(field string, value any) string
	NotLike(field string, value any) string
	IsNull(field string) string
	IsNotNull(field string) string
}

// whereBuilder carries the builder and the qualifier for the model a predicate is compiled for.
type whereBuilder struct {
	cond  Cond
	alias string
	depth int
}

func newWhere(cond Cond, alias string) *whereBuilder {
	return &whereBuilder{cond: cond, alias: alias}
}

func (w *whereBuilder) col(name string) string {
	return w.alias + "." + name
}

// child returns a builder for a correlated subquery one level deeper.
func (w *whereBuilder) child() *whereBuilder {
	return &whereBuilder{cond: w.cond, alias: fmt.Sprintf("r%d", w.depth+1), depth: w.depth + 1}
}

// Predicate is a compiled filter over model T. A nil Predicate matches every row.
type Predicate[T any] func(w *whereBuilder) string

func (p Predicate[T]) compile(w *whereBuilder) string {
	if p == nil {
		return ""
	}
	return p(w)
}

func compileAll[T any](w *whereBuilder, preds []Predicate[T]) []string {
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		if expr := p.compile(w); expr != "" {
			parts = append(parts, expr)
		}
	}
	return parts
}

// And matches rows satisfying every predicate. And() matches everything.
func And[T any](preds ...Predicate[T]) Predicate[T] {
	return func(w *whereBuilder) string {
		parts := compileAll(w, preds)
		switch len(parts) {
		case 0:
			return "TRUE"
		case 1:
			return parts[0]
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	}
}

// Or matches rows satisfying at least one predicate. Or() matches nothing.
func Or[T any](preds ...Predicate[T]) Predicate[T] {
	return func(w *whereBuilder) string {
		parts := compileAll(w, preds)
		switch len(parts) {
		case 0:
			return "FALSE"
		case 1:
			return parts[0]
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}

// Not matches rows satisfying none of the predicates.
func Not[T any](preds ...Predicate[T]) Predicate[T] {
	return func(w *whereBuilder) string {
		parts := compileAll(w, preds)
		if len(parts) == 0 {
			return "TRUE"
		}
		return "NOT (" + strings.Join(parts, " OR ") + ")"
	}
}

// Column names a scalar column of model T.
type Column[T any] struct {
	name string
}

// ColumnRef is anything that resolves to a column of T, such as a typed field.
type ColumnRef[T any] interface {
	Col() Column[T]
}

func (c Column[T]) Col() Column[T] { return c }

func (c Column[T]) Name() string { return c.name }

func (c Column[T]) Asc() OrderBy[T] { return OrderBy[T]{column: c.name} }

func (c Column[T]) Desc() OrderBy[T] { return OrderBy[T]{column: c.name, desc: true} }

func (c Column[T]) IsNull() Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.IsNull(w.col(c.name)) }
}

func (c Column[T]) IsNotNull() Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.IsNotNull(w.col(c.name)) }
}

// inAny filters on a column without a typed value, used for relation loading.
func (c Column[T]) inAny(values []any) Predicate[T] {
	return func(w *whereBuilder) string {
		if len(values) == 0 {
			return "FALSE"
		}
		return w.cond.In(w.col(c.name), values...)
	}
}

// Field is a column holding values of type V.
type Field[T any, V any] struct {
	Column[T]
}

func newField[T any, V any](name string) Field[T, V] {
	return Field[T, V]{Column: Column[T]{name: name}}
}

func (f Field[T, V]) Equals(v V) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.Equal(w.col(f.name), v) }
}

func (f Field[T, V]) Not(v V) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.NotEqual(w.col(f.name), v) }
}

func (f Field[T, V]) In(values ...V) Predicate[T] {
	return func(w *whereBuilder) string {
		if len(values) == 0 {
			return "FALSE"
		}
		return w.cond.In(w.col(f.name), toAny(values)...)
	}
}

func (f Field[T, V]) NotIn(values ...V) Predicate[T] {
	return func(w *whereBuilder) string {
		if len(values) == 0 {
			return "TRUE"
		}
		return w.cond.NotIn(w.col(f.name), toAny(values)...)
	}
}

func (f Field[T, V]) Lt(v V) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.LessThan(w.col(f.name), v) }
}

func (f Field[T, V]) Lte(v V) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.LessEqualThan(w.col(f.name), v) }
}

func (f Field[T, V]) Gt(v V) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.GreaterThan(w.col(f.name), v) }
}

func (f Field[T, V]) Gte(v V) Predicate[T] {
	return func(w *whereBuilder) string { return w.cond.GreaterEqualThan(w.col(f.name), v) }
}

// StringField adds pattern matching to a text column.
type StringField[T any] struct {
	Field[T, string]
}

func newStringField[T any](name string) StringField[T] {
	return StringField[T]{Field: newField[T, string](name)}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (f StringField[T]) like(pattern string, fold bool) Predicate[T] {
	return func(w *whereBuilder) string {
		if fold {
			return fmt.Sprintf("%s ILIKE %s", w.col(f.name), w.cond.Var(pattern))
		}
		return w.cond.Like(w.col(f.name), pattern)
	}
}

func (f StringField[T]) Contains(s string) Predicate[T] {
	return f.like("%"+likeEscaper.Replace(s)+"%", false)
}

func (f StringField[T]) StartsWith(s string) Predicate[T] {
	return f.like(likeEscaper.Replace(s)+"%", false)
}

func (f StringField[T]) EndsWith(s string) Predicate[T] {
	return f.like("%"+likeEscaper.Replace(s), false)
}

// EqualsFold compares case-insensitively.
func (f StringField[T]) EqualsFold(s string) Predicate[T] {
	return f.like(likeEscaper.Replace(s), true)
}

func (f StringField[T]) ContainsFold(s string) Predicate[T] {
	return f.like("%"+likeEscaper.Replace(s)+"%", true)
}

func (f StringField[T]) StartsWithFold(s string) Predicate[T] {
	return f.like(likeEscaper.Replace(s)+"%", true)
}

func (f StringField[T]) EndsWithFold(s string) Predicate[T] {
	return f.like("%"+likeEscaper.Replace(s), true)
}

// JSONField filters a jsonb column.
type JSONField[T any] struct {
	Column[T]
}

func newJSONField[T any](name string) JSONField[T] {
	return JSONField[T]{Column: Column[T]{name: name}}
}

func (f JSONField[T]) jsonb(w *whereBuilder, v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte("null")
	}
	return w.cond.Var(string(b)) + "::jsonb"
}

// Equals matches the whole document.
func (f JSONField[T]) Equals(v any) Predicate[T] {
	return func(w *whereBuilder) string { return fmt.Sprintf("%s = %s", w.col(f.name), f.jsonb(w, v)) }
}

// Contains matches documents containing v (jsonb @>).
func (f JSONField[T]) Contains(v any) Predicate[T] {
	return func(w *whereBuilder) string { return fmt.Sprintf("%s @> %s", w.col(f.name), f.jsonb(w, v)) }
}

// ArrayContains matches array documents holding every value.
func (f JSONField[T]) ArrayContains(values ...any) Predicate[T] {
	if values == nil {
		values = []any{}
	}
	return f.Contains(values)
}

// HasKey matches objects with a top level key.
func (f JSONField[T]) HasKey(key string) Predicate[T] {
	return func(w *whereBuilder) string { return fmt.Sprintf("jsonb_exists(%s, %s)", w.col(f.name), w.cond.Var(key)) }
}

// PathEquals matches documents whose value at path equals v.
func (f JSONField[T]) PathEquals(path []string, v any) Predicate[T] {
	return func(w *whereBuilder) string {
		return fmt.Sprintf("%s #> %s::text[] = %s", w.col(f.name), w.cond.Var(pq.Array(path)), f.jsonb(w, v))
	}
}

// PathIn matches documents whose value at path is one of values.
func (f JSONField[T]) PathIn(path []string, values ...any) Predicate[T] {
	return func(w *whereBuilder) string {
		if len(values) == 0 {
			return "FALSE"
		}
		target := fmt.Sprintf("%s #> %s::text[]", w.col(f.name), w.cond.Var(pq.Array(path)))
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, fmt.Sprintf("%s = %s", target, f.jsonb(w, v)))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}

// PathExists matches documents with any value at path.
func (f JSONField[T]) PathExists(path []string) Predicate[T] {
	return func(w *whereBuilder) string {
		return fmt.Sprintf("%s #> %s::text[] IS NOT NULL", w.col(f.name), w.cond.Var(pq.Array(path)))
	}
}

// PathCompare compares the text value at path using a numeric cast. op is one of < <= > >=.
func (f JSONField[T]) PathCompare(path []string, op string, v float64) Predicate[T] {
	switch op {
	case "<", "<=", ">", ">=":
	default:
		op = "="
	}
	return func(w *whereBuilder) string {
		return fmt.Sprintf("(%s #>> %s::text[])::numeric %s %s", w.col(f.name), w.cond.Var(pq.Array(path)), op, w.cond.Var(v))
	}
}

func toAny[V any](values []V) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
