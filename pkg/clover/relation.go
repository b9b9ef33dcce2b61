package clover

import (
	"context"
	"fmt"
	"slices"

	"github.com/Gobusters/ectolinq"
)

// Include loads a relation of T onto already fetched records.
type Include[T any] interface {
	// key is the parent column the loader joins on; it is always fetched.
	key() string
	load(ctx context.Context, db *DB, parents []T) error
}

// IncludeArgs shapes the children loaded through a list relation.
type IncludeArgs[C any] struct {
	Where   Predicate[C]
	OrderBy []OrderBy[C]
	// Take and Skip apply per parent.
	Take    int
	Skip    int
	Select  []ColumnRef[C]
	Omit    []ColumnRef[C]
	Include []Include[C]
}

// IncludeOneArgs shapes the record loaded through a single relation.
type IncludeOneArgs[C any] struct {
	Select  []ColumnRef[C]
	Omit    []ColumnRef[C]
	Include []Include[C]
}

// ListRelation is a one-to-many relation from P to C.
type ListRelation[P any, C any] struct {
	table    string
	childKey string
	parentID func(p *P) any
	childRef func(c *C) any
	set      func(p *P, children []C)
	delegate func(db *DB) *Delegate[C]
}

func listRelation[P any, C any](table, childKey string, parentID func(*P) any, childRef func(*C) any,
	set func(*P, []C), delegate func(*DB) *Delegate[C]) ListRelation[P, C] {
	return ListRelation[P, C]{
		table:    table,
		childKey: childKey,
		parentID: parentID,
		childRef: childRef,
		set:      set,
		delegate: delegate,
	}
}

func (r ListRelation[P, C]) exists(pred Predicate[C], negate bool) Predicate[P] {
	return func(w *whereBuilder) string {
		cw := w.child()
		conds := []string{fmt.Sprintf("%s = %s", cw.col(r.childKey), w.col("id"))}
		if expr := pred.compile(cw); expr != "" {
			if negate {
				expr = "NOT (" + expr + ")"
			}
			conds = append(conds, expr)
		}
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", r.table, cw.alias, joinAnd(conds))
	}
}

// Some matches parents with at least one child satisfying pred.
func (r ListRelation[P, C]) Some(pred Predicate[C]) Predicate[P] {
	return r.exists(pred, false)
}

// Every matches parents whose children all satisfy pred, including parents without children.
func (r ListRelation[P, C]) Every(pred Predicate[C]) Predicate[P] {
	if pred == nil {
		return func(w *whereBuilder) string { return "TRUE" }
	}
	inner := r.exists(pred, true)
	return func(w *whereBuilder) string { return "NOT " + inner(w) }
}

// None matches parents without any child satisfying pred.
func (r ListRelation[P, C]) None(pred Predicate[C]) Predicate[P] {
	inner := r.exists(pred, false)
	return func(w *whereBuilder) string { return "NOT " + inner(w) }
}

// Include loads the relation. At most one IncludeArgs is used.
func (r ListRelation[P, C]) Include(args ...IncludeArgs[C]) Include[P] {
	var a IncludeArgs[C]
	if len(args) > 0 {
		a = args[0]
	}
	return listInclude[P, C]{rel: r, args: a}
}

type listInclude[P any, C any] struct {
	rel  ListRelation[P, C]
	args IncludeArgs[C]
}

func (i listInclude[P, C]) key() string { return "id" }

func (i listInclude[P, C]) load(ctx context.Context, db *DB, parents []P) error {
	if len(parents) == 0 {
		return nil
	}

	keys := uniqueKeys(parents, i.rel.parentID)
	childKey := Column[C]{name: i.rel.childKey}

	sel := i.args.Select
	if len(sel) > 0 && !slices.Contains(columnNames(sel), i.rel.childKey) {
		sel = append(slices.Clone(sel), ColumnRef[C](childKey))
	}
	omit := ectolinq.Filter(i.args.Omit, func(c ColumnRef[C]) bool { return c.Col().name != i.rel.childKey })

	children, err := i.rel.delegate(db).findMany(ctx, FindManyArgs[C]{
		Where:   And(childKey.inAny(keys), i.args.Where),
		OrderBy: i.args.OrderBy,
		Select:  sel,
		Omit:    omit,
		Include: i.args.Include,
	})
	if err != nil {
		return err
	}

	grouped := make(map[any][]C, len(keys))
	for _, c := range children {
		k := i.rel.childRef(&c)
		grouped[k] = append(grouped[k], c)
	}

	for idx := range parents {
		group := page(grouped[i.rel.parentID(&parents[idx])], i.args.Skip, i.args.Take)
		if group == nil {
			group = []C{}
		}
		i.rel.set(&parents[idx], group)
	}
	return nil
}

// OneRelation is a relation from P to the single C its foreign key points at.
type OneRelation[P any, C any] struct {
	table      string
	localKey   string
	foreignKey string
	parentRef  func(p *P) any
	childKey   func(c *C) any
	set        func(p *P, child *C)
	delegate   func(db *DB) *Delegate[C]
}

func oneRelation[P any, C any](table, localKey string, parentRef func(*P) any, childKey func(*C) any,
	set func(*P, *C), delegate func(*DB) *Delegate[C]) OneRelation[P, C] {
	return OneRelation[P, C]{
		table:      table,
		localKey:   localKey,
		foreignKey: "id",
		parentRef:  parentRef,
		childKey:   childKey,
		set:        set,
		delegate:   delegate,
	}
}

func (r OneRelation[P, C]) exists(pred Predicate[C]) Predicate[P] {
	return func(w *whereBuilder) string {
		cw := w.child()
		conds := []string{fmt.Sprintf("%s = %s", cw.col(r.foreignKey), w.col(r.localKey))}
		if expr := pred.compile(cw); expr != "" {
			conds = append(conds, expr)
		}
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", r.table, cw.alias, joinAnd(conds))
	}
}

// Is matches records whose related record satisfies pred.
func (r OneRelation[P, C]) Is(pred Predicate[C]) Predicate[P] {
	return r.exists(pred)
}

// IsNot matches records whose related record is missing or fails pred.
func (r OneRelation[P, C]) IsNot(pred Predicate[C]) Predicate[P] {
	inner := r.exists(pred)
	return func(w *whereBuilder) string { return "NOT " + inner(w) }
}

func (r OneRelation[P, C]) Include(args ...IncludeOneArgs[C]) Include[P] {
	var a IncludeOneArgs[C]
	if len(args) > 0 {
		a = args[0]
	}
	return oneInclude[P, C]{rel: r, args: a}
}

type oneInclude[P any, C any] struct {
	rel  OneRelation[P, C]
	args IncludeOneArgs[C]
}

func (i oneInclude[P, C]) key() string { return i.rel.localKey }

func (i oneInclude[P, C]) load(ctx context.Context, db *DB, parents []P) error {
	keys := uniqueKeys(parents, i.rel.parentRef)
	if len(keys) == 0 {
		return nil
	}

	sel := i.args.Select
	if len(sel) > 0 && !slices.Contains(columnNames(sel), i.rel.foreignKey) {
		sel = append(slices.Clone(sel), ColumnRef[C](Column[C]{name: i.rel.foreignKey}))
	}
	omit := ectolinq.Filter(i.args.Omit, func(c ColumnRef[C]) bool { return c.Col().name != i.rel.foreignKey })

	children, err := i.rel.delegate(db).findMany(ctx, FindManyArgs[C]{
		Where:   Column[C]{name: i.rel.foreignKey}.inAny(keys),
		Select:  sel,
		Omit:    omit,
		Include: i.args.Include,
	})
	if err != nil {
		return err
	}

	byKey := make(map[any]*C, len(children))
	for idx := range children {
		byKey[i.rel.childKey(&children[idx])] = &children[idx]
	}

	for idx := range parents {
		k := i.rel.parentRef(&parents[idx])
		if k == nil {
			continue
		}
		if child, ok := byKey[k]; ok {
			i.rel.set(&parents[idx], child)
		}
	}
	return nil
}

// uniqueKeys collects the distinct non-nil keys of rows.
func uniqueKeys[T any](rows []T, key func(*T) any) []any {
	seen := make(map[any]struct{}, len(rows))
	keys := make([]any, 0, len(rows))
	for idx := range rows {
		k := key(&rows[idx])
		if k == nil {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func includeKeys[T any](includes []Include[T]) []string {
	return ectolinq.Map(includes, func(i Include[T]) string { return i.key() })
}

func loadIncludes[T any](ctx context.Context, db *DB, rows []T, includes []Include[T]) error {
	for _, inc := range includes {
		if err := inc.load(ctx, db, rows); err != nil {
			return err
		}
	}
	return nil
}
