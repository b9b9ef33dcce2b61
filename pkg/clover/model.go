package clover

import (
	"database/sql"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"
)

// model describes how a record type maps onto its table.
type model[T any] struct {
	name    string
	table   string
	columns []string
	// numeric columns accept Avg and Sum.
	numeric []string
	// tenantColumn is filled from the context on create. Empty when the model has no tenant column.
	tenantColumn string
	updatedAt    bool
	// scope restricts queries to a tenant when tenant isolation is on.
	scope func(tenantID uuid.UUID) Predicate[T]
}

func (m *model[T]) hasColumn(name string) bool {
	return ectolinq.Contains(m.columns, name)
}

func (m *model[T]) isNumeric(name string) bool {
	return ectolinq.Contains(m.numeric, name)
}

func (m *model[T]) col(name string) Column[T] {
	return Column[T]{name: name}
}

// Unique identifies a single record by one of the model's unique keys.
type Unique[T any] interface {
	uniquePredicate() (Predicate[T], error)
}

// Creatable produces the column values of an INSERT.
type Creatable[T any] interface {
	insertValues() assignments
}

// Updatable produces the SET list of an UPDATE.
type Updatable[T any] interface {
	updateValues() assignments
}

type updateOp int

const (
	opSet updateOp = iota
	opAdd
	opSub
	opMul
	opDiv
)

type assignment struct {
	column string
	value  any
	op     updateOp
}

type assignments []assignment

func (a *assignments) set(column string, value any) {
	*a = append(*a, assignment{column: column, value: value})
}

func (a assignments) find(column string) (int, bool) {
	for i, v := range a {
		if v.column == column {
			return i, true
		}
	}
	return -1, false
}

func (a assignments) columns() []string {
	return ectolinq.Map(a, func(v assignment) string { return v.column })
}

func setPtr[V any](a *assignments, column string, p *V) {
	if p != nil {
		a.set(column, *p)
	}
}

func setNullable[V any](a *assignments, column string, p *sql.Null[V]) {
	if p == nil {
		return
	}
	if !p.Valid {
		a.set(column, nil)
		return
	}
	a.set(column, p.V)
}

// Ptr returns a pointer to v, for optional input fields.
func Ptr[V any](v V) *V {
	return &v
}

// NullOf sets a nullable column to v in an update.
func NullOf[V any](v V) *sql.Null[V] {
	return &sql.Null[V]{V: v, Valid: true}
}

// SetNull sets a nullable column to NULL in an update.
func SetNull[V any]() *sql.Null[V] {
	return &sql.Null[V]{}
}

// IntUpdate changes an integer column atomically.
type IntUpdate struct {
	op    updateOp
	value *int
}

func SetInt(n int) *IntUpdate { return &IntUpdate{op: opSet, value: &n} }

func SetIntNull() *IntUpdate { return &IntUpdate{op: opSet} }

func Increment(n int) *IntUpdate { return &IntUpdate{op: opAdd, value: &n} }

func Decrement(n int) *IntUpdate { return &IntUpdate{op: opSub, value: &n} }

func Multiply(n int) *IntUpdate { return &IntUpdate{op: opMul, value: &n} }

func Divide(n int) *IntUpdate { return &IntUpdate{op: opDiv, value: &n} }

func (u *IntUpdate) apply(a *assignments, column string) {
	if u == nil {
		return
	}
	if u.value == nil {
		a.set(column, nil)
		return
	}
	*a = append(*a, assignment{column: column, value: *u.value, op: u.op})
}

func uuidPtrKey(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func missingUnique(model string, keys ...string) *ValidationError {
	return validationError("Argument `where` of type %sWhereUniqueInput needs at least one of `%s` arguments.",
		model, strings.Join(keys, "`, `"))
}
