package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Flavor is the SQL dialect every builder in this package renders.
var Flavor = sqlbuilder.PostgreSQL

func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

// Default renders the DEFAULT keyword inside a VALUES list.
func Default() any {
	return sqlbuilder.Raw("DEFAULT")
}

// Now renders the NOW() function inside a VALUES list or assignment.
func Now() any {
	return sqlbuilder.Raw("NOW()")
}

// Build compiles a format string using $? placeholders into a parameterised query.
func Build(format string, args ...any) (string, []any) {
	return sqlbuilder.Build(format, args...).BuildWithFlavor(Flavor)
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{
		Flavor.NewInsertBuilder(),
	}
}

func (b *InsertBuilder) OnConflict(columns ...string) *UpdateBuilder {
	ub := NewUpdateBuilder()
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE %s", strings.Join(columns, ", "), b.Var(ub)))

	return ub
}

func (b *InsertBuilder) OnConflictDoNothing() *InsertBuilder {
	b.SQL("ON CONFLICT DO NOTHING")
	return b
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{Flavor.NewUpdateBuilder()}
}

// Returning appends a RETURNING clause. Call it after Where.
func (b *UpdateBuilder) Returning(columns ...string) *UpdateBuilder {
	b.SQL("RETURNING " + strings.Join(columns, ", "))
	return b
}

type DeleteBuilder struct {
	*sqlbuilder.DeleteBuilder
}

func NewDeleteBuilder() *DeleteBuilder {
	return &DeleteBuilder{Flavor.NewDeleteBuilder()}
}

// Returning appends a RETURNING clause. Call it after Where.
func (b *DeleteBuilder) Returning(columns ...string) *DeleteBuilder {
	b.SQL("RETURNING " + strings.Join(columns, ", "))
	return b
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{Flavor.NewSelectBuilder()}
}
