package clover

import (
	"context"
	"database/sql"
	"reflect"
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
)

func (d *Delegate[T]) Create(ctx context.Context, args CreateArgs[T]) (*T, error) {
	return run(d, ctx, ActionCreate, args, d.create)
}

// CreateMany inserts every row in one statement and returns the number inserted.
func (d *Delegate[T]) CreateMany(ctx context.Context, args CreateManyArgs[T]) (int64, error) {
	return run(d, ctx, ActionCreateMany, args, func(ctx context.Context, args CreateManyArgs[T]) (int64, error) {
		_, n, err := d.createMany(ctx, args.Data, args.SkipDuplicates, nil, false)
		return n, err
	})
}

func (d *Delegate[T]) CreateManyAndReturn(ctx context.Context, args CreateManyAndReturnArgs[T]) ([]T, error) {
	return run(d, ctx, ActionCreateManyAndReturn, args, func(ctx context.Context, args CreateManyAndReturnArgs[T]) ([]T, error) {
		cols, err := d.projection(args.Select, args.Omit, nil)
		if err != nil {
			return nil, err
		}
		rows, _, err := d.createMany(ctx, args.Data, args.SkipDuplicates, cols, true)
		return rows, err
	})
}

func (d *Delegate[T]) Update(ctx context.Context, args UpdateArgs[T]) (*T, error) {
	return run(d, ctx, ActionUpdate, args, d.update)
}

// UpdateMany applies Data to every matching row and returns the number updated.
func (d *Delegate[T]) UpdateMany(ctx context.Context, args UpdateManyArgs[T]) (int64, error) {
	return run(d, ctx, ActionUpdateMany, args, func(ctx context.Context, args UpdateManyArgs[T]) (int64, error) {
		_, n, err := d.updateMany(ctx, args.Where, args.Data, args.Limit, nil, false)
		return n, err
	})
}

func (d *Delegate[T]) UpdateManyAndReturn(ctx context.Context, args UpdateManyAndReturnArgs[T]) ([]T, error) {
	return run(d, ctx, ActionUpdateManyAndReturn, args, func(ctx context.Context, args UpdateManyAndReturnArgs[T]) ([]T, error) {
		cols, err := d.projection(args.Select, args.Omit, nil)
		if err != nil {
			return nil, err
		}
		rows, _, err := d.updateMany(ctx, args.Where, args.Data, args.Limit, cols, true)
		return rows, err
	})
}

// Upsert updates the record matching Where, or creates it when there is none.
func (d *Delegate[T]) Upsert(ctx context.Context, args UpsertArgs[T]) (*T, error) {
	return run(d, ctx, ActionUpsert, args, d.upsert)
}

// Delete removes the record matching Where and returns it.
func (d *Delegate[T]) Delete(ctx context.Context, args DeleteArgs[T]) (*T, error) {
	return run(d, ctx, ActionDelete, args, d.delete)
}

// DeleteMany removes every matching row and returns the number deleted.
func (d *Delegate[T]) DeleteMany(ctx context.Context, args DeleteManyArgs[T]) (int64, error) {
	return run(d, ctx, ActionDeleteMany, args, d.deleteMany)
}

func (d *Delegate[T]) create(ctx context.Context, args CreateArgs[T]) (*T, error) {
	values, err := d.insertValues(ctx, args.Data)
	if err != nil {
		return nil, err
	}
	cols, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(d.model.table).
		Cols(values.columns()...).
		Values(assignmentValues(values)...)
	ib.Returning(cols...)

	query, queryArgs := ib.Build()
	var row T
	if err := d.db.getRow(ctx, d.model.name, "insert", &row, query, queryArgs); err != nil {
		return nil, err
	}
	d.db.invalidate(ctx, d.model.name)

	rows := []T{row}
	if err := loadIncludes(ctx, d.db, rows, args.Include); err != nil {
		return nil, err
	}
	return &rows[0], nil
}

func (d *Delegate[T]) createMany(ctx context.Context, data []Creatable[T], skipDuplicates bool, cols []string, returning bool) ([]T, int64, error) {
	if len(data) == 0 {
		return []T{}, 0, nil
	}

	rows := make([]assignments, 0, len(data))
	var columns []string
	for _, item := range data {
		values, err := d.insertValues(ctx, item)
		if err != nil {
			return nil, 0, err
		}
		for _, c := range values.columns() {
			if !slices.Contains(columns, c) {
				columns = append(columns, c)
			}
		}
		rows = append(rows, values)
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(d.model.table).Cols(columns...)
	for _, values := range rows {
		row := make([]any, len(columns))
		for i, c := range columns {
			if idx, ok := values.find(c); ok {
				row[i] = values[idx].value
			} else {
				row[i] = database.Default()
			}
		}
		ib.Values(row...)
	}
	if skipDuplicates {
		ib.OnConflictDoNothing()
	}

	if !returning {
		query, queryArgs := ib.Build()
		n, err := d.db.exec(ctx, d.model.name, "insert", query, queryArgs)
		if err != nil {
			return nil, 0, err
		}
		d.db.invalidate(ctx, d.model.name)
		return nil, n, nil
	}

	ib.Returning(cols...)
	query, queryArgs := ib.Build()
	out := []T{}
	if err := d.db.selectRows(ctx, d.model.name, &out, query, queryArgs); err != nil {
		return nil, 0, err
	}
	d.db.invalidate(ctx, d.model.name)
	return out, int64(len(out)), nil
}

func (d *Delegate[T]) update(ctx context.Context, args UpdateArgs[T]) (*T, error) {
	pred, err := d.unique(args.Where)
	if err != nil {
		return nil, err
	}
	values, err := d.updateValues(args.Data)
	if err != nil {
		return nil, err
	}
	cols, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}

	if len(values) == 0 {
		row, err := d.findUnique(ctx, FindUniqueArgs[T]{Where: args.Where, Select: args.Select, Omit: args.Omit, Include: args.Include})
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, notFoundError(d.model.name, "Record to update not found.")
		}
		return row, nil
	}

	table := d.model.table
	ub := database.NewUpdateBuilder()
	ub.Update(table).Set(setExprs(ub, d.withUpdatedAt(values))...)
	conds, err := d.conditions(ctx, newWhere(ub, table), pred)
	if err != nil {
		return nil, err
	}
	ub.Where(conds...)
	ub.Returning(cols...)

	query, queryArgs := ub.Build()
	var row T
	if err := d.db.getRow(ctx, d.model.name, "update", &row, query, queryArgs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError(d.model.name, "Record to update not found.")
		}
		return nil, err
	}
	d.db.invalidate(ctx, d.model.name)

	rows := []T{row}
	if err := loadIncludes(ctx, d.db, rows, args.Include); err != nil {
		return nil, err
	}
	return &rows[0], nil
}

func (d *Delegate[T]) updateMany(ctx context.Context, where Predicate[T], data Updatable[T], limit int, cols []string, returning bool) ([]T, int64, error) {
	if limit < 0 {
		return nil, 0, validationError("Invalid value for limit argument: Value can only be positive, found: %d", limit)
	}
	values, err := d.updateValues(data)
	if err != nil {
		return nil, 0, err
	}
	if len(values) == 0 {
		return []T{}, 0, nil
	}

	table := d.model.table
	ub := database.NewUpdateBuilder()
	ub.Update(table).Set(setExprs(ub, d.withUpdatedAt(values))...)
	conds, err := d.limitedConditions(ctx, ub, where, limit)
	if err != nil {
		return nil, 0, err
	}
	if len(conds) > 0 {
		ub.Where(conds...)
	}

	if !returning {
		query, queryArgs := ub.Build()
		n, err := d.db.exec(ctx, d.model.name, "update", query, queryArgs)
		if err != nil {
			return nil, 0, err
		}
		d.db.invalidate(ctx, d.model.name)
		return nil, n, nil
	}

	ub.Returning(cols...)
	query, queryArgs := ub.Build()
	out := []T{}
	if err := d.db.selectRows(ctx, d.model.name, &out, query, queryArgs); err != nil {
		return nil, 0, err
	}
	d.db.invalidate(ctx, d.model.name)
	return out, int64(len(out)), nil
}

// upsert runs find, then update or create, in one transaction. A unique violation raced by a
// concurrent create is retried once as an update when the transaction is owned here.
func (d *Delegate[T]) upsert(ctx context.Context, args UpsertArgs[T]) (*T, error) {
	if _, err := d.unique(args.Where); err != nil {
		return nil, err
	}
	if args.Create == nil || isNilInput(args.Create) {
		return nil, validationError("Argument `create` is missing.")
	}

	attempt := func(ctx context.Context) (*T, error) {
		var result *T
		err := d.db.Transaction(ctx, func(ctx context.Context) error {
			existing, err := d.findUnique(ctx, FindUniqueArgs[T]{Where: args.Where, Select: []ColumnRef[T]{d.model.col("id")}})
			if err != nil {
				return err
			}
			if existing != nil && (args.Update == nil || isNilInput(args.Update)) {
				result, err = d.findUnique(ctx, FindUniqueArgs[T]{Where: args.Where, Select: args.Select, Omit: args.Omit, Include: args.Include})
				return err
			}
			if existing != nil {
				result, err = d.update(ctx, UpdateArgs[T]{Where: args.Where, Data: args.Update, Select: args.Select, Omit: args.Omit, Include: args.Include})
				return err
			}
			result, err = d.create(ctx, CreateArgs[T]{Data: args.Create, Select: args.Select, Omit: args.Omit, Include: args.Include})
			setUpsertCreated(ctx, err == nil)
			return err
		})
		return result, err
	}

	result, err := attempt(ctx)
	if _, inTx := database.TxFromContext(ctx); !inTx && IsUniqueViolation(err) {
		d.db.logger.WithContext(ctx).WithFields(map[string]any{"model": d.model.name}).
			Debug("upsert lost a create race, retrying as update")
		setUpsertCreated(ctx, false)
		if args.Update == nil || isNilInput(args.Update) {
			return d.findUnique(ctx, FindUniqueArgs[T]{Where: args.Where, Select: args.Select, Omit: args.Omit, Include: args.Include})
		}
		return d.update(ctx, UpdateArgs[T]{Where: args.Where, Data: args.Update, Select: args.Select, Omit: args.Omit, Include: args.Include})
	}
	return result, err
}

func (d *Delegate[T]) delete(ctx context.Context, args DeleteArgs[T]) (*T, error) {
	pred, err := d.unique(args.Where)
	if err != nil {
		return nil, err
	}
	cols, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}

	// Relations are loaded before the row and its cascaded children are gone.
	if len(args.Include) > 0 {
		var deleted *T
		err := d.db.Transaction(ctx, func(ctx context.Context) error {
			row, err := d.findUnique(ctx, FindUniqueArgs[T]{Where: args.Where, Omit: args.Omit, Include: args.Include})
			if err != nil {
				return err
			}
			if row == nil {
				return notFoundError(d.model.name, "Record to delete does not exist.")
			}
			if _, err := d.deleteRow(ctx, pred, cols); err != nil {
				return err
			}
			deleted = row
			return nil
		})
		return deleted, err
	}

	return d.deleteRow(ctx, pred, cols)
}

func (d *Delegate[T]) deleteRow(ctx context.Context, pred Predicate[T], cols []string) (*T, error) {
	table := d.model.table
	del := database.NewDeleteBuilder()
	del.DeleteFrom(table)
	conds, err := d.conditions(ctx, newWhere(del, table), pred)
	if err != nil {
		return nil, err
	}
	del.Where(conds...)
	del.Returning(cols...)

	query, queryArgs := del.Build()
	var row T
	if err := d.db.getRow(ctx, d.model.name, "delete", &row, query, queryArgs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError(d.model.name, "Record to delete does not exist.")
		}
		return nil, err
	}
	d.db.invalidate(ctx, d.model.name)
	return &row, nil
}

func (d *Delegate[T]) deleteMany(ctx context.Context, args DeleteManyArgs[T]) (int64, error) {
	if args.Limit < 0 {
		return 0, validationError("Invalid value for limit argument: Value can only be positive, found: %d", args.Limit)
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom(d.model.table)
	conds, err := d.limitedConditions(ctx, del, args.Where, args.Limit)
	if err != nil {
		return 0, err
	}
	if len(conds) > 0 {
		del.Where(conds...)
	}

	query, queryArgs := del.Build()
	n, err := d.db.exec(ctx, d.model.name, "delete", query, queryArgs)
	if err != nil {
		return 0, err
	}
	d.db.invalidate(ctx, d.model.name)
	return n, nil
}

// limitedConditions filters an UPDATE or DELETE, capping the affected rows with an id subquery when limit is set.
func (d *Delegate[T]) limitedConditions(ctx context.Context, cond Cond, where Predicate[T], limit int) ([]string, error) {
	table := d.model.table
	if limit == 0 {
		return d.conditions(ctx, newWhere(cond, table), where)
	}

	inner := database.NewSelectBuilder()
	inner.Select(table + ".id").From(table)
	conds, err := d.conditions(ctx, newWhere(inner, table), where)
	if err != nil {
		return nil, err
	}
	if len(conds) > 0 {
		inner.Where(conds...)
	}
	inner.OrderBy(table + ".id").Limit(limit)

	return []string{cond.In(table+".id", inner.SelectBuilder)}, nil
}

// insertValues validates data and fills the generated id and the tenant from ctx.
func (d *Delegate[T]) insertValues(ctx context.Context, data Creatable[T]) (assignments, error) {
	if data == nil || isNilInput(data) {
		return nil, validationError("Argument `data` is missing.")
	}
	if err := d.db.validateInput(data); err != nil {
		return nil, err
	}

	values := data.insertValues()
	if idx, ok := values.find("id"); ok {
		if id, _ := values[idx].value.(uuid.UUID); id == uuid.Nil {
			values[idx].value = uuid.New()
		}
	} else if d.model.hasColumn("id") {
		values = append(assignments{{column: "id", value: uuid.New()}}, values...)
	}

	column := d.model.tenantColumn
	if column == "" || column == "id" {
		return values, nil
	}

	var (
		tenantID uuid.UUID
		hasCtx   bool
	)
	if d.db.opts.TenantIsolation {
		var err error
		tenantID, hasCtx, err = appctx.TenantUUID(ctx)
		if err != nil {
			return nil, validationError("Invalid tenant id in context: %v", err)
		}
	}

	idx, ok := values.find(column)
	var current uuid.UUID
	if ok {
		current, _ = values[idx].value.(uuid.UUID)
	}
	switch {
	case current == uuid.Nil && hasCtx:
		if ok {
			values[idx].value = tenantID
		} else {
			values.set(column, tenantID)
		}
	case current == uuid.Nil:
		return nil, validationError("Argument `tenantId` is missing.")
	case hasCtx && current != tenantID:
		return nil, validationError("Argument `tenantId` does not match the tenant of the request.")
	}
	return values, nil
}

func (d *Delegate[T]) updateValues(data Updatable[T]) (assignments, error) {
	if data == nil || isNilInput(data) {
		return nil, validationError("Argument `data` is missing.")
	}
	if err := d.db.validateInput(data); err != nil {
		return nil, err
	}
	values := data.updateValues()
	for _, v := range values {
		if !d.model.hasColumn(v.column) {
			return nil, unknownField(d.model.name, v.column)
		}
	}
	return values, nil
}

func (d *Delegate[T]) withUpdatedAt(values assignments) assignments {
	if !d.model.updatedAt {
		return values
	}
	if _, ok := values.find("updated_at"); ok {
		return values
	}
	return append(slices.Clone(values), assignment{column: "updated_at", value: database.Now()})
}

type setter interface {
	Assign(field string, value any) string
	Add(field string, value any) string
	Sub(field string, value any) string
	Mul(field string, value any) string
	Div(field string, value any) string
}

func setExprs(ub setter, values assignments) []string {
	exprs := make([]string, 0, len(values))
	for _, v := range values {
		switch v.op {
		case opAdd:
			exprs = append(exprs, ub.Add(v.column, v.value))
		case opSub:
			exprs = append(exprs, ub.Sub(v.column, v.value))
		case opMul:
			exprs = append(exprs, ub.Mul(v.column, v.value))
		case opDiv:
			exprs = append(exprs, ub.Div(v.column, v.value))
		default:
			exprs = append(exprs, ub.Assign(v.column, v.value))
		}
	}
	return exprs
}

func assignmentValues(values assignments) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.value
	}
	return out
}

func isNilInput(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
