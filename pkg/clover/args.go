package clover

import "time"

// CacheStrategy caches a find result in Redis for TTL.
type CacheStrategy struct {
	TTL time.Duration
}

type FindUniqueArgs[T any] struct {
	Where   Unique[T]
	Select  []ColumnRef[T]
	Omit    []ColumnRef[T]
	Include []Include[T]
	Cache   *CacheStrategy
}

type FindManyArgs[T any] struct {
	Where   Predicate[T]
	OrderBy []OrderBy[T]
	// Cursor starts the page at this record, inclusive.
	Cursor Unique[T]
	// Take limits the page. Negative values page backwards from the cursor. Zero is unlimited.
	Take     int
	Skip     int
	Distinct []ColumnRef[T]
	Select   []ColumnRef[T]
	Omit     []ColumnRef[T]
	Include  []Include[T]
	Cache    *CacheStrategy
}

// FindFirstArgs takes the same arguments as FindMany; Take is ignored.
type FindFirstArgs[T any] = FindManyArgs[T]

type CreateArgs[T any] struct {
	Data    Creatable[T]
	Select  []ColumnRef[T]
	Omit    []ColumnRef[T]
	Include []Include[T]
}

type CreateManyArgs[T any] struct {
	Data           []Creatable[T]
	SkipDuplicates bool
}

type CreateManyAndReturnArgs[T any] struct {
	Data           []Creatable[T]
	SkipDuplicates bool
	Select         []ColumnRef[T]
	Omit           []ColumnRef[T]
}

type UpdateArgs[T any] struct {
	Where   Unique[T]
	Data    Updatable[T]
	Select  []ColumnRef[T]
	Omit    []ColumnRef[T]
	Include []Include[T]
}

type UpdateManyArgs[T any] struct {
	Where Predicate[T]
	Data  Updatable[T]
	// Limit caps the number of updated rows. Zero is unlimited.
	Limit int
}

type UpdateManyAndReturnArgs[T any] struct {
	Where  Predicate[T]
	Data   Updatable[T]
	Limit  int
	Select []ColumnRef[T]
	Omit   []ColumnRef[T]
}

type UpsertArgs[T any] struct {
	Where   Unique[T]
	Create  Creatable[T]
	Update  Updatable[T]
	Select  []ColumnRef[T]
	Omit    []ColumnRef[T]
	Include []Include[T]
}

type DeleteArgs[T any] struct {
	Where   Unique[T]
	Select  []ColumnRef[T]
	Omit    []ColumnRef[T]
	Include []Include[T]
}

type DeleteManyArgs[T any] struct {
	Where Predicate[T]
	Limit int
}

type CountArgs[T any] struct {
	Where   Predicate[T]
	OrderBy []OrderBy[T]
	Cursor  Unique[T]
	Take    int
	Skip    int
	// Select counts non-null values per column instead of rows.
	Select []ColumnRef[T]
}

// Aggregations picks the aggregates computed by Aggregate and GroupBy.
type Aggregations[T any] struct {
	CountAll bool
	Count    []ColumnRef[T]
	Avg      []ColumnRef[T]
	Sum      []ColumnRef[T]
	Min      []ColumnRef[T]
	Max      []ColumnRef[T]
}

type AggregateArgs[T any] struct {
	Aggregations[T]
	Where   Predicate[T]
	OrderBy []OrderBy[T]
	Cursor  Unique[T]
	Take    int
	Skip    int
}

type GroupByArgs[T any] struct {
	Aggregations[T]
	By      []ColumnRef[T]
	Where   Predicate[T]
	Having  Predicate[T]
	OrderBy []OrderBy[T]
	Take    int
	Skip    int
}

// AggregateResult holds aggregates keyed by column name. Count uses "_all" for COUNT(*).
type AggregateResult struct {
	Count map[string]int64
	Avg   map[string]*float64
	Sum   map[string]any
	Min   map[string]any
	Max   map[string]any
}

// CountAll returns COUNT(*) or zero when it was not selected.
func (r AggregateResult) CountAll() int64 {
	return r.Count[countAllColumn]
}

type GroupByResult struct {
	Fields map[string]any
	AggregateResult
}

type projector interface {
	projection() (selected, omitted []string)
}

func columnNames[T any](refs []ColumnRef[T]) []string {
	if len(refs) == 0 {
		return nil
	}
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Col().Name()
	}
	return names
}

func (a FindUniqueArgs[T]) projection() ([]string, []string) {
	return columnNames(a.Select), columnNames(a.Omit)
}

func (a FindManyArgs[T]) projection() ([]string, []string) {
	return columnNames(a.Select), columnNames(a.Omit)
}

func (a CreateArgs[T]) projection() ([]string, []string) {
	return columnNames(a.Select), columnNames(a.Omit)
}

func (a CreateManyAndReturnArgs[T]) projection() ([]string, []string) {
	return columnNames(a.Select), columnNames(a.Omit)
}

func (a UpdateArgs[T]) projection() ([]string, []string) {
	return columnNames(a.Select), columnNames(a.Omit)
}

func (a UpdateManyAndReturnArgs[T]) projection() ([]string, []string) {
	return columnNames(a.Select), columnNames(a.Omit)
}

func (a UpsertArgs[T]) projection() ([]string, []string) {
	return columnNames(a.Select), columnNames(a.Omit)
}

func (a DeleteArgs[T]) projection() ([]string, []string) {
	return columnNames(a.Select), columnNames(a.Omit)
}

// Projection returns the column names args selects and omits. Both are nil for args that
// return whole records or no records.
func Projection(args any) (selected, omitted []string) {
	if p, ok := args.(projector); ok {
		return p.projection()
	}
	return nil, nil
}
