package models

// TableSource records where a Table's rows were read from.
type TableSource string

const (
	TableSourceLiveEntity   TableSource = "live_entity"
	TableSourceUploadedFile TableSource = "uploaded_file"
	// TableSourceMerged marks the accumulated output of a previous join step.
	TableSourceMerged TableSource = "merged"
)

// MergedTableName is the synthetic name the accumulated result carries into the next join.
const MergedTableName = "merged"

// Row is an ordered mapping from column name to scalar value.
// A column that was never set is absent, which is distinct from a column holding nil.
// Rows are built once by a resolver or the join engine and treated as read-only afterwards.
type Row struct {
	columns []string
	values  map[string]any
}

// NewRow creates an empty row with room for n columns.
func NewRow(n int) Row {
	return Row{
		columns: make([]string, 0, n),
		values:  make(map[string]any, n),
	}
}

// RowFromPairs builds a row from alternating column/value arguments.
// Intended for tests and fixtures: RowFromPairs("id", 1, "name", "A").
func RowFromPairs(pairs ...any) Row {
	row := NewRow(len(pairs) / 2)
	for i := 0; i+1 < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok {
			continue
		}
		row.Set(col, pairs[i+1])
	}
	return row
}

// Set writes a value, appending the column if it is new.
func (r *Row) Set(column string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[column]; !exists {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Get returns the value for a column and whether the column is present.
func (r Row) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Has reports whether the column is present (possibly holding nil).
func (r Row) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Columns returns the row's columns in insertion order.
func (r Row) Columns() []string {
	return r.columns
}

// Len returns the number of present columns.
func (r Row) Len() int {
	return len(r.columns)
}

// Map returns a copy of the row as a plain map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// Table is a named, ordered sequence of rows plus provenance.
type Table struct {
	Name   string
	Source TableSource
	Rows   []Row
}

// IsLiveEntity reports whether the table was read from a live entity collection.
func (t *Table) IsLiveEntity() bool {
	return t.Source == TableSourceLiveEntity
}

// IsUploadedFile reports whether the table was parsed from an uploaded file.
func (t *Table) IsUploadedFile() bool {
	return t.Source == TableSourceUploadedFile
}

// ObservedColumns returns every column present on at least one row, in order of first appearance.
func (t *Table) ObservedColumns() []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, row := range t.Rows {
		for _, col := range row.columns {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			columns = append(columns, col)
		}
	}
	return columns
}

// Truncate returns a table sharing the first limit rows. limit <= 0 keeps everything.
func (t *Table) Truncate(limit int) *Table {
	if limit <= 0 || len(t.Rows) <= limit {
		return t
	}
	return &Table{
		Name:   t.Name,
		Source: t.Source,
		Rows:   t.Rows[:limit],
	}
}
