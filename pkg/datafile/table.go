package datafile

import (
	"github.com/pkg/errors"
)

// Table is a rectangular set of named float64 columns in acquisition order.
// Methods that change the shape return a new Table; the receiver is not
// modified.
type Table struct {
	columns []string
	data    map[string][]float64
	rows    int
}

// NewTable builds a table from row-major values.
func NewTable(columns []string, rows [][]float64) (*Table, error) {
	t, err := emptyTable(columns, len(rows))
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.Wrapf(ErrMalformedBlock, "row %d has %d values, want %d", i, len(row), len(columns))
		}
		for j, name := range columns {
			t.data[name][i] = row[j]
		}
	}
	return t, nil
}

// FromColumns builds a table from column-major values. The slices are copied.
func FromColumns(columns []string, values ...[]float64) (*Table, error) {
	if len(values) != len(columns) {
		return nil, errors.Errorf("table: %d columns named, %d given", len(columns), len(values))
	}
	rows := 0
	if len(values) > 0 {
		rows = len(values[0])
	}
	t, err := emptyTable(columns, rows)
	if err != nil {
		return nil, err
	}
	for j, name := range columns {
		if len(values[j]) != rows {
			return nil, errors.Wrapf(ErrMalformedBlock, "column %q has %d rows, want %d", name, len(values[j]), rows)
		}
		copy(t.data[name], values[j])
	}
	return t, nil
}

func emptyTable(columns []string, rows int) (*Table, error) {
	t := &Table{
		columns: append([]string(nil), columns...),
		data:    make(map[string][]float64, len(columns)),
		rows:    rows,
	}
	for _, name := range columns {
		if _, exists := t.data[name]; exists {
			return nil, errors.Errorf("table: duplicate column %q", name)
		}
		t.data[name] = make([]float64, rows)
	}
	return t, nil
}

func (t *Table) Rows() int {
	return t.rows
}

func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.data[name]
	return ok
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	col, ok := t.data[name]
	if !ok {
		return nil, errors.Wrapf(ErrMissingColumn, "%q (have %v)", name, t.columns)
	}
	return append([]float64(nil), col...), nil
}

// Value returns the cell at row i of the named column.
func (t *Table) Value(name string, i int) (float64, error) {
	col, ok := t.data[name]
	if !ok {
		return 0, errors.Wrapf(ErrMissingColumn, "%q", name)
	}
	if i < 0 || i >= t.rows {
		return 0, errors.Errorf("table: row %d out of range [0, %d)", i, t.rows)
	}
	return col[i], nil
}

// Row returns row i in column order.
func (t *Table) Row(i int) []float64 {
	row := make([]float64, len(t.columns))
	for j, name := range t.columns {
		row[j] = t.data[name][i]
	}
	return row
}

// Slice returns rows [from, to), clamped to the table bounds.
func (t *Table) Slice(from, to int) *Table {
	from = max(0, min(from, t.rows))
	to = max(from, min(to, t.rows))

	out, _ := emptyTable(t.columns, to-from)
	for _, name := range t.columns {
		copy(out.data[name], t.data[name][from:to])
	}
	return out
}

// Filter returns the rows where keep is true.
func (t *Table) Filter(keep []bool) *Table {
	var idx []int
	for i := 0; i < t.rows && i < len(keep); i++ {
		if keep[i] {
			idx = append(idx, i)
		}
	}
	out, _ := emptyTable(t.columns, len(idx))
	for _, name := range t.columns {
		src, dst := t.data[name], out.data[name]
		for k, i := range idx {
			dst[k] = src[i]
		}
	}
	return out
}

// WithColumn returns a copy of the table with the column added or replaced.
func (t *Table) WithColumn(name string, values []float64) (*Table, error) {
	if len(values) != t.rows {
		return nil, errors.Wrapf(ErrMalformedBlock, "column %q has %d rows, want %d", name, len(values), t.rows)
	}
	out := t.Clone()
	if !out.HasColumn(name) {
		out.columns = append(out.columns, name)
	}
	out.data[name] = append([]float64(nil), values...)
	return out, nil
}

// Rename returns a copy with new column names, in order.
func (t *Table) Rename(columns []string) (*Table, error) {
	if len(columns) != len(t.columns) {
		return nil, errors.Errorf("table: rename to %d columns, have %d", len(columns), len(t.columns))
	}
	out, err := emptyTable(columns, t.rows)
	if err != nil {
		return nil, err
	}
	for j, name := range t.columns {
		copy(out.data[columns[j]], t.data[name])
	}
	return out, nil
}

func (t *Table) Clone() *Table {
	out, _ := emptyTable(t.columns, t.rows)
	for _, name := range t.columns {
		copy(out.data[name], t.data[name])
	}
	return out
}

// Equal reports whether both tables have the same columns and values.
func (t *Table) Equal(other *Table) bool {
	if other == nil || t.rows != other.rows || len(t.columns) != len(other.columns) {
		return false
	}
	for j, name := range t.columns {
		if other.columns[j] != name {
			return false
		}
		a, b := t.data[name], other.data[name]
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
