// Package table is the in-memory, ordered-column buffer a report is held in
// between reconciliation and load.
//
// Columns are addressed by unique name and keep an explicit order. Every
// column holds exactly Len() string values; an empty string is a missing value.
package table

import (
	"fmt"
)

// Table is a column-major string table.
//
// The zero value is an empty table with no columns.
type Table struct {
	names []string
	index map[string]int
	cols  [][]string
	rows  int
}

// New builds a table from column names and row-major data. Rows must already
// have len(names) fields.
//
// Errors:
//   - duplicate or empty column names.
//   - a row whose width differs from len(names).
func New(names []string, rows [][]string) (*Table, error) {
	t := &Table{index: make(map[string]int, len(names)), rows: len(rows)}
	for _, n := range names {
		if n == "" {
			return nil, fmt.Errorf("table: empty column name")
		}
		if _, dup := t.index[n]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", n)
		}
		t.index[n] = len(t.names)
		t.names = append(t.names, n)
		t.cols = append(t.cols, make([]string, len(rows)))
	}
	for r, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("table: row %d has %d fields, want %d", r, len(row), len(names))
		}
		for c, v := range row {
			t.cols[c][r] = v
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.names) }

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string { return append([]string(nil), t.names...) }

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Index returns a column's position, or -1.
func (t *Table) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Column returns the live values of a column (nil if absent). Callers that
// keep the slice past the next mutation must copy it.
func (t *Table) Column(name string) []string {
	if i, ok := t.index[name]; ok {
		return t.cols[i]
	}
	return nil
}

// Row returns a copy of row r in column order.
func (t *Table) Row(r int) []string {
	out := make([]string, len(t.cols))
	for c := range t.cols {
		out[c] = t.cols[c][r]
	}
	return out
}

// Rows returns a row-major copy of the table.
func (t *Table) Rows() [][]string {
	out := make([][]string, t.rows)
	for r := range out {
		out[r] = t.Row(r)
	}
	return out
}

// Set replaces a column's values in place.
func (t *Table) Set(name string, values []string) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("table: no column %q", name)
	}
	if len(values) != t.rows {
		return fmt.Errorf("table: column %q: %d values, want %d", name, len(values), t.rows)
	}
	t.cols[i] = values
	return nil
}

// Insert adds a column at position pos (clamped to [0, Width()]).
func (t *Table) Insert(pos int, name string, values []string) error {
	if name == "" {
		return fmt.Errorf("table: empty column name")
	}
	if _, dup := t.index[name]; dup {
		return fmt.Errorf("table: duplicate column %q", name)
	}
	if t.index == nil {
		t.index = map[string]int{}
	}
	if len(t.names) == 0 && t.rows == 0 {
		t.rows = len(values)
	}
	if len(values) != t.rows {
		return fmt.Errorf("table: column %q: %d values, want %d", name, len(values), t.rows)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(t.names) {
		pos = len(t.names)
	}
	t.names = append(t.names[:pos], append([]string{name}, t.names[pos:]...)...)
	t.cols = append(t.cols[:pos], append([][]string{values}, t.cols[pos:]...)...)
	t.reindex()
	return nil
}

// Append adds a column at the end.
func (t *Table) Append(name string, values []string) error {
	return t.Insert(len(t.names), name, values)
}

// Fill returns a slice of n copies of v, for constant columns.
func Fill(n int, v string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Drop removes a column. Dropping an absent column is a no-op.
func (t *Table) Drop(name string) {
	i, ok := t.index[name]
	if !ok {
		return
	}
	t.names = append(t.names[:i], t.names[i+1:]...)
	t.cols = append(t.cols[:i], t.cols[i+1:]...)
	t.reindex()
}

// Rename changes a column's name, keeping its position.
func (t *Table) Rename(from, to string) error {
	i, ok := t.index[from]
	if !ok {
		return fmt.Errorf("table: no column %q", from)
	}
	if from == to {
		return nil
	}
	if _, dup := t.index[to]; dup {
		return fmt.Errorf("table: duplicate column %q", to)
	}
	t.names[i] = to
	t.reindex()
	return nil
}

// Move relocates a column to position pos (clamped).
func (t *Table) Move(name string, pos int) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("table: no column %q", name)
	}
	vals := t.cols[i]
	t.Drop(name)
	return t.Insert(pos, name, vals)
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.names))
	for i, n := range t.names {
		t.index[n] = i
	}
}
