package dataprocessing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnKind is the value type held by a column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindNumeric
	KindTimestamp
)

// String returns the lowercase kind name used in reports.
func (k ColumnKind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// TimestampDisplayLayout formats timestamp values for previews and keys.
const TimestampDisplayLayout = "2006-01-02 15:04:05"

// Value is a single cell. Only the field matching the column kind is
// meaningful, and Missing marks a cell with no valid data.
type Value struct {
	Num     float64
	Text    string
	Time    time.Time
	Missing bool
}

// Missing returns a missing cell.
func Missing() Value { return Value{Missing: true} }

// Number returns a numeric cell.
func Number(f float64) Value { return Value{Num: f} }

// Text returns a text cell.
func Text(s string) Value { return Value{Text: s} }

// Timestamp returns a timestamp cell.
func Timestamp(t time.Time) Value { return Value{Time: t} }

// Column is a named, typed sequence of values.
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []Value
}

// NewColumn creates a column of the given kind.
func NewColumn(name string, kind ColumnKind, values []Value) *Column {
	return &Column{Name: name, Kind: kind, Values: values}
}

// Len returns the number of values.
func (c *Column) Len() int {
	return len(c.Values)
}

// MissingCount returns how many values are missing.
func (c *Column) MissingCount() int {
	n := 0
	for _, v := range c.Values {
		if v.Missing {
			n++
		}
	}
	return n
}

// AllMissing reports whether every value is missing. An empty column is all missing.
func (c *Column) AllMissing() bool {
	return c.MissingCount() == len(c.Values)
}

// Format renders the value at row i for display. Missing values render empty.
func (c *Column) Format(i int) string {
	v := c.Values[i]
	if v.Missing {
		return ""
	}
	switch c.Kind {
	case KindNumeric:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindTimestamp:
		return v.Time.Format(TimestampDisplayLayout)
	default:
		return v.Text
	}
}

func (c *Column) clone() *Column {
	values := make([]Value, len(c.Values))
	copy(values, c.Values)
	return &Column{Name: c.Name, Kind: c.Kind, Values: values}
}

// Table is an ordered set of equal-length named columns. Pipeline stages
// never modify a Table they receive; they return a new one.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewTable builds a table, rejecting duplicate names and ragged columns.
func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(columns))}
	for i, col := range columns {
		if _, dup := t.index[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		if i == 0 {
			t.rows = col.Len()
		} else if col.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d values, want %d", col.Name, col.Len(), t.rows)
		}
		t.index[col.Name] = i
		t.columns = append(t.columns, col)
	}
	return t, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.columns) }

// Names returns column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. Callers must not modify them.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{index: make(map[string]int, len(t.columns)), rows: t.rows}
	for i, c := range t.columns {
		out.columns = append(out.columns, c.clone())
		out.index[c.Name] = i
	}
	return out
}

// WithColumn returns a copy of the table with col appended, or replacing
// the column of the same name in place.
func (t *Table) WithColumn(col *Column) (*Table, error) {
	if len(t.columns) > 0 && col.Len() != t.rows {
		return nil, fmt.Errorf("column %q has %d values, want %d", col.Name, col.Len(), t.rows)
	}
	out := t.Clone()
	if len(out.columns) == 0 {
		out.rows = col.Len()
	}
	if i, ok := out.index[col.Name]; ok {
		out.columns[i] = col.clone()
		return out, nil
	}
	out.index[col.Name] = len(out.columns)
	out.columns = append(out.columns, col.clone())
	return out, nil
}

// Rename returns a copy with column from renamed to to.
func (t *Table) Rename(from, to string) (*Table, error) {
	i, ok := t.index[from]
	if !ok {
		return nil, fmt.Errorf("column %q not found", from)
	}
	if _, exists := t.index[to]; exists && from != to {
		return nil, fmt.Errorf("column %q already exists", to)
	}
	out := t.Clone()
	delete(out.index, from)
	out.columns[i].Name = to
	out.index[to] = i
	return out, nil
}

// SelectRows returns a copy holding only the given rows, in the given order.
func (t *Table) SelectRows(rows []int) *Table {
	out := &Table{index: make(map[string]int, len(t.columns)), rows: len(rows)}
	for i, c := range t.columns {
		values := make([]Value, len(rows))
		for j, r := range rows {
			values[j] = c.Values[r]
		}
		out.columns = append(out.columns, &Column{Name: c.Name, Kind: c.Kind, Values: values})
		out.index[c.Name] = i
	}
	return out
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	if n < 0 {
		n = 0
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.SelectRows(rows)
}

// String renders a short description for logs.
func (t *Table) String() string {
	return fmt.Sprintf("Table(%d rows x %d cols: %s)", t.rows, len(t.columns), strings.Join(t.Names(), ", "))
}

// HasColumns reports whether every named column exists in the table.
// It is the single gate used by every optional analysis.
func HasColumns(t *Table, names ...string) bool {
	return len(MissingColumns(t, names...)) == 0
}

// MissingColumns returns the names not present in the table, in argument order.
func MissingColumns(t *Table, names ...string) []string {
	var missing []string
	for _, name := range names {
		if t == nil {
			missing = append(missing, name)
			continue
		}
		if _, ok := t.index[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
