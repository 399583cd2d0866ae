package dataset

import (
	"fmt"
)

// Type is the storage type of a column, decided once at load time.
type Type string

const (
	TypeNumeric  Type = "numeric"
	TypeText     Type = "text"
	TypeDatetime Type = "datetime"
	// TypeEmpty marks a column without a single non-null cell.
	TypeEmpty Type = "empty"
)

// Column is a named, typed sequence of cells. Columns handed out by a
// Dataset are shared and must be treated as read-only.
type Column struct {
	Name   string
	Type   Type
	Values []Value
}

// NullCount returns the number of null cells.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if v.IsNull() {
			n++
		}
	}
	return n
}

// NonNull returns the non-null cells in row order.
func (c *Column) NonNull() []Value {
	out := make([]Value, 0, len(c.Values))
	for _, v := range c.Values {
		if !v.IsNull() {
			out = append(out, v)
		}
	}
	return out
}

// Floats returns the non-null numeric cells in row order.
func (c *Column) Floats() []float64 {
	out := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		if v.Kind() == KindNumber {
			out = append(out, v.Float())
		}
	}
	return out
}

// Distinct returns the number of distinct non-null values.
func (c *Column) Distinct() int {
	seen := make(map[string]struct{})
	for _, v := range c.Values {
		if !v.IsNull() {
			seen[v.Key()] = struct{}{}
		}
	}
	return len(seen)
}

// Dataset is an ordered, column-major table. A Dataset is never modified in
// place; every transforming method returns a new value.
type Dataset struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New builds a dataset from columns of equal length with unique names.
func New(columns ...*Column) (*Dataset, error) {
	d := &Dataset{
		columns: columns,
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, ok := d.index[c.Name]; ok {
			return nil, &MalformedInputError{Reason: ReasonDuplicateColumns, Names: []string{c.Name}}
		}
		d.index[c.Name] = i
		if i == 0 {
			d.rows = len(c.Values)
		} else if len(c.Values) != d.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, len(c.Values), d.rows)
		}
		if c.Type == "" {
			c.Type = InferType(c.Values)
		}
	}
	return d, nil
}

// MustNew is New for fixtures whose shape is known to be valid.
func MustNew(columns ...*Column) *Dataset {
	d, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return d
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.rows }

// Width returns the number of columns.
func (d *Dataset) Width() int { return len(d.columns) }

// Columns returns the column names in order.
func (d *Dataset) Columns() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.columns[i], true
}

// Has reports whether the dataset has a column with the given name.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Row returns the cells of row i in column order.
func (d *Dataset) Row(i int) []Value {
	row := make([]Value, len(d.columns))
	for j, c := range d.columns {
		row[j] = c.Values[i]
	}
	return row
}

// NullCount returns the number of null cells across the whole dataset.
func (d *Dataset) NullCount() int {
	n := 0
	for _, c := range d.columns {
		n += c.NullCount()
	}
	return n
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	cols := make([]*Column, len(d.columns))
	for i, c := range d.columns {
		values := make([]Value, len(c.Values))
		copy(values, c.Values)
		cols[i] = &Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return MustNew(cols...)
}

// Filter returns a new dataset holding the rows for which keep returns true.
func (d *Dataset) Filter(keep func(row int) bool) *Dataset {
	selected := make([]int, 0, d.rows)
	for i := 0; i < d.rows; i++ {
		if keep(i) {
			selected = append(selected, i)
		}
	}
	return d.take(selected)
}

// Head returns the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n > d.rows {
		n = d.rows
	}
	selected := make([]int, n)
	for i := range selected {
		selected[i] = i
	}
	return d.take(selected)
}

func (d *Dataset) take(rows []int) *Dataset {
	cols := make([]*Column, len(d.columns))
	for i, c := range d.columns {
		values := make([]Value, len(rows))
		for j, r := range rows {
			values[j] = c.Values[r]
		}
		cols[i] = &Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return MustNew(cols...)
}

// Replace returns a new dataset in which the named column holds values.
// Other columns are shared with the receiver. An empty column that gains
// non-null cells is retyped from its contents.
func (d *Dataset) Replace(name string, values []Value) (*Dataset, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	if len(values) != d.rows {
		return nil, fmt.Errorf("column %q: got %d values, expected %d", name, len(values), d.rows)
	}
	typ := d.columns[i].Type
	if typ == TypeEmpty {
		typ = InferType(values)
	}
	cols := make([]*Column, len(d.columns))
	copy(cols, d.columns)
	cols[i] = &Column{Name: name, Type: typ, Values: values}
	return New(cols...)
}

// Records returns the rows as maps, for JSON previews.
func (d *Dataset) Records() []map[string]any {
	out := make([]map[string]any, d.rows)
	for i := range out {
		rec := make(map[string]any, len(d.columns))
		for _, c := range d.columns {
			rec[c.Name] = c.Values[i].Interface()
		}
		out[i] = rec
	}
	return out
}

// InferType derives a column type from already-typed cells. Mixed kinds
// are reported as text.
func InferType(values []Value) Type {
	typ := TypeEmpty
	for _, v := range values {
		var t Type
		switch v.Kind() {
		case KindNull:
			continue
		case KindNumber:
			t = TypeNumeric
		case KindTime:
			t = TypeDatetime
		default:
			t = TypeText
		}
		if typ == TypeEmpty {
			typ = t
		} else if typ != t {
			return TypeText
		}
	}
	return typ
}
