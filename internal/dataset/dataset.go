package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// ColumnType is the declared storage type of a column.
type ColumnType string

const (
	Int64   ColumnType = "int64"
	Float64 ColumnType = "float64"
	Object  ColumnType = "object"
)

// Numeric reports whether the column holds numbers.
func (t ColumnType) Numeric() bool { return t == Int64 || t == Float64 }

// Column describes one field of the schema.
type Column struct {
	Name string
	Type ColumnType
}

// Record is one row; values are positional and aligned with Dataset.Columns.
type Record []Value

// Dataset is a fully materialized table with a fixed column schema.
type Dataset struct {
	Columns []Column
	Rows    []Record
}

// New builds a dataset from a header and untyped cells, inferring each column's
// declared type. A column is numeric when every present cell is a number; a
// column with no present cells is treated as text. Numbers found in a text
// column become text, using the original cell when one was kept.
func New(header []string, rows []Record) *Dataset {
	d := &Dataset{Columns: make([]Column, len(header))}
	for j, name := range header {
		d.Columns[j] = Column{Name: name, Type: inferType(rows, j)}
	}
	d.Rows = make([]Record, len(rows))
	for i, r := range rows {
		rec := make(Record, len(header))
		for j := range header {
			if j >= len(r) {
				continue
			}
			v := r[j]
			if d.Columns[j].Type == Object && v.Kind == Number && !v.IsNull() {
				if v.Str != "" {
					v = TextValue(v.Str)
				} else {
					v = TextValue(v.String())
				}
			}
			rec[j] = v
		}
		d.Rows[i] = rec
	}
	return d
}

func inferType(rows []Record, j int) ColumnType {
	var present, numbers int
	integral, missing := true, false
	for _, r := range rows {
		if j >= len(r) || r[j].IsNull() {
			missing = true
			continue
		}
		present++
		if r[j].Kind == Number {
			numbers++
			if r[j].Num != math.Trunc(r[j].Num) {
				integral = false
			}
		}
	}
	switch {
	case present == 0 || numbers < present:
		return Object
	case integral && !missing:
		return Int64
	default:
		return Float64
	}
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Rows) }

// Index returns the position of the named column or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether a column with the given name exists.
func (d *Dataset) Has(name string) bool { return d.Index(name) >= 0 }

// Names returns the column names in schema order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// NumericColumns returns the positions of numeric columns in schema order.
func (d *Dataset) NumericColumns() []int {
	var out []int
	for i, c := range d.Columns {
		if c.Type.Numeric() {
			out = append(out, i)
		}
	}
	return out
}

// Floats returns the present numeric values of column j in row order.
func (d *Dataset) Floats(j int) []float64 {
	out := make([]float64, 0, len(d.Rows))
	for _, r := range d.Rows {
		if !r[j].IsNull() && r[j].Kind == Number {
			out = append(out, r[j].Num)
		}
	}
	return out
}

// Aligned returns column j with one entry per record; missing cells are NaN.
func (d *Dataset) Aligned(j int) []float64 {
	out := make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		if r[j].IsNull() || r[j].Kind != Number {
			out[i] = math.NaN()
			continue
		}
		out[i] = r[j].Num
	}
	return out
}

// MissingCount counts null cells in column j.
func (d *Dataset) MissingCount(j int) int {
	n := 0
	for _, r := range d.Rows {
		if r[j].IsNull() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Columns: append([]Column(nil), d.Columns...),
		Rows:    make([]Record, len(d.Rows)),
	}
	for i, r := range d.Rows {
		out.Rows[i] = append(Record(nil), r...)
	}
	return out
}

// AddColumn appends a column and fills it with values from fn.
func (d *Dataset) AddColumn(c Column, fn func(Record) Value) {
	d.Columns = append(d.Columns, c)
	for i, r := range d.Rows {
		d.Rows[i] = append(r, fn(r))
	}
}

// SetColumn replaces the named column in place, keeping its position, or
// appends it when absent.
func (d *Dataset) SetColumn(c Column, fn func(Record) Value) {
	j := d.Index(c.Name)
	if j < 0 {
		d.AddColumn(c, fn)
		return
	}
	d.Columns[j] = c
	for _, r := range d.Rows {
		r[j] = fn(r)
	}
}

// Filter keeps the records for which keep returns true.
func (d *Dataset) Filter(keep func(Record) bool) int {
	kept := d.Rows[:0]
	removed := 0
	for _, r := range d.Rows {
		if keep(r) {
			kept = append(kept, r)
		} else {
			removed++
		}
	}
	d.Rows = kept
	return removed
}

// Key encodes a record for exact-match comparison.
func (r Record) Key() string {
	var b strings.Builder
	for i, v := range r {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(v.key())
	}
	return b.String()
}

// Row is a record bound to its column names so it marshals as a flat object.
type Row struct {
	cols []Column
	vals Record
}

// Get returns the value stored under the named column.
func (r Row) Get(name string) (Value, bool) {
	for i, c := range r.cols {
		if c.Name == name {
			return r.vals[i], true
		}
	}
	return Value{}, false
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := r.vals[i].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Row) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for i, c := range r.cols {
		var val yaml.Node
		scalar, _ := r.vals[i].MarshalYAML()
		if err := val.Encode(scalar); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Name}, &val)
	}
	return node, nil
}

// Records returns the rows bound to the schema, in order.
func (d *Dataset) Records() []Row {
	return d.Head(len(d.Rows))
}

// Head returns at most n rows bound to the schema.
func (d *Dataset) Head(n int) []Row {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Row, n)
	for i := 0; i < n; i++ {
		out[i] = Row{cols: d.Columns, vals: d.Rows[i]}
	}
	return out
}
