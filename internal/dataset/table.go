package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingColumn is returned when an operation requires a column the table lacks.
var ErrMissingColumn = errors.New("missing column")

// Kind is the inferred storage type of a column.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
)

func (k Kind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "text"
}

// Column holds one named column. Numeric columns use NaN for nulls; text columns
// use Valid[i] == false.
type Column struct {
	Name  string
	Kind  Kind
	Nums  []float64
	Strs  []string
	Valid []bool
}

// NewNumericColumn builds a numeric column; NaN values are treated as null.
func NewNumericColumn(name string, vals []float64) *Column {
	return &Column{Name: name, Kind: KindNumeric, Nums: vals}
}

// NewTextColumn builds a text column. A nil valid slice marks every value present.
func NewTextColumn(name string, vals []string, valid []bool) *Column {
	if valid == nil {
		valid = make([]bool, len(vals))
		for i := range valid {
			valid[i] = true
		}
	}
	return &Column{Name: name, Kind: KindText, Strs: vals, Valid: valid}
}

// Len returns the number of cells.
func (c *Column) Len() int {
	if c.Kind == KindNumeric {
		return len(c.Nums)
	}
	return len(c.Strs)
}

// IsNull reports whether cell i is missing.
func (c *Column) IsNull(i int) bool {
	if c.Kind == KindNumeric {
		return math.IsNaN(c.Nums[i])
	}
	return !c.Valid[i]
}

// NullCount counts missing cells.
func (c *Column) NullCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			n++
		}
	}
	return n
}

// Float returns the numeric value of cell i, or NaN when null or not a number.
func (c *Column) Float(i int) float64 {
	if c.Kind == KindNumeric {
		return c.Nums[i]
	}
	if !c.Valid[i] {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(c.Strs[i]), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// String renders cell i; nulls render as the empty string.
func (c *Column) String(i int) string {
	if c.IsNull(i) {
		return ""
	}
	if c.Kind == KindNumeric {
		return FormatFloat(c.Nums[i])
	}
	return c.Strs[i]
}

// NonNullFloats returns the non-null numeric values in row order.
func (c *Column) NonNullFloats() []float64 {
	out := make([]float64, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		if v := c.Float(i); !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func (c *Column) take(idx []int) *Column {
	if c.Kind == KindNumeric {
		nums := make([]float64, len(idx))
		for k, i := range idx {
			nums[k] = c.Nums[i]
		}
		return NewNumericColumn(c.Name, nums)
	}
	strs := make([]string, len(idx))
	valid := make([]bool, len(idx))
	for k, i := range idx {
		strs[k] = c.Strs[i]
		valid[k] = c.Valid[i]
	}
	return NewTextColumn(c.Name, strs, valid)
}

// FormatFloat renders a float without a trailing ".0" for whole numbers.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Table is an ordered set of equally long columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a table from columns, which must share one length and have unique names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if i == 0 {
			t.rows = c.Len()
		}
		if c.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), t.rows)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		t.index[c.Name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// Rows returns the row count.
func (t *Table) Rows() int { return t.rows }

// Columns returns the columns in order. Callers must not mutate them.
func (t *Table) Columns() []*Column { return t.cols }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Has reports whether the table has the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Require returns an error naming every listed column the table lacks.
func (t *Table) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// Set adds the column, replacing any column with the same name in place.
func (t *Table) Set(c *Column) error {
	if len(t.cols) > 0 && c.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), t.rows)
	}
	if len(t.cols) == 0 {
		t.rows = c.Len()
	}
	if i, ok := t.index[c.Name]; ok {
		t.cols[i] = c
		return nil
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// Drop returns a table without the named columns; unknown names are ignored.
// Column data is shared with the receiver.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	out := &Table{index: map[string]int{}, rows: t.rows}
	for _, c := range t.cols {
		if _, ok := skip[c.Name]; ok {
			continue
		}
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out
}

// Select returns a table with exactly the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	if err := t.Require(names...); err != nil {
		return nil, err
	}
	out := &Table{index: make(map[string]int, len(names)), rows: t.rows}
	for _, n := range names {
		out.index[n] = len(out.cols)
		out.cols = append(out.cols, t.cols[t.index[n]])
	}
	return out, nil
}

// Take returns a new table holding the given rows, in order.
func (t *Table) Take(idx []int) *Table {
	out := &Table{index: make(map[string]int, len(t.cols)), rows: len(idx)}
	for _, c := range t.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.take(idx))
	}
	return out
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	idx := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.Take(idx)
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	idx := make([]int, t.rows)
	for i := range idx {
		idx[i] = i
	}
	return t.Take(idx)
}

// Floats returns the named column as float64 values (NaN for nulls).
func (t *Table) Floats(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	out := make([]float64, t.rows)
	for i := range out {
		out[i] = c.Float(i)
	}
	return out, nil
}

// Matrix returns the named columns as row-major float vectors.
func (t *Table) Matrix(names []string) ([][]float64, error) {
	cols := make([]*Column, len(names))
	for j, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, n)
		}
		cols[j] = c
	}
	out := make([][]float64, t.rows)
	for i := range out {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = c.Float(i)
		}
		out[i] = row
	}
	return out, nil
}
