package features

import (
	"math"
	"strconv"
)

// Kind distinguishes numeric from categorical column values.
type Kind int

const (
	KindNumber Kind = iota
	KindString
)

// Value is a single cell of a feature vector.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a categorical value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Kind reports whether the value is numeric or categorical.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric value and true, or 0 and false for categorical values.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Label returns the value as an encoder label. Numbers use their shortest
// decimal representation so 3 and 3.0 both become "3".
func (v Value) Label() string {
	if v.kind == KindString {
		return v.str
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

func (v Value) String() string { return v.Label() }

// Vector is an ordered set of named feature columns. Column order is the
// order in which columns were first set.
type Vector struct {
	order []string
	cols  map[string]Value
}

// NewVector creates an empty vector.
func NewVector() *Vector {
	return &Vector{cols: make(map[string]Value)}
}

// Set assigns a column, appending it if new and replacing in place otherwise.
func (v *Vector) Set(name string, val Value) {
	if _, ok := v.cols[name]; !ok {
		v.order = append(v.order, name)
	}
	v.cols[name] = val
}

// Get returns a column value.
func (v *Vector) Get(name string) (Value, bool) {
	val, ok := v.cols[name]
	return val, ok
}

// Has reports whether the column is present.
func (v *Vector) Has(name string) bool {
	_, ok := v.cols[name]
	return ok
}

// Delete removes a column if present.
func (v *Vector) Delete(name string) {
	if _, ok := v.cols[name]; !ok {
		return
	}
	delete(v.cols, name)
	for i, n := range v.order {
		if n == name {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Columns returns column names in order.
func (v *Vector) Columns() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Len returns the number of columns.
func (v *Vector) Len() int { return len(v.order) }

// Clone returns a deep copy.
func (v *Vector) Clone() *Vector {
	c := &Vector{
		order: make([]string, len(v.order)),
		cols:  make(map[string]Value, len(v.cols)),
	}
	copy(c.order, v.order)
	for k, val := range v.cols {
		c.cols[k] = val
	}
	return c
}

// Map returns the vector as a plain map, numbers as float64 and categories as
// string. Non-finite numbers become nil so the map is JSON-safe.
func (v *Vector) Map() map[string]any {
	out := make(map[string]any, len(v.cols))
	for k, val := range v.cols {
		if f, ok := val.Float(); ok {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				out[k] = nil
				continue
			}
			out[k] = f
		} else {
			out[k] = val.str
		}
	}
	return out
}
