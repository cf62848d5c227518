// Package features turns a raw transaction payload into the feature vector
// the fraud model was fitted on.
package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonical column names, as seen by the fitted model and encoders.
const (
	ColTransactionID     = "Transaction ID"
	ColCustomerID        = "Customer ID"
	ColTimestamp         = "Timestamp"
	ColAmount            = "Amount (TRY)"
	ColCustomerFreq      = "Customer_Freq"
	ColCustomerAvgAmount = "Customer_Avg_Amount"
	ColHour              = "Hour"
	ColDayOfWeek         = "DayOfWeek"
	ColAmountDiff        = "Amount_Diff"
)

// ErrMalformedInput is returned when the payload cannot be turned into a record
// or lacks a parseable timestamp or numeric amount.
var ErrMalformedInput = errors.New("malformed input")

// aliases maps accepted snake_case payload keys to canonical columns.
var aliases = map[string]string{
	"transaction_id":      ColTransactionID,
	"customer_id":         ColCustomerID,
	"timestamp":           ColTimestamp,
	"amount":              ColAmount,
	"customer_freq":       ColCustomerFreq,
	"customer_avg_amount": ColCustomerAvgAmount,
}

// optional columns treat an explicit null as absent.
var optional = map[string]bool{
	ColCustomerFreq:      true,
	ColCustomerAvgAmount: true,
}

// CanonicalName returns the canonical column for a payload key.
func CanonicalName(key string) string {
	if c, ok := aliases[key]; ok {
		return c
	}
	return key
}

// Record is one inbound transaction. Columns keep payload order.
type Record struct {
	fields *Vector
}

// NewRecord builds a record from a map. Since maps are unordered, columns are
// sorted by canonical name; use DecodeRecord to keep payload order.
func NewRecord(fields map[string]any) (*Record, error) {
	names := make([]string, 0, len(fields))
	byName := make(map[string]any, len(fields))
	for k, v := range fields {
		c := CanonicalName(k)
		if _, dup := byName[c]; !dup {
			names = append(names, c)
		}
		byName[c] = v
	}
	sort.Strings(names)

	rec := &Record{fields: NewVector()}
	for _, name := range names {
		if err := rec.set(name, byName[name]); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// DecodeRecord reads exactly one JSON object from r.
func DecodeRecord(r io.Reader) (*Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedInput)
	}

	rec := &Record{fields: NewVector()}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrMalformedInput, key, err)
		}
		if err := rec.setRaw(CanonicalName(key), raw); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrMalformedInput)
	}
	return rec, nil
}

func (r *Record) setRaw(name string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("%w: field %q is empty", ErrMalformedInput, name)
	}

	switch raw[0] {
	case 'n':
		if optional[name] {
			r.fields.Delete(name)
			return nil
		}
		r.fields.Set(name, Number(math.NaN()))
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrMalformedInput, name, err)
		}
		r.fields.Set(name, String(s))
	case 't':
		r.fields.Set(name, Number(1))
	case 'f':
		r.fields.Set(name, Number(0))
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrMalformedInput, name, err)
		}
		r.fields.Set(name, String(buf.String()))
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrMalformedInput, name, err)
		}
		r.fields.Set(name, Number(f))
	}
	return nil
}

func (r *Record) set(name string, v any) error {
	switch x := v.(type) {
	case nil:
		if optional[name] {
			r.fields.Delete(name)
			return nil
		}
		r.fields.Set(name, Number(math.NaN()))
	case string:
		r.fields.Set(name, String(x))
	case bool:
		if x {
			r.fields.Set(name, Number(1))
		} else {
			r.fields.Set(name, Number(0))
		}
	case float64:
		r.fields.Set(name, Number(x))
	case float32:
		r.fields.Set(name, Number(float64(x)))
	case int:
		r.fields.Set(name, Number(float64(x)))
	case int64:
		r.fields.Set(name, Number(float64(x)))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrMalformedInput, name, err)
		}
		r.fields.Set(name, Number(f))
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrMalformedInput, name, err)
		}
		return r.setRaw(name, data)
	}
	return nil
}

// Get returns a column value by canonical name.
func (r *Record) Get(name string) (Value, bool) {
	return r.fields.Get(name)
}

// Columns returns the record's column names in payload order.
func (r *Record) Columns() []string {
	return r.fields.Columns()
}

// TransactionID returns the transaction identifier, or "" if absent.
func (r *Record) TransactionID() string {
	return r.label(ColTransactionID)
}

// CustomerID returns the customer identifier, or "" if absent.
func (r *Record) CustomerID() string {
	return r.label(ColCustomerID)
}

// Amount returns the amount when it is numeric.
func (r *Record) Amount() (float64, bool) {
	v, ok := r.fields.Get(ColAmount)
	if !ok {
		return 0, false
	}
	return numeric(v)
}

func (r *Record) label(name string) string {
	v, ok := r.fields.Get(name)
	if !ok {
		return ""
	}
	if f, isNum := v.Float(); isNum && math.IsNaN(f) {
		return ""
	}
	return v.Label()
}

// numeric accepts numbers and numeric strings. NaN and infinities are rejected.
func numeric(v Value) (float64, bool) {
	f, ok := v.Float()
	if !ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Label()), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
