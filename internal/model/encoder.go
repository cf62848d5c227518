package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// EncoderTable is a fitted label encoder for one categorical column.
type EncoderTable struct {
	column string
	codes  map[string]int
}

// NewEncoderTable builds a table from fitted classes; each label's code is
// its index.
func NewEncoderTable(column string, classes []string) *EncoderTable {
	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := codes[c]; !dup {
			codes[c] = i
		}
	}
	return &EncoderTable{column: column, codes: codes}
}

// NewEncoderTableFromMap builds a table from an explicit label → code mapping.
func NewEncoderTableFromMap(column string, mapping map[string]int) *EncoderTable {
	codes := make(map[string]int, len(mapping))
	for k, v := range mapping {
		codes[k] = v
	}
	return &EncoderTable{column: column, codes: codes}
}

// Column returns the column the table encodes.
func (t *EncoderTable) Column() string { return t.column }

// Code returns the code for a label.
func (t *EncoderTable) Code(label string) (int, bool) {
	c, ok := t.codes[label]
	return c, ok
}

// Len returns the number of known labels.
func (t *EncoderTable) Len() int { return len(t.codes) }

// EncoderSet holds the encoder tables keyed by column.
type EncoderSet struct {
	tables map[string]*EncoderTable
}

// NewEncoderSet creates a set from tables.
func NewEncoderSet(tables ...*EncoderTable) *EncoderSet {
	s := &EncoderSet{tables: make(map[string]*EncoderTable, len(tables))}
	for _, t := range tables {
		s.tables[t.column] = t
	}
	return s
}

// Table returns the encoder for a column.
func (s *EncoderSet) Table(column string) (*EncoderTable, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tables[column]
	return t, ok
}

// Columns returns the encoded columns, sorted.
func (s *EncoderSet) Columns() []string {
	if s == nil {
		return nil
	}
	cols := make([]string, 0, len(s.tables))
	for c := range s.tables {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Sizes maps each encoded column to its class count.
func (s *EncoderSet) Sizes() map[string]int {
	out := make(map[string]int)
	if s == nil {
		return out
	}
	for c, t := range s.tables {
		out[c] = t.Len()
	}
	return out
}

// UnmarshalJSON accepts {"column": ["a", "b"]} (fitted classes) or
// {"column": {"a": 0, "b": 1}} per column.
func (s *EncoderSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.tables = make(map[string]*EncoderTable, len(raw))
	for column, entry := range raw {
		entry = bytes.TrimSpace(entry)
		if len(entry) == 0 {
			return fmt.Errorf("encoder %q is empty", column)
		}
		switch entry[0] {
		case '[':
			dec := json.NewDecoder(bytes.NewReader(entry))
			dec.UseNumber()
			var items []any
			if err := dec.Decode(&items); err != nil {
				return fmt.Errorf("encoder %q: %w", column, err)
			}
			labels := make([]string, len(items))
			for i, item := range items {
				label, err := labelOf(item)
				if err != nil {
					return fmt.Errorf("encoder %q class %d: %w", column, i, err)
				}
				labels[i] = label
			}
			s.tables[column] = NewEncoderTable(column, labels)
		case '{':
			var mapping map[string]int
			if err := json.Unmarshal(entry, &mapping); err != nil {
				return fmt.Errorf("encoder %q: %w", column, err)
			}
			s.tables[column] = NewEncoderTableFromMap(column, mapping)
		default:
			return fmt.Errorf("encoder %q must be a list of classes or a label mapping", column)
		}
	}
	return nil
}

// labelOf renders a fitted class the way feature values are rendered, so
// numeric classes match numeric payload values.
func labelOf(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	default:
		return "", fmt.Errorf("unsupported class type %T", v)
	}
}
