package roster

import "strings"

// Record is one row of the attendee table. Values are positional against the
// schema shared by every record of the same Table.
type Record struct {
	columns []string
	values  []string
}

func newRecord(columns []string, row []string) Record {
	values := make([]string, len(columns))
	copy(values, row)
	return Record{columns: columns, values: values}
}

// Get returns the value stored under column. Lookups are exact on the
// trimmed header text; an unknown column yields ("", false).
func (r Record) Get(column string) (string, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return "", false
}

// Value returns the value under column, or "" when the column is unknown.
func (r Record) Value(column string) string {
	v, _ := r.Get(column)
	return v
}

// Columns returns the record's column names in schema order.
func (r Record) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Values returns the record's values in schema order.
func (r Record) Values() []string {
	return append([]string(nil), r.values...)
}

// Map returns the record as a column -> value map. Order is lost; use
// Columns and Values when it matters.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.columns))
	for i, c := range r.columns {
		if _, dup := m[c]; !dup {
			m[c] = r.values[i]
		}
	}
	return m
}

func (r Record) containsFold(needle string) bool {
	for _, v := range r.values {
		if v != "" && strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
