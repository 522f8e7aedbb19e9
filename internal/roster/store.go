// Package roster holds the attendee table loaded from the live spreadsheet
// and answers queries over it.
//
// A Store owns exactly one Table at a time. Loads build a new Table off to
// the side and publish it with a single atomic pointer swap, so readers see
// either the previous table or the new one and never a partially built one.
package roster

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/klytics/rosterbot/internal/formats/xlsx"
)

// DefaultSheet is the worksheet name the bot expects the attendee data in.
const DefaultSheet = "Feuil1"

// ErrEmptySheet is returned when the required sheet has no header row.
var ErrEmptySheet = errors.New("sheet has no header row")

// Table is an immutable snapshot of the attendee data.
type Table struct {
	Columns []string
	Records []Record
}

// Stats summarises a Table.
type Stats struct {
	Records  int           `json:"records"`
	Columns  int           `json:"columns"`
	Distinct []ColumnCount `json:"distinct"`
}

// ColumnCount is the number of distinct non-empty values seen in a column.
type ColumnCount struct {
	Column string `json:"column"`
	Count  int    `json:"count"`
}

// Condition is one column=value equality test used by Filter.
type Condition struct {
	Column string
	Value  string
}

// ParseCondition splits "column=value" on the first '='. Whitespace around
// both halves is trimmed.
func ParseCondition(s string) (Condition, error) {
	col, val, ok := strings.Cut(s, "=")
	if !ok {
		return Condition{}, fmt.Errorf("invalid condition %q: expected column=value", s)
	}
	return Condition{Column: strings.TrimSpace(col), Value: strings.TrimSpace(val)}, nil
}

// Store is the in-memory Tabular Store bound to a live spreadsheet path.
type Store struct {
	path  string
	sheet string
	table atomic.Pointer[Table]
}

// New returns a Store reading sheet from path. The table is empty until Load
// succeeds.
func New(path, sheet string) *Store {
	if sheet == "" {
		sheet = DefaultSheet
	}
	s := &Store{path: path, sheet: sheet}
	s.table.Store(&Table{})
	return s
}

// Path returns the live dataset path the store reads from.
func (s *Store) Path() string { return s.path }

// Sheet returns the required sheet name.
func (s *Store) Sheet() string { return s.sheet }

// Load reads the live spreadsheet and publishes a new table. On any error the
// previous table stays in place and the error is logged and returned.
func (s *Store) Load() error {
	t, err := s.build()
	if err != nil {
		logger().Error("could not load spreadsheet", "path", s.path, "sheet", s.sheet, "error", err)
		return err
	}
	s.table.Store(t)
	logger().Info("spreadsheet loaded",
		"records", len(t.Records), "columns", len(t.Columns), "sheet", s.sheet)
	return nil
}

// Reload discards the current table and loads the live file again. It is
// safe to call while queries are running.
func (s *Store) Reload() error {
	return s.Load()
}

func (s *Store) build() (*Table, error) {
	sheet, err := xlsx.ReadSheet(s.path, s.sheet)
	if err != nil {
		return nil, err
	}

	columns := sheet.Header()
	if columns == nil {
		return nil, fmt.Errorf("%w: %q in %s", ErrEmptySheet, s.sheet, s.path)
	}

	rows := sheet.DataRows()
	t := &Table{
		Columns: columns,
		Records: make([]Record, 0, len(rows)),
	}
	for _, row := range rows {
		t.Records = append(t.Records, newRecord(columns, row))
	}
	return t, nil
}

// Snapshot returns the currently published table.
func (s *Store) Snapshot() *Table {
	return s.table.Load()
}

// All returns every record in load order.
func (s *Store) All() []Record {
	return s.Snapshot().Records
}

// Columns returns the schema of the current table.
func (s *Store) Columns() []string {
	return append([]string(nil), s.Snapshot().Columns...)
}

// Len returns the number of records in the current table.
func (s *Store) Len() int {
	return len(s.Snapshot().Records)
}

// Search returns the records where any value contains query, ignoring case.
func (s *Store) Search(query string) []Record {
	needle := strings.ToLower(query)
	var out []Record
	for _, r := range s.Snapshot().Records {
		if r.containsFold(needle) {
			out = append(out, r)
		}
	}
	return out
}

// SearchByColumn is Search restricted to a single column. The column name is
// matched case-insensitively; an unknown column matches nothing.
func (s *Store) SearchByColumn(column, query string) []Record {
	t := s.Snapshot()
	idx := resolve(t.Columns, column)
	if idx < 0 {
		return nil
	}

	needle := strings.ToLower(query)
	var out []Record
	for _, r := range t.Records {
		v := r.values[idx]
		if v != "" && strings.Contains(strings.ToLower(v), needle) {
			out = append(out, r)
		}
	}
	return out
}

// Filter returns the records satisfying every condition by case-insensitive
// exact match. A condition on an unknown column excludes all records, and an
// empty cell never matches.
func (s *Store) Filter(conditions []Condition) []Record {
	t := s.Snapshot()

	idx := make([]int, len(conditions))
	for i, c := range conditions {
		idx[i] = resolve(t.Columns, c.Column)
		if idx[i] < 0 {
			return nil
		}
	}

	var out []Record
	for _, r := range t.Records {
		match := true
		for i, c := range conditions {
			v := r.values[idx[i]]
			if v == "" || !strings.EqualFold(v, c.Value) {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out
}

// Stats counts records, columns, and distinct non-empty values per column.
func (s *Store) Stats() Stats {
	t := s.Snapshot()
	st := Stats{
		Records:  len(t.Records),
		Columns:  len(t.Columns),
		Distinct: make([]ColumnCount, len(t.Columns)),
	}
	for i, col := range t.Columns {
		seen := make(map[string]struct{})
		for _, r := range t.Records {
			if v := r.values[i]; v != "" {
				seen[v] = struct{}{}
			}
		}
		st.Distinct[i] = ColumnCount{Column: col, Count: len(seen)}
	}
	return st
}

func logger() *slog.Logger {
	return slog.Default().With("component", "roster")
}

func resolve(columns []string, name string) int {
	for i, c := range columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}
