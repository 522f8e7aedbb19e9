// Package xlsx provides reading and writing capabilities for .xlsx (Excel) files.
package xlsx

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrSheetNotFound is returned when a workbook has no sheet with the requested name.
var ErrSheetNotFound = errors.New("sheet not found")

// Sheet represents a single worksheet's data.
type Sheet struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// Workbook represents a parsed Excel file with all its sheets.
type Workbook struct {
	Sheets []Sheet `json:"sheets"`
}

// ReadFile reads an .xlsx file and returns every sheet in it.
func ReadFile(path string) (*Workbook, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readWorkbook(f)
}

// ReadBytes reads an .xlsx file from a byte slice and returns its structured data.
func ReadBytes(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not read Excel data: %w", err)
	}
	defer f.Close()

	return readWorkbook(f)
}

// ReadSheet opens path and reads only the named sheet. When the sheet is
// missing the returned error wraps ErrSheetNotFound and lists the sheets
// that do exist.
func ReadSheet(path, name string) (*Sheet, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	list := f.GetSheetList()
	found := false
	for _, s := range list {
		if s == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q in %s (available sheets: %s)",
			ErrSheetNotFound, name, path, strings.Join(list, ", "))
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %q: %w", name, err)
	}
	return &Sheet{Name: name, Rows: rows}, nil
}

func open(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("could not stat %s: %w", path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s as .xlsx: %w", path, err)
	}
	return f, nil
}

func readWorkbook(f *excelize.File) (*Workbook, error) {
	wb := &Workbook{}

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("could not read sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}

	return wb, nil
}

// SheetNames returns the sheet names in workbook order.
func (wb *Workbook) SheetNames() []string {
	names := make([]string, len(wb.Sheets))
	for i, s := range wb.Sheets {
		names[i] = s.Name
	}
	return names
}

// GetSheet returns a specific sheet by name. Returns an error wrapping
// ErrSheetNotFound if the sheet is not found.
func (wb *Workbook) GetSheet(name string) (*Sheet, error) {
	for i := range wb.Sheets {
		if wb.Sheets[i].Name == name {
			return &wb.Sheets[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q (available sheets: %s)",
		ErrSheetNotFound, name, strings.Join(wb.SheetNames(), ", "))
}

// Header returns the first row with surrounding whitespace trimmed from each
// cell, or nil for an empty sheet.
func (s *Sheet) Header() []string {
	if len(s.Rows) == 0 {
		return nil
	}
	header := make([]string, len(s.Rows[0]))
	for i, cell := range s.Rows[0] {
		header[i] = strings.TrimSpace(cell)
	}
	return header
}

// DataRows returns every row after the header.
func (s *Sheet) DataRows() [][]string {
	if len(s.Rows) < 2 {
		return nil
	}
	return s.Rows[1:]
}

// RowCount returns the total number of rows with at least one non-empty cell.
func (s *Sheet) RowCount() int {
	count := 0
	for _, row := range s.Rows {
		for _, cell := range row {
			if cell != "" {
				count++
				break
			}
		}
	}
	return count
}
