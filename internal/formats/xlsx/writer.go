package xlsx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// WriteFile creates a new .xlsx file from the given workbook data. Parent
// directories are created as needed.
func WriteFile(wb *Workbook, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range wb.Sheets {
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}

		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("could not rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("could not create sheet %q: %w", name, err)
		}

		for r, row := range sheet.Rows {
			cells := make([]any, len(row))
			for c, v := range row {
				cells[c] = v
			}
			start, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return fmt.Errorf("invalid cell coordinates: %w", err)
			}
			if err := f.SetSheetRow(name, start, &cells); err != nil {
				return fmt.Errorf("could not write row %d of %q: %w", r+1, name, err)
			}
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create %s: %w", dir, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("could not save %s: %w", path, err)
	}

	return nil
}

// Bytes encodes the workbook as .xlsx bytes by writing it through a temporary file.
func Bytes(wb *Workbook) ([]byte, error) {
	dir, err := os.MkdirTemp("", "rosterbot-xlsx-*")
	if err != nil {
		return nil, fmt.Errorf("could not create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "book.xlsx")
	if err := WriteFile(wb, path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
