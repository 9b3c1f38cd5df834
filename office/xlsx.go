package office

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is a worksheet as rows of formatted cell text.
type Sheet struct {
	Name string
	Rows [][]string
}

// OpenWorkbook reads every worksheet of an .xlsx file. Rows with no text
// are dropped and the rest are padded to the widest row.
func OpenWorkbook(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("office: open workbook: %w", err)
	}
	defer f.Close()
	return readSheets(f)
}

// ReadWorkbook reads a workbook from r.
func ReadWorkbook(r io.Reader) ([]Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("office: open workbook: %w", err)
	}
	defer f.Close()
	return readSheets(f)
}

func readSheets(f *excelize.File) ([]Sheet, error) {
	var out []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("office: sheet %q: %w", name, err)
		}
		s := Sheet{Name: name}
		width := 0
		for _, r := range rows {
			if strings.TrimSpace(strings.Join(r, "")) == "" {
				continue
			}
			s.Rows = append(s.Rows, r)
			width = max(width, len(r))
		}
		for i, r := range s.Rows {
			for len(r) < width {
				r = append(r, "")
			}
			s.Rows[i] = r
		}
		out = append(out, s)
	}
	return out, nil
}

// WriteWorkbook writes sheets to w as an .xlsx file. At least one sheet is
// always written.
func WriteWorkbook(w io.Writer, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()
	if len(sheets) == 0 {
		sheets = []Sheet{{Name: "Sheet1"}}
	}
	first := f.GetSheetName(0)
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(first, s.Name); err != nil {
				return fmt.Errorf("office: sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("office: sheet %q: %w", s.Name, err)
		}
		width := 0
		for r, row := range s.Rows {
			width = max(width, len(row))
			for c, v := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return err
				}
				if err := f.SetCellStr(s.Name, cell, v); err != nil {
					return err
				}
			}
		}
		if width == 1 {
			if err := f.SetColWidth(s.Name, "A", "A", 80); err != nil {
				return err
			}
		}
	}
	_, err := f.WriteTo(w)
	return err
}
