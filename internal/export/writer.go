package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Write renders r as an xlsx workbook, one worksheet per sheet in order.
func Write(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	defaultSheet := f.GetSheetName(0)
	for i, s := range r.Sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, s.Name); err != nil {
				return fmt.Errorf("rename sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("new sheet %q: %w", s.Name, err)
		}
		if err := writeSheet(f, s, header); err != nil {
			return fmt.Errorf("sheet %q: %w", s.Name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, s Sheet, headerStyle int) error {
	headers := make([]any, len(s.Headers))
	for i, h := range s.Headers {
		headers[i] = h
	}
	if err := f.SetSheetRow(s.Name, "A1", &headers); err != nil {
		return err
	}
	if err := f.SetRowStyle(s.Name, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, row := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
			return err
		}
	}

	for i, width := range s.Widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(s.Name, col, col, width); err != nil {
			return err
		}
	}
	return nil
}
