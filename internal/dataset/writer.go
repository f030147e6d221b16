package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/KaramelBytes/riskloom-cli/internal/utils"
	"github.com/xuri/excelize/v2"
)

// WriteDelimited writes the table with a header row using the given delimiter.
func WriteDelimited(w io.Writer, t *Table, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	cols := t.Columns()
	rec := make([]string, len(cols))
	for i := 0; i < t.Rows(); i++ {
		for j, c := range cols {
			rec[j] = c.String(i)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes a comma-delimited copy of the table atomically.
func WriteCSVFile(path string, t *Table) error {
	var buf bytes.Buffer
	if err := WriteDelimited(&buf, t, ','); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

// WriteXLSX exports the table to a single-sheet workbook. Numeric cells are
// written as numbers; nulls are left empty.
func WriteXLSX(path, sheet string, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	header := make([]interface{}, 0, len(t.Columns()))
	for _, n := range t.Names() {
		header = append(header, n)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	cols := t.Columns()
	for i := 0; i < t.Rows(); i++ {
		row := make([]interface{}, len(cols))
		for j, c := range cols {
			switch {
			case c.IsNull(i):
				row[j] = nil
			case c.Kind == KindNumeric:
				row[j] = c.Nums[i]
			default:
				row[j] = c.Strs[i]
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}
