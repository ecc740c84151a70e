package export

import (
	"math"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/mipt-srf/probe-station/pkg/datafile"
	"github.com/mipt-srf/probe-station/pkg/util"
)

const (
	MetadataSheet = "Metadata"
	SummarySheet  = "Summary"
)

// WriteWorkbook saves b as an xlsx file with a metadata sheet, one sheet
// per table and a summary sheet. NaN cells are left empty.
func WriteWorkbook(path string, b Bundle) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), MetadataSheet); err != nil {
		return errors.Wrap(err, "rename first sheet")
	}
	if err := writeMetadata(f, b); err != nil {
		return err
	}
	for _, nt := range b.Tables {
		if err := writeTable(f, nt); err != nil {
			return errors.Wrapf(err, "sheet %s", nt.Name)
		}
	}
	if err := writeSummary(f, b); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "save workbook %s", path)
	}
	return nil
}

func writeMetadata(f *excelize.File, b Bundle) error {
	if err := setRow(f, MetadataSheet, 1, []any{"Key", "Value"}); err != nil {
		return err
	}
	if b.Metadata == nil {
		return nil
	}
	for i, key := range b.Metadata.Keys() {
		v, _ := b.Metadata.Get(key)
		var cell any = v.Raw
		switch v.Kind {
		case datafile.KindInt:
			cell = v.Int
		case datafile.KindFloat:
			cell = v.Float
		}
		if err := setRow(f, MetadataSheet, i+2, []any{key, cell}); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(f *excelize.File, nt NamedTable) error {
	if _, err := f.NewSheet(nt.Name); err != nil {
		return err
	}
	columns := nt.Table.Columns()
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := setRow(f, nt.Name, 1, header); err != nil {
		return err
	}

	for i := 0; i < nt.Table.Rows(); i++ {
		row := nt.Table.Row(i)
		cells := make([]any, len(row))
		for j, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				cells[j] = v
			}
		}
		if err := setRow(f, nt.Name, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, b Bundle) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	if err := setRow(f, SummarySheet, 1, []any{"Quantity", "Value", "Unit", "Display"}); err != nil {
		return err
	}
	for i, q := range b.Summary {
		var value any
		if !math.IsNaN(q.Value) && !math.IsInf(q.Value, 0) {
			value = q.Value
		}
		row := []any{q.Name, value, q.Unit, util.FormatValueFactor(q.Value, q.Unit)}
		if err := setRow(f, SummarySheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}
