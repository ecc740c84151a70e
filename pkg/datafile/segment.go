package datafile

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SplitCells splits body lines on whitespace, keeps at most width cells per
// row and drops blank rows. Extra cells are discarded without error.
func SplitCells(lines []string, width int) [][]string {
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		cells := strings.Fields(line)
		if len(cells) == 0 {
			continue
		}
		if width > 0 && len(cells) > width {
			cells = cells[:width]
		}
		rows = append(rows, cells)
	}
	return rows
}

func isNumericRow(row []string) bool {
	for _, cell := range row {
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
	}
	return true
}

// firstNonNumeric returns the index of the first row with a cell that does
// not parse as a float, or -1.
func firstNonNumeric(rows [][]string) int {
	for i, row := range rows {
		if !isNumericRow(row) {
			return i
		}
	}
	return -1
}

// Segment splits rows into consecutive numeric tables. Each non-numeric row
// ends a table and is dropped together with the row after it; when that row
// is a text row as wide as the remainder, it names the next table's columns.
// A separator in the first row yields an empty table.
func Segment(columns []string, rows [][]string) ([]*Table, error) {
	var tables []*Table
	cols := columns
	rem := rows
	offset := 0 // row index in the original input, for error messages

	for {
		idx := firstNonNumeric(rem)
		if idx < 0 {
			t, err := toTable(cols, rem, offset)
			if err != nil {
				return nil, err
			}
			return append(tables, t), nil
		}

		t, err := toTable(cols, rem[:idx], offset)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)

		var title []string
		if idx+1 < len(rem) && !isNumericRow(rem[idx+1]) {
			title = rem[idx+1]
		}

		skip := min(idx+2, len(rem))
		rem = rem[skip:]
		offset += skip
		if len(rem) == 0 {
			return tables, nil
		}

		width := 0
		for _, row := range rem {
			width = max(width, len(row))
		}
		if width < len(cols) {
			cols = cols[:width]
		}
		if title != nil && len(title) == len(cols) {
			cols = title
		}
	}
}

func toTable(columns []string, rows [][]string, offset int) (*Table, error) {
	t, err := emptyTable(columns, len(rows))
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.Wrapf(ErrMalformedBlock, "row %d has %d cells, want %d", offset+i, len(row), len(columns))
		}
		for j, name := range columns {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedBlock, "row %d column %q: %v", offset+i, name, err)
			}
			t.data[name][i] = v
		}
	}
	return t, nil
}
