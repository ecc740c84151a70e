// Package export writes loaded measurements to spreadsheets and parquet
// files.
package export

import (
	"github.com/pkg/errors"

	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/datafile"
)

// NamedTable is a table with the sheet or file name it is written under.
type NamedTable struct {
	Name  string
	Table *datafile.Table
}

// Bundle is everything exported for one measurement.
type Bundle struct {
	Mode     datafile.Mode
	Metadata *datafile.Metadata
	Tables   []NamedTable
	Summary  analysis.Summary
}

type pqpundTables interface {
	Transition() *datafile.Table
	Plateau() *datafile.Table
	Charge() *datafile.Table
}

// FromHandler collects the working data, the mode specific tables and the
// summary of h.
func FromHandler(h analysis.Handler) (Bundle, error) {
	summary, err := h.Summarize()
	if err != nil {
		return Bundle{}, errors.Wrapf(err, "summarize %s", h.Mode())
	}

	b := Bundle{
		Mode:     h.Mode(),
		Metadata: h.Metadata(),
		Tables:   []NamedTable{{Name: "Data", Table: h.Data()}},
		Summary:  summary,
	}
	if pq, ok := h.(pqpundTables); ok {
		b.Tables = append(b.Tables,
			NamedTable{Name: "Transition", Table: pq.Transition()},
			NamedTable{Name: "Plateau", Table: pq.Plateau()})
		if charge := pq.Charge(); charge != nil {
			b.Tables = append(b.Tables, NamedTable{Name: "Charge", Table: charge})
		}
	}
	return b, nil
}
