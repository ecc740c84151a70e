// Package dataset loads probe station datafiles: it parses the metadata
// header, segments the numeric body and builds the handler registered for
// the measurement mode.
package dataset

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/datafile"
)

type handlerFactory func(*datafile.Metadata, []*datafile.Table, analysis.Options) (analysis.Handler, error)

// modeEntry is everything the loader needs to know about one mode.
type modeEntry struct {
	headerSkip int // non-blank lines between the metadata and the column header
	columns    int // declared body width
	tables     int // expected number of numeric blocks
	newHandler handlerFactory
}

var registry = map[datafile.Mode]modeEntry{
	datafile.ModeDCIV: {
		headerSkip: 0, columns: 3, tables: 1,
		newHandler: func(md *datafile.Metadata, t []*datafile.Table, o analysis.Options) (analysis.Handler, error) {
			return analysis.NewDCIV(md, t, o)
		},
	},
	datafile.ModeCV: {
		headerSkip: 4, columns: 5, tables: 1,
		newHandler: func(md *datafile.Metadata, t []*datafile.Table, o analysis.Options) (analysis.Handler, error) {
			return analysis.NewCV(md, t, o)
		},
	},
	datafile.ModePQPUND: {
		headerSkip: 1, columns: 3, tables: 3,
		newHandler: func(md *datafile.Metadata, t []*datafile.Table, o analysis.Options) (analysis.Handler, error) {
			return analysis.NewPQPUND(md, t, o)
		},
	},
	datafile.ModePUNDD: {
		headerSkip: 3, columns: 4, tables: 1,
		newHandler: func(md *datafile.Metadata, t []*datafile.Table, o analysis.Options) (analysis.Handler, error) {
			return analysis.NewPUNDD(md, t, o)
		},
	},
}

// Dataset is one loaded datafile.
type Dataset struct {
	Path     string
	Mode     datafile.Mode
	Metadata *datafile.Metadata
	Tables   []*datafile.Table
	Handler  analysis.Handler
}

// Load reads and parses the datafile at path.
func Load(path string, opts analysis.Options) (*Dataset, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read datafile")
	}
	ds, err := Parse(string(content), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "datafile %s", filepath.Base(path))
	}
	ds.Path = path
	return ds, nil
}

// Parse builds a Dataset from the text of a datafile.
func Parse(input string, opts analysis.Options) (*Dataset, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan datafile")
	}

	md, bodyStart, err := datafile.ParseMetadata(lines)
	if err != nil {
		return nil, err
	}
	mode, err := md.Mode()
	if err != nil {
		return nil, err
	}
	entry, ok := registry[mode]
	if !ok {
		return nil, errors.Wrapf(datafile.ErrUnsupportedMode, "%q", mode)
	}

	body := bodyLines(lines, bodyStart, entry.headerSkip)
	rows := datafile.SplitCells(body, entry.columns)
	if len(rows) == 0 {
		return nil, errors.Wrapf(datafile.ErrMalformedBlock, "%s: no column header after metadata", mode)
	}

	tables, err := datafile.Segment(rows[0], rows[1:])
	if err != nil {
		return nil, errors.Wrapf(err, "%s body", mode)
	}
	if len(tables) != entry.tables {
		logger.Warn("unexpected number of data blocks",
			slog.String("mode", string(mode)),
			slog.Int("blocks", len(tables)),
			slog.Int("expected", entry.tables))
	}

	handler, err := entry.newHandler(md, tables, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("datafile loaded",
		slog.String("mode", string(mode)),
		slog.Int("metadata", md.Len()),
		slog.Int("tables", len(tables)),
		slog.Int("rows", handler.Data().Rows()))
	return &Dataset{
		Mode:     mode,
		Metadata: md,
		Tables:   tables,
		Handler:  handler,
	}, nil
}

// bodyLines skips the mode's extra header lines unless the metadata already
// ended on the column header.
func bodyLines(lines []string, start, skip int) []string {
	if start >= len(lines) {
		return nil
	}
	if datafile.IsColumnHeader(datafile.SplitKeys(lines[start])) {
		return lines[start:]
	}
	i := start
	for skip > 0 && i < len(lines) {
		if strings.TrimSpace(lines[i]) != "" {
			skip--
		}
		i++
	}
	return lines[i:]
}

// Modes lists the modes the loader can dispatch.
func Modes() []datafile.Mode {
	var out []datafile.Mode
	for _, m := range datafile.Modes() {
		if _, ok := registry[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
