// Package batch processes a folder of datafiles written by one measurement
// session, where files are numbered 1.data, 2.data and so on.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/dataset"
)

const Extension = ".data"

// FilesInFolder returns dir/1.data up to dir/N.data, where N is the number
// of datafiles in dir. Indices listed in ignore are left out.
func FilesInFolder(dir string, ignore ...int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "list datafiles")
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), Extension) {
			count++
		}
	}
	var paths []string
	for i := 1; i <= count; i++ {
		if slices.Contains(ignore, i) {
			continue
		}
		paths = append(paths, filepath.Join(dir, fmt.Sprintf("%d%s", i, Extension)))
	}
	return paths, nil
}

// Run is one batch over a set of files. Its ID tags every log record.
type Run struct {
	ID      uuid.UUID
	Options analysis.Options
	Workers int

	logger *slog.Logger
}

func NewRun(opts analysis.Options, workers int) *Run {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	logger = logger.With(slog.String("run_id", id.String()))
	opts.Logger = logger
	return &Run{ID: id, Options: opts, Workers: workers, logger: logger}
}

// LoadAll loads paths concurrently and returns the datasets in input order.
// The first failure cancels the files not yet started.
func (r *Run) LoadAll(ctx context.Context, paths []string) ([]*dataset.Dataset, error) {
	out := make([]*dataset.Dataset, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ds, err := dataset.Load(path, r.Options)
			if err != nil {
				return err
			}
			out[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("batch load failed", slog.String("error", err.Error()))
		return nil, err
	}
	r.logger.Info("batch loaded", slog.Int("files", len(paths)))
	return out, nil
}

func dcivHandler(ds *dataset.Dataset, i int) (*analysis.DCIV, error) {
	h, ok := ds.Handler.(*analysis.DCIV)
	if !ok {
		return nil, errors.Wrapf(analysis.ErrInvalidArgument, "file %d is %s, not DC IV", i+1, ds.Mode)
	}
	return h, nil
}

// ThresholdCurve returns, for every DC-IV dataset, the bias at which the
// current magnitude is smallest.
func ThresholdCurve(datasets []*dataset.Dataset) ([]float64, error) {
	out := make([]float64, len(datasets))
	for i, ds := range datasets {
		h, err := dcivHandler(ds, i)
		if err != nil {
			return nil, err
		}
		if out[i], err = h.VoltageAtMinCurrent(); err != nil {
			return nil, errors.Wrapf(err, "file %d", i+1)
		}
	}
	return out, nil
}

// InputCurves returns one row per drain voltage holding the current at that
// voltage in every DC-IV dataset.
func InputCurves(datasets []*dataset.Dataset, drainVoltages []float64, tolerance float64) ([][]float64, error) {
	handlers := make([]*analysis.DCIV, len(datasets))
	for i, ds := range datasets {
		h, err := dcivHandler(ds, i)
		if err != nil {
			return nil, err
		}
		handlers[i] = h
	}
	out := make([][]float64, len(drainVoltages))
	for j, v := range drainVoltages {
		row := make([]float64, len(handlers))
		for i, h := range handlers {
			l, err := h.CurrentAtVoltage(v, tolerance)
			if err != nil {
				return nil, errors.Wrapf(err, "file %d at %g V", i+1, v)
			}
			row[i] = l.Value
		}
		out[j] = row
	}
	return out, nil
}

// WakeUp returns the per-cycle polarization of every PQ-PUND dataset.
func WakeUp(datasets []*dataset.Dataset, positive bool) ([][]float64, error) {
	out := make([][]float64, len(datasets))
	for i, ds := range datasets {
		h, ok := ds.Handler.(*analysis.PQPUND)
		if !ok {
			return nil, errors.Wrapf(analysis.ErrInvalidArgument, "file %d is %s, not PQPUND", i+1, ds.Mode)
		}
		pols, err := h.Polarizations(positive)
		if err != nil {
			return nil, errors.Wrapf(err, "file %d", i+1)
		}
		out[i] = pols
	}
	return out, nil
}

// DropOutliers sets the geometry on every CV dataset and drops those that
// are empty or whose permittivity falls below 1 or below floor anywhere.
// It returns the kept datasets and the indices of the dropped ones.
func DropOutliers(datasets []*dataset.Dataset, area, thickness, floor float64) (kept []*dataset.Dataset, dropped []int, err error) {
	for i, ds := range datasets {
		h, ok := ds.Handler.(*analysis.CV)
		if !ok {
			return nil, nil, errors.Wrapf(analysis.ErrInvalidArgument, "file %d is %s, not CVS", i+1, ds.Mode)
		}
		if h.Data().Rows() == 0 {
			dropped = append(dropped, i)
			continue
		}
		if err := h.SetGeometry(area, thickness); err != nil {
			return nil, nil, errors.Wrapf(err, "file %d", i+1)
		}
		eps, err := h.Permittivity()
		if err != nil {
			return nil, nil, err
		}
		if slices.ContainsFunc(eps, func(e float64) bool { return e < 1 || e < floor }) {
			dropped = append(dropped, i)
			continue
		}
		kept = append(kept, ds)
	}
	return kept, dropped, nil
}

// EpsilonCycles returns the permittivity at voltage on the reverse branch of
// every CV dataset. DropOutliers or SetGeometry must have run first.
func EpsilonCycles(datasets []*dataset.Dataset, voltage, tolerance float64) ([]float64, error) {
	out := make([]float64, len(datasets))
	for i, ds := range datasets {
		h, ok := ds.Handler.(*analysis.CV)
		if !ok {
			return nil, errors.Wrapf(analysis.ErrInvalidArgument, "file %d is %s, not CVS", i+1, ds.Mode)
		}
		ls, err := h.EpsilonAtVoltage(voltage, tolerance)
		if err != nil {
			return nil, errors.Wrapf(err, "file %d", i+1)
		}
		out[i] = ls[1].Value
	}
	return out, nil
}
