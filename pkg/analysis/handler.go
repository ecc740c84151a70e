package analysis

import (
	"log/slog"
	"math"

	"github.com/pkg/errors"

	"github.com/mipt-srf/probe-station/internal/consts"
	"github.com/mipt-srf/probe-station/pkg/datafile"
	"github.com/mipt-srf/probe-station/pkg/fit"
)

// Handler is the analysis surface shared by every measurement mode.
type Handler interface {
	Mode() datafile.Mode
	Metadata() *datafile.Metadata
	Data() *datafile.Table
	Measurement() Measurement
	Summarize() (Summary, error)
}

type Measurement struct {
	Number int
	ID     float64
}

type Quantity struct {
	Name  string
	Value float64
	Unit  string
}

type Summary []Quantity

type Options struct {
	PadSizeUm float64
	Logger    *slog.Logger
	Fit       fit.Options

	// Capacitance is the equivalent circuit CV figures are computed with.
	Capacitance CapacitanceMode
}

func DefaultOptions() Options {
	return Options{
		PadSizeUm: consts.DEFAULT_PAD_SIZE_UM,
		Fit:       fit.DefaultOptions(),
	}
}

type BaseHandler struct {
	mode        datafile.Mode
	metadata    *datafile.Metadata
	measurement Measurement
	padSizeUm   float64
	logger      *slog.Logger
	fitOptions  fit.Options
}

func newBaseHandler(mode datafile.Mode, md *datafile.Metadata, opts Options) (BaseHandler, error) {
	if md == nil {
		return BaseHandler{}, errors.Errorf("%s: metadata is nil", mode)
	}
	if opts.PadSizeUm <= 0 {
		return BaseHandler{}, errors.Errorf("%s: invalid pad size %g um", mode, opts.PadSizeUm)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Fit.MaxIter == 0 {
		opts.Fit = fit.DefaultOptions()
	}
	opts.Fit.Logger = logger

	b := BaseHandler{
		mode:       mode,
		metadata:   md,
		padSizeUm:  opts.PadSizeUm,
		logger:     logger.With(slog.String("mode", string(mode))),
		fitOptions: opts.Fit,
	}
	if n, err := md.Int("Measurement Number"); err == nil {
		b.measurement.Number = n
	}
	if id, err := md.Float("Measurement ID"); err == nil {
		b.measurement.ID = id
	}
	return b, nil
}

func (b *BaseHandler) Mode() datafile.Mode {
	return b.mode
}

func (b *BaseHandler) Metadata() *datafile.Metadata {
	return b.metadata
}

func (b *BaseHandler) Measurement() Measurement {
	return b.measurement
}

func (b *BaseHandler) PadSizeUm() float64 {
	return b.padSizeUm
}

// padArea is the pad area in cm^2.
func (b *BaseHandler) padArea() float64 {
	side := b.padSizeUm * consts.UM_TO_CM
	return side * side
}

// Lookup is the result of a nearest-neighbour search. Exact is false when
// the closest sample is farther from the target than the tolerance; the
// value is still the best available.
type Lookup struct {
	Value float64
	X     float64
	Index int
	Exact bool
}

// nearest finds the sample of xs closest to target and returns |ys| there.
func nearest(xs, ys []float64, target, tolerance float64) (Lookup, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return Lookup{}, errors.Wrapf(ErrEmptyData, "lookup at %g", target)
	}
	idx := 0
	best := math.Inf(1)
	for i, x := range xs {
		if d := math.Abs(x - target); d < best {
			best, idx = d, i
		}
	}
	return Lookup{
		Value: math.Abs(ys[idx]),
		X:     xs[idx],
		Index: idx,
		Exact: best <= tolerance,
	}, nil
}

func (b *BaseHandler) warnInexact(op string, target float64, l Lookup) {
	if l.Exact {
		return
	}
	b.logger.Warn("value not found within tolerance",
		slog.String("op", op),
		slog.Float64("target", target),
		slog.Float64("closest", l.X))
}

func (b *BaseHandler) metadataError(err error) error {
	return errors.Wrapf(err, "%s handler", b.mode)
}

func argMinAbs(values []float64) int {
	idx := 0
	for i, v := range values {
		if math.Abs(v) < math.Abs(values[idx]) {
			idx = i
		}
	}
	return idx
}

func argMaxAbs(values []float64) int {
	idx := 0
	for i, v := range values {
		if math.Abs(v) > math.Abs(values[idx]) {
			idx = i
		}
	}
	return idx
}

var (
	_ Handler = (*DCIV)(nil)
	_ Handler = (*CV)(nil)
	_ Handler = (*PQPUND)(nil)
	_ Handler = (*PUNDD)(nil)
)
