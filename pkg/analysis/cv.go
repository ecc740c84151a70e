package analysis

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/mipt-srf/probe-station/internal/consts"
	"github.com/mipt-srf/probe-station/pkg/datafile"
)

const (
	VoltageColumn    = "Voltage"
	ResistanceColumn = "Resistance"
	ReactanceColumn  = "Reactance"
)

// CapacitanceMode selects the equivalent circuit used for capacitance.
type CapacitanceMode int

const (
	// CapacitanceAuto uses the parallel scheme when every R exceeds 1 Ohm.
	CapacitanceAuto CapacitanceMode = iota
	CapacitanceSeries
	CapacitanceParallel
)

func (m CapacitanceMode) String() string {
	switch m {
	case CapacitanceSeries:
		return "series"
	case CapacitanceParallel:
		return "parallel"
	default:
		return "auto"
	}
}

func ParseCapacitanceMode(s string) (CapacitanceMode, error) {
	switch s {
	case "", "auto":
		return CapacitanceAuto, nil
	case "series":
		return CapacitanceSeries, nil
	case "parallel":
		return CapacitanceParallel, nil
	}
	return CapacitanceAuto, errors.Wrapf(ErrInvalidArgument, "capacitance mode %q", s)
}

// CV handles impedance sweeps measured as series R and X.
type CV struct {
	BaseHandler
	data       *datafile.Table
	voltage    []float64
	resistance []float64
	reactance  []float64

	Frequency float64
	Start     float64
	Stop      float64
	Step      float64
	SweepMode int
	Steps     int

	capacitance  CapacitanceMode
	area         float64
	thickness    float64
	permittivity []float64
}

func NewCV(md *datafile.Metadata, tables []*datafile.Table, opts Options) (*CV, error) {
	base, err := newBaseHandler(datafile.ModeCV, md, opts)
	if err != nil {
		return nil, err
	}
	if len(tables) < 1 {
		return nil, errors.Wrapf(ErrEmptyData, "%s handler: no tables", datafile.ModeCV)
	}

	h := &CV{BaseHandler: base, data: tables[0].Clone(), capacitance: opts.Capacitance}
	if h.Frequency, err = md.Float("Frequency"); err != nil {
		return nil, h.metadataError(err)
	}
	h.Start, _ = md.Float("Start")
	h.Stop, _ = md.Float("Stop")
	h.Step, _ = md.Float("Step")
	h.SweepMode, _ = md.Int("Sweep mode")
	h.Steps, _ = md.Int("RealMeasuredPoints")

	for name, dst := range map[string]*[]float64{
		VoltageColumn:    &h.voltage,
		ResistanceColumn: &h.resistance,
		ReactanceColumn:  &h.reactance,
	} {
		if *dst, err = h.data.Column(name); err != nil {
			return nil, h.metadataError(err)
		}
	}
	return h, nil
}

func (h *CV) Data() *datafile.Table {
	return h.data.Clone()
}

// UsesParallel reports whether mode resolves to the parallel Cp-Rp scheme.
func (h *CV) UsesParallel(mode CapacitanceMode) bool {
	switch mode {
	case CapacitanceSeries:
		return false
	case CapacitanceParallel:
		return true
	}
	for _, r := range h.resistance {
		if !(r > consts.PARALLEL_RESISTANCE) {
			return false
		}
	}
	return true
}

// Capacitance returns Cs = -1/(2 pi f X), or Cp = Cs / (1 + (R/X)^2) when
// the parallel scheme applies.
func (h *CV) Capacitance(mode CapacitanceMode) ([]float64, error) {
	if len(h.reactance) == 0 {
		return nil, errors.Wrap(ErrEmptyData, "capacitance")
	}
	parallel := h.UsesParallel(mode)
	c := make([]float64, len(h.reactance))
	for i, x := range h.reactance {
		cs := -1 / (2 * math.Pi * h.Frequency * x)
		if parallel {
			q := h.resistance[i] / x
			c[i] = cs / (1 + q*q)
		} else {
			c[i] = cs
		}
	}
	return c, nil
}

// CapacitanceMode is the scheme Epsilon, CoerciveVoltages and Summarize
// use.
func (h *CV) CapacitanceMode() CapacitanceMode {
	return h.capacitance
}

// Epsilon is the dielectric constant |C| / eps0 / area * thickness, with
// area in m^2 and thickness in m.
func (h *CV) Epsilon(area, thickness float64) ([]float64, error) {
	if area <= 0 || thickness <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "geometry area=%g thickness=%g", area, thickness)
	}
	c, err := h.Capacitance(h.capacitance)
	if err != nil {
		return nil, err
	}
	eps := make([]float64, len(c))
	for i := range c {
		eps[i] = math.Abs(c[i]) / consts.EPSILON0 / area * thickness
	}
	return eps, nil
}

// SetGeometry computes and caches the permittivity column.
func (h *CV) SetGeometry(area, thickness float64) error {
	eps, err := h.Epsilon(area, thickness)
	if err != nil {
		return err
	}
	h.area, h.thickness, h.permittivity = area, thickness, eps
	return nil
}

func (h *CV) Geometry() (area, thickness float64) {
	return h.area, h.thickness
}

// Permittivity returns the column cached by SetGeometry.
func (h *CV) Permittivity() ([]float64, error) {
	if h.permittivity == nil {
		return nil, ErrGeometryNotSet
	}
	return append([]float64(nil), h.permittivity...), nil
}

// Branches splits a double sweep into its forward and reverse halves.
func (h *CV) Branches() (forward, reverse *datafile.Table) {
	mid := h.data.Rows() / 2
	return h.data.Slice(0, mid), h.data.Slice(mid, h.data.Rows())
}

// EpsilonAtVoltage looks up the cached permittivity at voltage on both
// branches.
func (h *CV) EpsilonAtVoltage(voltage, tolerance float64) ([2]Lookup, error) {
	var out [2]Lookup
	eps, err := h.Permittivity()
	if err != nil {
		return out, err
	}
	mid := len(h.voltage) / 2
	bounds := [2][2]int{{0, mid}, {mid, len(h.voltage)}}
	for i, b := range bounds {
		l, err := nearest(h.voltage[b[0]:b[1]], eps[b[0]:b[1]], voltage, tolerance)
		if err != nil {
			return out, errors.Wrapf(err, "branch %d", i+1)
		}
		l.Index += b[0]
		h.warnInexact("epsilon at voltage", voltage, l)
		out[i] = l
	}
	return out, nil
}

// CoerciveVoltages returns the voltage of the capacitance peak on the
// forward and reverse branches.
func (h *CV) CoerciveVoltages() (forward, reverse float64, err error) {
	c, err := h.Capacitance(h.capacitance)
	if err != nil {
		return 0, 0, err
	}
	mid := len(c) / 2
	if mid == 0 {
		return 0, 0, errors.Wrap(ErrEmptyData, "coercive voltages")
	}
	abs := make([]float64, len(c))
	for i := range c {
		abs[i] = math.Abs(c[i])
	}
	fwd := floats.MaxIdx(abs[:mid])
	rev := mid + floats.MaxIdx(abs[mid:])
	return h.voltage[fwd], h.voltage[rev], nil
}

// CoerciveVoltage is half the distance between the branch peaks.
func (h *CV) CoerciveVoltage() (float64, error) {
	fwd, rev, err := h.CoerciveVoltages()
	if err != nil {
		return 0, err
	}
	return (fwd - rev) / 2, nil
}

func (h *CV) Summarize() (Summary, error) {
	c, err := h.Capacitance(h.capacitance)
	if err != nil {
		return nil, err
	}
	fwd, rev, err := h.CoerciveVoltages()
	if err != nil {
		return nil, err
	}
	scheme := 0.0
	if h.UsesParallel(h.capacitance) {
		scheme = 1
	}
	return Summary{
		{Name: "Frequency", Value: h.Frequency, Unit: "Hz"},
		{Name: "Parallel scheme", Value: scheme},
		{Name: "Max capacitance", Value: floats.Max(c), Unit: "F"},
		{Name: "Min capacitance", Value: floats.Min(c), Unit: "F"},
		{Name: "Forward peak voltage", Value: fwd, Unit: "V"},
		{Name: "Reverse peak voltage", Value: rev, Unit: "V"},
		{Name: "Coercive voltage", Value: (fwd - rev) / 2, Unit: "V"},
	}, nil
}
