package analysis

import (
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mipt-srf/probe-station/internal/consts"
	"github.com/mipt-srf/probe-station/pkg/datafile"
	"github.com/mipt-srf/probe-station/pkg/fit"
	"github.com/mipt-srf/probe-station/pkg/util"
)

const (
	VoltagesColumn            = "Voltages"
	CurrentPColumn            = "CurrentP"
	CurrentCColumn            = "CurrentC"
	ChargeColumn              = "Charge"
	PolarizationCurrentColumn = "PolarizationCurrent"
)

// PQPUND handles quasistatic staircase polarization measurements. The
// working current is the sum of the transition and plateau polarization
// currents; operations that change it return a new handler.
type PQPUND struct {
	BaseHandler
	transition *datafile.Table
	plateau    *datafile.Table
	charge     *datafile.Table
	current    *datafile.Table

	FirstBias           float64
	SecondBias          float64
	Steps               int
	Repetitions         int
	RumpTime            float64
	RumpIntegrationTime float64
	WaitTime            float64
	WaitIntegrationTime float64
	StepsPerCycle       int
}

func NewPQPUND(md *datafile.Metadata, tables []*datafile.Table, opts Options) (*PQPUND, error) {
	base, err := newBaseHandler(datafile.ModePQPUND, md, opts)
	if err != nil {
		return nil, err
	}
	if len(tables) < 2 {
		return nil, errors.Wrapf(ErrEmptyData, "%s handler: %d tables, want at least 2", datafile.ModePQPUND, len(tables))
	}

	h := &PQPUND{BaseHandler: base}
	if err := h.initMetadata(); err != nil {
		return nil, h.metadataError(err)
	}

	if h.transition, err = withPolarizationCurrent(tables[0]); err != nil {
		return nil, errors.Wrap(err, "transition table")
	}
	if h.plateau, err = withPolarizationCurrent(tables[1]); err != nil {
		return nil, errors.Wrap(err, "plateau table")
	}
	if len(tables) > 2 {
		h.charge = tables[2].Clone()
	}

	if h.transition.Rows() != h.plateau.Rows() {
		return nil, errors.Wrapf(datafile.ErrMalformedBlock, "transition has %d rows, plateau %d",
			h.transition.Rows(), h.plateau.Rows())
	}
	if want := h.Repetitions * h.StepsPerCycle; h.transition.Rows() != want {
		h.logger.Warn("row count does not match repetitions x steps per cycle",
			slog.Int("rows", h.transition.Rows()),
			slog.Int("expected", want))
	}

	voltages, _ := h.transition.Column(VoltagesColumn)
	tpc, _ := h.transition.Column(PolarizationCurrentColumn)
	ppc, _ := h.plateau.Column(PolarizationCurrentColumn)
	floats.Add(tpc, ppc)
	if h.current, err = datafile.FromColumns(
		[]string{VoltagesColumn, PolarizationCurrentColumn}, voltages, tpc); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *PQPUND) initMetadata() error {
	var err error
	md := h.metadata
	if h.measurement.Number, err = md.Int("Measurement Number"); err != nil {
		return err
	}
	if h.measurement.ID, err = md.Float("Measurement ID"); err != nil {
		return err
	}
	for key, dst := range map[string]*float64{
		"First Bias":       &h.FirstBias,
		"Second Bias":      &h.SecondBias,
		"Rump time":        &h.RumpTime,
		"Rump Interg time": &h.RumpIntegrationTime,
		"Wait Time":        &h.WaitTime,
		"Wait Integr Time": &h.WaitIntegrationTime,
	} {
		if *dst, err = md.Float(key); err != nil {
			return err
		}
	}
	if h.Steps, err = md.Int("Steps"); err != nil {
		return err
	}
	if h.Repetitions, err = md.Int("Repetition"); err != nil {
		return err
	}
	if h.Steps < 2 || h.Repetitions < 1 {
		return errors.Wrapf(ErrInvalidArgument, "steps=%d repetitions=%d", h.Steps, h.Repetitions)
	}
	if dt := h.timeStep(); !(dt > 0) {
		return errors.Wrapf(ErrInvalidArgument, "time step %g s, want Wait Time + Rump time > 0", dt)
	}
	h.StepsPerCycle = 2 * (h.Steps - 1)
	return nil
}

// withPolarizationCurrent copies t with CurrentP - CurrentC appended.
func withPolarizationCurrent(t *datafile.Table) (*datafile.Table, error) {
	p, err := t.Column(CurrentPColumn)
	if err != nil {
		return nil, err
	}
	c, err := t.Column(CurrentCColumn)
	if err != nil {
		return nil, err
	}
	if _, err := t.Column(VoltagesColumn); err != nil {
		return nil, err
	}
	floats.Sub(p, c)
	return t.WithColumn(PolarizationCurrentColumn, p)
}

// Data returns the working polarization current table.
func (h *PQPUND) Data() *datafile.Table {
	return h.current.Clone()
}

func (h *PQPUND) Transition() *datafile.Table {
	return h.transition.Clone()
}

func (h *PQPUND) Plateau() *datafile.Table {
	return h.plateau.Clone()
}

// Charge returns the charge-vs-voltage table, or nil if the file had none.
func (h *PQPUND) Charge() *datafile.Table {
	if h.charge == nil {
		return nil
	}
	return h.charge.Clone()
}

func (h *PQPUND) withCurrent(current []float64) *PQPUND {
	out := *h
	out.current, _ = h.current.WithColumn(PolarizationCurrentColumn, current)
	return &out
}

func (h *PQPUND) currentColumns(t *datafile.Table) (voltages, current []float64) {
	voltages, _ = t.Column(VoltagesColumn)
	current, _ = t.Column(PolarizationCurrentColumn)
	return voltages, current
}

func (h *PQPUND) resolveCycle(cycle int) int {
	if cycle < 0 {
		return h.Repetitions + cycle
	}
	return cycle
}

// Cycle returns the rows of one full cycle. Negative cycles count from the
// end.
func (h *PQPUND) Cycle(cycle int) *datafile.Table {
	cycle = h.resolveCycle(cycle)
	return h.current.Slice(cycle*h.StepsPerCycle, (cycle+1)*h.StepsPerCycle)
}

// DataFromRange returns points rows starting start rows into the selected
// half of cycle. Positive selects the second half of the cycle.
func (h *PQPUND) DataFromRange(cycle int, positive bool, start, points int) *datafile.Table {
	shift := 0.0
	if positive {
		shift = 0.5
	}
	left := int((float64(h.resolveCycle(cycle))+shift)*float64(h.StepsPerCycle)) + start
	return h.current.Slice(left, left+points)
}

// HalfCycle returns the half of cycle where the voltage increases
// (positive) or decreases. The labels follow the sweep direction.
func (h *PQPUND) HalfCycle(cycle int, positive bool) *datafile.Table {
	if h.FirstBias > h.SecondBias {
		positive = !positive
	}
	return h.DataFromRange(cycle, positive, 0, h.StepsPerCycle/2)
}

func (h *PQPUND) timeStep() float64 {
	return h.WaitTime + h.RumpTime
}

// Polarization integrates one half-cycle current over the nominal dwell
// time with Simpson's rule and returns uC/cm^2.
func (h *PQPUND) Polarization(cycle int, positive bool) (float64, error) {
	half := h.HalfCycle(cycle, positive)
	_, current := h.currentColumns(half)
	times := util.UniformTimes(len(current), h.timeStep())
	charge, err := util.Integrate(util.SimpsonMethod, times, current)
	if err != nil {
		return 0, errors.Wrapf(err, "polarization of cycle %d", cycle)
	}
	return charge / h.padArea() * consts.C_TO_UC, nil
}

// Polarizations returns the polarization of every cycle. Negative
// half-cycles are sign-flipped so both series start from zero upwards.
func (h *PQPUND) Polarizations(positive bool) ([]float64, error) {
	pols := make([]float64, h.Repetitions)
	for i := range pols {
		p, err := h.Polarization(i, positive)
		if err != nil {
			return nil, err
		}
		pols[i] = p
	}
	if !positive {
		floats.Scale(-1, pols)
	}
	return pols, nil
}

// CoerciveVoltages returns the voltages at the current minimum and maximum
// of one cycle.
func (h *PQPUND) CoerciveVoltages(cycle int) (negative, positive float64, err error) {
	voltages, current := h.currentColumns(h.Cycle(cycle))
	if len(current) == 0 {
		return 0, 0, errors.Wrapf(ErrEmptyData, "coercive voltages of cycle %d", cycle)
	}
	return voltages[floats.MinIdx(current)], voltages[floats.MaxIdx(current)], nil
}

func leakageModel() fit.Model {
	return fit.Model{
		Name: "leakage",
		Eval: func(v float64, p []float64) float64 {
			return p[0] * math.Exp(p[1]*v)
		},
		Gradient: func(v float64, p []float64, grad []float64) {
			e := math.Exp(p[1] * v)
			grad[0] = e
			grad[1] = p[0] * v * e
		},
	}
}

// LeakageFit holds the two exponential tail fits I0*exp(a*V) and their sum
// evaluated at every working voltage.
type LeakageFit struct {
	Positive fit.Result
	Negative fit.Result
	Current  []float64
}

// FitLeakage fits I0*exp(a*V) to |I| above fromPositive and to I below
// fromNegative.
func (h *PQPUND) FitLeakage(fromPositive, fromNegative float64) (LeakageFit, error) {
	voltages, current := h.currentColumns(h.current)
	model := leakageModel()

	var posV, posI, negV, negI []float64
	for i, v := range voltages {
		if v > fromPositive {
			posV = append(posV, v)
			posI = append(posI, math.Abs(current[i]))
		}
		if v < fromNegative {
			negV = append(negV, v)
			negI = append(negI, current[i])
		}
	}

	pos, err := fit.CurveFit(model, posV, posI, []float64{1e-6, 1}, h.fitOptions)
	if err != nil {
		return LeakageFit{}, errors.Wrapf(err, "positive leakage above %g V", fromPositive)
	}
	// signed current decays towards negative voltage; a positive guess stalls on the wrong branch
	neg, err := fit.CurveFit(model, negV, negI, []float64{-1e-6, -1}, h.fitOptions)
	if err != nil {
		return LeakageFit{}, errors.Wrapf(err, "negative leakage below %g V", fromNegative)
	}

	leakage := make([]float64, len(voltages))
	for i, v := range voltages {
		leakage[i] = model.Eval(v, pos.Params) + model.Eval(v, neg.Params)
	}

	h.logger.Debug("leakage fitted",
		slog.Any("positive", pos.Params),
		slog.Any("negative", neg.Params))
	return LeakageFit{Positive: pos, Negative: neg, Current: leakage}, nil
}

// RemoveLeakage returns a handler with the fitted leakage subtracted.
// Applying it again fits and subtracts the residual a second time.
func (h *PQPUND) RemoveLeakage(fromPositive, fromNegative float64) (*PQPUND, error) {
	lf, err := h.FitLeakage(fromPositive, fromNegative)
	if err != nil {
		return nil, err
	}
	return h.SubtractLeakage(lf)
}

// SubtractLeakage returns a handler with an already fitted leakage current
// subtracted.
func (h *PQPUND) SubtractLeakage(lf LeakageFit) (*PQPUND, error) {
	_, current := h.currentColumns(h.current)
	if len(lf.Current) != len(current) {
		return nil, errors.Wrapf(ErrInvalidArgument, "leakage has %d points, current %d",
			len(lf.Current), len(current))
	}
	floats.Sub(current, lf.Current)
	return h.withCurrent(current), nil
}

// ShiftCurrent returns a handler with shift added to the working current.
func (h *PQPUND) ShiftCurrent(shift float64) *PQPUND {
	_, current := h.currentColumns(h.current)
	floats.AddConst(shift, current)
	return h.withCurrent(current)
}

// SubtractPlateauCurrent returns a handler where the plateau compensation
// current is subtracted at voltages above fromPositive.
func (h *PQPUND) SubtractPlateauCurrent(fromPositive float64) *PQPUND {
	_, current := h.currentColumns(h.current)
	voltages, _ := h.plateau.Column(VoltagesColumn)
	plateauC, _ := h.plateau.Column(CurrentCColumn)
	for i, v := range voltages {
		if v > fromPositive {
			current[i] -= plateauC[i]
		}
	}
	return h.withCurrent(current)
}

// PVCurve integrates one cycle cumulatively (trapezoidal, starting at 0)
// into polarization in uC/cm^2. With centered the mean is subtracted.
func (h *PQPUND) PVCurve(cycle int, centered bool) (voltages, polarization []float64, err error) {
	voltages, current := h.currentColumns(h.Cycle(cycle))
	if len(current) == 0 {
		return nil, nil, errors.Wrapf(ErrEmptyData, "P-V curve of cycle %d", cycle)
	}
	times := util.UniformTimes(len(current), h.timeStep())
	polarization = util.CumulativeTrapezoid(times, current)
	floats.Scale(consts.C_TO_UC/h.padArea(), polarization)
	if centered {
		floats.AddConst(-stat.Mean(polarization, nil), polarization)
	}
	return voltages, polarization, nil
}

func (h *PQPUND) Summarize() (Summary, error) {
	pos, err := h.Polarizations(true)
	if err != nil {
		return nil, err
	}
	neg, err := h.Polarizations(false)
	if err != nil {
		return nil, err
	}
	vneg, vpos, err := h.CoerciveVoltages(-1)
	if err != nil {
		return nil, err
	}
	last := len(pos) - 1
	return Summary{
		{Name: "Repetitions", Value: float64(h.Repetitions)},
		{Name: "Steps per cycle", Value: float64(h.StepsPerCycle)},
		{Name: "P+ first cycle", Value: pos[0], Unit: "uC/cm2"},
		{Name: "P- first cycle", Value: neg[0], Unit: "uC/cm2"},
		{Name: "P+ last cycle", Value: pos[last], Unit: "uC/cm2"},
		{Name: "P- last cycle", Value: neg[last], Unit: "uC/cm2"},
		{Name: "Negative coercive voltage", Value: vneg, Unit: "V"},
		{Name: "Positive coercive voltage", Value: vpos, Unit: "V"},
	}, nil
}
