package analysis

import (
	"log/slog"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/interp"

	"github.com/mipt-srf/probe-station/pkg/datafile"
)

const (
	BiasColumn    = "Bias"
	CurrentColumn = "Current"
)

// DCIV handles staircase double sweeps: 0 -> Bias1 -> 0 -> Bias2 -> 0.
type DCIV struct {
	BaseHandler
	data    *datafile.Table
	bias    []float64
	current []float64

	FirstBias          float64
	SecondBias         float64
	Step               float64
	Steps              int
	SeriesID           int
	MeasureMode        int
	PositiveCompliance float64
	NegativeCompliance float64
}

func NewDCIV(md *datafile.Metadata, tables []*datafile.Table, opts Options) (*DCIV, error) {
	base, err := newBaseHandler(datafile.ModeDCIV, md, opts)
	if err != nil {
		return nil, err
	}
	if len(tables) < 1 {
		return nil, errors.Wrapf(ErrEmptyData, "%s handler: no tables", datafile.ModeDCIV)
	}

	h := &DCIV{BaseHandler: base, data: tables[0].Clone()}
	if err := h.initMetadata(); err != nil {
		return nil, h.metadataError(err)
	}
	if h.bias, err = h.data.Column(BiasColumn); err != nil {
		return nil, h.metadataError(err)
	}
	if h.current, err = h.data.Column(CurrentColumn); err != nil {
		return nil, h.metadataError(err)
	}
	if h.Steps != h.data.Rows() {
		h.logger.Warn("measured points differ from row count",
			slog.Int("points", h.Steps),
			slog.Int("rows", h.data.Rows()))
	}
	return h, nil
}

func (h *DCIV) initMetadata() error {
	var err error
	md := h.metadata
	if h.FirstBias, err = md.Float("Bias1"); err != nil {
		return err
	}
	if h.SecondBias, err = md.Float("Bias2"); err != nil {
		return err
	}
	if h.Steps, err = md.Int("RealMeasuredPoints"); err != nil {
		return err
	}
	// Informational fields, absent in older files.
	h.Step, _ = md.Float("Step")
	h.SeriesID, _ = md.Int("SeriesID")
	h.MeasureMode, _ = md.Int("MeasureMode")
	h.PositiveCompliance, _ = md.Float("Positive compliance")
	h.NegativeCompliance, _ = md.Float("Negative compliance")
	return nil
}

func (h *DCIV) Data() *datafile.Table {
	return h.data.Clone()
}

// Legs splits the sweep into 0 -> Bias1, Bias1 -> 0, 0 -> Bias2, Bias2 -> 0.
func (h *DCIV) Legs() [4]*datafile.Table {
	n := h.data.Rows()
	half := n / 2
	firstMid := half / 2
	secondMid := half + (n-half)/2
	return [4]*datafile.Table{
		h.data.Slice(0, firstMid),
		h.data.Slice(firstMid, half),
		h.data.Slice(half, secondMid),
		h.data.Slice(secondMid, n),
	}
}

// CurrentAtVoltage returns |I| at the sample closest to voltage.
func (h *DCIV) CurrentAtVoltage(voltage, tolerance float64) (Lookup, error) {
	l, err := nearest(h.bias, h.current, voltage, tolerance)
	if err != nil {
		return Lookup{}, err
	}
	h.warnInexact("current at voltage", voltage, l)
	return l, nil
}

// BranchCurrentsAtVoltage looks up |I| separately in the first and second
// half of the sweep. Indexes are relative to the whole table.
func (h *DCIV) BranchCurrentsAtVoltage(voltage, tolerance float64) ([2]Lookup, error) {
	var out [2]Lookup
	mid := len(h.bias) / 2
	bounds := [2][2]int{{0, mid}, {mid, len(h.bias)}}
	for i, b := range bounds {
		l, err := nearest(h.bias[b[0]:b[1]], h.current[b[0]:b[1]], voltage, tolerance)
		if err != nil {
			return out, errors.Wrapf(err, "branch %d", i+1)
		}
		l.Index += b[0]
		h.warnInexact("branch current at voltage", voltage, l)
		out[i] = l
	}
	return out, nil
}

// VoltageAtMinCurrent returns the bias where |I| is smallest.
func (h *DCIV) VoltageAtMinCurrent() (float64, error) {
	if len(h.current) == 0 {
		return 0, errors.Wrap(ErrEmptyData, "voltage at min current")
	}
	return h.bias[argMinAbs(h.current)], nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// crossings returns the indexes i where sign(bias - target) changes between
// samples i and i+1.
func crossings(bias []float64, target float64) []int {
	var idx []int
	for i := 0; i+1 < len(bias); i++ {
		if sign(bias[i]-target) != sign(bias[i+1]-target) {
			idx = append(idx, i)
		}
	}
	return idx
}

// ResistanceRatio compares V/I at the forward and reverse crossings of
// voltage. With four crossings the middle two are used. The result is
// always >= 1.
func (h *DCIV) ResistanceRatio(voltage, tolerance float64) (float64, error) {
	idx := crossings(h.bias, voltage)
	var i1, i2 int
	switch len(idx) {
	case 4:
		i1, i2 = idx[1], idx[2]
	case 2:
		i1, i2 = idx[0], idx[1]
	default:
		return 0, errors.Wrapf(ErrNoCrossing, "resistance ratio at %g V: %d crossings", voltage, len(idx))
	}

	for _, i := range []int{i1, i2} {
		if math.Abs(h.bias[i]-voltage) > tolerance {
			h.warnInexact("resistance ratio", voltage, Lookup{X: h.bias[i], Index: i})
		}
	}

	r1 := h.bias[i1] / h.current[i1]
	r2 := h.bias[i2] / h.current[i2]
	ratio := math.Abs(r1 / r2)
	if ratio < 1 {
		ratio = 1 / ratio
	}
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, errors.Errorf("resistance ratio at %g V is not finite (R1=%g, R2=%g)", voltage, r1, r2)
	}
	return ratio, nil
}

// DifferenceCurve is forward minus interpolated reverse current, per
// polarity. Forward points outside the reverse range are NaN.
type DifferenceCurve struct {
	NegativeBias  []float64
	NegativeDelta []float64
	PositiveBias  []float64
	PositiveDelta []float64
}

// DifferenceCurrent separates the four sweep branches by the sign of
// consecutive bias steps and subtracts each reverse branch from its
// forward branch.
func (h *DCIV) DifferenceCurrent() (DifferenceCurve, error) {
	n := len(h.bias)
	dec := make([]bool, n)
	inc := make([]bool, n)
	for i := 1; i < n; i++ {
		d := h.bias[i] - h.bias[i-1]
		dec[i] = d < 0
		inc[i] = d > 0
	}

	pick := func(mask []bool, keep func(float64) bool) (b, c []float64) {
		for i := range mask {
			if mask[i] && keep(h.bias[i]) {
				b = append(b, h.bias[i])
				c = append(c, h.current[i])
			}
		}
		return b, c
	}
	nonPositive := func(v float64) bool { return v <= 0 }
	nonNegative := func(v float64) bool { return v >= 0 }

	var out DifferenceCurve
	var err error

	negFwdB, negFwdI := pick(dec, nonPositive)
	negRevB, negRevI := pick(inc, nonPositive)
	out.NegativeBias = negFwdB
	if out.NegativeDelta, err = subtractInterpolated(negFwdB, negFwdI, negRevB, negRevI); err != nil {
		return DifferenceCurve{}, errors.Wrap(err, "negative branch")
	}

	posFwdB, posFwdI := pick(inc, nonNegative)
	posRevB, posRevI := pick(dec, nonNegative)
	out.PositiveBias = posFwdB
	if out.PositiveDelta, err = subtractInterpolated(posFwdB, posFwdI, posRevB, posRevI); err != nil {
		return DifferenceCurve{}, errors.Wrap(err, "positive branch")
	}
	return out, nil
}

func subtractInterpolated(fwdB, fwdI, revB, revI []float64) ([]float64, error) {
	order := make([]int, len(revB))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return revB[order[a]] < revB[order[b]] })

	var xs, ys []float64
	for _, i := range order {
		if len(xs) > 0 && revB[i] == xs[len(xs)-1] {
			continue
		}
		xs = append(xs, revB[i])
		ys = append(ys, revI[i])
	}
	if len(xs) < 2 {
		return nil, errors.Wrapf(ErrEmptyData, "reverse branch has %d distinct points", len(xs))
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, errors.Wrap(err, "interpolating reverse branch")
	}

	delta := make([]float64, len(fwdB))
	for i, b := range fwdB {
		if b < xs[0] || b > xs[len(xs)-1] {
			delta[i] = math.NaN()
			continue
		}
		delta[i] = fwdI[i] - pl.Predict(b)
	}
	return delta, nil
}

// MemoryWindow is the voltage spread between the two samples whose current
// is closest to targetCurrent. Exact is false when the second sample misses
// the target by more than tolerance (relative).
func (h *DCIV) MemoryWindow(targetCurrent, tolerance float64) (Lookup, error) {
	if len(h.current) < 2 {
		return Lookup{}, errors.Wrap(ErrEmptyData, "memory window")
	}
	order := make([]int, len(h.current))
	for i := range order {
		order[i] = i
	}
	dist := func(i int) float64 { return math.Abs(h.current[i] - targetCurrent) }
	sort.SliceStable(order, func(a, b int) bool { return dist(order[a]) < dist(order[b]) })

	i0, i1 := order[0], order[1]
	l := Lookup{
		Value: math.Abs(h.bias[i0] - h.bias[i1]),
		X:     h.current[i1],
		Index: i0,
		Exact: dist(i1) <= tolerance*math.Abs(targetCurrent),
	}
	h.warnInexact("memory window", targetCurrent, l)
	return l, nil
}

func (h *DCIV) Summarize() (Summary, error) {
	vmin, err := h.VoltageAtMinCurrent()
	if err != nil {
		return nil, err
	}
	return Summary{
		{Name: "Points", Value: float64(h.data.Rows())},
		{Name: "First bias", Value: h.FirstBias, Unit: "V"},
		{Name: "Second bias", Value: h.SecondBias, Unit: "V"},
		{Name: "Voltage at min current", Value: vmin, Unit: "V"},
	}, nil
}
