package analysis

import (
	"math"

	"github.com/pkg/errors"

	"github.com/mipt-srf/probe-station/internal/consts"
	"github.com/mipt-srf/probe-station/pkg/datafile"
	"github.com/mipt-srf/probe-station/pkg/util"
)

// PUND pulse columns, one row per cycle.
var PUNDColumns = []string{"P", "U", "N", "D"}

// PUNDD handles double PUND pulse trains.
type PUNDD struct {
	BaseHandler
	charges *datafile.Table

	VoltageHigh     float64
	VoltageLow      float64
	Repetitions     int
	PulseWidth      float64
	PulseSeparation float64
	SlopeTime       float64
}

func NewPUNDD(md *datafile.Metadata, tables []*datafile.Table, opts Options) (*PUNDD, error) {
	base, err := newBaseHandler(datafile.ModePUNDD, md, opts)
	if err != nil {
		return nil, err
	}
	if len(tables) < 1 {
		return nil, errors.Wrapf(ErrEmptyData, "%s handler: no tables", datafile.ModePUNDD)
	}

	h := &PUNDD{BaseHandler: base, charges: tables[0].Clone()}
	for _, name := range PUNDColumns {
		if _, err := h.charges.Column(name); err != nil {
			return nil, h.metadataError(err)
		}
	}

	h.VoltageHigh, _ = md.Float("Voltage High")
	h.VoltageLow, _ = md.Float("Voltage Low")
	h.Repetitions, _ = md.Int("Repetitions")
	h.PulseWidth, _ = md.Float("Pulse Width")
	h.PulseSeparation, _ = md.Float("Pulse Separation")
	h.SlopeTime, _ = md.Float("Trails")
	return h, nil
}

func (h *PUNDD) Data() *datafile.Table {
	return h.charges.Clone()
}

func checkWindow(window int) error {
	if window < 1 {
		return errors.Wrapf(ErrInvalidArgument, "filtering window %d", window)
	}
	return nil
}

// Polarization returns the remanent polarization 2Pr per cycle in uC/cm^2:
// |mean_window(((P - U) - (N - D)) / 2)| / pad^2 * 1e14. The moving average
// is centered; incomplete windows at the edges are NaN.
func (h *PUNDD) Polarization(window int) ([]float64, error) {
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	cols := make([][]float64, len(PUNDColumns))
	for i, name := range PUNDColumns {
		cols[i], _ = h.charges.Column(name)
	}
	p, u, n, d := cols[0], cols[1], cols[2], cols[3]

	scale := consts.PUND_CHARGE_SCALE / (h.padSizeUm * h.padSizeUm)
	charge := make([]float64, len(p))
	for i := range charge {
		charge[i] = ((p[i] - u[i]) - (n[i] - d[i])) / 2 * scale
	}

	pol := util.RollingMean(charge, window, true)
	for i := range pol {
		pol[i] = math.Abs(pol[i])
	}
	return pol, nil
}

// Charges returns the P, U, N and D columns smoothed with a centered moving
// average of window cycles.
func (h *PUNDD) Charges(window int) (*datafile.Table, error) {
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	smoothed := make([][]float64, len(PUNDColumns))
	for i, name := range PUNDColumns {
		col, _ := h.charges.Column(name)
		smoothed[i] = util.RollingMean(col, window, true)
	}
	return datafile.FromColumns(PUNDColumns, smoothed...)
}

func (h *PUNDD) Summarize() (Summary, error) {
	pol, err := h.Polarization(1)
	if err != nil {
		return nil, err
	}
	if len(pol) == 0 {
		return nil, errors.Wrap(ErrEmptyData, "PUND summary")
	}
	return Summary{
		{Name: "Cycles", Value: float64(len(pol))},
		{Name: "2Pr first cycle", Value: pol[0], Unit: "uC/cm2"},
		{Name: "2Pr last cycle", Value: pol[len(pol)-1], Unit: "uC/cm2"},
	}, nil
}
