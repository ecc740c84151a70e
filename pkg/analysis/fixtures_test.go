package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mipt-srf/probe-station/pkg/datafile"
)

func metadata(pairs ...any) *datafile.Metadata {
	var keys []string
	var values []datafile.Value
	for i := 0; i+1 < len(pairs); i += 2 {
		keys = append(keys, pairs[i].(string))
		switch v := pairs[i+1].(type) {
		case int:
			values = append(values, datafile.IntValue(int64(v)))
		case float64:
			values = append(values, datafile.FloatValue(v))
		case string:
			values = append(values, datafile.StringValue(v))
		}
	}
	return datafile.NewMetadata(keys, values)
}

func table(t *testing.T, columns []string, values ...[]float64) *datafile.Table {
	t.Helper()
	tbl, err := datafile.FromColumns(columns, values...)
	require.NoError(t, err)
	return tbl
}

// dcivSweep is 0 -> -3 -> 0 -> 3 -> 0 in 0.05 V steps, 60 points per leg,
// with a different resistance on every leg.
func dcivSweep() (bias, current []float64) {
	legs := []struct {
		start, step, r float64
	}{
		{0, -0.05, 1e5},
		{-3, 0.05, 1e3},
		{0, 0.05, 1e3},
		{3, -0.05, 1e5},
	}
	for _, leg := range legs {
		for k := 0; k < 60; k++ {
			v := leg.start + float64(k)*leg.step
			bias = append(bias, v)
			current = append(current, v/leg.r)
		}
	}
	return bias, current
}

func newTestDCIV(t *testing.T, bias, current []float64) *DCIV {
	t.Helper()
	md := metadata(
		"Measurement Number", 4,
		"Measurement ID", 739722.647152,
		"Bias1", -3.0,
		"Bias2", 3.0,
		"Step", 0.05,
		"RealMeasuredPoints", len(bias),
		"Measurement type", "DC IV",
	)
	times := make([]float64, len(bias))
	h, err := NewDCIV(md, []*datafile.Table{
		table(t, []string{BiasColumn, CurrentColumn, "Time"}, bias, current, times),
	}, DefaultOptions())
	require.NoError(t, err)
	return h
}

func newSweepDCIV(t *testing.T) *DCIV {
	t.Helper()
	bias, current := dcivSweep()
	return newTestDCIV(t, bias, current)
}

// cvSweep runs -4 -> 4 -> -4 with a capacitance peak at +1 V going up and
// at -1 V going down.
func cvSweep(frequency, resistance float64) (voltage, r, x []float64) {
	peak := func(v, at float64) float64 {
		d := (v - at) / 0.3
		return 1e-10 * (1 + 0.5/(1+d*d))
	}
	for k := 0; k <= 80; k++ {
		v := -4 + float64(k)*0.1
		voltage = append(voltage, v)
		x = append(x, -1/(2*math.Pi*frequency*peak(v, 1)))
	}
	for k := 0; k <= 80; k++ {
		v := 4 - float64(k)*0.1
		voltage = append(voltage, v)
		x = append(x, -1/(2*math.Pi*frequency*peak(v, -1)))
	}
	r = make([]float64, len(voltage))
	for i := range r {
		r[i] = resistance
	}
	return voltage, r, x
}

func newTestCV(t *testing.T, resistance float64) *CV {
	t.Helper()
	return newTestCVWithScheme(t, resistance, CapacitanceAuto)
}

func newTestCVWithScheme(t *testing.T, resistance float64, mode CapacitanceMode) *CV {
	t.Helper()
	voltage, r, x := cvSweep(1e5, resistance)
	md := metadata(
		"Measurement Number", 5,
		"Measurement ID", 739587.53107,
		"Start", -4.5,
		"Stop", 4.3,
		"Step", 0.05,
		"Sweep mode", 3,
		"Frequency", 100000,
		"RealMeasuredPoints", len(voltage),
		"Measurement type", "CVS",
	)
	zeros := make([]float64, len(voltage))
	opts := DefaultOptions()
	opts.Capacitance = mode
	h, err := NewCV(md, []*datafile.Table{
		table(t, []string{VoltageColumn, ResistanceColumn, ReactanceColumn, "Current", "Time"},
			voltage, r, x, zeros, zeros),
	}, opts)
	require.NoError(t, err)
	return h
}

const (
	pqSteps       = 121
	pqRepetitions = 5
	pqAmplitude   = 1e-6
	pqSigma       = 0.3
	pqPeak        = 1.5
	pqTimeStep    = 2e-5 // wait + rump
	pqVoltageStep = 10.0 / 120
)

func pqMetadata(firstBias, secondBias float64) *datafile.Metadata {
	return metadata(
		"Measurement Number", 10,
		"Measurement ID", 739722.655036,
		"First Bias", firstBias,
		"Second Bias", secondBias,
		"Steps", pqSteps,
		"Repetition", pqRepetitions,
		"Rump time", 1e-5,
		"Rump Interg time", 5e-6,
		"Wait Time", 1e-5,
		"Wait Integr Time", 5e-6,
		"Measurement type", "PQPUND",
	)
}

func gaussian(v, at float64) float64 {
	d := (v - at) / pqSigma
	return pqAmplitude * math.Exp(-d*d/2)
}

// leakage is exponential on both sides with an offset above 0 V that a
// single exponential cannot absorb.
func leakage(v float64) float64 {
	if v > 0 {
		return 1e-8*math.Exp(1.2*v) + 2e-8
	}
	return -1e-8 * math.Exp(-1.2*v)
}

// pqTables builds the transition, plateau and charge tables. Each cycle
// rises from -5 V and falls back from +5 V; switching peaks sit at +-1.5 V.
func pqTables(t *testing.T, withLeakage bool) []*datafile.Table {
	t.Helper()
	spc := 2 * (pqSteps - 1)
	var v, tp, tc, pp, pc, q []float64
	for c := 0; c < pqRepetitions; c++ {
		for k := 0; k < spc; k++ {
			var volt, cur float64
			if k < spc/2 {
				volt = -5 + float64(k)*pqVoltageStep
				cur = gaussian(volt, pqPeak)
			} else {
				volt = 5 - float64(k-spc/2)*pqVoltageStep
				cur = -gaussian(volt, -pqPeak)
			}
			v = append(v, volt)
			tp = append(tp, cur)
			tc = append(tc, 0)

			plateau := 1e-9
			if withLeakage {
				plateau += leakage(volt)
			}
			pp = append(pp, plateau)
			pc = append(pc, 1e-9)
			q = append(q, cur*pqTimeStep)
		}
	}
	return []*datafile.Table{
		table(t, []string{VoltagesColumn, CurrentPColumn, CurrentCColumn}, v, tp, tc),
		table(t, []string{VoltagesColumn, CurrentPColumn, CurrentCColumn}, v, pp, pc),
		table(t, []string{VoltagesColumn, ChargeColumn}, v, q),
	}
}

func newTestPQPUND(t *testing.T, withLeakage bool) *PQPUND {
	t.Helper()
	h, err := NewPQPUND(pqMetadata(5, -5), pqTables(t, withLeakage), DefaultOptions())
	require.NoError(t, err)
	return h
}

// expectedPolarization is the analytic Gaussian charge in uC/cm^2 for a
// 25 um pad.
func expectedPolarization() float64 {
	charge := pqAmplitude * pqSigma * math.Sqrt(2*math.Pi) / pqVoltageStep * pqTimeStep
	area := 25e-4 * 25e-4
	return charge / area * 1e6
}
