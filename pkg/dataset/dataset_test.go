package dataset

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/datafile"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func dcivFile() string {
	var b strings.Builder
	b.WriteString("Measurement Number\tMeasurement ID\n4\t739722.647152\n\n")
	b.WriteString("SeriesID\tMeasureMode\n0\t2\n\n")
	b.WriteString("Bias1\tBias2\tStep\n-3\t3\t0.05\n\n")
	b.WriteString("Positive compliance\tNegative compliance\n0.1\t0.1\n\n")
	b.WriteString("RealMeasuredPoints\n240\n\n")
	b.WriteString("Measurement type\nDC IV\n\n")
	b.WriteString("Bias\tCurrent\tTime\n")
	legs := []struct{ start, step, r float64 }{
		{0, -0.05, 1e5}, {-3, 0.05, 1e3}, {0, 0.05, 1e3}, {3, -0.05, 1e5},
	}
	i := 0
	for _, leg := range legs {
		for k := 0; k < 60; k++ {
			v := leg.start + float64(k)*leg.step
			fmt.Fprintf(&b, "%g\t%g\t%g\n", v, v/leg.r, float64(i)*0.01)
			i++
		}
	}
	return b.String()
}

func cvFile() string {
	var b strings.Builder
	b.WriteString("Measurement Number\tMeasurement ID\n5\t739587.53107\n")
	b.WriteString("SeriesID\tMeasureMode\n0\t1\n")
	b.WriteString("Measurement type\nCVS\n")
	b.WriteString("Start\tStop\tStep\n-4.5\t4.3\t0.05\n")
	b.WriteString("Sweep mode\tFrequency\tRealMeasuredPoints\n3\t100000\t20\n")
	b.WriteString("Osc level\tIntegration\n0.03\tMEDIUM\n\n")
	b.WriteString("Voltage\tResistance\tReactance\tCurrent\tTime\n")
	for k := 0; k < 20; k++ {
		v := -1 + float64(k)*0.1
		x := -1 / (2 * math.Pi * 1e5 * 1e-10)
		fmt.Fprintf(&b, "%g\t%g\t%g\t%g\t%g\n", v, 10.0, x, 0.0, float64(k))
	}
	return b.String()
}

const (
	pqSteps       = 121
	pqRepetitions = 5
)

func pqpundFile() string {
	var b strings.Builder
	b.WriteString("Measurement Number\tMeasurement ID\n10\t739722.655036\n\n")
	b.WriteString("First Bias\tSecond Bias\tSteps\tRepetition\n5\t-5\t121\t5\n\n")
	b.WriteString("Rump time\tRump Interg time\tWait Time\tWait Integr Time\n1e-05\t5e-06\t1e-05\t5e-06\n\n")
	b.WriteString("Measurement type\nPQPUND\n\n")

	spc := 2 * (pqSteps - 1)
	voltage := func(k int) float64 {
		if k < spc/2 {
			return -5 + float64(k)*10/120
		}
		return 5 - float64(k-spc/2)*10/120
	}
	block := func(current func(v float64) (p, c float64)) {
		for c := 0; c < pqRepetitions; c++ {
			for k := 0; k < spc; k++ {
				v := voltage(k)
				ip, ic := current(v)
				fmt.Fprintf(&b, "%g\t%g\t%g\n", v, ip, ic)
			}
		}
	}

	b.WriteString("Transition current\n")
	b.WriteString("Voltages\tCurrentP\tCurrentC\n")
	block(func(v float64) (float64, float64) {
		return 1e-6 * math.Exp(-(v-1.5)*(v-1.5)/0.18), 1e-9
	})
	b.WriteString("Plateau current\n")
	b.WriteString("Voltages\tCurrentP\tCurrentC\n")
	block(func(v float64) (float64, float64) { return 2e-9, 1e-9 })
	b.WriteString("Charge\n")
	b.WriteString("Voltages\tCharge\n")
	for c := 0; c < pqRepetitions; c++ {
		for k := 0; k < spc; k++ {
			fmt.Fprintf(&b, "%g\t%g\n", voltage(k), 1e-12*float64(k))
		}
	}
	return b.String()
}

func punddFile(cycles int) string {
	var b strings.Builder
	b.WriteString("Measurement Number\tMeasurement ID\n12\t739722.659465\n\n")
	b.WriteString("Voltage High\tVoltage Low\tRepetitions\n5\t-5\t" + fmt.Sprint(cycles) + "\n\n")
	b.WriteString("Pulse Width\tPulse Separation\tTrails\n0.001\t0.001\t0.001\n\n")
	b.WriteString("Measurement type\nPUNDD\n\n")
	b.WriteString("PUND double\nCharges per cycle\nCoulomb\n")
	b.WriteString("P\tU\tN\tD\n")
	for i := 0; i < cycles; i++ {
		fmt.Fprintf(&b, "%g\t%g\t%g\t%g\n", 4e-12, 1e-12, -4e-12, -1e-12)
	}
	return b.String()
}

func TestLoadDCIV(t *testing.T) {
	ds, err := Load(writeFixture(t, "1.data", dcivFile()), analysis.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, datafile.ModeDCIV, ds.Mode)
	require.Len(t, ds.Tables, 1)
	assert.Equal(t, []string{"Bias", "Current", "Time"}, ds.Tables[0].Columns())

	h, ok := ds.Handler.(*analysis.DCIV)
	require.True(t, ok)
	assert.Equal(t, 4, h.Measurement().Number)
	assert.Equal(t, 739722.647152, h.Measurement().ID)
	assert.Equal(t, 2, h.MeasureMode)
	assert.Equal(t, -3.0, h.FirstBias)
	assert.Equal(t, 3.0, h.SecondBias)
	assert.Equal(t, 0.05, h.Step)
	assert.Equal(t, 0.1, h.PositiveCompliance)
	assert.Equal(t, h.Data().Rows(), h.Steps)

	v, err := h.VoltageAtMinCurrent()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, h.FirstBias)
	assert.LessOrEqual(t, v, h.SecondBias)
}

func TestLoadCV(t *testing.T) {
	ds, err := Load(writeFixture(t, "2.data", cvFile()), analysis.DefaultOptions())
	require.NoError(t, err)

	h, ok := ds.Handler.(*analysis.CV)
	require.True(t, ok)
	assert.Equal(t, 5, h.Measurement().Number)
	assert.Equal(t, 1e5, h.Frequency)
	assert.Equal(t, -4.5, h.Start)
	assert.Equal(t, 3, h.SweepMode)
	assert.Equal(t, 20, h.Data().Rows())
	assert.True(t, ds.Metadata.Has("Osc level"))

	// every resistance is above 1 Ohm
	assert.True(t, h.UsesParallel(analysis.CapacitanceAuto))
	auto, err := h.Capacitance(analysis.CapacitanceAuto)
	require.NoError(t, err)
	parallel, err := h.Capacitance(analysis.CapacitanceParallel)
	require.NoError(t, err)
	assert.Equal(t, parallel, auto)
}

func TestLoadPQPUND(t *testing.T) {
	ds, err := Load(writeFixture(t, "3.data", pqpundFile()), analysis.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, ds.Tables, 3)
	assert.Equal(t, []string{"Voltages", "Charge"}, ds.Tables[2].Columns())

	h, ok := ds.Handler.(*analysis.PQPUND)
	require.True(t, ok)
	assert.Equal(t, 10, h.Measurement().Number)
	assert.Equal(t, 739722.655036, h.Measurement().ID)
	assert.Equal(t, 5.0, h.FirstBias)
	assert.Equal(t, -5.0, h.SecondBias)
	assert.Equal(t, 121, h.Steps)
	assert.Equal(t, 5, h.Repetitions)
	assert.Equal(t, 1e-5, h.RumpTime)
	assert.Equal(t, 5e-6, h.RumpIntegrationTime)
	assert.Equal(t, 1e-5, h.WaitTime)
	assert.Equal(t, 5e-6, h.WaitIntegrationTime)

	want := h.Repetitions * 2 * (h.Steps - 1)
	assert.Equal(t, 1200, want)
	assert.Equal(t, want, h.Data().Rows())
	assert.Equal(t, want, h.Transition().Rows())
	assert.Equal(t, want, h.Plateau().Rows())
	assert.Equal(t, 4, len(h.Transition().Columns()))
	assert.Equal(t, 1200, h.Charge().Rows())
}

func TestLoadPUNDD(t *testing.T) {
	ds, err := Load(writeFixture(t, "4.data", punddFile(30)), analysis.DefaultOptions())
	require.NoError(t, err)

	h, ok := ds.Handler.(*analysis.PUNDD)
	require.True(t, ok)
	assert.Equal(t, 12, h.Measurement().Number)
	assert.Equal(t, 30, h.Repetitions)
	assert.Equal(t, 1e-3, h.PulseWidth)
	assert.Equal(t, 1e-3, h.SlopeTime)
	assert.Equal(t, 30, h.Data().Rows())

	pol, err := h.Polarization(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.48, pol[0], 1e-12)
}

func TestLoadPadSize(t *testing.T) {
	opts := analysis.DefaultOptions()
	opts.PadSizeUm = 50
	ds, err := Parse(punddFile(3), opts)
	require.NoError(t, err)

	h := ds.Handler.(*analysis.PUNDD)
	assert.Equal(t, 50.0, h.PadSizeUm())
	pol, err := h.Polarization(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.12, pol[0], 1e-12)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{
			name:    "unsupported mode",
			content: "Steps\n121\nMeasurement type\nIV SWEEP\nBias\tCurrent\n0\t0\n",
			target:  datafile.ErrUnsupportedMode,
		},
		{
			name:    "no measurement type",
			content: "Steps\n121\n",
			target:  datafile.ErrMissingField,
		},
		{
			name:    "missing required key",
			content: "Bias2\n3\nMeasurement type\nDC IV\nBias\tCurrent\tTime\n0\t0\t0\n",
			target:  datafile.ErrMissingField,
		},
		{
			name:    "no body",
			content: "Bias1\tBias2\n-3\t3\nMeasurement type\nDC IV\n",
			target:  datafile.ErrMalformedBlock,
		},
		{
			name:    "ragged body",
			content: "Bias1\tBias2\tRealMeasuredPoints\n-3\t3\t2\nMeasurement type\nDC IV\nBias\tCurrent\tTime\n0\t0\t0\n1\t1\n",
			target:  datafile.ErrMalformedBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content, analysis.DefaultOptions())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.data"), analysis.DefaultOptions())
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestWideRowsAreTruncated(t *testing.T) {
	content := "Bias1\tBias2\tRealMeasuredPoints\n-1\t1\t2\nMeasurement type\nDC IV\n" +
		"Bias\tCurrent\tTime\tExtra\n0\t0\t0\t9\n1\t1e-3\t1\t9\n"
	ds, err := Parse(content, analysis.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bias", "Current", "Time"}, ds.Tables[0].Columns())
	assert.Equal(t, 2, ds.Tables[0].Rows())
}

func TestModes(t *testing.T) {
	assert.ElementsMatch(t, datafile.Modes(), Modes())
	for _, m := range Modes() {
		entry := registry[m]
		assert.NotNil(t, entry.newHandler, "mode %s", m)
		assert.Positive(t, entry.columns, "mode %s", m)
	}
}
