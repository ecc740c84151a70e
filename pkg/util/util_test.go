package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrate(t *testing.T) {
	x := UniformTimes(11, 0.1)
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = xi * xi
	}

	t.Run("simpson is exact for parabola", func(t *testing.T) {
		got, err := Integrate(SimpsonMethod, x, y)
		require.NoError(t, err)
		assert.InDelta(t, 1.0/3.0, got, 1e-12)
	})

	t.Run("simpson with even number of points", func(t *testing.T) {
		got, err := Integrate(SimpsonMethod, x[:10], y[:10])
		require.NoError(t, err)
		assert.InDelta(t, math.Pow(0.9, 3)/3, got, 1e-12)
	})

	t.Run("trapezoidal", func(t *testing.T) {
		got, err := Integrate(TrapezoidalMethod, x, y)
		require.NoError(t, err)
		assert.InDelta(t, 0.335, got, 1e-12)
	})

	t.Run("too few points", func(t *testing.T) {
		_, err := Integrate(SimpsonMethod, x[:2], y[:2])
		assert.Error(t, err)
		_, err = Integrate(TrapezoidalMethod, x[:1], y[:1])
		assert.Error(t, err)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := Integrate(SimpsonMethod, x, y[:5])
		assert.Error(t, err)
	})
}

func TestCumulativeTrapezoid(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{1, 1, 1, 1}

	got := CumulativeTrapezoid(x, y)
	assert.Equal(t, []float64{0, 1, 2, 3}, got)
	assert.Nil(t, CumulativeTrapezoid(nil, nil))
}

func TestRollingMean(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	tests := []struct {
		name     string
		window   int
		center   bool
		expected []float64
	}{
		{"window 1 is identity", 1, true, []float64{1, 2, 3, 4, 5}},
		{"centered odd window", 3, true, []float64{math.NaN(), 2, 3, 4, math.NaN()}},
		{"centered even window", 4, true, []float64{math.NaN(), math.NaN(), 2.5, 3.5, math.NaN()}},
		{"trailing window", 2, false, []float64{math.NaN(), 1.5, 2.5, 3.5, 4.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RollingMean(values, tt.window, tt.center)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				if math.IsNaN(tt.expected[i]) {
					assert.True(t, math.IsNaN(got[i]), "index %d", i)
					continue
				}
				assert.InDelta(t, tt.expected[i], got[i], 1e-12, "index %d", i)
			}
		})
	}
}

func TestFormatValueFactor(t *testing.T) {
	tests := []struct {
		value    float64
		unit     string
		expected string
	}{
		{1.5, "V", "1.500 V"},
		{2.5e-3, "A", "2.500 mA"},
		{-4.2e-9, "A", "-4.200 nA"},
		{3.3e-13, "F", "330.000 fF"},
		{0, "C", "0.000 C"},
		{1500, "Hz", "1.500 kHz"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatValueFactor(tt.value, tt.unit))
	}
	assert.Equal(t, "100.000 kHz", FormatFrequency(1e5))
	assert.Equal(t, "2.000 MHz", FormatFrequency(2e6))
}

func TestFormatMagnitude(t *testing.T) {
	assert.Equal(t, "    12.5", FormatMagnitude(12.5))
	assert.Equal(t, "5.43e-05", FormatMagnitude(5.43e-5))
	assert.Equal(t, "-2.00e+03", FormatMagnitude(-2000))
	assert.Equal(t, "       0", FormatMagnitude(0))
}
