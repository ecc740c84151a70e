package util

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

type IntegrationMethod int

const (
	SimpsonMethod IntegrationMethod = iota
	TrapezoidalMethod
)

func (m IntegrationMethod) String() string {
	switch m {
	case TrapezoidalMethod:
		return "trapezoidal"
	default:
		return "simpson"
	}
}

// UniformTimes builds the synthetic time axis 0, dt, 2dt, ...
func UniformTimes(n int, dt float64) []float64 {
	times := make([]float64, n)
	for i := range times {
		times[i] = dt * float64(i)
	}
	return times
}

func Integrate(method IntegrationMethod, x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("integrate: length mismatch (%d != %d)", len(x), len(y))
	}

	switch method {
	case TrapezoidalMethod:
		if len(x) < 2 {
			return 0, fmt.Errorf("integrate: trapezoidal rule needs 2 points, got %d", len(x))
		}
		return integrate.Trapezoidal(x, y), nil
	default:
		if len(x) < 3 {
			return 0, fmt.Errorf("integrate: simpson rule needs 3 points, got %d", len(x))
		}
		return integrate.Simpsons(x, y), nil
	}
}

// CumulativeTrapezoid returns the running trapezoidal integral with initial value 0.
func CumulativeTrapezoid(x, y []float64) []float64 {
	n := len(y)
	if n == 0 {
		return nil
	}

	areas := make([]float64, n)
	for i := 1; i < n; i++ {
		areas[i] = 0.5 * (y[i] + y[i-1]) * (x[i] - x[i-1])
	}
	return floats.CumSum(make([]float64, n), areas)
}

// RollingMean is a fixed-window moving average. Positions whose window is
// incomplete are NaN. With center set the window for position i spans
// [i+off+1-window, i+off] where off = (window-1)/2.
func RollingMean(values []float64, window int, center bool) []float64 {
	n := len(values)
	out := make([]float64, n)
	if window < 1 {
		window = 1
	}

	offset := 0
	if center {
		offset = (window - 1) / 2
	}

	for i := range out {
		end := i + offset + 1
		start := end - window
		if start < 0 || end > n {
			out[i] = math.NaN()
			continue
		}
		out[i] = floats.Sum(values[start:end]) / float64(window)
	}
	return out
}
