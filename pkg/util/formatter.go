package util

import (
	"fmt"
	"math"
)

// FormatValueFactor prints value with an SI prefix, e.g. 1.2e-9 A -> "1.200 nA".
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case math.IsNaN(value) || math.IsInf(value, 0):
		return fmt.Sprintf("%v %s", value, unit)
	case absValue == 0:
		return fmt.Sprintf("0.000 %s", unit)
	case absValue >= 1e6:
		return fmt.Sprintf("%.3e %s", value, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
	case absValue >= 1:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	case absValue >= 1e-9:
		return fmt.Sprintf("%.3f n%s", value*1e9, unit)
	case absValue >= 1e-12:
		return fmt.Sprintf("%.3f p%s", value*1e12, unit)
	case absValue >= 1e-15:
		return fmt.Sprintf("%.3f f%s", value*1e15, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

func FormatFrequency(freq float64) string {
	switch {
	case freq >= 1e6:
		return fmt.Sprintf("%.3f MHz", freq/1e6)
	case freq >= 1e3:
		return fmt.Sprintf("%.3f kHz", freq/1e3)
	default:
		return fmt.Sprintf("%.3f Hz", freq)
	}
}

func FormatMagnitude(value float64) string {
	if math.Abs(value) >= 1000 || (math.Abs(value) < 0.001 && value != 0) {
		return fmt.Sprintf("%8.2e", value) // "1.00e+03" or "5.43e-05"
	}
	return fmt.Sprintf("%8.3g", value) // "  732.5 "
}
