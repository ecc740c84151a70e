package config

import (
	"log/slog"

	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/fit"
)

// AnalysisOptions converts the analysis and fit sections into handler
// options.
func (c *Config) AnalysisOptions(logger *slog.Logger) analysis.Options {
	return analysis.Options{
		PadSizeUm:   c.Analysis.PadSizeUm,
		Logger:      logger,
		Capacitance: c.CapacitanceMode(),
		Fit: fit.Options{
			MaxIter: c.Fit.MaxIter,
			Ftol:    c.Fit.Ftol,
			Xtol:    c.Fit.Xtol,
			Lambda0: fit.DefaultOptions().Lambda0,
			Logger:  logger,
		},
	}
}

func (c *Config) CapacitanceMode() analysis.CapacitanceMode {
	// validated by oneof
	m, _ := analysis.ParseCapacitanceMode(c.Analysis.Capacitance)
	return m
}

// ThicknessM is the film thickness in meters.
func (c *Config) ThicknessM() float64 {
	return c.Analysis.ThicknessNm * 1e-9
}

// PadAreaM2 is the capacitor area in m^2: area_m2 when set, otherwise the
// square pad of side pad_size_um.
func (c *Config) PadAreaM2() float64 {
	if c.Analysis.AreaM2 > 0 {
		return c.Analysis.AreaM2
	}
	return c.Analysis.PadSizeUm * c.Analysis.PadSizeUm * 1e-12
}
