package cmd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/util"
)

var (
	atVoltage       float64
	removeLeakage   bool
	subtractPlateau bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Print the figures of merit of a datafile",
	Long: `Print the summary of a datafile plus the mode specific lookups.

DC IV files report the resistance ratio and the memory window, CVS files the
permittivity once analysis.thickness_nm is configured, PQPUND files can have
the leakage current removed before integration.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		voltage := cfg.Analysis.ReadVoltage
		if cmd.Flags().Changed("voltage") {
			voltage = atVoltage
		}

		h := ds.Handler
		switch th := h.(type) {
		case *analysis.DCIV:
			err = analyzeDCIV(out, th, voltage)
		case *analysis.CV:
			err = analyzeCV(out, th, voltage)
		case *analysis.PQPUND:
			h, err = analyzePQPUND(out, th)
		case *analysis.PUNDD:
			err = analyzePUNDD(out, th)
		}
		if err != nil {
			return err
		}

		summary, err := h.Summarize()
		if err != nil {
			return err
		}
		printSummary(out, summary)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Float64Var(&atVoltage, "voltage", 0, "lookup voltage (default analysis.read_voltage)")
	analyzeCmd.Flags().BoolVar(&removeLeakage, "remove-leakage", false, "PQPUND: subtract the fitted leakage current")
	analyzeCmd.Flags().BoolVar(&subtractPlateau, "subtract-plateau", false, "PQPUND: subtract the plateau compensation current")
	rootCmd.AddCommand(analyzeCmd)
}

func printSummary(out io.Writer, summary analysis.Summary) {
	fmt.Fprintln(out, "\nSummary:")
	for _, q := range summary {
		if q.Unit == "" {
			fmt.Fprintf(out, "  %-28s %g\n", q.Name, q.Value)
			continue
		}
		fmt.Fprintf(out, "  %-28s %s\n", q.Name, util.FormatValueFactor(q.Value, q.Unit))
	}
}

func printLookup(out io.Writer, name string, l analysis.Lookup, unit string) {
	mark := ""
	if !l.Exact {
		mark = "  (outside tolerance)"
	}
	fmt.Fprintf(out, "  %-28s %s at %s%s\n", name,
		util.FormatValueFactor(l.Value, unit), util.FormatValueFactor(l.X, "V"), mark)
}

func analyzeDCIV(out io.Writer, h *analysis.DCIV, voltage float64) error {
	tol := cfg.Analysis.Tolerance
	fmt.Fprintf(out, "DC IV at %s:\n", util.FormatValueFactor(voltage, "V"))

	branches, err := h.BranchCurrentsAtVoltage(voltage, tol)
	if err != nil {
		return err
	}
	printLookup(out, "Current, first branch", branches[0], "A")
	printLookup(out, "Current, second branch", branches[1], "A")

	ratio, err := h.ResistanceRatio(voltage, tol)
	switch {
	case errors.Is(err, analysis.ErrNoCrossing):
		fmt.Fprintf(out, "  %-28s n/a\n", "Resistance ratio")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "  %-28s %s\n", "Resistance ratio", util.FormatMagnitude(ratio))
	}

	if cfg.Analysis.WindowCurrent > 0 {
		window, err := h.MemoryWindow(cfg.Analysis.WindowCurrent, cfg.Analysis.Tolerance)
		if err != nil {
			return err
		}
		printLookup(out, "Memory window", window, "V")
	}
	return nil
}

func analyzeCV(out io.Writer, h *analysis.CV, voltage float64) error {
	mode := h.CapacitanceMode()
	scheme := "series"
	if h.UsesParallel(mode) {
		scheme = "parallel"
	}
	fmt.Fprintf(out, "CVS at %s, %s scheme (%s)\n", util.FormatFrequency(h.Frequency), scheme, mode)

	if cfg.Analysis.ThicknessNm == 0 {
		return nil
	}
	if err := h.SetGeometry(cfg.PadAreaM2(), cfg.ThicknessM()); err != nil {
		return err
	}
	eps, err := h.EpsilonAtVoltage(voltage, cfg.Analysis.Tolerance)
	if err != nil {
		return err
	}
	printLookup(out, "Permittivity, forward", eps[0], "")
	printLookup(out, "Permittivity, reverse", eps[1], "")
	return nil
}

func analyzePQPUND(out io.Writer, h *analysis.PQPUND) (analysis.Handler, error) {
	if subtractPlateau {
		h = h.SubtractPlateauCurrent(cfg.Analysis.LeakageFromPositive)
		fmt.Fprintln(out, "Plateau compensation current subtracted")
	}
	if removeLeakage {
		lf, err := h.FitLeakage(cfg.Analysis.LeakageFromPositive, cfg.Analysis.LeakageFromNegative)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Leakage fit: positive %v, negative %v\n", lf.Positive.Params, lf.Negative.Params)
		if h, err = h.SubtractLeakage(lf); err != nil {
			return nil, err
		}
	}

	pos, err := h.Polarizations(true)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, "Polarization per cycle, uC/cm2:")
	for i, p := range pos {
		fmt.Fprintf(out, "  %3d  %s\n", i+1, util.FormatMagnitude(p))
	}
	return h, nil
}

func analyzePUNDD(out io.Writer, h *analysis.PUNDD) error {
	pol, err := h.Polarization(cfg.Analysis.PUNDWindow)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "2Pr per cycle, uC/cm2 (window %d):\n", cfg.Analysis.PUNDWindow)
	for i, p := range pol {
		fmt.Fprintf(out, "  %3d  %s\n", i+1, util.FormatMagnitude(p))
	}
	return nil
}
