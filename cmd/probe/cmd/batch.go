package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mipt-srf/probe-station/pkg/batch"
	"github.com/mipt-srf/probe-station/pkg/datafile"
	"github.com/mipt-srf/probe-station/pkg/dataset"
	"github.com/mipt-srf/probe-station/pkg/util"
)

var (
	ignoreFiles   []int
	workers       int
	drainVoltages []float64
	epsFloor      float64
)

var batchCmd = &cobra.Command{
	Use:   "batch DIR",
	Short: "Process the numbered datafiles of a session folder",
	Long: `Load DIR/1.data up to DIR/N.data concurrently and print the per-file
curves of the session: the threshold curve and input curves for DC IV, the
wake-up for PQPUND and the permittivity per cycle for CVS, with outlier
files dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := batch.FilesInFolder(args[0], ignoreFiles...)
		if err != nil {
			return err
		}
		run := batch.NewRun(options(), workers)
		datasets, err := run.LoadAll(cmd.Context(), paths)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run %s: %d files\n", run.ID, len(datasets))
		if len(datasets) == 0 {
			return nil
		}

		mode := datasets[0].Mode
		for _, ds := range datasets[1:] {
			if ds.Mode != mode {
				return batchSummaries(out, datasets)
			}
		}
		switch mode {
		case datafile.ModeDCIV:
			return batchDCIV(out, datasets)
		case datafile.ModePQPUND:
			return batchPQPUND(out, datasets)
		case datafile.ModeCV:
			return batchCV(out, datasets)
		}
		return batchSummaries(out, datasets)
	},
}

func init() {
	batchCmd.Flags().IntSliceVar(&ignoreFiles, "ignore", nil, "file numbers to skip")
	batchCmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel loaders (default number of CPUs)")
	batchCmd.Flags().Float64SliceVar(&drainVoltages, "drain", nil, "DC IV: drain voltages for the input curves")
	batchCmd.Flags().Float64Var(&epsFloor, "eps-floor", 0, "CVS: drop files whose permittivity falls below this")
	rootCmd.AddCommand(batchCmd)
}

func fileName(ds *dataset.Dataset) string {
	return filepath.Base(ds.Path)
}

func batchSummaries(out io.Writer, datasets []*dataset.Dataset) error {
	for _, ds := range datasets {
		summary, err := ds.Handler.Summarize()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s (%s)", fileName(ds), ds.Mode)
		printSummary(out, summary)
	}
	return nil
}

func batchDCIV(out io.Writer, datasets []*dataset.Dataset) error {
	threshold, err := batch.ThresholdCurve(datasets)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Threshold curve:")
	for i, v := range threshold {
		fmt.Fprintf(out, "  %-10s %s\n", fileName(datasets[i]), util.FormatValueFactor(v, "V"))
	}

	if len(drainVoltages) == 0 {
		return nil
	}
	curves, err := batch.InputCurves(datasets, drainVoltages, cfg.Analysis.Tolerance)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Input curves:")
	for j, v := range drainVoltages {
		fmt.Fprintf(out, "  Vd = %s\n", util.FormatValueFactor(v, "V"))
		for i, c := range curves[j] {
			fmt.Fprintf(out, "    %-10s %s\n", fileName(datasets[i]), util.FormatValueFactor(c, "A"))
		}
	}
	return nil
}

func batchPQPUND(out io.Writer, datasets []*dataset.Dataset) error {
	positive, err := batch.WakeUp(datasets, true)
	if err != nil {
		return err
	}
	negative, err := batch.WakeUp(datasets, false)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Wake-up, uC/cm2 (P+ / P-):")
	for i := range datasets {
		fmt.Fprintf(out, "  %s\n", fileName(datasets[i]))
		for c := range positive[i] {
			fmt.Fprintf(out, "    %3d  %s  %s\n", c+1,
				util.FormatMagnitude(positive[i][c]), util.FormatMagnitude(negative[i][c]))
		}
	}
	return nil
}

func batchCV(out io.Writer, datasets []*dataset.Dataset) error {
	if cfg.Analysis.ThicknessNm == 0 {
		fmt.Fprintln(out, "analysis.thickness_nm not set, permittivity skipped")
		return batchSummaries(out, datasets)
	}
	kept, dropped, err := batch.DropOutliers(datasets, cfg.PadAreaM2(), cfg.ThicknessM(), epsFloor)
	if err != nil {
		return err
	}
	for _, i := range dropped {
		fmt.Fprintf(out, "dropped %s\n", fileName(datasets[i]))
	}
	eps, err := batch.EpsilonCycles(kept, cfg.Analysis.ReadVoltage, cfg.Analysis.Tolerance)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Permittivity at %s:\n", util.FormatValueFactor(cfg.Analysis.ReadVoltage, "V"))
	for i, e := range eps {
		fmt.Fprintf(out, "  %-10s %s\n", fileName(kept[i]), util.FormatMagnitude(e))
	}
	return nil
}
