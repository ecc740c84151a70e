package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mipt-srf/probe-station/internal/config"
	"github.com/mipt-srf/probe-station/internal/logging"
	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/dataset"
)

var (
	// Global flags
	configPath string
	padSize    float64
	verbose    bool

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe station datafile analyser",
	Long: `Parse datafiles written by the probe station and extract the
ferroelectric and memristive figures of merit they carry.

Examples:
  probe info 1.data                          # Show metadata and tables
  probe analyze 1.data --voltage 0.5         # Summary plus lookups at 0.5 V
  probe export 1.data out.xlsx               # Write every table to a workbook
  probe batch session/ --ignore 3            # Process 1.data .. N.data`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().Float64Var(&padSize, "pad-size", 0, "pad side in um (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(configPath); err != nil {
		return err
	}
	if cmd.Flags().Changed("pad-size") {
		cfg.Analysis.PadSizeUm = padSize
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, logCloser, err = logging.New(cfg.Logging)
	return err
}

func options() analysis.Options {
	return cfg.AnalysisOptions(logger)
}

func loadDataset(path string) (*dataset.Dataset, error) {
	return dataset.Load(path, options())
}
