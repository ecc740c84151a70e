package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mipt-srf/probe-station/pkg/export"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export FILE [OUT]",
	Short: "Write the tables and summary of a datafile to xlsx or parquet",
	Long: `Write every table of a datafile and its summary to disk.

xlsx produces one workbook with a Metadata sheet, one sheet per table and a
Summary sheet. parquet produces a directory with one file per table.
Without OUT the result is written under export.dir, named after FILE.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := cfg.Export.Format
		if cmd.Flags().Changed("format") {
			format = strings.ToLower(exportFormat)
		}

		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		bundle, err := export.FromHandler(ds.Handler)
		if err != nil {
			return err
		}

		target, err := exportTarget(args, format)
		if err != nil {
			return err
		}
		switch format {
		case "xlsx":
			if err := export.WriteWorkbook(target, bundle); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", target)
		case "parquet":
			files, err := export.WriteParquetDir(target, bundle)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", f)
			}
		default:
			return errors.Errorf("unknown export format %q", format)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "xlsx or parquet")
	rootCmd.AddCommand(exportCmd)
}

func exportTarget(args []string, format string) (string, error) {
	if len(args) > 1 {
		return args[1], nil
	}
	base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	if format == "xlsx" {
		base += ".xlsx"
	}
	dir := cfg.Export.Dir
	if dir == "" {
		dir = filepath.Dir(args[0])
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create export dir")
	}
	return filepath.Join(dir, base), nil
}
