package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/util"
)

var infoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Show the metadata and tables of a datafile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		m := ds.Handler.Measurement()
		fmt.Fprintf(out, "Mode:        %s\n", ds.Mode)
		fmt.Fprintf(out, "Measurement: #%d (id %g)\n", m.Number, m.ID)
		if cv, ok := ds.Handler.(*analysis.CV); ok {
			fmt.Fprintf(out, "Frequency:   %s\n", util.FormatFrequency(cv.Frequency))
		}

		fmt.Fprintln(out, "\nMetadata:")
		for _, key := range ds.Metadata.Keys() {
			v, _ := ds.Metadata.Get(key)
			fmt.Fprintf(out, "  %-24s %s\n", key, v)
		}

		fmt.Fprintln(out, "\nTables:")
		for i, t := range ds.Tables {
			fmt.Fprintf(out, "  [%d] %d rows: %s\n", i, t.Rows(), strings.Join(t.Columns(), ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
