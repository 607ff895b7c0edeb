package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-childlimit/infrastructure/output"
)

func newCombineCmd() *cobra.Command {
	var (
		dir        string
		out        string
		provenance bool
	)

	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Rebuild the combined results table from per-scenario files",
		Long: `combine reads every per-scenario CSV file in a directory and writes
one combined table with a row per (year, policy, parameter, metric).
Distribution files and an existing combined table are ignored.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := output.ReadScenarioDir(dir)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no scenario files found in %s", dir)
			}
			if out == "" {
				out = filepath.Join(dir, output.CombinedFileName)
			}
			if err := output.WriteCSVFile(out, output.CombinedRecords(rows, provenance)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", len(rows), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "public/data", "Directory holding per-scenario CSV files")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Combined output path (default <dir>/"+output.CombinedFileName+")")
	cmd.Flags().BoolVar(&provenance, "provenance", false, "Include the provenance and basis columns")
	return cmd
}
