package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-childlimit/infrastructure/engine"
	"github.com/ahrav/go-childlimit/internal/application"
	"github.com/ahrav/go-childlimit/internal/ports"
)

func newGenerateDatasetCmd() *cobra.Command {
	var (
		configPath string
		out        string
		seed       int64
		size       int
		years      []int
	)

	cmd := &cobra.Command{
		Use:   "generate-dataset",
		Short: "Record engine results into a SQLite dataset for offline runs",
		Long: `generate-dataset evaluates every scenario a run of the configuration
needs with the configured engine and stores each variable in a SQLite
database. A later run with provider "sqlite" and this database as its
dsn replays the results without the engine.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := application.NewPolicyRegistry()
			cfg, err := loadConfig(configPath, registry, func(c *application.BatchConfig) {
				if cmd.Flags().Changed("seed") {
					c.Engine.Seed = seed
				}
				if cmd.Flags().Changed("size") {
					c.Engine.Size = size
				}
				if cmd.Flags().Changed("years") {
					c.Years = years
				}
			})
			if err != nil {
				return err
			}
			if cfg.Engine.Provider == "sqlite" && cfg.Engine.DSN == out {
				return fmt.Errorf("dataset %s cannot be generated from itself", out)
			}

			logger := newLogger(cmd, cfg.LogLevel)
			src, err := newEngineClient(cfg, ports.NoopMetrics{}, logger)
			if err != nil {
				return err
			}
			store, err := engine.OpenSQLiteStore(out)
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := application.GenerateDataset(ctx, cfg, registry, src, store, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d results for %d scenarios in %s\n",
				summary.Results, summary.Scenarios, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Batch configuration YAML (defaults apply when omitted)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "SQLite database to write")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Synthetic population seed, overriding the config")
	cmd.Flags().IntVar(&size, "size", 0, "Synthetic population size, overriding the config")
	cmd.Flags().IntSliceVar(&years, "years", nil, "Years to generate, overriding the config")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
