package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-childlimit/infrastructure/middleware"
	"github.com/ahrav/go-childlimit/infrastructure/output"
	"github.com/ahrav/go-childlimit/internal/application"
)

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		years       []int
		outputDir   string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every configured policy variant and write CSV results",
		Long: `run loads the batch configuration, evaluates every (year, policy,
parameter) cell against the configured engine and writes per-scenario,
distributional and combined CSV files to the output directory.

A cell that fails is reported and skipped; the run fails only when no
cell succeeds or output cannot be written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := application.NewPolicyRegistry()
			cfg, err := loadConfig(configPath, registry, func(c *application.BatchConfig) {
				if len(years) > 0 {
					c.Years = years
				}
				if outputDir != "" {
					c.OutputDir = outputDir
				}
			})
			if err != nil {
				return err
			}

			logger := newLogger(cmd, cfg.LogLevel)
			hash, err := application.ConfigHash(cfg)
			if err != nil {
				return err
			}
			logger.Info("configuration loaded",
				"path", configPath,
				"hash", hash,
				"provider", cfg.Engine.Provider,
				"output_dir", cfg.OutputDir)

			reg := prometheus.NewRegistry()
			collector := middleware.NewPrometheusMetrics(reg)
			if metricsAddr != "" {
				shutdown := serveMetrics(metricsAddr, reg, logger)
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = shutdown(sctx)
				}()
			}

			client, err := newEngineClient(cfg, collector, logger)
			if err != nil {
				return err
			}
			writer, err := output.NewCSVWriter(output.WriterConfig{
				Dir:               cfg.OutputDir,
				IncludeProvenance: cfg.Output.IncludeProvenance,
				PerScenarioFiles:  cfg.Output.PerScenarioFiles,
				Suffixes:          registry.ParamLabels(),
			})
			if err != nil {
				return err
			}

			runner, err := application.NewBatchRunner(cfg, client, writer,
				application.WithMetrics(collector),
				application.WithLogger(logger),
				application.WithRegistry(registry),
			)
			if err != nil {
				return err
			}

			result, err := runner.Run(ctx)
			if result != nil {
				printSummary(cmd.OutOrStdout(), result)
			}
			if err != nil {
				return fmt.Errorf("run %s: %w", runner.RunID(), err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Batch configuration YAML (defaults apply when omitted)")
	cmd.Flags().IntSliceVar(&years, "years", nil, "Years to evaluate, overriding the config (e.g. 2026,2027)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory, overriding the config")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// serveMetrics exposes reg on addr at /metrics until shutdown is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func(context.Context) error {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return srv.Shutdown
}
