// Package application orchestrates batch runs: it loads configuration,
// fetches scenario snapshots from the simulation engine, builds per-cell
// reports and hands them to a report sink.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-childlimit/internal/aggregation"
	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/logging"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// ErrAllCellsFailed is returned by Run when no cell produced a report.
var ErrAllCellsFailed = errors.New("every cell failed")

// CellFailure records a cell whose computation failed. Other cells are
// unaffected.
type CellFailure struct {
	Cell domain.CellKey
	Err  error
}

// Error implements the error interface.
func (f CellFailure) Error() string { return fmt.Sprintf("cell %s: %v", f.Cell, f.Err) }

// Unwrap returns the underlying error.
func (f CellFailure) Unwrap() error { return f.Err }

// CellPlan is one cell scheduled for a run.
type CellPlan struct {
	Cell   domain.CellKey
	Policy Policy
}

// BatchResult is the outcome of a run. Reports, Distributions and
// Failures are sorted by cell.
type BatchResult struct {
	RunID         string
	Reports       []*domain.Report
	Distributions []*domain.Distribution
	Failures      []CellFailure
	Fallbacks     int
	Started       time.Time
	Duration      time.Duration
}

// Rows flattens the reports into combined table rows.
func (r *BatchResult) Rows() []ports.CombinedRow { return Combine(r.Reports) }

// Combine flattens reports into combined rows ordered by cell, keeping
// each report's metric order.
func Combine(reports []*domain.Report) []ports.CombinedRow {
	sorted := make([]*domain.Report, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Cell.Less(sorted[j].Cell) })

	var rows []ports.CombinedRow
	for _, r := range sorted {
		for _, m := range r.Metrics {
			rows = append(rows, ports.CombinedRow{Cell: r.Cell, Metric: m})
		}
	}
	return rows
}

// RunnerOption configures a BatchRunner.
type RunnerOption func(*BatchRunner)

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) RunnerOption {
	return func(r *BatchRunner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *BatchRunner) { r.logger = l }
}

// WithRegistry replaces the built-in policy registry.
func WithRegistry(reg *PolicyRegistry) RunnerOption {
	return func(r *BatchRunner) { r.registry = reg }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) RunnerOption {
	return func(r *BatchRunner) { r.runID = id }
}

// BatchRunner evaluates every configured (year, policy, parameter) cell.
// Cells run concurrently up to the configured limit. The baseline and
// full-abolition snapshots of a year are loaded once and shared.
type BatchRunner struct {
	cfg       *BatchConfig
	engine    ports.SimulationEngine
	sink      ports.ReportSink
	registry  *PolicyRegistry
	metrics   ports.MetricsCollector
	logger    *slog.Logger
	runID     string
	constancy aggregation.ConstancyPolicy
	loader    *SnapshotLoader

	years    singleflight.Group
	mu       sync.Mutex
	yearCtx  map[int]*YearContext
	yearErrs map[int]error
}

// NewBatchRunner creates a runner for cfg. The engine is typically an
// engine client with its middleware chain already applied.
func NewBatchRunner(
	cfg *BatchConfig,
	engine ports.SimulationEngine,
	sink ports.ReportSink,
	opts ...RunnerOption,
) (*BatchRunner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", domain.ErrInvalidConfiguration)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", domain.ErrInvalidConfiguration)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: nil report sink", domain.ErrInvalidConfiguration)
	}
	constancy, err := ParseConstancy(cfg.Assumptions.GroupConstancy)
	if err != nil {
		return nil, err
	}

	r := &BatchRunner{
		cfg:       cfg,
		engine:    engine,
		sink:      sink,
		registry:  NewPolicyRegistry(),
		metrics:   ports.NoopMetrics{},
		logger:    logging.Discard(),
		constancy: constancy,
		yearCtx:   make(map[int]*YearContext),
		yearErrs:  make(map[int]error),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.loader = NewSnapshotLoader(engine, r.logger, cfg.Concurrency)
	return r, nil
}

// RunID returns the run identifier.
func (r *BatchRunner) RunID() string { return r.runID }

// Plan expands the configuration into cells in output order.
func (r *BatchRunner) Plan() ([]CellPlan, error) {
	var plan []CellPlan
	for _, year := range r.cfg.Years {
		for _, pc := range r.cfg.Policies {
			policy, ok := r.registry.Lookup(pc.Name)
			if !ok {
				return nil, unknownNameError("policy", pc.Name, r.registry.Names())
			}
			for _, param := range policy.Values(pc) {
				plan = append(plan, CellPlan{
					Cell:   domain.NewCellKey(year, policy.Name, param),
					Policy: policy,
				})
			}
		}
	}
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].Cell.Less(plan[j].Cell) })
	return plan, nil
}

type cellOutcome struct {
	report    *domain.Report
	dist      *domain.Distribution
	fallbacks []string
}

// Run evaluates every cell and writes the results. A cell that fails is
// recorded in BatchResult.Failures and logged; the run continues. Run
// returns an error when the context is cancelled, when output cannot be
// written, or with ErrAllCellsFailed when no cell succeeded.
func (r *BatchRunner) Run(ctx context.Context) (*BatchResult, error) {
	plan, err := r.Plan()
	if err != nil {
		return nil, err
	}

	result := &BatchResult{RunID: r.runID, Started: time.Now()}
	r.logger.Info("batch started",
		"run_id", r.runID,
		"dataset", r.cfg.Dataset,
		"cells", len(plan),
		"years", len(r.cfg.Years),
		"concurrency", r.cfg.Concurrency)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, cp := range plan {
		g.Go(func() error {
			start := time.Now()
			out, err := r.computeCell(gctx, cp)
			elapsed := time.Since(start)
			r.metrics.RecordLatency(ports.MetricBatchCellDuration, elapsed, map[string]string{"policy": cp.Cell.Policy})

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.metrics.RecordCounter(ports.MetricBatchCells, 1, map[string]string{"policy": cp.Cell.Policy, "status": "failed"})
				r.logger.Warn("cell failed", "run_id", r.runID, "cell", cp.Cell.String(), "error", err)
				mu.Lock()
				result.Failures = append(result.Failures, CellFailure{Cell: cp.Cell, Err: err})
				mu.Unlock()
				return nil
			}

			if err := r.sink.WriteReport(gctx, out.report); err != nil {
				return fmt.Errorf("write %s: %w", cp.Cell, err)
			}
			if out.dist != nil {
				if err := r.sink.WriteDistribution(gctx, out.dist); err != nil {
					return fmt.Errorf("write distribution %s: %w", cp.Cell, err)
				}
			}

			r.recordFallbacks(gctx, cp.Cell, out.fallbacks)
			r.metrics.RecordCounter(ports.MetricBatchCells, 1, map[string]string{"policy": cp.Cell.Policy, "status": "success"})
			r.logger.Info("cell complete",
				"cell", cp.Cell.String(),
				"metrics", len(out.report.Metrics),
				"fallbacks", len(out.fallbacks),
				"duration", elapsed)

			mu.Lock()
			result.Reports = append(result.Reports, out.report)
			if out.dist != nil {
				result.Distributions = append(result.Distributions, out.dist)
			}
			result.Fallbacks += len(out.fallbacks)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		result.Duration = time.Since(result.Started)
		return result, err
	}

	sort.SliceStable(result.Reports, func(i, j int) bool { return result.Reports[i].Cell.Less(result.Reports[j].Cell) })
	sort.SliceStable(result.Distributions, func(i, j int) bool {
		return result.Distributions[i].Cell.Less(result.Distributions[j].Cell)
	})
	sort.SliceStable(result.Failures, func(i, j int) bool { return result.Failures[i].Cell.Less(result.Failures[j].Cell) })

	if len(result.Reports) > 0 {
		if err := r.sink.WriteCombined(ctx, result.Rows()); err != nil {
			result.Duration = time.Since(result.Started)
			return result, fmt.Errorf("write combined results: %w", err)
		}
	}

	result.Duration = time.Since(result.Started)
	r.metrics.RecordGauge("snapshots_loaded", float64(r.loader.Loaded()), nil)
	r.logger.Info("batch finished",
		"run_id", r.runID,
		"reports", len(result.Reports),
		"failures", len(result.Failures),
		"fallbacks", result.Fallbacks,
		"duration", result.Duration)

	if len(result.Reports) == 0 && len(result.Failures) > 0 {
		return result, fmt.Errorf("%w: %d cells", ErrAllCellsFailed, len(result.Failures))
	}
	return result, nil
}

func (r *BatchRunner) recordFallbacks(ctx context.Context, cell domain.CellKey, metrics []string) {
	for _, m := range metrics {
		r.metrics.RecordCounter(ports.MetricZeroDivision, 1, map[string]string{"metric": m})
		r.logger.DebugContext(ctx, "ratio fell back to default", "cell", cell.String(), "metric", m)
	}
}

func (r *BatchRunner) computeCell(ctx context.Context, cp CellPlan) (*cellOutcome, error) {
	yc, err := r.yearContext(ctx, cp.Cell.Year)
	if err != nil {
		return nil, err
	}

	in := &CellInput{Cell: cp.Cell, Year: yc, Assumptions: r.cfg.Assumptions}
	if cp.Policy.Simulated() {
		scenario := cp.Policy.Reform(cp.Cell.Year, cp.Cell.Parameter, r.cfg.Parameters.Paths())
		reform, err := r.loader.Load(ctx, scenario, cp.Cell.Year)
		if err != nil {
			return nil, err
		}
		if err := CheckAlignment(yc.Baseline, reform); err != nil {
			return nil, err
		}
		in.Reform = reform
	}

	report, err := cp.Policy.Build(in)
	if err != nil {
		return nil, err
	}
	out := &cellOutcome{report: report, fallbacks: in.Fallbacks()}

	if in.Reform != nil && r.cfg.Output.Distribution {
		if out.dist, err = BuildDistribution(cp.Cell, yc, in.Reform); err != nil {
			return nil, fmt.Errorf("distribution: %w", err)
		}
	}
	return out, nil
}

// yearContext returns the shared context for year, building it once.
func (r *BatchRunner) yearContext(ctx context.Context, year int) (*YearContext, error) {
	r.mu.Lock()
	if yc, ok := r.yearCtx[year]; ok {
		r.mu.Unlock()
		return yc, nil
	}
	if err, ok := r.yearErrs[year]; ok {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	v, err, _ := r.years.Do(strconv.Itoa(year), func() (any, error) {
		yc, err := r.buildYearContext(ctx, year)

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			if ctx.Err() == nil {
				r.yearErrs[year] = err
			}
			return nil, err
		}
		r.yearCtx[year] = yc
		return yc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*YearContext), nil
}

func (r *BatchRunner) buildYearContext(ctx context.Context, year int) (*YearContext, error) {
	var baseline, abolition *Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		baseline, err = r.loader.Load(gctx, domain.Baseline(), year)
		return err
	})
	g.Go(func() error {
		var err error
		abolition, err = r.loader.Load(gctx, AbolitionScenario(year, r.cfg.Parameters.Paths()), year)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("year %d: %w", year, err)
	}

	yc, err := NewYearContext(baseline, abolition, r.constancy, r.logger)
	if err != nil {
		return nil, fmt.Errorf("year %d: %w", year, err)
	}
	yearCell := domain.NewCellKey(year, "year-context", nil)
	r.recordFallbacks(ctx, yearCell, yc.Fallbacks)
	r.logger.Info("year context ready",
		"year", year,
		"children", yc.TotalChildren,
		"affected_children", yc.AffectedChildren,
		"affected_families", yc.AffectedFamilies)
	return yc, nil
}
