package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// DatasetStore persists engine results so that a later run can replay
// them without the engine.
type DatasetStore interface {
	Put(ctx context.Context, scenario domain.Scenario, year int, variable string, level domain.Level, values []float64) error
}

// DatasetSummary describes a generated dataset.
type DatasetSummary struct {
	Scenarios int
	Results   int
}

// DatasetScenarios lists every scenario a run of cfg simulates, per year,
// without duplicates: the baseline, full abolition and each variant of a
// simulated policy.
func DatasetScenarios(cfg *BatchConfig, registry *PolicyRegistry) (map[int][]domain.Scenario, error) {
	paths := cfg.Parameters.Paths()
	out := make(map[int][]domain.Scenario, len(cfg.Years))
	for _, year := range cfg.Years {
		seen := make(map[string]struct{})
		add := func(s domain.Scenario) {
			if _, ok := seen[s.Key()]; ok {
				return
			}
			seen[s.Key()] = struct{}{}
			out[year] = append(out[year], s)
		}

		add(domain.Baseline())
		add(AbolitionScenario(year, paths))
		for _, pc := range cfg.Policies {
			policy, ok := registry.Lookup(pc.Name)
			if !ok {
				return nil, unknownNameError("policy", pc.Name, registry.Names())
			}
			if !policy.Simulated() {
				continue
			}
			for _, param := range policy.Values(pc) {
				add(policy.Reform(year, param, paths))
			}
		}
	}
	return out, nil
}

// GenerateDataset computes every variable a run of cfg needs with src
// and stores it in store.
func GenerateDataset(
	ctx context.Context,
	cfg *BatchConfig,
	registry *PolicyRegistry,
	src ports.SimulationEngine,
	store DatasetStore,
	logger *slog.Logger,
) (DatasetSummary, error) {
	scenarios, err := DatasetScenarios(cfg, registry)
	if err != nil {
		return DatasetSummary{}, err
	}

	type job struct {
		scenario domain.Scenario
		year     int
		variable string
		level    domain.Level
	}
	var jobs []job
	var summary DatasetSummary
	for _, year := range cfg.Years {
		for _, s := range scenarios[year] {
			summary.Scenarios++
			for _, v := range domain.PersonVariables {
				jobs = append(jobs, job{s, year, v, domain.LevelPerson})
			}
			for _, v := range domain.HouseholdVariables {
				jobs = append(jobs, job{s, year, v, domain.LevelHousehold})
			}
		}
	}

	var stored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			values, err := src.Calculate(gctx, j.scenario, j.year, j.variable, j.level)
			if err != nil {
				return err
			}
			if err := store.Put(gctx, j.scenario, j.year, j.variable, j.level, values); err != nil {
				return fmt.Errorf("store %s/%d/%s: %w", j.scenario.Name, j.year, j.variable, err)
			}
			stored.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.Results = int(stored.Load())
	logger.Info("dataset generated",
		"years", len(cfg.Years),
		"scenarios", summary.Scenarios,
		"results", summary.Results)
	return summary, nil
}
