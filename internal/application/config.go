package application

import (
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// BatchConfig defines a complete batch run: which years and policy
// variants to evaluate, how to reach the simulation engine and where to
// write results. It is the primary configuration entry point for the
// childlimit command.
type BatchConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning.
	Version string `yaml:"version" validate:"required,semver"`
	// Dataset names the microdata the engine simulates, recorded in logs
	// and used to key stored datasets.
	Dataset string `yaml:"dataset" validate:"required,min=1,max=255"`
	// Years lists the fiscal years to evaluate.
	Years []int `yaml:"years" validate:"required,min=1,max=20,dive,min=2000,max=2100"`
	// OutputDir is the directory that receives every CSV file.
	OutputDir string `yaml:"output_dir" validate:"required"`
	// Concurrency bounds the number of cells computed at once.
	Concurrency int `yaml:"concurrency" validate:"min=1,max=256"`
	// LogLevel is one of trace, debug, info, warn or error.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
	// Engine configures the simulation engine client.
	Engine EngineConfig `yaml:"engine"`
	// Parameters names the engine parameters a reform overrides.
	Parameters ParameterConfig `yaml:"parameters"`
	// Policies lists the policy variants to evaluate, in any order.
	Policies []PolicyConfig `yaml:"policies" validate:"required,min=1,dive"`
	// Assumptions holds the constants used by estimated policies.
	Assumptions AssumptionConfig `yaml:"assumptions"`
	// Output controls which files are written.
	Output OutputConfig `yaml:"output"`
}

// EngineConfig selects a simulation engine provider and the resilience
// middleware wrapped around it.
type EngineConfig struct {
	// Provider is a registered engine provider name such as "synthetic"
	// or "sqlite".
	Provider string `yaml:"provider" validate:"required,min=1,max=64"`
	// DSN is the data source for providers backed by storage.
	DSN string `yaml:"dsn,omitempty"`
	// Seed and Size configure the synthetic provider's population.
	Seed int64 `yaml:"seed"`
	Size int   `yaml:"size" validate:"min=0,max=10000000"`
	// TimeoutSeconds bounds every engine call. Zero disables the timeout.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=0,max=3600"`
	// Retry configures recovery from transient engine failures.
	Retry RetryConfig `yaml:"retry"`
	// RateLimit throttles calls to the engine.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// CircuitBreaker stops calling a failing engine for a cooldown.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	// CacheSize is the number of engine results kept in memory. Zero
	// disables the cache.
	CacheSize int `yaml:"cache_size" validate:"min=0,max=1000000"`
}

// Timeout returns the per-call engine timeout.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// RetryConfig specifies the error recovery strategy for engine calls.
type RetryConfig struct {
	// MaxAttempts is the number of retries after the first attempt;
	// 0 disables retries.
	MaxAttempts int `yaml:"max_attempts" validate:"min=0,max=10"`
	// InitialWait is the base delay in milliseconds before the first
	// retry.
	InitialWait int `yaml:"initial_wait_ms" validate:"min=0,max=60000"`
	// MaxWait caps the delay in milliseconds between retries.
	MaxWait int `yaml:"max_wait_ms" validate:"min=0,max=300000"`
}

// RateLimitConfig configures a token bucket in front of the engine.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained call rate; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	// Burst is the bucket size.
	Burst int `yaml:"burst" validate:"min=0,max=10000"`
}

// CircuitBreakerConfig configures the consecutive-failure breaker.
type CircuitBreakerConfig struct {
	// MaxFailures opens the circuit after this many consecutive failures;
	// 0 disables the breaker.
	MaxFailures int `yaml:"max_failures" validate:"min=0,max=1000"`
	// CooldownSeconds is how long the circuit stays open.
	CooldownSeconds int `yaml:"cooldown_seconds" validate:"min=0,max=3600"`
}

// ParameterConfig names the dotted engine parameters that hold the child
// limit for each benefit.
type ParameterConfig struct {
	UCChildLimit  string `yaml:"uc_child_limit" validate:"required,dottedpath"`
	CTCChildLimit string `yaml:"ctc_child_limit" validate:"omitempty,dottedpath"`
}

// Paths returns the configured limit paths, skipping empty ones.
func (p ParameterConfig) Paths() []string {
	paths := make([]string, 0, 2)
	for _, path := range []string{p.UCChildLimit, p.CTCChildLimit} {
		if path != "" {
			paths = append(paths, path)
		}
	}
	return paths
}

// PolicyConfig selects one policy and, for parameterised policies, the
// parameter values to sweep.
type PolicyConfig struct {
	// Name is a registered policy name such as "three-child-limit".
	Name string `yaml:"name" validate:"required,policyname"`
	// Range overrides the policy's default parameter sweep.
	Range *RangeConfig `yaml:"range,omitempty"`
}

// RangeConfig is an inclusive integer sweep.
type RangeConfig struct {
	From int `yaml:"from" validate:"min=0"`
	To   int `yaml:"to" validate:"gtefield=From"`
	Step int `yaml:"step" validate:"min=1"`
}

// Values expands the range into its parameter values.
func (r RangeConfig) Values() []int {
	if r.Step <= 0 || r.To < r.From {
		return nil
	}
	values := make([]int, 0, (r.To-r.From)/r.Step+1)
	for v := r.From; v <= r.To; v += r.Step {
		values = append(values, v)
	}
	return values
}

// AssumptionConfig holds the constants used by estimated policies.
type AssumptionConfig struct {
	// DisabledChildShare is the share of full-abolition effects attributed
	// to a disabled-child exemption.
	DisabledChildShare float64 `yaml:"disabled_child_share" validate:"gt=0,lte=1"`
	// DisabledChildPrevalence is the share of all children assumed to be
	// disabled.
	DisabledChildPrevalence float64 `yaml:"disabled_child_prevalence" validate:"gte=0,lte=1"`
	// StandardChildElement is the annual child element in pounds.
	StandardChildElement float64 `yaml:"standard_child_element" validate:"gt=0"`
	// PublishedDisabledCost and PublishedDisabledChildrenOutOfPoverty
	// are external costings echoed in the disabled-child report.
	PublishedDisabledCost                 float64 `yaml:"published_disabled_cost" validate:"gte=0"`
	PublishedDisabledChildrenOutOfPoverty float64 `yaml:"published_disabled_children_out_of_poverty" validate:"gte=0"`
	// GroupConstancy is how disagreeing per-group values are handled:
	// pick_first, warn or strict.
	GroupConstancy string `yaml:"group_constancy" validate:"omitempty,oneof=pick_first warn strict"`
}

// OutputConfig controls which files a run writes.
type OutputConfig struct {
	// IncludeProvenance adds a provenance column to metric tables.
	IncludeProvenance bool `yaml:"include_provenance"`
	// PerScenarioFiles writes one metric file per cell.
	PerScenarioFiles bool `yaml:"per_scenario_files"`
	// Distribution writes decile files for simulated cells.
	Distribution bool `yaml:"distribution"`
}

// DefaultBatchConfig returns the configuration used when a field is not
// set in YAML. It evaluates every built-in policy over its default sweep.
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		Version:     "1.0.0",
		Dataset:     "enhanced_frs_2023_24",
		Years:       []int{2026, 2027},
		OutputDir:   "public/data",
		Concurrency: 4,
		LogLevel:    "info",
		Engine: EngineConfig{
			Provider:       "synthetic",
			Seed:           1,
			Size:           2000,
			TimeoutSeconds: 300,
			Retry:          RetryConfig{MaxAttempts: 3, InitialWait: 500, MaxWait: 10000},
			CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5, CooldownSeconds: 30},
			CacheSize:      512,
		},
		Parameters: ParameterConfig{
			UCChildLimit:  domain.ParamUCChildLimit,
			CTCChildLimit: domain.ParamCTCChildLimit,
		},
		Policies: []PolicyConfig{
			{Name: PolicyFullAbolition},
			{Name: PolicyThreeChildLimit},
			{Name: PolicyUnderFiveExemption},
			{Name: PolicyDisabledChildExemption},
			{Name: PolicyWorkingFamiliesExemption},
			{Name: PolicyLowerThirdChildElement},
		},
		Assumptions: AssumptionConfig{
			DisabledChildShare:                    0.15,
			DisabledChildPrevalence:               0.05,
			StandardChildElement:                  3626,
			PublishedDisabledCost:                 1.2e9,
			PublishedDisabledChildrenOutOfPoverty: 120000,
			GroupConstancy:                        "warn",
		},
		Output: OutputConfig{
			PerScenarioFiles: true,
			Distribution:     true,
		},
	}
}
