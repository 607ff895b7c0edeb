package application

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-childlimit/internal/domain"
)

func newTestLoader(t *testing.T) *ConfigLoader {
	t.Helper()
	loader, err := NewConfigLoader(NewPolicyRegistry(), []string{"synthetic", "sqlite"})
	require.NoError(t, err)
	return loader
}

// TestLoadConfig covers YAML decoding over the defaults, including the
// cases that must be rejected before a run starts.
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		verify  func(t *testing.T, cfg *BatchConfig)
	}{
		{
			name: "empty document yields defaults",
			yaml: ``,
			verify: func(t *testing.T, cfg *BatchConfig) {
				assert.Equal(t, DefaultBatchConfig(), cfg)
			},
		},
		{
			name: "overlay keeps unset defaults",
			yaml: `
years: [2028]
concurrency: 2
engine:
  provider: sqlite
  dsn: results.db
output:
  include_provenance: true
`,
			verify: func(t *testing.T, cfg *BatchConfig) {
				assert.Equal(t, []int{2028}, cfg.Years)
				assert.Equal(t, 2, cfg.Concurrency)
				assert.Equal(t, "sqlite", cfg.Engine.Provider)
				assert.Equal(t, 300, cfg.Engine.TimeoutSeconds)
				assert.True(t, cfg.Output.IncludeProvenance)
				assert.True(t, cfg.Output.PerScenarioFiles)
				assert.Len(t, cfg.Policies, 6)
				assert.Equal(t, domain.ParamUCChildLimit, cfg.Parameters.UCChildLimit)
			},
		},
		{
			name: "custom policy list with range",
			yaml: `
policies:
  - name: full-abolition
  - name: three-child-limit
    range: {from: 3, to: 5, step: 1}
`,
			verify: func(t *testing.T, cfg *BatchConfig) {
				require.Len(t, cfg.Policies, 2)
				require.NotNil(t, cfg.Policies[1].Range)
				assert.Equal(t, []int{3, 4, 5}, cfg.Policies[1].Range.Values())
			},
		},
		{
			name:    "unknown field is rejected",
			yaml:    "concurency: 3\n",
			wantErr: "field concurency not found",
		},
		{
			name:    "misspelled policy gets a suggestion",
			yaml:    "policies:\n  - name: full-abolishion\n",
			wantErr: `did you mean "full-abolition"`,
		},
		{
			name:    "policy name must be kebab case",
			yaml:    "policies:\n  - name: Full_Abolition\n",
			wantErr: "policyname",
		},
		{
			name:    "duplicate policy",
			yaml:    "policies:\n  - name: full-abolition\n  - name: full-abolition\n",
			wantErr: "duplicate policy",
		},
		{
			name:    "range on parameterless policy",
			yaml:    "policies:\n  - name: disabled-child-exemption\n    range: {from: 1, to: 2, step: 1}\n",
			wantErr: "takes no parameter",
		},
		{
			name:    "range outside bounds",
			yaml:    "policies:\n  - name: lower-third-child-element\n    range: {from: 50, to: 150, step: 10}\n",
			wantErr: "outside allowed 0..100",
		},
		{
			name:    "range going backwards",
			yaml:    "policies:\n  - name: three-child-limit\n    range: {from: 5, to: 3, step: 1}\n",
			wantErr: "gtefield",
		},
		{
			name:    "sqlite needs a dsn",
			yaml:    "engine:\n  provider: sqlite\n",
			wantErr: "requires dsn",
		},
		{
			name:    "unknown provider",
			yaml:    "engine:\n  provider: synthetc\n",
			wantErr: `did you mean "synthetic"`,
		},
		{
			name:    "bad version",
			yaml:    "version: one\n",
			wantErr: "semver",
		},
		{
			name:    "bad parameter path",
			yaml:    "parameters:\n  uc_child_limit: Not A Path\n",
			wantErr: "dottedpath",
		},
		{
			name:    "duplicate year",
			yaml:    "years: [2026, 2026]\n",
			wantErr: "duplicate year 2026",
		},
		{
			name:    "zero concurrency",
			yaml:    "concurrency: 0\n",
			wantErr: "Concurrency",
		},
		{
			name:    "share out of range",
			yaml:    "assumptions:\n  disabled_child_share: 1.5\n",
			wantErr: "DisabledChildShare",
		},
	}

	loader := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loader.LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.verify != nil {
				tt.verify(t, cfg)
			}
		})
	}
}

func TestSemanticErrorsAreCollected(t *testing.T) {
	loader := newTestLoader(t)
	_, err := loader.LoadFromReader(strings.NewReader(`
years: [2026, 2026]
policies:
  - name: nonsense-policy-name-here
engine:
  provider: sqlite
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 3)
	assert.Contains(t, verr.Errors[1], "known: ")
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("years: [2029]\n"), 0o644))

	cfg, err := LoadConfigFromFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2029}, cfg.Years)

	_, err = LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "failed to read file")
}

func TestConfigHash(t *testing.T) {
	a, err := LoadConfig(strings.NewReader("years: [2026, 2027]\n"), nil)
	require.NoError(t, err)
	b, err := LoadConfig(strings.NewReader("# comment\nyears:\n  - 2026\n  - 2027\n"), nil)
	require.NoError(t, err)
	c, err := LoadConfig(strings.NewReader("years: [2026]\n"), nil)
	require.NoError(t, err)

	ha, err := ConfigHash(a)
	require.NoError(t, err)
	hb, err := ConfigHash(b)
	require.NoError(t, err)
	hc, err := ConfigHash(c)
	require.NoError(t, err)

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb, "formatting must not change the hash")
	assert.NotEqual(t, ha, hc)
}

func TestRangeConfigValues(t *testing.T) {
	assert.Equal(t, []int{50, 60, 70, 80, 90, 100}, RangeConfig{From: 50, To: 100, Step: 10}.Values())
	assert.Equal(t, []int{3}, RangeConfig{From: 3, To: 3, Step: 1}.Values())
	assert.Nil(t, RangeConfig{From: 3, To: 1, Step: 1}.Values())
	assert.Nil(t, RangeConfig{From: 1, To: 3}.Values())
}

func TestParameterPaths(t *testing.T) {
	p := ParameterConfig{UCChildLimit: "a.b"}
	assert.Equal(t, []string{"a.b"}, p.Paths())

	p.CTCChildLimit = "c.d"
	assert.Equal(t, []string{"a.b", "c.d"}, p.Paths())
}
