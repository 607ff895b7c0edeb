package application

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// ConfigLoader parses and validates batch configuration YAML. User YAML
// is decoded over DefaultBatchConfig so a file only needs the fields it
// changes.
type ConfigLoader struct {
	// validator performs struct tag validation including the custom
	// semver, dottedpath and policyname tags.
	validator *validator.Validate
	// policies resolves policy names and their parameter bounds.
	policies *PolicyRegistry
	// providers lists the engine providers a config may name. Empty
	// skips the check.
	providers []string
}

// NewConfigLoader creates a loader that validates against the given
// policy registry and engine provider names.
func NewConfigLoader(policies *PolicyRegistry, providers []string) (*ConfigLoader, error) {
	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{validator: v, policies: policies, providers: providers}, nil
}

// LoadFromFile reads and validates a config file.
func (cl *ConfigLoader) LoadFromFile(path string) (*BatchConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return cl.load(data)
}

// LoadFromReader reads and validates a config from r.
func (cl *ConfigLoader) LoadFromReader(r io.Reader) (*BatchConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return cl.load(data)
}

func (cl *ConfigLoader) load(data []byte) (*BatchConfig, error) {
	config, err := cl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cl.Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// parseYAML decodes data over the defaults. Unknown fields are rejected
// so typos are not silently ignored.
func (cl *ConfigLoader) parseYAML(data []byte) (*BatchConfig, error) {
	config := DefaultBatchConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return config, nil
}

// Validate runs struct tag validation followed by the semantic checks
// that tags cannot express. Every semantic problem is reported at once
// in a domain.ValidationError.
func (cl *ConfigLoader) Validate(config *BatchConfig) error {
	if err := cl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := cl.validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// validateSemantics checks policy names against the registry, rejects
// duplicates and validates ranges and engine requirements.
func (cl *ConfigLoader) validateSemantics(config *BatchConfig) error {
	verr := domain.NewValidationError("batch config")

	seenYears := make(map[int]struct{}, len(config.Years))
	for _, y := range config.Years {
		if _, dup := seenYears[y]; dup {
			verr.AddError(fmt.Sprintf("duplicate year %d", y))
		}
		seenYears[y] = struct{}{}
	}

	seenPolicies := make(map[string]struct{}, len(config.Policies))
	for _, pc := range config.Policies {
		if _, dup := seenPolicies[pc.Name]; dup {
			verr.AddError(fmt.Sprintf("duplicate policy %q", pc.Name))
			continue
		}
		seenPolicies[pc.Name] = struct{}{}

		policy, ok := cl.policies.Lookup(pc.Name)
		if !ok {
			verr.AddError(unknownNameError("policy", pc.Name, cl.policies.Names()).Error())
			continue
		}
		if err := ValidatePolicyParameters(policy, pc.Range); err != nil {
			verr.AddError(err.Error())
		}
	}

	if len(cl.providers) > 0 {
		known := false
		for _, p := range cl.providers {
			if p == config.Engine.Provider {
				known = true
				break
			}
		}
		if !known {
			verr.AddError(unknownNameError("engine provider", config.Engine.Provider, cl.providers).Error())
		}
	}
	if config.Engine.Provider == "sqlite" && config.Engine.DSN == "" {
		verr.AddError("engine provider sqlite requires dsn")
	}
	if config.Engine.MaxWaitBelowInitial() {
		verr.AddError("engine retry max_wait_ms is below initial_wait_ms")
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// MaxWaitBelowInitial reports a retry config whose cap is below its base
// delay.
func (e EngineConfig) MaxWaitBelowInitial() bool {
	return e.Retry.MaxWait > 0 && e.Retry.MaxWait < e.Retry.InitialWait
}

// ConfigHash returns the SHA256 of the normalized config. Semantically
// identical configurations hash the same regardless of whitespace or
// omitted defaults. Runs log it so outputs can be traced to a config.
func ConfigHash(config *BatchConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// LoadConfigFromFile loads a config file validated against the built-in
// policies.
func LoadConfigFromFile(path string, providers []string) (*BatchConfig, error) {
	loader, err := NewConfigLoader(NewPolicyRegistry(), providers)
	if err != nil {
		return nil, err
	}
	return loader.LoadFromFile(path)
}

// LoadConfig loads a config from r validated against the built-in
// policies.
func LoadConfig(r io.Reader, providers []string) (*BatchConfig, error) {
	loader, err := NewConfigLoader(NewPolicyRegistry(), providers)
	if err != nil {
		return nil, err
	}
	return loader.LoadFromReader(r)
}
