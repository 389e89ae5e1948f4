package application

import (
	"time"

	"gopkg.in/yaml.v3"
)

// DebateConfig defines the complete declarative specification for a
// debate engine and serves as the primary configuration entry point.
// Use DebateConfig to describe the reviewer panel, the reviser, and the
// engine's resilience and termination settings in YAML.
type DebateConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the debate setup
	// including name, tags, and labels for organization and discovery.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Reviewers defines the panel seats. Every required role must
	// appear exactly once; coverage is checked during semantic
	// validation rather than by struct tags.
	Reviewers []ReviewerConfig `yaml:"reviewers" validate:"required,min=1,dive"`
	// Reviser configures the capability that produces proposal
	// revisions between rounds.
	Reviser ReviserConfig `yaml:"reviser" validate:"required"`
	// Debate holds the engine-level termination and resilience
	// settings.
	Debate DebateSettings `yaml:"debate"`
}

// Metadata provides descriptive information about a debate setup
// to support organization, discovery, and operational management.
type Metadata struct {
	// Name is the human-readable identifier for this debate setup
	// and must be unique within the deployment scope.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description provides a detailed explanation of the setup's
	// purpose and intended use cases for documentation and discovery.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels that enable filtering and grouping
	// of setups by functional domain or operational characteristics.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	// Labels are arbitrary key-value pairs that provide flexible
	// metadata for integration with external systems.
	Labels map[string]string `yaml:"labels" validate:"max=50"`
}

// ReviewerConfig defines the specification for a single panel seat:
// which role it answers for, which capability implementation backs it,
// and the implementation-specific parameters.
type ReviewerConfig struct {
	// Role is the fixed panel position this seat answers for.
	Role string `yaml:"role" validate:"required,debaterole"`
	// Type specifies the reviewer implementation to instantiate,
	// determining the available parameters and invocation behavior.
	Type string `yaml:"type" validate:"required,oneof=llm custom"`
	// Model specifies the LLM provider and model to use for this seat
	// in the format "provider/model" or "provider/model@version".
	// When omitted, the seat uses the registry's default client.
	Model string `yaml:"model,omitempty" validate:"omitempty,modelformat"`
	// Parameters contains type-specific configuration as flexible YAML
	// that will be validated according to the reviewer type.
	Parameters yaml.Node `yaml:"parameters"`
}

// ReviserConfig defines the specification for the revision capability
// invoked between rounds.
type ReviserConfig struct {
	// Model specifies the LLM provider and model for revision requests
	// in the format "provider/model" or "provider/model@version".
	Model string `yaml:"model,omitempty" validate:"omitempty,modelformat"`
	// Parameters contains revision-specific configuration such as the
	// prompt template, temperature, and token limits.
	Parameters yaml.Node `yaml:"parameters"`
}

// DebateSettings holds termination, concurrency, and resilience
// settings for debate execution. Zero values select package defaults.
type DebateSettings struct {
	// RoundLimit caps the number of rounds per debate.
	RoundLimit int `yaml:"round_limit" validate:"omitempty,min=1,max=100"`
	// TimeoutSeconds bounds the whole debate; when exceeded, the
	// in-flight round finishes collecting and the fallback outcome is
	// selected.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"omitempty,min=1,max=86400"`
	// MaxConcurrency limits concurrent reviewer invocations per round.
	MaxConcurrency int `yaml:"max_concurrency" validate:"omitempty,min=1,max=64"`
	// Invoker configures per-invocation retry and backoff behavior.
	Invoker InvokerConfig `yaml:"invoker"`
	// Budget constrains total capability invocations per debate.
	Budget BudgetConfig `yaml:"budget"`
}

// BudgetConfig establishes invocation limits per debate to prevent
// runaway costs when a panel keeps failing to converge.
type BudgetConfig struct {
	// MaxCalls limits the number of capability invocations (reviews and
	// revisions, retries included) a single debate may spend. Zero
	// disables the budget.
	MaxCalls int64 `yaml:"max_calls" validate:"omitempty,min=0,max=10000"`
}

// EngineConfigFromSettings maps declarative settings onto the runtime
// engine configuration.
func EngineConfigFromSettings(s DebateSettings) EngineConfig {
	return EngineConfig{
		RoundLimit:     s.RoundLimit,
		DebateTimeout:  time.Duration(s.TimeoutSeconds) * time.Second,
		MaxConcurrency: s.MaxConcurrency,
		Invoker:        s.Invoker,
	}
}
