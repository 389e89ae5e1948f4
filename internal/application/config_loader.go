package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// DebateSetup is the compiled form of a DebateConfig: the runtime
// engine settings plus the instantiated, validated panel.
// Setups are cached and shared; callers must treat them as read-only.
type DebateSetup struct {
	// Engine holds the termination and resilience settings mapped from
	// the declarative configuration.
	Engine EngineConfig
	// Panel holds the instantiated reviewer seats and the reviser.
	Panel Panel
	// Budget carries the per-debate invocation budget, enforced by the
	// caller when wiring budget middleware around the panel.
	Budget BudgetConfig
}

// DebateLoader provides YAML configuration parsing, validation, and
// caching for debate setups, transforming declarative specifications
// into ready-to-run panels.
// Use DebateLoader to load setups from files or readers while
// benefiting from SHA256-based caching and comprehensive validation.
type DebateLoader struct {
	// validator performs struct field validation and custom validation
	// rules for debate configurations and their nested components.
	validator *validator.Validate
	// registry provides factory methods for creating reviewer and
	// reviser capabilities based on type and configuration parameters.
	registry ports.ReviewerRegistry
	// cache stores compiled setups indexed by SHA256 hash of the
	// normalized configuration to avoid rebuilding identical panels.
	// Cached setups MUST NOT be mutated.
	cache map[string]*DebateSetup
	// cacheMu provides thread-safe access to the cache map during
	// concurrent read and write operations.
	cacheMu sync.RWMutex
	// sf prevents duplicate setup compilation when multiple goroutines
	// request the same configuration simultaneously.
	sf singleflight.Group
}

// NewDebateLoader creates a new loader with validation capabilities and
// an empty cache, ready to compile debate setups.
// NewDebateLoader registers custom validators for semantic validation
// beyond basic struct field validation and returns an error if
// registration fails.
func NewDebateLoader(registry ports.ReviewerRegistry) (*DebateLoader, error) {
	v := validator.New()

	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	return &DebateLoader{
		validator: v,
		registry:  registry,
		cache:     make(map[string]*DebateSetup),
	}, nil
}

// LoadFromFile loads and compiles a debate setup from a YAML file,
// utilizing SHA256-based caching to avoid recompilation of identical
// files. A missing file is reported via ports.ErrConfigNotFound.
// The returned setup is a pointer to a cached instance and must not be
// mutated.
func (dl *DebateLoader) LoadFromFile(ctx context.Context, path string) (*DebateSetup, error) {
	// Clean the path to prevent directory traversal attacks.
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", cleanPath, ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return dl.load(ctx, data)
}

// LoadFromReader loads and compiles a debate setup from an io.Reader,
// supporting any source that implements the Reader interface.
// The returned setup is a pointer to a cached instance and must not be
// mutated.
func (dl *DebateLoader) LoadFromReader(ctx context.Context, r io.Reader) (*DebateSetup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return dl.load(ctx, data)
}

// load is the common implementation for compiling setups from byte
// data, utilizing singleflight to prevent duplicate compilation and
// SHA256-based caching for efficiency.
func (dl *DebateLoader) load(ctx context.Context, data []byte) (*DebateSetup, error) {
	// Parse YAML first to normalize it before hashing.
	config, err := dl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := dl.calculateConfigHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	// Use singleflight to prevent multiple goroutines from compiling
	// the same setup simultaneously.
	v, err, _ := dl.sf.Do(hash, func() (any, error) {
		// Check cache inside singleflight to handle the race between
		// cache check and singleflight group execution.
		if setup, ok := dl.getCachedSetup(hash); ok {
			return setup, nil
		}

		if err := dl.validateConfig(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		setup, err := dl.buildSetup(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to build setup: %w", err)
		}

		dl.cacheSetup(hash, setup)

		return setup, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*DebateSetup), nil
}

// parseYAML unmarshals YAML byte data into a structured DebateConfig.
// It uses strict decoding to detect unknown fields, preventing
// configuration typos from being silently ignored.
func (dl *DebateLoader) parseYAML(data []byte) (*DebateConfig, error) {
	var config DebateConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// validateConfig performs comprehensive validation on a parsed debate
// configuration, including both struct field validation and semantic
// validation of relationships between configuration elements.
func (dl *DebateLoader) validateConfig(config *DebateConfig) error {
	if err := dl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	if err := dl.validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}

	return nil
}

// validateSemantics performs domain-specific validation rules that
// cannot be expressed through struct tags: full role coverage with no
// duplicate seats, and per-type parameter validation.
func (dl *DebateLoader) validateSemantics(config *DebateConfig) error {
	seen := make(map[domain.Role]struct{}, len(config.Reviewers))
	for _, rc := range config.Reviewers {
		role, err := domain.ParseRole(rc.Role)
		if err != nil {
			return err
		}
		if _, dup := seen[role]; dup {
			return fmt.Errorf("duplicate reviewer for role %q", role)
		}
		seen[role] = struct{}{}

		if err := ValidateReviewerParameters(rc.Type, rc.Parameters); err != nil {
			return fmt.Errorf("reviewer %s parameter validation failed: %w", rc.Role, err)
		}
	}

	for _, role := range domain.AllRoles() {
		if _, ok := seen[role]; !ok {
			return fmt.Errorf("required role %q missing from reviewers", role)
		}
	}

	if err := ValidateReviserParameters(config.Reviser.Parameters); err != nil {
		return fmt.Errorf("reviser parameter validation failed: %w", err)
	}

	return nil
}

// buildSetup constructs a ready-to-run setup from a validated
// configuration, instantiating every panel seat through the registry.
func (dl *DebateLoader) buildSetup(_ context.Context, config *DebateConfig) (*DebateSetup, error) {
	panel := Panel{
		Reviewers: make([]ports.Reviewer, 0, len(config.Reviewers)),
	}

	for _, rc := range config.Reviewers {
		role, err := domain.ParseRole(rc.Role)
		if err != nil {
			return nil, err
		}

		params, err := reviewerParams(rc)
		if err != nil {
			return nil, fmt.Errorf("reviewer %s: %w", rc.Role, err)
		}

		reviewer, err := dl.registry.CreateReviewer(rc.Type, role, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create reviewer %s: %w", rc.Role, err)
		}
		panel.Reviewers = append(panel.Reviewers, reviewer)
	}

	reviserParams, err := decodeNodeToMap(config.Reviser.Parameters)
	if err != nil {
		return nil, fmt.Errorf("reviser: %w", err)
	}
	if config.Reviser.Model != "" {
		reviserParams["model"] = config.Reviser.Model
	}

	reviser, err := dl.registry.CreateReviser(reviserParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create reviser: %w", err)
	}
	panel.Reviser = reviser

	return &DebateSetup{
		Engine: EngineConfigFromSettings(config.Debate),
		Panel:  panel,
		Budget: config.Debate.Budget,
	}, nil
}

// reviewerParams flattens a seat's YAML parameters and folds in the
// top-level model override.
func reviewerParams(rc ReviewerConfig) (map[string]any, error) {
	params, err := decodeNodeToMap(rc.Parameters)
	if err != nil {
		return nil, err
	}
	if rc.Model != "" {
		params["model"] = rc.Model
	}
	return params, nil
}

func decodeNodeToMap(node yaml.Node) (map[string]any, error) {
	var params map[string]any
	if err := node.Decode(&params); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if params == nil {
		params = make(map[string]any)
	}
	return params, nil
}

// calculateConfigHash computes the SHA256 hash of a normalized
// DebateConfig for cache indexing, ensuring semantically identical
// configurations produce the same hash regardless of whitespace or key
// ordering differences.
func (dl *DebateLoader) calculateConfigHash(config *DebateConfig) (string, error) {
	// Normalize the config by re-encoding it with consistent formatting.
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2) // Use consistent 2-space indentation.

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// getCachedSetup attempts to retrieve a previously compiled setup from
// the cache using its SHA256 hash as the lookup key.
// getCachedSetup is safe for concurrent use.
func (dl *DebateLoader) getCachedSetup(hash string) (*DebateSetup, bool) {
	dl.cacheMu.RLock()
	defer dl.cacheMu.RUnlock()

	setup, ok := dl.cache[hash]
	return setup, ok
}

// cacheSetup stores a compiled setup in the cache indexed by its
// configuration's SHA256 hash for future retrieval.
// cacheSetup is safe for concurrent use.
func (dl *DebateLoader) cacheSetup(hash string, setup *DebateSetup) {
	dl.cacheMu.Lock()
	defer dl.cacheMu.Unlock()

	dl.cache[hash] = setup
}

// ClearCache removes all cached setups, forcing subsequent loads to
// recompile from source. ClearCache is safe for concurrent use.
func (dl *DebateLoader) ClearCache() {
	dl.cacheMu.Lock()
	defer dl.cacheMu.Unlock()

	dl.cache = make(map[string]*DebateSetup)
}
