package application

import (
	"fmt"
	"sync"

	"github.com/ahrav/go-concord/infrastructure/reviewers"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.ReviewerRegistry = (*DefaultReviewerRegistry)(nil)

// DefaultReviewerRegistry implements the ReviewerRegistry interface,
// providing a factory for creating panel capabilities based on type and
// configuration. It supports dynamic registration of reviewer factories
// and manages the LLM clients that LLM-backed seats require.
type DefaultReviewerRegistry struct {
	// factories maps reviewer type strings to their factory functions.
	factories map[string]ports.ReviewerFactory
	// mu protects concurrent access to the factories map and clients.
	mu sync.RWMutex
	// llmClient is the default LLM client injected into capabilities
	// that name no explicit model.
	llmClient ports.LLMClient
	// resolver optionally resolves "provider/model" specifications to
	// dedicated clients, enabling mixed-provider panels.
	resolver ports.ClientResolver
}

// NewDefaultReviewerRegistry creates a registry with the standard
// reviewer types pre-registered and a default LLM client for seats that
// require one.
func NewDefaultReviewerRegistry(llmClient ports.LLMClient) *DefaultReviewerRegistry {
	registry := &DefaultReviewerRegistry{
		factories: make(map[string]ports.ReviewerFactory),
		llmClient: llmClient,
	}

	registry.registerBuiltinFactories()

	return registry
}

// registerBuiltinFactories registers the standard reviewer types.
func (r *DefaultReviewerRegistry) registerBuiltinFactories() {
	r.factories["llm"] = func(role domain.Role, config map[string]any) (ports.Reviewer, error) {
		client, err := r.clientFor(config)
		if err != nil {
			return nil, err
		}
		config["llm_client"] = client
		return reviewers.CreateLLMReviewer(role, config)
	}
}

// clientFor selects the LLM client for one seat: the resolver when a
// model specification is present, the default client otherwise.
func (r *DefaultReviewerRegistry) clientFor(config map[string]any) (ports.LLMClient, error) {
	spec, _ := config["model"].(string)

	r.mu.RLock()
	resolver := r.resolver
	client := r.llmClient
	r.mu.RUnlock()

	if spec != "" && resolver != nil {
		resolved, err := resolver.GetClient(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve client for %q: %w", spec, err)
		}
		return resolved, nil
	}

	if client == nil {
		return nil, fmt.Errorf("no LLM client configured")
	}
	return client, nil
}

// CreateReviewer creates a new reviewer bound to the given role based
// on the provided type and configuration.
// It looks up the appropriate factory function and delegates creation,
// injecting any required dependencies like LLM clients.
func (r *DefaultReviewerRegistry) CreateReviewer(
	reviewerType string,
	role domain.Role,
	config map[string]any,
) (ports.Reviewer, error) {
	r.mu.RLock()
	factory, exists := r.factories[reviewerType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported reviewer type: %s", reviewerType)
	}

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}

	if config == nil {
		config = make(map[string]any)
	}

	reviewer, err := factory(role, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create reviewer %s of type %s: %w", role, reviewerType, err)
	}

	return reviewer, nil
}

// CreateReviser creates the revision capability with the registry's
// client selection rules applied.
func (r *DefaultReviewerRegistry) CreateReviser(config map[string]any) (ports.Reviser, error) {
	if config == nil {
		config = make(map[string]any)
	}

	client, err := r.clientFor(config)
	if err != nil {
		return nil, err
	}
	config["llm_client"] = client

	reviser, err := reviewers.CreateProposalReviser(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create reviser: %w", err)
	}

	return reviser, nil
}

// RegisterReviewerFactory registers a new factory function for a
// specific reviewer type, allowing custom capabilities at runtime.
// Registering a type that already exists is an error so built-in
// behavior cannot be silently replaced.
func (r *DefaultReviewerRegistry) RegisterReviewerFactory(
	reviewerType string,
	factory ports.ReviewerFactory,
) error {
	if reviewerType == "" {
		return fmt.Errorf("reviewer type cannot be empty")
	}

	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reviewerType]; exists {
		return fmt.Errorf("reviewer type %s already registered", reviewerType)
	}

	r.factories[reviewerType] = factory
	return nil
}

// SupportedTypes returns a list of all registered reviewer types.
// This is useful for validation, documentation, and introspection.
func (r *DefaultReviewerRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for reviewerType := range r.factories {
		types = append(types, reviewerType)
	}

	return types
}

// SetClientResolver configures multi-provider client resolution for
// seats that carry a "provider/model" specification.
func (r *DefaultReviewerRegistry) SetClientResolver(resolver ports.ClientResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resolver = resolver
}

// SetLLMClient updates the default LLM client used by capabilities
// that name no explicit model.
func (r *DefaultReviewerRegistry) SetLLMClient(client ports.LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.llmClient = client
}
