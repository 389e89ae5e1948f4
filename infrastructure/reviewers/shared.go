// Package reviewers provides LLM-backed capability adapters that
// implement the ports.Reviewer and ports.Reviser interfaces for the
// debate engine.
//
// Each adapter owns the full reviewer contract: it renders the
// structured debate context into a role-specific prompt, calls the
// configured LLM client, and parses the model output into a domain
// verdict or proposal revision. The engine never sees prompts or raw
// model text; it only sees the typed results and errors these adapters
// produce.
package reviewers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-concord/infrastructure/llm"
	"github.com/ahrav/go-concord/internal/ports"
)

// Limits applied to rendered prompts and model responses before they
// reach a provider or the JSON parser.
const (
	// MaxPromptBytes caps the rendered prompt size. A proposal large
	// enough to exceed this is a configuration problem, not something
	// to ship to a provider.
	MaxPromptBytes = 1 * 1024 * 1024 // 1MB

	// MaxResponseBytes caps the model response size accepted by the
	// JSON parser.
	MaxResponseBytes = 10 * 1024 * 1024 // 10MB
)

// Sentinel errors for clear, testable failure conditions shared by the
// reviewer and reviser adapters.
var (
	// ErrLLMClientMissing is returned when a factory config carries no
	// usable LLM client.
	ErrLLMClientMissing = errors.New("llm_client is required and must implement ports.LLMClient")

	// ErrProposalMissing is returned when the debate context carries no
	// proposal to evaluate or revise.
	ErrProposalMissing = errors.New("proposal not found in debate context")

	// ErrConfigValidation is returned when adapter configuration fails
	// struct validation.
	ErrConfigValidation = errors.New("configuration validation failed")

	// ErrTemplateExecution is returned when the prompt template cannot
	// be rendered against the debate context.
	ErrTemplateExecution = errors.New("failed to execute prompt template")
)

// Package-level validator instance for configuration and response
// validation. Uses go-playground/validator v10 for struct tag-based
// validation.
var validate = validator.New()

// wrapClientError normalizes an LLM client failure into a
// ports.LLMError so the application layer classifies retries without
// importing provider packages. Provider errors keep their own
// retryability: the provider's error type is mapped onto the matching
// port sentinel, which the port error consults.
func wrapClientError(model, operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		// Cancellation is the caller's signal, not a provider fault.
		return err
	}

	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		if sentinel := sentinelFor(perr.Type); sentinel != nil {
			return ports.NewLLMError(model, operation, fmt.Errorf("%w: %w", sentinel, err))
		}
		return ports.NewLLMError(model, operation, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ports.NewLLMError(model, operation, fmt.Errorf("%w: %w", ports.ErrTimeout, err))
	}

	return ports.NewLLMError(model, operation, err)
}

// sentinelFor maps a provider error category onto the port-level
// sentinel with the same retry semantics. Categories with no sentinel
// (bad requests, content policy, unknown) return nil and stay
// non-retryable.
func sentinelFor(t llm.ErrorType) error {
	switch t {
	case llm.ErrorTypeRateLimit:
		return ports.ErrRateLimited
	case llm.ErrorTypeTimeout:
		return ports.ErrTimeout
	case llm.ErrorTypeServerError, llm.ErrorTypeNetwork:
		return ports.ErrServiceUnavailable
	case llm.ErrorTypeAuthentication:
		return ports.ErrAuthenticationFailed
	default:
		return nil
	}
}

// clientFromConfig extracts the injected LLM client from a factory
// configuration map.
func clientFromConfig(config map[string]any) (ports.LLMClient, error) {
	client, ok := config["llm_client"].(ports.LLMClient)
	if !ok || client == nil {
		return nil, ErrLLMClientMissing
	}
	return client, nil
}
