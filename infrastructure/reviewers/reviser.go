package reviewers

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.Reviser = (*ProposalReviser)(nil)

// Configuration defaults for the LLM-backed revision step.
const (
	// DefaultReviseTemperature allows some creative leeway when
	// reshaping a design around dissent.
	DefaultReviseTemperature = 0.4

	// DefaultReviseMaxTokens bounds the response, which carries a full
	// design rather than a short verdict.
	DefaultReviseMaxTokens = 4096
)

// ReviserConfig defines the configuration parameters for the
// LLM-backed reviser. All fields are validated during creation.
type ReviserConfig struct {
	// PromptTemplate is the Go template rendering the debate context
	// into the revision prompt. It receives a PromptData value; the
	// JSON output contract is appended by the adapter.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template" validate:"required,min=20"`

	// System optionally sets a provider system prompt.
	System string `yaml:"system" json:"system"`

	// Temperature controls randomness in the model output (0.0-2.0).
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=2.0"`

	// MaxTokens limits the length of the model response.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=1,max=16000"`
}

// DefaultReviserConfig returns the built-in revision configuration.
func DefaultReviserConfig() ReviserConfig {
	return ReviserConfig{
		PromptTemplate: DefaultRevisePrompt(),
		Temperature:    DefaultReviseTemperature,
		MaxTokens:      DefaultReviseMaxTokens,
	}
}

// ProposalReviser implements the revision capability on top of an LLM
// client. Speaking for the architect seat, it asks the model for the
// complete next design addressing the previous round's dissent, parses
// the output, and derives the next proposal version from the current
// one so the version sequence stays intact.
//
// The reviser is stateless and safe for concurrent use.
type ProposalReviser struct {
	config         ReviserConfig
	llmClient      ports.LLMClient
	promptTemplate *template.Template
	tracer         trace.Tracer
}

// NewProposalReviser creates the revision capability. Returns an error
// if the client is missing or the configuration fails validation.
func NewProposalReviser(llmClient ports.LLMClient, config ReviserConfig) (*ProposalReviser, error) {
	if llmClient == nil {
		return nil, ErrLLMClientMissing
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	tmpl, err := compilePrompt("revise", config.PromptTemplate)
	if err != nil {
		return nil, err
	}

	return &ProposalReviser{
		config:         config,
		llmClient:      llmClient,
		promptTemplate: tmpl,
		tracer:         otel.Tracer("proposal-reviser"),
	}, nil
}

// Revise produces the next proposal version from the debate context.
// The returned proposal's version is exactly one greater than the
// current proposal's; a model response that fails to parse or yields a
// structurally invalid design is returned as a retryable error.
func (pr *ProposalReviser) Revise(ctx context.Context, dctx domain.DebateContext) (domain.Proposal, error) {
	current, ok := domain.Get(dctx, domain.KeyProposal)
	if !ok {
		return domain.Proposal{}, ErrProposalMissing
	}

	model := pr.llmClient.GetModel()
	ctx, span := pr.tracer.Start(ctx, "ProposalReviser.Revise",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.Int("proposal.version", current.Version),
		),
	)
	defer span.End()

	prompt, err := pr.renderPrompt(dctx)
	if err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}

	options := map[string]any{
		"temperature": pr.config.Temperature,
		"max_tokens":  pr.config.MaxTokens,
	}
	if pr.config.System != "" {
		options["system"] = pr.config.System
	}
	if supportsJSONMode(model) {
		options["response_format"] = map[string]string{"type": "json_object"}
	}

	response, err := pr.llmClient.Complete(ctx, prompt, options)
	if err != nil {
		wrapped := wrapClientError(model, "revise", err)
		span.RecordError(wrapped)
		return domain.Proposal{}, wrapped
	}

	revised, err := pr.parseResponse(current, response)
	if err != nil {
		// A design that does not parse or validate is a stochastic
		// model failure; tag it so the invoker retries.
		wrapped := ports.NewLLMError(model, "revise", fmt.Errorf("%w: %w", ports.ErrInvalidResponse, err))
		span.RecordError(wrapped)
		return domain.Proposal{}, wrapped
	}

	span.SetAttributes(
		attribute.Int("proposal.revised_version", revised.Version),
		attribute.Int("proposal.components", len(revised.Components)),
	)
	return revised, nil
}

// renderPrompt builds the full revision prompt: the configured template
// rendered against the debate context, plus the JSON output contract.
func (pr *ProposalReviser) renderPrompt(dctx domain.DebateContext) (string, error) {
	data, err := buildPromptData(domain.RoleArchitect, dctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := pr.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateExecution, err)
	}
	if buf.Len() > MaxPromptBytes {
		return "", fmt.Errorf("rendered prompt too large: %d bytes exceeds limit of %d", buf.Len(), MaxPromptBytes)
	}

	return buf.String() + revisionJSONContract, nil
}

// parseResponse converts raw model output into the next proposal
// version. The domain revision constructor validates the design and
// advances the version, so a malformed design never escapes.
func (pr *ProposalReviser) parseResponse(current domain.Proposal, response string) (domain.Proposal, error) {
	var resp RevisionResponse
	if err := decodeResponse(response, &resp); err != nil {
		return domain.Proposal{}, err
	}

	if err := validate.Struct(resp); err != nil {
		return domain.Proposal{}, fmt.Errorf("invalid response structure: %w", err)
	}

	components := make([]domain.Component, len(resp.Components))
	for i, c := range resp.Components {
		components[i] = domain.Component{
			Name:           c.Name,
			Category:       c.Category,
			Responsibility: c.Responsibility,
			EstimatedCost:  c.EstimatedCost,
		}
	}

	var connections []domain.Connection
	if len(resp.Connections) > 0 {
		connections = make([]domain.Connection, len(resp.Connections))
		for i, c := range resp.Connections {
			connections[i] = domain.Connection{
				From: c.From,
				To:   c.To,
				Mode: domain.InteractionMode(c.Mode),
			}
		}
	}

	revised, err := current.Revise(components, connections, resp.Rationale)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("revised design rejected: %w", err)
	}
	return revised, nil
}

// Validate checks if the reviser is properly configured and ready for
// invocation.
func (pr *ProposalReviser) Validate() error {
	if pr.llmClient == nil {
		return fmt.Errorf("LLM client is not configured")
	}
	if err := validate.Struct(pr.config); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	if model := pr.llmClient.GetModel(); model == "" {
		return fmt.Errorf("LLM client model is not configured")
	}
	return nil
}

// CreateProposalReviser is a factory function that creates a
// ProposalReviser from a configuration map, following the
// ports.ReviserFactory pattern. The LLM client is injected by the
// registry under the "llm_client" key.
func CreateProposalReviser(config map[string]any) (ports.Reviser, error) {
	client, err := clientFromConfig(config)
	if err != nil {
		return nil, err
	}

	reviserConfig := DefaultReviserConfig()

	if promptTemplate, ok := config["prompt_template"].(string); ok {
		reviserConfig.PromptTemplate = promptTemplate
	}

	if system, ok := config["system"].(string); ok {
		reviserConfig.System = system
	}

	if temperature, ok := config["temperature"]; ok {
		if val, ok := temperature.(float64); ok {
			reviserConfig.Temperature = val
		} else if val, ok := temperature.(int); ok {
			reviserConfig.Temperature = float64(val)
		}
	}

	if maxTokens, ok := config["max_tokens"]; ok {
		if val, ok := maxTokens.(int); ok {
			reviserConfig.MaxTokens = val
		} else if val, ok := maxTokens.(float64); ok {
			reviserConfig.MaxTokens = int(val)
		}
	}

	return NewProposalReviser(client, reviserConfig)
}
