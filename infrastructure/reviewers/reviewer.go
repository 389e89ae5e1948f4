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

var _ ports.Reviewer = (*LLMReviewer)(nil)

// Configuration defaults for LLM-backed review seats.
const (
	// DefaultReviewTemperature keeps verdicts reproducible across
	// retries of the same proposal version.
	DefaultReviewTemperature = 0.2

	// DefaultReviewMaxTokens bounds the verdict, which is a short JSON
	// object plus a critique.
	DefaultReviewMaxTokens = 1024
)

// ReviewerConfig defines the configuration parameters for an
// LLM-backed reviewer. All fields are validated during creation.
type ReviewerConfig struct {
	// PromptTemplate is the Go template rendering the debate context
	// into the model prompt. It receives a PromptData value; the JSON
	// output contract is appended by the adapter and must not be part
	// of the template.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template" validate:"required,min=20"`

	// System optionally sets a provider system prompt for the seat.
	System string `yaml:"system" json:"system"`

	// Temperature controls randomness in the model output (0.0-2.0).
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=2.0"`

	// MaxTokens limits the length of the model response.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=1,max=16000"`
}

// DefaultReviewerConfig returns the built-in configuration for a panel
// role, using the role's default prompt.
func DefaultReviewerConfig(role domain.Role) ReviewerConfig {
	return ReviewerConfig{
		PromptTemplate: DefaultReviewPrompt(role),
		Temperature:    DefaultReviewTemperature,
		MaxTokens:      DefaultReviewMaxTokens,
	}
}

// LLMReviewer implements one panel seat on top of an LLM client. It
// renders the debate context into a role-specific prompt, requests a
// structured verdict, and parses the model output into a domain
// verdict. Failures are returned as errors for the invoker to classify;
// the reviewer itself never retries.
//
// The reviewer is stateless and safe for concurrent use; one instance
// may serve several debates at once.
type LLMReviewer struct {
	role           domain.Role
	config         ReviewerConfig
	llmClient      ports.LLMClient
	promptTemplate *template.Template
	tracer         trace.Tracer
}

// NewLLMReviewer creates a reviewer bound to the given panel role.
// Returns an error if the role is unknown, the client is missing, or
// the configuration fails validation.
func NewLLMReviewer(role domain.Role, llmClient ports.LLMClient, config ReviewerConfig) (*LLMReviewer, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	if llmClient == nil {
		return nil, ErrLLMClientMissing
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	tmpl, err := compilePrompt("review", config.PromptTemplate)
	if err != nil {
		return nil, err
	}

	return &LLMReviewer{
		role:           role,
		config:         config,
		llmClient:      llmClient,
		promptTemplate: tmpl,
		tracer:         otel.Tracer("llm-reviewer"),
	}, nil
}

// Role returns the fixed panel position this reviewer is bound to.
func (r *LLMReviewer) Role() domain.Role { return r.role }

// Review evaluates the proposal carried in the debate context and
// returns a genuine verdict. Transport failures and unparseable model
// output are returned as errors normalized at the port boundary, so
// the invoker can classify them for retry without knowing which
// provider sits behind the client.
func (r *LLMReviewer) Review(ctx context.Context, dctx domain.DebateContext) (domain.Verdict, error) {
	model := r.llmClient.GetModel()
	ctx, span := r.tracer.Start(ctx, "LLMReviewer.Review",
		trace.WithAttributes(
			attribute.String("reviewer.role", string(r.role)),
			attribute.String("llm.model", model),
		),
	)
	defer span.End()

	prompt, err := r.renderPrompt(dctx)
	if err != nil {
		span.RecordError(err)
		return domain.Verdict{}, err
	}

	options := map[string]any{
		"temperature": r.config.Temperature,
		"max_tokens":  r.config.MaxTokens,
	}
	if r.config.System != "" {
		options["system"] = r.config.System
	}
	if supportsJSONMode(model) {
		options["response_format"] = map[string]string{"type": "json_object"}
	}

	response, err := r.llmClient.Complete(ctx, prompt, options)
	if err != nil {
		wrapped := wrapClientError(model, "review", err)
		span.RecordError(wrapped)
		return domain.Verdict{}, wrapped
	}

	verdict, err := r.parseResponse(response)
	if err != nil {
		// Unparseable output is a stochastic model failure; tag it so
		// the invoker treats another attempt as worthwhile.
		wrapped := ports.NewLLMError(model, "review", fmt.Errorf("%w: %w", ports.ErrInvalidResponse, err))
		span.RecordError(wrapped)
		return domain.Verdict{}, wrapped
	}

	span.SetAttributes(
		attribute.Bool("verdict.approved", verdict.Approved),
		attribute.Int("verdict.suggested_changes", len(verdict.SuggestedChanges)),
	)
	return verdict, nil
}

// renderPrompt builds the full model prompt: the configured template
// rendered against the debate context, plus the JSON output contract.
func (r *LLMReviewer) renderPrompt(dctx domain.DebateContext) (string, error) {
	data, err := buildPromptData(r.role, dctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := r.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateExecution, err)
	}
	if buf.Len() > MaxPromptBytes {
		return "", fmt.Errorf("rendered prompt too large: %d bytes exceeds limit of %d", buf.Len(), MaxPromptBytes)
	}

	return buf.String() + reviewJSONContract, nil
}

// parseResponse converts raw model output into a genuine verdict bound
// to this reviewer's role.
func (r *LLMReviewer) parseResponse(response string) (domain.Verdict, error) {
	var resp ReviewResponse
	if err := decodeResponse(response, &resp); err != nil {
		return domain.Verdict{}, err
	}

	if err := validate.Struct(resp); err != nil {
		return domain.Verdict{}, fmt.Errorf("invalid response structure: %w", err)
	}

	return domain.NewVerdict(r.role, *resp.Approved, resp.Feedback, resp.SuggestedChanges), nil
}

// Validate checks if the reviewer is properly configured and ready for
// invocation. It is called during panel assembly, before any round
// executes.
func (r *LLMReviewer) Validate() error {
	if r.llmClient == nil {
		return fmt.Errorf("LLM client is not configured")
	}
	if err := validate.Struct(r.config); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	if model := r.llmClient.GetModel(); model == "" {
		return fmt.Errorf("LLM client model is not configured")
	}
	return nil
}

// CreateLLMReviewer is a factory function that creates an LLMReviewer
// from a configuration map, following the ports.ReviewerFactory
// pattern. The LLM client is injected by the registry under the
// "llm_client" key; everything else falls back to the role defaults.
func CreateLLMReviewer(role domain.Role, config map[string]any) (ports.Reviewer, error) {
	client, err := clientFromConfig(config)
	if err != nil {
		return nil, err
	}

	reviewerConfig := DefaultReviewerConfig(role)

	if promptTemplate, ok := config["prompt_template"].(string); ok {
		reviewerConfig.PromptTemplate = promptTemplate
	}

	if system, ok := config["system"].(string); ok {
		reviewerConfig.System = system
	}

	if temperature, ok := config["temperature"]; ok {
		if val, ok := temperature.(float64); ok {
			reviewerConfig.Temperature = val
		} else if val, ok := temperature.(int); ok {
			// Handle integer temperature values (e.g., 0, 1).
			reviewerConfig.Temperature = float64(val)
		}
	}

	if maxTokens, ok := config["max_tokens"]; ok {
		if val, ok := maxTokens.(int); ok {
			reviewerConfig.MaxTokens = val
		} else if val, ok := maxTokens.(float64); ok {
			// YAML numbers often come as float64, convert to int.
			reviewerConfig.MaxTokens = int(val)
		}
	}

	return NewLLMReviewer(role, client, reviewerConfig)
}
