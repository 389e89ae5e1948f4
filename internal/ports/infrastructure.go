package ports

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations should handle provider-specific details like
// authentication, request formatting, and response parsing. Reviewer
// adapters depend on this port; they never talk to provider SDKs
// directly.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	//
	// Parameters:
	//   - ctx: Context for cancellation and deadline propagation
	//   - prompt: The input prompt for the LLM
	//   - options: Provider-specific options (temperature, max tokens, etc.)
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64 (0.0-1.0)
	//   - "max_tokens": int
	//   - "model": string (specific model version)
	//   - "system": string (system prompt)
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given
	// text. This is useful for cost estimation and staying within model
	// limits. The estimation method may vary by provider.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	// This is useful for logging and debugging purposes.
	GetModel() string
}

// ClientResolver resolves "provider/model" specifications to configured
// LLM clients, enabling per-seat provider selection when assembling a
// panel from declarative configuration.
type ClientResolver interface {
	// GetClient returns a client for the given specification. An empty
	// spec selects the resolver's default client.
	GetClient(spec string) (LLMClient, error)
}

// MetricsCollector defines the interface for collecting operational
// metrics from the engine: verdict outcomes, round durations,
// invocation attempts. Implementations should integrate with
// observability platforms like Prometheus or custom monitoring
// solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like verdicts, retries, and
	// terminal outcomes.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like rounds in the active
	// debate.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like approval counts
	// per round.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
