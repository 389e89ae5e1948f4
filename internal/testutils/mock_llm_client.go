package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-concord/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)

// MockLLMClient implements the LLMClient interface with deterministic
// responses for consistent testing and development workflows.
// It matches prompt substrings against pre-configured patterns and also
// supports one-shot scripted results for exercising retry and failure
// paths. The client is safe for concurrent use; reviewer fan-out may
// hit one instance from several goroutines.
type MockLLMClient struct {
	mu sync.Mutex
	// model is the mock model identifier.
	model string
	// responses maps prompt patterns to pre-defined responses.
	responses map[string]string
	// tokenCounts maps response patterns to token usage estimates.
	tokenCounts map[string]int
	// scripted holds one-shot results consumed FIFO before any pattern
	// matching happens.
	scripted []scriptedResult
	// calls counts Complete invocations, including scripted ones.
	calls int
}

type scriptedResult struct {
	response string
	err      error
}

// MockResponse defines a pre-configured response pattern for the mock
// client.
type MockResponse struct {
	// Pattern is used to match against prompts (substring matching).
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
	// TokensUsed is the estimated token count for this response.
	TokensUsed int
}

// NewMockLLMClient creates a new MockLLMClient with pre-configured
// responses for the debate capability prompts, so a default panel
// reaches consensus without per-test setup.
func NewMockLLMClient(model string) *MockLLMClient {
	client := &MockLLMClient{
		model:       model,
		responses:   make(map[string]string),
		tokenCounts: make(map[string]int),
	}

	client.setupDefaultResponses()

	return client
}

// setupDefaultResponses configures standard responses for the built-in
// reviewer and reviser prompts. The responses are valid JSON for the
// capability schemas and deterministic for identical inputs. Callers
// must either hold m.mu or not yet have published the client.
func (m *MockLLMClient) setupDefaultResponses() {
	// Revision prompts ask for the complete next design.
	m.addResponseLocked(MockResponse{
		Pattern: "revising",
		Response: `{"components": [{"name": "api_gateway", "category": "service", "responsibility": "request routing", "estimated_cost": 2},` +
			` {"name": "order_store", "category": "datastore", "responsibility": "order persistence", "estimated_cost": 3}],` +
			` "connections": [{"from": "api_gateway", "to": "order_store", "mode": "asynchronous"}],` +
			` "rationale": "Moved the hot path to an asynchronous write to address the latency dissent.", "version": 1}`,
		TokensUsed: 60,
	})

	// Role-flavored review verdicts keep panel transcripts varied.
	m.addResponseLocked(MockResponse{
		Pattern:    "latency",
		Response:   `{"approved": true, "feedback": "No synchronous chain exceeds two hops; the hot path is acceptable.", "version": 1}`,
		TokensUsed: 24,
	})

	m.addResponseLocked(MockResponse{
		Pattern:    "security",
		Response:   `{"approved": true, "feedback": "Every datastore sits behind a service boundary; no exposed surface found.", "version": 1}`,
		TokensUsed: 24,
	})

	m.addResponseLocked(MockResponse{
		Pattern:    "architect",
		Response:   `{"approved": true, "feedback": "Responsibilities are disjoint and every connection references a declared component.", "version": 1}`,
		TokensUsed: 25,
	})

	// Default response for unmatched prompts.
	m.addResponseLocked(MockResponse{
		Pattern:    "",
		Response:   `{"approved": true, "feedback": "The design raises no concern from this seat.", "version": 1}`,
		TokensUsed: 16,
	})
}

// AddResponse adds a new response pattern to the mock client.
// This allows customization of responses for specific testing
// scenarios.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addResponseLocked(response)
}

func (m *MockLLMClient) addResponseLocked(response MockResponse) {
	m.responses[response.Pattern] = response.Response
	m.tokenCounts[response.Pattern] = response.TokensUsed
}

// QueueResponse schedules a one-shot scripted result. Scripted results
// are consumed in FIFO order before any pattern matching, which makes
// failure-then-success retry sequences straightforward to express.
func (m *MockLLMClient) QueueResponse(response string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, scriptedResult{response: response, err: err})
}

// CallCount reports how many times Complete has been invoked.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete implements the LLMClient.Complete method with deterministic
// responses based on scripted results first and prompt pattern matching
// second.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if len(m.scripted) > 0 {
		next := m.scripted[0]
		m.scripted = m.scripted[1:]
		return next.response, next.err
	}

	return m.findMatchingResponse(prompt), nil
}

// EstimateTokens implements the LLMClient.EstimateTokens method using a
// simple length-based estimation, approximately four characters per
// token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	tokens := len(text) / 4
	if tokens == 0 {
		tokens = 1 // Minimum one token for non-empty text.
	}

	return tokens, nil
}

// GetModel implements the LLMClient.GetModel method returning the mock
// model identifier.
func (m *MockLLMClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// findMatchingResponse selects the most appropriate response based on
// prompt content. Revision prompts are checked first so the shared
// preamble never routes a reviser call to a review verdict. Callers
// must hold m.mu.
func (m *MockLLMClient) findMatchingResponse(prompt string) string {
	promptLower := strings.ToLower(prompt)

	// Built-in patterns are checked in priority order.
	patterns := []string{"revising", "latency", "security", "architect"}
	for _, pattern := range patterns {
		if response, ok := m.responses[pattern]; ok && strings.Contains(promptLower, pattern) {
			return response
		}
	}

	// Check custom patterns added by tests.
	for pattern, response := range m.responses {
		if pattern != "" && !containsString(patterns, pattern) && strings.Contains(promptLower, pattern) {
			return response
		}
	}

	// Fall back to the default response if no pattern matches.
	if defaultResponse, ok := m.responses[""]; ok {
		return defaultResponse
	}

	return "Mock response for testing purposes."
}

// containsString checks if a string slice contains a specific string.
func containsString(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}

// GetTokenUsage returns the estimated token usage for a given response
// pattern. This supports budget accounting assertions in tests.
func (m *MockLLMClient) GetTokenUsage(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tokens, ok := m.tokenCounts[pattern]; ok {
		return tokens
	}
	return m.tokenCounts[""] // Default token count.
}

// Reset clears scripted results and custom responses and restores the
// default configuration. This is useful for test cleanup.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string]string)
	m.tokenCounts = make(map[string]int)
	m.scripted = nil
	m.calls = 0
	m.setupDefaultResponses()
}

// SetModel updates the mock model identifier.
func (m *MockLLMClient) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}
