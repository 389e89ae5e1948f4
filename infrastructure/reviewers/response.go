package reviewers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReviewResponse is the JSON structure a reviewer model must return.
// Approved is a pointer so that an explicit false survives required
// validation; a missing field is rejected rather than silently read as
// a rejection.
type ReviewResponse struct {
	// Approved is the reviewer's approval signal for the proposal.
	Approved *bool `json:"approved" validate:"required"`

	// Feedback is the reviewer's critique. Required even on approval so
	// the audit trail always explains the vote.
	Feedback string `json:"feedback" validate:"required,min=1"`

	// SuggestedChanges lists concrete revisions the reviewer asks for.
	SuggestedChanges []string `json:"suggested_changes,omitempty"`

	// Version allows for future schema evolution.
	Version int `json:"version,omitempty"`
}

// ComponentSpec mirrors a proposal component in the revision wire
// format.
type ComponentSpec struct {
	Name           string  `json:"name" validate:"required,min=1"`
	Category       string  `json:"category" validate:"required,min=1"`
	Responsibility string  `json:"responsibility,omitempty"`
	EstimatedCost  float64 `json:"estimated_cost" validate:"min=0"`
}

// ConnectionSpec mirrors a directed component interaction in the
// revision wire format.
type ConnectionSpec struct {
	From string `json:"from" validate:"required,min=1"`
	To   string `json:"to" validate:"required,min=1"`
	Mode string `json:"mode" validate:"required,oneof=synchronous asynchronous streaming"`
}

// RevisionResponse is the JSON structure a reviser model must return:
// the complete next design, not a diff, so the parsed result can be
// validated as a whole before it replaces the current proposal.
type RevisionResponse struct {
	// Components is the full component list of the revised design.
	Components []ComponentSpec `json:"components" validate:"required,min=1,dive"`

	// Connections lists the directed interactions of the revised design.
	Connections []ConnectionSpec `json:"connections,omitempty" validate:"omitempty,dive"`

	// Rationale explains how the revision addresses the dissent.
	Rationale string `json:"rationale" validate:"required,min=1"`

	// Version allows for future schema evolution.
	Version int `json:"version,omitempty"`
}

// decodeResponse extracts the JSON payload from a raw model response
// and unmarshals it into out, enforcing the response size limit.
// Callers validate the decoded struct separately so parse failures and
// schema failures stay distinguishable in error messages.
func decodeResponse(response string, out any) error {
	if len(response) > MaxResponseBytes {
		return fmt.Errorf("response too large: %d bytes exceeds limit of %d", len(response), MaxResponseBytes)
	}

	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return fmt.Errorf("no valid JSON found in response (response length: %d chars)", len(response))
	}

	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("failed to parse JSON response (JSON length: %d chars): %w", len(jsonStr), err)
	}

	return nil
}

// extractJSON attempts to extract JSON from a response that might
// contain additional text before or after the JSON object. It handles
// markdown code blocks and prose surrounding the JSON object.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	// First, try to extract from markdown code blocks.
	if strings.Contains(response, "```json") {
		start := strings.Index(response, "```json")
		if start != -1 {
			start += 7 // Move past "```json"
			end := strings.Index(response[start:], "```")
			if end != -1 {
				return strings.TrimSpace(response[start : start+end])
			}
		}
	}

	// Also check for generic code blocks.
	if strings.Contains(response, "```") {
		start := strings.Index(response, "```")
		if start != -1 {
			start += 3 // Move past "```"
			// Skip any language identifier.
			newlineIdx := strings.Index(response[start:], "\n")
			if newlineIdx != -1 {
				start += newlineIdx + 1
			}
			end := strings.Index(response[start:], "```")
			if end != -1 {
				candidate := strings.TrimSpace(response[start : start+end])
				if strings.HasPrefix(candidate, "{") {
					return candidate
				}
			}
		}
	}

	// Look for JSON object boundaries.
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Find the matching closing brace, handling nested objects and
	// strings.
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(response); i++ {
		char := response[i]

		if escapeNext {
			escapeNext = false
			continue
		}

		if char == '\\' {
			escapeNext = true
			continue
		}

		if char == '"' && !escapeNext {
			inString = !inString
			continue
		}

		// Only count braces outside of strings.
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	return ""
}

// supportsJSONMode checks if the model behind the client supports
// structured JSON output. This is a heuristic on the model name; the
// provider adapters translate the option into their native response
// format knobs.
func supportsJSONMode(model string) bool {
	lower := strings.ToLower(model)
	return strings.Contains(lower, "gpt") ||
		strings.Contains(lower, "claude") ||
		strings.Contains(lower, "gemini")
}
