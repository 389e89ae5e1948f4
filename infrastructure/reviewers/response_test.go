package reviewers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{
			name:     "plain JSON object",
			response: `{"approved": true, "feedback": "fine"}`,
			expected: `{"approved": true, "feedback": "fine"}`,
		},
		{
			name:     "JSON inside markdown json fence",
			response: "Here is my verdict:\n```json\n{\"approved\": false}\n```\nDone.",
			expected: `{"approved": false}`,
		},
		{
			name:     "JSON inside generic fence",
			response: "```\n{\"approved\": true}\n```",
			expected: `{"approved": true}`,
		},
		{
			name:     "prose before and after the object",
			response: `After careful review, {"approved": true, "feedback": "ok"} is my answer.`,
			expected: `{"approved": true, "feedback": "ok"}`,
		},
		{
			name:     "nested objects balance correctly",
			response: `{"outer": {"inner": {"deep": 1}}, "approved": true}`,
			expected: `{"outer": {"inner": {"deep": 1}}, "approved": true}`,
		},
		{
			name:     "braces inside strings are ignored",
			response: `{"feedback": "use {placeholders} carefully", "approved": true}`,
			expected: `{"feedback": "use {placeholders} carefully", "approved": true}`,
		},
		{
			name:     "escaped quotes inside strings",
			response: `{"feedback": "the \"gateway\" component", "approved": false}`,
			expected: `{"feedback": "the \"gateway\" component", "approved": false}`,
		},
		{
			name:     "no JSON at all",
			response: "I approve of this design.",
			expected: "",
		},
		{
			name:     "unbalanced braces yield nothing",
			response: `{"approved": true, "feedback": "truncated`,
			expected: "",
		},
		{
			name:     "empty response",
			response: "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.response))
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Run("valid review payload decodes", func(t *testing.T) {
		var resp ReviewResponse
		err := decodeResponse(`{"approved": true, "feedback": "clean", "version": 1}`, &resp)
		require.NoError(t, err)
		require.NotNil(t, resp.Approved)
		assert.True(t, *resp.Approved)
		assert.Equal(t, "clean", resp.Feedback)
	})

	t.Run("explicit false approval survives decoding", func(t *testing.T) {
		var resp ReviewResponse
		err := decodeResponse(`{"approved": false, "feedback": "not yet"}`, &resp)
		require.NoError(t, err)
		require.NotNil(t, resp.Approved)
		assert.False(t, *resp.Approved)
	})

	t.Run("missing approved field stays nil", func(t *testing.T) {
		var resp ReviewResponse
		err := decodeResponse(`{"feedback": "forgot the vote"}`, &resp)
		require.NoError(t, err)
		assert.Nil(t, resp.Approved, "absence must be distinguishable from rejection")
	})

	t.Run("oversized response is rejected", func(t *testing.T) {
		huge := `{"feedback": "` + strings.Repeat("x", MaxResponseBytes) + `"}`
		var resp ReviewResponse
		err := decodeResponse(huge, &resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "response too large")
	})

	t.Run("malformed JSON is reported", func(t *testing.T) {
		var resp ReviewResponse
		err := decodeResponse(`{"approved": true,, "feedback": "double comma"}`, &resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse JSON response")
	})
}

func TestSupportsJSONMode(t *testing.T) {
	assert.True(t, supportsJSONMode("gpt-4o"))
	assert.True(t, supportsJSONMode("claude-sonnet-4"))
	assert.True(t, supportsJSONMode("gemini-2.0-flash"))
	assert.True(t, supportsJSONMode("GPT-4"))
	assert.False(t, supportsJSONMode("llama-3-70b"))
	assert.False(t, supportsJSONMode(""))
}
