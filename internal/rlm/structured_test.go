package rlm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/ports"
	"github.com/rlmail/rlmail/internal/session"
)

// scriptedReplies returns each reply once, in order, then repeats the last.
func scriptedReplies(replies ...string) func(ports.CompletionRequest) (*ports.CompletionResult, error) {
	i := 0
	return func(ports.CompletionRequest) (*ports.CompletionResult, error) {
		reply := replies[len(replies)-1]
		if i < len(replies) {
			reply = replies[i]
		}
		i++
		return &ports.CompletionResult{Text: reply, InputTokens: 10, OutputTokens: 10}, nil
	}
}

func TestInvokeJSONRetriesWithErrorFeedback(t *testing.T) {
	ep := &stubEndpoint{fn: scriptedReplies("this is not json", `{"count": 3}`)}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	raw, err := rt.InvokeJSON(context.Background(), "count things", InvokeOptions{NoCache: true}, "", 2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 3}`, string(raw))
	assert.Equal(t, 2, ep.callCount())

	retryPrompt := ep.request(1).Prompt
	assert.Contains(t, retryPrompt, "Previous response was invalid JSON")
	assert.Contains(t, retryPrompt, "count things")
}

func TestInvokeJSONStripsFences(t *testing.T) {
	ep := &stubEndpoint{fn: scriptedReplies("```json\n{\"ok\": true}\n```")}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	raw, err := rt.InvokeJSON(context.Background(), "task", InvokeOptions{NoCache: true}, "", 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(raw))
}

func TestInvokeJSONSchemaValidation(t *testing.T) {
	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`

	ep := &stubEndpoint{fn: scriptedReplies(`{"wrong": 1}`, `{"name": "ok"}`)}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	raw, err := rt.InvokeJSON(context.Background(), "task", InvokeOptions{NoCache: true}, schema, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "ok"}`, string(raw))
	assert.Equal(t, 2, ep.callCount())
}

func TestInvokeJSONExhaustsRetries(t *testing.T) {
	ep := &stubEndpoint{fn: scriptedReplies("never valid")}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	_, err := rt.InvokeJSON(context.Background(), "task", InvokeOptions{NoCache: true}, "", 1)
	require.Error(t, err)

	var structErr *StructuredOutputError
	require.ErrorAs(t, err, &structErr)
	assert.Equal(t, 2, structErr.Attempts)
	assert.Equal(t, "never valid", structErr.LastResponse)
}

func TestInvokeJSONBadSchema(t *testing.T) {
	ep := &stubEndpoint{fn: scriptedReplies("{}")}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	_, err := rt.InvokeJSON(context.Background(), "task", InvokeOptions{}, "{not a schema", 0)
	require.Error(t, err)
	assert.Equal(t, 0, ep.callCount())
}

func TestInvokeWithConfidence(t *testing.T) {
	ep := &stubEndpoint{fn: scriptedReplies("The pattern is coherent.\nCONFIDENCE: 80\nREASONING: stages follow logically")}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	result, err := rt.InvokeWithConfidence(context.Background(), "assess", InvokeOptions{NoCache: true}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
	assert.Equal(t, "stages follow logically", result.Reasoning)

	assert.Contains(t, ep.request(0).Prompt, "CONFIDENCE: [0-100]")
}

func TestInvokeWithConfidenceBelowThreshold(t *testing.T) {
	ep := &stubEndpoint{fn: scriptedReplies("Weak signal.\nCONFIDENCE: 30\nREASONING: sparse data")}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	_, err := rt.InvokeWithConfidence(context.Background(), "assess", InvokeOptions{NoCache: true}, 0.7)
	require.Error(t, err)

	var lowErr *LowConfidenceError
	require.ErrorAs(t, err, &lowErr)
	assert.InDelta(t, 0.3, lowErr.Confidence, 1e-9)
	assert.Equal(t, "sparse data", lowErr.Reasoning)
}

func TestInvokeWithConfidenceUnparseableIsZero(t *testing.T) {
	ep := &stubEndpoint{fn: scriptedReplies("no trailer lines here")}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	result, err := rt.InvokeWithConfidence(context.Background(), "assess", InvokeOptions{NoCache: true}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced bare", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"padded", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}
