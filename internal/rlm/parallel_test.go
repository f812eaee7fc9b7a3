package rlm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/ports"
	"github.com/rlmail/rlmail/internal/session"
)

// echoContext answers each request with its own context line so ordering is
// observable.
func echoContext() func(ports.CompletionRequest) (*ports.CompletionResult, error) {
	return func(req ports.CompletionRequest) (*ports.CompletionResult, error) {
		return &ports.CompletionResult{Text: req.Prompt, InputTokens: 10, OutputTokens: 10}, nil
	}
}

func TestParallelQueryPreservesOrder(t *testing.T) {
	ep := &stubEndpoint{fn: echoContext()}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{Workers: 3})

	pairs := make([]PromptPair, 10)
	for i := range pairs {
		pairs[i] = PromptPair{Prompt: "summarize", Context: fmt.Sprintf("chunk-%d", i)}
	}

	results, err := rt.ParallelQuery(context.Background(), pairs, InvokeOptions{})
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		assert.Contains(t, r, fmt.Sprintf("chunk-%d", i))
	}
	assert.Equal(t, 10, ep.callCount())
}

func TestParallelQueryEmpty(t *testing.T) {
	ep := &stubEndpoint{fn: echoContext()}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{})

	results, err := rt.ParallelQuery(context.Background(), nil, InvokeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{}, results)
	assert.Equal(t, 0, ep.callCount())
}

func TestParallelQuerySingleDepthSlot(t *testing.T) {
	ep := &stubEndpoint{fn: echoContext()}
	rt, sess := newTestRuntime(t, ep, session.Limits{MaxDepth: 1}, Config{Workers: 4})

	pairs := []PromptPair{{Prompt: "a"}, {Prompt: "b"}, {Prompt: "c"}}
	_, err := rt.ParallelQuery(context.Background(), pairs, InvokeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Usage().MaxDepthSeen)
}

func TestParallelQueryStopsOnCallLimit(t *testing.T) {
	ep := &stubEndpoint{fn: echoContext()}
	rt, _ := newTestRuntime(t, ep, session.Limits{MaxCalls: 2}, Config{Workers: 1})

	pairs := make([]PromptPair, 5)
	for i := range pairs {
		pairs[i] = PromptPair{Prompt: "p", Context: fmt.Sprintf("%d", i)}
	}

	_, err := rt.ParallelQuery(context.Background(), pairs, InvokeOptions{})
	assert.ErrorIs(t, err, session.ErrCallsExceeded)
}

func TestParallelMapBuildsContexts(t *testing.T) {
	ep := &stubEndpoint{fn: echoContext()}
	rt, _ := newTestRuntime(t, ep, session.Limits{}, Config{Workers: 2})

	chunks := [][]domain.EmailRecord{
		{{Subject: "first"}},
		{{Subject: "second"}},
	}
	results, err := rt.ParallelMap(context.Background(), "summarize", chunks, func(chunk []domain.EmailRecord) string {
		return chunk[0].Subject
	}, InvokeOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0], "first")
	assert.Contains(t, results[1], "second")
}
