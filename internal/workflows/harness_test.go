package workflows

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/adapters/cache"
	"github.com/rlmail/rlmail/internal/ports"
	"github.com/rlmail/rlmail/internal/rlm"
	"github.com/rlmail/rlmail/internal/session"
)

// scriptEndpoint dispatches completions off the composed prompt so a single
// stub can serve multi-stage pipelines.
type scriptEndpoint struct {
	mu       sync.Mutex
	requests []ports.CompletionRequest
	fn       func(req ports.CompletionRequest) (*ports.CompletionResult, error)
}

func (s *scriptEndpoint) Complete(_ context.Context, req ports.CompletionRequest) (*ports.CompletionResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.fn(req)
}

func (s *scriptEndpoint) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptEndpoint) request(i int) ports.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

// answer wraps a prompt-to-text function as a scriptEndpoint handler.
func answer(fn func(prompt string) string) func(ports.CompletionRequest) (*ports.CompletionResult, error) {
	return func(req ports.CompletionRequest) (*ports.CompletionResult, error) {
		return &ports.CompletionResult{Text: fn(req.Prompt), InputTokens: 20, OutputTokens: 20}, nil
	}
}

func newTestWorkflows(t *testing.T, ep ports.ModelEndpoint) *Workflows {
	t.Helper()
	qc, err := cache.NewQueryCache(t.TempDir(), time.Hour, zerolog.Nop())
	require.NoError(t, err)

	sess := session.New(session.Limits{})
	rt := rlm.New(ep, qc, sess, rlm.Config{Model: "claude-sonnet-4", Workers: 1}, zerolog.Nop())
	return New(rt, zerolog.Nop())
}
