package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/adapters/cache"
	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/ports"
	"github.com/rlmail/rlmail/internal/rlm"
	"github.com/rlmail/rlmail/internal/session"
	"github.com/rlmail/rlmail/internal/workflows"
)

// fixedEndpoint answers every completion with the same text.
type fixedEndpoint struct {
	mu       sync.Mutex
	requests []ports.CompletionRequest
	text     string
}

func (f *fixedEndpoint) Complete(_ context.Context, req ports.CompletionRequest) (*ports.CompletionResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return &ports.CompletionResult{Text: f.text, InputTokens: 20, OutputTokens: 20}, nil
}

func (f *fixedEndpoint) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fixedEndpoint) request(i int) ports.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func newTestRuntime(t *testing.T, ep ports.ModelEndpoint, limits session.Limits) *rlm.Runtime {
	t.Helper()
	qc, err := cache.NewQueryCache(t.TempDir(), time.Hour, zerolog.Nop())
	require.NoError(t, err)
	sess := session.New(limits)
	return rlm.New(ep, qc, sess, rlm.Config{Model: "claude-sonnet-4", Workers: 1}, zerolog.Nop())
}

func newTestExecutor(t *testing.T, ep ports.ModelEndpoint) *Executor {
	t.Helper()
	rt := newTestRuntime(t, ep, session.Limits{})
	return NewExecutor(workflows.New(rt, zerolog.Nop()), zerolog.Nop())
}

func TestRunPlanEmpty(t *testing.T) {
	x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

	result, stats := x.RunPlan(context.Background(), nil, &domain.Corpus{})
	assert.Equal(t, "No actions to execute", result)
	assert.False(t, stats.Failed)
}

func TestRunPlanUnknownFunction(t *testing.T) {
	x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

	result, stats := x.RunPlan(context.Background(), []Action{{Function: "bogus"}}, &domain.Corpus{})
	assert.Equal(t, `[Execution Error: step 1 (bogus): unknown function "bogus"]`, result)
	assert.True(t, stats.Failed)
}

func TestRunPlanSerializesLastResult(t *testing.T) {
	x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

	corpus := &domain.Corpus{Records: []domain.EmailRecord{
		{ID: "1", Subject: "Alert", Snippet: "traffic from 203.0.113.7"},
	}}

	result, stats := x.RunPlan(context.Background(), []Action{{Function: "extract_iocs"}}, corpus)
	assert.False(t, stats.Failed)
	assert.Contains(t, result, "203.0.113.7")
	assert.Contains(t, result, `"ips"`)
}

func TestRunPlanFilterByKeyword(t *testing.T) {
	x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

	corpus := &domain.Corpus{Records: []domain.EmailRecord{
		{ID: "1", Subject: "Invoice overdue"},
		{ID: "2", Subject: "Lunch plans"},
	}}

	result, _ := x.RunPlan(context.Background(), []Action{
		{Function: "filter_by_keyword", Args: map[string]any{"pattern": "invoice"}},
	}, corpus)
	assert.Contains(t, result, "Invoice overdue")
	assert.NotContains(t, result, "Lunch plans")
}

func TestRunPlanLLMQuery(t *testing.T) {
	ep := &fixedEndpoint{text: "forty-two"}
	x := newTestExecutor(t, ep)

	result, _ := x.RunPlan(context.Background(), []Action{
		{Function: "llm_query", Args: map[string]any{"prompt": "count things", "context": "a b c"}},
	}, &domain.Corpus{})
	assert.Equal(t, `"forty-two"`, result)
	assert.Equal(t, 1, ep.callCount())
}

func TestRunWithoutFinalYieldsNotice(t *testing.T) {
	x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

	result, stats := x.Run(context.Background(), func(context.Context, *Env) error {
		return nil
	}, nil)
	assert.Equal(t, noFinalNotice, result)
	assert.False(t, stats.Failed)
}

func TestRunFirstFinalWins(t *testing.T) {
	x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

	result, _ := x.Run(context.Background(), func(_ context.Context, env *Env) error {
		env.Final("first")
		env.Final("second")
		env.Bind("late", "third")
		env.FinalNamed("late")
		return nil
	}, nil)
	assert.Equal(t, "first", result)
}

func TestRunFinalNamedMissingBinding(t *testing.T) {
	x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

	result, _ := x.Run(context.Background(), func(_ context.Context, env *Env) error {
		env.FinalNamed("nope")
		return nil
	}, nil)
	assert.Equal(t, `[Error: Binding "nope" not found]`, result)
}

func TestRunRecoversPanic(t *testing.T) {
	x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

	result, stats := x.Run(context.Background(), func(context.Context, *Env) error {
		panic("boom")
	}, nil)
	assert.Equal(t, "[Execution Error: panic: boom]", result)
	assert.True(t, stats.Failed)
}

func TestRunClassifiesBudgetErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantBudget bool
		wantDepth  bool
	}{
		{"budget", fmt.Errorf("invoking: %w", session.ErrBudgetExceeded), true, false},
		{"calls", fmt.Errorf("invoking: %w", session.ErrCallsExceeded), true, false},
		{"depth", fmt.Errorf("invoking: %w", session.ErrDepthExceeded), false, true},
		{"other", errors.New("disk full"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newTestExecutor(t, &fixedEndpoint{text: "unused"})

			result, stats := x.Run(context.Background(), func(context.Context, *Env) error {
				return tt.err
			}, nil)
			assert.Contains(t, result, "[Execution Error:")
			assert.True(t, stats.Failed)
			assert.Equal(t, tt.wantBudget, stats.BudgetExceeded)
			assert.Equal(t, tt.wantDepth, stats.DepthExceeded)
		})
	}
}

func TestRunStatsCarryUsage(t *testing.T) {
	ep := &fixedEndpoint{text: "ok"}
	x := newTestExecutor(t, ep)

	_, stats := x.Run(context.Background(), func(ctx context.Context, env *Env) error {
		_, err := env.Runtime.Invoke(ctx, "one call", rlm.InvokeOptions{})
		if err != nil {
			return err
		}
		env.Final("done")
		return nil
	}, nil)
	assert.Equal(t, 1, stats.Usage.Calls)
}

func TestIntArg(t *testing.T) {
	args := map[string]any{"from_json": float64(7), "native": 3}
	assert.Equal(t, 7, intArg(args, "from_json", 0))
	assert.Equal(t, 3, intArg(args, "native", 0))
	assert.Equal(t, 9, intArg(args, "missing", 9))
	assert.Equal(t, 9, intArg(map[string]any{"missing": "7"}, "missing", 9))
}

func TestBoolArg(t *testing.T) {
	v, ok := boolArg(map[string]any{"flag": true}, "flag")
	assert.True(t, v)
	assert.True(t, ok)

	_, ok = boolArg(map[string]any{"flag": "true"}, "flag")
	assert.False(t, ok)
}
