// Package session tracks resource consumption of one analysis run: dollar
// budget, call count and recursion depth. Every model invocation passes
// through a Session so limits hold across direct calls, parallel fan-outs
// and nested sub-queries.
package session

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBudgetExceeded reports that the dollar budget is spent.
	ErrBudgetExceeded = errors.New("session budget exceeded")
	// ErrCallsExceeded reports that the call ceiling is reached.
	ErrCallsExceeded = errors.New("session call limit exceeded")
	// ErrDepthExceeded reports that the recursion depth limit is reached.
	ErrDepthExceeded = errors.New("session depth limit exceeded")
)

// Limits bounds a session. Zero values fall back to the defaults.
type Limits struct {
	MaxBudget float64
	MaxCalls  int
	MaxDepth  int
}

// Default limits, applied when a Limits field is zero.
const (
	DefaultMaxBudget = 5.0
	DefaultMaxCalls  = 100
	DefaultMaxDepth  = 3
)

// Usage is a point-in-time snapshot of a session's consumption.
type Usage struct {
	Calls           int     `json:"calls"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	Cost            float64 `json:"cost"`
	BudgetLimit     float64 `json:"budget_limit"`
	BudgetRemaining float64 `json:"budget_remaining"`
	CacheHits       int     `json:"cache_hits"`
	CacheMisses     int     `json:"cache_misses"`
	MaxDepthSeen    int     `json:"max_depth_seen"`
}

// Session is the shared governor for one analysis run. Safe for concurrent
// use by parallel workers.
type Session struct {
	limits Limits

	mu           sync.Mutex
	calls        int
	inputTokens  int
	outputTokens int
	cost         float64
	depth        int
	maxDepthSeen int
	cacheHits    int
	cacheMisses  int
}

// New creates a session with the given limits, filling zero fields with the
// defaults.
func New(limits Limits) *Session {
	if limits.MaxBudget <= 0 {
		limits.MaxBudget = DefaultMaxBudget
	}
	if limits.MaxCalls <= 0 {
		limits.MaxCalls = DefaultMaxCalls
	}
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultMaxDepth
	}
	return &Session{limits: limits}
}

// CheckBudget reports whether another call may be made. It returns
// ErrBudgetExceeded or ErrCallsExceeded with the current figures attached.
func (s *Session) CheckBudget() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cost >= s.limits.MaxBudget {
		return fmt.Errorf("%w: $%.4f of $%.2f spent", ErrBudgetExceeded, s.cost, s.limits.MaxBudget)
	}
	if s.calls >= s.limits.MaxCalls {
		return fmt.Errorf("%w: %d of %d calls made", ErrCallsExceeded, s.calls, s.limits.MaxCalls)
	}
	return nil
}

// RecordCall accounts one completed model call. Failed calls are recorded
// with zero tokens so they still count against the call ceiling.
func (s *Session) RecordCall(model string, inputTokens, outputTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.inputTokens += inputTokens
	s.outputTokens += outputTokens
	s.cost += EstimateCost(model, inputTokens, outputTokens)
}

// EnterDepth claims one recursion level, returning a release function the
// caller must defer. It fails with ErrDepthExceeded when the limit is
// reached.
func (s *Session) EnterDepth() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.depth >= s.limits.MaxDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrDepthExceeded, s.limits.MaxDepth)
	}
	s.depth++
	if s.depth > s.maxDepthSeen {
		s.maxDepthSeen = s.depth
	}

	released := false
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !released {
			s.depth--
			released = true
		}
	}, nil
}

// RecordCacheHit accounts a cache hit that saved a model call.
func (s *Session) RecordCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

// RecordCacheMiss accounts a cache miss.
func (s *Session) RecordCacheMiss() {
	s.mu.Lock()
	s.cacheMisses++
	s.mu.Unlock()
}

// Cost returns the dollars spent so far.
func (s *Session) Cost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cost
}

// Calls returns the number of model calls made so far.
func (s *Session) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Limits returns the configured limits.
func (s *Session) Limits() Limits {
	return s.limits
}

// Usage returns a snapshot of the session's consumption.
func (s *Session) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.limits.MaxBudget - s.cost
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Calls:           s.calls,
		InputTokens:     s.inputTokens,
		OutputTokens:    s.outputTokens,
		Cost:            s.cost,
		BudgetLimit:     s.limits.MaxBudget,
		BudgetRemaining: remaining,
		CacheHits:       s.cacheHits,
		CacheMisses:     s.cacheMisses,
		MaxDepthSeen:    s.maxDepthSeen,
	}
}
