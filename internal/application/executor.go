// Package application orchestrates corpus loading, goal routing and program
// execution over the workflow library. It is the layer the CLI talks to.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/primitive"
	"github.com/rlmail/rlmail/internal/rlm"
	"github.com/rlmail/rlmail/internal/session"
	"github.com/rlmail/rlmail/internal/workflows"
)

// noFinalNotice is returned when a program finishes without setting output.
const noFinalNotice = "[Note: program completed but no final result was set]"

// Action is one step of an execution plan: a workflow or primitive name with
// its arguments.
type Action struct {
	Function    string         `json:"function"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description"`
}

// Env is the capability record a program runs against. It exposes the
// corpus, the workflow library and the runtime, and collects the program's
// final output. Only the first Final or FinalNamed call takes effect.
type Env struct {
	Corpus    *domain.Corpus
	Metadata  domain.CorpusMetadata
	Workflows *workflows.Workflows
	Runtime   *rlm.Runtime
	Session   *session.Session

	mu       sync.Mutex
	bindings map[string]any
	finalSet bool
	final    string
}

// Bind stores a named value for later FinalNamed output.
func (e *Env) Bind(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bindings == nil {
		e.bindings = map[string]any{}
	}
	e.bindings[name] = value
}

// Final sets the program's output. First call wins.
func (e *Env) Final(result string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.finalSet {
		e.final = result
		e.finalSet = true
	}
}

// FinalNamed sets a previously bound value as the output, JSON-serialized.
// First final call wins.
func (e *Env) FinalNamed(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalSet {
		return
	}
	value, ok := e.bindings[name]
	if !ok {
		e.final = fmt.Sprintf("[Error: Binding %q not found]", name)
		e.finalSet = true
		return
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		e.final = fmt.Sprintf("%v", value)
	} else {
		e.final = string(data)
	}
	e.finalSet = true
}

func (e *Env) result() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.final, e.finalSet
}

// Program is a unit of analysis code run by the Executor.
type Program func(ctx context.Context, env *Env) error

// RunStats classifies how an execution ended.
type RunStats struct {
	BudgetExceeded bool          `json:"budget_exceeded"`
	DepthExceeded  bool          `json:"depth_exceeded"`
	Failed         bool          `json:"failed"`
	Usage          session.Usage `json:"usage"`
}

// Executor runs programs against a prepared environment. Errors and panics
// are converted into in-band result strings so a turn always produces
// output; budget and depth violations are additionally classified in the
// run stats.
type Executor struct {
	wf  *workflows.Workflows
	log zerolog.Logger
}

// NewExecutor creates an executor over the workflow library.
func NewExecutor(wf *workflows.Workflows, log zerolog.Logger) *Executor {
	return &Executor{wf: wf, log: log}
}

// Run executes one program over the corpus and returns its output and stats.
func (x *Executor) Run(ctx context.Context, program Program, corpus *domain.Corpus) (result string, stats RunStats) {
	env := &Env{
		Corpus:    corpus,
		Workflows: x.wf,
		Runtime:   x.wf.Runtime(),
		Session:   x.wf.Runtime().Session(),
	}
	if corpus != nil {
		env.Metadata = corpus.Metadata
	}

	defer func() {
		stats.Usage = env.Session.Usage()
		if r := recover(); r != nil {
			stats.Failed = true
			result = fmt.Sprintf("[Execution Error: panic: %v]", r)
		}
	}()

	err := program(ctx, env)
	if err != nil {
		stats.Failed = true
		switch {
		case errors.Is(err, session.ErrBudgetExceeded), errors.Is(err, session.ErrCallsExceeded):
			stats.BudgetExceeded = true
		case errors.Is(err, session.ErrDepthExceeded):
			stats.DepthExceeded = true
		}
		return fmt.Sprintf("[Execution Error: %v]", err), stats
	}

	if final, ok := env.result(); ok {
		return final, stats
	}
	return noFinalNotice, stats
}

// RunPlan executes a sequence of actions, feeding the last action's result
// to the final output.
func (x *Executor) RunPlan(ctx context.Context, actions []Action, corpus *domain.Corpus) (string, RunStats) {
	return x.Run(ctx, func(ctx context.Context, env *Env) error {
		if len(actions) == 0 {
			env.Final("No actions to execute")
			return nil
		}
		var last any
		for i, action := range actions {
			x.log.Debug().Int("step", i+1).Str("function", action.Function).Msg(action.Description)
			result, err := x.dispatch(ctx, action, env)
			if err != nil {
				return fmt.Errorf("step %d (%s): %w", i+1, action.Function, err)
			}
			last = result
		}
		env.Bind("result", last)
		env.FinalNamed("result")
		return nil
	}, corpus)
}

// dispatch maps an action name to the workflow or primitive that implements
// it.
func (x *Executor) dispatch(ctx context.Context, action Action, env *Env) (any, error) {
	corpus := env.Corpus
	wf := env.Workflows

	switch action.Function {
	case "security_triage":
		opts := workflows.DefaultTriageOptions()
		if v, ok := boolArg(action.Args, "deduplicate"); ok {
			opts.Deduplicate = v
		}
		if v, ok := boolArg(action.Args, "include_executive_summary"); ok {
			opts.ExecutiveSummary = v
		}
		return wf.SecurityTriage(ctx, corpus, opts)

	case "detect_attack_chains":
		window := intArg(action.Args, "window_minutes", 5)
		minAlerts := intArg(action.Args, "min_alerts_per_chain", 2)
		return wf.DetectAttackChains(ctx, corpus, window, minAlerts)

	case "phishing_analysis":
		return wf.PhishingAnalysis(ctx, corpus)

	case "enrich_with_threat_intel":
		return wf.EnrichWithThreatIntel(primitive.ExtractIOCs(records(corpus))), nil

	case "classify_alerts":
		return wf.ClassifyAlerts(ctx, records(corpus))

	case "extract_iocs":
		return primitive.ExtractIOCs(records(corpus)), nil

	case "inbox_triage":
		return wf.InboxTriage(ctx, corpus)

	case "weekly_summary":
		return wf.WeeklySummary(ctx, corpus)

	case "find_action_items":
		return wf.FindActionItems(ctx, corpus)

	case "sender_analysis":
		return wf.SenderAnalysis(ctx, corpus, intArg(action.Args, "top_n", 10))

	case "filter_by_keyword":
		keyword, _ := action.Args["pattern"].(string)
		return primitive.FilterByKeyword(records(corpus), keyword), nil

	case "filter_by_sender":
		pattern, _ := action.Args["pattern"].(string)
		return primitive.FilterBySender(records(corpus), pattern), nil

	case "llm_query":
		prompt, _ := action.Args["prompt"].(string)
		contextData, _ := action.Args["context"].(string)
		return env.Runtime.Invoke(ctx, prompt, rlm.InvokeOptions{Context: contextData})

	default:
		return nil, fmt.Errorf("unknown function %q", action.Function)
	}
}

func records(corpus *domain.Corpus) []domain.EmailRecord {
	if corpus == nil {
		return nil
	}
	return corpus.Records
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func boolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}
