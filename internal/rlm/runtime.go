// Package rlm is the recursive invocation runtime. It wraps the model
// endpoint with the session governor, result cache, prompt framing, parallel
// fan-out, checkpointing and structured-output retries. Call failures are
// returned as in-band sentinel strings so callers can aggregate partial
// results; only budget and depth violations surface as errors.
package rlm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rlmail/rlmail/internal/adapters/cache"
	"github.com/rlmail/rlmail/internal/ports"
	"github.com/rlmail/rlmail/internal/session"
)

// framingPreamble primes a sub-query to answer in an aggregation-friendly
// form. It is prepended to every prompt unless framing is disabled.
const framingPreamble = "You are handling one sub-query of a larger analysis. " +
	"Many similar sub-queries run in parallel and their answers are combined " +
	"programmatically. Be concise, answer in a form that is easy to aggregate, " +
	"and do not add preambles or closing remarks."

// jsonInstruction is appended when a caller requests strict JSON output.
const jsonInstruction = "Respond with valid JSON only. No markdown fences, no explanation."

// sentinelPrefix marks an in-band failure value from Invoke.
const sentinelPrefix = "[LLM Error:"

// DefaultTimeout bounds a single model call when none is configured.
const DefaultTimeout = 120 * time.Second

// Config carries the runtime defaults for one analysis run.
type Config struct {
	Model   string
	Timeout time.Duration
	Framing bool
	Workers int

	// Checkpoint, when set, makes fan-outs resumable through this file.
	Checkpoint         string
	CheckpointInterval int
}

// Runtime coordinates model invocations for one run. Safe for concurrent use
// by fan-out workers.
type Runtime struct {
	endpoint ports.ModelEndpoint
	cache    *cache.QueryCache // nil when caching is disabled
	sess     *session.Session
	cfg      Config
	log      zerolog.Logger
}

// New creates a runtime. Pass a nil cache to disable result caching.
func New(endpoint ports.ModelEndpoint, qc *cache.QueryCache, sess *session.Session, cfg Config, log zerolog.Logger) *Runtime {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	return &Runtime{endpoint: endpoint, cache: qc, sess: sess, cfg: cfg, log: log}
}

// Session exposes the governor backing this runtime.
func (r *Runtime) Session() *session.Session { return r.sess }

// InvokeOptions adjusts a single invocation. Zero values take the runtime
// defaults.
type InvokeOptions struct {
	// Context is the data portion of the prompt, kept separate from the task
	// so caching and framing compose consistently.
	Context string
	// Model overrides the configured model id.
	Model string
	// Timeout overrides the configured per-call timeout.
	Timeout time.Duration
	// JSONMode appends a strict-JSON instruction to the prompt.
	JSONMode bool
	// NoCache bypasses the result cache for this call.
	NoCache bool
	// NoFraming drops the sub-query preamble for this call.
	NoFraming bool
}

// IsSentinel reports whether a result string is an in-band failure value.
func IsSentinel(s string) bool {
	return strings.HasPrefix(s, sentinelPrefix)
}

// Invoke runs one governed model call and returns the response text. Call
// failures come back as sentinel strings, never cached. The error return is
// reserved for budget and depth violations, which must stop the caller.
func (r *Runtime) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (string, error) {
	if err := r.sess.CheckBudget(); err != nil {
		return "", err
	}
	release, err := r.sess.EnterDepth()
	if err != nil {
		return "", err
	}
	defer release()

	return r.invoke(ctx, prompt, opts)
}

// invoke is Invoke without the depth acquisition, used by fan-out workers
// that share one depth slot.
func (r *Runtime) invoke(ctx context.Context, prompt string, opts InvokeOptions) (string, error) {
	if err := r.sess.CheckBudget(); err != nil {
		return "", err
	}

	model := opts.Model
	if model == "" {
		model = r.cfg.Model
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	task := prompt
	if opts.JSONMode {
		task = task + "\n\n" + jsonInstruction
	}

	var key string
	if r.cache != nil && !opts.NoCache {
		key = cache.Key(task, opts.Context, model)
		if result, ok := r.cache.Get(key); ok {
			r.sess.RecordCacheHit()
			return result, nil
		}
		r.sess.RecordCacheMiss()
	}

	full := r.compose(task, opts)

	res, err := r.endpoint.Complete(ctx, ports.CompletionRequest{
		Model:   model,
		Prompt:  full,
		Timeout: timeout,
	})
	if err != nil {
		// A failed call still counts against the call ceiling.
		r.sess.RecordCall(model, 0, 0)
		return sentinel(err), nil
	}

	r.sess.RecordCall(model, res.InputTokens, res.OutputTokens)

	if key != "" {
		tokens := res.InputTokens + res.OutputTokens
		if cerr := r.cache.Set(key, res.Text, tokens, model); cerr != nil {
			r.log.Warn().Err(cerr).Msg("cache write failed")
		}
	}
	return res.Text, nil
}

func (r *Runtime) compose(task string, opts InvokeOptions) string {
	var b strings.Builder
	if r.cfg.Framing && !opts.NoFraming {
		b.WriteString(framingPreamble)
		b.WriteString("\n\n")
	}
	if opts.Context != "" {
		b.WriteString("Data to analyze:\n")
		b.WriteString(opts.Context)
		b.WriteString("\n\n")
	}
	b.WriteString("Task: ")
	b.WriteString(task)
	return b.String()
}

func sentinel(err error) string {
	var epErr *ports.EndpointError
	if errors.As(err, &epErr) {
		switch epErr.Kind {
		case ports.EndpointErrAuth:
			return sentinelPrefix + " Authentication failed. Check ANTHROPIC_API_KEY]"
		case ports.EndpointErrTimeout:
			return sentinelPrefix + " Query timed out]"
		}
	}
	return fmt.Sprintf("%s %v]", sentinelPrefix, err)
}
