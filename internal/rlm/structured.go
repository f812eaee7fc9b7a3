package rlm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StructuredOutputError reports that the model never produced valid JSON
// within the retry budget. LastResponse carries the final raw text for
// debugging.
type StructuredOutputError struct {
	Attempts     int
	LastResponse string
	Err          error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("no valid structured output after %d attempts: %v", e.Attempts, e.Err)
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

// LowConfidenceError reports that the model's self-assessed confidence fell
// below the caller's threshold.
type LowConfidenceError struct {
	Confidence float64
	Threshold  float64
	Reasoning  string
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("confidence %.2f below threshold %.2f: %s", e.Confidence, e.Threshold, e.Reasoning)
}

// InvokeJSON runs a JSON-mode invocation, validating each reply against the
// optional JSON schema. Invalid replies are retried with the parse or
// validation error fed back verbatim. After maxRetries+1 failures it returns
// a *StructuredOutputError. Budget and depth violations propagate untouched.
func (r *Runtime) InvokeJSON(ctx context.Context, prompt string, opts InvokeOptions, schemaJSON string, maxRetries int) (json.RawMessage, error) {
	var sch *jsonschema.Schema
	if schemaJSON != "" {
		var err error
		sch, err = jsonschema.CompileString("schema.json", schemaJSON)
		if err != nil {
			return nil, fmt.Errorf("compiling schema: %w", err)
		}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	opts.JSONMode = true

	task := prompt
	var lastRaw string
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := r.Invoke(ctx, task, opts)
		if err != nil {
			return nil, err
		}
		lastRaw = raw

		if IsSentinel(raw) {
			lastErr = fmt.Errorf("model call failed: %s", raw)
		} else {
			cleaned := stripFences(raw)
			var value any
			if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
				lastErr = err
			} else if sch != nil {
				lastErr = sch.Validate(value)
			} else {
				lastErr = nil
			}
			if lastErr == nil {
				return json.RawMessage(cleaned), nil
			}
		}

		task = fmt.Sprintf("%s\n\nPrevious response was invalid JSON. Error: %v. Respond with valid JSON only.", prompt, lastErr)
	}

	return nil, &StructuredOutputError{
		Attempts:     maxRetries + 1,
		LastResponse: lastRaw,
		Err:          lastErr,
	}
}

// ConfidenceResult is a model reply with its self-assessed confidence.
type ConfidenceResult struct {
	Response   string
	Confidence float64
	Reasoning  string
}

var (
	confidenceLine = regexp.MustCompile(`(?m)^CONFIDENCE:\s*(\d+)`)
	reasoningLine  = regexp.MustCompile(`(?m)^REASONING:\s*(.+)$`)
)

// InvokeWithConfidence asks the model to close its reply with CONFIDENCE and
// REASONING lines, parses them, and fails with a *LowConfidenceError when
// the reported confidence falls below minConfidence (a 0 to 1 fraction). A
// reply without a parseable confidence counts as zero.
func (r *Runtime) InvokeWithConfidence(ctx context.Context, prompt string, opts InvokeOptions, minConfidence float64) (*ConfidenceResult, error) {
	task := prompt + "\n\nEnd your response with exactly two lines:\nCONFIDENCE: [0-100]\nREASONING: [one sentence explaining your confidence]"

	raw, err := r.Invoke(ctx, task, opts)
	if err != nil {
		return nil, err
	}
	if IsSentinel(raw) {
		return nil, fmt.Errorf("model call failed: %s", raw)
	}

	result := &ConfidenceResult{Response: raw}
	if m := confidenceLine.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			result.Confidence = float64(n) / 100.0
		}
	}
	if m := reasoningLine.FindStringSubmatch(raw); m != nil {
		result.Reasoning = strings.TrimSpace(m[1])
	}

	if result.Confidence < minConfidence {
		return nil, &LowConfidenceError{
			Confidence: result.Confidence,
			Threshold:  minConfidence,
			Reasoning:  result.Reasoning,
		}
	}
	return result, nil
}

// stripFences unwraps a markdown-fenced code block around a JSON reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	} else {
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
