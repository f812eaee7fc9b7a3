// Package model implements the ports.ModelEndpoint contract against the
// Anthropic Messages API.
package model

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/rlmail/rlmail/internal/ports"
)

// DefaultTimeout bounds a single completion call when the request carries no
// timeout of its own.
const DefaultTimeout = 60 * time.Second

// AnthropicEndpoint issues completions against the Anthropic Messages API.
// Safe for concurrent use; the underlying SDK client is stateless per call.
type AnthropicEndpoint struct {
	client anthropic.Client
	log    zerolog.Logger
}

// NewAnthropicEndpoint creates an endpoint authenticated with the given API
// key.
func NewAnthropicEndpoint(apiKey string, log zerolog.Logger) (*AnthropicEndpoint, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	return &AnthropicEndpoint{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		log:    log,
	}, nil
}

// Complete sends one prompt and returns the reply text with token usage.
func (e *AnthropicEndpoint) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	start := time.Now()
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		e.log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("completion failed")
		return nil, e.classify(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := &ports.CompletionResult{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}

	e.log.Debug().
		Int("input_tokens", result.InputTokens).
		Int("output_tokens", result.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("completion ok")

	return result, nil
}

// classify maps SDK failures onto the endpoint error taxonomy.
func (e *AnthropicEndpoint) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ports.EndpointError{Kind: ports.EndpointErrTimeout, Err: err}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return &ports.EndpointError{Kind: ports.EndpointErrAuth, Err: err}
		}
	}

	return &ports.EndpointError{Kind: ports.EndpointErrOther, Err: err}
}
