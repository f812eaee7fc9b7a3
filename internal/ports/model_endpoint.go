package ports

import (
	"context"
	"fmt"
	"time"
)

// CompletionRequest is one prompt sent to a language model endpoint.
type CompletionRequest struct {
	Model     string
	Prompt    string
	MaxTokens int
	Timeout   time.Duration
}

// CompletionResult carries the model's reply and its token accounting.
type CompletionResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// EndpointErrorKind classifies endpoint failures so the caller can map them
// to the right sentinel.
type EndpointErrorKind string

const (
	EndpointErrAuth    EndpointErrorKind = "auth"
	EndpointErrTimeout EndpointErrorKind = "timeout"
	EndpointErrOther   EndpointErrorKind = "other"
)

// EndpointError is a classified failure from a model endpoint.
type EndpointError struct {
	Kind EndpointErrorKind
	Err  error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("model endpoint %s error: %v", e.Kind, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// ModelEndpoint defines the contract for issuing completions against a
// language model.
type ModelEndpoint interface {
	// Complete sends one prompt and returns the reply text with token
	// usage. Failures are returned as *EndpointError where the cause is
	// classifiable.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}
