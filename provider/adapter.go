package provider

import (
	"context"
	"errors"

	apperrors "llm-arena/backend/pkg/errors"
)

// Message is one turn of conversation history sent to a backend
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Usage is the token accounting a backend reports, if any
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Fragment is one element of a completion stream. A fragment carrying Err is
// always the last one; Usage, when reported, arrives just before close.
type Fragment struct {
	Text  string
	Usage *Usage
	Err   error
}

// Backend streams completions from one vendor
type Backend interface {
	Name() string
	// StreamCompletion starts a completion. The returned channel is closed
	// when the stream ends; cancelling ctx stops it early.
	StreamCompletion(ctx context.Context, history []Message, model string, opts Options) (<-chan Fragment, error)
}

// adapterError normalises any backend failure into *AdapterError
func adapterError(provider, model string, err error) error {
	var ae *apperrors.AdapterError
	if errors.As(err, &ae) {
		return ae
	}
	ae = apperrors.NewAdapterError(provider, model, err)
	ae.Timeout = errors.Is(err, context.DeadlineExceeded)
	return ae
}

// send delivers f unless ctx is done. Reports whether f was delivered.
func send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
