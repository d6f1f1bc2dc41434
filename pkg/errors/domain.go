package errors

import (
	stderrors "errors"
	"fmt"
)

// Domain errors shared by the arena packages. Services wrap them with %w and
// the HTTP layer maps them through FromError.
var (
	ErrModelNotFound       = stderrors.New("model not found")
	ErrSessionNotFound     = stderrors.New("session not found")
	ErrMessageNotFound     = stderrors.New("message not found")
	ErrConcurrencyConflict = stderrors.New("concurrent update conflict")
	ErrOrphanedReference   = stderrors.New("orphaned message reference")
	ErrBranchBusy          = stderrors.New("participant already has a streaming message")
	ErrInvalidOutcome      = stderrors.New("invalid match outcome")
	ErrInvalidArgument     = stderrors.New("invalid argument")
	ErrNotEnoughModels     = stderrors.New("not enough active models")
	ErrPreferenceNotFound  = stderrors.New("preference not found")
)

// AdapterError is a failure reported by a model backend: transport, auth,
// rate limit or timeout. It only ever affects the branch that produced it.
type AdapterError struct {
	Provider string
	Model    string
	Reason   string
	Timeout  bool
	Err      error
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if e.Timeout {
		return fmt.Sprintf("%s/%s: timeout: %s", e.Provider, e.Model, reason)
	}
	return fmt.Sprintf("%s/%s: %s", e.Provider, e.Model, reason)
}

// Unwrap returns the underlying transport error
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError wraps err as a backend failure
func NewAdapterError(provider, model string, err error) *AdapterError {
	return &AdapterError{Provider: provider, Model: model, Err: err}
}

// IsAdapterError reports whether err is or wraps an AdapterError
func IsAdapterError(err error) bool {
	var adapterErr *AdapterError
	return stderrors.As(err, &adapterErr)
}
