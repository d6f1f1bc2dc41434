package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("model %q: %w", "gpt", ErrModelNotFound), http.StatusNotFound, "MODEL_NOT_FOUND"},
		{fmt.Errorf("retries exhausted: %w", ErrConcurrencyConflict), http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{ErrBranchBusy, http.StatusConflict, "BRANCH_BUSY"},
		{fmt.Errorf("bad: %w", ErrInvalidOutcome), http.StatusBadRequest, "INVALID_REQUEST"},
		{&AdapterError{Provider: "openai", Model: "gpt-4o", Reason: "rate limited"}, http.StatusBadGateway, "ADAPTER_ERROR"},
		{stderrors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		appErr := FromError(tc.err)
		assert.Equal(t, tc.status, appErr.StatusCode, tc.err.Error())
		assert.Equal(t, tc.code, appErr.Code)
		assert.True(t, stderrors.Is(appErr, tc.err) || stderrors.Unwrap(appErr) == tc.err)
	}
}

func TestFromErrorKeepsAppError(t *testing.T) {
	original := NewNotFoundError("X", "missing")
	assert.Same(t, original, FromError(original))
	assert.Nil(t, FromError(nil))
}

func TestAdapterErrorMessage(t *testing.T) {
	err := &AdapterError{Provider: "anthropic", Model: "claude", Timeout: true, Err: stderrors.New("context deadline exceeded")}
	assert.Contains(t, err.Error(), "timeout")
	assert.True(t, IsAdapterError(fmt.Errorf("branch a: %w", err)))
}
