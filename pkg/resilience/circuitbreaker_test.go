package resilience

import (
	"errors"
	"testing"
	"time"

	"llm-arena/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "openai",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RetryTimeout:     time.Minute,
	}, logger.Discard())

	now := time.Now()
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresFilteredErrors(t *testing.T) {
	skip := errors.New("cancelled by caller")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "anthropic",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RetryTimeout:     time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, skip) },
	}, logger.Discard())

	assert.Equal(t, skip, cb.Execute(func() error { return skip }))
	assert.Equal(t, StateClosed, cb.GetState())
}
