package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("rerank", WithMaxFailures(3))

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State())
	}

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerSuccessResets(t *testing.T) {
	cb := NewCircuitBreaker("embed", WithMaxFailures(2))

	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenAfterReset(t *testing.T) {
	cb := NewCircuitBreaker("rerank",
		WithMaxFailures(1),
		WithResetTimeout(10*time.Millisecond))

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())
}

func TestExecuteFailsFastWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker("rerank", WithMaxFailures(1))
	cb.RecordFailure()

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestExecuteHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("rerank",
		WithMaxFailures(1),
		WithResetTimeout(10*time.Millisecond))

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecuteHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("rerank",
		WithMaxFailures(1),
		WithResetTimeout(10*time.Millisecond))

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(func() error { return fmt.Errorf("still down") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitExecuteWithResultFallback(t *testing.T) {
	cb := NewCircuitBreaker("rerank", WithMaxFailures(1))
	cb.RecordFailure()

	result, err := CircuitExecuteWithResult(cb,
		func() ([]string, error) { return []string{"primary"}, nil },
		func() ([]string, error) { return []string{"fallback"}, nil })

	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, result)
}

func TestCircuitExecuteWithResultClosed(t *testing.T) {
	cb := NewCircuitBreaker("rerank")

	result, err := CircuitExecuteWithResult(cb,
		func() (string, error) { return "primary", nil },
		func() (string, error) { return "fallback", nil })

	require.NoError(t, err)
	assert.Equal(t, "primary", result)
}
