package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
		retry    bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"storage", ErrCodeStoreUnavailable, CategoryStorage, SeverityError, false},
		{"upstream timeout", ErrCodeUpstreamTimeout, CategoryUpstream, SeverityWarning, true},
		{"rerank", ErrCodeRerankFailed, CategoryUpstream, SeverityWarning, true},
		{"validation", ErrCodeQueryTooShort, CategoryValidation, SeverityError, false},
		{"generation fatal", ErrCodeGenerationFailed, CategoryInternal, SeverityFatal, false},
		{"corrupt index fatal", ErrCodeCorruptIndex, CategoryStorage, SeverityFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "message", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retry, err.Retryable)
		})
	}
}

func TestErrorStringIncludesCode(t *testing.T) {
	err := New(ErrCodeQueryEmpty, "query must not be empty", nil)
	assert.Equal(t, "[ERR_403_QUERY_EMPTY] query must not be empty", err.Error())
}

func TestUnwrapAndIs(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeUpstreamUnavailable, cause)

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, New(ErrCodeUpstreamUnavailable, "other message", nil)))
	assert.False(t, stderrors.Is(err, New(ErrCodeInternal, "other", nil)))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail(t *testing.T) {
	err := ValidationError("query too short").
		WithDetail("min_length", "3").
		WithDetail("got", "1")

	assert.Equal(t, "3", err.Details["min_length"])
	assert.Equal(t, "1", err.Details["got"])
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(GenerationError("llm call failed", nil)))
	assert.False(t, IsFatal(UpstreamError("rerank down", nil)))
	assert.False(t, IsFatal(fmt.Errorf("plain error")))
	assert.False(t, IsFatal(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(TimeoutError("embed timed out", nil)))
	assert.False(t, IsRetryable(ValidationError("bad input")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeStoreUnavailable, GetCode(StorageError("db down", nil)))
	assert.Empty(t, GetCode(fmt.Errorf("plain error")))
}

func TestFormatForLog(t *testing.T) {
	err := UpstreamError("rerank unreachable", fmt.Errorf("dial tcp")).
		WithDetail("host", "localhost:8001")

	fields := FormatForLog(err)
	assert.Equal(t, ErrCodeUpstreamUnavailable, fields["error_code"])
	assert.Equal(t, "UPSTREAM", fields["category"])
	assert.Equal(t, "dial tcp", fields["cause"])
	assert.Equal(t, "localhost:8001", fields["detail_host"])

	plain := FormatForLog(fmt.Errorf("boom"))
	assert.Equal(t, "boom", plain["error"])

	assert.Nil(t, FormatForLog(nil))
}
