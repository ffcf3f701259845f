package errors

import (
	"fmt"
)

// CorpusError is the structured error type used across the pipeline.
// It carries enough context for error handling, logging, and HTTP mapping.
type CorpusError struct {
	// Code is the unique error code (e.g., "ERR_402_QUERY_TOO_SHORT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Upstream, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *CorpusError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CorpusError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works with CorpusError.
func (e *CorpusError) Is(target error) bool {
	if t, ok := target.(*CorpusError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CorpusError) WithDetail(key, value string) *CorpusError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a CorpusError with the given code and message.
// Category, severity, and the retryable flag are derived from the code.
func New(code string, message string, cause error) *CorpusError {
	return &CorpusError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CorpusError from an existing error.
func Wrap(code string, err error) *CorpusError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates an input validation error.
func ValidationError(message string) *CorpusError {
	return New(ErrCodeInvalidInput, message, nil)
}

// UpstreamError creates an error for a failed upstream service call.
func UpstreamError(message string, cause error) *CorpusError {
	return New(ErrCodeUpstreamUnavailable, message, cause)
}

// TimeoutError creates an error for an upstream deadline overrun.
func TimeoutError(message string, cause error) *CorpusError {
	return New(ErrCodeUpstreamTimeout, message, cause)
}

// GenerationError creates a fatal answer-generation error.
func GenerationError(message string, cause error) *CorpusError {
	return New(ErrCodeGenerationFailed, message, cause)
}

// StorageError creates a chunk store or index error.
func StorageError(message string, cause error) *CorpusError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CorpusError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error carries the retryable flag.
func IsRetryable(err error) bool {
	if ce, ok := err.(*CorpusError); ok {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity. Fatal errors abort
// the request instead of degrading.
func IsFatal(err error) bool {
	if ce, ok := err.(*CorpusError); ok {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" for non-CorpusError errors.
func GetCode(err error) string {
	if ce, ok := err.(*CorpusError); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category, or "" for non-CorpusError errors.
func GetCategory(err error) Category {
	if ce, ok := err.(*CorpusError); ok {
		return ce.Category
	}
	return ""
}
