// Package errors provides structured error handling for the retrieval
// pipeline.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (chunk store, indexes)
//   - 3XX: Upstream errors (embedding, rerank, generation services)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStorage    Category = "STORAGE"
	CategoryUpstream   Category = "UPSTREAM"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the request; no degraded path exists.
	SeverityFatal Severity = "FATAL"
	// SeverityError means the operation failed but the process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning means a degraded path absorbed the failure.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreUnavailable  = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeChunkNotFound     = "ERR_202_CHUNK_NOT_FOUND"
	ErrCodeCorruptIndex      = "ERR_203_CORRUPT_INDEX"
	ErrCodeDimensionMismatch = "ERR_204_DIMENSION_MISMATCH"

	// Upstream errors (300-399)
	ErrCodeUpstreamTimeout     = "ERR_301_UPSTREAM_TIMEOUT"
	ErrCodeUpstreamUnavailable = "ERR_302_UPSTREAM_UNAVAILABLE"
	ErrCodeEmbeddingFailed     = "ERR_303_EMBEDDING_FAILED"
	ErrCodeRerankFailed        = "ERR_304_RERANK_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeQueryTooShort = "ERR_402_QUERY_TOO_SHORT"
	ErrCodeQueryEmpty    = "ERR_403_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeSearchFailed     = "ERR_502_SEARCH_FAILED"
	ErrCodeNoResults        = "ERR_503_NO_RESULTS"
	ErrCodeGenerationFailed = "ERR_504_GENERATION_FAILED"
)

// categoryFromCode extracts the category from an error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryUpstream
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on the error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeGenerationFailed, ErrCodeCorruptIndex:
		// Generation has no fallback: a missing answer cannot be
		// degraded into a partial one.
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeUpstreamTimeout, ErrCodeUpstreamUnavailable,
		ErrCodeEmbeddingFailed, ErrCodeRerankFailed:
		return true
	default:
		return false
	}
}
