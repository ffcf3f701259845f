// Package llm generates answers from retrieved context.
package llm

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds one generation call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens caps the generated answer length.
	DefaultMaxTokens = 1024

	// DefaultTemperature keeps answers grounded in the provided context.
	DefaultTemperature = 0.2
)

// Generator produces an answer for a question given supporting context.
type Generator interface {
	// Generate returns the model's answer for the prompt.
	Generate(ctx context.Context, system, prompt string) (string, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the generation backend is reachable.
	Available(ctx context.Context) bool
}
