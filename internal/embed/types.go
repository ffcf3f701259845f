// Package embed generates query embeddings for vector retrieval.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultDimensions matches the corpus embedding model output.
	DefaultDimensions = 768

	// DefaultMaxRetries is the number of attempts per embedding request.
	DefaultMaxRetries = 3

	// DefaultWarmTimeout applies when the model served a request recently.
	DefaultWarmTimeout = 15 * time.Second

	// DefaultColdTimeout applies when the model may need loading first.
	DefaultColdTimeout = 60 * time.Second

	// ModelUnloadThreshold is how long Ollama keeps an idle model resident.
	ModelUnloadThreshold = 5 * time.Minute
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates a normalized embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedding service is reachable
	// and the configured model is installed.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
