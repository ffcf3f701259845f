package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T, dims int, failures *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]any{{"name": "embeddinggemma:latest"}},
			})
		case "/api/embed":
			if failures != nil && atomic.AddInt32(failures, -1) >= 0 {
				http.Error(w, "model busy", http.StatusInternalServerError)
				return
			}
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			emb := make([]float64, dims)
			emb[0] = 3
			emb[1] = 4
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":      req.Model,
				"embeddings": [][]float64{emb},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaEmbedNormalizes(t *testing.T) {
	srv := newOllamaServer(t, 4, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       srv.URL,
		Model:      "embeddinggemma",
		Dimensions: 4,
	})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "loan agreement terms")
	require.NoError(t, err)
	require.Len(t, vec, 4)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-5)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-5)
}

func TestOllamaEmbedEmptyTextReturnsZeroVector(t *testing.T) {
	srv := newOllamaServer(t, 4, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Dimensions:      4,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 4), vec)
}

func TestOllamaEmbedRetriesTransientFailure(t *testing.T) {
	failures := int32(2)
	srv := newOllamaServer(t, 4, &failures)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Dimensions:      4,
		MaxRetries:      3,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestOllamaEmbedExhaustsRetries(t *testing.T) {
	failures := int32(100)
	srv := newOllamaServer(t, 4, &failures)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Dimensions:      4,
		MaxRetries:      2,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(context.Background(), "always fails")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestOllamaEmbedRejectsWrongDimension(t *testing.T) {
	srv := newOllamaServer(t, 8, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Dimensions:      4,
		MaxRetries:      1,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(context.Background(), "wrong dims")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestOllamaAvailable(t *testing.T) {
	srv := newOllamaServer(t, 4, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "embeddinggemma",
		Dimensions:      4,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer e.Close()

	assert.True(t, e.Available(context.Background()))

	srv.Close()
	assert.False(t, e.Available(context.Background()))
}

func TestOllamaHealthCheckFailsForMissingModel(t *testing.T) {
	srv := newOllamaServer(t, 4, nil)
	defer srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       srv.URL,
		Model:      "nonexistent-model",
		Dimensions: 4,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent-model")
}

func TestOllamaClosedEmbedderRejectsCalls(t *testing.T) {
	srv := newOllamaServer(t, 4, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Dimensions:      4,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "after close")
	require.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
