package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusqa/corpusqa/internal/errors"
)

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaChatMessage{Role: "assistant", Content: "The notice period is thirty days [1]."},
			Done:    true,
		})
	}))
	defer srv.Close()

	g := NewOllamaGenerator(OllamaConfig{Host: srv.URL, Model: "llama3.1"})

	answer, err := g.Generate(context.Background(), SystemPrompt, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "The notice period is thirty days [1].", answer)
}

func TestOllamaGenerateFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewOllamaGenerator(OllamaConfig{Host: srv.URL, Model: "llama3.1"})

	_, err := g.Generate(context.Background(), SystemPrompt, "prompt")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, errors.ErrCodeGenerationFailed, errors.GetCode(err))
}

func TestOllamaAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	g := NewOllamaGenerator(OllamaConfig{Host: srv.URL, Model: "llama3.1"})
	assert.True(t, g.Available(context.Background()))

	srv.Close()
	assert.False(t, g.Available(context.Background()))
}
