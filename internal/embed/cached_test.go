package embed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	model string
	fail  bool
}

func (f *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("embedder unavailable")
	}
	return []float32{float32(len(text)), 0, 0}, nil
}

func (f *countingEmbedder) Dimensions() int                  { return 3 }
func (f *countingEmbedder) ModelName() string                { return f.model }
func (f *countingEmbedder) Available(_ context.Context) bool { return !f.fail }
func (f *countingEmbedder) Close() error                     { return nil }

func TestCachedEmbedderHitsCache(t *testing.T) {
	inner := &countingEmbedder{model: "test-model"}
	c := NewCachedEmbedder(inner, 10)

	v1, err := c.Embed(context.Background(), "same query")
	require.NoError(t, err)
	v2, err := c.Embed(context.Background(), "same query")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)

	_, err = c.Embed(context.Background(), "different query")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{model: "test-model", fail: true}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "query")
	require.Error(t, err)

	inner.fail = false
	vec, err := c.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.NotNil(t, vec)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedderKeyIncludesModel(t *testing.T) {
	a := NewCachedEmbedder(&countingEmbedder{model: "model-a"}, 10)
	b := NewCachedEmbedder(&countingEmbedder{model: "model-b"}, 10)

	assert.NotEqual(t, a.cacheKey("query"), b.cacheKey("query"))
}

func TestCachedEmbedderEvictsLRU(t *testing.T) {
	inner := &countingEmbedder{model: "test-model"}
	c := NewCachedEmbedder(inner, 2)

	_, _ = c.Embed(context.Background(), "one")
	_, _ = c.Embed(context.Background(), "two")
	_, _ = c.Embed(context.Background(), "three") // evicts "one"
	_, _ = c.Embed(context.Background(), "one")

	assert.Equal(t, 4, inner.calls)
}

func TestCachedEmbedderPassthrough(t *testing.T) {
	inner := &countingEmbedder{model: "test-model"}
	c := NewCachedEmbedder(inner, 10)

	assert.Equal(t, 3, c.Dimensions())
	assert.Equal(t, "test-model", c.ModelName())
	assert.True(t, c.Available(context.Background()))
	assert.NoError(t, c.Close())
}
