package embedder

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/quill/internal/models"
)

// unreachableURL returns a URL nothing listens on, so every encode call
// fails fast.
func unreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	return url
}

func TestOllamaEncodeFallsBackToZeroVectors(t *testing.T) {
	backend := NewOllama(OllamaConfig{
		BaseURL:   unreachableURL(t),
		Dimension: 8,
	})

	vec, err := backend.EncodeText(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)

	chunks, err := backend.EncodeChunks(context.Background(), []models.TextChunk{
		{ID: "c0", Content: "some content"},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, make([]float32, 8), chunks[0].Embedding)
}

func TestOllamaDefaults(t *testing.T) {
	backend := NewOllama(OllamaConfig{})

	assert.Equal(t, 768, backend.Dimension())

	info := backend.Info()
	assert.Equal(t, "ollama", info["backend"])
	assert.Equal(t, "nomic-embed-text:latest", info["model_name"])
}

func TestTextSimilarity(t *testing.T) {
	ctx := context.Background()
	backend := NewTFIDF(TFIDFConfig{MaxFeatures: 64})

	_, err := backend.EncodeChunks(ctx, []models.TextChunk{
		{ID: "c0", Content: "quantum computing with qubits"},
		{ID: "c1", Content: "cooking pasta with tomatoes"},
	})
	require.NoError(t, err)

	same, err := TextSimilarity(ctx, backend, "quantum qubits", "quantum qubits")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-6)

	cross, err := TextSimilarity(ctx, backend, "quantum qubits", "cooking pasta")
	require.NoError(t, err)
	assert.Less(t, cross, same)
}
