// Package embedder provides the embedding backends used for chunk and
// query vectorization: a dense model served by Ollama and a lightweight
// TF-IDF space for environments without a model server.
package embedder

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/internal/types"
	"github.com/quillforge/quill/pkg/logging"
)

type OllamaConfig struct {
	Model     string
	BaseURL   string
	Dimension int
}

// Ollama encodes text with a model served by an Ollama instance. When the
// client cannot be initialized or an encode call fails, it degrades to
// zero vectors of the configured width so the pipeline keeps moving.
type Ollama struct {
	config OllamaConfig
	llm    *ollama.LLM
	log    zerolog.Logger
}

func NewOllama(config OllamaConfig) *Ollama {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Dimension == 0 {
		config.Dimension = 768
	}

	log := logging.Component("embedder")

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		log.Warn().Err(err).Str("model", config.Model).
			Msg("embedding model unavailable, falling back to zero vectors")
		llm = nil
	}

	return &Ollama{config: config, llm: llm, log: log}
}

func (e *Ollama) Dimension() int { return e.config.Dimension }

func (e *Ollama) EncodeText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeTexts(ctx, []string{text})
	if err != nil {
		return make([]float32, e.config.Dimension), nil
	}
	return vecs[0], nil
}

func (e *Ollama) EncodeTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if e.llm == nil {
		return e.zeroVectors(len(texts)), nil
	}

	embeddings, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		e.log.Warn().Err(err).Int("texts", len(texts)).
			Msg("encode failed, returning zero vectors")
		return e.zeroVectors(len(texts)), nil
	}

	// Pad or truncate to the configured width so downstream code always
	// sees vectors of the same dimension.
	for i, v := range embeddings {
		if len(v) != e.config.Dimension {
			fixed := make([]float32, e.config.Dimension)
			copy(fixed, v)
			embeddings[i] = fixed
		}
	}

	return embeddings, nil
}

func (e *Ollama) EncodeChunks(ctx context.Context, chunks []models.TextChunk) ([]models.TextChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vecs, err := e.EncodeTexts(ctx, texts)
	if err != nil {
		return chunks, err
	}

	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}
	return chunks, nil
}

func (e *Ollama) Info() map[string]interface{} {
	status := "loaded"
	if e.llm == nil {
		status = "not_loaded"
	}
	return map[string]interface{}{
		"status":              status,
		"backend":             "ollama",
		"model_name":          e.config.Model,
		"embedding_dimension": e.config.Dimension,
	}
}

func (e *Ollama) zeroVectors(n int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, e.config.Dimension)
	}
	return vecs
}

// TextSimilarity encodes both texts with the given backend and returns
// their cosine similarity.
func TextSimilarity(ctx context.Context, backend types.EmbeddingBackend, text1, text2 string) (float64, error) {
	v1, err := backend.EncodeText(ctx, text1)
	if err != nil {
		return 0, err
	}
	v2, err := backend.EncodeText(ctx, text2)
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(v1, v2), nil
}
