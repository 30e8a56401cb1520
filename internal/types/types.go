package types

import (
	"context"

	"github.com/quillforge/quill/internal/models"
)

// Retriever fetches raw documents for a query from one external corpus.
// Retrieve returns whatever it managed to fetch plus the first error it
// absorbed; a failing source contributes an empty slice, never a panic.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, query string, maxDocs int) ([]models.Document, error)
	Available(ctx context.Context) bool
}

// EmbeddingBackend turns text into fixed-width vectors. Implementations
// must return a vector of Dimension() width even on encode failure.
type EmbeddingBackend interface {
	EncodeText(ctx context.Context, text string) ([]float32, error)
	EncodeTexts(ctx context.Context, texts []string) ([][]float32, error)
	EncodeChunks(ctx context.Context, chunks []models.TextChunk) ([]models.TextChunk, error)
	Dimension() int
	Info() map[string]interface{}
}

// SearchResult pairs a stored chunk with its similarity to a query vector.
type SearchResult struct {
	Chunk      models.TextChunk
	Similarity float64
}

// StoreStats summarizes a vector store's contents.
type StoreStats struct {
	Status             string `json:"status"`
	TotalVectors       int    `json:"total_vectors"`
	TotalChunks        int    `json:"total_chunks"`
	UniqueDocuments    int    `json:"unique_documents"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// VectorStore persists chunk vectors plus chunk content and metadata.
// AddChunks reports whether anything was stored; chunks without an
// embedding are skipped, not errors.
type VectorStore interface {
	AddChunks(chunks []models.TextChunk) (bool, error)
	Search(query []float32, topK int) ([]SearchResult, error)
	Save() error
	Clear() error
	Stats() StoreStats
	Close()
}

// Processor cleans raw text and splits it into overlapping chunks.
type Processor interface {
	CleanText(text string) string
	ChunkText(text, docID string) []models.TextChunk
	ExtractKeywords(text string, maxKeywords int) []string
}
