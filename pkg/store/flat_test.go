package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/quill/internal/models"
)

func testChunk(id, docID string, embedding []float32) models.TextChunk {
	return models.TextChunk{
		ID:          id,
		SourceDocID: docID,
		Content:     "content of " + id,
		StartPos:    0,
		EndPos:      10,
		Embedding:   embedding,
		Doc: models.DocRef{
			Title:  "title of " + docID,
			Source: models.SourceEncyclopedia,
			URL:    "https://example.org/" + docID,
		},
	}
}

func newTestStore(t *testing.T) *Flat {
	t.Helper()
	s, err := NewFlat(FlatConfig{Path: t.TempDir(), Dimension: 4})
	require.NoError(t, err)
	return s
}

func TestFlatAddAndSearchSelfSimilarity(t *testing.T) {
	s := newTestStore(t)

	vec := []float32{0.1, 0.9, 0.2, 0.4}
	added, err := s.AddChunks([]models.TextChunk{testChunk("c0", "doc1", vec)})
	require.NoError(t, err)
	assert.True(t, added)

	results, err := s.Search(vec, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "c0", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

func TestFlatSearchRanking(t *testing.T) {
	s := newTestStore(t)

	chunks := []models.TextChunk{
		testChunk("near", "docA", []float32{1, 0, 0, 0}),
		testChunk("far", "docB", []float32{0, 0, 0, 1}),
		testChunk("mid", "docC", []float32{1, 1, 0, 0}),
	}
	_, err := s.AddChunks(chunks)
	require.NoError(t, err)

	results, err := s.Search([]float32{1, 0.1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "near", results[0].Chunk.ID)
	assert.Equal(t, "mid", results[1].Chunk.ID)
	assert.Equal(t, "far", results[2].Chunk.ID)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestFlatSkipsChunksWithoutEmbedding(t *testing.T) {
	s := newTestStore(t)

	added, err := s.AddChunks([]models.TextChunk{
		testChunk("embedded", "doc1", []float32{1, 0, 0, 0}),
		testChunk("bare", "doc1", nil),
	})
	require.NoError(t, err)
	assert.True(t, added)

	stats := s.Stats()
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, 1, stats.TotalVectors)
}

func TestFlatAddNothing(t *testing.T) {
	s := newTestStore(t)

	added, err := s.AddChunks([]models.TextChunk{testChunk("bare", "doc1", nil)})
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.AddChunks(nil)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestFlatTopKClamped(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddChunks([]models.TextChunk{
		testChunk("c0", "doc1", []float32{1, 0, 0, 0}),
		testChunk("c1", "doc1", []float32{0, 1, 0, 0}),
	})
	require.NoError(t, err)

	results, err := s.Search([]float32{1, 0, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFlatSearchEmptyStore(t *testing.T) {
	s := newTestStore(t)

	results, err := s.Search([]float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFlatSearchDimensionMismatch(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddChunks([]models.TextChunk{testChunk("c0", "doc1", []float32{1, 0, 0, 0})})
	require.NoError(t, err)

	_, err = s.Search([]float32{1, 0}, 5)
	assert.Error(t, err)
}

func TestFlatSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFlat(FlatConfig{Path: dir, Dimension: 4})
	require.NoError(t, err)

	_, err = s.AddChunks([]models.TextChunk{
		testChunk("c0", "docA", []float32{1, 0, 0, 0}),
		testChunk("c1", "docA", []float32{0, 1, 0, 0}),
		testChunk("c2", "docB", []float32{0, 0, 1, 0}),
	})
	require.NoError(t, err)
	require.NoError(t, s.Save())

	before := s.Stats()

	reloaded, err := NewFlat(FlatConfig{Path: dir, Dimension: 4})
	require.NoError(t, err)

	after := reloaded.Stats()
	assert.Equal(t, before.TotalVectors, after.TotalVectors)
	assert.Equal(t, before.TotalChunks, after.TotalChunks)
	assert.Equal(t, before.UniqueDocuments, after.UniqueDocuments)

	// Search still works and preserves citation metadata.
	results, err := reloaded.Search([]float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c0", results[0].Chunk.ID)
	assert.Equal(t, models.SourceEncyclopedia, results[0].Chunk.Doc.Source)
	assert.Equal(t, "https://example.org/docA", results[0].Chunk.Doc.URL)
}

func TestFlatLoadMissingIndexStartsEmpty(t *testing.T) {
	s, err := NewFlat(FlatConfig{Path: t.TempDir(), Dimension: 4})
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, "initialized", stats.Status)
	assert.Equal(t, 0, stats.TotalVectors)
}

func TestFlatClear(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFlat(FlatConfig{Path: dir, Dimension: 4})
	require.NoError(t, err)

	_, err = s.AddChunks([]models.TextChunk{testChunk("c0", "doc1", []float32{1, 0, 0, 0})})
	require.NoError(t, err)
	require.NoError(t, s.Save())

	require.NoError(t, s.Clear())

	stats := s.Stats()
	assert.Equal(t, 0, stats.TotalVectors)
	assert.Equal(t, 0, stats.TotalChunks)

	// Cleared on disk too: a reload starts empty.
	reloaded, err := NewFlat(FlatConfig{Path: dir, Dimension: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Stats().TotalVectors)
}

func TestFlatStats(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddChunks([]models.TextChunk{
		testChunk("c0", "docA", []float32{1, 0, 0, 0}),
		testChunk("c1", "docA", []float32{0, 1, 0, 0}),
		testChunk("c2", "docB", []float32{0, 0, 1, 0}),
	})
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, "initialized", stats.Status)
	assert.Equal(t, 3, stats.TotalVectors)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 2, stats.UniqueDocuments)
	assert.Equal(t, 4, stats.EmbeddingDimension)
}
