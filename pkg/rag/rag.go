// Package rag orchestrates the pipeline: retrieve documents, chunk and
// embed them, store the vectors and assemble ranked context bundles for
// downstream generation.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/internal/types"
	"github.com/quillforge/quill/pkg/logging"
)

const (
	// probeTopK is the shallow search used to decide whether the store
	// already holds enough material for a query.
	probeTopK = 5
	// minProbeResults below this count triggers a retrieval pass.
	minProbeResults = 3
	// minSimilarity filters out chunks with no meaningful relation to
	// the query.
	minSimilarity = 0.01
)

type Config struct {
	MaxDocsPerSource int
	TopK             int
}

// Manager fans a query out to the registered document sources.
type Manager interface {
	RetrieveAll(ctx context.Context, query string, maxPerSource int) []models.Document
	Status(ctx context.Context) map[string]bool
	Sources() []string
}

// System wires retrieval, processing, embedding and storage into one
// query-to-context pipeline.
type System struct {
	manager   Manager
	processor types.Processor
	embedder  types.EmbeddingBackend
	store     types.VectorStore
	config    Config
	log       zerolog.Logger
}

func New(manager Manager, processor types.Processor, embedder types.EmbeddingBackend, store types.VectorStore, config Config) *System {
	if config.MaxDocsPerSource == 0 {
		config.MaxDocsPerSource = 5
	}
	if config.TopK == 0 {
		config.TopK = 10
	}

	return &System{
		manager:   manager,
		processor: processor,
		embedder:  embedder,
		store:     store,
		config:    config,
		log:       logging.Component("rag"),
	}
}

// PrepareContext assembles a ranked context bundle for a query. When the
// store holds too little relevant material, a retrieval pass runs first.
// An empty bundle is a valid outcome, not an error.
func (s *System) PrepareContext(ctx context.Context, query string) (*models.ContextBundle, error) {
	probe, err := s.SearchRelevant(ctx, query, probeTopK)
	if err != nil {
		return nil, err
	}

	if len(probe) < minProbeResults {
		s.log.Info().
			Str("query", query).
			Int("found", len(probe)).
			Msg("insufficient stored context, retrieving")
		if _, err := s.RetrieveAndStore(ctx, query); err != nil {
			s.log.Warn().Err(err).Msg("retrieval pass failed, continuing with stored data")
		}
	}

	results, err := s.SearchRelevant(ctx, query, s.config.TopK)
	if err != nil {
		return nil, err
	}

	return buildBundle(query, results), nil
}

// RetrieveAndStore fetches documents for a query from every available
// source and indexes them. Returns the number of chunks stored.
func (s *System) RetrieveAndStore(ctx context.Context, query string) (int, error) {
	documents := s.manager.RetrieveAll(ctx, query, s.config.MaxDocsPerSource)
	if len(documents) == 0 {
		s.log.Warn().Str("query", query).Msg("no documents retrieved")
		return 0, nil
	}

	return s.ProcessAndStore(ctx, documents)
}

// ProcessAndStore chunks, embeds and indexes a batch of documents.
func (s *System) ProcessAndStore(ctx context.Context, documents []models.Document) (int, error) {
	var chunks []models.TextChunk
	for _, doc := range documents {
		docID := fmt.Sprintf("%s_%s", strings.ToLower(string(doc.Source)), uuid.NewString()[:8])

		docChunks := s.processor.ChunkText(doc.Content, docID)
		for i := range docChunks {
			docChunks[i].Doc = models.DocRef{
				Title:  doc.Title,
				Source: doc.Source,
				URL:    doc.URL,
			}
		}
		chunks = append(chunks, docChunks...)
	}

	if len(chunks) == 0 {
		return 0, nil
	}

	embedded, err := s.embedder.EncodeChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}

	added, err := s.store.AddChunks(embedded)
	if err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	if !added {
		return 0, nil
	}

	if err := s.store.Save(); err != nil {
		return 0, fmt.Errorf("failed to persist store: %w", err)
	}

	s.log.Info().
		Int("documents", len(documents)).
		Int("chunks", len(embedded)).
		Msg("indexed documents")
	return len(embedded), nil
}

// SearchRelevant embeds the query and returns stored chunks above the
// minimum similarity, ordered by descending similarity.
func (s *System) SearchRelevant(ctx context.Context, query string, topK int) ([]types.SearchResult, error) {
	vec, err := s.embedder.EncodeText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.store.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Similarity >= minSimilarity {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Status reports the health of every pipeline component. It never
// returns an error; failures are folded into the map.
func (s *System) Status(ctx context.Context) (status map[string]interface{}) {
	status = map[string]interface{}{"status": "ok"}

	defer func() {
		if r := recover(); r != nil {
			status["status"] = "error"
			status["message"] = fmt.Sprint(r)
		}
	}()

	status["sources"] = s.manager.Status(ctx)
	status["store"] = s.store.Stats()
	status["embedder"] = s.embedder.Info()

	return status
}

// ClearDatabase drops all stored vectors, chunks and metadata.
func (s *System) ClearDatabase() error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	s.log.Info().Msg("cleared vector database")
	return nil
}

// Close releases the store's resources.
func (s *System) Close() {
	s.store.Close()
}

func buildBundle(query string, results []types.SearchResult) *models.ContextBundle {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	bundle := &models.ContextBundle{
		Query:       query,
		TotalChunks: len(results),
	}

	seen := make(map[string]bool)
	total := 0.0
	for _, r := range results {
		source := string(r.Chunk.Doc.Source)
		bundle.Chunks = append(bundle.Chunks, models.ContextChunk{
			Content:    r.Chunk.Content,
			Source:     source,
			Title:      r.Chunk.Doc.Title,
			URL:        r.Chunk.Doc.URL,
			Similarity: r.Similarity,
			ChunkID:    r.Chunk.ID,
		})
		if !seen[source] {
			seen[source] = true
			bundle.SourcesUsed = append(bundle.SourcesUsed, source)
		}
		total += r.Similarity
	}

	if len(results) > 0 {
		bundle.AvgSimilarity = total / float64(len(results))
	}

	return bundle
}
