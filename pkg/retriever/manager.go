package retriever

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/internal/types"
	"github.com/quillforge/quill/pkg/logging"
)

// Manager fans a query out to every registered retriever concurrently
// and merges the results. A source that errors or is unavailable
// contributes nothing; the batch never fails as a whole.
type Manager struct {
	retrievers []types.Retriever
	log        zerolog.Logger
}

func NewManager(retrievers ...types.Retriever) *Manager {
	return &Manager{
		retrievers: retrievers,
		log:        logging.Component("retriever"),
	}
}

// Sources lists the names of the registered retrievers.
func (m *Manager) Sources() []string {
	names := make([]string, 0, len(m.retrievers))
	for _, r := range m.retrievers {
		names = append(names, r.Name())
	}
	return names
}

// RetrieveAll queries every available source concurrently and returns
// the combined documents, capped at maxPerSource per retriever.
func (m *Manager) RetrieveAll(ctx context.Context, query string, maxPerSource int) []models.Document {
	available := m.available(ctx)
	if len(available) == 0 {
		m.log.Warn().Str("query", query).Msg("no sources available")
		return nil
	}

	var (
		mu        sync.Mutex
		documents []models.Document
		wg        sync.WaitGroup
	)

	for _, r := range available {
		wg.Add(1)
		go func(r types.Retriever) {
			defer wg.Done()

			docs, err := r.Retrieve(ctx, query, maxPerSource)
			if err != nil {
				m.log.Warn().Err(err).Str("source", r.Name()).Msg("retrieval failed")
				return
			}

			mu.Lock()
			documents = append(documents, docs...)
			mu.Unlock()

			m.log.Info().
				Str("source", r.Name()).
				Int("documents", len(docs)).
				Msg("retrieved documents")
		}(r)
	}
	wg.Wait()

	return documents
}

// Status probes every retriever concurrently and reports availability
// by source name.
func (m *Manager) Status(ctx context.Context) map[string]bool {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	status := make(map[string]bool, len(m.retrievers))

	for _, r := range m.retrievers {
		wg.Add(1)
		go func(r types.Retriever) {
			defer wg.Done()
			ok := r.Available(ctx)
			mu.Lock()
			status[r.Name()] = ok
			mu.Unlock()
		}(r)
	}
	wg.Wait()

	return status
}

func (m *Manager) available(ctx context.Context) []types.Retriever {
	status := m.Status(ctx)

	var available []types.Retriever
	for _, r := range m.retrievers {
		if status[r.Name()] {
			available = append(available, r)
		} else {
			m.log.Warn().Str("source", r.Name()).Msg("source unavailable, skipping")
		}
	}
	return available
}
