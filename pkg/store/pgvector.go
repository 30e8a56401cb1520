package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/internal/types"
	"github.com/quillforge/quill/pkg/logging"
)

type PgxConfig struct {
	ConnString string
	TableName  string
	Dimension  int
	BatchSize  int
}

// Pgx stores chunks in a PostgreSQL table with a pgvector embedding
// column. Durability is per insert, so Save is a no-op.
type Pgx struct {
	config PgxConfig
	pool   *pgxpool.Pool
	log    zerolog.Logger
}

func NewPgx(config PgxConfig) (*Pgx, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.Dimension == 0 {
		config.Dimension = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Pgx{
		config: config,
		pool:   pool,
		log:    logging.Component("store"),
	}

	if err := s.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Pgx) initialize() error {
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			chunk_id TEXT PRIMARY KEY,
			source_doc_id TEXT NOT NULL,
			title TEXT,
			source TEXT,
			url TEXT,
			content TEXT,
			start_pos INTEGER,
			end_pos INTEGER,
			embedding vector(%d)
		)`, s.config.TableName, s.config.Dimension)

	if _, err = s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		s.config.TableName, s.config.TableName)

	if _, err = s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (s *Pgx) AddChunks(chunks []models.TextChunk) (bool, error) {
	ctx := context.Background()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (chunk_id, source_doc_id, title, source, url, content, start_pos, end_pos, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chunk_id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		s.config.TableName)

	added := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			s.log.Debug().Str("chunk", chunk.ID).Msg("skipping chunk without embedding")
			continue
		}

		_, err = tx.Exec(ctx, stmt,
			chunk.ID,
			chunk.SourceDocID,
			sanitizeUTF8(chunk.Doc.Title),
			string(chunk.Doc.Source),
			chunk.Doc.URL,
			sanitizeUTF8(chunk.Content),
			chunk.StartPos,
			chunk.EndPos,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert chunk: %w", err)
		}
		added++
	}

	if added == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (s *Pgx) Search(query []float32, topK int) ([]types.SearchResult, error) {
	ctx := context.Background()

	if topK <= 0 {
		return nil, nil
	}

	stmt := fmt.Sprintf(`
		SELECT chunk_id, source_doc_id, title, source, url, content, start_pos, end_pos,
		       1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		s.config.TableName)

	rows, err := s.pool.Query(ctx, stmt, pgvector.NewVector(query), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		var chunk models.TextChunk
		var source string
		var similarity float64
		err := rows.Scan(
			&chunk.ID,
			&chunk.SourceDocID,
			&chunk.Doc.Title,
			&source,
			&chunk.Doc.URL,
			&chunk.Content,
			&chunk.StartPos,
			&chunk.EndPos,
			&similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunk.Doc.Source = models.Source(source)
		results = append(results, types.SearchResult{Chunk: chunk, Similarity: similarity})
	}

	return results, rows.Err()
}

// Save is a no-op: every insert is already durable.
func (s *Pgx) Save() error { return nil }

func (s *Pgx) Clear() error {
	_, err := s.pool.Exec(context.Background(), fmt.Sprintf("TRUNCATE %s", s.config.TableName))
	if err != nil {
		return fmt.Errorf("failed to truncate table: %w", err)
	}
	s.log.Info().Msg("cleared vector store")
	return nil
}

func (s *Pgx) Stats() types.StoreStats {
	ctx := context.Background()

	var chunks, docs int
	stmt := fmt.Sprintf("SELECT COUNT(*), COUNT(DISTINCT source_doc_id) FROM %s", s.config.TableName)
	if err := s.pool.QueryRow(ctx, stmt).Scan(&chunks, &docs); err != nil {
		s.log.Warn().Err(err).Msg("failed to read store stats")
		return types.StoreStats{Status: "error", EmbeddingDimension: s.config.Dimension}
	}

	return types.StoreStats{
		Status:             "initialized",
		TotalVectors:       chunks,
		TotalChunks:        chunks,
		UniqueDocuments:    docs,
		EmbeddingDimension: s.config.Dimension,
	}
}

func (s *Pgx) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
