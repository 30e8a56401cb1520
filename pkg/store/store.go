// Package store persists chunk vectors plus chunk content and metadata,
// and serves nearest-neighbor searches over them. Two backends implement
// the same interface: a file-backed flat index and a pgvector table.
package store

import (
	"fmt"

	"github.com/quillforge/quill/internal/types"
)

type Config struct {
	Backend   string // "flat" or "pgvector"
	Path      string // flat: database directory
	URL       string // pgvector: connection string
	TableName string
	BatchSize int
	Dimension int
}

// New selects a vector store backend from configuration.
func New(config Config) (types.VectorStore, error) {
	switch config.Backend {
	case "", "flat":
		return NewFlat(FlatConfig{Path: config.Path, Dimension: config.Dimension})
	case "pgvector":
		return NewPgx(PgxConfig{
			ConnString: config.URL,
			TableName:  config.TableName,
			Dimension:  config.Dimension,
			BatchSize:  config.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Backend)
	}
}
