package store

import (
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/internal/types"
	"github.com/quillforge/quill/pkg/embedder"
	"github.com/quillforge/quill/pkg/logging"
)

const (
	indexFile    = "index.bin"
	metadataFile = "metadata.json"
	chunksFile   = "chunks.gob"

	indexMagic = uint32(0x51494458) // "QIDX"
)

type FlatConfig struct {
	Path      string
	Dimension int
}

// chunkMeta is the per-row metadata record, keyed by row index in the
// metadata map.
type chunkMeta struct {
	ChunkID     string `json:"chunk_id"`
	SourceDocID string `json:"source_doc_id"`
	Content     string `json:"content"`
	StartPos    int    `json:"start_pos"`
	EndPos      int    `json:"end_pos"`
}

// Flat is a brute-force inner-product index over unit-normalized vectors,
// persisted as three co-located artifacts: a binary vector matrix, a JSON
// metadata map and a gob chunk blob. The three stay in lockstep: a row is
// only appended together with its metadata record and chunk entry.
//
// One writer at a time; concurrent searches are safe.
type Flat struct {
	config FlatConfig
	log    zerolog.Logger

	mu       sync.RWMutex
	vectors  [][]float32
	metadata map[string]chunkMeta // row index (as string) -> record
	chunks   map[string]models.TextChunk
}

func NewFlat(config FlatConfig) (*Flat, error) {
	if config.Path == "" {
		config.Path = "./vector_store"
	}
	if config.Dimension == 0 {
		config.Dimension = 768
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f := &Flat{
		config:   config,
		log:      logging.Component("store"),
		metadata: make(map[string]chunkMeta),
		chunks:   make(map[string]models.TextChunk),
	}

	f.load()
	return f, nil
}

// load restores persisted state. A missing index file means no prior
// state; a corrupt artifact degrades to an empty store instead of failing.
func (f *Flat) load() {
	indexPath := filepath.Join(f.config.Path, indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		return
	}

	vectors, err := readIndex(indexPath, f.config.Dimension)
	if err != nil {
		f.log.Warn().Err(err).Msg("could not read index file, starting empty")
		return
	}

	metadata := make(map[string]chunkMeta)
	if data, err := os.ReadFile(filepath.Join(f.config.Path, metadataFile)); err == nil {
		if err := json.Unmarshal(data, &metadata); err != nil {
			f.log.Warn().Err(err).Msg("could not parse metadata file, starting empty")
			return
		}
	}

	chunks := make(map[string]models.TextChunk)
	if file, err := os.Open(filepath.Join(f.config.Path, chunksFile)); err == nil {
		err := gob.NewDecoder(file).Decode(&chunks)
		file.Close()
		if err != nil {
			f.log.Warn().Err(err).Msg("could not decode chunk blob, starting empty")
			return
		}
	}

	f.vectors = vectors
	f.metadata = metadata
	f.chunks = chunks
	f.log.Info().Int("vectors", len(vectors)).Msg("loaded existing vector index")
}

// AddChunks appends embedded chunks to the index. Embeddings are
// normalized to unit length so inner-product search equals cosine
// similarity. Chunks without an embedding are skipped. Returns false
// only when nothing was added.
func (f *Flat) AddChunks(chunks []models.TextChunk) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	added := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			f.log.Debug().Str("chunk", chunk.ID).Msg("skipping chunk without embedding")
			continue
		}
		if len(chunk.Embedding) != f.config.Dimension {
			f.log.Warn().Str("chunk", chunk.ID).Int("got", len(chunk.Embedding)).
				Int("want", f.config.Dimension).Msg("skipping chunk with wrong dimension")
			continue
		}

		vec := make([]float32, len(chunk.Embedding))
		copy(vec, chunk.Embedding)
		embedder.Normalize(vec)

		row := len(f.vectors)
		f.vectors = append(f.vectors, vec)
		f.metadata[strconv.Itoa(row)] = chunkMeta{
			ChunkID:     chunk.ID,
			SourceDocID: chunk.SourceDocID,
			Content:     chunk.Content,
			StartPos:    chunk.StartPos,
			EndPos:      chunk.EndPos,
		}
		f.chunks[chunk.ID] = chunk
		added++
	}

	if added == 0 {
		return false, nil
	}

	f.log.Debug().Int("added", added).Int("total", len(f.vectors)).
		Msg("added chunks to vector index")
	return true, nil
}

// Search returns the topK nearest chunks by cosine similarity. topK is
// clamped to the index size. Rows whose metadata or chunk entry is
// missing are skipped; the maps are expected to be consistent but search
// stays defensive.
func (f *Flat) Search(query []float32, topK int) ([]types.SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.vectors) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(query) != f.config.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d",
			len(query), f.config.Dimension)
	}

	q := make([]float32, len(query))
	copy(q, query)
	embedder.Normalize(q)

	type scored struct {
		row int
		sim float64
	}
	scores := make([]scored, len(f.vectors))
	for i, vec := range f.vectors {
		var dot float64
		for j := range vec {
			dot += float64(vec[j]) * float64(q[j])
		}
		scores[i] = scored{row: i, sim: dot}
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].sim > scores[j].sim })

	if topK > len(scores) {
		topK = len(scores)
	}

	results := make([]types.SearchResult, 0, topK)
	for _, s := range scores[:topK] {
		meta, ok := f.metadata[strconv.Itoa(s.row)]
		if !ok {
			continue
		}
		chunk, ok := f.chunks[meta.ChunkID]
		if !ok {
			continue
		}
		results = append(results, types.SearchResult{Chunk: chunk, Similarity: s.sim})
	}
	return results, nil
}

// Save writes the three artifacts to the store directory.
func (f *Flat) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := writeIndex(filepath.Join(f.config.Path, indexFile), f.vectors, f.config.Dimension); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	data, err := json.MarshalIndent(f.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.config.Path, metadataFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	file, err := os.Create(filepath.Join(f.config.Path, chunksFile))
	if err != nil {
		return fmt.Errorf("failed to create chunk blob: %w", err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(f.chunks); err != nil {
		return fmt.Errorf("failed to encode chunk blob: %w", err)
	}

	f.log.Info().Int("vectors", len(f.vectors)).Msg("saved vector index")
	return nil
}

// Clear discards in-memory state and removes the persisted artifacts.
func (f *Flat) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.vectors = nil
	f.metadata = make(map[string]chunkMeta)
	f.chunks = make(map[string]models.TextChunk)

	for _, name := range []string{indexFile, metadataFile, chunksFile} {
		path := filepath.Join(f.config.Path, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	f.log.Info().Msg("cleared vector store")
	return nil
}

func (f *Flat) Stats() types.StoreStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	docs := make(map[string]struct{})
	for _, chunk := range f.chunks {
		docs[chunk.SourceDocID] = struct{}{}
	}

	return types.StoreStats{
		Status:             "initialized",
		TotalVectors:       len(f.vectors),
		TotalChunks:        len(f.chunks),
		UniqueDocuments:    len(docs),
		EmbeddingDimension: f.config.Dimension,
	}
}

func (f *Flat) Close() {}

// writeIndex serializes the vector matrix: a magic marker, dimension and
// row count, then row-major float32 values, all little-endian.
func writeIndex(path string, vectors [][]float32, dim int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := []uint32{indexMagic, uint32(dim), uint32(len(vectors))}
	if err := binary.Write(file, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, vec := range vectors {
		if err := binary.Write(file, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	return nil
}

func readIndex(path string, dim int) ([][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	header := make([]uint32, 3)
	if err := binary.Read(file, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	if header[0] != indexMagic {
		return nil, fmt.Errorf("not an index file")
	}
	if int(header[1]) != dim {
		return nil, fmt.Errorf("index dimension %d does not match configured %d", header[1], dim)
	}

	vectors := make([][]float32, header[2])
	for i := range vectors {
		vec := make([]float32, dim)
		if err := binary.Read(file, binary.LittleEndian, vec); err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}
