package models

// ContextChunk is one ranked entry in a context bundle. Source is the
// plain source name, ready for JSON clients.
type ContextChunk struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
	ChunkID    string  `json:"chunk_id"`
}

// ContextBundle is the hand-off artifact from a retrieval-and-rank cycle
// to content generation. It is built fresh per request and never persisted.
// An empty bundle (TotalChunks == 0) is a valid result, not an error.
type ContextBundle struct {
	Query         string         `json:"query"`
	Chunks        []ContextChunk `json:"context_chunks"`
	SourcesUsed   []string       `json:"sources_used"`
	TotalChunks   int            `json:"total_chunks"`
	AvgSimilarity float64        `json:"avg_similarity"`
}

// BlogPost is what the generator produces from a context bundle.
type BlogPost struct {
	Title    string                 `json:"title"`
	Content  string                 `json:"content"`
	Sources  []DocRef               `json:"sources"`
	Metadata map[string]interface{} `json:"metadata"`
}
