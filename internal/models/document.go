package models

// Source identifies which external corpus a document came from.
type Source string

const (
	SourceEncyclopedia Source = "Encyclopedia"
	SourceForum        Source = "Forum"
	SourceArticle      Source = "Article"
)

// Document is a raw retrieval result. Retrievers produce it, the
// processor consumes it; nothing mutates it in between.
type Document struct {
	ID       string
	Title    string
	Source   Source
	URL      string
	Content  string
	Score    float64
	Metadata map[string]interface{}
}

// DocRef carries the citation fields a chunk keeps from its owning
// document. It is a copy, never a live reference back to the Document.
type DocRef struct {
	Title  string `json:"title"`
	Source Source `json:"source"`
	URL    string `json:"url"`
}

// TextChunk is a bounded slice of a document's cleaned text, the unit of
// embedding and retrieval. Embedding stays nil until an embedder attaches
// a vector.
type TextChunk struct {
	ID          string    `json:"chunk_id"`
	SourceDocID string    `json:"source_doc_id"`
	Content     string    `json:"content"`
	StartPos    int       `json:"start_pos"`
	EndPos      int       `json:"end_pos"`
	Embedding   []float32 `json:"-"`
	Doc         DocRef    `json:"doc"`
}
