package embedder

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/pkg/logging"
)

type TFIDFConfig struct {
	MaxFeatures int // vocabulary cap
}

// TFIDF is the lightweight embedding backend: a term-frequency /
// inverse-document-frequency space over unigrams and bigrams, with
// English stopwords removed. The vocabulary is fitted once, over the
// first batch of chunks, and only transformed afterwards; terms first
// seen later are invisible to search.
type TFIDF struct {
	config TFIDFConfig
	log    zerolog.Logger

	mu     sync.RWMutex
	fitted bool
	vocab  map[string]int // term -> feature index
	idf    []float64
}

func NewTFIDF(config TFIDFConfig) *TFIDF {
	if config.MaxFeatures == 0 {
		config.MaxFeatures = 1000
	}
	return &TFIDF{
		config: config,
		log:    logging.Component("embedder"),
	}
}

func (t *TFIDF) Dimension() int { return t.config.MaxFeatures }

// Fitted reports whether the vocabulary has been built.
func (t *TFIDF) Fitted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fitted
}

// Reset discards the fitted vocabulary so the next chunk batch refits it.
func (t *TFIDF) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fitted = false
	t.vocab = nil
	t.idf = nil
}

func (t *TFIDF) EncodeText(ctx context.Context, text string) ([]float32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.transform(text), nil
}

func (t *TFIDF) EncodeTexts(ctx context.Context, texts []string) ([][]float32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = t.transform(text)
	}
	return out, nil
}

// EncodeChunks fits the vocabulary on the first batch it sees, then
// attaches a transformed vector to every chunk.
func (t *TFIDF) EncodeChunks(ctx context.Context, chunks []models.TextChunk) ([]models.TextChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	t.mu.Lock()
	if !t.fitted {
		t.fit(texts)
	}
	for i := range chunks {
		chunks[i].Embedding = t.transform(texts[i])
	}
	t.mu.Unlock()

	return chunks, nil
}

func (t *TFIDF) Info() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := "loaded"
	if !t.fitted {
		status = "not_fitted"
	}
	return map[string]interface{}{
		"status":              status,
		"backend":             "tfidf",
		"model_name":          "TF-IDF",
		"features":            t.config.MaxFeatures,
		"vocabulary_size":     len(t.vocab),
		"embedding_dimension": t.config.MaxFeatures,
	}
}

// fit builds the vocabulary and idf weights from a corpus of texts.
// Caller holds the write lock.
func (t *TFIDF) fit(texts []string) {
	docFreq := make(map[string]int)
	termFreq := make(map[string]int)

	for _, text := range texts {
		terms := tokenize(text)
		seen := make(map[string]struct{})
		for _, term := range terms {
			termFreq[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				docFreq[term]++
			}
		}
	}

	// Keep the most frequent terms, ties broken lexicographically so the
	// feature layout is deterministic.
	terms := make([]string, 0, len(termFreq))
	for term := range termFreq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if termFreq[terms[i]] != termFreq[terms[j]] {
			return termFreq[terms[i]] > termFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > t.config.MaxFeatures {
		terms = terms[:t.config.MaxFeatures]
	}

	n := float64(len(texts))
	t.vocab = make(map[string]int, len(terms))
	t.idf = make([]float64, len(terms))
	for i, term := range terms {
		t.vocab[term] = i
		// Smoothed idf, as in scikit-learn.
		t.idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	t.fitted = true

	t.log.Debug().Int("vocabulary", len(t.vocab)).Int("documents", len(texts)).
		Msg("fitted tf-idf vocabulary")
}

// transform maps a text into the fitted space. Before fitting, or for
// texts sharing no vocabulary, the result is a zero vector. Caller holds
// at least the read lock.
func (t *TFIDF) transform(text string) []float32 {
	vec := make([]float32, t.config.MaxFeatures)
	if !t.fitted {
		return vec
	}

	counts := make(map[int]int)
	for _, term := range tokenize(text) {
		if idx, ok := t.vocab[term]; ok {
			counts[idx]++
		}
	}

	for idx, count := range counts {
		vec[idx] = float32(float64(count) * t.idf[idx])
	}
	return Normalize(vec)
}

// tokenize lowercases, strips punctuation, drops stopwords and emits
// unigrams plus adjacent-word bigrams.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	words := fields[:0]
	for _, w := range fields {
		if _, stop := tfidfStopwords[w]; !stop && len(w) > 1 {
			words = append(words, w)
		}
	}

	terms := make([]string, 0, len(words)*2)
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}

var tfidfStopwords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "all": {},
	"an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"because": {}, "been": {}, "before": {}, "being": {}, "below": {},
	"between": {}, "both": {}, "but": {}, "by": {}, "can": {}, "did": {},
	"do": {}, "does": {}, "doing": {}, "down": {}, "during": {}, "each": {},
	"few": {}, "for": {}, "from": {}, "further": {}, "had": {}, "has": {},
	"have": {}, "having": {}, "he": {}, "her": {}, "here": {}, "hers": {},
	"him": {}, "his": {}, "how": {}, "i": {}, "if": {}, "in": {}, "into": {},
	"is": {}, "it": {}, "its": {}, "just": {}, "me": {}, "more": {},
	"most": {}, "my": {}, "no": {}, "nor": {}, "not": {}, "now": {},
	"of": {}, "off": {}, "on": {}, "once": {}, "only": {}, "or": {},
	"other": {}, "our": {}, "out": {}, "over": {}, "own": {}, "same": {},
	"she": {}, "should": {}, "so": {}, "some": {}, "such": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "those": {}, "through": {},
	"to": {}, "too": {}, "under": {}, "until": {}, "up": {}, "very": {},
	"was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "while": {}, "who": {}, "whom": {}, "why": {}, "will": {},
	"with": {}, "you": {}, "your": {}, "yours": {},
}
