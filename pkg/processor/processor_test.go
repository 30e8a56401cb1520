package processor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	p := NewWithConfig(Config{})

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses whitespace",
			input:    "hello   world\n\n\tagain",
			expected: "hello world again",
		},
		{
			name:     "strips urls",
			input:    "read more at https://example.com/a/b?q=1 for details",
			expected: "read more at for details",
		},
		{
			name:     "strips emails",
			input:    "contact admin@example.com for help",
			expected: "contact for help",
		},
		{
			name:     "normalizes punctuation runs",
			input:    "wait..... what?? no!!!",
			expected: "wait... what? no!",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.CleanText(tt.input))
		})
	}
}

func TestCleanTextIdempotent(t *testing.T) {
	p := NewWithConfig(Config{})

	inputs := []string{
		"plain sentence with nothing special.",
		"noisy   text... with!!! https://a.io and a@b.co mixed  in??",
		"tabs\tand\nnewlines   everywhere",
	}

	for _, in := range inputs {
		once := p.CleanText(in)
		assert.Equal(t, once, p.CleanText(once))
	}
}

func TestChunkTextEmpty(t *testing.T) {
	p := NewWithConfig(Config{ChunkSize: 128, ChunkOverlap: 16})
	assert.Empty(t, p.ChunkText("", "doc1"))
	assert.Empty(t, p.ChunkText("   \n\t  ", "doc1"))
}

func TestChunkTextSingleChunk(t *testing.T) {
	p := NewWithConfig(Config{ChunkSize: 100, ChunkOverlap: 10})

	chunks := p.ChunkText("First sentence here. Second sentence follows. Third one ends it.", "doc1")
	require.Len(t, chunks, 1)

	assert.Equal(t, "doc1_chunk_0", chunks[0].ID)
	assert.Equal(t, "doc1", chunks[0].SourceDocID)
	assert.Contains(t, chunks[0].Content, "First sentence here.")
	assert.Contains(t, chunks[0].Content, "Third one ends it.")
	assert.Equal(t, 0, chunks[0].StartPos)
	assert.Greater(t, chunks[0].EndPos, chunks[0].StartPos)
}

// Builds a document out of fixed-length sentences so chunk boundaries are
// predictable: 60 sentences of 20 words each, chunked at 512 words with a
// 50 word overlap, must land on 3 chunks with the overlap repeated.
func TestChunkTextOverlapScenario(t *testing.T) {
	p := NewWithConfig(Config{ChunkSize: 512, ChunkOverlap: 50})

	var sentences []string
	for i := 0; i < 60; i++ {
		words := make([]string, 20)
		for j := range words {
			words[j] = fmt.Sprintf("w%dx%d", i, j)
		}
		sentences = append(sentences, strings.Join(words, " ")+".")
	}
	text := strings.Join(sentences, " ")

	chunks := p.ChunkText(text, "doc1")
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.Equal(t, fmt.Sprintf("doc1_chunk_%d", i), c.ID)
	}

	// Every chunk respects the word ceiling.
	for _, c := range chunks {
		assert.LessOrEqual(t, len(strings.Fields(c.Content)), 512)
	}

	// The second chunk starts with the last 50 words of the first.
	first := strings.Fields(chunks[0].Content)
	tail := strings.Join(first[len(first)-50:], " ")
	assert.True(t, strings.HasPrefix(chunks[1].Content, tail),
		"chunk 1 should begin with chunk 0's 50-word tail")

	// No sentence is dropped: each one's first word appears somewhere.
	joined := strings.Join([]string{chunks[0].Content, chunks[1].Content, chunks[2].Content}, " ")
	for i := 0; i < 60; i++ {
		assert.Contains(t, joined, fmt.Sprintf("w%dx0", i))
	}
}

func TestChunkTextSingleSentenceOverflow(t *testing.T) {
	p := NewWithConfig(Config{ChunkSize: 5, ChunkOverlap: 2})

	// One clause with no commas cannot be split further; it becomes its
	// own oversized chunk rather than being dropped.
	chunks := p.ChunkText("one two three four five six seven eight nine ten", "doc1")
	require.Len(t, chunks, 1)
	assert.Equal(t, 10, len(strings.Fields(chunks[0].Content)))
}

func TestChunkTextLongSentenceSplitsOnClauses(t *testing.T) {
	p := NewWithConfig(Config{ChunkSize: 6, ChunkOverlap: 2})

	chunks := p.ChunkText("alpha beta gamma delta, epsilon zeta eta theta; iota kappa lambda mu.", "doc1")
	require.Greater(t, len(chunks), 1, "comma clauses should allow multiple chunks")

	for _, c := range chunks {
		assert.NotEmpty(t, c.Content)
	}
}

func TestChunkTextOffsets(t *testing.T) {
	p := NewWithConfig(Config{ChunkSize: 8, ChunkOverlap: 2})

	text := "Alpha beta gamma delta epsilon. Zeta eta theta iota kappa. Lambda mu nu xi omicron."
	chunks := p.ChunkText(text, "doc1")
	require.Greater(t, len(chunks), 1)

	cleaned := p.CleanText(text)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.StartPos, 0)
		assert.LessOrEqual(t, c.EndPos, len(cleaned))
		assert.Greater(t, c.EndPos, c.StartPos)
	}
}

func TestStats(t *testing.T) {
	p := NewWithConfig(Config{})

	text := "The cat sat on the mat. The dog ran fast."
	stats := p.Stats(text)

	assert.Equal(t, 10, stats.WordCount)
	assert.Equal(t, 2, stats.SentenceCount)
	assert.Equal(t, len(text), stats.CharacterCount)
	assert.InDelta(t, 5.0, stats.AvgWordsPerSentence, 1e-9)

	// Short plain sentences score near the top of the scale.
	assert.Greater(t, stats.ReadabilityScore, 80.0)
	assert.LessOrEqual(t, stats.ReadabilityScore, 100.0)
}

func TestStatsEmpty(t *testing.T) {
	p := NewWithConfig(Config{})
	assert.Equal(t, TextStats{}, p.Stats(""))
}

func TestStatsDenseProseLowersReadability(t *testing.T) {
	p := NewWithConfig(Config{})

	simple := p.Stats("The cat sat. The dog ran. We had fun.")
	dense := p.Stats("Multidimensional organizational infrastructures necessitate comprehensive interdisciplinary collaboration methodologies throughout heterogeneous institutional environments.")

	assert.Greater(t, simple.ReadabilityScore, dense.ReadabilityScore)
}

func TestCountSyllables(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"cat", 1},
		{"the", 1},
		{"hello", 2},
		{"beautiful", 3},
		{"code", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countSyllables(tt.word), tt.word)
	}
}

func TestExtractKeywords(t *testing.T) {
	p := NewWithConfig(Config{})

	text := "Quantum computing uses superposition. Google and IBM build quantum processors in California."
	keywords := p.ExtractKeywords(text, 5)

	assert.LessOrEqual(t, len(keywords), 5)
	assert.Contains(t, keywords, "quantum")

	assert.Empty(t, p.ExtractKeywords("", 5))
	assert.Empty(t, p.ExtractKeywords(text, 0))

	// Results are deduplicated.
	seen := make(map[string]int)
	for _, k := range p.ExtractKeywords(text, 10) {
		seen[k]++
		assert.Equal(t, 1, seen[k])
	}
}
