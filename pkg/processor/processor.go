// Package processor cleans raw document text and splits it into
// overlapping chunks sized for embedding and ranking.
package processor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/quillforge/quill/internal/models"
)

type Config struct {
	ChunkSize    int // chunk ceiling, in whitespace-separated tokens
	ChunkOverlap int // tail words carried into the next chunk
}

type Processor struct {
	config Config
}

var (
	urlRe         = regexp.MustCompile(`https?://[^\s]+`)
	emailRe       = regexp.MustCompile(`\S+@\S+`)
	ellipsisRe    = regexp.MustCompile(`\.{3,}`)
	bangRunRe     = regexp.MustCompile(`!{2,}`)
	questionRunRe = regexp.MustCompile(`\?{2,}`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
)

func NewWithConfig(config Config) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 50
	}

	return Processor{config: config}
}

// CleanText normalizes raw text: URLs and email addresses are stripped,
// whitespace is collapsed, non-printable characters are dropped and
// punctuation runs are reduced. The result is stable under a second pass.
func (p *Processor) CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = urlRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, "")
	text = ellipsisRe.ReplaceAllString(text, "...")
	text = bangRunRe.ReplaceAllString(text, "!")
	text = questionRunRe.ReplaceAllString(text, "?")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || unicode.IsGraphic(r) {
			b.WriteRune(r)
		}
	}
	text = spaceRunRe.ReplaceAllString(b.String(), " ")

	return strings.TrimSpace(text)
}

// ChunkText cleans text and splits it into overlapping chunks. Sentences
// are accumulated greedily until the running word count would exceed the
// configured chunk size; the sealed chunk's last ChunkOverlap words seed
// the next one. Empty input yields no chunks.
func (p *Processor) ChunkText(text, docID string) []models.TextChunk {
	text = p.CleanText(text)
	if text == "" {
		return nil
	}

	sentences := p.splitSentences(text)

	var chunks []models.TextChunk
	var current []string
	currentWords := 0
	currentStart := 0

	seal := func(endOffset int) {
		content := strings.TrimSpace(strings.Join(current, " "))
		if content == "" {
			return
		}
		chunks = append(chunks, models.TextChunk{
			ID:          fmt.Sprintf("%s_chunk_%d", docID, len(chunks)),
			SourceDocID: docID,
			Content:     content,
			StartPos:    currentStart,
			EndPos:      endOffset,
		})
	}

	for _, s := range sentences {
		words := len(strings.Fields(s.text))

		if currentWords > 0 && currentWords+words > p.config.ChunkSize {
			seal(s.start)

			// Seed the next chunk with the tail of the sealed one.
			overlap := p.tailWords(current, p.config.ChunkOverlap)
			current = current[:0]
			currentWords = 0
			if overlap != "" {
				current = append(current, overlap)
				currentWords = len(strings.Fields(overlap))
			}
			currentStart = s.start - len(overlap)
			if currentStart < 0 {
				currentStart = 0
			}
		}

		current = append(current, s.text)
		currentWords += words
	}

	if len(current) > 0 {
		seal(len(text))
	}

	return chunks
}

type sentence struct {
	text  string
	start int // offset into the cleaned text
}

// splitSentences breaks cleaned text on terminal punctuation. Sentences
// that could never fit inside a chunk are split again on commas and
// semicolons so the accumulator always makes progress.
func (p *Processor) splitSentences(text string) []sentence {
	var out []sentence

	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		atEnd := i == len(text)-1
		if c == '.' || c == '!' || c == '?' {
			// Only break when followed by a space or at end of text,
			// so "3.14" stays intact.
			if !atEnd && text[i+1] != ' ' {
				continue
			}
			out = append(out, sentence{text: strings.TrimSpace(text[start : i+1]), start: start})
			start = i + 1
			if !atEnd {
				start++ // skip the separating space
			}
		}
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			out = append(out, sentence{text: s, start: start})
		}
	}

	var split []sentence
	for _, s := range out {
		if len(strings.Fields(s.text)) <= p.config.ChunkSize {
			split = append(split, s)
			continue
		}
		split = append(split, p.splitOnClauses(s)...)
	}

	return split
}

func (p *Processor) splitOnClauses(s sentence) []sentence {
	var out []sentence
	start := 0
	for i := 0; i < len(s.text); i++ {
		c := s.text[i]
		if c == ',' || c == ';' {
			if clause := strings.TrimSpace(s.text[start : i+1]); clause != "" {
				out = append(out, sentence{text: clause, start: s.start + start})
			}
			start = i + 1
		}
	}
	if clause := strings.TrimSpace(s.text[start:]); clause != "" {
		out = append(out, sentence{text: clause, start: s.start + start})
	}
	if len(out) == 0 {
		return []sentence{s}
	}
	return out
}

func (p *Processor) tailWords(parts []string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(strings.Join(parts, " "))
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

// Common English stopwords, shared with keyword extraction.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "she": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "these": {}, "they": {}, "this": {},
	"to": {}, "was": {}, "we": {}, "were": {}, "which": {}, "will": {},
	"with": {}, "you": {}, "your": {},
}

// TextStats summarizes a text for display alongside generated drafts.
type TextStats struct {
	WordCount           int     `json:"word_count"`
	SentenceCount       int     `json:"sentence_count"`
	CharacterCount      int     `json:"character_count"`
	AvgWordsPerSentence float64 `json:"avg_words_per_sentence"`
	ReadabilityScore    float64 `json:"readability_score"`
}

// Stats computes word, sentence and character counts plus a simplified
// Flesch reading-ease score clamped to [0, 100].
func (p *Processor) Stats(text string) TextStats {
	if text == "" {
		return TextStats{}
	}

	words := strings.Fields(text)
	sentences := p.splitSentences(text)

	stats := TextStats{
		WordCount:      len(words),
		SentenceCount:  len(sentences),
		CharacterCount: len(text),
	}
	if len(sentences) == 0 || len(words) == 0 {
		return stats
	}

	stats.AvgWordsPerSentence = float64(len(words)) / float64(len(sentences))

	totalSyllables := 0
	for _, w := range words {
		totalSyllables += countSyllables(w)
	}
	avgSyllables := float64(totalSyllables) / float64(len(words))

	score := 206.835 - 1.015*stats.AvgWordsPerSentence - 84.6*avgSyllables
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	stats.ReadabilityScore = score

	return stats
}

// countSyllables approximates syllables by counting vowel groups, with
// a silent trailing 'e' discounted.
func countSyllables(word string) int {
	word = strings.ToLower(word)
	if len(word) <= 3 {
		return 1
	}

	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}

	if strings.HasSuffix(word, "e") {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}

// ExtractKeywords picks likely key terms: capitalized tokens and long
// tokens, with stopwords removed. Best effort; order is not guaranteed.
func (p *Processor) ExtractKeywords(text string, maxKeywords int) []string {
	if text == "" || maxKeywords <= 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var keywords []string

	for _, token := range strings.Fields(p.CleanText(text)) {
		word := strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) < 3 {
			continue
		}

		lower := strings.ToLower(word)
		if _, stop := stopwords[lower]; stop {
			continue
		}

		capitalized := unicode.IsUpper([]rune(word)[0])
		if !capitalized && len(word) < 7 {
			continue
		}

		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		keywords = append(keywords, lower)

		if len(keywords) >= maxKeywords {
			break
		}
	}

	return keywords
}
