// Package generator turns a ranked context bundle into a blog post
// draft using an LLM, with a template-assembled fallback when the model
// is unreachable.
package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/pkg/logging"
)

const systemPrompt = `You are a skilled technical writer. Write a well-structured
blog post in markdown on the given topic, grounded in the provided source
excerpts. Cite sources inline as [Source: Title]. Use headings, keep the tone
informative and do not invent facts beyond the excerpts.`

// promptChunkLimit bounds how many excerpts go into the prompt.
const promptChunkLimit = 5

type Config struct {
	Model     string
	BaseURL   string
	MaxTokens int
}

// BlogGenerator drafts blog posts from retrieved context.
type BlogGenerator struct {
	config Config
	llm    llms.Model
	log    zerolog.Logger
}

func New(config Config) (*BlogGenerator, error) {
	if config.Model == "" {
		config.Model = "llama3.2:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}

	g := &BlogGenerator{
		config: config,
		log:    logging.Component("generator"),
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		// Run without a model; Generate falls back to templates.
		g.log.Warn().Err(err).Msg("LLM unavailable, using template fallback")
		return g, nil
	}
	g.llm = llm

	return g, nil
}

// Generate drafts a blog post for a topic from the context bundle. An
// LLM failure degrades to a template-assembled draft rather than an
// error.
func (g *BlogGenerator) Generate(ctx context.Context, topic string, bundle *models.ContextBundle) (*models.BlogPost, error) {
	if bundle == nil {
		bundle = &models.ContextBundle{Query: topic}
	}

	if g.llm != nil {
		post, err := g.generateWithLLM(ctx, topic, bundle)
		if err == nil {
			return post, nil
		}
		g.log.Warn().Err(err).Str("topic", topic).Msg("generation failed, using fallback")
	}

	return g.fallbackPost(topic, bundle), nil
}

func (g *BlogGenerator) generateWithLLM(ctx context.Context, topic string, bundle *models.ContextBundle) (*models.BlogPost, error) {
	prompt := buildPrompt(topic, bundle)

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	resp, err := g.llm.GenerateContent(ctx, content, llms.WithMaxTokens(g.config.MaxTokens))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return nil, fmt.Errorf("model returned no content")
	}

	body := resp.Choices[0].Content
	title := extractTitle(body)
	if title == "" {
		title = defaultTitle(topic)
	}

	return &models.BlogPost{
		Title:    title,
		Content:  body,
		Sources:  collectSources(bundle),
		Metadata: g.metadata(topic, bundle, body, g.config.Model, false),
	}, nil
}

// buildPrompt assembles the generation prompt from the highest-ranked
// chunks, each attributed to its source.
func buildPrompt(topic string, bundle *models.ContextBundle) string {
	chunks := append([]models.ContextChunk(nil), bundle.Chunks...)
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	})
	if len(chunks) > promptChunkLimit {
		chunks = chunks[:promptChunkLimit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	if len(chunks) == 0 {
		b.WriteString("No source excerpts are available; write a general overview.\n")
		return b.String()
	}

	b.WriteString("Source excerpts:\n\n")
	for _, c := range chunks {
		excerpt := c.Content
		if len(excerpt) > 300 {
			excerpt = excerpt[:300]
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n\n", c.Source, c.Title, excerpt)
	}
	return b.String()
}

// fallbackPost assembles a readable draft directly from the chunks,
// grouped by source, when no model output is available.
func (g *BlogGenerator) fallbackPost(topic string, bundle *models.ContextBundle) *models.BlogPost {
	title := defaultTitle(topic)

	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to our exploration of %s. This guide walks through the essential concepts and key insights gathered from multiple sources.\n\n", topic)

	if len(bundle.Chunks) > 0 {
		bySource := make(map[string][]models.ContextChunk)
		var order []string
		for _, c := range bundle.Chunks {
			if len(bySource[c.Source]) == 0 {
				order = append(order, c.Source)
			}
			bySource[c.Source] = append(bySource[c.Source], c)
		}

		for _, source := range order {
			chunks := bySource[source]
			if len(chunks) > 2 {
				chunks = chunks[:2]
			}
			var parts []string
			for _, c := range chunks {
				excerpt := c.Content
				if len(excerpt) > 150 {
					excerpt = excerpt[:150]
				}
				parts = append(parts, excerpt)
			}
			fmt.Fprintf(&b, "## Insights from %s\n\n%s\n\n", source, strings.Join(parts, " "))
		}
	} else {
		fmt.Fprintf(&b, "## Understanding %s\n\nThis topic represents an important area of study with wide-ranging applications.\n\n", topic)
	}

	fmt.Fprintf(&b, "## Conclusion\n\nIn conclusion, %s offers many opportunities for exploration. The insights above provide a foundation for further learning.\n", topic)

	content := b.String()
	return &models.BlogPost{
		Title:    title,
		Content:  content,
		Sources:  collectSources(bundle),
		Metadata: g.metadata(topic, bundle, content, "template_fallback", true),
	}
}

func (g *BlogGenerator) metadata(topic string, bundle *models.ContextBundle, content, generatedBy string, fallback bool) map[string]interface{} {
	return map[string]interface{}{
		"topic":             topic,
		"sources_used":      bundle.SourcesUsed,
		"total_chunks_used": bundle.TotalChunks,
		"avg_similarity":    bundle.AvgSimilarity,
		"word_count":        len(strings.Fields(content)),
		"generated_by":      generatedBy,
		"fallback_used":     fallback,
	}
}

// collectSources deduplicates the bundle's chunks into a citation list
// ordered by relevance.
func collectSources(bundle *models.ContextBundle) []models.DocRef {
	type scored struct {
		ref   models.DocRef
		score float64
	}

	seen := make(map[string]bool)
	var refs []scored
	for _, c := range bundle.Chunks {
		key := c.Source + "_" + c.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, scored{
			ref:   models.DocRef{Title: c.Title, Source: models.Source(c.Source), URL: c.URL},
			score: c.Similarity,
		})
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].score > refs[j].score })

	out := make([]models.DocRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ref)
	}
	return out
}

func extractTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

func defaultTitle(topic string) string {
	return fmt.Sprintf("Understanding %s: A Comprehensive Guide", titleCase(topic))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
