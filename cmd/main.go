package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/quillforge/quill/internal/types"
	cfgPkg "github.com/quillforge/quill/pkg/config"
	"github.com/quillforge/quill/pkg/embedder"
	"github.com/quillforge/quill/pkg/generator"
	"github.com/quillforge/quill/pkg/logging"
	"github.com/quillforge/quill/pkg/processor"
	"github.com/quillforge/quill/pkg/rag"
	"github.com/quillforge/quill/pkg/retriever"
	"github.com/quillforge/quill/pkg/store"
	"github.com/quillforge/quill/server"
)

type flags struct {
	configPath string
	topic      string
	serveAddr  string
	status     bool
	clear      bool
}

func main() {
	f := parseFlags()

	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		log.Fatal(err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  config.Logging.Level,
		Pretty: config.Logging.Pretty,
		Output: os.Stderr,
	})

	if err := run(f, config); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.topic, "topic", "", "Fetch and index documents for a topic, then exit")
	flag.StringVar(&f.serveAddr, "serve", "", "Run the WebSocket server on this address (e.g. :8080)")
	flag.BoolVar(&f.status, "status", false, "Print pipeline status and exit")
	flag.BoolVar(&f.clear, "clear", false, "Clear the vector database and exit")
	flag.Parse()
	return f
}

func buildSystem(config *cfgPkg.Config) (*rag.System, error) {
	timeout := time.Duration(config.Retrieval.TimeoutSeconds) * time.Second

	var retrievers []types.Retriever
	for _, source := range config.Retrieval.Sources {
		switch source {
		case "encyclopedia":
			retrievers = append(retrievers, retriever.NewEncyclopedia(retriever.EncyclopediaConfig{
				Timeout:   timeout,
				RateLimit: config.Retrieval.RateLimit,
			}))
		case "forum":
			retrievers = append(retrievers, retriever.NewForum(retriever.ForumConfig{
				Timeout:   timeout,
				RateLimit: config.Retrieval.RateLimit,
			}))
		case "article":
			retrievers = append(retrievers, retriever.NewArticle(retriever.ArticleConfig{
				Timeout:   timeout,
				RateLimit: config.Retrieval.RateLimit,
			}))
		default:
			return nil, fmt.Errorf("unknown retrieval source %q", source)
		}
	}
	manager := retriever.NewManager(retrievers...)

	proc := processor.NewWithConfig(processor.Config{
		ChunkSize:    config.Processor.ChunkSize,
		ChunkOverlap: config.Processor.ChunkOverlap,
	})

	var backend types.EmbeddingBackend
	switch config.Embedder.Backend {
	case "", "ollama":
		backend = embedder.NewOllama(embedder.OllamaConfig{
			Model:     config.Embedder.Model,
			BaseURL:   config.Embedder.BaseURL,
			Dimension: config.Embedder.Dimension,
		})
	case "tfidf":
		backend = embedder.NewTFIDF(embedder.TFIDFConfig{})
	default:
		return nil, fmt.Errorf("unknown embedder backend %q", config.Embedder.Backend)
	}

	vectorStore, err := store.New(store.Config{
		Backend:   config.Store.Backend,
		Path:      config.Store.Path,
		URL:       config.Store.URL,
		TableName: config.Store.TableName,
		BatchSize: config.Store.BatchSize,
		Dimension: backend.Dimension(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	return rag.New(manager, &proc, backend, vectorStore, rag.Config{
		MaxDocsPerSource: config.Retrieval.MaxDocsPerSource,
		TopK:             config.Retrieval.TopK,
	}), nil
}

func run(f flags, config *cfgPkg.Config) error {
	system, err := buildSystem(config)
	if err != nil {
		return err
	}
	defer system.Close()

	switch {
	case f.status:
		return printStatus(system)
	case f.clear:
		if err := system.ClearDatabase(); err != nil {
			return err
		}
		color.Green("✓ Vector database cleared")
		return nil
	case f.topic != "":
		return fetchAndIndex(system, f.topic)
	case f.serveAddr != "":
		gen, err := generator.New(generator.Config{
			Model:     config.LLM.Model,
			BaseURL:   config.LLM.BaseURL,
			MaxTokens: config.LLM.MaxTokens,
		})
		if err != nil {
			return err
		}
		return server.New(system, gen).Run(f.serveAddr)
	default:
		return interactive(system, config)
	}
}

func printStatus(system *rag.System) error {
	status := system.Status(context.Background())
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func fetchAndIndex(system *rag.System, topic string) error {
	color.Blue("\nFetching and indexing documents for %q\n", topic)

	spinner := getSpinner(" Retrieving from sources...")
	stored, err := system.RetrieveAndStore(context.Background(), topic)
	spinner.Finish()
	fmt.Print("\n")

	if err != nil {
		return err
	}
	if stored == 0 {
		color.Yellow("No documents retrieved for %q", topic)
		return nil
	}

	color.Green("✓ Indexed %d chunks\n", stored)
	return nil
}

func interactive(system *rag.System, config *cfgPkg.Config) error {
	gen, err := generator.New(generator.Config{
		Model:     config.LLM.Model,
		BaseURL:   config.LLM.BaseURL,
		MaxTokens: config.LLM.MaxTokens,
	})
	if err != nil {
		return err
	}

	color.Cyan("\nQuery your knowledge base (type 'exit' to quit)")
	color.Cyan("Prefix a topic with 'draft:' to generate a blog post\n")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.ToLower(query) == "exit" {
			break
		}
		if query == "" {
			continue
		}

		if topic, ok := strings.CutPrefix(query, "draft:"); ok {
			draftPost(system, gen, strings.TrimSpace(topic))
			continue
		}

		spinner := getSpinner(" Preparing context...")
		bundle, err := system.PrepareContext(context.Background(), query)
		spinner.Finish()
		fmt.Print("\n")

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}
		if bundle.TotalChunks == 0 {
			color.Yellow("No relevant context found for %q\n", query)
			continue
		}

		color.Green("✓ %d chunks from %s (avg similarity %.3f)\n",
			bundle.TotalChunks, strings.Join(bundle.SourcesUsed, ", "), bundle.AvgSimilarity)
		for i, c := range bundle.Chunks {
			excerpt := c.Content
			if len(excerpt) > 160 {
				excerpt = excerpt[:160] + "..."
			}
			fmt.Printf("%2d. [%.3f] %s: %s\n    %s\n", i+1, c.Similarity, c.Source, c.Title, excerpt)
		}
	}

	return nil
}

func draftPost(system *rag.System, gen *generator.BlogGenerator, topic string) {
	if topic == "" {
		color.Red("Usage: draft: <topic>")
		return
	}

	ctx := context.Background()

	spinner := getSpinner(" Preparing context...")
	bundle, err := system.PrepareContext(ctx, topic)
	spinner.Finish()
	fmt.Print("\n")

	if err != nil {
		color.Red("Error: %v\n", err)
		return
	}

	spinner = getSpinner(" Drafting post...")
	post, err := gen.Generate(ctx, topic, bundle)
	spinner.Finish()
	fmt.Print("\n")

	if err != nil {
		color.Red("Error: %v\n", err)
		return
	}

	color.Cyan("\n%s\n\n", post.Title)
	fmt.Println(post.Content)

	if len(post.Sources) > 0 {
		color.Cyan("\nSources:")
		for _, s := range post.Sources {
			fmt.Printf("  - [%s] %s (%s)\n", s.Source, s.Title, s.URL)
		}
	}
}
