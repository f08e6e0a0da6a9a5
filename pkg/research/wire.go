package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"github.com/mikeboe/research-assistant/pkg/clients"
	"github.com/mikeboe/research-assistant/pkg/config"
	"github.com/mikeboe/research-assistant/pkg/database"
	"github.com/mikeboe/research-assistant/pkg/dedup"
	"github.com/mikeboe/research-assistant/pkg/embeddings"
	"github.com/mikeboe/research-assistant/pkg/ingest"
	"github.com/mikeboe/research-assistant/pkg/research/tools"
	"github.com/mikeboe/research-assistant/pkg/splitter"
	"github.com/mikeboe/research-assistant/pkg/vectorstore"
)

// Components is a fully wired assistant together with the parts the HTTP
// server and CLI use directly.
type Components struct {
	Assistant *Assistant
	Pipeline  *ingest.Pipeline
	Papers    *PaperIndex
	Seen      dedup.Store
}

func (c *Components) Close() error {
	if c.Seen == nil {
		return nil
	}
	return c.Seen.Close()
}

// NewComponents wires every dependency described by cfg on top of db.
func NewComponents(ctx context.Context, cfg *config.Config, db *database.PostgresDB) (*Components, error) {
	if err := db.EnsureCollection(ctx, cfg.CollectionName, cfg.EmbeddingDimension); err != nil {
		return nil, fmt.Errorf("failed to prepare collection %s: %w", cfg.CollectionName, err)
	}
	store, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return nil, err
	}

	apiKey := cfg.GoogleApiKey
	if clients.Provider(cfg.LLMProvider) == clients.ProviderOpenAI {
		apiKey = cfg.OpenAIApiKey
	}
	llm, err := clients.NewLLM(ctx, clients.Options{
		Provider: clients.Provider(cfg.LLMProvider),
		Model:    cfg.FastModel,
		APIKey:   apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init LLM: %w", err)
	}

	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("failed to init embedder: %w", err)
	}

	seen, err := dedup.Open(ctx, cfg.DedupBackend, cfg.DedupPath, db.Pool)
	if err != nil {
		return nil, fmt.Errorf("failed to open dedup table: %w", err)
	}

	var extractor tools.Extractor = tools.LocalPDFExtractor{}
	if cfg.Extractor == "mistral" {
		extractor = tools.NewMistralOCRExtractor(cfg.MistralApiKey)
	}

	pipeline := ingest.NewPipeline(
		tools.NewArxivClient(cfg.ArxivBaseURL, cfg.UserAgent),
		tools.NewDownloader(cfg.TempDir, cfg.UserAgent),
		extractor,
		splitter.New(splitter.Options{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			CombineUnder: cfg.ChunkCombineUnder,
			MaxChars:     cfg.ChunkMaxChars,
		}),
		embedder,
		store,
		seen,
		ingest.Options{MaxResults: cfg.ArxivMaxResults, Concurrency: cfg.IngestConcurrency},
	)

	papers := NewPaperIndex(embedder, store, cfg.PaperTopK, cfg.PaperMinScore)

	external := []NamedTool{
		{Name: "wikipedia", Tool: tools.NewWikipedia(cfg.WikipediaTopK, cfg.WikipediaMaxChars, cfg.UserAgent)},
		{Name: "save_to_txt", Tool: tools.NewSaveTool(cfg.SaveFile)},
	}
	if web, err := tools.NewWebSearch(cfg.WebSearchMaxResults, cfg.UserAgent); err != nil {
		slog.Warn("Web search tool unavailable", "error", err)
	} else {
		external = append([]NamedTool{{Name: "search", Tool: web}}, external...)
	}

	agentModel, err := gemini.NewModel(ctx, cfg.ReasoningModel, &genai.ClientConfig{
		APIKey: cfg.GoogleApiKey,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create agent model: %w", err), seen.Close())
	}
	fallback, err := NewADKAgent(agentModel, NewToolset(pipeline, papers, external...))
	if err != nil {
		return nil, errors.Join(err, seen.Close())
	}

	assistant := NewAssistant(llm, pipeline, papers, fallback)
	assistant.Temperature = cfg.Temperature

	return &Components{
		Assistant: assistant,
		Pipeline:  pipeline,
		Papers:    papers,
		Seen:      seen,
	}, nil
}
