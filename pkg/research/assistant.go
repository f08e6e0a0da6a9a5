// Package research turns research descriptions into indexed papers and
// answers questions about them.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-assistant/pkg/ingest"
)

// Ingester fetches and indexes the papers matching a search query.
type Ingester interface {
	IngestTopic(ctx context.Context, query string) (*ingest.Result, error)
}

// PaperSearcher looks up indexed paper content for a question.
type PaperSearcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Agent answers a question with whatever tools it has, returning raw text.
type Agent interface {
	Run(ctx context.Context, query string) (string, error)
}

type Assistant struct {
	LLM         llms.Model
	Ingester    Ingester
	Papers      PaperSearcher
	Agent       Agent
	Temperature float64
	Logger      *slog.Logger

	maxRetries int
	backoff    time.Duration
}

func NewAssistant(llm llms.Model, ingester Ingester, papers PaperSearcher, agent Agent) *Assistant {
	return &Assistant{
		LLM:        llm,
		Ingester:   ingester,
		Papers:     papers,
		Agent:      agent,
		Logger:     slog.Default(),
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// WithLogger returns a copy of the assistant logging to l, ingestion included.
func (a *Assistant) WithLogger(l *slog.Logger) *Assistant {
	cp := *a
	cp.Logger = l
	if p, ok := a.Ingester.(*ingest.Pipeline); ok {
		cp.Ingester = p.WithLogger(l)
	}
	return &cp
}

// generateWithRetry asks the model for JSON and retries with a linear
// backoff until validator accepts the output.
func (a *Assistant) generateWithRetry(ctx context.Context, prompt string, validator func(string) error) (string, error) {
	var lastErr error

	for i := 0; i < a.maxRetries; i++ {
		if i > 0 {
			a.Logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(a.backoff * time.Duration(i)):
			}
		}

		resp, err := a.LLM.GenerateContent(ctx, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		}, llms.WithJSONMode(), llms.WithTemperature(a.Temperature))
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", a.maxRetries, lastErr)
}

// GenerateSearchQuery condenses a research description into an arXiv query.
func (a *Assistant) GenerateSearchQuery(ctx context.Context, description string) (string, error) {
	prompt, err := searchQueryPrompt.Format(map[string]any{"description": description})
	if err != nil {
		return "", fmt.Errorf("failed to build search prompt: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, a.LLM, prompt, llms.WithTemperature(a.Temperature))
	if err != nil {
		return "", fmt.Errorf("failed to generate search query: %w", err)
	}

	query := cleanQuery(out)
	if query == "" {
		return "", fmt.Errorf("model returned an empty search query")
	}
	a.Logger.Info("Generated search query", "query", query)
	return query, nil
}

func cleanQuery(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.Trim(s, "\"'`*")
	s = strings.TrimPrefix(s, "Search topic:")
	return strings.TrimSpace(s)
}

// UnderstandTopic derives a search query from description and ingests the
// matching papers.
func (a *Assistant) UnderstandTopic(ctx context.Context, description string) (*TopicResult, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("empty research description")
	}

	query, err := a.GenerateSearchQuery(ctx, description)
	if err != nil {
		return nil, err
	}

	res, err := a.Ingester.IngestTopic(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest papers for %q: %w", query, err)
	}

	papers := res.Papers
	if papers == nil {
		papers = []ingest.PaperOutcome{}
	}
	return &TopicResult{
		Description: description,
		SearchQuery: query,
		Papers:      papers,
		Chunks:      res.TotalChunks,
		Found:       res.Found(),
	}, nil
}

// AnswerQuery answers from the indexed papers when they have anything on
// query, otherwise through the agent.
func (a *Assistant) AnswerQuery(ctx context.Context, query string) (*ResearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	var chunks []string
	if a.Papers != nil {
		found, err := a.Papers.Search(ctx, query)
		if err != nil {
			a.Logger.Warn("Paper index lookup failed", "query", query, "error", err)
		}
		chunks = found
	}

	var (
		resp *ResearchResponse
		err  error
	)
	if len(chunks) > 0 {
		a.Logger.Info("Answering from indexed papers", "query", query, "chunks", len(chunks))
		resp, err = a.summarize(ctx, query, chunks)
	} else {
		a.Logger.Info("No indexed content, using agent", "query", query)
		resp, err = a.askAgent(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	if resp.Empty() {
		return nil, ErrNoResult
	}
	if resp.Question == "" {
		resp.Question = query
	}
	return resp, nil
}

func (a *Assistant) summarize(ctx context.Context, query string, chunks []string) (*ResearchResponse, error) {
	prompt, err := summaryPrompt.Format(map[string]any{
		"query":   query,
		"content": strings.Join(chunks, "\n\n"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build summary prompt: %w", err)
	}

	var resp *ResearchResponse
	_, err = a.generateWithRetry(ctx, prompt, func(content string) error {
		r, err := ParseResearchResponse(content)
		if err != nil {
			return err
		}
		if r.Empty() {
			return fmt.Errorf("%w: model returned an empty research response", ErrNoResult)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to summarize papers: %w", err)
	}
	return resp, nil
}

func (a *Assistant) askAgent(ctx context.Context, query string) (*ResearchResponse, error) {
	if a.Agent == nil {
		return nil, ErrNoResult
	}

	out, err := a.Agent.Run(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("agent failed: %w", err)
	}

	resp, err := ParseResearchResponse(out)
	if err != nil {
		a.Logger.Error("Error parsing agent response", "error", err, "raw_response", out)
		return nil, errors.Join(ErrNoResult, err)
	}
	return resp, nil
}
