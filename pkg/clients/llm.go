package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names a langchaingo backend.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderOpenAI Provider = "openai"
)

// Options selects the backend and model for NewLLM.
type Options struct {
	Provider Provider
	Model    string
	APIKey   string
}

// NewLLM builds the chat model used for query generation and summaries.
func NewLLM(ctx context.Context, opts Options) (llms.Model, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("missing API key for provider %s", opts.Provider)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("missing model name for provider %s", opts.Provider)
	}

	switch opts.Provider {
	case ProviderGoogle, "":
		// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
		llm, err := googleai.New(ctx, googleai.WithAPIKey(opts.APIKey), googleai.WithDefaultModel(opts.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to init Google AI: %w", err)
		}
		return llm, nil
	case ProviderOpenAI:
		llm, err := openai.New(openai.WithToken(opts.APIKey), openai.WithModel(opts.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to init OpenAI: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("invalid provider: %s", opts.Provider)
	}
}
