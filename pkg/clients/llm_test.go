package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLLMRejectsIncompleteOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing key", Options{Provider: ProviderGoogle, Model: "gemini-2.0-flash"}},
		{"missing model", Options{Provider: ProviderOpenAI, APIKey: "k"}},
		{"unknown provider", Options{Provider: "llama", Model: "m", APIKey: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm, err := NewLLM(context.Background(), tt.opts)
			assert.Error(t, err)
			assert.Nil(t, llm)
		})
	}
}
