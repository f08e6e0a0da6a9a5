package tools

import (
	"fmt"

	lctools "github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"github.com/tmc/langchaingo/tools/wikipedia"
)

// NewWebSearch returns a DuckDuckGo search tool.
func NewWebSearch(maxResults int, userAgent string) (lctools.Tool, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	ddg, err := duckduckgo.New(maxResults, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to init DuckDuckGo search: %w", err)
	}
	return ddg, nil
}

// NewWikipedia returns a Wikipedia lookup returning topK pages trimmed to
// maxChars characters each.
func NewWikipedia(topK, maxChars int, userAgent string) lctools.Tool {
	wiki := wikipedia.New(userAgent)
	if topK > 0 {
		wiki.TopK = topK
	}
	if maxChars > 0 {
		wiki.DocMaxChars = maxChars
	}
	return wiki
}
