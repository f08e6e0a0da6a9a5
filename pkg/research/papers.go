package research

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mikeboe/research-assistant/pkg/embeddings"
	"github.com/mikeboe/research-assistant/pkg/vectorstore"
)

// VectorStore is the part of the vector store PaperIndex reads from.
type VectorStore interface {
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, sourceFilter string) ([]vectorstore.SimilaritySearchResult, error)
	GetContentBySource(ctx context.Context, source string) ([]vectorstore.Document, error)
	GetContentByMetadata(ctx context.Context, filter map[string]interface{}) ([]vectorstore.Document, error)
}

// PaperIndex answers semantic lookups against the ingested papers.
type PaperIndex struct {
	embedder embeddings.Embedder
	store    VectorStore
	topK     int
	minScore float64
	logger   *slog.Logger
}

func NewPaperIndex(embedder embeddings.Embedder, store VectorStore, topK int, minScore float64) *PaperIndex {
	if topK <= 0 {
		topK = 1
	}
	return &PaperIndex{
		embedder: embedder,
		store:    store,
		topK:     topK,
		minScore: minScore,
		logger:   slog.Default(),
	}
}

func (p *PaperIndex) WithLogger(l *slog.Logger) *PaperIndex {
	cp := *p
	cp.logger = l
	return &cp
}

// Search returns the content of the chunks closest to query.
func (p *PaperIndex) Search(ctx context.Context, query string) ([]string, error) {
	hits, err := p.search(ctx, query, "")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Document.Content)
	}
	return out, nil
}

// SearchFormatted is Search rendered for a model, one block per hit with its
// source and score.
func (p *PaperIndex) SearchFormatted(ctx context.Context, query, source string) (string, error) {
	hits, err := p.search(ctx, query, source)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No matching content found in the indexed papers.", nil
	}

	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		src := "unknown"
		if s, ok := h.Document.Metadata["source"].(string); ok {
			src = s
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("[Source]: %s\n", src))
		if title, ok := h.Document.Metadata["title"].(string); ok && title != "" {
			sb.WriteString(fmt.Sprintf("[Title]: %s\n", title))
		}
		sb.WriteString(fmt.Sprintf("[Score]: %.3f\n[Content]: %s", h.Score, h.Document.Content))
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (p *PaperIndex) search(ctx context.Context, query, source string) ([]vectorstore.SimilaritySearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	emb, err := p.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	results, err := p.store.SimilaritySearch(ctx, emb, p.topK, source)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := results[:0]
	for _, r := range results {
		if (p.minScore > 0 && r.Score < p.minScore) || strings.TrimSpace(r.Document.Content) == "" {
			continue
		}
		hits = append(hits, r)
	}
	p.logger.Info("Paper index search", "query", query, "results", len(results), "kept", len(hits))
	return hits, nil
}

// ContentBySource returns the full indexed text of one paper, chunks in order.
func (p *PaperIndex) ContentBySource(ctx context.Context, source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("empty source")
	}
	docs, err := p.store.GetContentBySource(ctx, source)
	if err != nil {
		return "", fmt.Errorf("failed to find content: %w", err)
	}
	if len(docs) == 0 {
		return "No indexed content for source: " + source, nil
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return chunkIndex(docs[i]) < chunkIndex(docs[j])
	})
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n\n"), nil
}

// ContentByMetadata returns the chunks matching a metadata filter that may
// use $and, $or and $not.
func (p *PaperIndex) ContentByMetadata(ctx context.Context, filter map[string]interface{}) (string, error) {
	docs, err := p.store.GetContentByMetadata(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("failed to find content: %w", err)
	}

	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("[Content]: %s", d.Content))
		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("\n[%s]: %v", k, d.Metadata[k]))
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n"), nil
}

// chunkIndex reads the chunk number stored at ingestion; JSON decoding turns
// it into a float64.
func chunkIndex(d vectorstore.Document) float64 {
	switch v := d.Metadata["chunk"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
