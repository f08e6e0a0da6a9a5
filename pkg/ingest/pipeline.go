// Package ingest downloads papers, extracts their text and stores the
// embedded chunks in the vector index, skipping papers recorded in the
// dedup table.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/research-assistant/pkg/dedup"
	"github.com/mikeboe/research-assistant/pkg/embeddings"
	"github.com/mikeboe/research-assistant/pkg/research/tools"
	"github.com/mikeboe/research-assistant/pkg/vectorstore"
)

// Outcome statuses.
const (
	StatusIngested = "ingested"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

type PaperSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]tools.Paper, error)
}

type Downloader interface {
	Download(ctx context.Context, url string) (string, error)
}

type Splitter interface {
	SplitText(text string) ([]string, error)
}

type DocumentStore interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
	DeleteBySource(ctx context.Context, source string) (int64, error)
}

// PaperOutcome reports what happened to a single paper or file.
type PaperOutcome struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// Result summarises one IngestTopic call.
type Result struct {
	Query       string         `json:"query"`
	Papers      []PaperOutcome `json:"papers"`
	TotalChunks int            `json:"total_chunks"`
}

// Found reports whether the search returned any paper at all.
func (r *Result) Found() bool {
	return r != nil && len(r.Papers) > 0
}

// Count returns the number of outcomes with the given status.
func (r *Result) Count(status string) int {
	n := 0
	for _, p := range r.Papers {
		if p.Status == status {
			n++
		}
	}
	return n
}

type Options struct {
	MaxResults  int
	Concurrency int
	Logger      *slog.Logger
}

type Pipeline struct {
	searcher   PaperSearcher
	downloader Downloader
	extractor  tools.Extractor
	splitter   Splitter
	embedder   embeddings.Embedder
	store      DocumentStore
	seen       dedup.Store

	maxResults  int
	concurrency int
	logger      *slog.Logger
}

func NewPipeline(
	searcher PaperSearcher,
	downloader Downloader,
	extractor tools.Extractor,
	splitter Splitter,
	embedder embeddings.Embedder,
	store DocumentStore,
	seen dedup.Store,
	opts Options,
) *Pipeline {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		searcher:    searcher,
		downloader:  downloader,
		extractor:   extractor,
		splitter:    splitter,
		embedder:    embedder,
		store:       store,
		seen:        seen,
		maxResults:  opts.MaxResults,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// WithLogger returns a copy of the pipeline that logs to l.
func (p *Pipeline) WithLogger(l *slog.Logger) *Pipeline {
	cp := *p
	cp.logger = l
	return &cp
}

// IngestTopic searches arXiv for query and ingests every hit. Individual
// paper failures are reported in the result; only a failed search is an error.
func (p *Pipeline) IngestTopic(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	papers, err := p.searcher.Search(ctx, query, p.maxResults)
	if err != nil {
		return nil, fmt.Errorf("arXiv search failed: %w", err)
	}
	papers = uniqueByURL(papers)

	res := &Result{Query: query, Papers: make([]PaperOutcome, len(papers))}
	if len(papers) == 0 {
		p.logger.Info("No papers found", "query", query)
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, paper := range papers {
		g.Go(func() error {
			res.Papers[i] = p.ingestPaper(gctx, paper)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range res.Papers {
		res.TotalChunks += o.Chunks
	}

	p.logger.Info("Ingestion finished",
		"query", query,
		"papers", len(papers),
		"ingested", res.Count(StatusIngested),
		"skipped", res.Count(StatusSkipped),
		"failed", res.Count(StatusFailed),
		"chunks", res.TotalChunks)

	return res, ctx.Err()
}

func (p *Pipeline) ingestPaper(ctx context.Context, paper tools.Paper) PaperOutcome {
	out := PaperOutcome{Title: paper.Title, URL: paper.PDFURL}

	if p.alreadySeen(ctx, paper.PDFURL) {
		p.logger.Info("Skipping already ingested paper", "title", paper.Title, "url", paper.PDFURL)
		out.Status = StatusSkipped
		return out
	}

	p.logger.Info("Downloading paper", "title", paper.Title, "url", paper.PDFURL)
	path, err := p.downloader.Download(ctx, paper.PDFURL)
	if err != nil {
		return p.failed(out, "download", err)
	}

	text, err := p.extractor.Extract(ctx, path)
	p.remove(path)
	if err != nil {
		return p.failed(out, "extract", err)
	}

	n, err := p.storeText(ctx, paper.PDFURL, text, map[string]interface{}{
		"title":     paper.Title,
		"published": paper.Published,
		"authors":   strings.Join(paper.Authors, ", "),
	})
	if err != nil {
		return p.failed(out, "index", err)
	}

	p.markSeen(ctx, paper.PDFURL, paper.Title)
	out.Status = StatusIngested
	out.Chunks = n
	return out
}

// IngestFile indexes a local PDF under key, usually its original file name;
// an empty key means the base name of path. The dedup table records key
// together with a digest of the file, so the same bytes are skipped while a
// changed file under a known name replaces the chunks stored for it.
func (p *Pipeline) IngestFile(ctx context.Context, path, key string) (*PaperOutcome, error) {
	if key == "" {
		key = filepath.Base(path)
	}
	title := strings.TrimSuffix(key, filepath.Ext(key))
	out := &PaperOutcome{Title: title, URL: key}

	digest, err := fileDigest(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	seenKey := key + "#" + digest

	if p.alreadySeen(ctx, seenKey) {
		p.logger.Info("Skipping already ingested file", "file", key)
		out.Status = StatusSkipped
		return out, nil
	}

	text, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", key, err)
	}

	n, err := p.storeText(ctx, key, text, map[string]interface{}{
		"title": title,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", key, err)
	}

	p.markSeen(ctx, seenKey, title)
	out.Status = StatusIngested
	out.Chunks = n
	p.logger.Info("Ingested file", "file", key, "chunks", n)
	return out, nil
}

// storeText chunks, embeds and stores text under source, replacing whatever
// was stored for it before. meta is copied onto every chunk.
func (p *Pipeline) storeText(ctx context.Context, source, text string, meta map[string]interface{}) (int, error) {
	chunks, err := p.splitter.SplitText(text)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no text to index")
	}

	vectors, err := p.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		m := make(map[string]interface{}, len(meta)+2)
		for k, v := range meta {
			m[k] = v
		}
		m["source"] = source
		m["chunk"] = i
		docs[i] = vectorstore.Document{
			Content:   chunk,
			Metadata:  m,
			Embedding: vectors[i],
		}
	}

	stale, err := p.store.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	if stale > 0 {
		p.logger.Info("Replacing previously indexed chunks", "source", source, "chunks", stale)
	}

	if err := p.store.AddDocuments(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to add documents to vector store: %w", err)
	}
	return len(chunks), nil
}

// fileDigest returns the first 16 hex digits of the file's SHA-256.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

func (p *Pipeline) alreadySeen(ctx context.Context, key string) bool {
	if p.seen == nil {
		return false
	}
	exists, err := p.seen.Exists(ctx, key)
	if err != nil {
		p.logger.Warn("Dedup lookup failed, processing anyway", "key", key, "error", err)
		return false
	}
	return exists
}

func (p *Pipeline) markSeen(ctx context.Context, key, title string) {
	if p.seen == nil {
		return
	}
	if err := p.seen.Save(ctx, key, title); err != nil {
		p.logger.Warn("Failed to record ingested paper", "key", key, "error", err)
	}
}

func (p *Pipeline) failed(out PaperOutcome, stage string, err error) PaperOutcome {
	p.logger.Error("Paper ingestion failed", "stage", stage, "title", out.Title, "url", out.URL, "error", err)
	out.Status = StatusFailed
	out.Error = fmt.Sprintf("%s: %v", stage, err)
	return out
}

func (p *Pipeline) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("Error deleting file", "path", path, "error", err)
	}
}

func uniqueByURL(papers []tools.Paper) []tools.Paper {
	seen := make(map[string]bool, len(papers))
	out := make([]tools.Paper, 0, len(papers))
	for _, p := range papers {
		if p.PDFURL == "" || seen[p.PDFURL] {
			continue
		}
		seen[p.PDFURL] = true
		out = append(out, p)
	}
	return out
}
