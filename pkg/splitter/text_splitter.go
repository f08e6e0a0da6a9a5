package splitter

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Options controls how extracted paper text is chunked before embedding.
type Options struct {
	// ChunkSize is the size at which a new chunk is started.
	ChunkSize    int
	ChunkOverlap int
	// CombineUnder merges consecutive chunks shorter than this many characters.
	CombineUnder int
	// MaxChars caps the size of a merged chunk.
	MaxChars int
}

// TextSplitter wraps the langchaingo recursive splitter and merges the small
// fragments it leaves behind section headings and captions.
type TextSplitter struct {
	splitter     textsplitter.TextSplitter
	combineUnder int
	maxChars     int
}

// New creates a splitter from opts. A zero CombineUnder disables merging.
func New(opts Options) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.ChunkSize),
		textsplitter.WithChunkOverlap(opts.ChunkOverlap),
	)

	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = opts.ChunkSize
	}

	return &TextSplitter{
		splitter:     ts,
		combineUnder: opts.CombineUnder,
		maxChars:     maxChars,
	}
}

// SplitText splits text into trimmed, non-empty chunks.
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	raw, err := ts.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	return Combine(raw, ts.combineUnder, ts.maxChars), nil
}

// Combine trims chunks, drops blank ones and joins consecutive chunks shorter
// than combineUnder as long as the joined chunk stays within maxChars.
func Combine(chunks []string, combineUnder, maxChars int) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if combineUnder > 0 && len(out) > 0 {
			last := out[len(out)-1]
			if (len(last) < combineUnder || len(c) < combineUnder) && len(last)+2+len(c) <= maxChars {
				out[len(out)-1] = last + "\n\n" + c
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
