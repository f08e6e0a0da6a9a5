package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine(t *testing.T) {
	long := strings.Repeat("a", 30)

	tests := []struct {
		name         string
		chunks       []string
		combineUnder int
		maxChars     int
		want         []string
	}{
		{
			name:   "drops blank chunks and trims",
			chunks: []string{"  one ", "", "\n\t", "two"},
			want:   []string{"one", "two"},
		},
		{
			name:         "merges small neighbours",
			chunks:       []string{"Intro", "Short body"},
			combineUnder: 20,
			maxChars:     100,
			want:         []string{"Intro\n\nShort body"},
		},
		{
			name:         "keeps large chunks apart",
			chunks:       []string{long, long},
			combineUnder: 20,
			maxChars:     100,
			want:         []string{long, long},
		},
		{
			name:         "small tail merges into a large chunk",
			chunks:       []string{long, "tail"},
			combineUnder: 20,
			maxChars:     100,
			want:         []string{long + "\n\ntail"},
		},
		{
			name:         "respects max chars",
			chunks:       []string{"abcd", "efgh"},
			combineUnder: 20,
			maxChars:     9,
			want:         []string{"abcd", "efgh"},
		},
		{
			name:   "nil input",
			chunks: nil,
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.chunks, tt.combineUnder, tt.maxChars)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitTextBlank(t *testing.T) {
	ts := New(Options{ChunkSize: 100, ChunkOverlap: 0, CombineUnder: 20, MaxChars: 200})

	chunks, err := ts.SplitText("   \n  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitTextShortDocument(t *testing.T) {
	ts := New(Options{ChunkSize: 1000, ChunkOverlap: 0, CombineUnder: 200, MaxChars: 2000})

	chunks, err := ts.SplitText("Robots reason with world models.\n\nEthics constrains their actions.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "world models")
	assert.Contains(t, chunks[0], "Ethics")
}

func TestSplitTextLongDocument(t *testing.T) {
	ts := New(Options{ChunkSize: 200, ChunkOverlap: 0, CombineUnder: 0, MaxChars: 400})

	paragraph := strings.Repeat("word ", 30)
	text := strings.Repeat(paragraph+"\n\n", 10)

	chunks, err := ts.SplitText(text)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.NotEmpty(t, c)
		assert.LessOrEqual(t, len(c), 200)
	}
}
