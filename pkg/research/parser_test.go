package research

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResearchResponse(t *testing.T) {
	want := &ResearchResponse{
		Topic:       "Transformers",
		Question:    "What is attention?",
		Summary:     "Attention weighs tokens.",
		Description: "Overview",
		Sources:     []string{"http://arxiv.org/pdf/1706.03762v7"},
		ToolsUsed:   []string{"search_in_papers"},
		WebsiteUsed: []string{},
	}
	raw := `{"topic":"Transformers","question":"What is attention?","summary":"Attention weighs tokens.",` +
		`"description":"Overview","sources":["http://arxiv.org/pdf/1706.03762v7"],"tools_used":["search_in_papers"]}`

	tests := []struct {
		name  string
		input string
	}{
		{"bare", raw},
		{"padded", "\n\n  " + raw + "\n"},
		{"fenced", "```json\n" + raw + "\n```"},
		{"fenced without language", "```\n" + raw + "\n```"},
		{"embedded in prose", "Here is the answer:\n" + raw + "\nHope this helps."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResearchResponse(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("ParseResearchResponse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseResearchResponseErrors(t *testing.T) {
	for _, input := range []string{"", "   ", "no json here", `{"topic": `} {
		_, err := ParseResearchResponse(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseResearchResponseNormalizesSlices(t *testing.T) {
	got, err := ParseResearchResponse(`{"topic":"x","sources":null}`)
	require.NoError(t, err)
	assert.NotNil(t, got.Sources)
	assert.NotNil(t, got.ToolsUsed)
	assert.NotNil(t, got.WebsiteUsed)
}

func TestResearchResponseEmpty(t *testing.T) {
	var nilResp *ResearchResponse
	assert.True(t, nilResp.Empty())
	assert.True(t, (&ResearchResponse{Question: "q"}).Empty())
	assert.False(t, (&ResearchResponse{Summary: "s"}).Empty())
}

func TestFormatInstructions(t *testing.T) {
	fi := FormatInstructions()
	for _, field := range []string{"topic", "question", "summary", "description", "sources", "tools_used", "website_used"} {
		assert.Contains(t, fi, `"`+field+`"`)
	}
}
