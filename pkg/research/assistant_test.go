package research

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-assistant/pkg/ingest"
)

// fakeLLM replies with replies[i] on the i-th call, repeating the last one.
type fakeLLM struct {
	replies  []string
	errs     []error
	prompts  []string
	jsonMode []bool
}

func (f *fakeLLM) GenerateContent(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	i := len(f.prompts)
	var text string
	for _, m := range msgs {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				text += tc.Text
			}
		}
	}
	f.prompts = append(f.prompts, text)

	var o llms.CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	f.jsonMode = append(f.jsonMode, o.JSONMode)

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := f.replies[len(f.replies)-1]
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

type fakeIngester struct {
	result *ingest.Result
	err    error
	query  string
}

func (f *fakeIngester) IngestTopic(ctx context.Context, query string) (*ingest.Result, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePapers struct {
	chunks []string
	err    error
}

func (f fakePapers) Search(ctx context.Context, query string) ([]string, error) {
	return f.chunks, f.err
}

type fakeAgent struct {
	out   string
	err   error
	calls int
}

func (f *fakeAgent) Run(ctx context.Context, query string) (string, error) {
	f.calls++
	return f.out, f.err
}

const answerJSON = `{"topic":"Qubits","question":"","summary":"Surface codes.","description":"d","sources":["paper"],"tools_used":[],"website_used":[]}`

func newTestAssistant(llm *fakeLLM, ing *fakeIngester, papers PaperSearcher, agent Agent) *Assistant {
	a := NewAssistant(llm, ing, papers, agent).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.backoff = 0
	return a
}

func TestGenerateSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "quantum error correction with surface codes", "quantum error correction with surface codes"},
		{"quoted", "  \"quantum error correction\"\n", "quantum error correction"},
		{"extra lines", "surface codes\n\nThis phrase captures the topic.", "surface codes"},
		{"echoed label", "Search topic: surface codes", "surface codes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{replies: []string{tt.reply}}
			a := newTestAssistant(llm, nil, nil, nil)

			got, err := a.GenerateSearchQuery(context.Background(), "I study quantum error correction.")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.Len(t, llm.prompts, 1)
			assert.Contains(t, llm.prompts[0], "Description: I study quantum error correction.")
			assert.Contains(t, llm.prompts[0], "Search topic:")
		})
	}
}

func TestGenerateSearchQueryEmpty(t *testing.T) {
	a := newTestAssistant(&fakeLLM{replies: []string{"  \"\" "}}, nil, nil, nil)
	_, err := a.GenerateSearchQuery(context.Background(), "desc")
	assert.Error(t, err)
}

func TestUnderstandTopic(t *testing.T) {
	ing := &fakeIngester{result: &ingest.Result{
		Query: "surface codes",
		Papers: []ingest.PaperOutcome{
			{Title: "Surface codes", URL: "http://arxiv.org/pdf/1", Status: ingest.StatusIngested, Chunks: 4},
		},
		TotalChunks: 4,
	}}
	a := newTestAssistant(&fakeLLM{replies: []string{"surface codes"}}, ing, nil, nil)

	got, err := a.UnderstandTopic(context.Background(), "  quantum memories  ")
	require.NoError(t, err)

	assert.Equal(t, "surface codes", ing.query)
	assert.Equal(t, "quantum memories", got.Description)
	assert.Equal(t, "surface codes", got.SearchQuery)
	assert.Equal(t, 4, got.Chunks)
	assert.True(t, got.Found)
	assert.Len(t, got.Papers, 1)
}

func TestUnderstandTopicErrors(t *testing.T) {
	a := newTestAssistant(&fakeLLM{replies: []string{"q"}}, &fakeIngester{err: errors.New("arxiv down")}, nil, nil)

	_, err := a.UnderstandTopic(context.Background(), " ")
	assert.Error(t, err)

	_, err = a.UnderstandTopic(context.Background(), "desc")
	assert.ErrorContains(t, err, "arxiv down")
}

func TestUnderstandTopicNothingFound(t *testing.T) {
	ing := &fakeIngester{result: &ingest.Result{Query: "q"}}
	a := newTestAssistant(&fakeLLM{replies: []string{"q"}}, ing, nil, nil)

	got, err := a.UnderstandTopic(context.Background(), "desc")
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.NotNil(t, got.Papers)
}

func TestAnswerQueryFromPapers(t *testing.T) {
	llm := &fakeLLM{replies: []string{answerJSON}}
	agent := &fakeAgent{}
	a := newTestAssistant(llm, nil, fakePapers{chunks: []string{"chunk one", "chunk two"}}, agent)

	got, err := a.AnswerQuery(context.Background(), "What are surface codes?")
	require.NoError(t, err)

	assert.Equal(t, "Qubits", got.Topic)
	assert.Equal(t, "What are surface codes?", got.Question, "question filled in when the model leaves it blank")
	assert.Equal(t, 0, agent.calls)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "related to 'What are surface codes?'")
	assert.Contains(t, llm.prompts[0], "chunk one\n\nchunk two")
	assert.Contains(t, llm.prompts[0], "tools_used")
	assert.True(t, llm.jsonMode[0])
}

func TestAnswerQueryRetriesInvalidJSON(t *testing.T) {
	llm := &fakeLLM{
		replies: []string{"not json", "", answerJSON},
		errs:    []error{nil, errors.New("rate limited")},
	}
	a := newTestAssistant(llm, nil, fakePapers{chunks: []string{"c"}}, nil)

	got, err := a.AnswerQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Surface codes.", got.Summary)
	assert.Len(t, llm.prompts, 3)
}

func TestAnswerQueryGivesUpAfterRetries(t *testing.T) {
	llm := &fakeLLM{replies: []string{"never json"}}
	a := newTestAssistant(llm, nil, fakePapers{chunks: []string{"c"}}, nil)

	_, err := a.AnswerQuery(context.Background(), "q")
	assert.ErrorContains(t, err, "after 3 retries")
	assert.Len(t, llm.prompts, 3)
}

func TestAnswerQueryRetriesEmptySummary(t *testing.T) {
	llm := &fakeLLM{replies: []string{"{}", `{"question":"q"}`, answerJSON}}
	a := newTestAssistant(llm, nil, fakePapers{chunks: []string{"c"}}, nil)

	got, err := a.AnswerQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Qubits", got.Topic)
	assert.Len(t, llm.prompts, 3)
}

func TestAnswerQueryEmptySummaryIsNoResult(t *testing.T) {
	llm := &fakeLLM{replies: []string{"{}"}}
	agent := &fakeAgent{}
	a := newTestAssistant(llm, nil, fakePapers{chunks: []string{"c"}}, agent)

	_, err := a.AnswerQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Len(t, llm.prompts, 3)
	assert.Equal(t, 0, agent.calls)
}

func TestAnswerQueryFallsBackToAgent(t *testing.T) {
	tests := []struct {
		name   string
		papers fakePapers
	}{
		{"no hits", fakePapers{}},
		{"index error", fakePapers{err: errors.New("db down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{replies: []string{"unused"}}
			agent := &fakeAgent{out: "Sure!\n```json\n" + answerJSON + "\n```"}
			a := newTestAssistant(llm, nil, tt.papers, agent)

			got, err := a.AnswerQuery(context.Background(), "q")
			require.NoError(t, err)
			assert.Equal(t, 1, agent.calls)
			assert.Empty(t, llm.prompts)
			assert.Equal(t, []string{"paper"}, got.Sources)
		})
	}
}

func TestAnswerQueryNoResult(t *testing.T) {
	tests := []struct {
		name  string
		agent Agent
	}{
		{"no agent", nil},
		{"unparsable agent output", &fakeAgent{out: "I could not find anything."}},
		{"empty answer", &fakeAgent{out: `{"question":"q"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssistant(&fakeLLM{replies: []string{""}}, nil, fakePapers{}, tt.agent)
			_, err := a.AnswerQuery(context.Background(), "q")
			assert.ErrorIs(t, err, ErrNoResult)
		})
	}
}

func TestAnswerQueryAgentError(t *testing.T) {
	a := newTestAssistant(&fakeLLM{replies: []string{""}}, nil, fakePapers{}, &fakeAgent{err: errors.New("quota")})

	_, err := a.AnswerQuery(context.Background(), "q")
	assert.ErrorContains(t, err, "quota")
	assert.NotErrorIs(t, err, ErrNoResult)
}

func TestAnswerQueryEmpty(t *testing.T) {
	a := newTestAssistant(&fakeLLM{replies: []string{""}}, nil, fakePapers{}, &fakeAgent{})
	_, err := a.AnswerQuery(context.Background(), "  ")
	assert.Error(t, err)
}
