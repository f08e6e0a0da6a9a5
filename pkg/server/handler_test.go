package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-assistant/pkg/dedup"
	"github.com/mikeboe/research-assistant/pkg/ingest"
	"github.com/mikeboe/research-assistant/pkg/research"
)

type fakeResearcher struct {
	topic       *research.TopicResult
	topicErr    error
	answer      *research.ResearchResponse
	answerErr   error
	description string
}

func (f *fakeResearcher) UnderstandTopic(ctx context.Context, description string) (*research.TopicResult, error) {
	f.description = description
	return f.topic, f.topicErr
}

func (f *fakeResearcher) AnswerQuery(ctx context.Context, query string) (*research.ResearchResponse, error) {
	return f.answer, f.answerErr
}

type fakeIngester struct {
	files   map[string]string
	fileErr error
	result  *ingest.Result
}

func (f *fakeIngester) IngestTopic(ctx context.Context, query string) (*ingest.Result, error) {
	return f.result, nil
}

func (f *fakeIngester) IngestFile(ctx context.Context, path, key string) (*ingest.PaperOutcome, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	if f.files == nil {
		f.files = map[string]string{}
	}
	f.files[key] = path
	return &ingest.PaperOutcome{Title: "notes", URL: key, Status: ingest.StatusIngested, Chunks: 2}, nil
}

type fakeSearcher struct {
	source string
}

func (f *fakeSearcher) SearchFormatted(ctx context.Context, query, source string) (string, error) {
	f.source = source
	return "[Content]: " + query, nil
}

func (f *fakeSearcher) ContentBySource(ctx context.Context, source string) (string, error) {
	f.source = source
	return "full text of " + source, nil
}

func (f *fakeSearcher) ContentByMetadata(ctx context.Context, filter map[string]interface{}) (string, error) {
	return fmt.Sprintf("%d filter keys", len(filter)), nil
}

type fakeSeen struct {
	records []dedup.Record
}

func (f fakeSeen) List(ctx context.Context) ([]dedup.Record, error) {
	return f.records, nil
}

type fakeJobs struct {
	jobs map[uuid.UUID]*Job
}

func (f *fakeJobs) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	job := &Job{ID: uuid.New(), Description: req.Description, Status: "pending"}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) ListJobs(ctx context.Context) ([]Job, error) {
	return nil, nil
}

func (f *fakeJobs) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	return []LogEntry{{ID: 1, Timestamp: time.Unix(0, 0).UTC(), Level: "INFO", Message: "Starting research"}}, nil
}

type testServer struct {
	router    *gin.Engine
	handler   *Handler
	research  *fakeResearcher
	ingester  *fakeIngester
	uploadDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		research: &fakeResearcher{
			topic:  &research.TopicResult{Description: "d", SearchQuery: "q", Papers: []ingest.PaperOutcome{}, Found: true},
			answer: &research.ResearchResponse{Topic: "t", Summary: "s", Sources: []string{}, ToolsUsed: []string{}, WebsiteUsed: []string{}},
		},
		ingester:  &fakeIngester{result: &ingest.Result{Query: "q", TotalChunks: 3}},
		uploadDir: t.TempDir(),
	}
	ts.handler = NewHandler(Dependencies{
		Research:  ts.research,
		Ingester:  ts.ingester,
		Papers:    &fakeSearcher{},
		Seen:      fakeSeen{records: []dedup.Record{{Key: "http://arxiv.org/pdf/1", Title: "One"}}},
		Jobs:      &fakeJobs{jobs: map[uuid.UUID]*Job{}},
		UploadDir: ts.uploadDir,
	})
	ts.handler.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ts.router = gin.New()
	ts.handler.RegisterRoutes(ts.router)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Research Assistant")
	assert.Contains(t, w.Body.String(), "/generate_research_description")
}

func TestGenerateResearchDescription(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.NewString()

	w := ts.do(postForm("/generate_research_description", url.Values{
		"description": {"  Error correcting codes for qubits  "},
		"uuid":        {id},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "Success", body["message"])
	assert.Equal(t, id, body["uuid"])
	assert.Equal(t, "q", body["result"].(map[string]interface{})["search_query"])
	assert.Equal(t, "Error correcting codes for qubits", ts.research.description)
}

func TestGenerateResearchDescriptionGeneratesUUID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(postForm("/generate_research_description", url.Values{"description": {"d"}}))
	require.Equal(t, http.StatusOK, w.Code)

	_, err := uuid.Parse(decode(t, w)["uuid"].(string))
	assert.NoError(t, err)
}

func TestGenerateResearchDescriptionUploads(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.NewString()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("description", "d"))
	require.NoError(t, mw.WriteField("uuid", id))
	fw, err := mw.CreateFormFile("files[]", "../../notes.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/generate_research_description", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	saved := filepath.Join(ts.uploadDir, id+"_notes.pdf")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, saved, ts.ingester.files["notes.pdf"])

	files := decode(t, w)["files"].([]interface{})
	require.Len(t, files, 1)
	assert.Equal(t, "ingested", files[0].(map[string]interface{})["status"])
}

func TestGenerateResearchDescriptionUploadIndexFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.ingester.fileErr = errors.New("no text extracted")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("description", "d"))
	fw, err := mw.CreateFormFile("files[]", "scan.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/generate_research_description", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	files := decode(t, w)["files"].([]interface{})
	require.Len(t, files, 1)
	assert.Equal(t, "failed", files[0].(map[string]interface{})["status"])
}

func TestGenerateResearchDescriptionErrors(t *testing.T) {
	tests := []struct {
		name     string
		values   url.Values
		topicErr error
		wantCode int
		wantMsg  string
	}{
		{"missing description", url.Values{}, nil, http.StatusBadRequest, "Error: description is required"},
		{"bad uuid", url.Values{"description": {"d"}, "uuid": {"../etc"}}, nil, http.StatusBadRequest, "Error: invalid uuid"},
		{"research failure", url.Values{"description": {"d"}}, errors.New("boom"), http.StatusInternalServerError, "Errorboom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.research.topicErr = tt.topicErr

			w := ts.do(postForm("/generate_research_description", tt.values))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantMsg, decode(t, w)["message"])
		})
	}
}

func TestQueryResearch(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"answer", "What is a qubit?", nil, http.StatusOK, ""},
		{"empty", "  ", nil, http.StatusBadRequest, "Error: query is required"},
		{"no result", "q", research.ErrNoResult, http.StatusNotFound, "No results found for the given query."},
		{"wrapped no result", "q", errors.Join(research.ErrNoResult, errors.New("bad json")), http.StatusNotFound, "No results found for the given query."},
		{"failure", "q", errors.New("quota"), http.StatusInternalServerError, "Errorquota"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.research.answerErr = tt.err

			w := ts.do(postForm("/query_research", url.Values{"query": {tt.query}}))
			require.Equal(t, tt.wantCode, w.Code)

			body := decode(t, w)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["message"])
				return
			}
			assert.Equal(t, "t", body["topic"])
			assert.Equal(t, []interface{}{}, body["sources"])
		})
	}
}

func TestListPapers(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/papers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var records []dedup.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "http://arxiv.org/pdf/1", records[0].Key)
}

func TestJobRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(`{"description":"graph networks"}`)))
	require.Equal(t, http.StatusCreated, w.Code)
	var job Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "graph networks", job.Description)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/research/"+job.ID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/research/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/research/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/research", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/research/"+job.ID.String()+"/logs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Starting research")

	w = ts.do(httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(`{"description":" "}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMCPTools(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	res, out, err := ts.handler.mcpSearchPapers(ctx, nil, SearchPapersInput{Query: "attention", Source: "paper.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "[Content]: attention", out.Results)
	assert.Equal(t, "paper.pdf", ts.handler.Papers.(*fakeSearcher).source)
	require.Len(t, res.Content, 1)

	_, content, err := ts.handler.mcpFindContentBySource(ctx, nil, FindSourceInput{Source: "paper.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "full text of paper.pdf", content.Content)

	_, content, err = ts.handler.mcpFindContentByMetadata(ctx, nil, FindMetadataInput{Filter: map[string]any{
		"$or": []any{map[string]any{"title": "A"}, map[string]any{"title": "B"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "1 filter keys", content.Content)

	_, ingested, err := ts.handler.mcpIngestTopic(ctx, nil, QueryInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 3, ingested.TotalChunks)

	res, answer, err := ts.handler.mcpAnswerQuery(ctx, nil, QueryInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "t", answer.Topic)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, `"topic":"t"`)

	ts.research.answerErr = research.ErrNoResult
	_, _, err = ts.handler.mcpAnswerQuery(ctx, nil, QueryInput{Query: "q"})
	assert.ErrorIs(t, err, research.ErrNoResult)
}
