package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/research-assistant/pkg/dedup"
	"github.com/mikeboe/research-assistant/pkg/ingest"
	"github.com/mikeboe/research-assistant/pkg/research"
)

//go:embed templates/*.html
var templateFS embed.FS

// Researcher is the assistant behaviour the HTTP layer exposes.
type Researcher interface {
	UnderstandTopic(ctx context.Context, description string) (*research.TopicResult, error)
	AnswerQuery(ctx context.Context, query string) (*research.ResearchResponse, error)
}

type Ingester interface {
	IngestTopic(ctx context.Context, query string) (*ingest.Result, error)
	IngestFile(ctx context.Context, path, key string) (*ingest.PaperOutcome, error)
}

type PaperSearcher interface {
	SearchFormatted(ctx context.Context, query, source string) (string, error)
	ContentBySource(ctx context.Context, source string) (string, error)
	ContentByMetadata(ctx context.Context, filter map[string]interface{}) (string, error)
}

type PaperLister interface {
	List(ctx context.Context) ([]dedup.Record, error)
}

type JobRunner interface {
	CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error)
}

// Dependencies are the services behind the routes. Jobs may be nil, which
// disables the /api/research routes.
type Dependencies struct {
	Research  Researcher
	Ingester  Ingester
	Papers    PaperSearcher
	Seen      PaperLister
	Jobs      JobRunner
	UploadDir string
}

type Handler struct {
	Dependencies
	Logger *slog.Logger

	mcp *mcp.Server
}

func NewHandler(deps Dependencies) *Handler {
	if deps.UploadDir == "" {
		deps.UploadDir = "uploads"
	}
	h := &Handler{Dependencies: deps, Logger: slog.Default()}
	h.mcp = h.newMCPServer()
	return h
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	r.GET("/", h.index)
	r.POST("/generate_research_description", h.generateResearchDescription)
	r.POST("/query_research", h.queryResearch)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return h.mcp }, nil)
	r.Any("/mcp", gin.WrapH(mcpHandler))

	api := r.Group("/api")
	{
		api.GET("/papers", h.listPapers)

		if h.Jobs != nil {
			api.POST("/research", h.createJob)
			api.GET("/research", h.listJobs)
			api.GET("/research/:id", h.getJob)
			api.GET("/research/:id/logs", h.getJobLogs)
		}
	}
}

func (h *Handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title": "Research Assistant",
		"UUID":  uuid.NewString(),
	})
}

func (h *Handler) generateResearchDescription(c *gin.Context) {
	description := strings.TrimSpace(c.PostForm("description"))
	if description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Error: description is required"})
		return
	}

	id := strings.TrimSpace(c.PostForm("uuid"))
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Error: invalid uuid"})
		return
	}

	files, err := h.saveUploads(c, id)
	if err != nil {
		h.Logger.Error("Failed to save uploads", "uuid", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error" + err.Error()})
		return
	}

	result, err := h.Research.UnderstandTopic(c.Request.Context(), description)
	if err != nil {
		h.Logger.Error("Research description failed", "uuid", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error" + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Success",
		"uuid":    id,
		"result":  result,
		"files":   files,
	})
}

// saveUploads stores every uploaded file as <id>_<name> and indexes it.
// Indexing failures are reported per file rather than failing the request.
func (h *Handler) saveUploads(c *gin.Context, id string) ([]ingest.PaperOutcome, error) {
	outcomes := []ingest.PaperOutcome{}

	form, err := c.MultipartForm()
	if err != nil {
		// url-encoded submissions carry no files
		return outcomes, nil
	}

	uploads := append(form.File["files[]"], form.File["files"]...)
	for _, file := range uploads {
		name := filepath.Base(file.Filename)
		if name == "." || name == string(filepath.Separator) {
			continue
		}
		dst := filepath.Join(h.UploadDir, id+"_"+name)
		if err := c.SaveUploadedFile(file, dst); err != nil {
			return nil, err
		}
		h.Logger.Info("Saved upload", "file", dst)

		if h.Ingester == nil {
			continue
		}
		out, err := h.Ingester.IngestFile(c.Request.Context(), dst, name)
		if err != nil {
			h.Logger.Warn("Failed to index upload", "file", dst, "error", err)
			outcomes = append(outcomes, ingest.PaperOutcome{
				Title:  name,
				URL:    name,
				Status: ingest.StatusFailed,
				Error:  err.Error(),
			})
			continue
		}
		outcomes = append(outcomes, *out)
	}
	return outcomes, nil
}

func (h *Handler) queryResearch(c *gin.Context) {
	query := strings.TrimSpace(c.PostForm("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Error: query is required"})
		return
	}

	resp, err := h.Research.AnswerQuery(c.Request.Context(), query)
	if errors.Is(err, research.ErrNoResult) {
		c.JSON(http.StatusNotFound, gin.H{"message": "No results found for the given query."})
		return
	}
	if err != nil {
		h.Logger.Error("Query failed", "query", query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error" + err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listPapers(c *gin.Context) {
	if h.Seen == nil {
		c.JSON(http.StatusOK, []dedup.Record{})
		return
	}
	records, err := h.Seen.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []dedup.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}

	job, err := h.Jobs.CreateJob(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Jobs.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	job, err := h.Jobs.GetJob(c.Request.Context(), id)
	if errors.Is(err, ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Jobs.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
