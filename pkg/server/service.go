package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/research-assistant/pkg/database"
	"github.com/mikeboe/research-assistant/pkg/research"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

const jobTimeout = 30 * time.Minute

// Service runs research descriptions as background jobs tracked in Postgres.
type Service struct {
	DB         *database.PostgresDB
	Assistant  *research.Assistant
	Collection string

	wg sync.WaitGroup
}

func NewService(db *database.PostgresDB, assistant *research.Assistant, collection string) *Service {
	return &Service{
		DB:         db,
		Assistant:  assistant,
		Collection: collection,
	}
}

type Job struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Config      json.RawMessage `json:"config"`
}

type CreateJobRequest struct {
	Description string `json:"description"`
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}

	configJSON, _ := json.Marshal(map[string]interface{}{
		"collection": s.Collection,
	})

	query := `
		INSERT INTO research_jobs (id, description, status, config)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, description, status, created_at, updated_at, config
	`

	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, uuid.New(), description, configJSON).Scan(
		&job.ID, &job.Description, &job.Status, &job.CreatedAt, &job.UpdatedAt, &job.Config,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(job.ID, description)
	}()

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, description, status, result, error, created_at, updated_at, config
		FROM research_jobs
		WHERE id = $1
	`
	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Description, &job.Status, &job.Result, &job.Error, &job.CreatedAt, &job.UpdatedAt, &job.Config,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	query := `
		SELECT id, description, status, result, error, created_at, updated_at, config
		FROM research_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Description, &job.Status, &job.Result, &job.Error, &job.CreatedAt, &job.UpdatedAt, &job.Config); err != nil {
			slog.Warn("Skipping unreadable job row", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Wait blocks until every running job has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runWorker(jobID uuid.UUID, description string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", jobID)

	dbLogger := slog.New(NewDBLogHandler(s.DB.Pool, jobID))
	dbLogger.Info("Starting research", "description", description)

	result, err := s.Assistant.WithLogger(dbLogger).UnderstandTopic(ctx, description)
	if err != nil {
		s.failJob(ctx, dbLogger, jobID, fmt.Sprintf("Research failed: %v", err))
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		s.failJob(ctx, dbLogger, jobID, fmt.Sprintf("Failed to encode result: %v", err))
		return
	}

	_, err = s.DB.Pool.Exec(ctx,
		"UPDATE research_jobs SET status = 'completed', result = $2, updated_at = NOW() WHERE id = $1",
		jobID, resultJSON)
	if err != nil {
		dbLogger.Error("Failed to save result to DB", "error", err)
		return
	}
	dbLogger.Info("Research completed", "query", result.SearchQuery, "papers", len(result.Papers), "chunks", result.Chunks)
}

func (s *Service) failJob(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, reason string) {
	logger.Error(reason)
	slog.Error("Research job failed", "job_id", jobID, "reason", reason)

	_, _ = s.DB.Pool.Exec(context.WithoutCancel(ctx),
		"UPDATE research_jobs SET status = 'failed', error = $2, updated_at = NOW() WHERE id = $1",
		jobID, reason)
}
