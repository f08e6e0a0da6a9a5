package database

import (
	"context"
	"fmt"
)

// InitSchema creates the job bookkeeping tables and the papers lookup table.
// Vector tables are created per collection by CreateEmbeddingsTable.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	// 1. Research Jobs Table
	jobsQuery := `
		CREATE TABLE IF NOT EXISTS research_jobs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			config JSONB,
			result JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, jobsQuery); err != nil {
		return fmt.Errorf("failed to create research_jobs table: %w", err)
	}

	// 2. Research Logs Table
	logsQuery := `
		CREATE TABLE IF NOT EXISTS research_logs (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES research_jobs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create research_logs table: %w", err)
	}

	// Indexes for faster querying
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_research_logs_job_id ON research_logs(job_id)"); err != nil {
		return fmt.Errorf("failed to create index on research_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_research_jobs_created_at ON research_jobs(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on research_jobs: %w", err)
	}

	// 3. Error column for failed jobs (Migration)
	_, err := db.Pool.Exec(ctx, `
		ALTER TABLE research_jobs
		ADD COLUMN IF NOT EXISTS error TEXT
	`)
	if err != nil {
		return fmt.Errorf("failed to add error column: %w", err)
	}

	// 4. Papers Table (dedup lookup when DEDUP_BACKEND=postgres)
	if err := db.CreatePapersTable(ctx); err != nil {
		return err
	}

	return nil
}

// CreatePapersTable creates the table recording already ingested papers.
func (db *PostgresDB) CreatePapersTable(ctx context.Context) error {
	papersQuery := `
		CREATE TABLE IF NOT EXISTS papers (
			id SERIAL PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			title TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, papersQuery); err != nil {
		return fmt.Errorf("failed to create papers table: %w", err)
	}
	return nil
}
