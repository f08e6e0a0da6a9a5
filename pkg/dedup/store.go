// Package dedup records which papers have already been ingested so that a
// repeated search does not download, extract and embed the same PDF twice.
//
// Keys are the PDF URL for arXiv papers and the base file name for uploaded
// or local files.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown dedup backend")

// Record is one processed paper.
type Record struct {
	Key       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the dedup table.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Save inserts key, ignoring keys that are already present.
	Save(ctx context.Context, key, title string) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Open returns the Store for backend. path is used by the file based
// backends, pool by the postgres backend.
func Open(ctx context.Context, backend, path string, pool *pgxpool.Pool) (Store, error) {
	switch backend {
	case "sqlite":
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
		return NewSQLiteStore(ctx, path)
	case "bolt":
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
		return NewBoltStore(path)
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("postgres dedup backend requires a database pool")
		}
		return NewPostgresStore(pool), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func ensureParentDir(path string) error {
	if path == "" {
		return fmt.Errorf("dedup path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dedup directory %s: %w", dir, err)
	}
	return nil
}
