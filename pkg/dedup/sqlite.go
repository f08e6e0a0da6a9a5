package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the papers table in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY during parallel ingestion.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS papers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT UNIQUE,
			title TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create papers table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM papers WHERE url = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up paper: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key, title string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO papers (url, title) VALUES (?, ?)", key, title)
	if err != nil {
		return fmt.Errorf("failed to save paper: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url, title, created_at FROM papers ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var title, created sql.NullString
		if err := rows.Scan(&r.Key, &title, &created); err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		r.Title = title.String
		r.CreatedAt = parseSQLiteTime(created.String)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// parseSQLiteTime accepts both CURRENT_TIMESTAMP text and the RFC 3339 form
// database/sql produces when the driver already decoded a time.Time.
func parseSQLiteTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
