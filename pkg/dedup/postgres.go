package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore uses the papers table created by database.InitSchema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, "SELECT 1 FROM papers WHERE url = $1", key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up paper: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Save(ctx context.Context, key, title string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO papers (url, title) VALUES ($1, $2) ON CONFLICT (url) DO NOTHING",
		key, title)
	if err != nil {
		return fmt.Errorf("failed to save paper: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, "SELECT url, COALESCE(title, ''), created_at FROM papers ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Title, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}
