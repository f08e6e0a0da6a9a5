package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var bucketPapers = []byte("papers")

// BoltStore keeps processed papers in a bbolt bucket keyed by URL.
type BoltStore struct {
	db *bbolt.DB
}

type boltRecord struct {
	Seq       uint64 `json:"seq"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPapers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketPapers, err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Exists(_ context.Context, key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketPapers).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (s *BoltStore) Save(_ context.Context, key, title string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPapers)
		if b.Get([]byte(key)) != nil {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(boltRecord{Seq: seq, Title: title, CreatedAt: time.Now().UnixNano()})
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) List(_ context.Context) ([]Record, error) {
	var records []Record
	var seqs []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPapers).ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			records = append(records, Record{
				Key:       string(k),
				Title:     rec.Title,
				CreatedAt: time.Unix(0, rec.CreatedAt),
			})
			seqs = append(seqs, rec.Seq)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// bbolt iterates in key order; report insertion order like the SQL backends.
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return seqs[order[a]] < seqs[order[b]] })

	sorted := make([]Record, len(records))
	for i, idx := range order {
		sorted[i] = records[idx]
	}
	return sorted, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
