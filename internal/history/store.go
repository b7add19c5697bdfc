// Package history persists finished transcripts and searches them.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"relaymic/internal/ports"
)

var prefix = []byte("transcript/")

// Store is a TranscriptStore backed by an embedded badger database. Badger
// locks its directory, so one process opens it at a time.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

func Open(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenInMemory returns a store that disappears on Close.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory history: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(_ context.Context, entry ports.TranscriptEntry) error {
	if strings.TrimSpace(entry.Text) == "" {
		return errors.New("refusing to record empty transcript")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry), payload)
	})
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) List(_ context.Context, limit int) ([]ports.TranscriptEntry, error) {
	return s.scan(limit, func(ports.TranscriptEntry) bool { return true })
}

// Search returns entries whose text contains query, ignoring case.
func (s *Store) Search(_ context.Context, query string, limit int) ([]ports.TranscriptEntry, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	return s.scan(limit, func(entry ports.TranscriptEntry) bool {
		return strings.Contains(strings.ToLower(entry.Text), needle)
	})
}

func (s *Store) Count(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *Store) scan(limit int, match func(ports.TranscriptEntry) bool) ([]ports.TranscriptEntry, error) {
	var out []ports.TranscriptEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var entry ports.TranscriptEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("decode transcript %s: %w", it.Item().Key(), err)
			}
			if !match(entry) {
				continue
			}
			out = append(out, entry)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// entryKey sorts by creation time so reverse iteration yields newest first.
func entryKey(entry ports.TranscriptEntry) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefix, entry.CreatedAt.UnixNano(), entry.ID))
}
