// Package sharedstate implements the process-shared key/value store both the
// host and requesters read and write.
package sharedstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"relaymic/internal/domain"
)

const (
	KeyDictationState = "dictation_state"
	KeySessionActive  = "bg_session_active"
	KeySessionPing    = "bg_session_ping"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updatedAt REAL NOT NULL
)`

// SQLite is a StateStore backed by a single-table SQLite file that several
// processes open at once.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the shared database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("shared state path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open shared state: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create shared state schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) LoadState(ctx context.Context) (domain.DictationState, bool, error) {
	raw, ok, err := s.get(ctx, KeyDictationState)
	if err != nil || !ok {
		return domain.DictationState{}, false, err
	}
	state, ok := decodeState(raw)
	return state, ok, nil
}

func (s *SQLite) SaveState(ctx context.Context, state domain.DictationState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode dictation state: %w", err)
	}
	return s.set(ctx, map[string]string{KeyDictationState: string(payload)})
}

func (s *SQLite) LoadLiveness(ctx context.Context) (domain.Liveness, error) {
	active, _, err := s.get(ctx, KeySessionActive)
	if err != nil {
		return domain.Liveness{}, err
	}
	ping, _, err := s.get(ctx, KeySessionPing)
	if err != nil {
		return domain.Liveness{}, err
	}
	return decodeLiveness(active, ping), nil
}

func (s *SQLite) SaveLiveness(ctx context.Context, liveness domain.Liveness) error {
	active, ping := encodeLiveness(liveness)
	return s.set(ctx, map[string]string{KeySessionActive: active, KeySessionPing: ping})
}

func (s *SQLite) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) set(ctx context.Context, values map[string]string) error {
	now := domain.EpochSeconds(time.Now())
	for key, value := range values {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO kv (key, value, updatedAt) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = excluded.updatedAt
		`, key, value, now)
		if err != nil {
			return fmt.Errorf("%w: write %s: %v", domain.ErrStoreWrite, key, err)
		}
	}
	return nil
}

// decodeState treats unreadable records as absent.
func decodeState(raw string) (domain.DictationState, bool) {
	var state domain.DictationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.DictationState{}, false
	}
	if state.SessionID == "" || !state.Phase.Valid() {
		return domain.DictationState{}, false
	}
	return state, true
}

func encodeLiveness(liveness domain.Liveness) (string, string) {
	active := "0"
	if liveness.Active {
		active = "1"
	}
	return active, strconv.FormatFloat(liveness.LastHeartbeat, 'f', -1, 64)
}

func decodeLiveness(active, ping string) domain.Liveness {
	lastHeartbeat, err := strconv.ParseFloat(ping, 64)
	if err != nil {
		lastHeartbeat = 0
	}
	return domain.Liveness{Active: active == "1", LastHeartbeat: lastHeartbeat}
}
