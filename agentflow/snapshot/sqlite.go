package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentflow/agentflow-go/agentflow"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file SQLite-backed Store.
//
// Designed for development, single-process deployments, and prototyping
// before migrating to a shared database. Uses WAL journaling; the
// connection pool is limited to a single connection, so operations are
// serialized.
//
// Schema:
//   - flow_steps: step-by-step snapshot history
//   - flow_checkpoints: named, user-addressable snapshots
//   - idempotency_keys: duplicate-write prevention
//   - events_outbox: transactional delivery of ExecutionEvents
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path.
// Use ":memory:" for an ephemeral database useful in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS flow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_steps_run ON flow_steps(run_id, step)`,
		`CREATE TABLE IF NOT EXISTS flow_checkpoints (
			label TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			step INTEGER NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key_value TEXT PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events_outbox (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			event_data TEXT NOT NULL,
			emitted_at TIMESTAMP NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_pending ON events_outbox(emitted_at, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("snapshot: store is closed")
	}
	return nil
}

func (s *SQLiteStore) SaveStep(ctx context.Context, runID string, step int, nodeID string, state map[string]Value) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_steps (run_id, step, node_id, state) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET node_id = excluded.node_id, state = excluded.state
	`, runID, step, nodeID, string(stateJSON))
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadLatest(ctx context.Context, runID string) (map[string]Value, int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}
	var step int
	var stateJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT step, state FROM flow_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1
	`, runID).Scan(&step, &stateJSON)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load latest: %w", err)
	}
	var state map[string]Value
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, step, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, label string, state map[string]Value, step int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_checkpoints (label, state, step) VALUES (?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET state = excluded.state, step = excluded.step, updated_at = CURRENT_TIMESTAMP
	`, label, string(stateJSON), step)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, label string) (map[string]Value, int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}
	var stateJSON string
	var step int
	err := s.db.QueryRowContext(ctx, `SELECT state, step FROM flow_checkpoints WHERE label = ?`, label).
		Scan(&stateJSON, &step)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load checkpoint: %w", err)
	}
	var state map[string]Value
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, step, nil
}

func (s *SQLiteStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM idempotency_keys WHERE key_value = ?`, key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check idempotency: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) MarkIdempotent(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO idempotency_keys (key_value) VALUES (?)`, key)
	if err != nil {
		return fmt.Errorf("mark idempotent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, runID string, event agentflow.ExecutionEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events_outbox (id, run_id, event_data) VALUES (?, ?, ?)
	`, uuid.NewString(), runID, string(eventJSON))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, event_data, created_at FROM events_outbox
		WHERE emitted_at IS NULL ORDER BY created_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []OutboxEvent
	for rows.Next() {
		var id, runID, eventJSON, createdAt string
		if err := rows.Scan(&id, &runID, &eventJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		var ev agentflow.ExecutionEvent
		if err := json.Unmarshal([]byte(eventJSON), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		ts, _ := time.Parse("2006-01-02 15:04:05", createdAt)
		events = append(events, OutboxEvent{ID: id, RunID: runID, Event: ev, CreatedAt: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(eventIDs) == 0 {
		return nil
	}
	placeholders := ""
	args := make([]interface{}, len(eventIDs))
	for i, id := range eventIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}
	// #nosec G201 -- placeholders are "?" marks, not interpolated user input
	query := fmt.Sprintf(`UPDATE events_outbox SET emitted_at = CURRENT_TIMESTAMP WHERE id IN (%s)`, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark events emitted: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database file path, useful for logging and diagnostics.
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}
