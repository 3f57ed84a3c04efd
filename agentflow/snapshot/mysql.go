package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentflow/agentflow-go/agentflow"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQLStore is a shared, multi-process Store backed by MySQL/MariaDB.
// Suitable for production deployments where several Flow runners share
// history and outbox delivery.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// MySQLConfig wraps the subset of go-sql-driver/mysql.Config used to build a DSN.
type MySQLConfig struct {
	Addr     string
	User     string
	Password string
	DBName   string
}

// NewMySQLStore connects to MySQL using cfg and ensures the schema exists.
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	driverCfg := mysql.NewConfig()
	driverCfg.Net = "tcp"
	driverCfg.Addr = cfg.Addr
	driverCfg.User = cfg.User
	driverCfg.Passwd = cfg.Password
	driverCfg.DBName = cfg.DBName
	driverCfg.ParseTime = true

	db, err := sql.Open("mysql", driverCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS flow_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(191) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(191) NOT NULL,
			state MEDIUMTEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_run_step (run_id, step)
		)`,
		`CREATE TABLE IF NOT EXISTS flow_checkpoints (
			label VARCHAR(191) PRIMARY KEY,
			state MEDIUMTEXT NOT NULL,
			step INT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key_value VARCHAR(191) PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events_outbox (
			id VARCHAR(64) PRIMARY KEY,
			run_id VARCHAR(191) NOT NULL,
			event_data MEDIUMTEXT NOT NULL,
			emitted_at TIMESTAMP NULL DEFAULT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_events_pending (emitted_at, created_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("snapshot: store is closed")
	}
	return nil
}

func (s *MySQLStore) SaveStep(ctx context.Context, runID string, step int, nodeID string, state map[string]Value) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_steps (run_id, step, node_id, state) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE node_id = VALUES(node_id), state = VALUES(state)
	`, runID, step, nodeID, string(stateJSON))
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadLatest(ctx context.Context, runID string) (map[string]Value, int, error) {
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

func (s *MySQLStore) SaveCheckpoint(ctx context.Context, label string, state map[string]Value, step int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_checkpoints (label, state, step) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE state = VALUES(state), step = VALUES(step)
	`, label, string(stateJSON), step)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadCheckpoint(ctx context.Context, label string) (map[string]Value, int, error) {
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

func (s *MySQLStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
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

func (s *MySQLStore) MarkIdempotent(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT IGNORE INTO idempotency_keys (key_value) VALUES (?)`, key)
	if err != nil {
		return fmt.Errorf("mark idempotent: %w", err)
	}
	return nil
}

func (s *MySQLStore) SaveEvent(ctx context.Context, runID string, event agentflow.ExecutionEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO events_outbox (id, run_id, event_data) VALUES (?, ?, ?)`,
		uuid.NewString(), runID, string(eventJSON))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func (s *MySQLStore) PendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
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
		var id, runID, eventJSON string
		var createdAt time.Time
		if err := rows.Scan(&id, &runID, &eventJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		var ev agentflow.ExecutionEvent
		if err := json.Unmarshal([]byte(eventJSON), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, OutboxEvent{ID: id, RunID: runID, Event: ev, CreatedAt: createdAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func (s *MySQLStore) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(eventIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(eventIDs)), ",")
	args := make([]interface{}, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}
	// #nosec G201 -- placeholders are "?" marks, not interpolated user input
	query := fmt.Sprintf(`UPDATE events_outbox SET emitted_at = CURRENT_TIMESTAMP WHERE id IN (%s)`, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark events emitted: %w", err)
	}
	return nil
}

func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
