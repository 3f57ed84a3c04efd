// Package snapshot provides optional, durable persistence for SharedState.
//
// The core execution engine treats SharedState as in-memory only — no
// on-disk format is defined by the engine itself. This package is a
// supplementary layer for callers who want step-by-step history, named
// checkpoints for branching/debugging, and reliable delivery of
// ExecutionEvents via a transactional outbox. None of it is required to
// run a Flow.
package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/agentflow/agentflow-go/agentflow"
)

// ErrNotFound is returned when a requested run ID or checkpoint ID does not exist.
var ErrNotFound = errors.New("snapshot: not found")

// Store persists SharedState snapshots and pending ExecutionEvents.
//
// Implementations: Memory (tests), SQLite (single-file, zero setup), MySQL
// (shared/production deployments). A Store is driven by the caller
// alongside a Flow; Flow itself holds no Store and never requires one.
type Store interface {
	// SaveStep persists the state snapshot after a node finishes.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state map[string]Value) error

	// LoadLatest returns the most recently saved step for runID.
	LoadLatest(ctx context.Context, runID string) (state map[string]Value, step int, err error)

	// SaveCheckpoint creates or updates a named, user-addressable snapshot.
	SaveCheckpoint(ctx context.Context, label string, state map[string]Value, step int) error

	// LoadCheckpoint retrieves a named checkpoint.
	LoadCheckpoint(ctx context.Context, label string) (state map[string]Value, step int, err error)

	// CheckIdempotency reports whether key has already been committed, so a
	// retried write can be skipped instead of duplicated.
	CheckIdempotency(ctx context.Context, key string) (bool, error)

	// MarkIdempotent records key as committed.
	MarkIdempotent(ctx context.Context, key string) error

	// PendingEvents returns outbox events not yet marked emitted, oldest first.
	PendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error)

	// SaveEvent appends an event to the outbox. The write stands on its own;
	// no implementation here joins it to a SaveStep call in one transaction.
	SaveEvent(ctx context.Context, runID string, event agentflow.ExecutionEvent) error

	// MarkEventsEmitted marks outbox events as delivered so PendingEvents
	// will not return them again.
	MarkEventsEmitted(ctx context.Context, eventIDs []string) error

	// Close releases any underlying resources (connections, file handles).
	Close() error
}

// Value is the JSON-serializable wire form of a FlowValue used for
// persistence. Stores never interpret it beyond marshal/unmarshal.
type Value struct {
	Kind     string `json:"kind"` // "json", "file", "url"
	JSON     any    `json:"json,omitempty"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// OutboxEvent is a persisted ExecutionEvent pending delivery.
type OutboxEvent struct {
	ID        string
	RunID     string
	Event     agentflow.ExecutionEvent
	CreatedAt time.Time
}
