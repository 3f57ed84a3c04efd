package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/agentflow/agentflow-go/agentflow"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store backed by plain maps. Useful for tests
// and single-process development; state does not survive process restart.
type MemoryStore struct {
	mu          sync.RWMutex
	steps       map[string][]stepRecord // runID -> steps, append-only
	checkpoints map[string]stepRecord   // label -> snapshot
	idempotency map[string]struct{}
	outbox      map[string]OutboxEvent
	emitted     map[string]bool
}

type stepRecord struct {
	step  int
	state map[string]Value
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		steps:       make(map[string][]stepRecord),
		checkpoints: make(map[string]stepRecord),
		idempotency: make(map[string]struct{}),
		outbox:      make(map[string]OutboxEvent),
		emitted:     make(map[string]bool),
	}
}

func cloneState(state map[string]Value) map[string]Value {
	out := make(map[string]Value, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) SaveStep(_ context.Context, runID string, step int, _ string, state map[string]Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[runID] = append(m.steps[runID], stepRecord{step: step, state: cloneState(state)})
	return nil
}

func (m *MemoryStore) LoadLatest(_ context.Context, runID string) (map[string]Value, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.steps[runID]
	if len(records) == 0 {
		return nil, 0, ErrNotFound
	}
	last := records[len(records)-1]
	return cloneState(last.state), last.step, nil
}

func (m *MemoryStore) SaveCheckpoint(_ context.Context, label string, state map[string]Value, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[label] = stepRecord{step: step, state: cloneState(state)}
	return nil
}

func (m *MemoryStore) LoadCheckpoint(_ context.Context, label string) (map[string]Value, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.checkpoints[label]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return cloneState(rec.state), rec.step, nil
}

func (m *MemoryStore) CheckIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.idempotency[key]
	return ok, nil
}

func (m *MemoryStore) MarkIdempotent(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idempotency[key] = struct{}{}
	return nil
}

func (m *MemoryStore) SaveEvent(_ context.Context, runID string, event agentflow.ExecutionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.outbox[id] = OutboxEvent{ID: id, RunID: runID, Event: event, CreatedAt: event.Timestamp}
	return nil
}

func (m *MemoryStore) PendingEvents(_ context.Context, limit int) ([]OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pending := make([]OutboxEvent, 0, len(m.outbox))
	for id, ev := range m.outbox {
		if m.emitted[id] {
			continue
		}
		pending = append(pending, ev)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MemoryStore) MarkEventsEmitted(_ context.Context, eventIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range eventIDs {
		m.emitted[id] = true
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
