package snapshot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentflow/agentflow-go/agentflow"
	"github.com/agentflow/agentflow-go/agentflow/snapshot"
)

func TestMemoryStoreStepHistory(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()

	state1 := map[string]snapshot.Value{"x": {Kind: "json", JSON: float64(1)}}
	state2 := map[string]snapshot.Value{"x": {Kind: "json", JSON: float64(2)}}

	if err := store.SaveStep(ctx, "run-1", 0, "start", state1); err != nil {
		t.Fatalf("SaveStep: %v", err)
	}
	if err := store.SaveStep(ctx, "run-1", 1, "next", state2); err != nil {
		t.Fatalf("SaveStep: %v", err)
	}

	latest, step, err := store.LoadLatest(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if step != 1 {
		t.Errorf("step = %d, want 1", step)
	}
	if latest["x"].JSON.(float64) != 2 {
		t.Errorf("latest state x = %v, want 2", latest["x"].JSON)
	}
}

func TestMemoryStoreLoadLatestNotFound(t *testing.T) {
	store := snapshot.NewMemoryStore()
	_, _, err := store.LoadLatest(context.Background(), "missing")
	if !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreCheckpoints(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()
	state := map[string]snapshot.Value{"y": {Kind: "json", JSON: "hello"}}

	if err := store.SaveCheckpoint(ctx, "before-merge", state, 5); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	got, step, err := store.LoadCheckpoint(ctx, "before-merge")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if step != 5 || got["y"].JSON != "hello" {
		t.Errorf("unexpected checkpoint contents: step=%d value=%v", step, got["y"])
	}
}

func TestMemoryStoreIdempotency(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()

	seen, err := store.CheckIdempotency(ctx, "key-1")
	if err != nil || seen {
		t.Fatalf("expected key-1 unseen initially, got seen=%v err=%v", seen, err)
	}
	if err := store.MarkIdempotent(ctx, "key-1"); err != nil {
		t.Fatalf("MarkIdempotent: %v", err)
	}
	seen, err = store.CheckIdempotency(ctx, "key-1")
	if err != nil || !seen {
		t.Fatalf("expected key-1 seen after marking, got seen=%v err=%v", seen, err)
	}
}

func TestMemoryStoreOutboxDelivery(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()

	ev := agentflow.ExecutionEvent{NodeID: "n", EventType: "node_complete", Timestamp: time.Now()}
	if err := store.SaveEvent(ctx, "run-1", ev); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	pending, err := store.PendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("PendingEvents() len = %d, want 1", len(pending))
	}

	if err := store.MarkEventsEmitted(ctx, []string{pending[0].ID}); err != nil {
		t.Fatalf("MarkEventsEmitted: %v", err)
	}
	pending, err = store.PendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending events after marking emitted, got %d", len(pending))
	}
}

func TestValueConversionRoundTrip(t *testing.T) {
	original := agentflow.File("/tmp/report.pdf", "application/pdf")
	wire := snapshot.FromFlowValue(original)
	back := wire.ToFlowValue()

	if back.Kind() != agentflow.KindFile || back.Path() != "/tmp/report.pdf" || back.MimeType() != "application/pdf" {
		t.Errorf("round trip mismatch: %+v", back)
	}
}
