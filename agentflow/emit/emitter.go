// Package emit provides event emission and observability for flow execution.
package emit

import "context"

// Emitter receives lifecycle events from a running Flow.
//
// Implementations should be non-blocking and thread-safe: Flow.Run may call
// Emit concurrently from several nodes (Parallel and DAG modes), and a slow
// or failing emitter must never slow down or fail the flow itself.
type Emitter interface {
	// Emit sends a single event. Must not panic; a backend failure should
	// be logged internally rather than propagated.
	Emit(event Event)

	// EmitBatch sends events in order, for backends where batching reduces
	// overhead. Returns an error only on catastrophic/configuration
	// failures; individual event failures should be logged, not returned.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events are sent, or ctx is done.
	// Safe to call more than once.
	Flush(ctx context.Context) error
}
