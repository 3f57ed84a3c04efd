package emit

// Event is a single observation about a Flow run: a node starting,
// finishing, or failing.
type Event struct {
	// RunID identifies the Flow.Run invocation that produced this event.
	RunID string

	// Step is this node invocation's position within the run, assigned
	// from a single counter shared across every node the run executes.
	// 1-indexed.
	Step int

	// NodeID is the node that produced this event.
	NodeID string

	// Msg names the event: "node_start", "node_done", or "node_failed".
	Msg string

	// Meta carries event-specific data. Common keys:
	//   - "error": the failure message, set on node_failed
	//   - "attempt": which retry attempt produced this event, set when > 1
	//   - "duration_ms", "tokens_in", "tokens_out", "cost_usd": node metrics
	Meta map[string]interface{}
}
