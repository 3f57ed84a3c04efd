package agentflow

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agentflow/agentflow-go/agentflow/emit"
)

// SchedulerMode selects how a Flow's nodes are ordered for execution.
type SchedulerMode int

const (
	// Sequential chains nodes one at a time via the routing_table, following
	// each node's chosen RoutingAction until a node returns ActionEnd.
	Sequential SchedulerMode = iota
	// Parallel fans every node in Nodes out concurrently; any single
	// failure fails the whole flow.
	Parallel
	// DAG executes nodes in dependency order computed from Dependencies,
	// running each ready level concurrently.
	DAG
)

// defaultMaxIterations bounds a Sequential flow's step count absent an
// explicit Flow.MaxIterations, guarding against routing_table cycles.
const defaultMaxIterations = 100

// Flow is a complete, runnable workflow definition: a start node, the
// routing table connecting nodes by action name, and execution policy.
type Flow struct {
	StartNode  string
	Nodes      map[string]Node
	// RoutingTable maps "node_name.action" to the next node_name. Used by
	// Sequential mode; ignored by DAG mode, which derives order from
	// Dependencies instead.
	RoutingTable map[string]string

	// Dependencies maps a node name to the node names that must complete
	// before it may run. Used only by DAG mode.
	Dependencies map[string][]string

	// Parameters are flow-level inputs seeded into SharedState under
	// "received_<key>" before the first node runs.
	Parameters map[string]Value

	Mode SchedulerMode

	// MaxIterations bounds Sequential execution steps. Zero uses
	// defaultMaxIterations.
	MaxIterations int

	Timeout time.Duration

	// BatchSize hints how many logical work items each Parallel node
	// represents, for callers that partition a larger input collection
	// into per-batch nodes before building Nodes. The scheduler itself
	// only sees nodes, not items; this is metadata for such callers.
	BatchSize int

	// MaxConcurrentBatches caps how many Parallel nodes run at once. Zero
	// means unbounded (all nodes launched immediately).
	MaxConcurrentBatches int

	Metrics     *MetricsCollector
	RetryPolicy *RetryPolicy
	FlowName    string

	Emitter emit.Emitter

	// Prom is an optional Prometheus-backed metrics sink, independent of
	// Metrics' in-memory counters.
	Prom *PrometheusMetrics
}

func routingKey(nodeName, action string) string {
	return nodeName + "." + action
}

func (f *Flow) emitter() emit.Emitter {
	if f.Emitter != nil {
		return f.Emitter
	}
	return emit.NewNullEmitter()
}

func (f *Flow) maxIterations() int {
	if f.MaxIterations > 0 {
		return f.MaxIterations
	}
	return defaultMaxIterations
}

// Result is the outcome of running a Flow to completion or failure.
type Result struct {
	RunID        string
	CompletedAt  []string // node names in completion order
	ErrorContext *ErrorContext
}

// Run executes the flow against state from f.StartNode until a terminal
// RoutingAction, a CircularFlow/FlowDefinitionError, or a node failure that
// exhausts its retry policy.
func (f *Flow) Run(ctx context.Context, runID string, state *SharedState) (*Result, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	for key, value := range f.Parameters {
		state.Insert("received_"+key, value)
	}

	var seq atomic.Int64

	switch f.Mode {
	case Parallel:
		return f.runParallel(ctx, runID, state, &seq)
	case DAG:
		return f.runDAG(ctx, runID, state, &seq)
	default:
		return f.runSequential(ctx, runID, state, &seq)
	}
}

func (f *Flow) nodePolicy(n Node) RetryPolicy {
	if rn, ok := n.(RetryableNode); ok {
		return rn.RetryPolicy()
	}
	if f.RetryPolicy != nil {
		return *f.RetryPolicy
	}
	return NoRetry()
}

// runNode executes one node's full prep/exec/post lifecycle under its
// retry policy, emitting lifecycle events and recording metrics. step
// identifies this node invocation's position within the overall run, shared
// across every scheduler mode via a single counter owned by Run.
func (f *Flow) runNode(ctx context.Context, runID string, n Node, state *SharedState, seq *atomic.Int64) (RoutingAction, error) {
	policy := f.nodePolicy(n)
	executor := NewRetryExecutor(time.Now().UnixNano())

	step := int(seq.Add(1))
	var action RoutingAction
	start := time.Now()
	attempt := 0

	f.emitter().Emit(emit.Event{RunID: runID, Step: step, NodeID: n.Name(), Msg: "node_start"})
	if f.Prom != nil {
		f.Prom.NodeStarted()
	}

	var attemptTimeout time.Duration
	if tn, ok := n.(TimedNode); ok {
		attemptTimeout = tn.Timeout()
	}

	ec, err := executor.ExecuteWithRetryAndContext(ctx, policy, runID, n.Name(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if f.Metrics != nil {
				f.Metrics.IncrCounter("retries_total", 1)
			}
			if f.Prom != nil {
				f.Prom.RetryAttempted(runID, n.Name())
			}
		}
		if attemptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, attemptTimeout)
			defer cancel()
		}
		prep, err := n.Prep(ctx, state)
		if err != nil {
			return WrapFlowError(NodeInputError, "prep failed", err)
		}
		exec, err := n.Exec(ctx, prep)
		if err != nil {
			return WrapFlowError(NodeExecutionFailed, "exec failed", err)
		}
		a, err := n.Post(ctx, state, prep, exec)
		if err != nil {
			return WrapFlowError(NodeExecutionFailed, "post failed", err)
		}
		action = a
		return nil
	})

	duration := time.Since(start)
	if f.Metrics != nil {
		f.Metrics.RecordEvent(ExecutionEvent{
			NodeID:     n.Name(),
			EventType:  "node_complete",
			Timestamp:  time.Now().UTC(),
			DurationMs: durationMsPtr(duration),
		})
	}
	if f.Prom != nil {
		f.Prom.NodeFinished(runID, n.Name(), duration, err != nil)
	}

	if err != nil {
		meta := map[string]interface{}{"error": err.Error()}
		if attempt > 1 {
			meta["attempt"] = attempt
		}
		f.emitter().Emit(emit.Event{RunID: runID, Step: step, NodeID: n.Name(), Msg: "node_failed", Meta: meta})
		if ec != nil {
			return RoutingAction{}, &flowRunError{err: err, ec: *ec}
		}
		return RoutingAction{}, err
	}

	doneEvent := emit.Event{RunID: runID, Step: step, NodeID: n.Name(), Msg: "node_done"}
	if attempt > 1 {
		doneEvent.Meta = map[string]interface{}{"attempt": attempt}
	}
	f.emitter().Emit(doneEvent)
	return action, nil
}

func durationMsPtr(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

// flowRunError pairs a terminal error with the ErrorContext that explains it.
type flowRunError struct {
	err error
	ec  ErrorContext
}

func (e *flowRunError) Error() string               { return e.err.Error() }
func (e *flowRunError) Unwrap() error               { return e.err }
func (e *flowRunError) ErrorContext() *ErrorContext { return &e.ec }

// AsErrorContext extracts the ErrorContext carried by an error returned
// from Flow.Run, if any. Returns false for errors that were never wrapped
// with one (e.g. FlowDefinitionError raised before any node ran).
func AsErrorContext(err error) (*ErrorContext, bool) {
	fre, ok := err.(*flowRunError)
	if !ok {
		return nil, false
	}
	return fre.ErrorContext(), true
}

// runSequential walks the routing table starting at StartNode until a node
// returns ActionEnd, a routing lookup fails, or max_iterations is hit.
//
// Short-cycle detection: if the same node name appears twice within the
// most recent maxIterations/2 steps without reaching ActionEnd, the flow is
// declared circular rather than waiting out the full iteration budget.
func (f *Flow) runSequential(ctx context.Context, runID string, state *SharedState, seq *atomic.Int64) (*Result, error) {
	current := f.StartNode
	history := []string{}
	seen := make(map[string]int)
	maxIter := f.maxIterations()

	for step := 0; step < maxIter; step++ {
		node, ok := f.Nodes[current]
		if !ok {
			return nil, NewFlowError(FlowDefinitionError, fmt.Sprintf("unknown node %q in routing table", current))
		}

		if prior, seenBefore := seen[current]; seenBefore && step-prior < maxIter/2 {
			return nil, NewFlowError(CircularFlow, fmt.Sprintf("node %q revisited within %d steps", current, step-prior))
		}
		seen[current] = step

		action, err := f.runNode(ctx, runID, node, state, seq)
		if err != nil {
			return &Result{RunID: runID, CompletedAt: history}, err
		}
		history = append(history, current)

		if action.Kind == ActionEnd {
			return &Result{RunID: runID, CompletedAt: history}, nil
		}

		next, ok := f.RoutingTable[routingKey(current, action.actionKey())]
		if !ok {
			// An action with no registered routing entry terminates the
			// flow gracefully rather than failing it.
			return &Result{RunID: runID, CompletedAt: history}, nil
		}
		current = next
	}

	return nil, NewFlowError(CircularFlow, fmt.Sprintf("exceeded max_iterations (%d)", maxIter))
}

// runParallel fans every node in f.Nodes out concurrently, at most MaxConcurrentBatches at a time if set. Any single
// node failure fails the whole flow; completed nodes' writes to
// SharedState remain (SharedState never rolls back).
func (f *Flow) runParallel(ctx context.Context, runID string, state *SharedState, seq *atomic.Int64) (*Result, error) {
	names := make([]string, 0, len(f.Nodes))
	for name := range f.Nodes {
		names = append(names, name)
	}

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(names))

	var sem chan struct{}
	if f.MaxConcurrentBatches > 0 {
		sem = make(chan struct{}, f.MaxConcurrentBatches)
	}

	for _, name := range names {
		node := f.Nodes[name]
		if sem != nil {
			sem <- struct{}{}
		}
		go func(name string, node Node) {
			if sem != nil {
				defer func() { <-sem }()
			}
			_, err := f.runNode(ctx, runID, node, state, seq)
			results <- outcome{name: name, err: err}
		}(name, node)
	}

	var firstErr error
	completed := make([]string, 0, len(names))
	for range names {
		o := <-results
		if o.err != nil && firstErr == nil {
			firstErr = o.err
		}
		if o.err == nil {
			completed = append(completed, o.name)
		}
	}

	if firstErr != nil {
		return &Result{RunID: runID, CompletedAt: completed}, firstErr
	}
	return &Result{RunID: runID, CompletedAt: completed}, nil
}
