package agentflow

import (
	"context"
	"time"
)

// RoutingActionKind tags the variant of a RoutingAction.
type RoutingActionKind int

const (
	// ActionDefault routes via the flow's routing_table using the default action name.
	ActionDefault RoutingActionKind = iota
	// ActionNamed routes via the flow's routing_table using a named action.
	ActionNamed
	// ActionEnd terminates the flow successfully at this node.
	ActionEnd
)

// DefaultActionName is the routing_table key consulted when a node's post
// phase returns ActionDefault.
const DefaultActionName = "default"

// RoutingAction is returned by a Node's post phase to tell the scheduler
// where execution continues next.
type RoutingAction struct {
	Kind RoutingActionKind
	Name string // meaningful when Kind == ActionNamed
}

// Default routes using the flow's "default" routing_table entry.
func Default() RoutingAction { return RoutingAction{Kind: ActionDefault} }

// Named routes using a specific routing_table entry.
func Named(name string) RoutingAction { return RoutingAction{Kind: ActionNamed, Name: name} }

// End terminates the flow successfully.
func End() RoutingAction { return RoutingAction{Kind: ActionEnd} }

// actionKey returns the routing_table lookup key for this action.
func (a RoutingAction) actionKey() string {
	if a.Kind == ActionNamed {
		return a.Name
	}
	return DefaultActionName
}

// PrepResult is the data a node's prep phase extracts from SharedState,
// passed untouched into exec. prep may read SharedState and resolve
// templates but must not mutate it.
type PrepResult interface{}

// ExecResult is the data a node's exec phase produces, passed into post.
// exec must be pure with respect to SharedState: no reads, no writes. This
// is what makes retrying prep+exec safe to repeat.
type ExecResult interface{}

// Node is the unit of work in a Flow. Execution always proceeds through
// three phases in order:
//
//  1. Prep reads SharedState (and only SharedState) to gather inputs.
//  2. Exec performs the node's actual work (I/O, computation) using only
//     what Prep returned — it never touches SharedState directly.
//  3. Post writes results back into SharedState and chooses the next
//     RoutingAction.
//
// A RetryPolicy, if configured, wraps all three phases as a single retry
// unit: any failure in prep, exec, or post causes the whole lifecycle to
// re-run from prep on the next attempt. post is the only phase allowed to
// mutate SharedState, so a failure can never leave SharedState partially
// written.
type Node interface {
	// Name identifies this node for routing_table lookups, logging, and
	// ErrorContext.
	Name() string

	Prep(ctx context.Context, state *SharedState) (PrepResult, error)
	Exec(ctx context.Context, prep PrepResult) (ExecResult, error)
	Post(ctx context.Context, state *SharedState, prep PrepResult, exec ExecResult) (RoutingAction, error)
}

// RetryableNode is implemented by nodes that want a RetryPolicy other than
// the flow-level default applied to their lifecycle.
type RetryableNode interface {
	Node
	RetryPolicy() RetryPolicy
}

// TimedNode is implemented by nodes that need a bound on each individual
// prep+exec+post attempt, independent of RetryPolicy.MaxDuration (which caps
// the total time across every attempt). The Flow wraps each attempt's
// context with this timeout; a zero Timeout means no per-attempt bound.
type TimedNode interface {
	Node
	Timeout() time.Duration
}

// TypedNode adapts three plain functions into a Node, for callers who don't
// want to declare a named type per node.
type TypedNode struct {
	NodeName string
	PrepFn   func(ctx context.Context, state *SharedState) (PrepResult, error)
	ExecFn   func(ctx context.Context, prep PrepResult) (ExecResult, error)
	PostFn   func(ctx context.Context, state *SharedState, prep PrepResult, exec ExecResult) (RoutingAction, error)
	Retry    *RetryPolicy
}

func (n *TypedNode) Name() string { return n.NodeName }

func (n *TypedNode) Prep(ctx context.Context, state *SharedState) (PrepResult, error) {
	if n.PrepFn == nil {
		return nil, nil
	}
	return n.PrepFn(ctx, state)
}

func (n *TypedNode) Exec(ctx context.Context, prep PrepResult) (ExecResult, error) {
	if n.ExecFn == nil {
		return nil, nil
	}
	return n.ExecFn(ctx, prep)
}

func (n *TypedNode) Post(ctx context.Context, state *SharedState, prep PrepResult, exec ExecResult) (RoutingAction, error) {
	if n.PostFn == nil {
		return Default(), nil
	}
	return n.PostFn(ctx, state, prep, exec)
}

func (n *TypedNode) RetryPolicy() RetryPolicy {
	if n.Retry != nil {
		return *n.Retry
	}
	return NoRetry()
}

var _ RetryableNode = (*TypedNode)(nil)
