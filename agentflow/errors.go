package agentflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorKind enumerates the named error taxonomy. Each kind carries a
// default retry classification consulted by RetryExecutor when a node's
// RetryPolicy does not explicitly list retryable_error_patterns.
type ErrorKind int

const (
	ConfigurationError ErrorKind = iota
	FlowDefinitionError
	NodeInputError
	NodeExecutionFailed
	AsyncExecutionError
	TimeoutExceeded
	RateLimitExceeded
	CircuitBreakerOpen
	RetryExhausted
	CircularFlow
	SerializationError
	PersistenceError
	SharedStateError
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "ConfigurationError"
	case FlowDefinitionError:
		return "FlowDefinitionError"
	case NodeInputError:
		return "NodeInputError"
	case NodeExecutionFailed:
		return "NodeExecutionFailed"
	case AsyncExecutionError:
		return "AsyncExecutionError"
	case TimeoutExceeded:
		return "TimeoutExceeded"
	case RateLimitExceeded:
		return "RateLimitExceeded"
	case CircuitBreakerOpen:
		return "CircuitBreakerOpen"
	case RetryExhausted:
		return "RetryExhausted"
	case CircularFlow:
		return "CircularFlow"
	case SerializationError:
		return "SerializationError"
	case PersistenceError:
		return "PersistenceError"
	case SharedStateError:
		return "SharedStateError"
	default:
		return "UnknownError"
	}
}

// DefaultRetryable reports whether errors of this kind are retried absent
// an explicit retryable_error_patterns list on the governing RetryPolicy.
func (k ErrorKind) DefaultRetryable() bool {
	switch k {
	case TimeoutExceeded, RateLimitExceeded, AsyncExecutionError, NodeExecutionFailed:
		return true
	default:
		return false
	}
}

// FlowError is the concrete error type returned by engine operations. It
// wraps a named ErrorKind plus a human message and optional underlying cause.
type FlowError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Cause }

// NewFlowError constructs a FlowError of the given kind.
func NewFlowError(kind ErrorKind, message string) *FlowError {
	return &FlowError{Kind: kind, Message: message}
}

// WrapFlowError constructs a FlowError of the given kind wrapping cause.
func WrapFlowError(kind ErrorKind, message string, cause error) *FlowError {
	return &FlowError{Kind: kind, Message: message, Cause: cause}
}

// ErrorInfo is one link in an ErrorContext's error chain: the minimal
// identity of an error, without the full surrounding execution context.
type ErrorInfo struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
}

func errorInfoFrom(err error) ErrorInfo {
	if fe, ok := err.(*FlowError); ok {
		info := ErrorInfo{ErrorType: fe.Kind.String(), Message: fe.Message}
		if fe.Cause != nil {
			info.Source = fe.Cause.Error()
		}
		return info
	}
	return ErrorInfo{ErrorType: "error", Message: err.Error()}
}

// ErrorContext captures everything needed to diagnose a node or flow
// failure: the error chain, the inputs in play, timing, and execution
// history up to the point of failure.
type ErrorContext struct {
	RunID            string            `json:"run_id"`
	NodeName         string            `json:"node_name"`
	NodeType         string            `json:"node_type,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	ErrorChain       []ErrorInfo       `json:"error_chain"`
	Inputs           map[string]string `json:"inputs,omitempty"`
	Duration         time.Duration     `json:"-"`
	ExecutionHistory []string          `json:"execution_history"`
	RetryAttempt     *int              `json:"retry_attempt,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// NewErrorContext builds an ErrorContext from a terminal error, walking its
// Unwrap chain to populate ErrorChain root-cause-first.
func NewErrorContext(runID, nodeName string, err error, history []string, duration time.Duration) ErrorContext {
	ec := ErrorContext{
		RunID:            runID,
		NodeName:         nodeName,
		Timestamp:        time.Now().UTC(),
		Duration:         duration,
		ExecutionHistory: append([]string(nil), history...),
	}
	for cur := err; cur != nil; {
		ec.ErrorChain = append(ec.ErrorChain, errorInfoFrom(cur))
		unwrapper, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = unwrapper.Unwrap()
	}
	// Walking Unwrap() visits outermost-first; the contract orders the
	// chain from root cause to outermost, so reverse it.
	for i, j := 0, len(ec.ErrorChain)-1; i < j; i, j = i+1, j-1 {
		ec.ErrorChain[i], ec.ErrorChain[j] = ec.ErrorChain[j], ec.ErrorChain[i]
	}
	return ec
}

// durationMs is a JSON-friendly helper mirroring what errorContextJSON emits.
func (ec ErrorContext) durationMs() int64 {
	return ec.Duration.Milliseconds()
}

// errorContextJSON is the wire shape for ErrorContext.MarshalJSON: it adds
// duration_ms (ErrorContext.Duration is not itself JSON-friendly as a
// time.Duration) and truncates oversized input values.
type errorContextJSON struct {
	RunID            string            `json:"run_id"`
	NodeName         string            `json:"node_name"`
	NodeType         string            `json:"node_type,omitempty"`
	Timestamp        string            `json:"timestamp"`
	ErrorChain       []ErrorInfo       `json:"error_chain"`
	Inputs           map[string]string `json:"inputs,omitempty"`
	DurationMs       int64             `json:"duration_ms"`
	ExecutionHistory []string          `json:"execution_history"`
	RetryAttempt     *int              `json:"retry_attempt,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

const maxFieldBytes = 500

func truncateField(s string) string {
	if len(s) <= maxFieldBytes {
		return s
	}
	return fmt.Sprintf("%s... (truncated, %d bytes)", s[:maxFieldBytes], len(s))
}

// MarshalJSON renders ErrorContext with RFC3339 timestamps, a duration_ms
// field, and input values truncated past 500 bytes.
func (ec ErrorContext) MarshalJSON() ([]byte, error) {
	inputs := make(map[string]string, len(ec.Inputs))
	for k, v := range ec.Inputs {
		inputs[k] = truncateField(v)
	}
	if len(inputs) == 0 {
		inputs = nil
	}
	wire := errorContextJSON{
		RunID:            ec.RunID,
		NodeName:         ec.NodeName,
		NodeType:         ec.NodeType,
		Timestamp:        ec.Timestamp.Format(time.RFC3339),
		ErrorChain:       ec.ErrorChain,
		Inputs:           inputs,
		DurationMs:       ec.durationMs(),
		ExecutionHistory: ec.ExecutionHistory,
		RetryAttempt:     ec.RetryAttempt,
		Metadata:         ec.Metadata,
	}
	return json.Marshal(wire)
}

// DetailedReport renders a boxed, human-readable summary suitable for
// terminal or log output.
func (ec ErrorContext) DetailedReport() string {
	var b strings.Builder
	width := 72
	rule := strings.Repeat("-", width)

	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "Flow execution failed: run=%s node=%s\n", ec.RunID, ec.NodeName)
	if ec.NodeType != "" {
		fmt.Fprintf(&b, "  node_type: %s\n", ec.NodeType)
	}
	fmt.Fprintf(&b, "  at:        %s\n", ec.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "  duration:  %s\n", ec.Duration)
	if ec.RetryAttempt != nil {
		fmt.Fprintf(&b, "  attempt:   %d\n", *ec.RetryAttempt)
	}
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "Error chain:\n")
	for i, info := range ec.ErrorChain {
		fmt.Fprintf(&b, "  [%d] %s: %s\n", i, info.ErrorType, info.Message)
		if info.Source != "" {
			fmt.Fprintf(&b, "      caused by: %s\n", info.Source)
		}
	}
	if len(ec.ExecutionHistory) > 0 {
		fmt.Fprintf(&b, "%s\n", rule)
		fmt.Fprintf(&b, "Execution history:\n")
		for _, step := range ec.ExecutionHistory {
			fmt.Fprintf(&b, "  -> %s\n", step)
		}
	}
	fmt.Fprintf(&b, "%s\n", rule)
	return b.String()
}
