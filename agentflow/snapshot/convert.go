package snapshot

import "github.com/agentflow/agentflow-go/agentflow"

// FromFlowValue converts an agentflow.Value into its JSON-serializable wire
// form for persistence.
func FromFlowValue(v agentflow.Value) Value {
	switch v.Kind() {
	case agentflow.KindFile:
		return Value{Kind: "file", Path: v.Path(), MimeType: v.MimeType()}
	case agentflow.KindURL:
		return Value{Kind: "url", URL: v.URLString(), MimeType: v.MimeType()}
	default:
		return Value{Kind: "json", JSON: v.AsJSON()}
	}
}

// ToFlowValue reconstructs an agentflow.Value from its persisted wire form.
func (v Value) ToFlowValue() agentflow.Value {
	switch v.Kind {
	case "file":
		return agentflow.File(v.Path, v.MimeType)
	case "url":
		return agentflow.URL(v.URL, v.MimeType)
	default:
		return agentflow.JSON(v.JSON)
	}
}

// StateToWire converts a SharedState snapshot into the wire map used by
// Store methods.
func StateToWire(values map[string]agentflow.Value) map[string]Value {
	out := make(map[string]Value, len(values))
	for k, v := range values {
		out[k] = FromFlowValue(v)
	}
	return out
}

// WireToState converts a persisted wire map back into agentflow.Value form.
func WireToState(wire map[string]Value) map[string]agentflow.Value {
	out := make(map[string]agentflow.Value, len(wire))
	for k, v := range wire {
		out[k] = v.ToFlowValue()
	}
	return out
}
