package agentflow

import (
	"encoding/json"
	"strings"
	"sync"
)

// SharedState is the single mutable resource nodes read and write during a
// Flow run. Concurrent readers are allowed; writes are serialized. Resource
// limits, if configured, are enforced on every write.
type SharedState struct {
	mu      sync.RWMutex
	values  map[string]Value
	monitor *StateMonitor
}

// NewSharedState constructs an empty SharedState enforcing limits via a
// monitor running in mode.
func NewSharedState(limits ResourceLimits, mode MonitorMode) *SharedState {
	return &SharedState{
		values:  make(map[string]Value),
		monitor: NewStateMonitor(limits, mode),
	}
}

// Insert stores value under key, subject to resource limits. It returns
// false (and records alerts retrievable via Alerts/PeekAlerts) if the write
// was rejected.
func (s *SharedState) Insert(key string, value Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(key, value)
}

func (s *SharedState) insertLocked(key string, value Value) bool {
	ok := s.monitor.RecordAllocation(key, value.ByteSize())
	for _, evicted := range s.monitor.DrainEvictions() {
		delete(s.values, evicted)
	}
	if !ok {
		return false
	}
	s.values[key] = value
	return true
}

// Get returns the value stored at key, if present, and marks it as recently
// accessed for LRU purposes.
func (s *SharedState) Get(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if ok {
		s.monitor.RecordAccess(key)
	}
	return v, ok
}

// Remove deletes key, if present, returning its prior value.
func (s *SharedState) Remove(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if ok {
		delete(s.values, key)
		s.monitor.RecordDeallocation(key)
	}
	return v, ok
}

// ContainsKey reports whether key is currently stored.
func (s *SharedState) ContainsKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Keys returns all currently stored keys in unspecified order.
func (s *SharedState) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Iter calls fn for every key/value pair stored when Iter was called. It
// iterates a snapshot taken under the read lock and released before fn
// runs, so fn may call any SharedState method, including Insert and Remove.
func (s *SharedState) Iter(fn func(key string, value Value)) {
	s.mu.RLock()
	snapshot := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.RUnlock()
	for k, v := range snapshot {
		fn(k, v)
	}
}

// Len returns the number of stored keys.
func (s *SharedState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Stats returns the underlying monitor's current usage snapshot.
func (s *SharedState) Stats() MonitorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitor.GetStats()
}

// Alerts drains and returns alerts recorded by the monitor since the last call.
func (s *SharedState) Alerts() []ResourceAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor.GetAlerts()
}

// PeekAlerts returns recorded alerts without draining them.
func (s *SharedState) PeekAlerts() []ResourceAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitor.PeekAlerts()
}

// ClearAlerts discards all pending alerts.
func (s *SharedState) ClearAlerts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor.ClearAlerts()
}

// Cleanup forces the monitor to evict least-recently-used entries until
// total usage is at or below targetFraction of MaxStateSize, returning how
// much was freed.
func (s *SharedState) Cleanup(targetFraction float64) (freedBytes, removedCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	freedBytes, removedCount = s.monitor.Cleanup(targetFraction)
	for _, evicted := range s.monitor.DrainEvictions() {
		delete(s.values, evicted)
	}
	return freedBytes, removedCount
}

// ExportValues returns a shallow copy of every stored Value, preserving
// File/URL handles intact. Used by snapshot persistence, which needs the
// real handles rather than Export's rendered labels.
func (s *SharedState) ExportValues() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// ImportValues replaces this SharedState's contents with values, subject to
// resource limits exactly as Insert would apply them. Used to restore a
// SharedState from a persisted snapshot.
func (s *SharedState) ImportValues(values map[string]Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.values {
		delete(s.values, k)
		s.monitor.RecordDeallocation(k)
	}
	for k, v := range values {
		s.insertLocked(k, v)
	}
}

// Export returns a JSON-serializable snapshot of the entire state, suitable
// for debugging dumps. File/URL values serialize as their Render() label,
// never their raw handle, so exported snapshots never leak more than a path
// or URL plus MIME hint.
func (s *SharedState) Export() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		if v.Kind() == KindJSON {
			out[k] = v.AsJSON()
		} else {
			out[k] = v.Render()
		}
	}
	return out
}

// snapshotValue returns the value at key, used by the template resolver's
// dotted-path descent.
func (s *SharedState) snapshotValue(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// ResolveTemplate substitutes every {{ expr }} placeholder in tmpl.
//
// expr may be a bare key ("foo"), a dotted path into JSON structure
// ("a.b.c"), or the "inputs." sugar ("inputs.foo", equivalent to the key
// "input_foo"). A key that does not resolve substitutes the empty string.
// An unclosed "{{" with no matching "}}" is passed through verbatim.
// Substituted text is never re-scanned for further placeholders.
func (s *SharedState) ResolveTemplate(tmpl string) string {
	var out strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		afterOpen := rest[start+2:]
		end := strings.Index(afterOpen, "}}")
		if end < 0 {
			out.WriteString("{{")
			out.WriteString(afterOpen)
			break
		}
		expr := strings.TrimSpace(afterOpen[:end])
		out.WriteString(s.resolveExpr(expr))
		rest = afterOpen[end+2:]
	}
	return out.String()
}

func (s *SharedState) resolveExpr(expr string) string {
	if expr == "" {
		return ""
	}
	key := expr
	if strings.HasPrefix(expr, "inputs.") {
		key = "input_" + strings.TrimPrefix(expr, "inputs.")
	}

	segments := strings.Split(key, ".")
	root := segments[0]
	v, ok := s.snapshotValue(root)
	if !ok {
		return ""
	}
	s.mu.Lock()
	s.monitor.RecordAccess(root)
	s.mu.Unlock()

	if len(segments) == 1 {
		return v.Render()
	}
	if v.Kind() != KindJSON {
		return ""
	}
	leaf, ok := lookupPath(v.AsJSON(), segments[1:])
	if !ok {
		return ""
	}
	return Value{kind: KindJSON, json: leaf}.Render()
}

// MarshalJSON renders SharedState as the plain JSON object Export returns,
// with File/URL values as labels, for debugging dumps.
func (s *SharedState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Export())
}
