package agentflow

import "container/list"

// MonitorMode selects how much bookkeeping a StateMonitor performs.
type MonitorMode int

const (
	// ModeFast tracks only aggregate counters (total size, entry count).
	// No per-key access order is kept, so LRU eviction falls back to
	// arbitrary (map iteration) order. Cheapest option for hot paths that
	// don't need eviction precision.
	ModeFast MonitorMode = iota

	// ModeDetailed additionally tracks per-key access recency in a
	// doubly-linked list so get_lru_keys / cleanup evict true
	// least-recently-used entries first.
	ModeDetailed
)

// StateMonitor tracks SharedState memory usage against ResourceLimits,
// emits ResourceAlerts, and drives LRU eviction. It is not safe for
// concurrent use by itself; SharedState serializes access to it.
type StateMonitor struct {
	mode   MonitorMode
	limits ResourceLimits

	totalSize int
	sizes     map[string]int

	// detailed-mode LRU bookkeeping: most-recently-used at the front.
	order    *list.List
	elements map[string]*list.Element

	alerts           []ResourceAlert
	pendingEvictions []string
}

// NewStateMonitor constructs a StateMonitor for limits, operating in mode.
func NewStateMonitor(limits ResourceLimits, mode MonitorMode) *StateMonitor {
	m := &StateMonitor{
		mode:   mode,
		limits: limits,
		sizes:  make(map[string]int),
	}
	if mode == ModeDetailed {
		m.order = list.New()
		m.elements = make(map[string]*list.Element)
	}
	return m
}

// RecordAllocation accounts for a new or updated value at key with the
// given byte size. It returns ok=false with a LimitExceeded alert recorded
// if the write cannot proceed even after an auto-cleanup attempt (at most
// one cleanup per call).
func (m *StateMonitor) RecordAllocation(key string, size int) (ok bool) {
	if m.limits.exceedsValueLimit(size) {
		m.alerts = append(m.alerts, limitExceeded("value_size", size, m.limits.MaxValueSize))
		return false
	}

	prevSize, existed := m.sizes[key]
	projected := m.totalSize - prevSize + size

	if m.limits.exceedsStateLimit(projected) {
		if m.limits.AutoCleanup {
			m.cleanupOnceExcept(projected-m.limits.MaxStateSize, key)
			prevSize, existed = m.sizes[key]
			projected = m.totalSize - prevSize + size
		}
		if m.limits.exceedsStateLimit(projected) {
			m.alerts = append(m.alerts, limitExceeded("state_size", projected, m.limits.MaxStateSize))
			return false
		}
	}

	if !existed && m.limits.exceedsEntryLimit(len(m.sizes)+1) {
		if m.limits.AutoCleanup {
			m.cleanupOneEntry()
		}
		if m.limits.exceedsEntryLimit(len(m.sizes) + 1) {
			m.alerts = append(m.alerts, limitExceeded("cache_entries", len(m.sizes)+1, m.limits.MaxCacheEntries))
			return false
		}
	}

	m.totalSize = m.totalSize - prevSize + size
	m.sizes[key] = size
	m.touch(key)

	if frac, warn := m.limits.approachingFraction(m.totalSize, m.limits.MaxStateSize); warn {
		m.alerts = append(m.alerts, approachingLimit("state_size", frac))
	}
	return true
}

// RecordDeallocation removes key's accounting, e.g. after a delete.
func (m *StateMonitor) RecordDeallocation(key string) {
	size, ok := m.sizes[key]
	if !ok {
		return
	}
	m.totalSize -= size
	delete(m.sizes, key)
	if m.mode == ModeDetailed {
		if el, ok := m.elements[key]; ok {
			m.order.Remove(el)
			delete(m.elements, key)
		}
	}
}

// RecordAccess marks key as recently used, for LRU ordering. No-op in fast mode.
func (m *StateMonitor) RecordAccess(key string) {
	if _, ok := m.sizes[key]; !ok {
		return
	}
	m.touch(key)
}

func (m *StateMonitor) touch(key string) {
	if m.mode != ModeDetailed {
		return
	}
	if el, ok := m.elements[key]; ok {
		m.order.MoveToFront(el)
		return
	}
	m.elements[key] = m.order.PushFront(key)
}

// GetLRUKeys returns keys ordered least-recently-used first. In fast mode
// the order is unspecified (map iteration order).
func (m *StateMonitor) GetLRUKeys() []string {
	if m.mode == ModeDetailed {
		keys := make([]string, 0, m.order.Len())
		for el := m.order.Back(); el != nil; el = el.Prev() {
			keys = append(keys, el.Value.(string))
		}
		return keys
	}
	keys := make([]string, 0, len(m.sizes))
	for k := range m.sizes {
		keys = append(keys, k)
	}
	return keys
}

// cleanupOnce evicts least-recently-used keys until at least needBytes has
// been freed or there is nothing left to evict. Records a CleanupTriggered
// alert summarizing the result. The caller is responsible for actually
// removing evicted keys from SharedState's own value map via DrainEvictions().
func (m *StateMonitor) cleanupOnce(needBytes int) (freedBytes, removedCount int) {
	return m.cleanupOnceExcept(needBytes, "")
}

// cleanupOnceExcept behaves like cleanupOnce but never evicts except, the
// key currently being written — eviction must never remove the key an
// in-progress insert is about to (re)write.
func (m *StateMonitor) cleanupOnceExcept(needBytes int, except string) (freedBytes, removedCount int) {
	if needBytes <= 0 {
		return 0, 0
	}
	for _, key := range m.GetLRUKeys() {
		if freedBytes >= needBytes {
			break
		}
		if key == except {
			continue
		}
		size := m.sizes[key]
		m.RecordDeallocation(key)
		m.pendingEvictions = append(m.pendingEvictions, key)
		freedBytes += size
		removedCount++
	}
	if removedCount > 0 {
		m.alerts = append(m.alerts, cleanupTriggered(freedBytes, removedCount))
	}
	return freedBytes, removedCount
}

func (m *StateMonitor) cleanupOneEntry() {
	keys := m.GetLRUKeys()
	if len(keys) == 0 {
		return
	}
	key := keys[0]
	size := m.sizes[key]
	m.RecordDeallocation(key)
	m.pendingEvictions = append(m.pendingEvictions, key)
	m.alerts = append(m.alerts, cleanupTriggered(size, 1))
}

// pendingEvictions accumulates keys StateMonitor decided to evict during
// RecordAllocation so the owning SharedState can remove the corresponding
// values. DrainEvictions clears and returns them.
func (m *StateMonitor) DrainEvictions() []string {
	evictions := m.pendingEvictions
	m.pendingEvictions = nil
	return evictions
}

// Cleanup forces an eviction pass targeting a usage fraction of
// MaxStateSize: it evicts least-recently-used entries until the total size
// is at or below targetFraction*MaxStateSize, or nothing is left to evict.
// A non-positive targetFraction evicts everything possible; a
// non-positive/unbounded MaxStateSize makes targetFraction meaningless and
// Cleanup is a no-op. Exposed for callers that want to proactively reclaim
// space outside of a write path.
func (m *StateMonitor) Cleanup(targetFraction float64) (freedBytes, removedCount int) {
	if m.limits.MaxStateSize <= 0 {
		return 0, 0
	}
	target := int(targetFraction * float64(m.limits.MaxStateSize))
	needBytes := m.totalSize - target
	return m.cleanupOnce(needBytes)
}

// GetStats returns the current aggregate usage.
func (m *StateMonitor) GetStats() MonitorStats {
	frac, shouldCleanup := m.limits.approachingFraction(m.totalSize, m.limits.MaxStateSize)
	return MonitorStats{
		CurrentSize:   m.totalSize,
		ValueCount:    len(m.sizes),
		Limits:        m.limits,
		UsageFraction: frac,
		ShouldCleanup: shouldCleanup,
	}
}

// MonitorStats is a point-in-time snapshot of StateMonitor usage.
type MonitorStats struct {
	CurrentSize   int
	ValueCount    int
	Limits        ResourceLimits
	UsageFraction float64
	ShouldCleanup bool
}

// GetAlerts drains and returns all alerts recorded since the last call.
func (m *StateMonitor) GetAlerts() []ResourceAlert {
	alerts := m.alerts
	m.alerts = nil
	return alerts
}

// PeekAlerts returns recorded alerts without draining them.
func (m *StateMonitor) PeekAlerts() []ResourceAlert {
	out := make([]ResourceAlert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// ClearAlerts discards all recorded alerts without returning them.
func (m *StateMonitor) ClearAlerts() {
	m.alerts = nil
}
