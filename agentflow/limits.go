package agentflow

import "fmt"

// ResourceLimits bounds how much memory a SharedState may consume and how
// it behaves as it approaches those bounds. Zero-value limits disable the
// corresponding check (treated as "no limit").
type ResourceLimits struct {
	// MaxStateSize caps the total estimated byte size of all values held by
	// a SharedState. Zero means unbounded.
	MaxStateSize int

	// MaxValueSize caps the estimated byte size of any single value. A
	// write exceeding this is rejected immediately, never evicted around.
	MaxValueSize int

	// MaxCacheEntries caps the number of distinct keys held. Zero means
	// unbounded.
	MaxCacheEntries int

	// CleanupThreshold is the fraction of MaxStateSize (0.0-1.0) at which
	// an ApproachingLimit alert fires and MonitorStats.ShouldCleanup turns
	// true. Reaching it does not by itself evict anything.
	CleanupThreshold float64

	// AutoCleanup enables LRU eviction when a write would exceed
	// MaxStateSize or MaxCacheEntries. When false, writes past the limit
	// are rejected outright.
	AutoCleanup bool

	// EnableStreaming allows large values to be chunked rather than held
	// whole; StreamChunkSize is the chunk size in bytes.
	EnableStreaming bool
	StreamChunkSize int
}

// DefaultResourceLimits returns permissive limits suitable for development:
// generous size caps, auto-cleanup enabled, streaming off.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxStateSize:     100 * 1024 * 1024,
		MaxValueSize:     10 * 1024 * 1024,
		MaxCacheEntries:  1000,
		CleanupThreshold: 0.8,
		AutoCleanup:      true,
		EnableStreaming:  false,
		StreamChunkSize:  64 * 1024,
	}
}

// Validate checks r for internal consistency, returning a ConfigurationError
// FlowError describing the first violation found. A zero-value size field is
// a deliberate "unbounded" marker (see the field docs above) and is not
// itself a violation; only negative sizes and an out-of-range threshold are
// rejected outright.
func (r ResourceLimits) Validate() error {
	if r.MaxStateSize < 0 {
		return NewFlowError(ConfigurationError, "max_state_size must not be negative")
	}
	if r.MaxValueSize < 0 {
		return NewFlowError(ConfigurationError, "max_value_size must not be negative")
	}
	if r.MaxCacheEntries < 0 {
		return NewFlowError(ConfigurationError, "max_cache_entries must not be negative")
	}
	if r.CleanupThreshold < 0 || r.CleanupThreshold > 1 {
		return NewFlowError(ConfigurationError, fmt.Sprintf("cleanup_threshold must be within [0,1], got %v", r.CleanupThreshold))
	}
	if r.MaxValueSize > 0 && r.MaxStateSize > 0 && r.MaxValueSize > r.MaxStateSize {
		return NewFlowError(ConfigurationError, "max_value_size must not exceed max_state_size")
	}
	return nil
}

func (r ResourceLimits) exceedsValueLimit(size int) bool {
	return r.MaxValueSize > 0 && size > r.MaxValueSize
}

func (r ResourceLimits) exceedsStateLimit(totalSize int) bool {
	return r.MaxStateSize > 0 && totalSize > r.MaxStateSize
}

func (r ResourceLimits) exceedsEntryLimit(count int) bool {
	return r.MaxCacheEntries > 0 && count > r.MaxCacheEntries
}

func (r ResourceLimits) approachingFraction(used, max int) (float64, bool) {
	if max <= 0 {
		return 0, false
	}
	frac := float64(used) / float64(max)
	return frac, r.CleanupThreshold > 0 && frac >= r.CleanupThreshold
}
