package agentflow

import "fmt"

// ResourceAlertKind tags the variant of a ResourceAlert.
type ResourceAlertKind int

const (
	AlertLimitExceeded ResourceAlertKind = iota
	AlertApproachingLimit
	AlertCleanupTriggered
)

// ResourceAlert reports a StateMonitor observation about resource pressure.
// Exactly one set of fields is meaningful depending on Kind.
type ResourceAlert struct {
	Kind ResourceAlertKind

	// LimitExceeded
	Resource  string
	Requested int
	Limit     int

	// ApproachingLimit
	UsageFraction float64

	// CleanupTriggered
	FreedBytes   int
	RemovedCount int
}

func limitExceeded(resource string, requested, limit int) ResourceAlert {
	return ResourceAlert{Kind: AlertLimitExceeded, Resource: resource, Requested: requested, Limit: limit}
}

func approachingLimit(resource string, fraction float64) ResourceAlert {
	return ResourceAlert{Kind: AlertApproachingLimit, Resource: resource, UsageFraction: fraction}
}

func cleanupTriggered(freedBytes, removedCount int) ResourceAlert {
	return ResourceAlert{Kind: AlertCleanupTriggered, FreedBytes: freedBytes, RemovedCount: removedCount}
}

// String renders a short human-readable description, used by logs and ErrorContext.
func (a ResourceAlert) String() string {
	switch a.Kind {
	case AlertLimitExceeded:
		return fmt.Sprintf("limit exceeded: %s requested=%d limit=%d", a.Resource, a.Requested, a.Limit)
	case AlertApproachingLimit:
		return fmt.Sprintf("approaching limit: %s usage=%.1f%%", a.Resource, a.UsageFraction*100)
	case AlertCleanupTriggered:
		return fmt.Sprintf("cleanup triggered: freed=%d bytes removed=%d entries", a.FreedBytes, a.RemovedCount)
	default:
		return "unknown resource alert"
	}
}
