package agentflow_test

import (
	"testing"

	"github.com/agentflow/agentflow-go/agentflow"
)

func TestStateMonitorAlertsDrainAndPeek(t *testing.T) {
	limits := agentflow.ResourceLimits{MaxValueSize: 2}
	monitor := agentflow.NewStateMonitor(limits, agentflow.ModeFast)

	if ok := monitor.RecordAllocation("k", 10); ok {
		t.Fatalf("expected allocation to be rejected")
	}

	peeked := monitor.PeekAlerts()
	if len(peeked) != 1 {
		t.Fatalf("PeekAlerts() len = %d, want 1", len(peeked))
	}
	drained := monitor.GetAlerts()
	if len(drained) != 1 {
		t.Fatalf("GetAlerts() len = %d, want 1", len(drained))
	}
	if remaining := monitor.GetAlerts(); len(remaining) != 0 {
		t.Errorf("expected GetAlerts to drain, still have %d", len(remaining))
	}
}

func TestStateMonitorClearAlerts(t *testing.T) {
	limits := agentflow.ResourceLimits{MaxValueSize: 1}
	monitor := agentflow.NewStateMonitor(limits, agentflow.ModeFast)
	monitor.RecordAllocation("k", 5)

	if len(monitor.PeekAlerts()) == 0 {
		t.Fatalf("expected an alert to be recorded")
	}
	monitor.ClearAlerts()
	if len(monitor.PeekAlerts()) != 0 {
		t.Errorf("expected alerts cleared")
	}
}

func TestStateMonitorFastModeLRUOrderUnspecifiedButComplete(t *testing.T) {
	monitor := agentflow.NewStateMonitor(agentflow.ResourceLimits{}, agentflow.ModeFast)
	monitor.RecordAllocation("a", 1)
	monitor.RecordAllocation("b", 1)

	keys := monitor.GetLRUKeys()
	if len(keys) != 2 {
		t.Fatalf("GetLRUKeys() len = %d, want 2", len(keys))
	}
}
