package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_TransferCounters(t *testing.T) {
	c := NewCollector("test")

	c.RecordAccepted("snowbridge")
	c.RecordAccepted("snowbridge")
	c.RecordAccepted("xcm")

	if got := testutil.ToFloat64(c.transfersAccepted.WithLabelValues("snowbridge")); got != 2 {
		t.Errorf("accepted{snowbridge} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.transfersInFlight); got != 3 {
		t.Errorf("in_flight = %v, want 3", got)
	}

	c.RecordTerminal("snowbridge", "succeeded")
	if got := testutil.ToFloat64(c.transfersTerminal.WithLabelValues("snowbridge", "succeeded")); got != 1 {
		t.Errorf("terminal{snowbridge,succeeded} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.transfersInFlight); got != 2 {
		t.Errorf("in_flight after terminal = %v, want 2", got)
	}
}

func TestCollector_ResumedKeepsInFlightBalanced(t *testing.T) {
	c := NewCollector("test")

	// A transfer restored after a restart is not accepted again; it
	// re-enters the gauge through RecordResumed so the terminal decrement
	// cannot drive it negative.
	c.RecordResumed()
	c.RecordResumed()
	if got := testutil.ToFloat64(c.transfersInFlight); got != 2 {
		t.Errorf("in_flight after resume = %v, want 2", got)
	}

	c.RecordTerminal("snowbridge", "succeeded")
	c.RecordTerminal("snowbridge", "failed")
	if got := testutil.ToFloat64(c.transfersInFlight); got != 0 {
		t.Errorf("in_flight after terminal = %v, want 0", got)
	}
}

func TestCollector_PollAndPersist(t *testing.T) {
	c := NewCollector("test")

	c.RecordPoll("cctp", "ok", 50*time.Millisecond)
	c.RecordPoll("cctp", "error", 10*time.Millisecond)
	c.RecordLegTransition("cctp", "destination", "confirmed")
	c.RecordPersistRetry()
	c.RecordPersist(5 * time.Millisecond)

	if got := testutil.ToFloat64(c.pollAttempts.WithLabelValues("cctp", "ok")); got != 1 {
		t.Errorf("poll_attempts{cctp,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.legTransitions.WithLabelValues("cctp", "destination", "confirmed")); got != 1 {
		t.Errorf("leg_transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.persistRetries); got != 1 {
		t.Errorf("persist_retries = %v, want 1", got)
	}
}

func TestCollector_RegistryGathers(t *testing.T) {
	c := NewCollector("")
	c.RecordAccepted("snowbridge")

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "transfer_engine_transfers_accepted_total" {
			found = true
		}
	}
	if !found {
		t.Error("accepted counter not exposed through the registry")
	}
}
