package events

import (
	"fmt"
	"testing"

	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

func TestRingBuffer_RecordAssignsDefaults(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Record(Event{Type: EventTransferAccepted, TransferID: "tx-1"})

	got := rb.Recent(1)
	if len(got) != 1 {
		t.Fatalf("Recent(1) returned %d events", len(got))
	}
	e := got[0]
	if e.ID == "" {
		t.Error("event ID not assigned")
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
	if e.Severity != SeverityInfo {
		t.Errorf("severity = %s, want info", e.Severity)
	}
}

func TestRingBuffer_WrapsAndOrdersOldestFirst(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 1; i <= 5; i++ {
		rb.Record(Event{Type: EventLegTransition, Message: fmt.Sprintf("m%d", i)})
	}

	got := rb.Recent(10)
	if len(got) != 3 {
		t.Fatalf("Recent returned %d events, want 3", len(got))
	}
	for i, want := range []string{"m3", "m4", "m5"} {
		if got[i].Message != want {
			t.Errorf("event[%d].Message = %s, want %s", i, got[i].Message, want)
		}
	}
}

func TestRingBuffer_RecentByTransferFilters(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Record(Event{Type: EventTransferAccepted, TransferID: "tx-a"})
	rb.Record(Event{Type: EventTransferAccepted, TransferID: "tx-b"})
	rb.Record(Event{Type: EventTransferTerminal, TransferID: "tx-a"})

	got := rb.RecentByTransfer("tx-a", 10)
	if len(got) != 2 {
		t.Fatalf("RecentByTransfer returned %d events, want 2", len(got))
	}
	if got[0].Type != EventTransferAccepted || got[1].Type != EventTransferTerminal {
		t.Errorf("unexpected order: %s, %s", got[0].Type, got[1].Type)
	}
}

func TestRingBuffer_SubscribeAndUnsubscribe(t *testing.T) {
	rb := NewRingBuffer(10)

	var seen []Event
	unsubscribe := rb.Subscribe(func(e Event) { seen = append(seen, e) })

	rb.Record(Event{Type: EventTransferAccepted, TransferID: "tx-1"})
	if len(seen) != 1 {
		t.Fatalf("handler saw %d events, want 1", len(seen))
	}

	unsubscribe()
	rb.Record(Event{Type: EventTransferTerminal, TransferID: "tx-1"})
	if len(seen) != 1 {
		t.Errorf("handler saw %d events after unsubscribe, want 1", len(seen))
	}
}

func TestLegTransition_SeverityTracksOutcome(t *testing.T) {
	tests := []struct {
		to   transfer.LegState
		want Severity
	}{
		{transfer.LegConfirmed, SeverityInfo},
		{transfer.LegFailed, SeverityError},
		{transfer.LegTimedOut, SeverityError},
	}
	for _, tc := range tests {
		e := LegTransition("tx-1", transfer.LegRoleSource, transfer.LegSubmitted, tc.to, "")
		if e.Severity != tc.want {
			t.Errorf("LegTransition to %v: severity = %s, want %s", tc.to, e.Severity, tc.want)
		}
		if e.Status != tc.to.String() {
			t.Errorf("status = %s, want %s", e.Status, tc.to.String())
		}
	}
}
