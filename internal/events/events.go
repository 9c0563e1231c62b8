// Package events provides the in-process audit event log for transfer
// tracking. Every significant occurrence in a transfer's lifecycle is
// logged here: acceptance, submission, leg transitions, reconciliation
// results, and persistence retries. Consumers subscribe for streaming or
// read the recent window.
package events

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// Type classifies the kind of transfer event.
type Type string

const (
	EventTransferAccepted  Type = "transfer.accepted"
	EventTransferSubmitted Type = "transfer.submitted"
	EventTransferRejected  Type = "transfer.rejected"
	EventTransferTerminal  Type = "transfer.terminal"
	EventTransferCancelled Type = "transfer.cancelled"
	EventTransferResumed   Type = "transfer.resumed"

	EventLegTransition Type = "leg.transition"
	EventLegPollError  Type = "leg.poll_error"
	EventLegStale      Type = "leg.stale_update"

	EventPersistRetried Type = "persist.retried"
	EventPersistFailed  Type = "persist.failed"
)

// Severity indicates the importance of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one structured audit event.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Severity   Severity          `json:"severity"`
	Timestamp  time.Time         `json:"timestamp"`
	TransferID string            `json:"transfer_id,omitempty"`
	LegRole    string            `json:"leg_role,omitempty"`
	Status     string            `json:"status,omitempty"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Handler processes events as they occur.
type Handler func(Event)

// Log is the interface for event logging.
type Log interface {
	// Record adds an event to the log and notifies subscribers.
	Record(event Event)

	// Subscribe registers a handler; the returned func unsubscribes.
	Subscribe(handler Handler) func()

	// Recent returns the most recent n events, newest last.
	Recent(n int) []Event

	// RecentByTransfer returns recent events for one transfer.
	RecentByTransfer(transferID string, n int) []Event
}

// NopLog discards all events.
type NopLog struct{}

// Record implements Log.
func (NopLog) Record(Event) {}

// Subscribe implements Log.
func (NopLog) Subscribe(Handler) func() { return func() {} }

// Recent implements Log.
func (NopLog) Recent(int) []Event { return nil }

// RecentByTransfer implements Log.
func (NopLog) RecentByTransfer(string, int) []Event { return nil }

// RingBuffer is a thread-safe circular buffer implementing Log.
type RingBuffer struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers map[int64]Handler
	nextSub  int64
}

var eventSeq atomic.Int64

// NewRingBuffer creates an event log retaining the last size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1000
	}
	return &RingBuffer{
		events:   make([]Event, size),
		size:     size,
		handlers: make(map[int64]Handler),
	}
}

// Record implements Log.
func (rb *RingBuffer) Record(event Event) {
	rb.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = "evt-" + strconv.FormatInt(eventSeq.Add(1), 10)
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}

	handlers := make([]Handler, 0, len(rb.handlers))
	for _, h := range rb.handlers {
		handlers = append(handlers, h)
	}
	rb.mu.Unlock()

	// Notify outside the lock.
	for _, h := range handlers {
		h(event)
	}
}

// Subscribe implements Log.
func (rb *RingBuffer) Subscribe(handler Handler) func() {
	rb.mu.Lock()
	id := rb.nextSub
	rb.nextSub++
	rb.handlers[id] = handler
	rb.mu.Unlock()

	return func() {
		rb.mu.Lock()
		delete(rb.handlers, id)
		rb.mu.Unlock()
	}
}

// Recent implements Log.
func (rb *RingBuffer) Recent(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.recentLocked(n, func(Event) bool { return true })
}

// RecentByTransfer implements Log.
func (rb *RingBuffer) RecentByTransfer(transferID string, n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.recentLocked(n, func(e Event) bool { return e.TransferID == transferID })
}

func (rb *RingBuffer) recentLocked(n int, match func(Event) bool) []Event {
	if n <= 0 || rb.count == 0 {
		return nil
	}

	var out []Event
	for i := 0; i < rb.count && len(out) < n; i++ {
		idx := (rb.head - 1 - i + rb.size*2) % rb.size
		if match(rb.events[idx]) {
			out = append(out, rb.events[idx])
		}
	}

	// Reverse so callers see oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// LegTransition builds the standard leg transition event.
func LegTransition(transferID string, role transfer.LegRole, from, to transfer.LegState, reason string) Event {
	sev := SeverityInfo
	if to == transfer.LegFailed || to == transfer.LegTimedOut {
		sev = SeverityError
	}
	return Event{
		Type:       EventLegTransition,
		Severity:   sev,
		TransferID: transferID,
		LegRole:    role.String(),
		Status:     to.String(),
		Message:    "leg " + from.String() + " -> " + to.String(),
		Error:      reason,
	}
}
