// Package adapter defines the uniform capability set every bridging
// protocol implementation provides, and the registry the orchestrator
// dispatches through. Adding a protocol means adding one ProtocolID
// variant and one adapter; call sites never change.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// Adapter is the per-protocol translator between the generic submit/poll
// operations and that protocol's wire calls.
type Adapter interface {
	// Protocol identifies which protocol this adapter serves.
	Protocol() transfer.ProtocolID

	// Submit contacts the bridging service and returns one handle per leg
	// the protocol defines, source leg first. On rejection it returns a
	// SubmissionError reporting which legs, if any, were actually created.
	Submit(ctx context.Context, req transfer.Request) ([]transfer.LegHandle, error)

	// PollStatus reads the current state of one leg. It is idempotent:
	// repeated calls have no side effects beyond the read. Transient
	// network failures are reported as TransientError, never as a leg
	// failure; only the orchestrator's timeout policy may time a leg out.
	PollStatus(ctx context.Context, handle transfer.LegHandle) (transfer.Observation, error)

	// LegDeadline returns the protocol-specific absolute deadline for the
	// given leg role, measured from submission.
	LegDeadline(role transfer.LegRole) time.Duration
}

// SubmissionError reports a rejected or partially-failed submission.
type SubmissionError struct {
	Protocol    transfer.ProtocolID
	CreatedLegs []transfer.LegHandle
	Err         error
}

// Error implements error.
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission failed (%d legs created): %v", e.Protocol, len(e.CreatedLegs), e.Err)
}

// Unwrap returns the underlying cause.
func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientError marks a poll failure as retryable. The polling loop
// retries it per its backoff schedule instead of failing the leg.
type TransientError struct {
	Err error
}

// Error implements error.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient poll error: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error { return e.Err }

// Registry maps protocols to their adapters.
type Registry struct {
	adapters map[transfer.ProtocolID]Adapter
}

// NewRegistry builds a registry from the given adapters. Registering two
// adapters for one protocol is a load-time fatal error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[transfer.ProtocolID]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Protocol()]; dup {
			return nil, fmt.Errorf("adapter: duplicate registration for protocol %s", a.Protocol())
		}
		r.adapters[a.Protocol()] = a
	}
	return r, nil
}

// Get returns the adapter for the protocol.
func (r *Registry) Get(p transfer.ProtocolID) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("adapter: no adapter registered for protocol %s", p)
	}
	return a, nil
}
