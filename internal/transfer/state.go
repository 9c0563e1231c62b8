// Package transfer defines the domain model for cross-chain transfers:
// requests, transactions, legs, their state enumerations, and the
// reconciliation function that derives a transaction status from leg states.
package transfer

import (
	"encoding/json"
	"fmt"
)

// LegState represents the observed state of a single on-chain leg.
type LegState int32

const (
	// LegSubmitted indicates the leg has been submitted and is awaiting
	// on-chain observation.
	LegSubmitted LegState = iota

	// LegConfirmed indicates the leg settled on chain.
	LegConfirmed

	// LegFailed indicates the leg failed on chain or exhausted its poll
	// retry budget.
	LegFailed

	// LegTimedOut indicates the leg did not settle before its deadline.
	LegTimedOut
)

// String returns the string representation of the leg state.
func (s LegState) String() string {
	switch s {
	case LegSubmitted:
		return "submitted"
	case LegConfirmed:
		return "confirmed"
	case LegFailed:
		return "failed"
	case LegTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("legstate(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s LegState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *LegState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseLegState(str)
	return nil
}

// ParseLegState converts a string to LegState.
func ParseLegState(s string) LegState {
	switch s {
	case "submitted", "pending": // accept legacy alias
		return LegSubmitted
	case "confirmed":
		return LegConfirmed
	case "failed":
		return LegFailed
	case "timed-out", "timedout":
		return LegTimedOut
	default:
		return LegSubmitted
	}
}

// IsTerminal returns true once the leg can no longer change state.
func (s LegState) IsTerminal() bool {
	return s == LegConfirmed || s == LegFailed || s == LegTimedOut
}

// CanTransition returns true if a leg may move from -> to. Leg states are
// monotonic: a terminal state never regresses, and re-observing the same
// state is allowed as a no-op.
func CanTransition(from, to LegState) bool {
	if from == to {
		return true
	}
	return from == LegSubmitted
}

// TransitionError reports a rejected leg state transition.
type TransitionError struct {
	From LegState
	To   LegState
}

// Error implements error.
func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid leg transition: %s -> %s", e.From, e.To)
}

// TxStatus is the reconciled, caller-visible status of a transaction.
type TxStatus int32

const (
	// StatusPending indicates at least one leg is still in flight.
	StatusPending TxStatus = iota

	// StatusSucceeded indicates every leg confirmed and the delivered
	// amount matched the request within tolerance.
	StatusSucceeded

	// StatusFailed indicates a leg failed, timed out, or the delivered
	// amount fell outside tolerance.
	StatusFailed
)

// String returns the string representation of the status.
func (s TxStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("txstatus(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s TxStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *TxStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseTxStatus(str)
	return nil
}

// ParseTxStatus converts a string to TxStatus.
func ParseTxStatus(s string) TxStatus {
	switch s {
	case "pending":
		return StatusPending
	case "succeeded", "completed": // accept legacy alias
		return StatusSucceeded
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// IsTerminal returns true for statuses that end tracking.
func (s TxStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// LegRole identifies which side of the transfer a leg observes.
type LegRole int32

const (
	// LegRoleSource is the leg on the chain funds leave from.
	LegRoleSource LegRole = iota

	// LegRoleDestination is the leg on the chain funds arrive on.
	LegRoleDestination
)

// String returns the string representation of the role.
func (r LegRole) String() string {
	switch r {
	case LegRoleSource:
		return "source"
	case LegRoleDestination:
		return "destination"
	default:
		return fmt.Sprintf("legrole(%d)", r)
	}
}

// MarshalJSON implements json.Marshaler.
func (r LegRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *LegRole) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "destination":
		*r = LegRoleDestination
	default:
		*r = LegRoleSource
	}
	return nil
}
