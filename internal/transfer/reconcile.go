package transfer

import (
	"fmt"
	"math/big"
)

// Reasons recorded on a transaction's error list by reconciliation and the
// polling loop.
const (
	ReasonPollExhausted          = "poll retries exhausted"
	ReasonLegTimeout             = "leg deadline elapsed"
	ReasonReconciliationConflict = "delivered amount outside tolerance"
)

// Outcome is the result of reconciling a transfer's legs.
type Outcome struct {
	Status TxStatus
	Reason string
}

// Reconcile merges a consistent snapshot of a transfer's legs into one
// authoritative transaction status. It is a pure function: identical leg
// snapshots always produce identical outcomes.
//
// Failure dominates: any failed or timed-out leg makes the whole transfer
// failed, even when a sibling leg already confirmed. All legs confirmed
// yields success only when the destination leg's settled amount is within
// toleranceBps basis points of the requested amount.
func Reconcile(legs []Leg, requested *big.Int, toleranceBps int64) Outcome {
	for _, l := range legs {
		switch l.State {
		case LegFailed:
			reason := l.Reason
			if reason == "" {
				reason = fmt.Sprintf("%s leg failed", l.Role)
			}
			return Outcome{Status: StatusFailed, Reason: reason}
		case LegTimedOut:
			return Outcome{Status: StatusFailed, Reason: fmt.Sprintf("%s: %s leg", ReasonLegTimeout, l.Role)}
		}
	}

	for _, l := range legs {
		if l.State != LegConfirmed {
			return Outcome{Status: StatusPending}
		}
	}

	if delivered := deliveredAmount(legs); delivered != nil {
		if !withinTolerance(requested, delivered, toleranceBps) {
			return Outcome{
				Status: StatusFailed,
				Reason: fmt.Sprintf("%s: requested %s, delivered %s", ReasonReconciliationConflict, requested, delivered),
			}
		}
	}

	return Outcome{Status: StatusSucceeded}
}

// deliveredAmount returns the destination leg's confirmed amount, or nil if
// the protocol defines no destination leg or the amount was not reported.
func deliveredAmount(legs []Leg) *big.Int {
	for _, l := range legs {
		if l.Role == LegRoleDestination && l.Amount != nil {
			return l.Amount
		}
	}
	return nil
}

// withinTolerance reports whether delivered is no more than toleranceBps
// basis points below requested. Over-delivery is never a conflict.
func withinTolerance(requested, delivered *big.Int, toleranceBps int64) bool {
	if requested == nil || requested.Sign() == 0 {
		return true
	}
	if delivered.Cmp(requested) >= 0 {
		return true
	}
	// delivered * 10000 >= requested * (10000 - toleranceBps)
	lhs := new(big.Int).Mul(delivered, big.NewInt(10000))
	rhs := new(big.Int).Mul(requested, big.NewInt(10000-toleranceBps))
	return lhs.Cmp(rhs) >= 0
}
