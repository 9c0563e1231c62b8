package transfer

import (
	"math/big"
	"time"
)

// CanonicalChainID is the system's own stable identifier for a chain,
// independent of any bridging protocol's naming scheme.
type CanonicalChainID string

// ProtocolID identifies a supported bridging protocol.
type ProtocolID int32

const (
	// ProtocolSnowbridge bridges between Polkadot Asset Hub and Ethereum.
	ProtocolSnowbridge ProtocolID = iota

	// ProtocolXCM moves assets between parachains via XCM transfer.
	ProtocolXCM

	// ProtocolCCTP moves USDC through Circle's burn/mint attestation flow.
	ProtocolCCTP
)

// String returns the string representation of the protocol.
func (p ProtocolID) String() string {
	switch p {
	case ProtocolSnowbridge:
		return "snowbridge"
	case ProtocolXCM:
		return "xcm"
	case ProtocolCCTP:
		return "cctp"
	default:
		return "unknown"
	}
}

// ParseProtocolID converts a string to a ProtocolID.
func ParseProtocolID(s string) (ProtocolID, bool) {
	switch s {
	case "snowbridge":
		return ProtocolSnowbridge, true
	case "xcm":
		return ProtocolXCM, true
	case "cctp":
		return ProtocolCCTP, true
	default:
		return 0, false
	}
}

// MarshalJSON implements json.Marshaler.
func (p ProtocolID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ProtocolID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if id, ok := ParseProtocolID(s); ok {
		*p = id
	}
	return nil
}

// Request describes a transfer as submitted by the caller. It is immutable
// after submission; the ID is caller-supplied and unique.
type Request struct {
	ID        string           `json:"id"`
	From      CanonicalChainID `json:"from"`
	To        CanonicalChainID `json:"to"`
	Token     string           `json:"token"`
	Amount    *big.Int         `json:"amount"`
	Sender    string           `json:"sender"`
	Recipient string           `json:"recipient"`
}

// LegHandle is an opaque protocol-specific reference to one on-chain leg,
// returned by an adapter at submission time.
type LegHandle struct {
	Protocol ProtocolID `json:"protocol"`
	Role     LegRole    `json:"role"`
	Ref      string     `json:"ref"`
}

// Leg is one on-chain event path of a transfer. A leg is mutated only by
// the polling task that owns it.
type Leg struct {
	Role           LegRole   `json:"role"`
	Handle         LegHandle `json:"handle"`
	State          LegState  `json:"state"`
	Amount         *big.Int  `json:"amount,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	LastObservedAt time.Time `json:"last_observed_at"`
}

// Observation is a polled leg state together with its protocol-reported
// detail. Confirmed observations carry the settled amount; failed ones a
// reason.
type Observation struct {
	State  LegState
	Amount *big.Int
	Reason string
}

// Transaction is the reconciled, persisted, caller-visible record of a
// transfer. Its Status is always derived from Legs via Reconcile and never
// set independently while legs exist.
type Transaction struct {
	ID              string           `json:"id"`
	Protocol        ProtocolID       `json:"protocol"`
	Status          TxStatus         `json:"status"`
	Legs            []Leg            `json:"legs"`
	RequestedAmount *big.Int         `json:"requested_amount"`
	DeliveredAmount *big.Int         `json:"delivered_amount,omitempty"`
	Token           string           `json:"token"`
	From            CanonicalChainID `json:"from"`
	To              CanonicalChainID `json:"to"`
	Sender          string           `json:"sender"`
	Recipient       string           `json:"recipient"`
	Errors          []string         `json:"errors,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t Transaction) Clone() Transaction {
	out := t
	out.Legs = make([]Leg, len(t.Legs))
	for i, l := range t.Legs {
		out.Legs[i] = l
		if l.Amount != nil {
			out.Legs[i].Amount = new(big.Int).Set(l.Amount)
		}
	}
	if t.RequestedAmount != nil {
		out.RequestedAmount = new(big.Int).Set(t.RequestedAmount)
	}
	if t.DeliveredAmount != nil {
		out.DeliveredAmount = new(big.Int).Set(t.DeliveredAmount)
	}
	out.Errors = append([]string(nil), t.Errors...)
	return out
}

// AuditEntry records one observed leg-state transition for the audit trail.
type AuditEntry struct {
	ID         string    `json:"id"`
	TransferID string    `json:"transfer_id"`
	LegRole    LegRole   `json:"leg_role"`
	FromState  LegState  `json:"from_state"`
	ToState    LegState  `json:"to_state"`
	Reason     string    `json:"reason,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}
