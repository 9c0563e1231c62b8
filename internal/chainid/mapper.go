// Package chainid translates between the system's canonical chain
// identifiers and each bridging protocol's native chain-naming scheme.
// Mapping tables are static, validated for bijectivity at load time, and
// read-only afterwards, so lookups need no locking.
package chainid

import (
	"fmt"

	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// UnknownIdentityError reports a lookup with no mapping for the protocol.
// Lookups never guess or fall back to a default chain.
type UnknownIdentityError struct {
	Protocol transfer.ProtocolID
	Input    string
}

// Error implements error.
func (e UnknownIdentityError) Error() string {
	return fmt.Sprintf("unknown chain identity %q for protocol %s", e.Input, e.Protocol)
}

// Mapping declares one canonical-id to protocol-name pair for a protocol.
type Mapping struct {
	Protocol  transfer.ProtocolID
	Canonical transfer.CanonicalChainID
	Name      string
}

// Mapper holds the loaded bidirectional tables.
type Mapper struct {
	toName      map[transfer.ProtocolID]map[transfer.CanonicalChainID]string
	toCanonical map[transfer.ProtocolID]map[string]transfer.CanonicalChainID
}

// NewMapper builds a Mapper from the declared mappings. Duplicate protocol
// names or duplicate canonical targets within one protocol are a fatal
// load-time error.
func NewMapper(mappings []Mapping) (*Mapper, error) {
	m := &Mapper{
		toName:      make(map[transfer.ProtocolID]map[transfer.CanonicalChainID]string),
		toCanonical: make(map[transfer.ProtocolID]map[string]transfer.CanonicalChainID),
	}

	for _, entry := range mappings {
		forward, ok := m.toName[entry.Protocol]
		if !ok {
			forward = make(map[transfer.CanonicalChainID]string)
			m.toName[entry.Protocol] = forward
			m.toCanonical[entry.Protocol] = make(map[string]transfer.CanonicalChainID)
		}
		reverse := m.toCanonical[entry.Protocol]

		if existing, dup := forward[entry.Canonical]; dup {
			return nil, fmt.Errorf("chainid: canonical %s already mapped to %q for protocol %s",
				entry.Canonical, existing, entry.Protocol)
		}
		if existing, dup := reverse[entry.Name]; dup {
			return nil, fmt.Errorf("chainid: name %q already mapped to %s for protocol %s",
				entry.Name, existing, entry.Protocol)
		}

		forward[entry.Canonical] = entry.Name
		reverse[entry.Name] = entry.Canonical
	}

	return m, nil
}

// ToProtocolName resolves a canonical chain id to the protocol's native name.
func (m *Mapper) ToProtocolName(protocol transfer.ProtocolID, id transfer.CanonicalChainID) (string, error) {
	name, ok := m.toName[protocol][id]
	if !ok {
		return "", UnknownIdentityError{Protocol: protocol, Input: string(id)}
	}
	return name, nil
}

// ToCanonical resolves a protocol's native chain name back to the canonical id.
func (m *Mapper) ToCanonical(protocol transfer.ProtocolID, name string) (transfer.CanonicalChainID, error) {
	id, ok := m.toCanonical[protocol][name]
	if !ok {
		return "", UnknownIdentityError{Protocol: protocol, Input: name}
	}
	return id, nil
}
