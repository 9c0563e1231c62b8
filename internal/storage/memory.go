package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// Memory is a thread-safe in-memory TransactionStore. It is intended for
// tests and prototyping and deliberately keeps the implementation simple.
type Memory struct {
	mu           sync.RWMutex
	transactions map[string]transfer.Transaction
	audit        map[string][]transfer.AuditEntry
	auditSeen    map[string]struct{}
}

var _ TransactionStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[string]transfer.Transaction),
		audit:        make(map[string][]transfer.AuditEntry),
		auditSeen:    make(map[string]struct{}),
	}
}

// UpsertTransaction implements TransactionStore.
func (m *Memory) UpsertTransaction(_ context.Context, tx transfer.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.transactions[tx.ID]; ok {
		tx.CreatedAt = existing.CreatedAt
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = time.Now().UTC()
	}
	m.transactions[tx.ID] = tx.Clone()
	return nil
}

// GetTransaction implements TransactionStore.
func (m *Memory) GetTransaction(_ context.Context, id string) (transfer.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return transfer.Transaction{}, ErrNotFound
	}
	return tx.Clone(), nil
}

// ListTransactions implements TransactionStore.
func (m *Memory) ListTransactions(_ context.Context) ([]transfer.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]transfer.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		out = append(out, tx.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListOpenTransactions implements TransactionStore.
func (m *Memory) ListOpenTransactions(_ context.Context) ([]transfer.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []transfer.Transaction
	for _, tx := range m.transactions {
		if !tx.Status.IsTerminal() {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AppendAudit implements TransactionStore.
func (m *Memory) AppendAudit(_ context.Context, entry transfer.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.auditSeen[entry.ID]; seen {
		return nil
	}
	m.auditSeen[entry.ID] = struct{}{}
	m.audit[entry.TransferID] = append(m.audit[entry.TransferID], entry)
	return nil
}

// ListAudit implements TransactionStore.
func (m *Memory) ListAudit(_ context.Context, transferID string) ([]transfer.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]transfer.AuditEntry(nil), m.audit[transferID]...), nil
}
