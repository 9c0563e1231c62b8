// Package storage defines the persistence interfaces for transaction
// records and their leg-transition audit trail, an in-memory
// implementation for tests, and the write-through sink decoupling
// persistence from transfer tracking.
package storage

import (
	"context"
	"errors"

	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// TransactionStore persists normalized transaction records keyed by
// transfer id. The backing store delivers writes at least once, so
// UpsertTransaction and AppendAudit must be idempotent.
type TransactionStore interface {
	// UpsertTransaction writes the full snapshot; re-applying the same
	// snapshot is observationally a no-op.
	UpsertTransaction(ctx context.Context, tx transfer.Transaction) error

	// GetTransaction returns the record or ErrNotFound.
	GetTransaction(ctx context.Context, id string) (transfer.Transaction, error)

	// ListTransactions returns all records.
	ListTransactions(ctx context.Context) ([]transfer.Transaction, error)

	// ListOpenTransactions returns records whose status is not terminal,
	// used to resume tracking after a restart.
	ListOpenTransactions(ctx context.Context) ([]transfer.Transaction, error)

	// AppendAudit appends one leg transition to the audit trail. Entries
	// are identified by entry ID; replaying an entry is a no-op.
	AppendAudit(ctx context.Context, entry transfer.AuditEntry) error

	// ListAudit returns the audit trail for one transfer in observation
	// order.
	ListAudit(ctx context.Context, transferID string) ([]transfer.AuditEntry, error)
}
