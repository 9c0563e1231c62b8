// Package postgres implements the transaction store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bridgeflow/transfer_engine/internal/storage"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// Store implements storage.TransactionStore.
type Store struct {
	db *sql.DB
}

var _ storage.TransactionStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertTransaction implements storage.TransactionStore. The full record is
// stored as JSON alongside indexable status columns; conflicts on the
// transfer id replace the snapshot.
func (s *Store) UpsertTransaction(ctx context.Context, tx transfer.Transaction) error {
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = time.Now().UTC()
	}

	record, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bridge_transactions (id, protocol, status, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, record = EXCLUDED.record, updated_at = EXCLUDED.updated_at
	`, tx.ID, tx.Protocol.String(), tx.Status.String(), record, tx.CreatedAt, tx.UpdatedAt)
	return err
}

// GetTransaction implements storage.TransactionStore.
func (s *Store) GetTransaction(ctx context.Context, id string) (transfer.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record FROM bridge_transactions WHERE id = $1
	`, id)

	var record []byte
	if err := row.Scan(&record); err != nil {
		if err == sql.ErrNoRows {
			return transfer.Transaction{}, storage.ErrNotFound
		}
		return transfer.Transaction{}, err
	}

	var tx transfer.Transaction
	if err := json.Unmarshal(record, &tx); err != nil {
		return transfer.Transaction{}, err
	}
	return tx, nil
}

// ListTransactions implements storage.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context) ([]transfer.Transaction, error) {
	return s.list(ctx, `
		SELECT record FROM bridge_transactions ORDER BY created_at
	`)
}

// ListOpenTransactions implements storage.TransactionStore.
func (s *Store) ListOpenTransactions(ctx context.Context) ([]transfer.Transaction, error) {
	return s.list(ctx, `
		SELECT record FROM bridge_transactions WHERE status = 'pending' ORDER BY created_at
	`)
}

func (s *Store) list(ctx context.Context, query string) ([]transfer.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transfer.Transaction
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var tx transfer.Transaction
		if err := json.Unmarshal(record, &tx); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// AppendAudit implements storage.TransactionStore. Replayed entries hit the
// primary key and are dropped, keeping the trail append-only under
// at-least-once delivery.
func (s *Store) AppendAudit(ctx context.Context, entry transfer.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ObservedAt.IsZero() {
		entry.ObservedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_leg_audit (id, transfer_id, leg_role, from_state, to_state, reason, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.TransferID, entry.LegRole.String(), entry.FromState.String(),
		entry.ToState.String(), entry.Reason, entry.ObservedAt)
	return err
}

// ListAudit implements storage.TransactionStore.
func (s *Store) ListAudit(ctx context.Context, transferID string) ([]transfer.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transfer_id, leg_role, from_state, to_state, reason, observed_at
		FROM bridge_leg_audit
		WHERE transfer_id = $1
		ORDER BY observed_at
	`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transfer.AuditEntry
	for rows.Next() {
		var (
			entry     transfer.AuditEntry
			role      string
			fromState string
			toState   string
		)
		if err := rows.Scan(&entry.ID, &entry.TransferID, &role, &fromState, &toState,
			&entry.Reason, &entry.ObservedAt); err != nil {
			return nil, err
		}
		if role == "destination" {
			entry.LegRole = transfer.LegRoleDestination
		}
		entry.FromState = transfer.ParseLegState(fromState)
		entry.ToState = transfer.ParseLegState(toState)
		out = append(out, entry)
	}
	return out, rows.Err()
}
