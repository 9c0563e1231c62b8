package postgres

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bridgeflow/transfer_engine/internal/storage"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

func testTransaction() transfer.Transaction {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return transfer.Transaction{
		ID:              "tx-1",
		Protocol:        transfer.ProtocolCCTP,
		Status:          transfer.StatusPending,
		RequestedAmount: big.NewInt(500000),
		Token:           "USDC",
		From:            "ethereum",
		To:              "arbitrum",
		Legs: []transfer.Leg{
			{Role: transfer.LegRoleSource, State: transfer.LegSubmitted, LastObservedAt: now},
			{Role: transfer.LegRoleDestination, State: transfer.LegSubmitted, LastObservedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_UpsertTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	tx := testTransaction()
	mock.ExpectExec("INSERT INTO bridge_transactions").
		WithArgs(tx.ID, "cctp", "pending", sqlmock.AnyArg(), tx.CreatedAt, tx.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	if err := store.UpsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_GetTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	want := testTransaction()
	record, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	mock.ExpectQuery("SELECT record FROM bridge_transactions WHERE id").
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(record))

	store := New(db)
	got, err := store.GetTransaction(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != want.ID || got.Status != want.Status || len(got.Legs) != 2 {
		t.Errorf("round-tripped transaction mismatch: %+v", got)
	}
	if got.RequestedAmount.Cmp(want.RequestedAmount) != 0 {
		t.Errorf("requested amount = %s, want %s", got.RequestedAmount, want.RequestedAmount)
	}
}

func TestStore_GetTransactionNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT record FROM bridge_transactions WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	store := New(db)
	if _, err := store.GetTransaction(context.Background(), "missing"); err != storage.ErrNotFound {
		t.Errorf("err = %v, want storage.ErrNotFound", err)
	}
}

func TestStore_ListOpenTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	open := testTransaction()
	record, err := json.Marshal(open)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	mock.ExpectQuery("SELECT record FROM bridge_transactions WHERE status = 'pending'").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(record))

	store := New(db)
	got, err := store.ListOpenTransactions(context.Background())
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(got) != 1 || got[0].ID != "tx-1" {
		t.Errorf("open transactions = %+v, want single tx-1", got)
	}
}

func TestStore_AppendAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	entry := transfer.AuditEntry{
		ID:         "a-1",
		TransferID: "tx-1",
		LegRole:    transfer.LegRoleDestination,
		FromState:  transfer.LegSubmitted,
		ToState:    transfer.LegConfirmed,
		ObservedAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO bridge_leg_audit").
		WithArgs(entry.ID, entry.TransferID, "destination", "submitted", "confirmed", "", entry.ObservedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	if err := store.AppendAudit(context.Background(), entry); err != nil {
		t.Fatalf("append audit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_ListAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	observed := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, transfer_id, leg_role, from_state, to_state, reason, observed_at").
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "transfer_id", "leg_role", "from_state", "to_state", "reason", "observed_at"}).
			AddRow("a-1", "tx-1", "source", "submitted", "confirmed", "", observed).
			AddRow("a-2", "tx-1", "destination", "submitted", "failed", "reverted", observed.Add(time.Minute)))

	store := New(db)
	trail, err := store.ListAudit(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("trail length = %d, want 2", len(trail))
	}
	if trail[0].LegRole != transfer.LegRoleSource || trail[0].ToState != transfer.LegConfirmed {
		t.Errorf("first entry = %+v", trail[0])
	}
	if trail[1].LegRole != transfer.LegRoleDestination || trail[1].ToState != transfer.LegFailed || trail[1].Reason != "reverted" {
		t.Errorf("second entry = %+v", trail[1])
	}
}
