package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bridgeflow/transfer_engine/internal/logging"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// flakyStore fails the first failures writes of each kind, then delegates.
type flakyStore struct {
	TransactionStore

	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyStore) UpsertTransaction(ctx context.Context, tx transfer.Transaction) error {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failures
	f.mu.Unlock()

	if fail {
		return errors.New("store unavailable")
	}
	return f.TransactionStore.UpsertTransaction(ctx, tx)
}

func (f *flakyStore) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func quietLogger() *logging.Logger {
	return logging.NewWithOutput("sink-test", io.Discard, logging.LevelError)
}

func TestSink_RetriesUntilWriteSucceeds(t *testing.T) {
	mem := NewMemory()
	store := &flakyStore{TransactionStore: mem, failures: 2}

	sink := NewSink(store, SinkConfig{
		QueueSize:      8,
		MaxRetries:     5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, quietLogger(), nil, nil)

	tx := sampleTransaction("tx-retry", transfer.StatusPending)
	sink.Upsert(tx)
	sink.Close()

	got, err := mem.GetTransaction(context.Background(), "tx-retry")
	if err != nil {
		t.Fatalf("transaction not persisted after retries: %v", err)
	}
	if got.ID != "tx-retry" {
		t.Errorf("persisted ID = %s, want tx-retry", got.ID)
	}
	if n := store.attemptCount(); n != 3 {
		t.Errorf("upsert attempts = %d, want 3 (two failures, one success)", n)
	}
}

func TestSink_GivesUpAfterMaxRetries(t *testing.T) {
	mem := NewMemory()
	store := &flakyStore{TransactionStore: mem, failures: 100}

	sink := NewSink(store, SinkConfig{
		QueueSize:      8,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, quietLogger(), nil, nil)

	sink.Upsert(sampleTransaction("tx-doomed", transfer.StatusPending))
	sink.Close()

	if _, err := mem.GetTransaction(context.Background(), "tx-doomed"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound after exhausted retries", err)
	}
	// Initial attempt plus MaxRetries.
	if n := store.attemptCount(); n != 3 {
		t.Errorf("upsert attempts = %d, want 3", n)
	}
}

func TestSink_UpsertNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	mem := NewMemory()
	blocking := &blockingStore{TransactionStore: mem, release: release}

	sink := NewSink(blocking, SinkConfig{QueueSize: 1, MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, quietLogger(), nil, nil)

	done := make(chan struct{})
	go func() {
		// First op occupies the writer, second fills the queue, the rest
		// must be dropped rather than block the caller.
		for i := 0; i < 10; i++ {
			sink.Upsert(sampleTransaction("tx-burst", transfer.StatusPending))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Upsert blocked on a full queue")
	}

	close(release)
	sink.Close()
}

func TestSink_AppendAuditWritesThrough(t *testing.T) {
	mem := NewMemory()
	sink := NewSink(mem, DefaultSinkConfig(), quietLogger(), nil, nil)

	sink.AppendAudit(transfer.AuditEntry{
		ID:         "a-1",
		TransferID: "tx-1",
		LegRole:    transfer.LegRoleSource,
		FromState:  transfer.LegSubmitted,
		ToState:    transfer.LegConfirmed,
	})
	sink.Close()

	trail, err := mem.ListAudit(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != "a-1" {
		t.Errorf("audit trail = %+v, want single entry a-1", trail)
	}
}

type blockingStore struct {
	TransactionStore
	release chan struct{}
}

func (b *blockingStore) UpsertTransaction(ctx context.Context, tx transfer.Transaction) error {
	<-b.release
	return b.TransactionStore.UpsertTransaction(ctx, tx)
}
