package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bridgeflow/transfer_engine/internal/events"
	"github.com/bridgeflow/transfer_engine/internal/logging"
	"github.com/bridgeflow/transfer_engine/internal/metrics"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// SinkConfig holds write-through sink configuration.
type SinkConfig struct {
	QueueSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultSinkConfig returns sensible defaults.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		QueueSize:      1024,
		MaxRetries:     5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

type writeOp struct {
	tx    *transfer.Transaction
	audit *transfer.AuditEntry
}

// Sink is the idempotent write-through to the transaction store. Writes are
// queued and applied by a dedicated goroutine with retry and backoff, so a
// slow or failing store never stalls the polling loops that feed it.
type Sink struct {
	store   TransactionStore
	cfg     SinkConfig
	log     *logging.Logger
	events  events.Log
	metrics *metrics.Collector

	queue     chan writeOp
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSink creates a sink writing through to store and starts its writer.
func NewSink(store TransactionStore, cfg SinkConfig, log *logging.Logger, evts events.Log, collector *metrics.Collector) *Sink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultSinkConfig().QueueSize
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultSinkConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultSinkConfig().MaxBackoff
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultSinkConfig().MaxRetries
	}
	if evts == nil {
		evts = events.NopLog{}
	}

	s := &Sink{
		store:   store,
		cfg:     cfg,
		log:     log,
		events:  evts,
		metrics: collector,
		queue:   make(chan writeOp, cfg.QueueSize),
	}

	s.wg.Add(1)
	go s.writer()

	return s
}

// Upsert queues a transaction snapshot for persistence. It never blocks; if
// the queue is full the snapshot is dropped and logged, and a later
// snapshot of the same transfer supersedes it.
func (s *Sink) Upsert(tx transfer.Transaction) {
	clone := tx.Clone()
	select {
	case s.queue <- writeOp{tx: &clone}:
	default:
		s.log.Error(context.Background(), "persistence queue full, dropping snapshot",
			map[string]interface{}{"transfer_id": tx.ID})
		s.events.Record(events.Event{
			Type:       events.EventPersistFailed,
			Severity:   events.SeverityError,
			TransferID: tx.ID,
			Message:    "queue full, snapshot dropped",
		})
	}
}

// AppendAudit queues a leg-transition audit entry.
func (s *Sink) AppendAudit(entry transfer.AuditEntry) {
	select {
	case s.queue <- writeOp{audit: &entry}:
	default:
		s.log.Error(context.Background(), "persistence queue full, dropping audit entry",
			map[string]interface{}{"transfer_id": entry.TransferID})
	}
}

// Close drains queued writes and stops the writer.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *Sink) writer() {
	defer s.wg.Done()

	for op := range s.queue {
		s.apply(op)
	}
}

func (s *Sink) apply(op writeOp) {
	ctx := context.Background()
	backoff := s.cfg.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if s.metrics != nil {
				s.metrics.RecordPersistRetry()
			}
			s.events.Record(events.Event{
				Type:       events.EventPersistRetried,
				Severity:   events.SeverityWarning,
				TransferID: s.opTransferID(op),
				Error:      lastErr.Error(),
			})
			time.Sleep(backoff)
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
		}

		start := time.Now()
		lastErr = s.write(ctx, op)
		if s.metrics != nil {
			s.metrics.RecordPersist(time.Since(start))
		}
		if lastErr == nil {
			return
		}
	}

	s.log.Error(ctx, "persistence write failed after retries", map[string]interface{}{
		"transfer_id": s.opTransferID(op),
		"error":       lastErr.Error(),
	})
	s.events.Record(events.Event{
		Type:       events.EventPersistFailed,
		Severity:   events.SeverityError,
		TransferID: s.opTransferID(op),
		Error:      lastErr.Error(),
	})
}

func (s *Sink) write(ctx context.Context, op writeOp) error {
	if op.tx != nil {
		return s.store.UpsertTransaction(ctx, *op.tx)
	}
	return s.store.AppendAudit(ctx, *op.audit)
}

func (s *Sink) opTransferID(op writeOp) string {
	if op.tx != nil {
		return op.tx.ID
	}
	return op.audit.TransferID
}
