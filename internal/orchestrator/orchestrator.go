// Package orchestrator drives the lifecycle of cross-chain transfers. For
// each accepted request it resolves the responsible protocol, submits
// through the protocol's adapter, and runs one polling task per on-chain
// leg until every leg is terminal or times out. Every leg-state change is
// reconciled into the transaction status and written through the
// persistence sink.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bridgeflow/transfer_engine/internal/adapter"
	"github.com/bridgeflow/transfer_engine/internal/chainid"
	"github.com/bridgeflow/transfer_engine/internal/events"
	"github.com/bridgeflow/transfer_engine/internal/logging"
	"github.com/bridgeflow/transfer_engine/internal/metrics"
	"github.com/bridgeflow/transfer_engine/internal/route"
	"github.com/bridgeflow/transfer_engine/internal/storage"
	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// Config holds orchestration policy.
type Config struct {
	// PollInitialBackoff is the first interval between polls of one leg.
	PollInitialBackoff time.Duration

	// PollMaxBackoff bounds the growth of the poll interval.
	PollMaxBackoff time.Duration

	// PollJitter is the jitter fraction applied to each interval.
	PollJitter float64

	// MaxPollRetries bounds consecutive failed polls of one leg before the
	// leg is forced to failed.
	MaxPollRetries int

	// ToleranceBps is the permitted shortfall, in basis points, between the
	// requested and delivered amount.
	ToleranceBps int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInitialBackoff: 2 * time.Second,
		PollMaxBackoff:     30 * time.Second,
		PollJitter:         0.2,
		MaxPollRetries:     10,
		ToleranceBps:       100,
	}
}

// Deps are the injected collaborators.
type Deps struct {
	Routes   *route.Registry
	Mapper   *chainid.Mapper
	Adapters *adapter.Registry
	Store    storage.TransactionStore
	Sink     *storage.Sink
	Logger   *logging.Logger
	Events   events.Log
	Metrics  *metrics.Collector
}

// tracked is the live tracking state of one transfer. The transaction is
// mutated only under mu; polling tasks for sibling legs read a consistent
// snapshot through it.
type tracked struct {
	mu       sync.Mutex
	tx       transfer.Transaction
	cancel   context.CancelFunc
	terminal bool

	// pollers counts this transfer's live polling tasks so Resume can
	// wait for the old set to exit before starting a new one.
	pollers sync.WaitGroup
}

// Orchestrator owns its set of in-flight transfers. It is constructed with
// injected dependencies and holds no ambient global state.
type Orchestrator struct {
	cfg  Config
	deps Deps

	mu      sync.RWMutex
	tracked map[string]*tracked

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Routes == nil || deps.Mapper == nil || deps.Adapters == nil || deps.Store == nil || deps.Sink == nil {
		return nil, fmt.Errorf("orchestrator: routes, mapper, adapters, store and sink are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.New("orchestrator")
	}
	if deps.Events == nil {
		deps.Events = events.NopLog{}
	}
	if cfg.PollInitialBackoff <= 0 {
		cfg.PollInitialBackoff = DefaultConfig().PollInitialBackoff
	}
	if cfg.PollMaxBackoff < cfg.PollInitialBackoff {
		cfg.PollMaxBackoff = DefaultConfig().PollMaxBackoff
	}
	if cfg.MaxPollRetries <= 0 {
		cfg.MaxPollRetries = DefaultConfig().MaxPollRetries
	}
	if cfg.ToleranceBps < 0 {
		cfg.ToleranceBps = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		deps:       deps,
		tracked:    make(map[string]*tracked),
		rootCtx:    ctx,
		rootCancel: cancel,
	}, nil
}

// Submit accepts a transfer request, resolves its route, submits through
// the selected adapter and starts leg tracking. Pre-submission failures
// (unknown route, unknown chain identity) are returned synchronously with
// no transaction created. Adapter rejections produce a terminal failed
// transaction with the originating error recorded and no legs.
func (o *Orchestrator) Submit(ctx context.Context, req transfer.Request) (transfer.Transaction, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return transfer.Transaction{}, fmt.Errorf("transfer %s: amount must be positive", req.ID)
	}

	o.mu.RLock()
	_, exists := o.tracked[req.ID]
	o.mu.RUnlock()
	if exists {
		return transfer.Transaction{}, fmt.Errorf("transfer %s already tracked", req.ID)
	}

	protocol, err := o.deps.Routes.Resolve(req.From, req.To, req.Token)
	if err != nil {
		return transfer.Transaction{}, err
	}

	// Both chain identities must be mapped for the protocol before anything
	// touches the wire.
	if _, err := o.deps.Mapper.ToProtocolName(protocol, req.From); err != nil {
		return transfer.Transaction{}, err
	}
	if _, err := o.deps.Mapper.ToProtocolName(protocol, req.To); err != nil {
		return transfer.Transaction{}, err
	}

	ad, err := o.deps.Adapters.Get(protocol)
	if err != nil {
		return transfer.Transaction{}, err
	}

	now := time.Now().UTC()
	tx := transfer.Transaction{
		ID:              req.ID,
		Protocol:        protocol,
		Status:          transfer.StatusPending,
		RequestedAmount: req.Amount,
		Token:           req.Token,
		From:            req.From,
		To:              req.To,
		Sender:          req.Sender,
		Recipient:       req.Recipient,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	o.deps.Events.Record(events.Event{
		Type:       events.EventTransferAccepted,
		TransferID: tx.ID,
		Message:    fmt.Sprintf("routed to %s", protocol),
	})
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordAccepted(protocol.String())
	}

	handles, err := ad.Submit(ctx, req)
	if err != nil {
		tx.Status = transfer.StatusFailed
		tx.Errors = append(tx.Errors, err.Error())
		var subErr *adapter.SubmissionError
		if errors.As(err, &subErr) && len(subErr.CreatedLegs) > 0 {
			tx.Errors = append(tx.Errors,
				fmt.Sprintf("partial submission: %d leg(s) created before failure", len(subErr.CreatedLegs)))
		}
		tx.UpdatedAt = time.Now().UTC()
		o.deps.Sink.Upsert(tx)
		o.deps.Events.Record(events.Event{
			Type:       events.EventTransferRejected,
			Severity:   events.SeverityError,
			TransferID: tx.ID,
			Error:      err.Error(),
		})
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordTerminal(protocol.String(), tx.Status.String())
		}
		return tx, err
	}

	for _, h := range handles {
		tx.Legs = append(tx.Legs, transfer.Leg{
			Role:           h.Role,
			Handle:         h,
			State:          transfer.LegSubmitted,
			LastObservedAt: now,
		})
	}

	o.deps.Logger.Info(ctx, "transfer submitted", map[string]interface{}{
		"transfer_id": tx.ID,
		"protocol":    protocol.String(),
		"legs":        len(tx.Legs),
	})
	o.deps.Events.Record(events.Event{
		Type:       events.EventTransferSubmitted,
		TransferID: tx.ID,
		Message:    fmt.Sprintf("%d legs created", len(tx.Legs)),
	})

	o.deps.Sink.Upsert(tx)
	// Snapshot before the polling tasks start: once tracked, the legs are
	// written under the tracked entry's lock, not ours.
	snapshot := tx.Clone()
	o.track(tx, ad, now)
	return snapshot, nil
}

// track registers the transfer and starts one polling task per leg.
func (o *Orchestrator) track(tx transfer.Transaction, ad adapter.Adapter, submittedAt time.Time) {
	legCtx, cancel := context.WithCancel(o.rootCtx)
	tt := &tracked{tx: tx, cancel: cancel}

	o.mu.Lock()
	o.tracked[tx.ID] = tt
	o.mu.Unlock()

	for i := range tx.Legs {
		if tx.Legs[i].State.IsTerminal() {
			continue
		}
		o.wg.Add(1)
		tt.pollers.Add(1)
		go o.pollLeg(legCtx, tt, i, ad, submittedAt)
	}
}

// pollLeg polls one leg until it is terminal, its deadline elapses, or the
// transfer stops tracking. It is the only writer of its leg's state.
func (o *Orchestrator) pollLeg(ctx context.Context, tt *tracked, legIdx int, ad adapter.Adapter, submittedAt time.Time) {
	defer o.wg.Done()
	defer tt.pollers.Done()

	tt.mu.Lock()
	handle := tt.tx.Legs[legIdx].Handle
	transferID := tt.tx.ID
	tt.mu.Unlock()

	deadline := submittedAt.Add(ad.LegDeadline(handle.Role))
	backoff := o.cfg.PollInitialBackoff
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.jittered(backoff)):
		}

		if time.Now().After(deadline) {
			o.applyObservation(tt, legIdx, transfer.Observation{
				State:  transfer.LegTimedOut,
				Reason: transfer.ReasonLegTimeout,
			})
			return
		}

		start := time.Now()
		obs, err := ad.PollStatus(ctx, handle)
		if o.deps.Metrics != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			o.deps.Metrics.RecordPoll(handle.Protocol.String(), result, time.Since(start))
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			o.deps.Events.Record(events.Event{
				Type:       events.EventLegPollError,
				Severity:   events.SeverityWarning,
				TransferID: transferID,
				LegRole:    handle.Role.String(),
				Error:      err.Error(),
			})
			var transient *adapter.TransientError
			if !errors.As(err, &transient) {
				o.deps.Logger.Warn(ctx, "non-transient poll error", map[string]interface{}{
					"transfer_id": transferID,
					"leg":         handle.Role.String(),
					"error":       err.Error(),
				})
			}
			if failures > o.cfg.MaxPollRetries {
				o.applyObservation(tt, legIdx, transfer.Observation{
					State:  transfer.LegFailed,
					Reason: transfer.ReasonPollExhausted,
				})
				return
			}
			backoff = o.nextBackoff(backoff)
			continue
		}

		failures = 0
		if obs.State != transfer.LegSubmitted {
			if o.applyObservation(tt, legIdx, obs) {
				return
			}
		}
		backoff = o.nextBackoff(backoff)
	}
}

// applyObservation applies a polled observation to the leg under the
// transfer's lock, reconciles the full leg snapshot, and writes through the
// sink. It returns true once the leg is terminal. Updates arriving after
// the transfer went terminal are discarded and logged, never re-applied.
func (o *Orchestrator) applyObservation(tt *tracked, legIdx int, obs transfer.Observation) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	leg := &tt.tx.Legs[legIdx]

	if tt.terminal {
		o.deps.Events.Record(events.Event{
			Type:       events.EventLegStale,
			Severity:   events.SeverityWarning,
			TransferID: tt.tx.ID,
			LegRole:    leg.Role.String(),
			Status:     obs.State.String(),
			Message:    "update for terminal transfer discarded",
		})
		return true
	}

	from := leg.State
	if from == obs.State {
		leg.LastObservedAt = time.Now().UTC()
		return from.IsTerminal()
	}
	if !transfer.CanTransition(from, obs.State) {
		// A terminal leg never regresses; a stale observation is dropped.
		o.deps.Logger.Warn(context.Background(), "stale leg observation dropped", map[string]interface{}{
			"transfer_id": tt.tx.ID,
			"leg":         leg.Role.String(),
			"from":        from.String(),
			"to":          obs.State.String(),
		})
		return from.IsTerminal()
	}

	now := time.Now().UTC()
	leg.State = obs.State
	leg.Reason = obs.Reason
	leg.LastObservedAt = now
	if obs.Amount != nil {
		leg.Amount = obs.Amount
	}
	if leg.Role == transfer.LegRoleDestination && obs.State == transfer.LegConfirmed {
		tt.tx.DeliveredAmount = obs.Amount
	}

	outcome := transfer.Reconcile(tt.tx.Legs, tt.tx.RequestedAmount, o.cfg.ToleranceBps)
	tt.tx.Status = outcome.Status
	if outcome.Status == transfer.StatusFailed && outcome.Reason != "" {
		tt.tx.Errors = appendUnique(tt.tx.Errors, outcome.Reason)
	}
	tt.tx.UpdatedAt = now

	entry := transfer.AuditEntry{
		ID:         uuid.NewString(),
		TransferID: tt.tx.ID,
		LegRole:    leg.Role,
		FromState:  from,
		ToState:    obs.State,
		Reason:     obs.Reason,
		ObservedAt: now,
	}
	o.deps.Sink.AppendAudit(entry)
	o.deps.Sink.Upsert(tt.tx)

	o.deps.Events.Record(events.LegTransition(tt.tx.ID, leg.Role, from, obs.State, obs.Reason))
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordLegTransition(tt.tx.Protocol.String(), leg.Role.String(), obs.State.String())
	}

	if tt.tx.Status.IsTerminal() {
		tt.terminal = true
		tt.cancel()
		o.deps.Events.Record(events.Event{
			Type:       events.EventTransferTerminal,
			TransferID: tt.tx.ID,
			Status:     tt.tx.Status.String(),
		})
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordTerminal(tt.tx.Protocol.String(), tt.tx.Status.String())
		}
		o.deps.Logger.Info(context.Background(), "transfer terminal", map[string]interface{}{
			"transfer_id": tt.tx.ID,
			"status":      tt.tx.Status.String(),
		})
	}

	return leg.State.IsTerminal()
}

// Get returns the live transaction if tracked, falling back to the store.
func (o *Orchestrator) Get(ctx context.Context, id string) (transfer.Transaction, error) {
	o.mu.RLock()
	tt, ok := o.tracked[id]
	o.mu.RUnlock()
	if ok {
		tt.mu.Lock()
		defer tt.mu.Unlock()
		return tt.tx.Clone(), nil
	}
	return o.deps.Store.GetTransaction(ctx, id)
}

// Cancel stops future polling for a transfer. It does not undo on-chain
// effects; a cancelled-but-settled transfer reconciles to its true outcome
// when polling resumes.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.RLock()
	tt, ok := o.tracked[id]
	o.mu.RUnlock()
	if !ok {
		return storage.ErrNotFound
	}

	tt.cancel()
	o.deps.Events.Record(events.Event{
		Type:       events.EventTransferCancelled,
		TransferID: id,
	})
	return nil
}

// Resume restarts polling for a cancelled or restored transfer whose legs
// are not yet terminal.
func (o *Orchestrator) Resume(ctx context.Context, id string) error {
	o.mu.Lock()
	tt, ok := o.tracked[id]
	if ok {
		tt.mu.Lock()
		terminal := tt.terminal
		tt.mu.Unlock()
		if terminal {
			o.mu.Unlock()
			return fmt.Errorf("transfer %s already terminal", id)
		}
		delete(o.tracked, id)
		o.mu.Unlock()

		// Stop the old polling tasks and wait for them to exit before the
		// new set starts: each leg has exactly one writer at a time.
		tt.cancel()
		tt.pollers.Wait()

		tt.mu.Lock()
		tx := tt.tx.Clone()
		tt.mu.Unlock()
		return o.resumeTracking(tx)
	}
	o.mu.Unlock()

	tx, err := o.deps.Store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if tx.Status.IsTerminal() {
		return fmt.Errorf("transfer %s already terminal", id)
	}
	if err := o.resumeTracking(tx); err != nil {
		return err
	}
	// The live path above was already counted in flight at submission;
	// a transfer restored from the store was not.
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordResumed()
	}
	return nil
}

func (o *Orchestrator) resumeTracking(tx transfer.Transaction) error {
	ad, err := o.deps.Adapters.Get(tx.Protocol)
	if err != nil {
		return err
	}
	o.deps.Events.Record(events.Event{
		Type:       events.EventTransferResumed,
		TransferID: tx.ID,
	})
	// Deadlines are measured from the original submission.
	o.track(tx, ad, tx.CreatedAt)
	return nil
}

// Hydrate reloads non-terminal transactions from the store and resumes
// their tracking. Call once on startup.
func (o *Orchestrator) Hydrate(ctx context.Context) error {
	open, err := o.deps.Store.ListOpenTransactions(ctx)
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}

	for _, tx := range open {
		o.mu.RLock()
		_, tracked := o.tracked[tx.ID]
		o.mu.RUnlock()
		if tracked || len(tx.Legs) == 0 {
			continue
		}
		if err := o.resumeTracking(tx); err != nil {
			o.deps.Logger.Warn(ctx, "could not resume transfer", map[string]interface{}{
				"transfer_id": tx.ID,
				"error":       err.Error(),
			})
			continue
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordResumed()
		}
	}

	o.deps.Logger.Info(ctx, "hydrated open transfers", map[string]interface{}{"count": len(open)})
	return nil
}

// Stop cancels all polling tasks and waits for them to exit.
func (o *Orchestrator) Stop() {
	o.rootCancel()
	o.wg.Wait()
}

func (o *Orchestrator) jittered(d time.Duration) time.Duration {
	if o.cfg.PollJitter <= 0 {
		return d
	}
	jitter := time.Duration(float64(d) * o.cfg.PollJitter * (rand.Float64()*2 - 1))
	out := d + jitter
	if out < 0 {
		return d
	}
	return out
}

func (o *Orchestrator) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > o.cfg.PollMaxBackoff {
		return o.cfg.PollMaxBackoff
	}
	return next
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
