package payrun

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gigpay/internal/audit"
	"gigpay/internal/directory"
	"gigpay/internal/events"
	"gigpay/internal/gateway"
	"gigpay/internal/messaging/kafka"
	"gigpay/internal/paycycle"
	payrunerrors "gigpay/internal/payrun/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency    = 10
	defaultGatewayTimeout = 15 * time.Second
)

// ItemError is one per-item disbursement failure in a ProcessResult.
type ItemError struct {
	ItemID   string `json:"item_id"`
	WorkerID string `json:"worker_id"`
	Error    string `json:"error"`
}

// ProcessResult summarizes one executor pass. Per-item failures are data
// here, never Go errors: one bad payout destination must not abort the
// other 999 payouts in the batch.
type ProcessResult struct {
	RunID      string      `json:"run_id"`
	RunStatus  string      `json:"run_status"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Errors     []ItemError `json:"errors,omitempty"`
}

//go:generate mockgen -source=executor.go -destination=mock/executor_mock.go -package=mock
type Executor interface {
	// Process disburses every eligible item of a run already in processing
	// status. Only run-level precondition violations are returned as errors.
	// retry marks a pass re-entered from failed rather than from approved.
	Process(ctx context.Context, companyID, runID string, retry bool) (ProcessResult, error)

	// Stop prevents further item dispatches for an in-flight run. Gateway
	// calls already in flight are left to finish: money movement cannot be
	// safely aborted midway.
	Stop(runID string) bool
}

type executor struct {
	repo    Repository
	gw      gateway.Gateway
	dir     directory.Service
	cycles  paycycle.Provider
	outbox  kafka.OutboxRepository
	sink    audit.Sink
	logger  *zap.Logger
	limit   int
	timeout time.Duration

	mu     sync.Mutex
	active map[string]chan struct{}
}

type ExecutorOption func(*executor)

func WithConcurrency(n int) ExecutorOption {
	return func(e *executor) {
		if n > 0 {
			e.limit = n
		}
	}
}

func WithGatewayTimeout(d time.Duration) ExecutorOption {
	return func(e *executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func NewExecutor(
	repo Repository,
	gw gateway.Gateway,
	dir directory.Service,
	cycles paycycle.Provider,
	outboxRepo kafka.OutboxRepository,
	sink audit.Sink,
	logger *zap.Logger,
	opts ...ExecutorOption,
) Executor {
	if logger == nil {
		logger = zap.L()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	e := &executor{
		repo:    repo,
		gw:      gw,
		dir:     dir,
		cycles:  cycles,
		outbox:  outboxRepo,
		sink:    sink,
		logger:  logger.Named("payrun.executor"),
		limit:   defaultConcurrency,
		timeout: defaultGatewayTimeout,
		active:  map[string]chan struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *executor) Process(ctx context.Context, companyID, runID string, retry bool) (ProcessResult, error) {
	run, err := e.repo.FindByIDAndCompany(ctx, companyID, runID)
	if err != nil {
		return ProcessResult{}, mapRepositoryError(err)
	}
	if run.Status != StatusProcessing {
		return ProcessResult{}, payrunerrors.ErrRunNotProcessing
	}

	stopCh, err := e.register(runID)
	if err != nil {
		return ProcessResult{}, err
	}
	defer e.unregister(runID)

	rules, err := e.cycles.Resolve(ctx, companyID)
	if err != nil {
		return ProcessResult{}, err
	}

	items, err := e.repo.ListDisbursableItems(ctx, runID)
	if err != nil {
		return ProcessResult{}, err
	}

	e.logger.Info("disbursement pass started",
		zap.String("run_id", runID),
		zap.String("reference", run.Reference),
		zap.Int("items", len(items)),
		zap.Int("concurrency", e.limit),
	)
	enteredFrom := StatusApproved
	if retry {
		enteredFrom = StatusFailed
	}
	e.queueLifecycleEvent(ctx, run, events.EventRunProcessingStarted, enteredFrom, StatusProcessing)

	var (
		mu      sync.Mutex
		result  = ProcessResult{RunID: runID}
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(e.limit)

	for _, item := range items {
		item := item

		// A stop request only prevents new dispatches; items already handed
		// to a worker goroutine run to their terminal outcome.
		if stopped(stopCh) {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			// Re-check after acquiring a pool slot: a stop may have landed
			// while this iteration was blocked waiting for one.
			if stopped(stopCh) {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			outcome := e.disburseItem(gctx, run, item, rules.Currency)

			mu.Lock()
			defer mu.Unlock()
			if outcome == nil {
				result.Successful++
				return nil
			}
			result.Failed++
			result.Errors = append(result.Errors, *outcome)
			return nil
		})
	}

	// Worker funcs never return errors; Wait only synchronizes the pool.
	_ = g.Wait()

	finalStatus, err := e.finalize(ctx, companyID, run)
	if err != nil {
		return result, err
	}
	result.RunStatus = finalStatus

	e.logger.Info("disbursement pass finished",
		zap.String("run_id", runID),
		zap.String("status", finalStatus),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

func (e *executor) Stop(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.active[runID]
	if !ok {
		return false
	}
	select {
	case <-ch:
		// already stopped
	default:
		close(ch)
	}
	return true
}

func (e *executor) register(runID string) (chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.active[runID]; exists {
		return nil, payrunerrors.ErrRunAlreadyProcessing
	}
	ch := make(chan struct{})
	e.active[runID] = ch
	return ch, nil
}

func (e *executor) unregister(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, runID)
}

func stopped(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// disburseItem pushes one item through the gateway and records its terminal
// outcome. Returns nil on success, or the recorded failure. Transport errors
// are failures too: the stable idempotency key makes a later retry safe even
// when the original request actually landed server-side.
func (e *executor) disburseItem(ctx context.Context, run *PayrollRun, item PayrollItem, currency string) *ItemError {
	now := time.Now().UTC()

	identity, err := e.dir.Resolve(ctx, run.CompanyID.String(), item.WorkerID.String())
	if err != nil {
		return e.markFailed(ctx, run, item, "destination error: "+err.Error(), now)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.gw.Send(callCtx, gateway.Request{
		Destination:    identity.PayoutDestination,
		Amount:         item.NetAmount,
		Currency:       currency,
		IdempotencyKey: item.IdempotencyKey,
	})
	if err != nil {
		return e.markFailed(ctx, run, item, "transport error: "+err.Error(), now)
	}
	if res.Declined {
		return e.markFailed(ctx, run, item, res.Reason, now)
	}

	var ref *string
	if res.Reference != "" {
		ref = &res.Reference
	}
	if err := e.repo.UpdateItemOutcome(ctx, item.ID.String(), ItemStatusPaid, nil, ref, now); err != nil {
		// The payment went through but the write failed; surface it as an
		// item error so the operator investigates before retrying. The
		// status guard keeps any later retry from double-paying.
		e.logger.Error("record paid outcome failed",
			zap.String("item_id", item.ID.String()),
			zap.Error(err),
		)
		return &ItemError{ItemID: item.ID.String(), WorkerID: item.WorkerID.String(), Error: "record outcome failed: " + err.Error()}
	}

	return nil
}

func (e *executor) markFailed(ctx context.Context, run *PayrollRun, item PayrollItem, reason string, now time.Time) *ItemError {
	if err := e.repo.UpdateItemOutcome(ctx, item.ID.String(), ItemStatusFailed, &reason, nil, now); err != nil {
		e.logger.Error("record failed outcome failed",
			zap.String("item_id", item.ID.String()),
			zap.Error(err),
		)
	}

	e.queueItemFailedEvent(ctx, run, item, reason)
	e.sink.Record(ctx, audit.Entry{
		Action:  "PAYROLL_ITEM_FAILED",
		Message: "disbursement failed for payroll item",
		Meta: map[string]any{
			"run_id":    run.ID.String(),
			"item_id":   item.ID.String(),
			"worker_id": item.WorkerID.String(),
			"reason":    reason,
		},
	})

	return &ItemError{ItemID: item.ID.String(), WorkerID: item.WorkerID.String(), Error: reason}
}

// finalize settles the run status after a pass: completed only when every
// item is paid, failed otherwise (including stopped passes that left items
// behind in a non-terminal status).
func (e *executor) finalize(ctx context.Context, companyID string, run *PayrollRun) (string, error) {
	counts, err := e.repo.CountItemsByStatus(ctx, companyID, run.ID.String())
	if err != nil {
		return "", err
	}

	var total, paid int64
	for _, c := range counts {
		total += c.Count
		if c.Status == ItemStatusPaid {
			paid += c.Count
		}
	}

	finalStatus := StatusFailed
	eventType := events.EventRunFailed
	action := "PAYROLL_RUN_FAILED"
	if total > 0 && paid == total {
		finalStatus = StatusCompleted
		eventType = events.EventRunCompleted
		action = "PAYROLL_RUN_COMPLETED"
	}

	ok, err := e.repo.TransitionStatus(ctx, run.ID.String(), StatusProcessing, finalStatus)
	if err != nil {
		return "", err
	}
	if !ok {
		// Exclusive processing is guaranteed upstream by the CAS in
		// BeginProcessing, so a lost finalize means operator interference.
		return "", payrunerrors.ErrRunNotProcessing
	}

	now := time.Now().UTC()
	run.Status = finalStatus
	run.CompletedAt = &now
	if err := e.repo.Update(ctx, run); err != nil {
		return "", err
	}

	e.queueLifecycleEvent(ctx, run, eventType, StatusProcessing, finalStatus)
	e.sink.Record(ctx, audit.Entry{
		Action:  action,
		Message: "payroll run finalized as " + finalStatus,
		Meta: map[string]any{
			"run_id":      run.ID.String(),
			"reference":   run.Reference,
			"total_items": total,
			"paid_items":  paid,
		},
	})

	return finalStatus, nil
}

func (e *executor) queueLifecycleEvent(ctx context.Context, run *PayrollRun, eventType, from, to string) {
	if e.outbox == nil {
		return
	}

	payload, err := json.Marshal(events.PayrollRunLifecycleEvent{
		EventType:  eventType,
		RunID:      run.ID.String(),
		Reference:  run.Reference,
		CompanyID:  run.CompanyID.String(),
		FromStatus: from,
		ToStatus:   to,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("marshal lifecycle event failed", zap.Error(err))
		return
	}

	if err := e.outbox.Create(ctx, kafka.OutboxEvent{
		ID:            uuid.New().String(),
		AggregateType: "payroll_run",
		AggregateID:   run.ID.String(),
		EventType:     eventType,
		Topic:         events.PayrollRunLifecycleTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	}); err != nil {
		e.logger.Error("queue lifecycle event failed", zap.Error(err))
	}
}

func (e *executor) queueItemFailedEvent(ctx context.Context, run *PayrollRun, item PayrollItem, reason string) {
	if e.outbox == nil {
		return
	}

	payload, err := json.Marshal(events.PayrollItemFailedEvent{
		EventType:     events.EventItemFailed,
		RunID:         run.ID.String(),
		ItemID:        item.ID.String(),
		CompanyID:     run.CompanyID.String(),
		WorkerID:      item.WorkerID.String(),
		FailureReason: reason,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("marshal item failed event failed", zap.Error(err))
		return
	}

	if err := e.outbox.Create(ctx, kafka.OutboxEvent{
		ID:            uuid.New().String(),
		AggregateType: "payroll_item",
		AggregateID:   item.ID.String(),
		EventType:     events.EventItemFailed,
		Topic:         events.PayrollItemFailedTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	}); err != nil {
		e.logger.Error("queue item failed event failed", zap.Error(err))
	}
}
