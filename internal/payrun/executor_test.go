package payrun_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"gigpay/internal/audit"
	"gigpay/internal/directory"
	"gigpay/internal/events"
	"gigpay/internal/gateway"
	"gigpay/internal/messaging/kafka"
	"gigpay/internal/payrun"
	payrunerrors "gigpay/internal/payrun/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type fakeGateway struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, req gateway.Request) (gateway.Result, error)
	calls  []gateway.Request
}

func (f *fakeGateway) Send(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, req)
	}
	return gateway.Result{Reference: "pay_" + req.IdempotencyKey[:8]}, nil
}

type fakeDirectory struct {
	resolveFn func(ctx context.Context, companyID, workerID string) (directory.Identity, error)
}

func (f *fakeDirectory) Resolve(ctx context.Context, companyID, workerID string) (directory.Identity, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, companyID, workerID)
	}
	return directory.Identity{
		WorkerID:          workerID,
		FullName:          "Worker " + workerID[:4],
		PayoutDestination: "acct_" + workerID[:8],
	}, nil
}

// runStore is an in-memory stand-in for the run and item tables, enforcing
// the same write guards the real repository does.
type runStore struct {
	mu    sync.Mutex
	run   *payrun.PayrollRun
	items map[uuid.UUID]*payrun.PayrollItem
}

func newRunStore(run *payrun.PayrollRun, items []payrun.PayrollItem) *runStore {
	s := &runStore{run: run, items: map[uuid.UUID]*payrun.PayrollItem{}}
	for i := range items {
		item := items[i]
		s.items[item.ID] = &item
	}
	return s
}

func (s *runStore) bind(repo *fakeRunRepository) {
	repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*payrun.PayrollRun, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		run := *s.run
		return &run, nil
	}
	repo.listDisbursableItemsFn = func(ctx context.Context, runID string) ([]payrun.PayrollItem, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var out []payrun.PayrollItem
		for _, item := range s.items {
			if item.Status == payrun.ItemStatusPending ||
				item.Status == payrun.ItemStatusApproved ||
				item.Status == payrun.ItemStatusFailed {
				out = append(out, *item)
			}
		}
		return out, nil
	}
	repo.updateItemOutcomeFn = func(ctx context.Context, itemID string, status string, failureReason *string, gatewayRef *string, processedAt time.Time) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		item := s.items[uuid.MustParse(itemID)]
		if item == nil || item.Status == payrun.ItemStatusPaid {
			return nil
		}
		item.Status = status
		item.FailureReason = failureReason
		item.GatewayReference = gatewayRef
		item.ProcessedAt = &processedAt
		return nil
	}
	repo.transitionStatusFn = func(ctx context.Context, id string, from, to string) (bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.run.Status != from {
			return false, nil
		}
		s.run.Status = to
		return true, nil
	}
	repo.updateFn = func(ctx context.Context, run *payrun.PayrollRun) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		*s.run = *run
		return nil
	}
	repo.countItemsByStatusFn = func(ctx context.Context, cid, runID string) ([]payrun.StatusCount, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		counts := map[string]int64{}
		for _, item := range s.items {
			counts[item.Status]++
		}
		var out []payrun.StatusCount
		for status, n := range counts {
			out = append(out, payrun.StatusCount{Status: status, Count: n})
		}
		return out, nil
	}
}

func approvedItem(run *payrun.PayrollRun, workerID uuid.UUID, net string) payrun.PayrollItem {
	id := uuid.New()
	return payrun.PayrollItem{
		ID:             id,
		RunID:          run.ID,
		CompanyID:      run.CompanyID,
		WorkerID:       workerID,
		Type:           payrun.ItemTypeRegular,
		Source:         payrun.ItemSourceGenerated,
		NetAmount:      decimal.RequireFromString(net),
		Status:         payrun.ItemStatusApproved,
		IdempotencyKey: uuid.NewSHA1(run.ID, []byte("disburse:"+id.String())).String(),
	}
}

func processingRun(companyID uuid.UUID) *payrun.PayrollRun {
	now := time.Now().UTC()
	return &payrun.PayrollRun{
		ID:                  uuid.New(),
		CompanyID:           companyID,
		Reference:           "PR-2026-0042",
		Status:              payrun.StatusProcessing,
		ProcessingStartedAt: &now,
	}
}

func TestExecutor_AllItemsPaid(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	run := processingRun(companyID)
	workerA, workerB := uuid.New(), uuid.New()
	store := newRunStore(run, []payrun.PayrollItem{
		approvedItem(run, workerA, "204"),
		approvedItem(run, workerB, "101.15"),
	})

	repo := &fakeRunRepository{}
	store.bind(repo)
	gw := &fakeGateway{}

	exec := payrun.NewExecutor(repo, gw, &fakeDirectory{}, &fakeCycleProvider{rules: testRules()}, nil, audit.NopSink{}, nil)

	result, err := exec.Process(ctx, companyID.String(), run.ID.String(), false)

	assert.NoError(t, err)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, payrun.StatusCompleted, result.RunStatus)
	assert.Equal(t, payrun.StatusCompleted, store.run.Status)
	assert.NotNil(t, store.run.CompletedAt)
	assert.Len(t, gw.calls, 2)

	for _, item := range store.items {
		assert.Equal(t, payrun.ItemStatusPaid, item.Status)
		assert.NotNil(t, item.GatewayReference)
		assert.NotNil(t, item.ProcessedAt)
	}
}

func TestExecutor_DeclinedItemFailsRun(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	run := processingRun(companyID)
	workerA, workerB := uuid.New(), uuid.New()
	itemA := approvedItem(run, workerA, "204")
	itemB := approvedItem(run, workerB, "101.15")
	store := newRunStore(run, []payrun.PayrollItem{itemA, itemB})

	repo := &fakeRunRepository{}
	store.bind(repo)

	gw := &fakeGateway{
		sendFn: func(ctx context.Context, req gateway.Request) (gateway.Result, error) {
			if req.Amount.Equal(decimal.RequireFromString("101.15")) {
				return gateway.Result{Declined: true, Reason: "insufficient account"}, nil
			}
			return gateway.Result{Reference: "pay_ok"}, nil
		},
	}

	exec := payrun.NewExecutor(repo, gw, &fakeDirectory{}, &fakeCycleProvider{rules: testRules()}, nil, audit.NopSink{}, nil)

	result, err := exec.Process(ctx, companyID.String(), run.ID.String(), false)

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, payrun.StatusFailed, result.RunStatus)
	if assert.Len(t, result.Errors, 1) {
		assert.Equal(t, itemB.ID.String(), result.Errors[0].ItemID)
		assert.Equal(t, "insufficient account", result.Errors[0].Error)
	}

	assert.Equal(t, payrun.ItemStatusPaid, store.items[itemA.ID].Status)
	assert.Equal(t, payrun.ItemStatusFailed, store.items[itemB.ID].Status)
	assert.Equal(t, "insufficient account", *store.items[itemB.ID].FailureReason)
}

func TestExecutor_RetryOnlyTouchesUnpaidItems(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	run := processingRun(companyID)
	workerA, workerB := uuid.New(), uuid.New()
	itemA := approvedItem(run, workerA, "204")
	itemB := approvedItem(run, workerB, "101.15")
	store := newRunStore(run, []payrun.PayrollItem{itemA, itemB})

	repo := &fakeRunRepository{}
	store.bind(repo)

	declineB := true
	gw := &fakeGateway{
		sendFn: func(ctx context.Context, req gateway.Request) (gateway.Result, error) {
			if declineB && req.Amount.Equal(decimal.RequireFromString("101.15")) {
				return gateway.Result{Declined: true, Reason: "insufficient account"}, nil
			}
			return gateway.Result{Reference: "pay_" + req.IdempotencyKey[:8]}, nil
		},
	}

	var (
		outboxMu sync.Mutex
		queued   []kafka.OutboxEvent
	)
	outbox := &fakeOutboxRepository{
		createFn: func(ctx context.Context, event kafka.OutboxEvent) error {
			outboxMu.Lock()
			queued = append(queued, event)
			outboxMu.Unlock()
			return nil
		},
	}

	exec := payrun.NewExecutor(repo, gw, &fakeDirectory{}, &fakeCycleProvider{rules: testRules()}, outbox, audit.NopSink{}, nil)

	first, err := exec.Process(ctx, companyID.String(), run.ID.String(), false)
	assert.NoError(t, err)
	assert.Equal(t, payrun.StatusFailed, first.RunStatus)
	firstPaidAt := *store.items[itemA.ID].ProcessedAt

	// operator fixes the account and retries
	declineB = false
	store.mu.Lock()
	store.run.Status = payrun.StatusProcessing
	store.mu.Unlock()

	second, err := exec.Process(ctx, companyID.String(), run.ID.String(), true)
	assert.NoError(t, err)
	assert.Equal(t, 1, second.Successful)
	assert.Equal(t, payrun.StatusCompleted, second.RunStatus)

	// the already-paid item was not re-dispatched and kept its outcome
	assert.Len(t, gw.calls, 3)
	assert.Equal(t, firstPaidAt, *store.items[itemA.ID].ProcessedAt)
	assert.Equal(t, payrun.ItemStatusPaid, store.items[itemB.ID].Status)

	// the retried item reused its original idempotency key
	assert.Equal(t, gw.calls[2].IdempotencyKey, itemB.IdempotencyKey)

	// the first pass entered processing from approved, the retry from failed
	var origins []string
	for _, event := range queued {
		if event.EventType != events.EventRunProcessingStarted {
			continue
		}
		var payload events.PayrollRunLifecycleEvent
		assert.NoError(t, json.Unmarshal(event.Payload, &payload))
		origins = append(origins, payload.FromStatus)
	}
	assert.Equal(t, []string{payrun.StatusApproved, payrun.StatusFailed}, origins)
}

func TestExecutor_UnresolvableWorkerFailsItem(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	run := processingRun(companyID)
	item := approvedItem(run, uuid.New(), "50")
	store := newRunStore(run, []payrun.PayrollItem{item})

	repo := &fakeRunRepository{}
	store.bind(repo)

	dir := &fakeDirectory{
		resolveFn: func(ctx context.Context, cid, wid string) (directory.Identity, error) {
			return directory.Identity{}, directory.ErrNoPayoutDestination
		},
	}
	gw := &fakeGateway{}

	exec := payrun.NewExecutor(repo, gw, dir, &fakeCycleProvider{rules: testRules()}, nil, audit.NopSink{}, nil)

	result, err := exec.Process(ctx, companyID.String(), run.ID.String(), false)

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, payrun.StatusFailed, result.RunStatus)
	// money never moved
	assert.Empty(t, gw.calls)
	assert.True(t, strings.HasPrefix(*store.items[item.ID].FailureReason, "destination error:"))
}

func TestExecutor_Stop(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	run := processingRun(companyID)
	var items []payrun.PayrollItem
	for i := 0; i < 5; i++ {
		items = append(items, approvedItem(run, uuid.New(), "10"))
	}
	store := newRunStore(run, items)

	repo := &fakeRunRepository{}
	store.bind(repo)

	firstDispatched := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw := &fakeGateway{
		sendFn: func(ctx context.Context, req gateway.Request) (gateway.Result, error) {
			once.Do(func() { close(firstDispatched) })
			<-release
			return gateway.Result{Reference: "pay_late"}, nil
		},
	}

	exec := payrun.NewExecutor(
		repo, gw, &fakeDirectory{}, &fakeCycleProvider{rules: testRules()},
		nil, audit.NopSink{}, nil,
		payrun.WithConcurrency(1),
	)

	done := make(chan payrun.ProcessResult, 1)
	go func() {
		result, err := exec.Process(ctx, companyID.String(), run.ID.String(), false)
		assert.NoError(t, err)
		done <- result
	}()

	<-firstDispatched
	assert.True(t, exec.Stop(run.ID.String()))
	close(release)

	result := <-done

	// Only the in-flight item reached the gateway. The remaining four were
	// skipped whether the stop caught them before dispatch or while they sat
	// blocked waiting for the single pool slot.
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, payrun.StatusFailed, result.RunStatus)
	assert.Len(t, gw.calls, 1)

	// stopped items stay non-terminal so a later retry can pick them up
	nonTerminal := 0
	store.mu.Lock()
	for _, item := range store.items {
		if !item.IsTerminal() {
			nonTerminal++
		}
	}
	store.mu.Unlock()
	assert.GreaterOrEqual(t, nonTerminal, result.Skipped)
}

func TestExecutor_Preconditions(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()

	t.Run("run must be processing", func(t *testing.T) {
		run := processingRun(companyID)
		run.Status = payrun.StatusApproved
		store := newRunStore(run, nil)

		repo := &fakeRunRepository{}
		store.bind(repo)

		exec := payrun.NewExecutor(repo, &fakeGateway{}, &fakeDirectory{}, &fakeCycleProvider{rules: testRules()}, nil, audit.NopSink{}, nil)

		_, err := exec.Process(ctx, companyID.String(), run.ID.String(), false)

		assert.ErrorIs(t, err, payrunerrors.ErrRunNotProcessing)
	})

	t.Run("stop on an idle run reports false", func(t *testing.T) {
		exec := payrun.NewExecutor(&fakeRunRepository{}, &fakeGateway{}, &fakeDirectory{}, &fakeCycleProvider{rules: testRules()}, nil, audit.NopSink{}, nil)

		assert.False(t, exec.Stop(uuid.New().String()))
	})
}
