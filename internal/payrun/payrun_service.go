package payrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gigpay/internal/audit"
	"gigpay/internal/events"
	"gigpay/internal/messaging/kafka"
	"gigpay/internal/paycycle"
	payrunerrors "gigpay/internal/payrun/errors"
	"gigpay/internal/shared/contextutil"
	"gigpay/internal/shared/counter"
	"gigpay/internal/workentry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const referenceCounterType = "payroll_run_reference"

//go:generate mockgen -source=payrun_service.go -destination=mock/payrun_service_mock.go -package=mock
type Service interface {
	Create(ctx context.Context, companyID, actorID string, req CreateRunRequest) (RunResponse, error)
	GetAll(ctx context.Context, companyID string, status string) ([]RunResponse, error)
	GetByID(ctx context.Context, companyID, id string) (RunResponse, error)
	Delete(ctx context.Context, companyID, id string) error

	GetItems(ctx context.Context, companyID, id string) ([]ItemResponse, error)
	AddItem(ctx context.Context, companyID, actorID, id string, req AddItemRequest) (ItemResponse, error)
	RemoveItem(ctx context.Context, companyID, id, itemID string) error
	GenerateItems(ctx context.Context, companyID, actorID, id string) (RunResponse, error)

	SubmitForApproval(ctx context.Context, companyID, actorID, id string) (RunResponse, error)
	Approve(ctx context.Context, companyID, approverID, id string) (RunResponse, error)
	Reject(ctx context.Context, companyID, actorID, id string, req RejectRunRequest) (RunResponse, error)
	BeginProcessing(ctx context.Context, companyID, actorID, id string) (RunResponse, error)
	RetryFailed(ctx context.Context, companyID, actorID, id string) (RunResponse, error)
	RequestStop(ctx context.Context, companyID, actorID, id string) error

	GetProgress(ctx context.Context, companyID, id string) (ProgressResponse, error)
	Summarize(ctx context.Context, companyID, id string) (RunSummaryResponse, error)
}

type service struct {
	db       *sql.DB
	repo     Repository
	work     workentry.Repository
	cycles   paycycle.Provider
	counter  counter.Repository
	outbox   kafka.OutboxRepository
	sink     audit.Sink
	resolver WorkerResolver
	logger   *zap.Logger
}

// WorkerResolver is the slice of the directory the summary view needs.
type WorkerResolver interface {
	ResolveName(ctx context.Context, companyID string, workerID string) string
}

func NewService(
	db *sql.DB,
	repo Repository,
	work workentry.Repository,
	cycles paycycle.Provider,
	counterRepo counter.Repository,
	sink audit.Sink,
	logger ...*zap.Logger,
) Service {
	return NewServiceWithOutbox(db, repo, work, cycles, counterRepo, nil, sink, nil, logger...)
}

func NewServiceWithOutbox(
	db *sql.DB,
	repo Repository,
	work workentry.Repository,
	cycles paycycle.Provider,
	counterRepo counter.Repository,
	outboxRepo kafka.OutboxRepository,
	sink audit.Sink,
	resolver WorkerResolver,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("payrun.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("payrun.service")
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &service{
		db:       db,
		repo:     repo,
		work:     work,
		cycles:   cycles,
		counter:  counterRepo,
		outbox:   outboxRepo,
		sink:     sink,
		resolver: resolver,
		logger:   l,
	}
}

func (s *service) Create(
	ctx context.Context,
	companyID, actorID string,
	req CreateRunRequest,
) (RunResponse, error) {
	rid := contextutil.GetRequestID(ctx)

	companyUUID, err := uuid.Parse(companyID)
	if err != nil {
		return RunResponse{}, payrunerrors.ErrInvalidCompanyID
	}
	actorUUID, err := uuid.Parse(actorID)
	if err != nil {
		return RunResponse{}, payrunerrors.ErrInvalidActorID
	}

	rules, err := s.cycles.Resolve(ctx, companyID)
	if err != nil {
		return RunResponse{}, err
	}

	periodStart, periodEnd, payDate, err := resolvePeriod(req, rules)
	if err != nil {
		return RunResponse{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	nextVal, err := s.counter.Next(ctx, companyID, referenceCounterType)
	if err != nil {
		s.logger.Error("generate run reference failed", zap.String("request_id", rid), zap.Error(err))
		return RunResponse{}, err
	}
	reference := fmt.Sprintf("PR-%d-%04d", periodEnd.Year(), nextVal)

	run := &PayrollRun{
		ID:          uuid.New(),
		CompanyID:   companyUUID,
		Reference:   reference,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		PayDate:     payDate,
		Status:      StatusDraft,
		Notes:       req.Notes,
		CreatedBy:   actorUUID,
	}

	if err := qtx.Create(ctx, run); err != nil {
		s.logger.Error("create payroll run failed", zap.String("request_id", rid), zap.Error(err))
		return RunResponse{}, mapRepositoryError(err)
	}

	if err := tx.Commit(); err != nil {
		return RunResponse{}, err
	}

	s.sink.Record(ctx, audit.Entry{
		Action:  "PAYROLL_RUN_CREATED",
		Message: "payroll run created in draft",
		Meta:    map[string]any{"run_id": run.ID.String(), "reference": reference, "company_id": companyID},
	})

	return mapToRunResponse(*run), nil
}

func (s *service) GetAll(ctx context.Context, companyID string, status string) ([]RunResponse, error) {
	runs, err := s.repo.FindAllByCompany(ctx, companyID, status)
	if err != nil {
		return nil, err
	}
	return mapToRunListResponse(runs), nil
}

func (s *service) GetByID(ctx context.Context, companyID, id string) (RunResponse, error) {
	run, err := s.repo.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, mapRepositoryError(err)
	}
	return mapToRunResponse(*run), nil
}

func (s *service) Delete(ctx context.Context, companyID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return mapRepositoryError(err)
	}
	if run.Status != StatusDraft {
		return payrunerrors.ErrRunNotDraft
	}

	// Draft deletion cascades to items; items never outlive their run.
	if err := qtx.Delete(ctx, companyID, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *service) SubmitForApproval(ctx context.Context, companyID, actorID, id string) (RunResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, mapRepositoryError(err)
	}
	if run.Status != StatusDraft {
		return RunResponse{}, transitionError(run.Status, "submit_for_approval")
	}

	items, err := qtx.ListItems(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, err
	}
	if len(items) == 0 {
		return RunResponse{}, payrunerrors.ErrRunHasNoItems
	}

	run.Status = StatusPendingApproval
	run.RejectionReason = nil
	if err := qtx.Update(ctx, run); err != nil {
		return RunResponse{}, err
	}

	if err := s.queueLifecycleEvent(ctx, qtx, run, events.EventRunSubmitted, StatusDraft, actorID, ""); err != nil {
		return RunResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return RunResponse{}, err
	}

	s.recordTransition(ctx, run, "PAYROLL_RUN_SUBMITTED", actorID)
	return mapToRunResponse(*run), nil
}

func (s *service) Approve(ctx context.Context, companyID, approverID, id string) (RunResponse, error) {
	approverUUID, err := uuid.Parse(approverID)
	if err != nil {
		return RunResponse{}, payrunerrors.ErrInvalidActorID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, mapRepositoryError(err)
	}
	if run.Status != StatusPendingApproval {
		return RunResponse{}, transitionError(run.Status, "approve")
	}

	now := time.Now().UTC()
	run.Status = StatusApproved
	run.ApprovedBy = &approverUUID
	run.ApprovedAt = &now
	if err := qtx.Update(ctx, run); err != nil {
		return RunResponse{}, err
	}

	if err := qtx.MarkPendingItemsApproved(ctx, id); err != nil {
		return RunResponse{}, err
	}

	if err := s.queueLifecycleEvent(ctx, qtx, run, events.EventRunApproved, StatusPendingApproval, approverID, ""); err != nil {
		return RunResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return RunResponse{}, err
	}

	s.recordTransition(ctx, run, "PAYROLL_RUN_APPROVED", approverID)
	return mapToRunResponse(*run), nil
}

func (s *service) Reject(ctx context.Context, companyID, actorID, id string, req RejectRunRequest) (RunResponse, error) {
	if req.Reason == "" {
		return RunResponse{}, payrunerrors.ErrRejectReasonRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, mapRepositoryError(err)
	}
	if run.Status != StatusPendingApproval {
		return RunResponse{}, transitionError(run.Status, "reject")
	}

	// Rejection reopens the draft; the reason stays on the run for audit.
	run.Status = StatusDraft
	run.RejectionReason = &req.Reason
	if err := qtx.Update(ctx, run); err != nil {
		return RunResponse{}, err
	}

	if err := s.queueLifecycleEvent(ctx, qtx, run, events.EventRunRejected, StatusPendingApproval, actorID, req.Reason); err != nil {
		return RunResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return RunResponse{}, err
	}

	s.recordTransition(ctx, run, "PAYROLL_RUN_REJECTED", actorID)
	return mapToRunResponse(*run), nil
}

// BeginProcessing moves an approved run into processing. The transition is a
// single-row compare-and-swap, so two operators racing it end with exactly
// one winner; the loser gets ErrRunAlreadyProcessing instead of a second
// executor silently double-paying the run. The CAS and the process-request
// outbox row commit in one transaction: a run must never be in processing
// without a queued request to actually process it.
func (s *service) BeginProcessing(ctx context.Context, companyID, actorID, id string) (RunResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, mapRepositoryError(err)
	}

	ok, err := qtx.TransitionStatus(ctx, id, StatusApproved, StatusProcessing)
	if err != nil {
		return RunResponse{}, err
	}
	if !ok {
		current, err := s.repo.FindByIDAndCompany(ctx, companyID, id)
		if err != nil {
			return RunResponse{}, mapRepositoryError(err)
		}
		if current.Status == StatusProcessing {
			return RunResponse{}, payrunerrors.ErrRunAlreadyProcessing
		}
		return RunResponse{}, transitionError(current.Status, "begin_processing")
	}

	now := time.Now().UTC()
	run.Status = StatusProcessing
	run.ProcessingStartedAt = &now
	if err := qtx.Update(ctx, run); err != nil {
		return RunResponse{}, err
	}

	if err := s.queueProcessRequest(ctx, qtx, run, actorID, false); err != nil {
		s.logger.Error("queue process request failed",
			zap.String("run_id", id),
			zap.Error(err),
		)
		return RunResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return RunResponse{}, err
	}

	s.recordTransition(ctx, run, "PAYROLL_RUN_PROCESSING_STARTED", actorID)
	return mapToRunResponse(*run), nil
}

// RetryFailed re-enters processing from failed. Only items that are failed
// or were left non-terminal by an interrupted pass get re-queued; paid items
// are never touched. Like BeginProcessing, the CAS and the process-request
// row commit atomically.
func (s *service) RetryFailed(ctx context.Context, companyID, actorID, id string) (RunResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, mapRepositoryError(err)
	}

	ok, err := qtx.TransitionStatus(ctx, id, StatusFailed, StatusProcessing)
	if err != nil {
		return RunResponse{}, err
	}
	if !ok {
		current, err := s.repo.FindByIDAndCompany(ctx, companyID, id)
		if err != nil {
			return RunResponse{}, mapRepositoryError(err)
		}
		if current.Status == StatusProcessing {
			return RunResponse{}, payrunerrors.ErrRunAlreadyProcessing
		}
		return RunResponse{}, transitionError(current.Status, "retry_failed")
	}

	now := time.Now().UTC()
	run.Status = StatusProcessing
	run.ProcessingStartedAt = &now
	run.CompletedAt = nil
	if err := qtx.Update(ctx, run); err != nil {
		return RunResponse{}, err
	}

	if err := s.queueProcessRequest(ctx, qtx, run, actorID, true); err != nil {
		s.logger.Error("queue retry process request failed",
			zap.String("run_id", id),
			zap.Error(err),
		)
		return RunResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return RunResponse{}, err
	}

	s.recordTransition(ctx, run, "PAYROLL_RUN_RETRY_STARTED", actorID)
	return mapToRunResponse(*run), nil
}

// RequestStop asks the disburser to stop dispatching new items for a run. The
// request rides the process-request topic, which is hash partitioned by run
// id, so it lands on the same consumer that owns the in-flight execution.
func (s *service) RequestStop(ctx context.Context, companyID, actorID, id string) error {
	run, err := s.repo.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return mapRepositoryError(err)
	}
	if run.Status != StatusProcessing {
		return payrunerrors.ErrRunNotProcessing
	}

	payload, err := json.Marshal(events.PayrollRunProcessRequestedEvent{
		EventType:   events.EventRunStopRequested,
		RunID:       run.ID.String(),
		CompanyID:   run.CompanyID.String(),
		RequestedBy: actorID,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.outbox != nil {
		err = s.outbox.Create(ctx, kafka.OutboxEvent{
			ID:            uuid.New().String(),
			RequestID:     contextutil.GetRequestID(ctx),
			AggregateType: "payroll_run",
			AggregateID:   run.ID.String(),
			EventType:     events.EventRunStopRequested,
			Topic:         events.PayrollRunProcessRequestTopic,
			Payload:       payload,
			Status:        kafka.OutboxStatusPending,
		})
		if err != nil {
			return err
		}
	}

	s.recordTransition(ctx, run, "PAYROLL_RUN_STOP_REQUESTED", actorID)
	return nil
}

func (s *service) queueLifecycleEvent(
	ctx context.Context,
	qtx Repository,
	run *PayrollRun,
	eventType string,
	fromStatus string,
	actorID string,
	reason string,
) error {
	if s.outbox == nil {
		return nil
	}

	payload, err := json.Marshal(events.PayrollRunLifecycleEvent{
		EventType:  eventType,
		RunID:      run.ID.String(),
		Reference:  run.Reference,
		CompanyID:  run.CompanyID.String(),
		ActorID:    actorID,
		FromStatus: fromStatus,
		ToStatus:   run.Status,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	outboxTx := s.outbox
	if tx, ok := txOf(qtx); ok {
		outboxTx = s.outbox.WithTx(tx)
	}

	return outboxTx.Create(ctx, kafka.OutboxEvent{
		ID:            uuid.New().String(),
		RequestID:     contextutil.GetRequestID(ctx),
		AggregateType: "payroll_run",
		AggregateID:   run.ID.String(),
		EventType:     eventType,
		Topic:         events.PayrollRunLifecycleTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	})
}

func (s *service) queueProcessRequest(ctx context.Context, qtx Repository, run *PayrollRun, actorID string, retry bool) error {
	if s.outbox == nil {
		return nil
	}

	payload, err := json.Marshal(events.PayrollRunProcessRequestedEvent{
		EventType:   events.EventRunProcessRequested,
		RunID:       run.ID.String(),
		CompanyID:   run.CompanyID.String(),
		RequestedBy: actorID,
		Retry:       retry,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	outboxTx := s.outbox
	if tx, ok := txOf(qtx); ok {
		outboxTx = s.outbox.WithTx(tx)
	}

	return outboxTx.Create(ctx, kafka.OutboxEvent{
		ID:            uuid.New().String(),
		RequestID:     contextutil.GetRequestID(ctx),
		AggregateType: "payroll_run",
		AggregateID:   run.ID.String(),
		EventType:     events.EventRunProcessRequested,
		Topic:         events.PayrollRunProcessRequestTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	})
}

func (s *service) recordTransition(ctx context.Context, run *PayrollRun, action, actorID string) {
	s.sink.Record(ctx, audit.Entry{
		Action:  action,
		Message: "payroll run transitioned to " + run.Status,
		Meta: map[string]any{
			"run_id":    run.ID.String(),
			"reference": run.Reference,
			"status":    run.Status,
			"actor_id":  actorID,
		},
	})
}

// transitionError names the current state and the attempted transition;
// this is operator misuse, never retried automatically.
func transitionError(currentStatus, attempted string) error {
	return &payrunTransitionError{current: currentStatus, attempted: attempted}
}

type payrunTransitionError struct {
	current   string
	attempted string
}

func (e *payrunTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a payroll run in status %q", e.attempted, e.current)
}

func (e *payrunTransitionError) Unwrap() error {
	return payrunerrors.ErrInvalidTransition
}

// txOf unwraps the *sql.Tx a repository was bound with, if any. Keeps the
// outbox write inside the same transaction as the run update.
func txOf(repo Repository) (*sql.Tx, bool) {
	r, ok := repo.(*repository)
	if !ok || r.tx == nil {
		return nil, false
	}
	return r.tx, true
}
