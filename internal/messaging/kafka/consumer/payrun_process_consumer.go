package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"gigpay/internal/events"
	"gigpay/internal/payrun"
	payrunerrors "gigpay/internal/payrun/errors"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ConsumePayrollRunProcessRequested drives the disbursement executor. Process
// and stop requests for a run share a topic keyed by run id, so both land on
// the consumer instance that owns the in-flight execution.
//
// Execution runs in its own goroutine: a stop request must be consumable
// while its run is still being processed.
func ConsumePayrollRunProcessRequested(
	ctx context.Context,
	reader *kafkago.Reader,
	exec payrun.Executor,
	logger *zap.Logger,
) {
	log := logger.Named("kafka.consumer.payrun_process")
	log.Info("payroll run process consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("payroll run process consumer stopped")
				return
			}
			log.Error("fetch payroll run process message failed", zap.Error(err))
			continue
		}

		var event events.PayrollRunProcessRequestedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error("decode payroll run process event failed", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		switch event.EventType {
		case events.EventRunStopRequested:
			stopped := exec.Stop(event.RunID)
			log.Info("stop request handled",
				zap.String("run_id", event.RunID),
				zap.Bool("was_running", stopped),
			)

		default:
			go runExecutor(ctx, exec, event, log)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit payroll run process message failed", zap.Error(err))
		}
	}
}

func runExecutor(
	ctx context.Context,
	exec payrun.Executor,
	event events.PayrollRunProcessRequestedEvent,
	log *zap.Logger,
) {
	result, err := exec.Process(ctx, event.CompanyID, event.RunID, event.Retry)
	if err != nil {
		// Redelivery of an already-handled request is normal under
		// at-least-once semantics; everything else is an operator problem.
		if errors.Is(err, payrunerrors.ErrRunAlreadyProcessing) ||
			errors.Is(err, payrunerrors.ErrRunNotProcessing) {
			log.Warn("skipping redelivered process request",
				zap.String("run_id", event.RunID),
				zap.Error(err),
			)
			return
		}
		log.Error("process payroll run failed",
			zap.String("run_id", event.RunID),
			zap.String("company_id", event.CompanyID),
			zap.Error(err),
		)
		return
	}

	log.Info("payroll run processed",
		zap.String("run_id", result.RunID),
		zap.String("run_status", result.RunStatus),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
}
