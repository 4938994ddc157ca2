// Package audit is the engine's fire-and-forget observation sink. A failing
// sink must never affect payroll correctness, so implementations log and
// swallow their own errors.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Entry struct {
	Action  string
	Message string
	Meta    map[string]any
}

type Sink interface {
	Record(ctx context.Context, entry Entry)
}

type zapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger ...*zap.Logger) Sink {
	l := zap.L()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &zapSink{logger: l.Named("audit")}
}

func (s *zapSink) Record(ctx context.Context, entry Entry) {
	s.logger.Info("audit event",
		zap.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
		zap.String("action", entry.Action),
		zap.String("message", entry.Message),
		zap.Any("meta", entry.Meta),
	)
}

// NopSink discards everything; used in tests and as a safe default.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) {}
