package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/seclane/authgate/core"
	"github.com/seclane/authgate/ports"
)

// ZapSink writes audit events to a structured log. Used when no message
// broker is configured; the log stream is then the append-only record.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink creates a log-backed sink.
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

var _ ports.AuditSink = (*ZapSink)(nil)

// Record writes one audit event.
func (s *ZapSink) Record(ctx context.Context, event core.AuditEvent) error {
	fields := []zap.Field{
		zap.String("action", event.Action),
		zap.String("userId", event.UserID),
		zap.String("method", event.Method),
		zap.Int64("pendingAgeSeconds", event.PendingAgeSeconds),
		zap.String("outcome", event.Outcome),
		zap.Time("timestamp", event.Timestamp),
	}

	if event.Severity == core.SeverityCritical {
		s.log.Error("security event", fields...)
	} else {
		s.log.Warn("security event", fields...)
	}

	return nil
}
