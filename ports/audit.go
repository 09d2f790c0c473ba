package ports

import (
	"context"

	"github.com/seclane/authgate/core"
)

// AuditSink records security events to an append-only destination.
// Implementations are best-effort: the authority never lets a sink failure
// block or alter an authentication decision.
type AuditSink interface {
	Record(ctx context.Context, event core.AuditEvent) error
}
