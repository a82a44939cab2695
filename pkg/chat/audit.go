package chat

import (
	"context"

	"github.com/dan-solli/moex/pkg/store"
	"github.com/dan-solli/moex/pkg/tone"
	"github.com/dan-solli/moex/pkg/trace"
	"go.uber.org/zap"
)

// audit appends an entry. A failed write never fails the request, but it is
// logged and counted so a dropped entry is visible.
func (s *Service) audit(ctx context.Context, caller, kind string, t tone.Tone, payload map[string]interface{}) error {
	err := s.repo.AppendAudit(ctx, &store.AuditEntry{
		Timestamp: s.now(),
		Caller:    caller,
		Kind:      kind,
		Tone:      string(t),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Error("audit entry dropped",
			zap.String("kind", kind),
			zap.String("caller", caller),
			zap.Error(err))
		s.metrics.RecordError(ctx, kind, "audit_dropped")
	}
	return err
}

func (s *Service) auditSpan(ctx context.Context, op *trace.Operation, caller, kind string, t tone.Tone, payload map[string]interface{}) {
	span := op.Span("audit")
	err := s.audit(ctx, caller, kind, t, payload)
	s.endSpan(ctx, op, span, err, nil)
}
