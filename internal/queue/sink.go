package queue

import (
	"context"
	"fmt"

	"github.com/benvon/smaug/internal/counter"
	"github.com/jonboulle/clockwork"
)

// AuditSink publishes audit records for the billing worker.
type AuditSink struct {
	publisher Publisher
	clock     clockwork.Clock
}

// NewAuditSink creates a sink on p. A nil clock uses the real clock.
func NewAuditSink(p Publisher, clock clockwork.Clock) *AuditSink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuditSink{publisher: p, clock: clock}
}

// Emit publishes rec as an AuditMessage.
func (s *AuditSink) Emit(ctx context.Context, rec counter.AuditRecord) error {
	msg := NewAuditMessage(rec.Line(), rec.Key, rec.N, s.clock.Now())
	if err := s.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}
	return nil
}

var _ counter.AuditSink = (*AuditSink)(nil)
