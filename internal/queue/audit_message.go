package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AuditMessage carries one audit line to the billing worker.
type AuditMessage struct {
	ID        uuid.UUID `json:"id"`
	Line      string    `json:"line"`
	ConfigKey string    `json:"config_key"`
	N         int64     `json:"n"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewAuditMessage creates a message with a fresh ID.
func NewAuditMessage(line, configKey string, n int64, emittedAt time.Time) *AuditMessage {
	return &AuditMessage{
		ID:        uuid.New(),
		Line:      line,
		ConfigKey: configKey,
		N:         n,
		EmittedAt: emittedAt.UTC(),
	}
}

// Validate rejects messages the worker cannot account for.
func (m *AuditMessage) Validate() error {
	if m.ID == uuid.Nil {
		return errors.New("audit message id is required")
	}
	if m.Line == "" {
		return errors.New("audit message line is required")
	}
	if m.EmittedAt.IsZero() {
		return errors.New("audit message emitted_at is required")
	}
	return nil
}
