// Package workers holds the background consumers of the audit queue.
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smaug/internal/billing"
	"github.com/benvon/smaug/internal/database"
	logpkg "github.com/benvon/smaug/internal/logger"
	"github.com/benvon/smaug/internal/queue"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// DefaultFlushInterval is how often pending totals are written.
	DefaultFlushInterval = 30 * time.Second
	// DefaultMaxPending forces a flush once this many messages are held.
	DefaultMaxPending = 500

	finalFlushTimeout = 10 * time.Second
)

// ErrMessagesClosed is returned by Run when the delivery channel closes.
var ErrMessagesClosed = errors.New("message channel closed")

// BillingWorker folds audit messages into monthly totals. Messages stay
// unacknowledged until the totals containing them are committed.
//
// A BillingWorker is driven by a single goroutine.
type BillingWorker struct {
	repo          database.BillingRepositoryInterface
	log           *zap.Logger
	clock         clockwork.Clock
	flushInterval time.Duration
	maxPending    int

	agg     *billing.Aggregator
	pending []queue.MessageInterface
}

// BillingOption configures a BillingWorker.
type BillingOption func(*BillingWorker)

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(d time.Duration) BillingOption {
	return func(w *BillingWorker) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithMaxPending sets how many messages may wait for a flush.
func WithMaxPending(n int) BillingOption {
	return func(w *BillingWorker) {
		if n > 0 {
			w.maxPending = n
		}
	}
}

// WithWorkerClock replaces the clock driving the flush ticker.
func WithWorkerClock(c clockwork.Clock) BillingOption {
	return func(w *BillingWorker) {
		if c != nil {
			w.clock = c
		}
	}
}

// NewBillingWorker creates a worker writing to repo.
func NewBillingWorker(repo database.BillingRepositoryInterface, log *zap.Logger, opts ...BillingOption) *BillingWorker {
	if log == nil {
		log = zap.NewNop()
	}
	w := &BillingWorker{
		repo:          repo,
		log:           log,
		clock:         clockwork.NewRealClock(),
		flushInterval: DefaultFlushInterval,
		maxPending:    DefaultMaxPending,
		agg:           billing.NewAggregator(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Pending reports how many messages wait for the next flush.
func (w *BillingWorker) Pending() int {
	return len(w.pending)
}

// ProcessMessage adds one audit message to the pending totals. Messages
// without a parsable audit line are dead-lettered right away.
func (w *BillingWorker) ProcessMessage(ctx context.Context, msg queue.MessageInterface) error {
	audit := msg.GetAudit()

	line, ok := billing.ExtractLine(audit.Line)
	var entry billing.Entry
	var err error
	if ok {
		entry, err = billing.ParseLine(line)
	} else {
		err = billing.ErrNotAuditLine
	}
	if err != nil {
		w.log.Warn("dropping_unparsable_audit_message",
			zap.String("message_id", audit.ID.String()),
			zap.String("line", logpkg.SanitizeString(audit.Line, logpkg.MaxGeneralStringLength)),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			return fmt.Errorf("nack unparsable message: %w", nackErr)
		}
		return nil
	}

	w.agg.Add(entry, audit.EmittedAt)
	w.pending = append(w.pending, msg)

	if len(w.pending) >= w.maxPending {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes the pending totals and settles their messages: acked on
// commit, requeued on failure.
func (w *BillingWorker) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	rows := w.agg.Usage()
	pending := w.pending
	w.pending = nil
	w.agg.Reset()

	if err := w.repo.AddUsage(ctx, rows); err != nil {
		w.log.Error("failed_to_flush_billing_usage",
			zap.Int("rows", len(rows)),
			zap.Int("messages", len(pending)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		for _, msg := range pending {
			if nackErr := msg.Nack(true); nackErr != nil {
				w.log.Warn("failed_to_requeue_audit_message", zap.Error(nackErr))
			}
		}
		return fmt.Errorf("flush billing usage: %w", err)
	}

	for _, msg := range pending {
		if ackErr := msg.Ack(); ackErr != nil {
			w.log.Warn("failed_to_ack_audit_message", zap.Error(ackErr))
		}
	}
	w.log.Info("flushed_billing_usage",
		zap.Int("rows", len(rows)),
		zap.Int("messages", len(pending)),
	)
	return nil
}

// Run consumes msgs until ctx is done or msgs closes, flushing on every
// tick. Pending totals are flushed once more before it returns.
func (w *BillingWorker) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) error {
	ticker := w.clock.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finalFlush()
			return nil
		case <-ticker.Chan():
			if err := w.Flush(ctx); err != nil {
				w.log.Warn("periodic_flush_failed", zap.Error(err))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				w.finalFlush()
				return ErrMessagesClosed
			}
			if err := w.ProcessMessage(ctx, msg); err != nil {
				w.log.Warn("failed_to_process_audit_message", zap.Error(err))
			}
		}
	}
}

func (w *BillingWorker) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		w.log.Error("final_flush_failed", zap.Error(err))
	}
}
