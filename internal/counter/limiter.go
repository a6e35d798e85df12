// Package counter decides whether a quota-limited event may proceed and records it.
//
// A counter is identified by a descriptor: a tenant id plus optional
// dimensions and per-period limits. The descriptor is vetted into a
// canonical config, hashed into a config key, and checked against one
// counter per calendar period in an external store.
//
// The default mode reads counts, decides in process and then submits the
// increments as a separate pipelined batch. No lock spans the gap, so
// concurrent callers for the same key can both pass and overshoot a limit.
// WithStrictMode swaps this for a single server-side compare-and-increment.
package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	logpkg "github.com/benvon/smaug/internal/logger"
	"github.com/benvon/smaug/internal/models"
	"github.com/benvon/smaug/internal/store"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultRecordTTL is the retention of config records, refreshed on every increment.
const DefaultRecordTTL = 60 * 24 * time.Hour

const tracerName = "github.com/benvon/smaug/internal/counter"

// RateLimiter orchestrates vetting, key derivation, period boundaries and the store.
// It holds no per-call state and is safe for concurrent use.
type RateLimiter struct {
	store     store.CounterStore
	atomic    store.AtomicCounterStore
	strict    bool
	clock     clockwork.Clock
	audit     AuditSink
	log       *zap.Logger
	metrics   *Metrics
	recordTTL time.Duration
	tracer    trace.Tracer
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithClock sets the clock used for period boundaries.
func WithClock(c clockwork.Clock) Option {
	return func(l *RateLimiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets the logger. Audit lines go to its "audit" child unless WithAuditSink is used.
func WithLogger(log *zap.Logger) Option {
	return func(l *RateLimiter) {
		if log != nil {
			l.log = log
		}
	}
}

// WithAuditSink replaces the default log sink.
func WithAuditSink(s AuditSink) Option {
	return func(l *RateLimiter) {
		l.audit = s
	}
}

// WithMetrics records decisions and store latency.
func WithMetrics(m *Metrics) Option {
	return func(l *RateLimiter) {
		l.metrics = m
	}
}

// WithRecordTTL sets the config record retention.
func WithRecordTTL(d time.Duration) Option {
	return func(l *RateLimiter) {
		if d > 0 {
			l.recordTTL = d
		}
	}
}

// WithStrictMode makes the check and the increments one atomic store
// operation. This changes behavior: concurrent callers can no longer
// overshoot a limit. The store must implement store.AtomicCounterStore.
func WithStrictMode(strict bool) Option {
	return func(l *RateLimiter) {
		l.strict = strict
	}
}

// New creates a rate limiter on s.
func New(s store.CounterStore, opts ...Option) (*RateLimiter, error) {
	if s == nil {
		return nil, errors.New("counter store is required")
	}

	l := &RateLimiter{
		store:     s,
		clock:     clockwork.NewRealClock(),
		log:       zap.NewNop(),
		recordTTL: DefaultRecordTTL,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.audit == nil {
		l.audit = NewLogSink(l.log)
	}
	if l.strict {
		atomic, ok := s.(store.AtomicCounterStore)
		if !ok {
			return nil, ErrStrictModeUnsupported
		}
		l.atomic = atomic
	}
	return l, nil
}

// Strict reports whether strict mode is on.
func (l *RateLimiter) Strict() bool {
	return l.strict
}

// CheckAndIncrement vets d and records n events if every finite limit allows it.
//
// n == 0 denies without touching the store. n < 0 is an audit-only
// correction: the audit record is emitted with the signed n and nothing in
// the store changes. A denial leaves every counter untouched.
//
// Store errors are returned as is. Retrying after an error is not
// idempotent: the failed call's batch may have landed, and a retry would
// count it twice.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, d Descriptor, n int64) (bool, error) {
	if n == 0 {
		l.metrics.decision(resultNoop)
		return false, nil
	}
	cfg, err := Vet(d)
	if err != nil {
		return false, err
	}
	return l.CheckAndIncrementConfig(ctx, cfg, n)
}

// CheckAndIncrementConfig is CheckAndIncrement for an already vetted config.
func (l *RateLimiter) CheckAndIncrementConfig(ctx context.Context, cfg *models.CounterConfig, n int64) (bool, error) {
	if n == 0 {
		l.metrics.decision(resultNoop)
		return false, nil
	}
	if cfg == nil || cfg.ID == "" {
		return false, &ValidationError{Field: "id", Err: ErrInvalidID}
	}

	ctx, span := l.tracer.Start(ctx, "counter.CheckAndIncrement", trace.WithAttributes(
		attribute.String("counter.id", cfg.ID),
		attribute.Int64("counter.n", n),
		attribute.Bool("counter.strict", l.strict),
	))
	defer span.End()

	key := DeriveKey(cfg)
	span.SetAttributes(attribute.String("counter.key", key))

	if n < 0 {
		l.emitAudit(ctx, cfg, key, n)
		l.metrics.decision(resultCorrection)
		return true, nil
	}

	bounds := PeriodEnds(l.clock.Now())
	batch := l.batch(cfg, key, bounds, n)

	var passed bool
	var err error
	if l.strict {
		passed, err = l.applyAtomic(ctx, batch)
	} else {
		passed, err = l.checkThenApply(ctx, cfg, key, n, batch)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Bool("counter.passed", passed))

	if !passed {
		l.metrics.decision(resultDeny)
		return false, nil
	}

	l.emitAudit(ctx, cfg, key, n)
	l.metrics.decision(resultPass)
	return true, nil
}

// checkThenApply reads every present period, decides in process and then applies.
func (l *RateLimiter) checkThenApply(ctx context.Context, cfg *models.CounterConfig, key string, n int64, batch store.Batch) (bool, error) {
	present := cfg.PresentPeriods()
	counts, err := l.readCounts(ctx, key, present)
	if err != nil {
		return false, err
	}

	for i, p := range present {
		limit, _ := cfg.Limit(p)
		if limit == models.Unlimited {
			continue
		}
		if models.Exceeds(counts[i], n, limit) {
			l.log.Debug("counter_denied",
				zap.String("id", logpkg.SanitizeString(cfg.ID, logpkg.MaxGeneralStringLength)),
				zap.String("config_key", key),
				zap.String("period", string(p)),
				zap.Int64("count", counts[i]),
				zap.Int64("limit", limit),
				zap.Int64("n", n),
			)
			return false, nil
		}
	}

	start := time.Now()
	err = l.store.Apply(ctx, batch)
	l.metrics.observeStore(opApply, start, err)
	if err != nil {
		return false, fmt.Errorf("increment counters: %w", err)
	}
	return true, nil
}

func (l *RateLimiter) applyAtomic(ctx context.Context, batch store.Batch) (bool, error) {
	start := time.Now()
	passed, err := l.atomic.ApplyWithinLimits(ctx, batch)
	l.metrics.observeStore(opApplyAtomic, start, err)
	if err != nil {
		return false, fmt.Errorf("increment counters: %w", err)
	}
	return passed, nil
}

// GetCounts returns the current count of every period for d. Periods
// without a live counter read as zero. Nothing is written or audited.
func (l *RateLimiter) GetCounts(ctx context.Context, d Descriptor) (map[models.Period]int64, error) {
	cfg, err := Vet(d)
	if err != nil {
		return nil, err
	}
	return l.GetCountsConfig(ctx, cfg)
}

// GetCountsConfig is GetCounts for an already vetted config.
func (l *RateLimiter) GetCountsConfig(ctx context.Context, cfg *models.CounterConfig) (map[models.Period]int64, error) {
	if cfg == nil || cfg.ID == "" {
		return nil, &ValidationError{Field: "id", Err: ErrInvalidID}
	}

	ctx, span := l.tracer.Start(ctx, "counter.GetCounts", trace.WithAttributes(
		attribute.String("counter.id", cfg.ID),
	))
	defer span.End()

	counts, err := l.readCounts(ctx, DeriveKey(cfg), models.Periods)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make(map[models.Period]int64, len(models.Periods))
	for i, p := range models.Periods {
		out[p] = counts[i]
	}
	return out, nil
}

func (l *RateLimiter) readCounts(ctx context.Context, key string, periods []models.Period) ([]int64, error) {
	if len(periods) == 0 {
		return nil, nil
	}
	keys := make([]string, len(periods))
	for i, p := range periods {
		keys[i] = store.CounterKey(p, key)
	}

	start := time.Now()
	counts, err := l.store.Counts(ctx, keys)
	l.metrics.observeStore(opRead, start, err)
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	if len(counts) != len(keys) {
		return nil, fmt.Errorf("read counters: store returned %d values for %d keys", len(counts), len(keys))
	}
	return counts, nil
}

// batch builds the writes of a passing call: every finite-limited counter
// is incremented by n and expires at its period boundary, and the config
// record is refreshed.
func (l *RateLimiter) batch(cfg *models.CounterConfig, key string, bounds Boundaries, n int64) store.Batch {
	var b store.Batch
	for _, p := range cfg.FinitePeriods() {
		limit, _ := cfg.Limit(p)
		b.Increments = append(b.Increments, store.Increment{
			Key:      store.CounterKey(p, key),
			Delta:    n,
			ExpireAt: bounds.For(p),
			Limit:    limit,
		})
	}
	b.Record = &store.Record{
		Key:    store.ConfigRecordKey(key),
		Fields: RecordFields(cfg),
		TTL:    l.recordTTL,
	}
	return b
}

func (l *RateLimiter) emitAudit(ctx context.Context, cfg *models.CounterConfig, key string, n int64) {
	if err := l.audit.Emit(ctx, NewAuditRecord(cfg, key, n)); err != nil {
		l.log.Error("audit_emit_failed",
			zap.Error(err),
			zap.String("config_key", key),
			zap.Int64("n", n),
		)
	}
}

// RecordFields flattens cfg into the string fields of its config record.
func RecordFields(cfg *models.CounterConfig) map[string]string {
	fields := map[string]string{"id": cfg.ID}
	for _, d := range models.Dimensions {
		if v, ok := cfg.Dimension(d); ok {
			fields[string(d)] = v
		}
	}
	for _, p := range models.Periods {
		if v, ok := cfg.Limit(p); ok {
			fields[string(p)] = strconv.FormatInt(v, 10)
		}
	}
	return fields
}
