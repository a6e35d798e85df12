package counter

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/benvon/smaug/internal/models"
	"go.uber.org/zap"
)

// AuditPrefix starts every audit line.
const AuditPrefix = "smaug"

const auditSeparator = "#"

// DimensionValue is one categorical field carried by an audit record.
type DimensionValue struct {
	Name  models.Dimension
	Value string
}

// AuditRecord is a billing-relevant adjustment of a counter.
type AuditRecord struct {
	ID         string
	Dimensions []DimensionValue
	Key        string
	N          int64
}

// NewAuditRecord builds the record for cfg. Dimensions present in cfg are
// kept in declared order.
func NewAuditRecord(cfg *models.CounterConfig, key string, n int64) AuditRecord {
	rec := AuditRecord{ID: cfg.ID, Key: key, N: n}
	for _, d := range models.Dimensions {
		if v, ok := cfg.Dimension(d); ok {
			rec.Dimensions = append(rec.Dimensions, DimensionValue{Name: d, Value: v})
		}
	}
	return rec
}

// Line renders the record in its wire format:
//
//	smaug#id#<id>#whitelabel#<whitelabel>#customer#<customer>#key#<key>#n#<n>
//
// Downstream billing parses this positionally; field order and separators
// must not change.
func (r AuditRecord) Line() string {
	var b strings.Builder
	b.WriteString(AuditPrefix)
	writeAuditField(&b, "id", r.ID)
	for _, d := range r.Dimensions {
		writeAuditField(&b, string(d.Name), d.Value)
	}
	writeAuditField(&b, "key", r.Key)
	writeAuditField(&b, "n", strconv.FormatInt(r.N, 10))
	return b.String()
}

func writeAuditField(b *strings.Builder, name, value string) {
	b.WriteString(auditSeparator)
	b.WriteString(name)
	b.WriteString(auditSeparator)
	b.WriteString(value)
}

// AuditSink receives audit records.
type AuditSink interface {
	Emit(ctx context.Context, rec AuditRecord) error
}

// LogSink writes each audit line as the message of an info entry.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a sink that logs on a child logger named "audit".
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("audit")}
}

// Emit logs rec.Line().
func (s *LogSink) Emit(_ context.Context, rec AuditRecord) error {
	s.log.Info(rec.Line())
	return nil
}

// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []AuditSink

// Emit calls every sink even when an earlier one fails.
func (m MultiSink) Emit(ctx context.Context, rec AuditRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
