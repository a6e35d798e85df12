package counter

import (
	"context"
	"errors"
	"testing"

	"github.com/benvon/smaug/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuditRecord_Line(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *models.CounterConfig
		n    int64
		want string
	}{
		{
			name: "no dimensions",
			cfg:  &models.CounterConfig{ID: "svc", Minute: intPtr(2)},
			n:    1,
			want: "smaug#id#svc#key#k1#n#1",
		},
		{
			name: "dimensions in declared order",
			cfg: &models.CounterConfig{
				ID:         "test-api-call",
				Prefix:     strPtr("p"),
				Customer:   strPtr("789"),
				WhiteLabel: strPtr(""),
				User:       strPtr("u1"),
			},
			n:    3,
			want: "smaug#id#test-api-call#whitelabel##customer#789#user#u1#prefix#p#key#k1#n#3",
		},
		{
			name: "negative correction",
			cfg:  &models.CounterConfig{ID: "svc", Customer: strPtr("c")},
			n:    -10,
			want: "smaug#id#svc#customer#c#key#k1#n#-10",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := NewAuditRecord(tt.cfg, "k1", tt.n).Line(); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogSink_Emit(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	rec := NewAuditRecord(&models.CounterConfig{ID: "svc"}, "abc", 2)
	if err := sink.Emit(context.Background(), rec); err != nil {
		t.Fatalf("Emit() unexpected error: %v", err)
	}

	entries := logs.FilterLoggerName("audit").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Message != "smaug#id#svc#key#abc#n#2" {
		t.Errorf("Expected audit line message, got %q", entries[0].Message)
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Errorf("Expected info level, got %v", entries[0].Level)
	}
}

type recordingSink struct {
	records []AuditRecord
	err     error
}

func (s *recordingSink) Emit(_ context.Context, rec AuditRecord) error {
	s.records = append(s.records, rec)
	return s.err
}

func TestMultiSink_Emit(t *testing.T) {
	t.Parallel()

	errBroken := errors.New("broken")
	first := &recordingSink{err: errBroken}
	second := &recordingSink{}
	sink := MultiSink{first, nil, second}

	err := sink.Emit(context.Background(), AuditRecord{ID: "svc", Key: "k", N: 1})
	if !errors.Is(err, errBroken) {
		t.Errorf("Expected joined error to wrap %v, got %v", errBroken, err)
	}
	if len(first.records) != 1 || len(second.records) != 1 {
		t.Errorf("Expected every sink to receive the record, got %d and %d", len(first.records), len(second.records))
	}
}
