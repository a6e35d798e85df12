package telemetry

import (
	"context"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"explicit endpoint", Options{ServiceName: "smaug-test", Version: "dev", Endpoint: "localhost:4318", Insecure: true}},
		{"environment defaults", Options{ServiceName: "smaug-test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.opts)
			if err != nil {
				t.Fatalf("InitTracer() unexpected error: %v", err)
			}
			if err := Shutdown(ctx, tp); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestShutdownNilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Expected nil provider shutdown to succeed, got %v", err)
	}
}

func TestOptionsSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ratio float64
		want  string
	}{
		{0, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{1, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}

	for _, tt := range tests {
		if got := (Options{SampleRatio: tt.ratio}).Sampler().Description(); got != tt.want {
			t.Errorf("Sampler(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}
