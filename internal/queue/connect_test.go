package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{3, 16 * time.Second},
		{4, 30 * time.Second},
		{70, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(2*time.Second, tt.attempt); got != tt.want {
			t.Errorf("backoff(attempt %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestConnectWithRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := connectWithRetry(context.Background(), nil, 5, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "conn", nil
	})
	if err != nil || got != "conn" {
		t.Fatalf("Expected connection on third attempt, got %q (%v)", got, err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 dial attempts, got %d", calls)
	}

	dialErr := errors.New("connection refused")
	_, err = connectWithRetry(context.Background(), nil, 2, time.Millisecond, func() (string, error) {
		return "", dialErr
	})
	if !errors.Is(err, dialErr) {
		t.Errorf("Expected last dial error to be wrapped, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = connectWithRetry(ctx, nil, 5, time.Hour, func() (string, error) {
		return "", dialErr
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
