package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	connectMaxRetries   = 10
	connectInitialDelay = 2 * time.Second
	connectMaxDelay     = 30 * time.Second
)

// ConnectRabbitMQ dials amqpURL, retrying with exponential backoff until
// ctx is done or the attempts run out.
func ConnectRabbitMQ(ctx context.Context, amqpURL string, logger *zap.Logger) (*RabbitMQQueue, error) {
	return connectWithRetry(ctx, logger, connectMaxRetries, connectInitialDelay, func() (*RabbitMQQueue, error) {
		return NewRabbitMQQueue(amqpURL)
	})
}

func connectWithRetry[T any](ctx context.Context, logger *zap.Logger, maxRetries int, initialDelay time.Duration, dial func() (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		conn, err := dial()
		if err == nil {
			logger.Info("connected_to_rabbitmq", zap.Int("attempt", attempt+1))
			return conn, nil
		}
		lastErr = err

		delay := backoff(initialDelay, attempt)
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("rabbitmq unreachable after %d attempts: %w", maxRetries, lastErr)
}

func backoff(initial time.Duration, attempt int) time.Duration {
	delay := initial * time.Duration(1<<uint(attempt))
	if delay > connectMaxDelay || delay <= 0 {
		return connectMaxDelay
	}
	return delay
}
