package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/smaug/internal/config"
	"github.com/benvon/smaug/internal/database"
	"github.com/benvon/smaug/internal/logger"
	"github.com/benvon/smaug/internal/queue"
	"github.com/benvon/smaug/internal/workers"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flushInterval := flag.Duration("flush-interval", workers.DefaultFlushInterval, "How often billing totals are written")
	maxPending := flag.Int("max-pending", 0, "Flush once this many audit messages are held (default RABBITMQ_PREFETCH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireBilling(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	// Unacked messages are capped by the prefetch, so holding more never happens.
	if *maxPending <= 0 || *maxPending > cfg.RabbitMQPrefetch {
		*maxPending = cfg.RabbitMQPrefetch
	}

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Duration("flush_interval", *flushInterval),
		zap.Int("max_pending", *maxPending),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = db.Migrate(migrateCtx)
	cancel()
	if err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	auditQueue, err := queue.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := auditQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	msgs, errs, err := auditQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	worker := workers.NewBillingWorker(database.NewBillingRepository(db), zapLogger,
		workers.WithFlushInterval(*flushInterval),
		workers.WithMaxPending(*maxPending),
	)
	if err := worker.Run(ctx, msgs, errs); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Error("worker_stopped_with_error", zap.Error(err))
		return
	}

	zapLogger.Info("worker_stopped")
}
