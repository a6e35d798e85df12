package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/smaug/internal/config"
	"github.com/benvon/smaug/internal/counter"
	"github.com/benvon/smaug/internal/database"
	"github.com/benvon/smaug/internal/handlers"
	"github.com/benvon/smaug/internal/logger"
	"github.com/benvon/smaug/internal/middleware"
	"github.com/benvon/smaug/internal/queue"
	"github.com/benvon/smaug/internal/store"
	"github.com/benvon/smaug/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const serviceName = "smaug-server"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	devFlag := flag.Bool("dev", false, "Use human-readable development logs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, *devFlag)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.Bool("strict_mode", cfg.StrictMode),
		zap.Bool("audit_queue_enabled", cfg.AuditQueueEnabled),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	var tracerProvider *sdktrace.TracerProvider
	if cfg.OTELEnabled {
		tracerProvider, err = telemetry.InitTracer(context.Background(), telemetry.Options{
			ServiceName: serviceName,
			Version:     version,
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    cfg.OTELInsecure,
			SampleRatio: cfg.OTELSampleRatio,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tracerProvider); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	redisStore, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisStore.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	checks := map[string]handlers.Check{"redis": redisStore.Ping}

	var auditSink counter.AuditSink = counter.NewLogSink(zapLogger)
	if cfg.AuditQueueEnabled {
		auditQueue, err := queue.ConnectRabbitMQ(context.Background(), cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := auditQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		auditSink = counter.MultiSink{auditSink, queue.NewAuditSink(auditQueue, nil)}
		checks["rabbitmq"] = auditQueue.HealthCheck
	}

	var usageHandler *handlers.UsageHandler
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_database")
		usageHandler = handlers.NewUsageHandler(database.NewBillingRepository(db), zapLogger)
		checks["database"] = db.Ping
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	limiter, err := counter.New(redisStore,
		counter.WithLogger(zapLogger),
		counter.WithAuditSink(auditSink),
		counter.WithMetrics(counter.NewMetrics(registry)),
		counter.WithRecordTTL(cfg.ConfigRecordTTL),
		counter.WithStrictMode(cfg.StrictMode),
	)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	counterHandler := handlers.NewCounterHandler(limiter, redisStore, zapLogger)
	healthChecker := handlers.NewHealthChecker(version, checks)

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order, first registered outermost.
	if tracerProvider != nil {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(zapLogger))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})).Methods("GET")

	apiRouter := r.PathPrefix("/v1").Subrouter()
	if cfg.IngressRate != "" {
		ingress, err := middleware.IngressRateLimit(redisStore.Client(), cfg.IngressRate, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_create_ingress_limiter", zap.Error(err))
		}
		apiRouter.Use(ingress)
		zapLogger.Info("ingress_rate_limit_enabled", zap.String("rate", cfg.IngressRate))
	}
	apiRouter.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	apiRouter.Use(middleware.JSONBody(middleware.DefaultMaxRequestSize))
	counterHandler.RegisterRoutes(apiRouter)
	if usageHandler != nil {
		usageHandler.RegisterRoutes(apiRouter)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
