package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"async-payment-gateway/config"
	httpHandler "async-payment-gateway/internal/adapter/http/handler"
	pgStorage "async-payment-gateway/internal/adapter/storage/postgres"
	redisStorage "async-payment-gateway/internal/adapter/storage/redis"
	"async-payment-gateway/internal/core/ports"
	"async-payment-gateway/internal/service"
	"async-payment-gateway/internal/worker"
	"async-payment-gateway/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting async payment gateway worker")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	refundRepo := pgStorage.NewRefundRepo(pool)
	webhookRepo := pgStorage.NewWebhookLogRepo(pool)

	// Initialize Redis stores
	queue := redisStorage.NewJobQueue(rdb, cfg.Worker.JobStatusTTL, cfg.Worker.HeartbeatTTL)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	idGen := service.NewPrefixedIDGenerator(paymentRepo, refundRepo)
	builder := service.NewJSONPayloadBuilder()

	// Initialize business services. The payment and refund creation
	// services live in internal/service for the gateway's API process,
	// which is outside this repository; this process only consumes the
	// jobs that side enqueues.
	webhookSvc := service.NewWebhookService(webhookRepo, queue, builder, idGen, log)

	// Select webhook retry backoff schedule
	backoff := service.ProductionBackoff
	if cfg.Webhook.RetryTestMode {
		backoff = service.TestBackoff
	}

	// Initialize job workers
	paymentWorker := worker.NewPaymentWorker(paymentRepo, webhookSvc, cfg.Worker, log)
	refundWorker := worker.NewRefundWorker(refundRepo, paymentRepo, webhookSvc, cfg.Worker, log)
	webhookWorker := worker.NewWebhookWorker(
		webhookRepo,
		merchantRepo,
		sigSvc,
		&http.Client{Timeout: cfg.Webhook.Timeout},
		backoff,
		cfg.Webhook.MaxAttempts,
		cfg.Webhook.Timeout,
		log,
	)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	processor := worker.NewProcessor(queue, cfg.Worker.PollInterval, cfg.Worker.StaggerDelay, log, paymentWorker, webhookWorker, refundWorker)
	processor.Start(workerCtx)

	scheduler := worker.NewRetryScheduler(webhookRepo, queue, cfg.Webhook.SchedulerInterval, log)
	go scheduler.Run(workerCtx)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with the operational routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		JobQueue:       queue,
		WebhookRepo:    webhookRepo,
		WebhookService: webhookSvc,
		MerchantRepo:   merchantRepo,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down...")

	// Stop pollers first so no job is picked up mid-shutdown, then
	// drain in-flight handlers before closing the HTTP server.
	stopWorkers()
	processor.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Worker exited")
}
