package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlement-service/config"
	"settlement-service/internal/api"
	"settlement-service/internal/broker"
	"settlement-service/internal/gateway"
	"settlement-service/internal/redisclient"
	"settlement-service/internal/service"
	"settlement-service/internal/store"
	"settlement-service/internal/util"
	"settlement-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backend is what the saga and the query side need from persistence
type backend interface {
	store.Transactor
	store.Reader
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting settlement service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.ServiceName, cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, closeDB := openBackend(cfg, logger)
	defer closeDB()

	var (
		mirror service.StockMirror
		guard  service.RequestGuard
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, running without request guard and stock mirror", zap.Error(err))
	} else {
		defer redisClient.Close()
		mirror, guard = redisClient, redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	outcomes := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSettlements)
	defer outcomes.Close()
	requests := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRequests)
	defer requests.Close()
	logger.Info("Kafka producers initialized",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("events_topic", cfg.Kafka.TopicSettlements),
		zap.String("requests_topic", cfg.Kafka.TopicRequests))

	eventPublisher := broker.NewEventPublisher(outcomes, requests)

	registry := gateway.NewRegistry(
		gateway.NewTossAdapter(gateway.TossConfig{
			SecretKey:  cfg.Gateway.TossSecretKey,
			ConfirmURL: cfg.Gateway.TossConfirmURL,
			MaxAmount:  cfg.Gateway.TossMaxAmount,
		}, &http.Client{}),
		gateway.NewKakaoFakeAdapter(cfg.Gateway.KakaoFakeEnabled),
	)
	client := gateway.NewClient(gateway.RetryPolicy{
		MaxAttempts:    cfg.Gateway.MaxAttempts,
		InitialBackoff: cfg.Gateway.BackoffInitial,
		MaxBackoff:     cfg.Gateway.BackoffMax,
		Multiplier:     cfg.Gateway.BackoffMultiplier,
	}, cfg.Gateway.AttemptTimeout)
	logger.Info("Gateway adapters registered", zap.Strings("adapters", registry.Names()))

	ledger := service.NewStockLedger(mirror)
	saga := service.NewSagaOrchestrator(
		db,
		service.NewOrderService(),
		ledger,
		service.NewSettlementService(),
		registry,
		client,
	).WithEvents(eventPublisher)
	if guard != nil {
		saga = saga.WithGuard(guard, cfg.Redis.IdempotencyTTL)
	}
	paymentService := service.NewPaymentService(db)

	if err := ledger.SyncMirror(context.Background(), db); err != nil {
		logger.Warn("Failed to sync stock mirror", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	requestConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRequests, cfg.Kafka.ConsumerGroup)
	settlementWorker := worker.NewSettlementWorker(requestConsumer, saga)
	go func() {
		if err := settlementWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Settlement worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(saga, paymentService, eventPublisher).
		WithReadinessCheck("store", db)
	if redisClient != nil {
		handler = handler.WithReadinessCheck("redis", redisClient)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := settlementWorker.Stop(); err != nil {
		logger.Error("Error stopping settlement worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

// openBackend connects the configured store. The memory driver starts empty
// and is meant for local runs without Postgres.
func openBackend(cfg *config.Config, logger *zap.Logger) (backend, func()) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), func() {}
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	logger.Info("Database connected")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	return db, func() {
		if err := db.Close(); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}
}
