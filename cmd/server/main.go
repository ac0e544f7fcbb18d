package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/globeco/order-submission-service/internal/breaker"
	"github.com/globeco/order-submission-service/internal/config"
	"github.com/globeco/order-submission-service/internal/failurewindow"
	"github.com/globeco/order-submission-service/internal/gate"
	"github.com/globeco/order-submission-service/internal/handlers"
	"github.com/globeco/order-submission-service/internal/logging"
	"github.com/globeco/order-submission-service/internal/orchestrator"
	"github.com/globeco/order-submission-service/internal/orderstore"
	"github.com/globeco/order-submission-service/internal/poolhealth"
	"github.com/globeco/order-submission-service/internal/reconcilelog"
	"github.com/globeco/order-submission-service/internal/server"
	"github.com/globeco/order-submission-service/internal/tradeclient"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New("development")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting order submission service")

	ctx := context.Background()
	poolCfg, err := pgxpool.ParseConfig(cfg.Datasource.URL)
	if err != nil {
		logger.Fatal("failed to parse datasource url", zap.Error(err))
	}
	poolCfg.MaxConns = int32(cfg.Pool.MaxSize)
	poolCfg.MinConns = int32(cfg.Pool.MinIdle)
	poolCfg.MaxConnLifetime = cfg.Pool.MaxLifetime
	poolCfg.MaxConnIdleTime = cfg.Pool.IdleTimeout

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	store := orderstore.New(dbPool)

	concurrencyGate := gate.New(gate.Config{
		Permits:        cfg.Gate.Permits,
		AcquireTimeout: cfg.Gate.AcquireTimeout,
	})

	monitor := poolhealth.New(store, 5*time.Second, logger)
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	monitor.Start(monitorCtx)
	defer monitor.Stop()

	breakerCfg := breaker.Config{
		Enabled:              cfg.Breaker.Enabled,
		UtilizationThreshold: cfg.Breaker.UtilizationThreshold,
		ConsecutiveSamples:   cfg.Breaker.ConsecutiveSamples,
		FailureThreshold:     cfg.Breaker.FailureThreshold,
		FailureWindow:        cfg.Breaker.FailureWindow,
		OpenDuration:         cfg.Breaker.OpenDuration,
		RetryAfterBase:       time.Duration(cfg.RetryAfterBaseSeconds) * time.Second,
		RetryAfterMax:        time.Duration(cfg.RetryAfterMaxSeconds) * time.Second,
	}

	var breakerInstance *breaker.Breaker
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()
		counter := failurewindow.New(redisClient, "bulk-submit", cfg.Breaker.FailureWindow)
		breakerInstance = breaker.NewWithFailureCounter(breakerCfg, monitor, logger, counter)
	} else {
		breakerInstance = breaker.New(breakerCfg, monitor, logger)
	}

	client := tradeclient.New(tradeclient.Config{
		BaseURL:        cfg.Trade.URL,
		ConnectTimeout: cfg.Trade.ConnectTimeout,
		TotalTimeout:   cfg.Trade.TotalTimeout,
		MaxConnections: cfg.Trade.MaxConnections,
	}, logger)

	audit, err := reconcilelog.New(reconcilelog.Config{
		FilePath:   cfg.ReconcileLog.FilePath,
		MaxSizeMB:  cfg.ReconcileLog.MaxSizeMB,
		MaxBackups: cfg.ReconcileLog.MaxBackups,
		MaxAgeDays: cfg.ReconcileLog.MaxAgeDays,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize reconciliation audit log", zap.Error(err))
	}
	defer func() { _ = audit.Sync() }()

	orch := orchestrator.New(store, concurrencyGate, breakerInstance, client, audit, logger, orchestrator.Config{
		SubmitBatchMax:     cfg.SubmitBatchMax,
		CreateBatchMax:     cfg.CreateBatchMax,
		ReconcileChunkSize: cfg.ReconcileChunkSize,
	})

	services := &server.Services{
		OrderHandler:     handlers.NewOrderHandler(orch, logger),
		ReferenceHandler: handlers.NewReferenceHandler(store, logger),
	}

	httpServer := server.New(cfg, services, logger)
	httpServer.Setup()

	if err := httpServer.Start(); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}
