package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/user/meter-logger/internal/adapter/api"
	"github.com/user/meter-logger/internal/adapter/api/middleware"
	"github.com/user/meter-logger/internal/adapter/metrics"
	"github.com/user/meter-logger/internal/adapter/repository/postgres"
	redisrepo "github.com/user/meter-logger/internal/adapter/repository/redis"
	"github.com/user/meter-logger/internal/adapter/repository/wal"
	"github.com/user/meter-logger/internal/pkg/config"
	"github.com/user/meter-logger/internal/pkg/logger"
	"github.com/user/meter-logger/internal/usecase"

	_ "github.com/lib/pq" // postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting meter logger")

	m := metrics.NewLoggerMetrics()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL Sink ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")
	sink := postgres.NewReadingRepository(db, log)

	// --- WAL Spill ---
	walRepo, err := wal.NewWALRepository(cfg.WALPath, cfg.WALSegmentSize, cfg.WALMaxDiskSize, log)
	if err != nil {
		log.Error("failed to initialize WAL repository", "error", err)
		os.Exit(1)
	}
	defer walRepo.Close()

	// --- Pipelines and Use Cases ---
	channels := usecase.NewChannelSet(cfg.BufferTargetCapacity, log)
	ingestUseCase := usecase.NewIngestReadingUseCase(channels, m, log)

	transferOpts := []usecase.TransferOption{
		usecase.WithMetrics(m),
		usecase.WithMinInterval(cfg.MinReadingInterval),
		usecase.WithRetry(cfg.SinkRetryCount, cfg.SinkRetryBackoff),
		usecase.WithWAL(walRepo, cfg.SpillThreshold),
	}

	// --- Redis Live Feed (optional) ---
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		live := redisrepo.NewLivePublisher(redisClient, log)
		if err := live.Ping(ctx); err != nil {
			log.Warn("could not connect to redis, live feed may be unavailable", "error", err)
		}
		transferOpts = append(transferOpts, usecase.WithLiveFeed(live))
	}

	transferUseCase := usecase.NewTransferReadingsUseCase(channels, sink, log, transferOpts...)

	// --- Admin & Metrics Server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:    cfg.AdminServerAddr,
		Handler: adminMux,
	}
	go func() {
		log.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Ingest Server ---
	ingestRouter := api.NewRouter(cfg, log, ingestUseCase)
	ingestServer := &http.Server{
		Addr:         cfg.IngestServerAddr,
		Handler:      middleware.Logging(log)(ingestRouter),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		log.Info("starting ingest server", "addr", ingestServer.Addr)
		if err := ingestServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ingest server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Transfer Loop ---
	ticker := time.NewTicker(cfg.TransferInterval)
	defer ticker.Stop()
	log.Info("transfer loop started", "interval", cfg.TransferInterval.String())

Loop:
	for {
		select {
		case <-ticker.C:
			if _, err := transferUseCase.TransferAll(ctx); err != nil {
				log.Error("transfer cycle failed", "error", err)
			}
		case <-ctx.Done():
			break Loop
		}
	}

	// Final cycle so readings accepted right before shutdown still go out.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFlush()
	if n, err := transferUseCase.TransferAll(flushCtx); err != nil {
		log.Error("final transfer cycle failed", "error", err)
	} else if n > 0 {
		log.Info("flushed readings on shutdown", "count", n)
	}

	log.Info("shutting down servers...")
	if err := adminServer.Shutdown(flushCtx); err != nil {
		log.Error("admin server shutdown failed", "error", err)
	}
	if err := ingestServer.Shutdown(flushCtx); err != nil {
		log.Error("ingest server shutdown failed", "error", err)
	}

	log.Info("meter logger shut down gracefully")
}
