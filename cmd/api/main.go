package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geo-index-service/internal/adapter/archive"
	"github.com/couchcryptid/geo-index-service/internal/adapter/engine"
	"github.com/couchcryptid/geo-index-service/internal/adapter/httpapi"
	kafkaadapter "github.com/couchcryptid/geo-index-service/internal/adapter/kafka"
	"github.com/couchcryptid/geo-index-service/internal/adapter/postgres"
	"github.com/couchcryptid/geo-index-service/internal/auth"
	"github.com/couchcryptid/geo-index-service/internal/config"
	"github.com/couchcryptid/geo-index-service/internal/observability"
	"github.com/couchcryptid/geo-index-service/internal/orchestrator"
)

func main() {
	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL, clock, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	runner := engine.NewRunner(cfg, logger, metrics)
	orc := orchestrator.New(runner, store, cfg.MaxConcurrentEngines, logger, metrics)

	// Calculation events (feature-flagged via KAFKA_BROKERS / KAFKA_ENABLED).
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		orc.AttachPublisher(publisher)
		logger.Info("calculation events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("calculation events disabled")
	}

	// Raw engine output archive (feature-flagged via ARCHIVE_ENDPOINT / ARCHIVE_ENABLED).
	if cfg.ArchiveEnabled {
		archiver, err := archive.NewMinIOArchive(ctx, cfg, logger, metrics)
		if err != nil {
			logger.Error("failed to initialize archive", "error", err)
			os.Exit(1)
		}
		orc.AttachArchiver(archiver)
		logger.Info("engine output archive enabled", "endpoint", cfg.ArchiveEndpoint, "bucket", cfg.ArchiveBucket)
	} else {
		logger.Info("engine output archive disabled")
	}

	verifier := auth.NewVerifier(cfg.JWTSecret, clock)
	srv := httpapi.NewServer(cfg.HTTPAddr, orc, verifier, store, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
