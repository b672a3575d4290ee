package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/autopilot-ops/extraction-store/internal/archive"
	"github.com/autopilot-ops/extraction-store/internal/config"
	"github.com/autopilot-ops/extraction-store/internal/database"
	"github.com/autopilot-ops/extraction-store/internal/extraction"
	"github.com/autopilot-ops/extraction-store/internal/extractor"
	"github.com/autopilot-ops/extraction-store/internal/handlers"
	"github.com/autopilot-ops/extraction-store/internal/observability"
	"github.com/autopilot-ops/extraction-store/internal/retention"
	"github.com/autopilot-ops/extraction-store/internal/store"
	"github.com/autopilot-ops/extraction-store/internal/workflow"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	db, err := database.NewPostgresDB(logger, database.PostgresConfig{
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		DBName:   cfg.PostgresDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	})
	if err != nil {
		logger.WithError(err).Fatal("Database setup failed")
	}

	metrics := observability.Init()

	cacheStore := store.NewCacheStore(logger, db)
	ledger := store.NewSessionLedger(logger, db)
	aggregator := store.NewMetricsAggregator(logger, db, cfg.CostPerExtractionEur)

	var archiver archive.Archiver
	if cfg.ArchiveBucket != "" {
		archiver = archive.NewS3Archiver(logger, cfg)
	}
	janitor := retention.New(logger, db, archiver, retention.Config{
		SessionWindow: cfg.SessionRetention,
		CacheWindow:   cfg.CacheRetention,
		MetricsWindow: cfg.MetricsRetention,
		Interval:      cfg.RetentionInterval,
	}, metrics)

	opts := extraction.Options{
		Extractor:          extractor.NewClient(logger, cfg),
		MinCacheConfidence: cfg.MinCacheConfidence,
	}
	if cfg.WorkflowURL != "" {
		opts.SideEffector = workflow.NewClient(logger, cfg)
	}
	svc := extraction.NewService(logger, cacheStore, ledger, aggregator, janitor, metrics, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go janitor.Start(ctx)

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.RateLimitMiddleware(cfg))
	handlers.RegisterRoutes(r, handlers.NewOpsHandler(logger, svc))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
	}()

	logger.WithField("addr", cfg.ListenAddr).Info("Starting server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("Server failed")
	}
}
