// Package main provides the entry point for the PulseFrame API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/avisser/pulseframe-api/internal/batch"
	"github.com/avisser/pulseframe-api/internal/config"
	"github.com/avisser/pulseframe-api/internal/download"
	"github.com/avisser/pulseframe-api/internal/gen/simulated"
	"github.com/avisser/pulseframe-api/internal/hub"
	"github.com/avisser/pulseframe-api/internal/job"
	"github.com/avisser/pulseframe-api/internal/media"
	"github.com/avisser/pulseframe-api/internal/server"
	"github.com/avisser/pulseframe-api/internal/session"
	"github.com/avisser/pulseframe-api/internal/storage"
	"github.com/avisser/pulseframe-api/internal/trigger"
	"github.com/avisser/pulseframe-api/internal/wait"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting PulseFrame API",
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.Provider),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("output_dir", cfg.OutputDir),
		slog.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize artifact store
	var store storage.Store
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Store(cfg.OutputDir, s3Cfg)
		if err != nil {
			return fmt.Errorf("create S3 storage: %w", err)
		}
		store = s3Store
		logger.Info("S3 artifact store configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
	} else {
		localStore, err := storage.NewLocalStore(cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("create local storage: %w", err)
		}
		store = localStore
		logger.Info("local artifact store configured",
			slog.String("output_dir", cfg.OutputDir),
		)
	}

	// Initialize the generation service adapter
	if cfg.Provider != config.ProviderSimulated {
		return fmt.Errorf("provider %q: no adapter built in; use %q", cfg.Provider, config.ProviderSimulated)
	}
	svc, err := simulated.New(simulated.Options{}, logger)
	if err != nil {
		return fmt.Errorf("create simulated service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	// Streaming side: hub, frame encoder, session
	broadcast := hub.New(logger, hub.WithQueueSize(cfg.ViewerQueueSize))
	encoder := media.NewJPEGEncoder()
	sess := session.New(svc, broadcast, encoder, logger,
		session.WithFrameQueueSize(cfg.FrameQueueSize),
		session.WithTurbo(cfg.TurboDefault),
	)

	// Batch side: registry, waiter, downloader, scheduler
	registry := job.NewRegistry()
	waiter := wait.New(svc, logger)
	fetcher := download.NewHTTPFetcher()
	scheduler := batch.New(svc, waiter, fetcher, registry, store, batch.Options{
		PollInterval:  time.Duration(cfg.PollIntervalSec) * time.Second,
		PerJobTimeout: time.Duration(cfg.JobTimeoutSec) * time.Second,
		Archive:       cfg.S3Enabled(),
	}, logger)

	// Trigger pipeline
	lore := trigger.DefaultLoreConfig()
	if cfg.LoreConfigPath != "" {
		lore, err = trigger.LoadLoreConfig(cfg.LoreConfigPath)
		if err != nil {
			return fmt.Errorf("load lore config: %w", err)
		}
	}
	pipeline := trigger.NewPipeline(
		trigger.NewStaticAnalyzer(),
		trigger.NewThresholdClassifier(),
		trigger.NewLoreMapper(lore),
		logger,
	)

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(
		sess,
		broadcast,
		svc,
		registry,
		scheduler,
		pipeline,
		waiter,
		logger,
		server.WithMaxConcurrent(cfg.MaxConcurrentJobs),
	)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second, // Batches are served synchronously
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	sess.Shutdown(ctx)
	broadcast.Close()

	logger.Info("server stopped gracefully")
	return nil
}
