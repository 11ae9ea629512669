// Package bootstrap provides dependency initialization for the PulseFrame
// API. Everything is constructed once, explicitly, and torn down through
// Close; nothing is a lazily created global.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avisser/pulseframe-api/internal/batch"
	"github.com/avisser/pulseframe-api/internal/config"
	"github.com/avisser/pulseframe-api/internal/download"
	"github.com/avisser/pulseframe-api/internal/gen"
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

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Handlers *server.Handlers
	Session  *session.Session
	Hub      *hub.Hub

	svc    gen.Service
	logger *slog.Logger
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := initService(cfg, logger)
	if err != nil {
		return nil, err
	}

	broadcast := hub.New(logger, hub.WithQueueSize(cfg.ViewerQueueSize))
	encoder := media.NewJPEGEncoder()
	sess := session.New(svc, broadcast, encoder, logger,
		session.WithFrameQueueSize(cfg.FrameQueueSize),
		session.WithTurbo(cfg.TurboDefault),
	)

	registry := job.NewRegistry()
	waiter := wait.New(svc, logger)
	fetcher := download.NewHTTPFetcher()

	scheduler := batch.New(svc, waiter, fetcher, registry, store, batch.Options{
		PollInterval:  time.Duration(cfg.PollIntervalSec) * time.Second,
		PerJobTimeout: time.Duration(cfg.JobTimeoutSec) * time.Second,
		Archive:       cfg.S3Enabled(),
	}, logger)

	pipeline, err := initPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}

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

	return &Dependencies{
		Handlers: handlers,
		Session:  sess,
		Hub:      broadcast,
		svc:      svc,
		logger:   logger,
	}, nil
}

// Close tears the orchestrator down: the session first so the active stream
// ends cleanly, then the broadcast hub, then the service handle.
func (d *Dependencies) Close(ctx context.Context) {
	d.Session.Shutdown(ctx)
	d.Hub.Close()
	if closer, ok := d.svc.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			d.logger.Warn("service close failed", slog.String("error", err.Error()))
		}
	}
}

// initService selects the generation service adapter.
func initService(cfg *config.Config, logger *slog.Logger) (gen.Service, error) {
	switch cfg.Provider {
	case config.ProviderSimulated:
		svc, err := simulated.New(simulated.Options{}, logger)
		if err != nil {
			return nil, fmt.Errorf("create simulated service: %w", err)
		}
		return svc, nil
	case config.ProviderRemote:
		// The hosted service's wire protocol ships as a separate adapter.
		return nil, fmt.Errorf("provider %q: no adapter built in; use %q", cfg.Provider, config.ProviderSimulated)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}
}

// initPipeline assembles the trigger pipeline from its collaborators.
func initPipeline(cfg *config.Config, logger *slog.Logger) (*trigger.Pipeline, error) {
	lore := trigger.DefaultLoreConfig()
	if cfg.LoreConfigPath != "" {
		loaded, err := trigger.LoadLoreConfig(cfg.LoreConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load lore config: %w", err)
		}
		lore = loaded
		logger.Info("lore config loaded", slog.String("path", cfg.LoreConfigPath))
	}

	return trigger.NewPipeline(
		trigger.NewStaticAnalyzer(),
		trigger.NewThresholdClassifier(),
		trigger.NewLoreMapper(lore),
		logger,
	), nil
}

// initStorage creates the appropriate artifact store based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
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
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 artifact store configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStore(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local artifact store configured",
		slog.String("output_dir", cfg.OutputDir),
	)
	return localStore, nil
}
