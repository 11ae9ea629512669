// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrAPIKeyRequired is returned when the remote provider is selected
	// without PULSEFRAME_API_KEY set.
	ErrAPIKeyRequired = errors.New("config: PULSEFRAME_API_KEY is required for the remote provider")
	// ErrUnknownProvider is returned for a PROVIDER value outside the known set.
	ErrUnknownProvider = errors.New("config: unknown provider")
)

// Provider names.
const (
	// ProviderSimulated runs against the in-process simulator.
	ProviderSimulated = "simulated"
	// ProviderRemote runs against the hosted generation service.
	ProviderRemote = "remote"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Generation service settings
	Provider string `env:"PROVIDER, default=simulated" json:"provider"`
	APIKey   string `env:"PULSEFRAME_API_KEY" json:"-"` // Masked in JSON

	// Job settings
	MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS, default=3" json:"max_concurrent_jobs"`
	PollIntervalSec   int `env:"POLL_INTERVAL_SEC, default=5" json:"poll_interval_sec"`
	JobTimeoutSec     int `env:"JOB_TIMEOUT_SEC, default=600" json:"job_timeout_sec"`

	// Streaming settings
	FrameQueueSize  int  `env:"FRAME_QUEUE_SIZE, default=8" json:"frame_queue_size"`
	ViewerQueueSize int  `env:"VIEWER_QUEUE_SIZE, default=16" json:"viewer_queue_size"`
	TurboDefault    bool `env:"TURBO_DEFAULT, default=true" json:"turbo_default"`

	// Trigger settings
	LoreConfigPath string `env:"LORE_CONFIG_PATH" json:"lore_config_path,omitempty"`

	// Storage settings
	OutputDir string `env:"OUTPUT_DIR, default=output" json:"output_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderSimulated:
	case ProviderRemote:
		if c.APIKey == "" {
			return ErrAPIKeyRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Provider: %s, MaxConcurrentJobs: %d, PollIntervalSec: %d, JobTimeoutSec: %d, OutputDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.Provider,
		c.MaxConcurrentJobs,
		c.PollIntervalSec,
		c.JobTimeoutSec,
		c.OutputDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
