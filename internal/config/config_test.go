package config

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	os.Unsetenv("PORT")
	os.Unsetenv("PROVIDER")
	os.Unsetenv("PULSEFRAME_API_KEY")
	os.Unsetenv("MAX_CONCURRENT_JOBS")
	os.Unsetenv("POLL_INTERVAL_SEC")
	os.Unsetenv("JOB_TIMEOUT_SEC")
	os.Unsetenv("FRAME_QUEUE_SIZE")
	os.Unsetenv("VIEWER_QUEUE_SIZE")
	os.Unsetenv("TURBO_DEFAULT")
	os.Unsetenv("LORE_CONFIG_PATH")
	os.Unsetenv("OUTPUT_DIR")
	os.Unsetenv("S3_BUCKET")
	os.Unsetenv("S3_REGION")
	os.Unsetenv("S3_ENDPOINT")
	os.Unsetenv("AWS_ACCESS_KEY_ID")
	os.Unsetenv("AWS_SECRET_ACCESS_KEY")
	os.Unsetenv("LOG_FORMAT")
	os.Unsetenv("LOG_LEVEL")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ProviderSimulated, cfg.Provider)
	assert.Equal(t, 3, cfg.MaxConcurrentJobs)
	assert.Equal(t, 5, cfg.PollIntervalSec)
	assert.Equal(t, 600, cfg.JobTimeoutSec)
	assert.Equal(t, 8, cfg.FrameQueueSize)
	assert.Equal(t, 16, cfg.ViewerQueueSize)
	assert.True(t, cfg.TurboDefault)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Provider(t *testing.T) {
	t.Run("remote without API key returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("PROVIDER", "remote")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAPIKeyRequired)
	})

	t.Run("remote with API key succeeds", func(t *testing.T) {
		clearEnv()
		t.Setenv("PROVIDER", "remote")
		t.Setenv("PULSEFRAME_API_KEY", "test-api-key")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ProviderRemote, cfg.Provider)
		assert.Equal(t, "test-api-key", cfg.APIKey)
	})

	t.Run("unknown provider returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("PROVIDER", "mainframe")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv()
	t.Setenv("PORT", "3000")
	t.Setenv("MAX_CONCURRENT_JOBS", "5")
	t.Setenv("POLL_INTERVAL_SEC", "2")
	t.Setenv("JOB_TIMEOUT_SEC", "120")
	t.Setenv("TURBO_DEFAULT", "false")
	t.Setenv("OUTPUT_DIR", "/custom/output")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 5, cfg.MaxConcurrentJobs)
	assert.Equal(t, 2, cfg.PollIntervalSec)
	assert.Equal(t, 120, cfg.JobTimeoutSec)
	assert.False(t, cfg.TurboDefault)
	assert.Equal(t, "/custom/output", cfg.OutputDir)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidIntegerDefaults(t *testing.T) {
	clearEnv()
	t.Setenv("PORT", "not-a-number")
	t.Setenv("MAX_CONCURRENT_JOBS", "invalid")

	// go-envconfig returns an error when parsing fails
	_, err := Load()
	require.Error(t, err)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:              8080,
		Provider:          ProviderRemote,
		APIKey:            "secret-key",
		MaxConcurrentJobs: 3,
		OutputDir:         "/tmp/test",
		S3Bucket:          "bucket",
		S3Region:          "region",
		LogFormat:         "json",
		LogLevel:          "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "remote")
	assert.Contains(t, str, "/tmp/test")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)

	// Capture output to verify it's JSON
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	testLogger := slog.New(handler)
	testLogger.Info("test message")

	// Should have JSON structure
	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	// Just verify it returns a valid logger
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("simulated provider needs no key", func(t *testing.T) {
		cfg := &Config{Provider: ProviderSimulated}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("remote provider requires key", func(t *testing.T) {
		cfg := &Config{Provider: ProviderRemote}
		assert.ErrorIs(t, cfg.Validate(), ErrAPIKeyRequired)
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		cfg := &Config{Provider: "other"}
		assert.ErrorIs(t, cfg.Validate(), ErrUnknownProvider)
	})
}
