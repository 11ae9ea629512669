package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrS3NotConfigured is returned when Archive is called without an S3
// bucket configured.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// LocalStore keeps artifacts on local disk. Archive is unsupported unless
// wrapped with S3Store.
type LocalStore struct {
	outputDir string
}

// NewLocalStore creates a LocalStore rooted at outputDir, creating the
// directory if needed. An empty outputDir defaults to ./output.
func NewLocalStore(outputDir string) (*LocalStore, error) {
	if outputDir == "" {
		outputDir = "output"
	}

	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &LocalStore{outputDir: outputDir}, nil
}

// OutputDir returns the output directory path.
func (s *LocalStore) OutputDir() string {
	return s.outputDir
}

// ArtifactPath returns the local path for an artifact name. The name is
// reduced to its base so callers cannot escape the output directory.
func (s *LocalStore) ArtifactPath(name string) string {
	return filepath.Join(s.outputDir, filepath.Base(name))
}

// Archive is not supported by LocalStore and returns ErrS3NotConfigured.
func (s *LocalStore) Archive(_ context.Context, _ string) (string, error) {
	return "", ErrS3NotConfigured
}
