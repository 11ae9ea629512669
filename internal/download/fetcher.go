// Package download fetches media from the ephemeral URLs the generation
// service hands out. The URLs expire on a service-defined schedule (treat as
// roughly an hour), so downloads happen promptly and retry transient
// failures with exponential backoff.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Static errors for download operations.
var (
	// ErrURLRequired is returned when the source URL is empty.
	ErrURLRequired = errors.New("download: URL is required")
	// ErrServerError is returned on a 5xx response after retries.
	ErrServerError = errors.New("download: server error")
	// ErrRateLimited is returned on a 429 response after retries.
	ErrRateLimited = errors.New("download: rate limited")
	// ErrRequestFailed is returned on any other non-2xx response.
	ErrRequestFailed = errors.New("download: request failed")
)

// Fetcher downloads a URL to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) error
}

// HTTPFetcher is the HTTP implementation of Fetcher.
type HTTPFetcher struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.baseBackoff = d
	}
}

// NewHTTPFetcher creates a Fetcher with sensible defaults for media-sized
// downloads.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url into destPath. The file is written to a temporary
// sibling first and renamed into place so a failed download never leaves a
// truncated artifact behind.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, destPath string) error {
	if url == "" {
		return ErrURLRequired
	}

	var lastErr error
	backoff := f.baseBackoff

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("download: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := f.fetchOnce(ctx, url, destPath)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("download: max retries exceeded: %w", lastErr)
}

// fetchOnce performs a single download attempt.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download: create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("download: request %s: %w", url, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded amount so the connection can be reused.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(body))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(body))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	tmpPath := destPath + ".partial"
	out, err := os.Create(filepath.Clean(tmpPath))
	if err != nil {
		return fmt.Errorf("download: create %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return &retryableError{err: fmt.Errorf("download: write %s: %w", tmpPath, err)}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("download: close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("download: rename to %s: %w", destPath, err)
	}
	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
