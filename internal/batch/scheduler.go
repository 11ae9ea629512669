// Package batch runs sets of scripted generation jobs with a bounded number
// in flight at once. Each item is submitted, waited to completion and its
// recordings downloaded; one item failing never disturbs the others.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avisser/pulseframe-api/internal/download"
	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/job"
	"github.com/avisser/pulseframe-api/internal/script"
	"github.com/avisser/pulseframe-api/internal/storage"
	"github.com/avisser/pulseframe-api/internal/wait"
)

// Item statuses reported in batch results.
const (
	// ResultSuccess means the item completed and its media was downloaded.
	ResultSuccess = "success"
	// ResultFailed means the item failed at any stage.
	ResultFailed = "failed"
)

// ErrCancelled marks items that were never submitted because the batch
// context was cancelled first.
var ErrCancelled = errors.New("batch: cancelled before submission")

// Result is the outcome of one batch item. Results are returned in the same
// order as the input scripts regardless of completion order.
type Result struct {
	// Index is the position of the script in the input slice.
	Index int `json:"index"`
	// Status is ResultSuccess or ResultFailed.
	Status string `json:"status"`
	// JobID is set once the item was submitted.
	JobID string `json:"job_id,omitempty"`
	// Files lists the local paths of downloaded artifacts.
	Files []string `json:"files,omitempty"`
	// Error describes the failure for failed items.
	Error string `json:"error,omitempty"`
}

// Options configures a Scheduler.
type Options struct {
	// PollInterval between status polls per item. Defaults to 5s.
	PollInterval time.Duration
	// PerJobTimeout bounds the wait for each item. Zero waits indefinitely.
	PerJobTimeout time.Duration
	// Archive uploads downloaded artifacts to S3 when the store supports it.
	Archive bool
}

// Scheduler runs batches against the generation service.
type Scheduler struct {
	svc      gen.Service
	waiter   *wait.Waiter
	fetcher  download.Fetcher
	registry *job.Registry
	store    storage.Store
	opts     Options
	logger   *slog.Logger
}

// New creates a Scheduler. registry and store may be nil when tracking or
// artifact persistence is not wanted.
func New(svc gen.Service, waiter *wait.Waiter, fetcher download.Fetcher, registry *job.Registry, store storage.Store, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Scheduler{
		svc:      svc,
		waiter:   waiter,
		fetcher:  fetcher,
		registry: registry,
		store:    store,
		opts:     opts,
		logger:   logger,
	}
}

// ProcessBatch runs every script with at most maxConcurrent items in flight.
// The limit is a hard ceiling covering the full item lifecycle from submit
// through download. Cancelling ctx stops further submissions; items already
// submitted are carried to completion so no remote job is orphaned
// mid-flight. The returned slice always has one entry per input script, in
// input order.
func (s *Scheduler) ProcessBatch(ctx context.Context, scripts []*script.Script, maxConcurrent int) []Result {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]Result, len(scripts))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)

	s.logger.Info("batch started",
		slog.Int("items", len(scripts)),
		slog.Int("max_concurrent", maxConcurrent),
	)

	for i, sc := range scripts {
		g.Go(func() error {
			results[i] = s.runItem(ctx, i, sc)
			return nil
		})
	}

	// Item errors are captured in results, never returned through the group.
	_ = g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Status == ResultSuccess {
			succeeded++
		}
	}
	s.logger.Info("batch finished",
		slog.Int("items", len(scripts)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", len(scripts)-succeeded),
	)

	return results
}

// runItem carries one script through submit, wait and download.
func (s *Scheduler) runItem(ctx context.Context, index int, sc *script.Script) Result {
	res := Result{Index: index, Status: ResultFailed}

	if err := ctx.Err(); err != nil {
		res.Error = ErrCancelled.Error()
		return res
	}

	if err := sc.Validate(); err != nil {
		res.Error = fmt.Sprintf("invalid script: %v", err)
		return res
	}

	jobID, err := s.svc.Submit(ctx, sc, gen.SubmitOptions{})
	if err != nil {
		res.Error = fmt.Sprintf("submit: %v", err)
		return res
	}
	res.JobID = jobID

	rec := job.NewRecord(jobID, sc)
	if s.registry != nil {
		s.registry.Save(rec)
	}

	// The remote job exists now; a batch cancellation must not strand it
	// half-tracked, so the rest of the item runs detached.
	detached := context.WithoutCancel(ctx)

	waited, err := s.waiter.WaitForTerminal(detached, jobID, wait.Options{
		PollInterval: s.opts.PollInterval,
		Timeout:      s.opts.PerJobTimeout,
	})
	if waited != nil {
		rec.Status = waited.Status
		rec.Results = waited.Results
		rec.Error = waited.Error
		if s.registry != nil {
			s.registry.Save(rec)
		}
	}
	if err != nil {
		res.Error = fmt.Sprintf("wait: %v", err)
		return res
	}
	if rec.Status != gen.StatusCompleted {
		res.Error = fmt.Sprintf("job %s: %s", rec.Status, rec.Error)
		return res
	}

	files, err := s.downloadRecordings(detached, jobID, rec.Results)
	res.Files = files
	if err != nil {
		res.Error = fmt.Sprintf("download: %v", err)
		return res
	}

	res.Status = ResultSuccess
	return res
}

// downloadRecordings resolves and downloads the media for every stream of a
// completed job. Artifacts are named <jobID>_stream_<n> with the media type
// extension.
func (s *Scheduler) downloadRecordings(ctx context.Context, jobID string, refs []gen.MediaRef) ([]string, error) {
	if s.fetcher == nil || s.store == nil {
		return nil, nil
	}

	var files []string
	for i, ref := range refs {
		if ref.VideoURL == "" {
			resolved, err := s.svc.FetchRecording(ctx, ref.StreamID)
			if err != nil {
				return files, fmt.Errorf("fetch recording for stream %s: %w", ref.StreamID, err)
			}
			ref = resolved
		}

		videoName := fmt.Sprintf("%s_stream_%d.mp4", jobID, i)
		path, err := s.saveArtifact(ctx, ref.VideoURL, videoName)
		if err != nil {
			return files, err
		}
		files = append(files, path)

		if ref.ThumbnailURL != "" {
			thumbName := fmt.Sprintf("%s_stream_%d_thumb.jpg", jobID, i)
			path, err := s.saveArtifact(ctx, ref.ThumbnailURL, thumbName)
			if err != nil {
				return files, err
			}
			files = append(files, path)
		}
	}
	return files, nil
}

// saveArtifact downloads one URL into the store and optionally archives it.
func (s *Scheduler) saveArtifact(ctx context.Context, url, name string) (string, error) {
	path := s.store.ArtifactPath(name)
	if err := s.fetcher.Fetch(ctx, url, path); err != nil {
		return "", fmt.Errorf("fetch %s: %w", name, err)
	}

	if s.opts.Archive {
		archiveURL, err := s.store.Archive(ctx, name)
		if err != nil {
			if errors.Is(err, storage.ErrS3NotConfigured) {
				s.logger.Debug("archive skipped, S3 not configured", slog.String("artifact", name))
			} else {
				// Archival is best-effort; the local artifact is the answer.
				s.logger.Warn("archive failed",
					slog.String("artifact", name),
					slog.String("error", err.Error()),
				)
			}
		} else {
			s.logger.Info("artifact archived",
				slog.String("artifact", name),
				slog.String("url", archiveURL),
			)
		}
	}

	return path, nil
}
