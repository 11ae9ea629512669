// Package wait implements the completion-polling protocol shared by the
// streaming and batch paths: poll a job at a fixed interval until it reaches
// a terminal status or an optional timeout expires.
package wait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/job"
)

// Static errors for wait outcomes.
var (
	// ErrTimeout is returned when the wait deadline expires before the job
	// reaches a terminal status. The remote job is left running; cancelling
	// it is a caller decision.
	ErrTimeout = errors.New("wait: timed out")
	// ErrEmptyResult is returned when the service reports completion with no
	// media refs. Completion without output is not a valid success.
	ErrEmptyResult = errors.New("wait: completed with no media")
)

// Poller is the narrow view of the generation service the waiter needs.
type Poller interface {
	PollStatus(ctx context.Context, jobID string) (gen.PollStatusResult, error)
}

// Options configures one wait.
type Options struct {
	// PollInterval is the fixed spacing between polls. The service exposes
	// no rate-limit signal, so there is no backoff. Defaults to 5s.
	PollInterval time.Duration
	// Timeout bounds the whole wait. Zero means wait indefinitely.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	return o
}

// Waiter polls jobs to completion. It holds no shared state beyond the
// service handle; a single Waiter is safe for concurrent use.
type Waiter struct {
	svc    Poller
	logger *slog.Logger
}

// New creates a Waiter.
func New(svc Poller, logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{svc: svc, logger: logger}
}

// WaitForTerminal polls jobID until its status is terminal or the timeout
// expires, and returns a record reflecting the outcome.
//
// The first poll happens immediately; subsequent polls are spaced by
// PollInterval. On completion with media the record carries every ref the
// service reported. Completion with zero refs returns the record marked
// failed together with ErrEmptyResult. Expiry returns the record marked
// timed out together with ErrTimeout; the returned status is never left as
// pending. Service-side terminal failures (failed, cancelled) return the
// record with a nil error: the terminal state itself is the answer.
func (w *Waiter) WaitForTerminal(ctx context.Context, jobID string, opts Options) (*job.Record, error) {
	opts = opts.withDefaults()

	rec := job.NewRecord(jobID, nil)

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		res, err := w.svc.PollStatus(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("wait: poll %s: %w", jobID, err)
		}
		polls++

		if err := rec.SetStatus(res.Status); err != nil {
			// Terminal records never change; reaching this would mean the
			// service reported a transition out of a terminal state.
			return rec, fmt.Errorf("wait: job %s: %w", jobID, err)
		}

		if res.Status.IsTerminal() {
			return w.finish(rec, res, polls)
		}

		select {
		case <-ctx.Done():
			markTimedOut(rec, "wait cancelled")
			return rec, fmt.Errorf("wait: job %s: %w", jobID, ctx.Err())
		case <-deadline:
			markTimedOut(rec, fmt.Sprintf("no terminal status after %s", opts.Timeout))
			w.logger.Warn("wait timed out",
				slog.String("job_id", jobID),
				slog.Duration("timeout", opts.Timeout),
				slog.Int("polls", polls),
			)
			return rec, fmt.Errorf("wait: job %s after %s: %w", jobID, opts.Timeout, ErrTimeout)
		case <-ticker.C:
		}
	}
}

// finish fills the record from the terminal poll result.
func (w *Waiter) finish(rec *job.Record, res gen.PollStatusResult, polls int) (*job.Record, error) {
	switch res.Status {
	case gen.StatusCompleted:
		if len(res.Refs) == 0 {
			rec.Status = gen.StatusFailed
			rec.Error = "service reported completion with no media"
			return rec, fmt.Errorf("%w: job %s", ErrEmptyResult, rec.ID)
		}
		rec.Results = res.Refs
	case gen.StatusFailed, gen.StatusCancelled, gen.StatusTimedOut:
		rec.Error = res.ErrorMessage
	}

	w.logger.Info("job reached terminal status",
		slog.String("job_id", rec.ID),
		slog.String("status", string(rec.Status)),
		slog.Int("polls", polls),
	)
	return rec, nil
}

func markTimedOut(rec *job.Record, reason string) {
	if !rec.Status.IsTerminal() {
		rec.Status = gen.StatusTimedOut
		rec.Error = reason
	}
}
