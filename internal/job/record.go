// Package job provides the record type tracking one submitted generation job
// and an in-memory registry of tracked jobs. A record is owned by the waiter
// or scheduler task that created it until it reaches a terminal status; after
// that it is a read-only result.
package job

import (
	"errors"
	"time"

	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/script"
)

// ErrTerminalRecord is returned when a status change is attempted on a
// record that already reached a terminal status.
var ErrTerminalRecord = errors.New("job: record is terminal")

// Record tracks one submitted job: its identity, script, last-known status
// and, once completed, the media it produced.
type Record struct {
	// ID is the job identifier assigned by the service.
	ID string `json:"id"`
	// Name is an optional tracking label.
	Name string `json:"name,omitempty"`
	// Script is the action sequence this job runs.
	Script *script.Script `json:"script,omitempty"`
	// Status is the last-known job status.
	Status gen.Status `json:"status"`
	// SubmittedAt is when the job was submitted to the service.
	SubmittedAt time.Time `json:"submitted_at"`
	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`
	// Results lists the media produced, in stream order. Only set once the
	// status is completed.
	Results []gen.MediaRef `json:"results,omitempty"`
	// Error carries the failure reason for failed or timed-out jobs.
	Error string `json:"error,omitempty"`
}

// NewRecord creates a pending record for a freshly submitted job.
func NewRecord(jobID string, sc *script.Script) *Record {
	now := time.Now()
	return &Record{
		ID:          jobID,
		Script:      sc,
		Status:      gen.StatusPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// SetStatus updates the last-known status. Terminal records never change
// again; attempting to do so returns ErrTerminalRecord.
func (r *Record) SetStatus(s gen.Status) error {
	if r.Status.IsTerminal() {
		return ErrTerminalRecord
	}
	r.Status = s
	r.UpdatedAt = time.Now()
	return nil
}

// Fail marks the record failed with the given reason.
func (r *Record) Fail(reason string) error {
	if err := r.SetStatus(gen.StatusFailed); err != nil {
		return err
	}
	r.Error = reason
	return nil
}

// Complete marks the record completed with the media it produced.
func (r *Record) Complete(refs []gen.MediaRef) error {
	if err := r.SetStatus(gen.StatusCompleted); err != nil {
		return err
	}
	r.Results = refs
	return nil
}

// IsTerminal reports whether the record reached a terminal status.
func (r *Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Clone returns a deep copy safe to hand across ownership boundaries.
func (r *Record) Clone() *Record {
	refs := make([]gen.MediaRef, len(r.Results))
	copy(refs, r.Results)

	clone := *r
	clone.Results = refs
	return &clone
}
