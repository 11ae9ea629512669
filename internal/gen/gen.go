// Package gen defines the port for the external video-generation service.
// The orchestration core depends only on this contract; the wire protocol,
// transport and authentication of the real service live behind it.
package gen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avisser/pulseframe-api/internal/script"
)

// Status represents the lifecycle state of a generation job.
// The vocabulary is closed: status strings reported by the service that are
// not listed here are rejected by ParseStatus rather than treated as
// non-terminal forever.
type Status string

const (
	// StatusPending indicates the job is queued and waiting for a worker.
	StatusPending Status = "pending"
	// StatusRunning indicates the job is being generated.
	StatusRunning Status = "running"
	// StatusCompleted indicates the job finished and produced media.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job encountered an error during generation.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the job was cancelled by a caller.
	StatusCancelled Status = "cancelled"
	// StatusTimedOut indicates a wait on the job expired; the remote job may
	// still be running.
	StatusTimedOut Status = "timed_out"
)

// ErrUnknownStatus is returned when the service reports a status string
// outside the known vocabulary.
var ErrUnknownStatus = errors.New("gen: unknown job status")

// ParseStatus validates a raw status string from the service.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// IsTerminal returns true if no further transition leaves this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Orientation selects the aspect ratio of generated video.
type Orientation string

const (
	// OrientationPortrait generates 704x1280 video.
	OrientationPortrait Orientation = "portrait"
	// OrientationLandscape generates 1280x704 video.
	OrientationLandscape Orientation = "landscape"
)

// MediaRef points at the media produced by one stream of a job. The URLs are
// ephemeral (the service retains them for roughly an hour); callers that need
// the content must download promptly.
type MediaRef struct {
	// StreamID identifies the stream within the job.
	StreamID string `json:"stream_id"`
	// VideoURL is the download URL for the recorded video.
	VideoURL string `json:"video_url,omitempty"`
	// ThumbnailURL is the download URL for the thumbnail image.
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	// ExpiresAt is the approximate time after which the URLs stop working.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// PollStatusResult is the outcome of one status poll.
type PollStatusResult struct {
	// Status is the job status reported by the service.
	Status Status
	// Refs lists the media produced so far, one per stream. Refs may carry
	// only StreamID until FetchRecording resolves the URLs.
	Refs []MediaRef
	// ErrorMessage carries the service-side failure reason, if any.
	ErrorMessage string
}

// Frame is one raw video frame delivered during interactive streaming.
// Data holds packed RGB pixels, row-major, 3 bytes per pixel.
type Frame struct {
	Data        []byte
	Width       int
	Height      int
	TimestampMs int64
}

// FrameFunc receives frames from the service. It is invoked from a goroutine
// owned by the service connection and must not block.
type FrameFunc func(Frame)

// ErrorFunc receives connection errors. fatal means the connection is gone
// and the session must collapse.
type ErrorFunc func(err error, fatal bool)

// SubmitOptions carries optional parameters for job submission.
type SubmitOptions struct {
	// Orientation of the generated video. Defaults to portrait.
	Orientation Orientation
	// Name is an optional label for tracking.
	Name string
}

// Service is the handle the orchestration core holds on the generation
// service. All calls may fail with ErrAuth (fatal, surface immediately) or
// ErrConnection (potentially transient).
type Service interface {
	// Submit sends a scripted batch job and returns its job ID.
	Submit(ctx context.Context, sc *script.Script, opts SubmitOptions) (jobID string, err error)

	// PollStatus reports the current state of a submitted job.
	PollStatus(ctx context.Context, jobID string) (PollStatusResult, error)

	// Cancel requests cancellation of a pending or running job.
	Cancel(ctx context.Context, jobID string) error

	// Connect opens the interactive streaming connection. onFrame and
	// onError are invoked from service-owned goroutines.
	Connect(ctx context.Context, onFrame FrameFunc, onError ErrorFunc) error

	// StartStream begins a new interactive stream. image is an optional
	// base64-encoded image for image-to-video.
	StartStream(ctx context.Context, prompt string, orientation Orientation, image string) (streamID string, err error)

	// Interact sends a new instruction to the active stream. The service
	// models one edit at a time.
	Interact(ctx context.Context, prompt string) error

	// EndStream ends the active interactive stream.
	EndStream(ctx context.Context) error

	// Disconnect tears down the streaming connection.
	Disconnect(ctx context.Context) error

	// FetchRecording resolves the media URLs for a completed stream.
	FetchRecording(ctx context.Context, streamID string) (MediaRef, error)
}
