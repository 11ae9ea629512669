// Package server provides the HTTP and WebSocket surface for the PulseFrame
// API. It includes handlers, middleware, routes, and DTOs separated from
// domain types.
package server

import (
	"time"

	"github.com/avisser/pulseframe-api/internal/batch"
	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/job"
	"github.com/avisser/pulseframe-api/internal/script"
)

// GenerateRequest is the HTTP request body for a manual prompt.
type GenerateRequest struct {
	// Prompt is the scene description to generate.
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
	// Orientation is "portrait" or "landscape". Defaults to portrait.
	Orientation string `json:"orientation" validate:"omitempty,oneof=portrait landscape"`
	// ImageBase64 is an optional base64-encoded source image.
	ImageBase64 string `json:"image_base64" validate:"omitempty,base64"`
}

// GenerateResponse is returned after a manual prompt was applied.
type GenerateResponse struct {
	// StreamID identifies the interactive stream now showing the prompt.
	StreamID string `json:"stream_id"`
	// Action is "started" when a new stream began, "interacted" when the
	// prompt was applied to the already-running stream.
	Action string `json:"action"`
}

// StreamStartRequest is the HTTP request body for starting a stream.
type StreamStartRequest struct {
	Prompt      string `json:"prompt" validate:"required,min=1,max=2000"`
	Orientation string `json:"orientation" validate:"omitempty,oneof=portrait landscape"`
	ImageBase64 string `json:"image_base64" validate:"omitempty,base64"`
}

// StreamStartResponse is returned after a stream started.
type StreamStartResponse struct {
	StreamID string `json:"stream_id"`
	State    string `json:"state"`
}

// InteractRequest is the HTTP request body for redirecting the active stream.
type InteractRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
}

// TurboRequest toggles the reduced-bandwidth frame encoding.
type TurboRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// TurboResponse reports the resulting turbo state.
type TurboResponse struct {
	Enabled bool `json:"enabled"`
}

// BatchRequest is the HTTP request body for running a batch of scripts.
type BatchRequest struct {
	// Scripts holds one action list per batch item.
	Scripts []script.Script `json:"scripts" validate:"required,min=1,max=50"`
	// MaxConcurrent bounds how many items run at once. Defaults to the
	// server's configured limit.
	MaxConcurrent int `json:"max_concurrent" validate:"omitempty,min=1,max=32"`
}

// BatchResponse carries the per-item outcomes in input order.
type BatchResponse struct {
	Results []batch.Result `json:"results"`
}

// JobResponse is the HTTP representation of a tracked job.
type JobResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Status      string         `json:"status"`
	SubmittedAt time.Time      `json:"submitted_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Streams     []gen.MediaRef `json:"streams,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func toJobResponse(rec *job.Record) JobResponse {
	return JobResponse{
		ID:          rec.ID,
		Name:        rec.Name,
		Status:      string(rec.Status),
		SubmittedAt: rec.SubmittedAt,
		UpdatedAt:   rec.UpdatedAt,
		Streams:     rec.Results,
		Error:       rec.Error,
	}
}

// JobListResponse is the HTTP response for listing tracked jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// SessionState is the current interactive session state.
	SessionState string `json:"session_state"`
	// StreamID is the active stream, if one is running.
	StreamID string `json:"stream_id,omitempty"`
	// Viewers is the number of connected frame consumers.
	Viewers int `json:"viewers"`
	// Turbo reports the frame encoding mode.
	Turbo bool `json:"turbo"`
	// FramesReceived and FramesDropped count frames handed off by the
	// service and frames shed by the pump since startup.
	FramesReceived int64 `json:"frames_received"`
	FramesDropped  int64 `json:"frames_dropped"`
}
