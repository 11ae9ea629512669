package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/avisser/pulseframe-api/internal/batch"
	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/hub"
	"github.com/avisser/pulseframe-api/internal/job"
	"github.com/avisser/pulseframe-api/internal/script"
	"github.com/avisser/pulseframe-api/internal/session"
	"github.com/avisser/pulseframe-api/internal/trigger"
	"github.com/avisser/pulseframe-api/internal/wait"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	session       *session.Session
	hub           *hub.Hub
	svc           gen.Service
	registry      *job.Registry
	scheduler     *batch.Scheduler
	pipeline      *trigger.Pipeline
	waiter        *wait.Waiter
	validator     *validator.Validate
	logger        *slog.Logger
	maxConcurrent int
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxConcurrent sets the default batch concurrency used when a request
// does not specify one.
func WithMaxConcurrent(n int) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxConcurrent = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	sess *session.Session,
	broadcast *hub.Hub,
	svc gen.Service,
	registry *job.Registry,
	scheduler *batch.Scheduler,
	pipeline *trigger.Pipeline,
	waiter *wait.Waiter,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		session:       sess,
		hub:           broadcast,
		svc:           svc,
		registry:      registry,
		scheduler:     scheduler,
		pipeline:      pipeline,
		waiter:        waiter,
		validator:     validator.New(),
		logger:        logger,
		maxConcurrent: 3,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	received, dropped := h.session.FrameStats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		SessionState:   string(h.session.State()),
		StreamID:       h.session.StreamID(),
		Viewers:        h.hub.Count(),
		Turbo:          h.session.Turbo(),
		FramesReceived: received,
		FramesDropped:  dropped,
	})
}

// Generate handles POST /generate requests: a manual prompt that starts a
// stream when none is active and redirects the running one otherwise.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if h.session.State() == session.StateStreaming {
		if err := h.session.Interact(r.Context(), req.Prompt); err != nil {
			h.writeSessionError(w, "interact", err)
			return
		}
		writeJSON(w, http.StatusOK, GenerateResponse{
			StreamID: h.session.StreamID(),
			Action:   "interacted",
		})
		return
	}

	if err := h.session.Connect(r.Context()); err != nil {
		h.writeSessionError(w, "connect", err)
		return
	}
	streamID, err := h.session.StartStream(r.Context(), req.Prompt, parseOrientation(req.Orientation), req.ImageBase64)
	if err != nil {
		h.writeSessionError(w, "start stream", err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{StreamID: streamID, Action: "started"})
}

// StreamStart handles POST /stream/start requests.
func (h *Handlers) StreamStart(w http.ResponseWriter, r *http.Request) {
	var req StreamStartRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.session.Connect(r.Context()); err != nil {
		h.writeSessionError(w, "connect", err)
		return
	}

	streamID, err := h.session.StartStream(r.Context(), req.Prompt, parseOrientation(req.Orientation), req.ImageBase64)
	if err != nil {
		h.writeSessionError(w, "start stream", err)
		return
	}

	writeJSON(w, http.StatusOK, StreamStartResponse{
		StreamID: streamID,
		State:    string(h.session.State()),
	})
}

// StreamInteract handles POST /stream/interact requests.
func (h *Handlers) StreamInteract(w http.ResponseWriter, r *http.Request) {
	var req InteractRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.session.Interact(r.Context(), req.Prompt); err != nil {
		h.writeSessionError(w, "interact", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StreamEnd handles POST /stream/end requests. Ending when no stream is
// active succeeds without doing anything.
func (h *Handlers) StreamEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.session.EndStream(r.Context()); err != nil {
		h.writeSessionError(w, "end stream", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  string(h.session.State()),
	})
}

// Turbo handles POST /turbo requests.
func (h *Handlers) Turbo(w http.ResponseWriter, r *http.Request) {
	var req TurboRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	h.session.SetTurbo(*req.Enabled)
	h.logger.Info("turbo mode set", slog.Bool("enabled", *req.Enabled))
	writeJSON(w, http.StatusOK, TurboResponse{Enabled: h.session.Turbo()})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	records := h.registry.List()
	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(records))}
	for _, rec := range records {
		resp.Jobs = append(resp.Jobs, toJobResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	rec, err := h.registry.Find(jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(rec))
}

// CancelJob handles POST /jobs/{id}/cancel requests. Cancellation is always
// caller-driven; a job that already finished cannot be cancelled.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	rec, err := h.registry.Find(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	if rec.IsTerminal() {
		writeError(w, http.StatusConflict, "job already finished", "JOB_ALREADY_TERMINAL")
		return
	}

	if err := h.svc.Cancel(r.Context(), jobID); err != nil {
		h.logger.Error("cancel failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "cancel failed", "CANCEL_FAILED")
		return
	}

	if err := rec.SetStatus(gen.StatusCancelled); err == nil {
		h.registry.Save(rec)
	}

	h.logger.Info("job cancelled", slog.String("job_id", jobID))
	writeJSON(w, http.StatusOK, toJobResponse(rec))
}

// Batch handles POST /batch requests. The batch runs synchronously; the
// response carries the per-item outcomes in input order.
func (h *Handlers) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = h.maxConcurrent
	}

	scripts := make([]*script.Script, len(req.Scripts))
	for i := range req.Scripts {
		scripts[i] = &req.Scripts[i]
	}

	h.logger.Info("batch accepted",
		slog.Int("items", len(scripts)),
		slog.Int("max_concurrent", maxConcurrent),
	)

	results := h.scheduler.ProcessBatch(r.Context(), scripts, maxConcurrent)
	writeJSON(w, http.StatusOK, BatchResponse{Results: results})
}

// decodeAndValidate reads the JSON body into dst and validates it, writing
// the error response itself when either step fails.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeSessionError maps session and service errors onto HTTP statuses.
func (h *Handlers) writeSessionError(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("session operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)

	switch {
	case errors.Is(err, session.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_SESSION_STATE")
	case errors.Is(err, gen.ErrAuth):
		writeError(w, http.StatusBadGateway, "generation service rejected credentials", "UPSTREAM_AUTH_FAILED")
	case errors.Is(err, gen.ErrConnection), errors.Is(err, gen.ErrNotConnected):
		writeError(w, http.StatusBadGateway, "generation service unavailable", "UPSTREAM_UNAVAILABLE")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

func parseOrientation(s string) gen.Orientation {
	if s == string(gen.OrientationLandscape) {
		return gen.OrientationLandscape
	}
	return gen.OrientationPortrait
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
