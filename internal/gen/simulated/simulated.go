// Package simulated provides an in-process generation service for local
// development and tests. Jobs advance through the normal lifecycle on a
// timer, streams emit synthetic frames, and recordings are served from a
// loopback HTTP listener so the download path works end to end.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/job/id"
	"github.com/avisser/pulseframe-api/internal/script"
)

// ErrScriptRequired is returned when Submit is called with a nil script.
var ErrScriptRequired = errors.New("simulated: script is required")

// Options configures the simulator's timing.
type Options struct {
	// PendingFor is how long a job stays pending after submission.
	PendingFor time.Duration
	// RunningFor is how long a job runs before completing.
	RunningFor time.Duration
	// FrameInterval is the spacing between synthetic stream frames.
	FrameInterval time.Duration
	// FrameWidth and FrameHeight size the synthetic frames.
	FrameWidth  int
	FrameHeight int
}

func (o Options) withDefaults() Options {
	if o.PendingFor <= 0 {
		o.PendingFor = 500 * time.Millisecond
	}
	if o.RunningFor <= 0 {
		o.RunningFor = 3 * time.Second
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = 200 * time.Millisecond
	}
	if o.FrameWidth <= 0 {
		o.FrameWidth = 88
	}
	if o.FrameHeight <= 0 {
		o.FrameHeight = 160
	}
	return o
}

type simJob struct {
	submittedAt time.Time
	streams     int
	cancelled   bool
	cancelledAt time.Time
}

// Service simulates the generation backend. It satisfies gen.Service.
type Service struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	jobs      map[string]*simJob
	connected bool
	streamID  string
	onFrame   gen.FrameFunc
	onError   gen.ErrorFunc
	stopFrame chan struct{}

	media *mediaServer
}

var _ gen.Service = (*Service)(nil)

// New creates a simulator and starts its loopback media listener.
func New(opts Options, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	media, err := newMediaServer()
	if err != nil {
		return nil, fmt.Errorf("simulated: start media listener: %w", err)
	}

	s := &Service{
		opts:   opts.withDefaults(),
		logger: logger,
		jobs:   make(map[string]*simJob),
		media:  media,
	}
	logger.Info("simulated generation service ready",
		slog.String("media_addr", media.addr),
	)
	return s, nil
}

// Close shuts down the media listener.
func (s *Service) Close() error {
	return s.media.close()
}

// Submit accepts a scripted job. The job advances pending -> running ->
// completed on the configured timings; state is derived from elapsed time at
// poll, so no goroutine runs per job.
func (s *Service) Submit(_ context.Context, sc *script.Script, _ gen.SubmitOptions) (string, error) {
	if sc == nil {
		return "", ErrScriptRequired
	}
	if err := sc.Validate(); err != nil {
		return "", fmt.Errorf("simulated: %w", err)
	}

	jobID := id.Generate()

	s.mu.Lock()
	s.jobs[jobID] = &simJob{submittedAt: time.Now(), streams: 1}
	s.mu.Unlock()

	s.logger.Debug("simulated job submitted", slog.String("job_id", jobID))
	return jobID, nil
}

// PollStatus reports the time-derived state of a job.
func (s *Service) PollStatus(_ context.Context, jobID string) (gen.PollStatusResult, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return gen.PollStatusResult{}, fmt.Errorf("simulated: job %s: %w", jobID, gen.ErrJobNotFound)
	}

	if j.cancelled {
		return gen.PollStatusResult{Status: gen.StatusCancelled, ErrorMessage: "cancelled by caller"}, nil
	}

	elapsed := time.Since(j.submittedAt)
	switch {
	case elapsed < s.opts.PendingFor:
		return gen.PollStatusResult{Status: gen.StatusPending}, nil
	case elapsed < s.opts.PendingFor+s.opts.RunningFor:
		return gen.PollStatusResult{Status: gen.StatusRunning}, nil
	default:
		refs := make([]gen.MediaRef, 0, j.streams)
		for i := 0; i < j.streams; i++ {
			refs = append(refs, s.mediaRef(jobID, i))
		}
		return gen.PollStatusResult{Status: gen.StatusCompleted, Refs: refs}, nil
	}
}

// Cancel marks a non-terminal job cancelled.
func (s *Service) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("simulated: job %s: %w", jobID, gen.ErrJobNotFound)
	}
	if !j.cancelled && time.Since(j.submittedAt) < s.opts.PendingFor+s.opts.RunningFor {
		j.cancelled = true
		j.cancelledAt = time.Now()
	}
	return nil
}

// Connect registers the frame and error callbacks.
func (s *Service) Connect(_ context.Context, onFrame gen.FrameFunc, onError gen.ErrorFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true
	s.onFrame = onFrame
	s.onError = onError
	return nil
}

// StartStream begins emitting synthetic frames.
func (s *Service) StartStream(_ context.Context, prompt string, _ gen.Orientation, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return "", gen.ErrNotConnected
	}
	if s.stopFrame != nil {
		close(s.stopFrame)
	}

	s.streamID = uuid.NewString()
	s.stopFrame = make(chan struct{})
	go s.emitFrames(s.stopFrame, s.onFrame)

	s.logger.Debug("simulated stream started",
		slog.String("stream_id", s.streamID),
		slog.String("prompt", truncate(prompt, 60)),
	)
	return s.streamID, nil
}

// Interact accepts a prompt for the active stream.
func (s *Service) Interact(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.streamID == "" {
		return gen.ErrNotConnected
	}
	return nil
}

// EndStream stops frame emission.
func (s *Service) EndStream(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopFrame != nil {
		close(s.stopFrame)
		s.stopFrame = nil
	}
	s.streamID = ""
	return nil
}

// Disconnect tears the simulated connection down.
func (s *Service) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopFrame != nil {
		close(s.stopFrame)
		s.stopFrame = nil
	}
	s.streamID = ""
	s.connected = false
	s.onFrame = nil
	s.onError = nil
	return nil
}

// FetchRecording returns downloadable URLs for a stream.
func (s *Service) FetchRecording(_ context.Context, streamID string) (gen.MediaRef, error) {
	return s.mediaRefForStream(streamID), nil
}

func (s *Service) mediaRef(jobID string, stream int) gen.MediaRef {
	streamID := fmt.Sprintf("%s-s%d", jobID, stream)
	return s.mediaRefForStream(streamID)
}

func (s *Service) mediaRefForStream(streamID string) gen.MediaRef {
	return gen.MediaRef{
		StreamID:     streamID,
		VideoURL:     s.media.url(streamID + ".mp4"),
		ThumbnailURL: s.media.url(streamID + ".jpg"),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// emitFrames pushes synthetic frames until stop closes. The colour cycles so
// a connected viewer can see motion.
func (s *Service) emitFrames(stop <-chan struct{}, onFrame gen.FrameFunc) {
	if onFrame == nil {
		return
	}

	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()

	start := time.Now()
	n := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			onFrame(s.makeFrame(n, time.Since(start).Milliseconds()))
			n++
		}
	}
}

func (s *Service) makeFrame(n int, tsMs int64) gen.Frame {
	w, h := s.opts.FrameWidth, s.opts.FrameHeight
	data := make([]byte, w*h*3)
	r := byte((n * 11) % 256)
	g := byte((n * 7) % 256)
	b := byte((n * 3) % 256)
	for i := 0; i < len(data); i += 3 {
		data[i] = r
		data[i+1] = g
		data[i+2] = b
	}
	return gen.Frame{Data: data, Width: w, Height: h, TimestampMs: tsMs}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// mediaServer serves synthetic recordings over loopback HTTP.
type mediaServer struct {
	addr     string
	listener net.Listener
	srv      *http.Server
}

func newMediaServer() (*mediaServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	m := &mediaServer{
		addr:     ln.Addr().String(),
		listener: ln,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /media/{name}", m.handleMedia)
	m.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("simulated media listener stopped", slog.String("error", err.Error()))
		}
	}()

	return m, nil
}

func (m *mediaServer) url(name string) string {
	return fmt.Sprintf("http://%s/media/%s", m.addr, name)
}

func (m *mediaServer) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}

// handleMedia serves deterministic synthetic bytes for a recording name.
// Video names get an MP4-flavoured header, thumbnails a JPEG one, so casual
// file inspection looks right.
func (m *mediaServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var header []byte
	var contentType string
	switch {
	case strings.HasSuffix(name, ".mp4"):
		header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}
		contentType = "video/mp4"
	case strings.HasSuffix(name, ".jpg"):
		header = []byte{0xFF, 0xD8, 0xFF, 0xE0}
		contentType = "image/jpeg"
	default:
		http.NotFound(w, r)
		return
	}

	body := append(header, []byte(name)...)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
