// Package session owns the single active interactive stream. It bridges the
// service's synchronous frame callback into the asynchronous broadcast world
// through a bounded hand-off queue, and serializes every state transition.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/hub"
	"github.com/avisser/pulseframe-api/internal/media"
)

// State is the session lifecycle state.
type State string

// Session states. The only non-linear edge is the fatal-error collapse from
// any state back to idle.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateStreaming  State = "streaming"
	StateEnding     State = "ending"
)

// ErrInvalidState is returned when an operation is called in a state that
// does not allow it. It indicates a protocol violation by the caller, not a
// transient condition to retry.
var ErrInvalidState = errors.New("session: invalid state")

// Option configures a Session.
type Option func(*Session)

// WithFrameQueueSize sets the capacity of the callback hand-off queue.
func WithFrameQueueSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithTurbo sets the initial turbo-mode state.
func WithTurbo(enabled bool) Option {
	return func(s *Session) {
		s.turbo.Store(enabled)
	}
}

// Session is the single-active-stream state machine. One instance exists per
// process, mirroring the service's single-stream-per-connection contract.
// All transitions are serialized by the session's mutex.
type Session struct {
	svc     gen.Service
	hub     *hub.Hub
	encoder media.Encoder
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	streamID string

	turbo     atomic.Bool
	queueSize int
	frames    chan gen.Frame
	done      chan struct{}
	closeOnce sync.Once

	framesIn      atomic.Int64
	framesDropped atomic.Int64
}

// New creates an idle session and starts its frame pump. The pump runs until
// Shutdown.
func New(svc gen.Service, h *hub.Hub, enc media.Encoder, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		svc:       svc,
		hub:       h,
		encoder:   enc,
		logger:    logger,
		state:     StateIdle,
		queueSize: 8,
		done:      make(chan struct{}),
	}
	s.turbo.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	s.frames = make(chan gen.Frame, s.queueSize)

	go s.pump()
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StreamID returns the active stream id, or "" when not streaming.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// SetTurbo toggles the downscale/quality trade-off applied to outgoing
// frames. Takes effect on the next frame.
func (s *Session) SetTurbo(enabled bool) {
	s.turbo.Store(enabled)
	s.logger.Info("turbo mode set", slog.Bool("enabled", enabled))
}

// Turbo reports whether turbo mode is on.
func (s *Session) Turbo() bool {
	return s.turbo.Load()
}

// Connect opens the streaming connection. Calling it while already connected
// (or later) is a no-op: connecting twice never opens two connections.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		s.logger.Info("already connected, skipping", slog.String("state", string(s.state)))
		return nil
	}

	s.state = StateConnecting
	if err := s.svc.Connect(ctx, s.handleFrame, s.handleServiceError); err != nil {
		s.state = StateIdle
		return fmt.Errorf("session: connect: %w", err)
	}
	s.state = StateConnected
	s.logger.Info("connected to generation service")
	return nil
}

// StartStream begins an interactive stream. Valid only when connected.
func (s *Session) StartStream(ctx context.Context, prompt string, orientation gen.Orientation, image string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return "", fmt.Errorf("%w: start stream from %s", ErrInvalidState, s.state)
	}

	streamID, err := s.svc.StartStream(ctx, prompt, orientation, image)
	if err != nil {
		return "", fmt.Errorf("session: start stream: %w", err)
	}

	s.streamID = streamID
	s.state = StateStreaming
	s.logger.Info("stream started",
		slog.String("stream_id", streamID),
		slog.String("orientation", string(orientation)),
	)
	return streamID, nil
}

// Interact sends a new instruction to the active stream. Valid only while
// streaming. Holding the session mutex across the call keeps interacts
// serialized in call order: the service models one edit at a time.
func (s *Session) Interact(ctx context.Context, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return fmt.Errorf("%w: interact from %s", ErrInvalidState, s.state)
	}

	if err := s.svc.Interact(ctx, prompt); err != nil {
		return fmt.Errorf("session: interact: %w", err)
	}
	s.logger.Info("interaction sent", slog.String("stream_id", s.streamID))
	return nil
}

// EndStream ends the active stream and tears down the connection, returning
// the session to idle. Calling it with no active stream is a no-op success,
// which makes the common "end was already called" race harmless.
func (s *Session) EndStream(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		s.logger.Info("no active stream to end", slog.String("state", string(s.state)))
		return nil
	}

	streamID := s.streamID
	s.state = StateEnding

	endErr := s.svc.EndStream(ctx)
	if endErr != nil {
		s.logger.Error("end stream failed",
			slog.String("stream_id", streamID),
			slog.String("error", endErr.Error()),
		)
	}
	if err := s.svc.Disconnect(ctx); err != nil {
		s.logger.Error("disconnect failed", slog.String("error", err.Error()))
	}

	s.streamID = ""
	s.state = StateIdle
	s.logger.Info("stream ended", slog.String("stream_id", streamID))

	if endErr != nil {
		return fmt.Errorf("session: end stream: %w", endErr)
	}
	return nil
}

// Shutdown stops the frame pump and drops the connection if one is open.
func (s *Session) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		_ = s.svc.Disconnect(ctx)
		s.streamID = ""
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
}

// FrameStats reports frames received and frames dropped at the hand-off.
func (s *Session) FrameStats() (received, dropped int64) {
	return s.framesIn.Load(), s.framesDropped.Load()
}

// handleFrame is invoked synchronously from the service's frame-producing
// goroutine. Its only job is the non-blocking hand-off; encoding and
// publishing happen on the pump. Blocking here would stall the service.
func (s *Session) handleFrame(f gen.Frame) {
	s.framesIn.Add(1)
	select {
	case s.frames <- f:
	default:
		s.framesDropped.Add(1)
	}
}

// handleServiceError is invoked from the service connection. A fatal error
// collapses the session to idle; the collapse is surfaced on the broadcast
// channel so session initiators observe it.
func (s *Session) handleServiceError(err error, fatal bool) {
	if !fatal {
		s.logger.Warn("recoverable service error", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	prev := s.state
	s.streamID = ""
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Error("fatal service error, session reset",
		slog.String("error", err.Error()),
		slog.String("previous_state", string(prev)),
	)
	s.hub.Publish(hub.Event{Type: hub.EventError, Message: err.Error()})
}

// pump drains the hand-off queue, applies the frame transform and publishes
// to the hub. It is the only goroutine that touches the encoder.
func (s *Session) pump() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.frames:
			data, err := s.encoder.Encode(f, s.turbo.Load())
			if err != nil {
				s.logger.Warn("frame encode failed", slog.String("error", err.Error()))
				continue
			}
			s.hub.Publish(hub.Event{Type: hub.EventFrame, Data: data})
		}
	}
}
