package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/hub"
	"github.com/avisser/pulseframe-api/internal/job"
	"github.com/avisser/pulseframe-api/internal/script"
	"github.com/avisser/pulseframe-api/internal/wait"
)

const (
	wsWriteTimeout = 5 * time.Second
	// triggerWaitTimeout bounds how long a trigger-submitted job is polled
	// before the channel reports a timeout instead of a completion.
	triggerWaitTimeout  = 60 * time.Second
	triggerPollInterval = 3 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary dev origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn wraps a websocket connection with serialized writes so the hub
// drain goroutine and the handler goroutine never interleave frames.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

// Send implements hub.Consumer.
func (c *wsConn) Send(ctx context.Context, ev hub.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

// Close implements hub.Consumer.
func (c *wsConn) Close() error {
	return c.conn.Close()
}

// VideoWS handles GET /ws/video: a receive-only frame feed. Each connection
// becomes a hub consumer; a slow or broken connection is dropped without
// disturbing the other viewers.
func (h *Handlers) VideoWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newWSConn(conn)
	if err := c.Send(r.Context(), hub.Event{
		Type: hub.EventConnected,
		Info: map[string]any{
			"session_state": string(h.session.State()),
			"turbo":         h.session.Turbo(),
		},
	}); err != nil {
		_ = conn.Close()
		return
	}

	handle := h.hub.Subscribe(c)
	h.logger.Info("viewer connected",
		slog.String("consumer_id", handle.ID()),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// The read loop exists to notice the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unsubscribe(handle)
	h.logger.Info("viewer disconnected", slog.String("consumer_id", handle.ID()))
}

// wsAction is an inbound text command on the duplex channel.
type wsAction struct {
	Action string `json:"action"`
}

// StreamWS handles GET /ws/stream: the duplex trigger channel. Binary
// messages are audio chunks that drive the trigger pipeline; text messages
// carry control actions. Events flow back on the same connection.
func (h *Handlers) StreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	c := newWSConn(conn)
	ctx := r.Context()

	if err := c.Send(ctx, hub.Event{
		Type: hub.EventConnected,
		Info: map[string]any{"session_state": string(h.session.State())},
	}); err != nil {
		return
	}

	h.logger.Info("trigger channel connected", slog.String("remote_addr", r.RemoteAddr))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("trigger channel read failed", slog.String("error", err.Error()))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			h.handleAudioChunk(ctx, c, data)
		case websocket.TextMessage:
			var action wsAction
			if err := json.Unmarshal(data, &action); err != nil {
				h.sendWSError(ctx, c, "invalid control message")
				continue
			}
			if action.Action == "ping" {
				_ = c.Send(ctx, hub.Event{Type: hub.EventPong})
			}
		}
	}
}

// handleAudioChunk runs one trigger: analyze the chunk, map it to a prompt,
// submit a generation job and report its outcome. A failure anywhere stops
// this trigger only; the channel stays open for the next chunk.
func (h *Handlers) handleAudioChunk(ctx context.Context, c *wsConn, chunk []byte) {
	outcome, err := h.pipeline.PromptFromAudio(ctx, chunk)
	if err != nil {
		h.sendWSError(ctx, c, "trigger failed: "+err.Error())
		return
	}

	_ = c.Send(ctx, hub.Event{Type: hub.EventAnalysis, Features: outcome.Features})
	_ = c.Send(ctx, hub.Event{
		Type:        hub.EventPrompt,
		Prompt:      outcome.Prompt,
		EnergyLevel: string(outcome.Level),
	})

	sc := script.New().AddStart(outcome.Prompt, 0).AddEnd(1000)
	jobID, err := h.svc.Submit(ctx, sc, gen.SubmitOptions{Name: "trigger"})
	if err != nil {
		h.sendWSError(ctx, c, "submit failed: "+err.Error())
		return
	}

	rec := job.NewRecord(jobID, sc)
	rec.Name = "trigger"
	h.registry.Save(rec)
	_ = c.Send(ctx, hub.Event{Type: hub.EventGenerationStarted, JobID: jobID})

	waited, err := h.waiter.WaitForTerminal(ctx, jobID, wait.Options{
		PollInterval: triggerPollInterval,
		Timeout:      triggerWaitTimeout,
	})
	if waited != nil {
		rec.Status = waited.Status
		rec.Results = waited.Results
		rec.Error = waited.Error
		h.registry.Save(rec)
	}
	if err != nil {
		h.sendWSError(ctx, c, "generation failed: "+err.Error())
		return
	}

	_ = c.Send(ctx, hub.Event{
		Type:    hub.EventGenerationComplete,
		JobID:   jobID,
		Status:  string(rec.Status),
		Results: rec.Results,
	})
}

func (h *Handlers) sendWSError(ctx context.Context, c *wsConn, msg string) {
	if err := c.Send(ctx, hub.Event{Type: hub.EventError, Message: msg}); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		h.logger.Debug("error event not delivered", slog.String("error", err.Error()))
	}
}
