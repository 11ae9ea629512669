package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Consumer is one subscriber's sink. Send delivers a single event; the
// context bounds how long the delivery may take. A Send error means the
// consumer is gone and it will be unsubscribed.
type Consumer interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Handle identifies one subscription.
type Handle struct {
	id uuid.UUID
}

// ID returns the subscription identifier.
func (h Handle) ID() string { return h.id.String() }

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize sets the per-consumer queue capacity.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithSendTimeout bounds each per-consumer send.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// Hub owns the set of connected consumers and delivers each published event
// to all of them.
//
// Delivery policy: each consumer has its own bounded queue drained by its
// own writer goroutine. Publish never blocks; when a consumer's queue is
// full the oldest queued event is dropped to make room, so a slow consumer
// loses frames rather than stalling fan-out to the others. For any two
// publishes A before B, a consumer that receives both receives A first.
type Hub struct {
	mu        sync.RWMutex
	consumers map[uuid.UUID]*subscription

	queueSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
}

type subscription struct {
	id    uuid.UUID
	sink  Consumer
	queue chan Event
	done  chan struct{}
	once  sync.Once
}

// stop ends the subscription's writer exactly once. The queue itself is
// never closed so a concurrent Publish can keep enqueueing harmlessly.
func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// New creates a Hub.
func New(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		consumers:   make(map[uuid.UUID]*subscription),
		queueSize:   16,
		sendTimeout: 5 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a consumer and starts its writer. The returned handle
// is used to unsubscribe.
func (h *Hub) Subscribe(c Consumer) Handle {
	sub := &subscription{
		id:    uuid.New(),
		sink:  c,
		queue: make(chan Event, h.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	h.consumers[sub.id] = sub
	n := len(h.consumers)
	h.mu.Unlock()

	go h.drain(sub)

	h.logger.Info("consumer subscribed",
		slog.String("consumer_id", sub.id.String()),
		slog.Int("total", n),
	)
	return Handle{id: sub.id}
}

// Unsubscribe removes a consumer and closes its sink. Safe to call
// concurrently with Publish and safe to call twice.
func (h *Hub) Unsubscribe(handle Handle) {
	h.remove(handle.id, "unsubscribed")
}

// Publish enqueues the event for every currently subscribed consumer.
// With zero consumers it is a no-op. A failure on one consumer never
// affects delivery to the others.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.consumers))
	for _, sub := range h.consumers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- ev:
		default:
			// Queue full: drop the oldest event, then retry once. If the
			// writer drained the queue in between, the retry succeeds.
			select {
			case <-sub.queue:
			default:
			}
			select {
			case sub.queue <- ev:
			default:
			}
		}
	}
}

// Count reports the number of subscribed consumers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.consumers)
}

// Close unsubscribes every consumer.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.consumers))
	for id, sub := range h.consumers {
		subs = append(subs, sub)
		delete(h.consumers, id)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
		_ = sub.sink.Close()
	}
}

// drain is the per-consumer writer. It runs until the subscription is
// stopped or a send fails, in which case the consumer is removed.
func (h *Hub) drain(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case ev := <-sub.queue:
			ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
			err := sub.sink.Send(ctx, ev)
			cancel()
			if err != nil {
				h.logger.Warn("consumer send failed, removing",
					slog.String("consumer_id", sub.id.String()),
					slog.String("error", err.Error()),
				)
				h.remove(sub.id, "send failed")
				return
			}
		}
	}
}

// remove drops the consumer from the set and closes it. The queue is closed
// via sync.Once so writer and caller may race safely.
func (h *Hub) remove(id uuid.UUID, reason string) {
	h.mu.Lock()
	sub, ok := h.consumers[id]
	if ok {
		delete(h.consumers, id)
	}
	n := len(h.consumers)
	h.mu.Unlock()

	if !ok {
		return
	}

	sub.stop()
	_ = sub.sink.Close()
	h.logger.Info("consumer removed",
		slog.String("consumer_id", id.String()),
		slog.String("reason", reason),
		slog.Int("total", n),
	)
}
