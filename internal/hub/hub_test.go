package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConsumer collects every event it receives.
type recordingConsumer struct {
	mu     sync.Mutex
	events []Event
	closed bool
	// sendErr makes every Send fail.
	sendErr error
	// slow blocks each Send for the given duration.
	slow time.Duration
}

func (c *recordingConsumer) Send(_ context.Context, ev Event) error {
	if c.slow > 0 {
		time.Sleep(c.slow)
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *recordingConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConsumer) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *recordingConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHub_Publish_NoConsumers(t *testing.T) {
	h := New(nil)

	// Publishing into an empty hub must not panic or block.
	h.Publish(Event{Type: EventFrame, Data: "abc"})
	assert.Equal(t, 0, h.Count())
}

func TestHub_Publish_AllConsumersReceive(t *testing.T) {
	h := New(nil)
	defer h.Close()

	consumers := make([]*recordingConsumer, 3)
	for i := range consumers {
		consumers[i] = &recordingConsumer{}
		h.Subscribe(consumers[i])
	}

	h.Publish(Event{Type: EventFrame, Data: "frame-1"})

	for i, c := range consumers {
		waitFor(t, func() bool { return len(c.received()) == 1 },
			fmt.Sprintf("consumer %d never received the event", i))
		assert.Equal(t, "frame-1", c.received()[0].Data)
	}
}

func TestHub_Publish_OrderPreservedPerConsumer(t *testing.T) {
	h := New(nil, WithQueueSize(64))
	defer h.Close()

	c := &recordingConsumer{}
	h.Subscribe(c)

	for i := 0; i < 20; i++ {
		h.Publish(Event{Type: EventFrame, Data: fmt.Sprintf("f%d", i)})
	}

	waitFor(t, func() bool { return len(c.received()) == 20 }, "not all events delivered")
	got := c.received()
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("f%d", i), ev.Data)
	}
}

func TestHub_FailingConsumerIsolated(t *testing.T) {
	h := New(nil)
	defer h.Close()

	bad := &recordingConsumer{sendErr: errors.New("connection reset")}
	good := &recordingConsumer{}
	h.Subscribe(bad)
	h.Subscribe(good)

	h.Publish(Event{Type: EventFrame, Data: "frame-1"})

	// The failing consumer is removed and closed; the healthy one still
	// receives everything.
	waitFor(t, func() bool { return h.Count() == 1 }, "failing consumer never removed")
	waitFor(t, func() bool { return bad.isClosed() }, "failing consumer never closed")

	h.Publish(Event{Type: EventFrame, Data: "frame-2"})
	waitFor(t, func() bool { return len(good.received()) == 2 }, "healthy consumer missed events")
}

func TestHub_SlowConsumerDropsOldest(t *testing.T) {
	h := New(nil, WithQueueSize(2))
	defer h.Close()

	c := &recordingConsumer{slow: 50 * time.Millisecond}
	h.Subscribe(c)

	for i := 0; i < 10; i++ {
		h.Publish(Event{Type: EventFrame, Data: fmt.Sprintf("f%d", i)})
	}

	// Publishing never blocked; the consumer eventually receives a suffix
	// of the stream, still in order.
	time.Sleep(600 * time.Millisecond)
	got := c.received()
	assert.Less(t, len(got), 10)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Data, got[i].Data)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := New(nil)
	defer h.Close()

	c := &recordingConsumer{}
	handle := h.Subscribe(c)
	require.Equal(t, 1, h.Count())

	h.Unsubscribe(handle)
	assert.Equal(t, 0, h.Count())
	assert.True(t, c.isClosed())

	// Unsubscribing twice is harmless.
	h.Unsubscribe(handle)
}

func TestHub_Close(t *testing.T) {
	h := New(nil)

	c1 := &recordingConsumer{}
	c2 := &recordingConsumer{}
	h.Subscribe(c1)
	h.Subscribe(c2)

	h.Close()

	assert.Equal(t, 0, h.Count())
	assert.True(t, c1.isClosed())
	assert.True(t, c2.isClosed())
}

func TestHub_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	h := New(nil)
	defer h.Close()

	var handles []Handle
	for i := 0; i < 8; i++ {
		handles = append(handles, h.Subscribe(&recordingConsumer{}))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.Publish(Event{Type: EventFrame, Data: fmt.Sprintf("f%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for _, handle := range handles {
			h.Unsubscribe(handle)
		}
	}()
	wg.Wait()

	assert.Equal(t, 0, h.Count())
}
