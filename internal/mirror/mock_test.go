package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/bridgeworks/busmirror/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(false, false)
}

// mockClock implements clock.Clock for testing, matching the teacher's own
// mockClock fixture style.
type mockClock struct {
	now time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{now: t}
}

func (c *mockClock) Now() time.Time { return c.now }
func (c *mockClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}
func (c *mockClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }
func (c *mockClock) Advance(d time.Duration)         { c.now = c.now.Add(d) }

// publishedMsg records one call to mockBroker.Publish.
type publishedMsg struct {
	topic    string
	payload  []byte
	retained bool
}

// mockBroker is a hand-rolled fake implementing broker.Broker for tests.
type mockBroker struct {
	mu         sync.Mutex
	published  []publishedMsg
	publishErr error
	subs       map[string]func(topic string, payload []byte)
}

func newMockBroker() *mockBroker {
	return &mockBroker{subs: make(map[string]func(topic string, payload []byte))}
}

func (b *mockBroker) Connect(ctx context.Context) error { return nil }

func (b *mockBroker) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = handler
	return nil
}

func (b *mockBroker) Publish(topic string, payload []byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publishedMsg{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *mockBroker) Disconnect() {}

func (b *mockBroker) ClientID() string { return "mock-client" }

func (b *mockBroker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	h, ok := b.subs[topic]
	b.mu.Unlock()
	if ok {
		h(topic, payload)
	}
}

func (b *mockBroker) all() []publishedMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedMsg, len(b.published))
	copy(out, b.published)
	return out
}
