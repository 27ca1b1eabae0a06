package mirror

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bridgeworks/busmirror/internal/broker"
	"github.com/bridgeworks/busmirror/internal/busvalue"
	"github.com/bridgeworks/busmirror/internal/clock"
	"github.com/bridgeworks/busmirror/internal/logging"
	"github.com/bridgeworks/busmirror/internal/metrics"
)

// protectedTopicSuffix marks the one topic that must never be tombstoned,
// even when its owning service disappears (spec.md §4.5 "/system/0/Serial").
const protectedTopicSuffix = "/system/0/Serial"

// drainBatch is how many topics a single drain pass publishes, and
// minDrainInterval is the minimum time between drain passes — both taken
// directly from the Python original's _service_queue(items=5) and
// _timer_service_queue's "time() - self._last_queue_run > 1.5" gate
// (spec.md §4.6 "Publish Queue").
const (
	drainBatch       = 5
	minDrainInterval = 1500 * time.Millisecond
)

type queueItem struct {
	topic    string
	payload  []byte
	retained bool
}

// PublishQueue is the process-wide, at-most-one-pending-payload-per-topic
// publish queue (spec.md §4.6). A 1Hz timer (driven externally by the
// orchestrator, via Tick) gated on minDrainInterval drains up to drainBatch
// topics per call, and reports whether more remain so the caller can
// schedule a follow-up drain immediately rather than waiting for the next
// tick — mirroring GLib.idle_add(self._service_queue) in the original.
type PublishQueue struct {
	mu        sync.Mutex
	order     *list.List
	index     map[string]*list.Element
	lastDrain time.Time

	clock   clock.Clock
	broker  broker.Broker
	log     *logging.Logger
	limiter *rate.Limiter
}

// NewPublishQueue creates an empty PublishQueue. The rate limiter is a
// secondary throttle beneath the per-tick batch cap, guarding against a
// burst of simultaneous Enqueue calls (e.g. a bootstrap scan of a
// many-path service) saturating the broker write path in one tick.
func NewPublishQueue(b broker.Broker, clk clock.Clock, log *logging.Logger) *PublishQueue {
	return &PublishQueue{
		order:   list.New(),
		index:   make(map[string]*list.Element),
		clock:   clk,
		broker:  b,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(50), drainBatch),
	}
}

// Enqueue stages a retained publish for topic, replacing any pending
// payload for the same topic and moving it to the tail — at most one
// pending payload per topic (spec.md §4.6).
func (q *PublishQueue) Enqueue(topic string, value busvalue.Value) {
	payload, err := json.Marshal(valueEnvelope{Value: value})
	if err != nil {
		q.log.Error("marshal publish payload", "topic", topic, "error", err)
		return
	}
	q.stage(topic, payload, true)
}

// Tombstone stages an empty retained payload for topic, signalling removal
// — unless topic is the protected system serial topic, which is never
// tombstoned (spec.md §4.5, §9).
func (q *PublishQueue) Tombstone(topic string) {
	if hasProtectedSuffix(topic) {
		return
	}
	q.stage(topic, nil, true)
	metrics.TombstonesTotal.Inc()
}

func hasProtectedSuffix(topic string) bool {
	if len(topic) < len(protectedTopicSuffix) {
		return false
	}
	return topic[len(topic)-len(protectedTopicSuffix):] == protectedTopicSuffix
}

func (q *PublishQueue) stage(topic string, payload []byte, retained bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := queueItem{topic: topic, payload: payload, retained: retained}
	if el, ok := q.index[topic]; ok {
		q.order.Remove(el)
	}
	q.index[topic] = q.order.PushBack(item)
	metrics.QueueDepth.Set(float64(q.order.Len()))
}

// Len returns the number of topics currently pending.
func (q *PublishQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}

// Tick runs one drain pass if at least minDrainInterval has elapsed since
// the last one, publishing up to drainBatch topics. It reports whether
// items remain afterward, so the orchestrator can schedule an immediate
// follow-up drain rather than waiting for the next 1Hz tick.
func (q *PublishQueue) Tick() bool {
	q.mu.Lock()
	if q.order.Len() == 0 {
		q.mu.Unlock()
		return false
	}
	if !q.lastDrain.IsZero() && q.clock.Since(q.lastDrain) <= minDrainInterval {
		q.mu.Unlock()
		return false
	}
	q.lastDrain = q.clock.Now()
	q.mu.Unlock()

	return q.drain(drainBatch)
}

// Flush drains everything currently queued, ignoring minDrainInterval. Used
// on shutdown, where waiting out the 1.5s gate between batches would risk
// never finishing before the process exits.
func (q *PublishQueue) Flush() {
	for {
		q.mu.Lock()
		empty := q.order.Len() == 0
		q.mu.Unlock()
		if empty {
			return
		}
		q.drain(drainBatch)
	}
}

func (q *PublishQueue) drain(n int) bool {
	for i := 0; i < n; i++ {
		if !q.limiter.Allow() {
			return true
		}

		q.mu.Lock()
		front := q.order.Front()
		if front == nil {
			q.mu.Unlock()
			return false
		}
		item := front.Value.(queueItem)
		q.order.Remove(front)
		delete(q.index, item.topic)
		remaining := q.order.Len()
		q.mu.Unlock()

		metrics.QueueDepth.Set(float64(remaining))

		if err := q.broker.Publish(item.topic, item.payload, item.retained); err != nil {
			q.log.Error("publish failed", "topic", item.topic, "error", err)
			metrics.PublishesTotal.WithLabelValues("error").Inc()
			continue
		}
		metrics.PublishesTotal.WithLabelValues("ok").Inc()
	}

	q.mu.Lock()
	more := q.order.Len() > 0
	q.mu.Unlock()
	return more
}

type valueEnvelope struct {
	Value busvalue.Value `json:"value"`
}
