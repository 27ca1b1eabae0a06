package mirror

import (
	"testing"
	"time"

	"github.com/bridgeworks/busmirror/internal/logging"
)

func newTestQueue(b *mockBroker, clk *mockClock) *PublishQueue {
	return NewPublishQueue(b, clk, logging.New(false, false))
}

func TestQueueCoalescesRepeatedEnqueue(t *testing.T) {
	b := newMockBroker()
	clk := newMockClock(time.Unix(0, 0))
	q := newTestQueue(b, clk)

	q.Enqueue("N/abc123/battery/257/Dc/0/Voltage", 12.8)
	q.Enqueue("N/abc123/battery/257/Dc/0/Voltage", 13.0)

	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (coalesced)", q.Len())
	}
}

func TestQueueTickDrainsImmediatelyOnFirstCall(t *testing.T) {
	b := newMockBroker()
	clk := newMockClock(time.Unix(0, 0))
	q := newTestQueue(b, clk)

	q.Enqueue("N/abc123/battery/257/Dc/0/Voltage", 12.8)

	if more := q.Tick(); more {
		t.Error("Tick() = true, want false (single item fully drained)")
	}
	if len(b.all()) != 1 {
		t.Errorf("published %d messages, want 1", len(b.all()))
	}
}

func TestQueueDrainsOnTick(t *testing.T) {
	b := newMockBroker()
	clk := newMockClock(time.Unix(0, 0))
	q := newTestQueue(b, clk)

	q.Enqueue("N/abc123/battery/257/Dc/0/Voltage", 12.8)
	q.Tick()

	published := b.all()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	if published[0].topic != "N/abc123/battery/257/Dc/0/Voltage" {
		t.Errorf("topic = %q", published[0].topic)
	}
	if !published[0].retained {
		t.Error("retained = false, want true")
	}
	if q.Len() != 0 {
		t.Errorf("Len() after drain = %d, want 0", q.Len())
	}
}

func TestQueueGatesSecondDrainWithin1500ms(t *testing.T) {
	b := newMockBroker()
	clk := newMockClock(time.Unix(0, 0))
	q := newTestQueue(b, clk)

	q.Enqueue("a", 1)
	q.Tick()

	clk.Advance(1 * time.Second)
	q.Enqueue("b", 2)
	q.Tick()

	if len(b.all()) != 1 {
		t.Fatalf("published %d messages after gated tick, want 1", len(b.all()))
	}

	clk.Advance(1 * time.Second)
	q.Tick()
	if len(b.all()) != 2 {
		t.Fatalf("published %d messages after ungated tick, want 2", len(b.all()))
	}
}

func TestQueueDrainsAtMostBatchSizePerTick(t *testing.T) {
	b := newMockBroker()
	clk := newMockClock(time.Unix(0, 0))
	q := newTestQueue(b, clk)

	for i := 0; i < drainBatch+3; i++ {
		q.Enqueue(string(rune('a'+i)), i)
	}

	more := q.Tick()
	if !more {
		t.Error("Tick() = false, want true (items remain after one batch)")
	}
	if len(b.all()) != drainBatch {
		t.Errorf("published %d messages, want %d", len(b.all()), drainBatch)
	}
}

func TestQueueTombstoneProtectsSystemSerial(t *testing.T) {
	b := newMockBroker()
	clk := newMockClock(time.Unix(0, 0))
	q := newTestQueue(b, clk)

	q.Tombstone("N/abc123/system/0/Serial")
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (protected topic must never be tombstoned)", q.Len())
	}
}

func TestQueueTombstoneStagesEmptyPayload(t *testing.T) {
	b := newMockBroker()
	clk := newMockClock(time.Unix(0, 0))
	q := newTestQueue(b, clk)

	q.Tombstone("N/abc123/battery/257/Dc/0/Voltage")
	q.Tick()

	published := b.all()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	if published[0].payload != nil {
		t.Errorf("payload = %q, want nil/empty tombstone", published[0].payload)
	}
}
