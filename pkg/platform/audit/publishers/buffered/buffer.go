package buffered

import (
	"sync"

	audit "fleetops/pkg/platform/audit"
)

// ringBuffer is a bounded FIFO of audit events. When full, the oldest
// event is overwritten and counted as dropped.
type ringBuffer struct {
	mu      sync.Mutex
	events  []audit.Event
	head    int // next write position
	tail    int // next read position
	count   int
	dropped int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &ringBuffer{events: make([]audit.Event, capacity)}
}

func (b *ringBuffer) enqueue(event audit.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.events)
	if b.count == capacity {
		b.tail = (b.tail + 1) % capacity
		b.count--
		b.dropped++
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % capacity
	b.count++
}

// dequeue removes up to n events in FIFO order.
func (b *ringBuffer) dequeue(n int) []audit.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n = min(n, b.count)
	out := make([]audit.Event, n)
	capacity := len(b.events)
	for i := range n {
		out[i] = b.events[b.tail]
		b.events[b.tail] = audit.Event{}
		b.tail = (b.tail + 1) % capacity
	}
	b.count -= n
	return out
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *ringBuffer) droppedCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
