package gateway

import "sync"

// sendQueue is the bounded outbound buffer between the hub's fan-out and a
// session's writer goroutine. When a slow consumer lets the queue fill up,
// the OLDEST frame is discarded to make room: location updates supersede each
// other, so coalescing toward the newest is the correct loss policy.
type sendQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []outboundFrame
	cap     int
	closed  bool
	dropped uint64
}

func newSendQueue(capacity int) *sendQueue {
	if capacity <= 0 {
		capacity = 16
	}
	q := &sendQueue{
		items: make([]outboundFrame, 0, capacity),
		cap:   capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues f, evicting the oldest buffered frame when full. Never
// blocks. Returns false once the queue is closed.
func (q *sendQueue) Push(f outboundFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	if len(q.items) == q.cap {
		copy(q.items, q.items[1:])
		q.items = q.items[:q.cap-1]
		q.dropped++
	}
	q.items = append(q.items, f)
	q.cond.Signal()
	return true
}

// Pop blocks until a frame is available or the queue is closed. The second
// return value is false only after Close once the buffer has drained.
func (q *sendQueue) Pop() (outboundFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return outboundFrame{}, false
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f, true
}

// Close wakes any blocked Pop. Buffered frames remain poppable.
func (q *sendQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Dropped reports how many frames were evicted over the queue's lifetime.
func (q *sendQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Len reports the number of frames currently buffered.
func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
