// Package snapshot provides the bounded hand-off queue used between the
// acquisition, timing, and render workers. Producers publish immutable
// snapshots; consumers poll the freshest one without blocking. When the
// queue is full the oldest snapshot is dropped; only the latest data
// matters for position tracking, so losing intermediate samples under
// load is acceptable.
package snapshot

import "sync"

// DefaultDepth is the queue depth used between workers. Depth 2 lets a
// producer stay one publish ahead of a slow consumer without unbounded
// buffering.
const DefaultDepth = 2

// Queue is a bounded latest-wins snapshot queue. The zero value is not
// usable; construct with New.
type Queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	depth   int
	hasData bool
	latest  T
	dropped uint64
}

// New returns a Queue with the given depth. Depths below 1 are clamped
// to DefaultDepth.
func New[T any](depth int) *Queue[T] {
	if depth < 1 {
		depth = DefaultDepth
	}
	return &Queue[T]{depth: depth}
}

// Publish appends a snapshot, evicting the oldest entry when the queue
// is at depth. It never blocks.
func (q *Queue[T]) Publish(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) >= q.depth {
		q.buf = q.buf[1:]
		q.dropped++
	}
	q.buf = append(q.buf, v)
	q.latest = v
	q.hasData = true
}

// Next pops the oldest queued snapshot. The second return is false when
// the queue is empty.
func (q *Queue[T]) Next() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		var zero T
		return zero, false
	}
	v := q.buf[0]
	q.buf = q.buf[1:]
	return v, true
}

// Latest drains the queue and returns the most recent snapshot ever
// published. The second return is false until the first Publish. Unlike
// Next, a consumer polling Latest always sees the freshest data even
// after it has been read before; the render loop republishes the
// last-known snapshot when no new one has arrived.
func (q *Queue[T]) Latest() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = q.buf[:0]
	if !q.hasData {
		var zero T
		return zero, false
	}
	return q.latest, true
}

// Dropped reports how many snapshots have been evicted unread.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
