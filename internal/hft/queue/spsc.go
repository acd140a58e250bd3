// Package queue implements the single-producer/single-consumer ring
// buffer that carries market-data and execution-report events from the
// transport goroutine to the trade engine without a mutex on the hot
// path — the same cache-aligned, atomic-cursor design as a Disruptor
// ring buffer, narrowed to one producer and one consumer.
package queue

import (
	"errors"
	"sync/atomic"
)

// ErrFull is returned by TryPush when the queue has no free slot.
var ErrFull = errors.New("queue: buffer full")

// ErrEmpty is returned by TryPop when the queue has nothing to consume.
var ErrEmpty = errors.New("queue: buffer empty")

// cacheLinePad is sized to push the producer and consumer cursors onto
// separate cache lines so the producer and consumer goroutines never
// invalidate each other's cache line on every push/pop.
type cacheLinePad struct {
	_ [64 - 8]byte
}

// SPSC is a fixed-capacity, lock-free ring buffer for exactly one
// producer goroutine and one consumer goroutine. Capacity must be a
// power of two so the index wrap is a mask instead of a modulo.
type SPSC[T any] struct {
	mask uint64
	buf  []T

	writeCursor uint64
	_           cacheLinePad
	readCursor  uint64
	_           cacheLinePad
}

// NewSPSC creates a queue with room for capacity elements. It panics if
// capacity is not a power of two — that is a construction-time
// programmer error, not a runtime condition to recover from.
func NewSPSC[T any](capacity int) *SPSC[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("queue: capacity must be a power of two")
	}
	return &SPSC[T]{
		mask: uint64(capacity - 1),
		buf:  make([]T, capacity),
	}
}

// Capacity returns the queue's fixed size.
func (q *SPSC[T]) Capacity() int {
	return len(q.buf)
}

// Len returns the number of elements currently queued. Safe to call
// from either the producer or the consumer goroutine, but the result
// may be stale by the time the caller acts on it.
func (q *SPSC[T]) Len() int {
	w := atomic.LoadUint64(&q.writeCursor)
	r := atomic.LoadUint64(&q.readCursor)
	return int(w - r)
}

// TryPush writes v into the next slot. Only the producer goroutine may
// call this. Returns ErrFull if the consumer has not kept up.
func (q *SPSC[T]) TryPush(v T) error {
	w := atomic.LoadUint64(&q.writeCursor)
	r := atomic.LoadUint64(&q.readCursor)
	if w-r >= uint64(len(q.buf)) {
		return ErrFull
	}
	q.buf[w&q.mask] = v
	atomic.StoreUint64(&q.writeCursor, w+1)
	return nil
}

// TryPop reads the next queued element. Only the consumer goroutine may
// call this. Returns ErrEmpty if nothing has been published yet.
func (q *SPSC[T]) TryPop() (T, error) {
	var zero T
	r := atomic.LoadUint64(&q.readCursor)
	w := atomic.LoadUint64(&q.writeCursor)
	if r >= w {
		return zero, ErrEmpty
	}
	v := q.buf[r&q.mask]
	q.buf[r&q.mask] = zero // drop the reference so the GC can reclaim it
	atomic.StoreUint64(&q.readCursor, r+1)
	return v, nil
}

// DrainFunc pops every currently available element, calling fn for
// each, stopping early if fn returns false. It returns the number of
// elements consumed.
func (q *SPSC[T]) DrainFunc(fn func(T) bool) int {
	n := 0
	for {
		v, err := q.TryPop()
		if err != nil {
			return n
		}
		n++
		if !fn(v) {
			return n
		}
	}
}
