// Package stats provides the bounded containers and single-pass accumulators
// that keep the monitoring core's memory and computation costs constant
// regardless of how long the process runs.
package stats

import (
	"sync"
	"time"
)

// RingBuffer is a fixed-capacity FIFO container. Append never blocks: once the
// buffer is full the oldest element is silently discarded, so capacity bounds
// memory but makes no promise about retained history. All read methods return
// snapshot copies, never live views.
type RingBuffer[T any] struct {
	mu     sync.RWMutex
	items  []T
	head   int // index of the oldest element
	size   int
	timeOf func(T) time.Time
}

// NewRingBuffer creates a RingBuffer with the given capacity. Capacities below
// 1 are clamped to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// NewTimedRingBuffer creates a RingBuffer whose elements carry a timestamp,
// extracted by timeOf, enabling Since queries.
func NewTimedRingBuffer[T any](capacity int, timeOf func(T) time.Time) *RingBuffer[T] {
	rb := NewRingBuffer[T](capacity)
	rb.timeOf = timeOf
	return rb
}

// Append adds an item, evicting the oldest when the buffer is full.
func (rb *RingBuffer[T]) Append(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size < len(rb.items) {
		rb.items[(rb.head+rb.size)%len(rb.items)] = item
		rb.size++
		return
	}
	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % len(rb.items)
}

// Len returns the number of retained elements.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.items)
}

// Snapshot returns a copy of all retained elements in insertion order.
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.copyLocked(rb.size)
}

// Recent returns a copy of the last min(n, Len) elements in insertion order.
// Non-positive n yields an empty slice.
func (rb *RingBuffer[T]) Recent(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n > rb.size {
		n = rb.size
	}
	return rb.copyLocked(n)
}

// Since returns a copy of all elements whose timestamp is at or after cutoff,
// in insertion order. It returns an empty slice when the buffer was not
// created with NewTimedRingBuffer.
func (rb *RingBuffer[T]) Since(cutoff time.Time) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := []T{}
	if rb.timeOf == nil {
		return out
	}
	for i := 0; i < rb.size; i++ {
		item := rb.items[(rb.head+i)%len(rb.items)]
		if !rb.timeOf(item).Before(cutoff) {
			out = append(out, item)
		}
	}
	return out
}

// copyLocked copies the newest n elements in insertion order. The caller must
// hold rb.mu.
func (rb *RingBuffer[T]) copyLocked(n int) []T {
	out := make([]T, n)
	start := rb.size - n
	for i := 0; i < n; i++ {
		out[i] = rb.items[(rb.head+start+i)%len(rb.items)]
	}
	return out
}
