// Package history keeps a bounded rolling series of charted observations.
package history

import (
	"iter"
	"sync"

	"github.com/coachpo/observatory/internal/schema"
)

// DefaultCapacity bounds the rolling window when no capacity is configured.
const DefaultCapacity = 50

// Buffer is a capacity-bounded, insertion-ordered series of history points.
// When an append exceeds capacity the oldest point is evicted. The zero
// value is not usable; construct with NewBuffer.
type Buffer struct {
	mu       sync.RWMutex
	points   []schema.HistoryPoint
	capacity int
}

// NewBuffer creates an empty buffer holding at most capacity points.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		points:   make([]schema.HistoryPoint, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a point at the tail, evicting the head when over capacity.
func (b *Buffer) Append(point schema.HistoryPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = append(b.points, point)
	if len(b.points) > b.capacity {
		overflow := len(b.points) - b.capacity
		b.points = append(b.points[:0], b.points[overflow:]...)
	}
}

// Len reports the number of buffered points.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.points)
}

// Series returns a restartable read-only view over a snapshot of the buffer,
// oldest first. The view never aliases the live backing storage.
func (b *Buffer) Series() iter.Seq[schema.HistoryPoint] {
	points := b.Points()
	return func(yield func(schema.HistoryPoint) bool) {
		for _, p := range points {
			if !yield(p) {
				return
			}
		}
	}
}

// Points returns a copy of the buffered points, oldest first.
func (b *Buffer) Points() []schema.HistoryPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]schema.HistoryPoint, len(b.points))
	copy(out, b.points)
	return out
}

// Clear drops every buffered point. Used only on explicit reset.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = b.points[:0]
}
