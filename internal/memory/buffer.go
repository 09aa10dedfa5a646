package memory

import "sync"

// Buffer is the short-term tier: a fixed-capacity FIFO of the most
// recent interactions. Appending to a full buffer evicts the oldest
// entry; append and eviction happen in one critical section, so no
// reader can observe the buffer over capacity or missing an entry.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	items    []Interaction
}

// NewBuffer creates a buffer holding at most capacity interactions.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 15
	}
	return &Buffer{
		capacity: capacity,
		items:    make([]Interaction, 0, capacity),
	}
}

// Append adds an interaction, returning the evicted oldest entry when
// the buffer was already full.
func (b *Buffer) Append(it Interaction) (evicted Interaction, wasEvicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == b.capacity {
		evicted = b.items[0]
		wasEvicted = true
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, it)
	return evicted, wasEvicted
}

// Recent returns up to n interactions, newest last. n <= 0 returns the
// whole buffer.
func (b *Buffer) Recent(n int) []Interaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.items) {
		n = len(b.items)
	}
	out := make([]Interaction, n)
	copy(out, b.items[len(b.items)-n:])
	return out
}

// Len reports the current number of buffered interactions.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity reports the fixed maximum size.
func (b *Buffer) Capacity() int { return b.capacity }

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}
