package writer

import "sync"

// GrowableBuffer is a thread-safe FIFO queue between a listener and a
// writer loop. It doubles its capacity once 70% full, up to maxCapacity.
// At maxCapacity a Send evicts the oldest item, so a stalled database
// costs bounded memory.
type GrowableBuffer[T any] struct {
	mu          sync.Mutex
	cond        *sync.Cond
	buf         []T
	head        int // read position
	tail        int // write position
	count       int
	maxCapacity int // 0: unbounded
	closed      bool

	received int64
	sent     int64
	dropped  int64
	resizes  int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// NewGrowableBuffer creates a buffer with the given initial capacity that
// never grows beyond maxCapacity. A non-positive maxCapacity means unbounded.
func NewGrowableBuffer[T any](initialCapacity, maxCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity > 0 && initialCapacity > maxCapacity {
		initialCapacity = maxCapacity
	}
	b := &GrowableBuffer[T]{
		buf:         make([]T, initialCapacity),
		maxCapacity: maxCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := max(len(b.buf)*70/100, 1)
	if b.count+1 >= threshold && b.canGrow() {
		b.grow()
	}

	if b.count == len(b.buf) {
		b.popLocked()
		b.sent--
		b.dropped++
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % len(b.buf)
	b.count++
	b.received++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed and
// empty, in which case it returns false.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// TryReceive returns the oldest item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// ReceiveBatch blocks like Receive, then drains up to limit items
// (all if limit <= 0). Returns nil once closed and empty.
func (b *GrowableBuffer[T]) ReceiveBatch(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	return b.drainLocked(limit)
}

// DrainTo removes up to limit items (all if limit <= 0) without blocking.
func (b *GrowableBuffer[T]) DrainTo(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLocked(limit)
}

// Close stops accepting items. Receivers drain what is left, then get false.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the current number of items in the buffer.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity of the buffer.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.buf),
		TotalReceived: b.received,
		TotalSent:     b.sent,
		Dropped:       b.dropped,
		ResizeCount:   b.resizes,
	}
}

func (b *GrowableBuffer[T]) canGrow() bool {
	return b.maxCapacity <= 0 || len(b.buf) < b.maxCapacity
}

// popLocked removes the oldest item. Caller holds mu and count > 0.
func (b *GrowableBuffer[T]) popLocked() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.sent++
	return item
}

func (b *GrowableBuffer[T]) drainLocked(limit int) []T {
	if b.count == 0 {
		return nil
	}
	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	return out
}

// grow doubles the capacity, clamped to maxCapacity. Caller holds mu.
func (b *GrowableBuffer[T]) grow() {
	newCapacity := len(b.buf) * 2
	if b.maxCapacity > 0 && newCapacity > b.maxCapacity {
		newCapacity = b.maxCapacity
	}
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.resizes++
}
