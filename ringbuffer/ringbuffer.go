// Package ringbuffer provides a fixed-capacity byte FIFO that decouples a
// producer from a consumer running at a different rate.
//
// Writes never block and never overwrite unread data: a write larger than
// Free() is truncated and the short count is returned to the caller, who
// decides whether the shortfall is backpressure or an error. Reads never
// block either and return 0 when nothing is buffered.
//
// A Buffer has exactly one producer and one consumer, both running on the
// same event loop, so it carries no locks.
package ringbuffer

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned by New for a non-positive capacity.
var ErrInvalidCapacity = errors.New("ring buffer capacity must be positive")

// Buffer is a circular byte store with a capacity fixed at construction.
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
	size     int // bytes currently stored
}

// New creates a ring buffer holding at most capacity bytes.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Buffer{buf: make([]byte, capacity)}, nil
}

// Write stores as much of p as fits and returns the number of bytes written.
func (b *Buffer) Write(p []byte) int {
	n := min(len(p), b.Free())
	if n == 0 {
		return 0
	}

	first := copy(b.buf[b.writePos:], p[:n])
	if first < n {
		copy(b.buf, p[first:n])
	}
	b.writePos = (b.writePos + n) % len(b.buf)
	b.size += n
	return n
}

// Read moves up to len(p) buffered bytes into p and returns the count.
func (b *Buffer) Read(p []byte) int {
	n := min(len(p), b.size)
	if n == 0 {
		return 0
	}

	first := copy(p[:n], b.buf[b.readPos:])
	if first < n {
		copy(p[first:n], b.buf)
	}
	b.readPos = (b.readPos + n) % len(b.buf)
	b.size -= n
	if b.size == 0 {
		// Realign so the next full write is a straight copy.
		b.readPos, b.writePos = 0, 0
	}
	return n
}

// Discard drops up to n buffered bytes and returns the count dropped.
func (b *Buffer) Discard(n int) int {
	n = min(max(n, 0), b.size)
	b.readPos = (b.readPos + n) % len(b.buf)
	b.size -= n
	if b.size == 0 {
		b.readPos, b.writePos = 0, 0
	}
	return n
}

// Available returns the number of bytes ready to read.
func (b *Buffer) Available() int { return b.size }

// Free returns the number of bytes that can be written.
func (b *Buffer) Free() int { return len(b.buf) - b.size }

// Capacity returns the fixed capacity.
func (b *Buffer) Capacity() int { return len(b.buf) }

// Clear drops all buffered bytes.
func (b *Buffer) Clear() {
	b.readPos, b.writePos, b.size = 0, 0, 0
}
