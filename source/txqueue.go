package source

import "github.com/opd-ai/a2dpstream/ringbuffer"

// TxQueue holds encoded frames waiting for a send slot.
type TxQueue struct {
	ring *ringbuffer.Buffer
}

// NewTxQueue creates a queue of capacity bytes.
func NewTxQueue(capacity int) (*TxQueue, error) {
	ring, err := ringbuffer.New(capacity)
	if err != nil {
		return nil, err
	}
	return &TxQueue{ring: ring}, nil
}

// Write stores as much of p as fits and returns the count.
func (q *TxQueue) Write(p []byte) int { return q.ring.Write(p) }

// PushFrame stores frame whole, or not at all.
func (q *TxQueue) PushFrame(frame []byte) bool {
	if len(frame) > q.ring.Free() {
		return false
	}
	q.ring.Write(frame)
	return true
}

// WholeFrames returns how many whole frames of frameLen are queued.
func (q *TxQueue) WholeFrames(frameLen int) int {
	if frameLen <= 0 {
		return 0
	}
	return q.ring.Available() / frameLen
}

// ReadFrames moves n whole frames into dst and returns the bytes read.
func (q *TxQueue) ReadFrames(dst []byte, n, frameLen int) int {
	n = min(n, q.WholeFrames(frameLen))
	return q.ring.Read(dst[:n*frameLen])
}

// Available returns the bytes queued.
func (q *TxQueue) Available() int { return q.ring.Available() }

// Free returns the bytes that can still be queued.
func (q *TxQueue) Free() int { return q.ring.Free() }

// Capacity returns the queue size.
func (q *TxQueue) Capacity() int { return q.ring.Capacity() }

// Clear discards everything queued.
func (q *TxQueue) Clear() { q.ring.Clear() }
