package sink

import (
	"errors"
	"fmt"

	"github.com/opd-ai/a2dpstream/limits"
	"github.com/opd-ai/a2dpstream/ringbuffer"
)

// ErrOverrun indicates a packet that does not fit in the jitter buffer.
var ErrOverrun = errors.New("jitter buffer overrun")

// segment records the frame layout of one buffered packet.
type segment struct {
	frames int // frames not yet popped
	size   int // bytes per frame
	tail   int // bytes after the last frame that belong to no frame
}

// JitterBuffer holds encoded frames between arrival and decode. Each packet
// keeps its own frame size, payload length over declared frame count, so
// packets of different sizes can sit in the buffer together and every
// frame comes back out with its own bytes.
type JitterBuffer struct {
	ring     *ringbuffer.Buffer
	segments []segment
	frames   int
}

// BufferCapacity returns the jitter buffer size for frames of at most
// maxFrameBytes. It never drops below limits.SinkBufferSize.
func BufferCapacity(maxFrameBytes int) int {
	return max(limits.SinkBufferSize, (limits.OptimalFramesMax+limits.AdditionalFrames)*maxFrameBytes)
}

// NewJitterBuffer creates a buffer of capacity bytes.
func NewJitterBuffer(capacity int) (*JitterBuffer, error) {
	ring, err := ringbuffer.New(capacity)
	if err != nil {
		return nil, err
	}
	return &JitterBuffer{ring: ring}, nil
}

// Push stores payload holding frames frames. A payload that does not fit is
// dropped whole and nothing is written. Bytes left over when the payload
// does not divide evenly are dropped after the packet's last frame is read.
func (j *JitterBuffer) Push(payload []byte, frames int) error {
	if frames <= 0 {
		return ErrNoFrames
	}
	if len(payload) > j.ring.Free() {
		return fmt.Errorf("%w: %d bytes, %d free", ErrOverrun, len(payload), j.ring.Free())
	}

	size := len(payload) / frames
	if size == 0 {
		return fmt.Errorf("%w: %d bytes cannot hold %d frames", limits.ErrPacketTooShort, len(payload), frames)
	}
	j.ring.Write(payload)
	j.segments = append(j.segments, segment{frames: frames, size: size, tail: len(payload) - size*frames})
	j.frames += frames
	return nil
}

// PopFrame moves the oldest frame into dst, which must hold FrameSize bytes.
// It returns false when no frame is buffered or dst is too short.
func (j *JitterBuffer) PopFrame(dst []byte) bool {
	if len(j.segments) == 0 {
		return false
	}
	seg := &j.segments[0]
	if len(dst) < seg.size {
		return false
	}

	j.ring.Read(dst[:seg.size])
	j.frames--
	seg.frames--
	if seg.frames == 0 {
		j.ring.Discard(seg.tail)
		j.segments = j.segments[1:]
		if len(j.segments) == 0 {
			j.segments = nil
		}
	}
	return true
}

// HasFrame reports whether a whole frame is buffered.
func (j *JitterBuffer) HasFrame() bool {
	return j.frames > 0
}

// FramesBuffered returns the whole frames buffered.
func (j *JitterBuffer) FramesBuffered() int { return j.frames }

// FrameSize returns the size of the next frame PopFrame returns, or 0 when
// the buffer holds no frame.
func (j *JitterBuffer) FrameSize() int {
	if len(j.segments) == 0 {
		return 0
	}
	return j.segments[0].size
}

// Available returns the bytes buffered.
func (j *JitterBuffer) Available() int { return j.ring.Available() }

// Free returns the bytes that can still be buffered.
func (j *JitterBuffer) Free() int { return j.ring.Free() }

// Capacity returns the buffer size.
func (j *JitterBuffer) Capacity() int { return j.ring.Capacity() }

// Clear discards everything buffered.
func (j *JitterBuffer) Clear() {
	j.ring.Clear()
	j.segments = nil
	j.frames = 0
}
