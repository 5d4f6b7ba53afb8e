// Package limits provides centralized buffer sizing for the A2DP media pipeline.
package limits

import (
	"errors"
	"fmt"
	"time"
)

// Packet framing.
const (
	// MediaHeaderSize is the minimum size of the media packet header (no CRC)
	MediaHeaderSize = 12

	// SBCHeaderSize is the size of the SBC payload header
	SBCHeaderSize = 1

	// MaxFrameCount is the largest frame count the 4-bit header field can carry
	MaxFrameCount = 15
)

// Sink tuning.
const (
	// OptimalFramesMin is the number of buffered frames that starts playback
	OptimalFramesMin = 30

	// OptimalFramesMax is the number of frames the jitter buffer targets at most
	OptimalFramesMax = 40

	// AdditionalFrames is headroom on top of OptimalFramesMax
	AdditionalFrames = 20

	// MaxFrameSize is the largest encoded frame the sink is sized for
	MaxFrameSize = 120

	// SinkBufferSize is the jitter buffer capacity in bytes
	SinkBufferSize = (OptimalFramesMax + AdditionalFrames) * MaxFrameSize
)

// Source tuning.
const (
	// AudioTimeout is the pacing timer period
	AudioTimeout = 10 * time.Millisecond

	// StorageSize is the transmit queue capacity in bytes
	StorageSize = 1030

	// SBCPacketCount is the number of frames encoded per queue fill
	SBCPacketCount = 5
)

var (
	// ErrPacketEmpty indicates an empty packet was provided
	ErrPacketEmpty = errors.New("empty packet")

	// ErrPacketTooShort indicates a packet is shorter than its declared header
	ErrPacketTooShort = errors.New("packet too short")

	// ErrPayloadTooLarge indicates a payload exceeds the allowed size
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidateMediaPacket checks that packet can hold the media header and the
// SBC header. Returns an error with the actual and required sizes.
func ValidateMediaPacket(packet []byte) error {
	if len(packet) == 0 {
		return ErrPacketEmpty
	}
	if len(packet) < MediaHeaderSize+SBCHeaderSize {
		return fmt.Errorf("%w: size %d, need at least %d", ErrPacketTooShort, len(packet), MediaHeaderSize+SBCHeaderSize)
	}
	return nil
}

// ValidatePayloadSize validates an outbound payload against maxSize.
func ValidatePayloadSize(payload []byte, maxSize int) error {
	if len(payload) == 0 {
		return ErrPacketEmpty
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), maxSize)
	}
	return nil
}

// FramesPerPayload returns how many whole frames of frameLen fit into a
// payload of maxPayload bytes once the count header is accounted for,
// clamped to MaxFrameCount.
func FramesPerPayload(maxPayload, frameLen int) int {
	if frameLen <= 0 || maxPayload <= SBCHeaderSize {
		return 0
	}
	return min((maxPayload-SBCHeaderSize)/frameLen, MaxFrameCount)
}
