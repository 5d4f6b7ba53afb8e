package sink

import (
	"errors"
	"fmt"

	"github.com/opd-ai/a2dpstream/limits"
	"github.com/pion/rtp"
)

// ErrNoFrames indicates an SBC header declaring zero frames.
var ErrNoFrames = errors.New("media packet declares no frames")

// SBCHeader is the one-byte SBC payload header.
type SBCHeader struct {
	Fragmented bool
	Start      bool
	Last       bool
	Frames     int
}

// ParseSBCHeader decodes b.
func ParseSBCHeader(b byte) SBCHeader {
	return SBCHeader{
		Fragmented: b&0x80 != 0,
		Start:      b&0x40 != 0,
		Last:       b&0x20 != 0,
		Frames:     int(b & 0x0F),
	}
}

// Byte encodes the header.
func (h SBCHeader) Byte() byte {
	b := byte(h.Frames) & 0x0F
	if h.Fragmented {
		b |= 0x80
	}
	if h.Start {
		b |= 0x40
	}
	if h.Last {
		b |= 0x20
	}
	return b
}

// MediaPacket is a demultiplexed inbound media packet.
type MediaPacket struct {
	Header rtp.Header
	SBC    SBCHeader
	// Payload holds the frames; it aliases the input packet
	Payload []byte
}

// Demux splits packet into its media header, SBC header and frame payload.
// The media header is parsed with pion/rtp; the byte after it carries the
// frame count in its low four bits.
//
// Parameters:
//   - packet: one received media packet, header included
//
// Returns:
//   - MediaPacket: the parsed headers and the frame payload, sharing packet's memory
//   - error: wraps limits.ErrPacketTooShort, limits.ErrPacketEmpty or
//     ErrNoFrames; any error means the packet is malformed
func Demux(packet []byte) (MediaPacket, error) {
	if err := limits.ValidateMediaPacket(packet); err != nil {
		return MediaPacket{}, err
	}

	var p rtp.Packet
	if err := p.Unmarshal(packet); err != nil {
		return MediaPacket{}, fmt.Errorf("%w: %w", limits.ErrPacketTooShort, err)
	}
	if len(p.Payload) < limits.SBCHeaderSize {
		return MediaPacket{}, fmt.Errorf("%w: no SBC header after %d byte media header",
			limits.ErrPacketTooShort, len(packet)-len(p.Payload))
	}

	sbc := ParseSBCHeader(p.Payload[0])
	payload := p.Payload[limits.SBCHeaderSize:]
	if sbc.Frames == 0 {
		return MediaPacket{}, ErrNoFrames
	}
	if len(payload) < sbc.Frames {
		return MediaPacket{}, fmt.Errorf("%w: %d bytes cannot hold %d frames",
			limits.ErrPacketTooShort, len(payload), sbc.Frames)
	}

	return MediaPacket{Header: p.Header, SBC: sbc, Payload: payload}, nil
}
