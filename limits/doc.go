// Package limits provides centralized buffer sizing constants and validation
// functions for the A2DP media pipeline. This package ensures the sink and
// source pipelines agree on header sizes, frame bounds and storage capacity.
//
// # Sizing Hierarchy
//
// The constants mirror the tuning used by small embedded A2DP stacks:
//
//   - MediaHeaderSize (12 bytes): the RTP-style media packet header that
//     precedes every AVDTP media payload. Options such as CSRC lists or
//     extensions make it longer, never shorter.
//
//   - SBCHeaderSize (1 byte): the SBC payload header carrying the
//     fragmentation bits and a 4-bit frame count.
//
//   - MaxFrameSize (120 bytes): the largest SBC frame the sink sizes its
//     jitter buffer for.
//
//   - SinkBufferSize: (OptimalFramesMax + AdditionalFrames) * MaxFrameSize,
//     the jitter buffer capacity.
//
//   - StorageSize (1030 bytes): the source transmit queue capacity, which
//     also bounds the largest payload handed to the transport.
//
// # Validation Functions
//
// Each validation function checks for empty input and size violations:
//
//	if err := limits.ValidateMediaPacket(packet); err != nil {
//	    // ErrPacketEmpty or ErrPacketTooShort
//	}
//
// # Timing
//
// AudioTimeout (10 ms) is the source pacing period. With SBCPacketCount (5)
// frames encoded per fill, a 44.1 kHz stream with 128-sample frames produces
// one batch roughly every 14.5 ms, so the pacer tops up on every second tick
// at most.
package limits
