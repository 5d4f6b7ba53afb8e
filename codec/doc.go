// Package codec describes the audio codecs the media pipeline can drive.
//
// The pipeline never looks inside compressed frames. It needs three things
// from a codec: a Configuration describing the stream, the fixed encoded and
// decoded frame sizes for that configuration (FrameSizeOracle), and the
// encode/decode operations themselves. Codec captures that as a capability
// interface with one implementation per supported codec:
//
//   - SBC: the mandatory A2DP codec. Frame sizes come from the SBC frame
//     layout; the bit-stream work is done by an injected SBCEngine.
//   - PCM: a passthrough codec whose encoded frame is the raw block. Used by
//     the simulator and by tests that need byte-exact round trips.
//   - Opus: decode-only, backed by the pure Go github.com/pion/opus decoder.
//
// Adding a codec means adding a variant, not subclassing.
//
// # Wire Configuration
//
// AVDTP carries the SBC configuration as a 4-byte codec information element
// using bit flags, and the Bluetooth stack reports it with AVDTP enumerations
// that do not line up with the codec's own (the allocation method is off by
// one, the channel mode uses flag values). FromWire and ToWire translate in
// both directions. Any value outside the known enumerations is a
// configuration fault: the stream must not open.
//
//	wire, err := codec.ParseCodecInfo(element)
//	cfg, err := codec.FromWire(wire)
//	if errors.Is(err, codec.ErrUnsupportedWireValue) {
//	    // refuse to open the pipeline
//	}
package codec
