package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors.
var (
	// ErrInvalidConfiguration indicates a configuration the pipeline cannot run.
	ErrInvalidConfiguration = errors.New("invalid codec configuration")

	// ErrUnsupportedWireValue indicates an unknown wire-level enumeration value.
	ErrUnsupportedWireValue = errors.New("unsupported wire codec value")

	// ErrUnknownCodec indicates an unknown codec type name.
	ErrUnknownCodec = errors.New("unknown codec type")
)

// Operation errors.
var (
	// ErrNotConfigured indicates Begin, Encode or Decode before Configure.
	ErrNotConfigured = errors.New("codec not configured")

	// ErrFrameSize indicates an input whose length is not one frame.
	ErrFrameSize = errors.New("input is not exactly one frame")

	// ErrNoEngine indicates an SBC codec without a bit-stream engine.
	ErrNoEngine = errors.New("no SBC engine attached")

	// ErrEncodeUnsupported indicates a decode-only codec.
	ErrEncodeUnsupported = errors.New("codec does not support encoding")
)

// Type identifies a codec variant.
type Type uint8

// Supported codec variants.
const (
	TypeSBC Type = iota
	TypePCM
	TypeOpus
)

// String returns the codec name.
func (t Type) String() string {
	switch t {
	case TypeSBC:
		return "sbc"
	case TypePCM:
		return "pcm"
	case TypeOpus:
		return "opus"
	default:
		return fmt.Sprintf("codec(%d)", uint8(t))
	}
}

// MediaCodecType returns the AVDTP media codec type byte.
func (t Type) MediaCodecType() byte {
	if t == TypeSBC {
		return 0x00
	}
	return 0xFF // non-A2DP (vendor specific)
}

// ParseType maps a codec name to its Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sbc":
		return TypeSBC, nil
	case "pcm", "":
		return TypePCM, nil
	case "opus":
		return TypeOpus, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// FrameSizeOracle reports the fixed frame sizes of the current configuration.
type FrameSizeOracle interface {
	// EncodedFrameBytes returns the length of one compressed frame
	EncodedFrameBytes() int
	// DecodedFrameBytes returns the length of one interleaved PCM block
	DecodedFrameBytes() int
}

// Codec is the capability interface every codec variant implements.
//
// Configure must be called before Begin; Encode and Decode take and return
// exactly one frame.
type Codec interface {
	FrameSizeOracle

	// Type returns the codec variant
	Type() Type
	// Configure applies a stream configuration
	Configure(cfg Configuration) error
	// Configuration returns the active configuration
	Configuration() Configuration
	// Begin prepares the codec for the configured stream
	Begin() error
	// Encode compresses one raw block into one frame
	Encode(raw []byte) ([]byte, error)
	// Decode expands one frame into one raw block
	Decode(frame []byte) ([]byte, error)
	// Capabilities returns the capability element advertised to the peer
	Capabilities() []byte
	// Close releases codec resources
	Close() error
}

// New creates a codec of type t. The SBC variant uses engine for the
// bit-stream work; other variants ignore it.
func New(t Type, engine SBCEngine) (Codec, error) {
	switch t {
	case TypeSBC:
		return NewSBC(engine), nil
	case TypePCM:
		return NewPCM(), nil
	case TypeOpus:
		return NewOpus(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, t)
	}
}
