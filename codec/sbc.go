package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SBCEngine performs SBC bit-stream encoding and decoding. It is supplied by
// the platform; the pipeline only needs frame sizes and whole-frame calls.
type SBCEngine interface {
	// Configure prepares the engine for cfg
	Configure(cfg Configuration) error
	// Encode compresses one PCM block into one SBC frame
	Encode(pcm []byte) ([]byte, error)
	// Decode expands one SBC frame into one PCM block
	Decode(frame []byte) ([]byte, error)
}

// SBC is the SBC codec variant.
type SBC struct {
	engine     SBCEngine
	cfg        Configuration
	configured bool
	encodedLen int
	decodedLen int
}

// NewSBC creates an SBC codec backed by engine. A nil engine still reports
// frame sizes and capabilities but cannot encode or decode.
func NewSBC(engine SBCEngine) *SBC {
	return &SBC{engine: engine}
}

// Type returns TypeSBC.
func (c *SBC) Type() Type { return TypeSBC }

// Configure validates cfg and computes the frame sizes.
func (c *SBC) Configure(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SBC.Configure",
			"error":    err.Error(),
		}).Error("Rejected SBC configuration")
		return err
	}

	c.cfg = cfg
	c.encodedLen = SBCFrameLength(cfg)
	c.decodedLen = cfg.SamplesPerFrame() * cfg.Channels * 2
	c.configured = true

	logrus.WithFields(cfg.Fields()).WithFields(logrus.Fields{
		"function":      "SBC.Configure",
		"encoded_bytes": c.encodedLen,
		"decoded_bytes": c.decodedLen,
	}).Info("SBC codec configured")
	return nil
}

// Configuration returns the active configuration.
func (c *SBC) Configuration() Configuration { return c.cfg }

// Begin pushes the configuration into the engine. The encoder runs at the
// maximum negotiated bitpool.
func (c *SBC) Begin() error {
	if !c.configured {
		return ErrNotConfigured
	}
	if c.engine == nil {
		return ErrNoEngine
	}
	if err := c.engine.Configure(c.cfg); err != nil {
		return fmt.Errorf("sbc engine configure: %w", err)
	}
	return nil
}

// Encode compresses exactly one PCM block.
func (c *SBC) Encode(raw []byte) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if len(raw) != c.decodedLen {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(raw), c.decodedLen)
	}
	return c.engine.Encode(raw)
}

// Decode expands exactly one SBC frame.
func (c *SBC) Decode(frame []byte) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.engine.Decode(frame)
}

// Capabilities returns the advertised SBC capability element.
func (c *SBC) Capabilities() []byte {
	caps := DefaultSBCCapabilities
	return caps[:]
}

// EncodedFrameBytes returns the SBC frame length for the configuration.
func (c *SBC) EncodedFrameBytes() int { return c.encodedLen }

// DecodedFrameBytes returns the PCM block length for the configuration.
func (c *SBC) DecodedFrameBytes() int { return c.decodedLen }

// Close detaches the codec from its configuration.
func (c *SBC) Close() error {
	c.configured = false
	c.encodedLen, c.decodedLen = 0, 0
	return nil
}

func (c *SBC) ready() error {
	if !c.configured {
		return ErrNotConfigured
	}
	if c.engine == nil {
		return ErrNoEngine
	}
	return nil
}

// SBCFrameLength returns the byte length of one SBC frame encoded at the
// configuration's maximum bitpool.
func SBCFrameLength(cfg Configuration) int {
	channels := cfg.ChannelMode.Channels()
	blocks, subbands, bitpool := cfg.BlockLength, cfg.Subbands, cfg.MaxBitpool

	// header (4) + scale factors (4 bits per subband per channel)
	length := 4 + (4*subbands*channels)/8

	var bits int
	switch cfg.ChannelMode {
	case ChannelModeMono, ChannelModeDualChannel:
		bits = blocks * channels * bitpool
	case ChannelModeStereo:
		bits = blocks * bitpool
	case ChannelModeJointStereo:
		bits = subbands + blocks*bitpool
	}
	return length + (bits+7)/8
}
