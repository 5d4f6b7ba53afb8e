package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// PCM is a passthrough codec: an encoded frame is the raw block itself.
// Frames span BlockLength*Subbands samples per channel so the pipeline
// timing matches an SBC stream with the same configuration.
type PCM struct {
	cfg        Configuration
	configured bool
	frameLen   int
}

// NewPCM creates a passthrough codec.
func NewPCM() *PCM {
	return &PCM{}
}

// Type returns TypePCM.
func (c *PCM) Type() Type { return TypePCM }

// Configure validates cfg and derives the frame length.
func (c *PCM) Configure(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.frameLen = cfg.SamplesPerFrame() * cfg.Channels * 2
	c.configured = true

	logrus.WithFields(logrus.Fields{
		"function":    "PCM.Configure",
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"frame_bytes": c.frameLen,
	}).Info("PCM passthrough codec configured")
	return nil
}

// Configuration returns the active configuration.
func (c *PCM) Configuration() Configuration { return c.cfg }

// Begin is a no-op once configured.
func (c *PCM) Begin() error {
	if !c.configured {
		return ErrNotConfigured
	}
	return nil
}

// Encode copies one raw block.
func (c *PCM) Encode(raw []byte) ([]byte, error) {
	return c.passthrough(raw)
}

// Decode copies one frame.
func (c *PCM) Decode(frame []byte) ([]byte, error) {
	return c.passthrough(frame)
}

func (c *PCM) passthrough(in []byte) ([]byte, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}
	if len(in) != c.frameLen {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(in), c.frameLen)
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out, nil
}

// Capabilities returns an empty vendor element.
func (c *PCM) Capabilities() []byte { return []byte{} }

// EncodedFrameBytes returns the frame length.
func (c *PCM) EncodedFrameBytes() int { return c.frameLen }

// DecodedFrameBytes returns the frame length.
func (c *PCM) DecodedFrameBytes() int { return c.frameLen }

// Close resets the codec.
func (c *PCM) Close() error {
	c.configured = false
	c.frameLen = 0
	return nil
}
