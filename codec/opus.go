package codec

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// opusFrameDivisor gives 20 ms frames: sampleRate / 50 samples per channel.
const opusFrameDivisor = 50

// Opus is a decode-only codec backed by the pion/opus decoder. Opus frames
// vary in size; the sink's jitter buffer keeps each packet's frame size
// alongside its bytes, so EncodedFrameBytes only reports the upper bound
// used for buffer sizing.
type Opus struct {
	decoder    *opus.Decoder
	cfg        Configuration
	configured bool
	decodedLen int
}

// NewOpus creates an Opus decoder.
func NewOpus() *Opus {
	return &Opus{}
}

// Type returns TypeOpus.
func (c *Opus) Type() Type { return TypeOpus }

// Configure accepts the Opus sample rates and a mono or stereo layout.
// SBC-specific fields are ignored.
func (c *Opus) Configure(cfg Configuration) error {
	switch cfg.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("%w: opus sample rate %d", ErrInvalidConfiguration, cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return fmt.Errorf("%w: channel count %d", ErrInvalidConfiguration, cfg.Channels)
	}

	c.cfg = cfg
	c.decodedLen = cfg.SampleRate / opusFrameDivisor * cfg.Channels * 2
	c.configured = true

	logrus.WithFields(logrus.Fields{
		"function":      "Opus.Configure",
		"sample_rate":   cfg.SampleRate,
		"channels":      cfg.Channels,
		"bandwidth":     BandwidthForSampleRate(cfg.SampleRate).String(),
		"decoded_bytes": c.decodedLen,
	}).Info("Opus codec configured")
	return nil
}

// Configuration returns the active configuration.
func (c *Opus) Configuration() Configuration { return c.cfg }

// Begin creates a fresh decoder.
func (c *Opus) Begin() error {
	if !c.configured {
		return ErrNotConfigured
	}
	decoder := opus.NewDecoder()
	c.decoder = &decoder
	return nil
}

// Encode is not supported.
func (c *Opus) Encode(raw []byte) ([]byte, error) {
	return nil, ErrEncodeUnsupported
}

// Decode expands one Opus frame into a 20 ms PCM block.
func (c *Opus) Decode(frame []byte) ([]byte, error) {
	if !c.configured || c.decoder == nil {
		return nil, ErrNotConfigured
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty opus frame", ErrFrameSize)
	}

	out := make([]byte, c.decodedLen)
	bandwidth, isStereo, err := c.decoder.Decode(frame, out)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Opus.Decode",
			"error":    err.Error(),
		}).Error("Opus decode failed")
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Opus.Decode",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
		"in_bytes":  len(frame),
	}).Debug("Opus frame decoded")
	return out, nil
}

// Capabilities returns an empty vendor element.
func (c *Opus) Capabilities() []byte { return []byte{} }

// EncodedFrameBytes returns the largest Opus frame the sink sizes for.
func (c *Opus) EncodedFrameBytes() int {
	if !c.configured {
		return 0
	}
	return maxOpusFrameBytes
}

// DecodedFrameBytes returns the 20 ms PCM block length.
func (c *Opus) DecodedFrameBytes() int { return c.decodedLen }

// Close drops the decoder.
func (c *Opus) Close() error {
	c.decoder = nil
	c.configured = false
	c.decodedLen = 0
	return nil
}

// maxOpusFrameBytes bounds a 20 ms frame at 510 kbit/s.
const maxOpusFrameBytes = 1275

// BandwidthForSampleRate maps a sample rate to the Opus audio bandwidth.
func BandwidthForSampleRate(sampleRate int) opus.Bandwidth {
	switch sampleRate {
	case 8000:
		return opus.BandwidthNarrowband
	case 12000:
		return opus.BandwidthMediumband
	case 16000:
		return opus.BandwidthWideband
	case 24000:
		return opus.BandwidthSuperwideband
	default:
		return opus.BandwidthFullband
	}
}
