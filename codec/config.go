package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ChannelMode is the codec's channel mode enumeration.
type ChannelMode uint8

// Channel modes in codec order.
const (
	ChannelModeMono ChannelMode = iota
	ChannelModeDualChannel
	ChannelModeStereo
	ChannelModeJointStereo
)

// String returns the channel mode name.
func (m ChannelMode) String() string {
	switch m {
	case ChannelModeMono:
		return "mono"
	case ChannelModeDualChannel:
		return "dual_channel"
	case ChannelModeStereo:
		return "stereo"
	case ChannelModeJointStereo:
		return "joint_stereo"
	default:
		return fmt.Sprintf("channel_mode(%d)", uint8(m))
	}
}

// Channels returns the number of audio channels the mode carries.
func (m ChannelMode) Channels() int {
	if m == ChannelModeMono {
		return 1
	}
	return 2
}

// AllocationMethod is the codec's bit allocation enumeration.
type AllocationMethod uint8

// Allocation methods in codec order.
const (
	AllocationLoudness AllocationMethod = iota
	AllocationSNR
)

// String returns the allocation method name.
func (a AllocationMethod) String() string {
	switch a {
	case AllocationLoudness:
		return "loudness"
	case AllocationSNR:
		return "snr"
	default:
		return fmt.Sprintf("allocation(%d)", uint8(a))
	}
}

// Configuration describes one stream. It is immutable for the lifetime of the
// stream; a change means tearing the pipeline down and building a new one.
type Configuration struct {
	SampleRate       int
	Channels         int
	BlockLength      int
	Subbands         int
	MinBitpool       int
	MaxBitpool       int
	AllocationMethod AllocationMethod
	ChannelMode      ChannelMode
}

// DefaultConfiguration returns the 44.1 kHz joint stereo setup most A2DP
// sources negotiate.
func DefaultConfiguration() Configuration {
	return Configuration{
		SampleRate:       44100,
		Channels:         2,
		BlockLength:      16,
		Subbands:         8,
		MinBitpool:       2,
		MaxBitpool:       53,
		AllocationMethod: AllocationLoudness,
		ChannelMode:      ChannelModeJointStereo,
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Configuration) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfiguration, c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("%w: channel count %d", ErrInvalidConfiguration, c.Channels)
	}
	if c.ChannelMode > ChannelModeJointStereo {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, c.ChannelMode)
	}
	if c.ChannelMode.Channels() != c.Channels {
		return fmt.Errorf("%w: %s carries %d channels, configuration has %d",
			ErrInvalidConfiguration, c.ChannelMode, c.ChannelMode.Channels(), c.Channels)
	}
	switch c.BlockLength {
	case 4, 8, 12, 16:
	default:
		return fmt.Errorf("%w: block length %d", ErrInvalidConfiguration, c.BlockLength)
	}
	if c.Subbands != 4 && c.Subbands != 8 {
		return fmt.Errorf("%w: subbands %d", ErrInvalidConfiguration, c.Subbands)
	}
	if c.AllocationMethod > AllocationSNR {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, c.AllocationMethod)
	}
	if c.MinBitpool < 2 || c.MaxBitpool > 250 || c.MinBitpool > c.MaxBitpool {
		return fmt.Errorf("%w: bitpool range [%d, %d]", ErrInvalidConfiguration, c.MinBitpool, c.MaxBitpool)
	}
	return nil
}

// Equal reports whether c and o describe the same stream.
func (c Configuration) Equal(o Configuration) bool {
	return c == o
}

// SamplesPerFrame returns the PCM samples per channel in one frame.
func (c Configuration) SamplesPerFrame() int {
	return c.BlockLength * c.Subbands
}

// Fields returns the configuration as log fields.
func (c Configuration) Fields() logrus.Fields {
	return logrus.Fields{
		"sample_rate":       c.SampleRate,
		"channels":          c.Channels,
		"channel_mode":      c.ChannelMode.String(),
		"block_length":      c.BlockLength,
		"subbands":          c.Subbands,
		"allocation_method": c.AllocationMethod.String(),
		"bitpool_min":       c.MinBitpool,
		"bitpool_max":       c.MaxBitpool,
	}
}
