// Package config holds the YAML configuration of the A2DP pipeline and its
// simulator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/limits"
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Codec     CodecConfig     `yaml:"codec"`
	Sink      SinkConfig      `yaml:"sink"`
	Source    SourceConfig    `yaml:"source"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// LogConfig configures logrus.
type LogConfig struct {
	// Level is a logrus level name: trace, debug, info, warn, error
	Level string `yaml:"level"`
	// Format is "text" or "json"
	Format string `yaml:"format"`
}

// CodecConfig describes the stream configuration.
type CodecConfig struct {
	// Type is sbc, pcm or opus
	Type        string `yaml:"type"`
	SampleRate  int    `yaml:"sample_rate"`
	ChannelMode string `yaml:"channel_mode"`
	BlockLength int    `yaml:"block_length"`
	Subbands    int    `yaml:"subbands"`
	MinBitpool  int    `yaml:"min_bitpool"`
	MaxBitpool  int    `yaml:"max_bitpool"`
	Allocation  string `yaml:"allocation"`
}

// SinkConfig tunes the receive pipeline.
type SinkConfig struct {
	// Threshold is the buffered frame count that starts playback
	Threshold int `yaml:"threshold"`
	// PlaybackPeriod is the playback clock tick
	PlaybackPeriod time.Duration `yaml:"playback_period"`
	// FreeRunning drains frames on arrival instead of on the playback clock
	FreeRunning bool `yaml:"free_running"`
	// RebufferOnUnderrun re-enters BUFFERING when playback runs dry
	RebufferOnUnderrun bool `yaml:"rebuffer_on_underrun"`
	// Volume is the initial output level in percent
	Volume int `yaml:"volume"`
}

// SourceConfig tunes the transmit pipeline.
type SourceConfig struct {
	Period      time.Duration `yaml:"period"`
	StorageSize int           `yaml:"storage_size"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SimulatorConfig configures the loopback simulator.
type SimulatorConfig struct {
	// Input is a WAV file to stream; a generated tone when empty
	Input string `yaml:"input"`
	// Resample converts the input to codec.sample_rate instead of adopting
	// the file's rate
	Resample bool `yaml:"resample"`
	// Output is the WAV file the sink writes
	Output string `yaml:"output"`
	// ToneHz is the generated tone frequency
	ToneHz float64 `yaml:"tone_hz"`
	// Duration bounds the generated tone; zero streams until interrupted
	Duration time.Duration `yaml:"duration"`
	// MTU is the loopback transport MTU
	MTU int `yaml:"mtu"`
}

// Default returns the configuration used when a field is absent. The codec
// section describes 16 kHz mono PCM, which the simulator can carry without
// an SBC engine.
func Default() *Config {
	d := codec.DefaultConfiguration()
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Codec: CodecConfig{
			Type:        "pcm",
			SampleRate:  16000,
			ChannelMode: codec.ChannelModeMono.String(),
			BlockLength: d.BlockLength,
			Subbands:    d.Subbands,
			MinBitpool:  d.MinBitpool,
			MaxBitpool:  d.MaxBitpool,
			Allocation:  d.AllocationMethod.String(),
		},
		Sink: SinkConfig{
			Threshold:      limits.OptimalFramesMin,
			PlaybackPeriod: limits.AudioTimeout,
			Volume:         100,
		},
		Source: SourceConfig{
			Period:      limits.AudioTimeout,
			StorageSize: limits.StorageSize,
		},
		Metrics: MetricsConfig{Listen: ":9464"},
		Simulator: SimulatorConfig{
			Output:   "out.wav",
			ToneHz:   440,
			Duration: 5 * time.Second,
			MTU:      895,
		},
	}
}

// Configuration converts the codec section into a stream configuration.
func (c CodecConfig) Configuration() (codec.Configuration, error) {
	mode, err := ParseChannelMode(c.ChannelMode)
	if err != nil {
		return codec.Configuration{}, err
	}
	alloc, err := ParseAllocation(c.Allocation)
	if err != nil {
		return codec.Configuration{}, err
	}
	cfg := codec.Configuration{
		SampleRate:       c.SampleRate,
		Channels:         mode.Channels(),
		BlockLength:      c.BlockLength,
		Subbands:         c.Subbands,
		MinBitpool:       c.MinBitpool,
		MaxBitpool:       c.MaxBitpool,
		AllocationMethod: alloc,
		ChannelMode:      mode,
	}
	if err := cfg.Validate(); err != nil {
		return codec.Configuration{}, err
	}
	return cfg, nil
}

// ParseChannelMode maps a channel mode name to its codec value.
func ParseChannelMode(name string) (codec.ChannelMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mono":
		return codec.ChannelModeMono, nil
	case "dual", "dual_channel":
		return codec.ChannelModeDualChannel, nil
	case "stereo":
		return codec.ChannelModeStereo, nil
	case "joint", "joint_stereo":
		return codec.ChannelModeJointStereo, nil
	default:
		return 0, fmt.Errorf("%w: channel mode %q", codec.ErrInvalidConfiguration, name)
	}
}

// ParseAllocation maps an allocation method name to its codec value.
func ParseAllocation(name string) (codec.AllocationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "loudness":
		return codec.AllocationLoudness, nil
	case "snr":
		return codec.AllocationSNR, nil
	default:
		return 0, fmt.Errorf("%w: allocation method %q", codec.ErrInvalidConfiguration, name)
	}
}
