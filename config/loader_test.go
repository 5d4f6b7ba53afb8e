package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/a2dpstream/codec"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultIsValid checks that the built-in defaults pass validation.
func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))

	cfg, err := Default().Codec.Configuration()
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, codec.ChannelModeMono, cfg.ChannelMode)
	assert.Equal(t, 128, cfg.SamplesPerFrame())
}

// TestLoadFromReaderOverridesDefaults checks that YAML values replace the
// defaults.
func TestLoadFromReaderOverridesDefaults(t *testing.T) {
	const doc = `
log:
  level: debug
codec:
  type: sbc
  sample_rate: 48000
  channel_mode: joint_stereo
  allocation: snr
sink:
  threshold: 10
  rebuffer_on_underrun: true
  playback_period: 20ms
source:
  storage_size: 2048
simulator:
  duration: 2s
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "absent fields keep defaults")
	assert.Equal(t, 10, cfg.Sink.Threshold)
	assert.True(t, cfg.Sink.RebufferOnUnderrun)
	assert.Equal(t, 20*time.Millisecond, cfg.Sink.PlaybackPeriod)
	assert.Equal(t, 10*time.Millisecond, cfg.Source.Period)
	assert.Equal(t, 2048, cfg.Source.StorageSize)
	assert.Equal(t, 2*time.Second, cfg.Simulator.Duration)

	stream, err := cfg.Codec.Configuration()
	require.NoError(t, err)
	assert.Equal(t, 48000, stream.SampleRate)
	assert.Equal(t, 2, stream.Channels)
	assert.Equal(t, codec.ChannelModeJointStereo, stream.ChannelMode)
	assert.Equal(t, codec.AllocationSNR, stream.AllocationMethod)
}

// TestLoadFromReaderEmptyDocument verifies an empty document yields the
// defaults.
func TestLoadFromReaderEmptyDocument(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

// TestLoadFromReaderRejectsUnknownFields ensures misspelled keys are
// reported.
func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("sink:\n  thresold: 3\n"))
	assert.Error(t, err)
}

// TestValidateJoinsFailures checks that every validation failure is reported
// at once.
func TestValidateJoinsFailures(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Codec.ChannelMode = "surround"
	cfg.Sink.Threshold = 0
	cfg.Sink.Volume = 101
	cfg.Source.StorageSize = 10
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = ""
	cfg.Simulator.MTU = 12

	err := Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{
		"log.level",
		"codec:",
		"sink.threshold",
		"sink.volume",
		"source.storage_size",
		"metrics.listen",
		"simulator.mtu",
	} {
		assert.Contains(t, err.Error(), want)
	}
	assert.ErrorIs(t, err, codec.ErrInvalidConfiguration)
}

// TestLoadFile loads a configuration from disk.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a2dp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("codec:\n  type: opus\n  sample_rate: 48000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "opus", cfg.Codec.Type)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestApplyLogging applies the log level and format to logrus.
func TestApplyLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	require.NoError(t, ApplyLogging(LogConfig{Level: "warn", Format: "json"}))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	assert.Error(t, ApplyLogging(LogConfig{Level: "nope"}))
}

// TestExampleFileLoads keeps the shipped example configuration loadable.
func TestExampleFileLoads(t *testing.T) {
	cfg, err := Load("a2dpsim.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
