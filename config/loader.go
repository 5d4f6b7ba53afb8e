package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/limits"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// Config. Absent fields keep their Default values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level %q is invalid: %w", cfg.Log.Level, err))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	if _, err := codec.ParseType(cfg.Codec.Type); err != nil {
		errs = append(errs, fmt.Errorf("codec.type: %w", err))
	}
	if _, err := cfg.Codec.Configuration(); err != nil {
		errs = append(errs, fmt.Errorf("codec: %w", err))
	}

	if cfg.Sink.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("sink.threshold %d must be positive", cfg.Sink.Threshold))
	}
	if frames := limits.OptimalFramesMax + limits.AdditionalFrames; cfg.Sink.Threshold > frames {
		errs = append(errs, fmt.Errorf("sink.threshold %d exceeds buffer capacity of %d frames", cfg.Sink.Threshold, frames))
	}
	if cfg.Sink.PlaybackPeriod <= 0 {
		errs = append(errs, fmt.Errorf("sink.playback_period %s must be positive", cfg.Sink.PlaybackPeriod))
	}
	if cfg.Sink.Volume < 0 || cfg.Sink.Volume > 100 {
		errs = append(errs, fmt.Errorf("sink.volume %d is out of range [0, 100]", cfg.Sink.Volume))
	}

	if cfg.Source.Period <= 0 {
		errs = append(errs, fmt.Errorf("source.period %s must be positive", cfg.Source.Period))
	}
	if cfg.Source.StorageSize < limits.MaxFrameSize {
		errs = append(errs, fmt.Errorf("source.storage_size %d cannot hold a %d byte frame", cfg.Source.StorageSize, limits.MaxFrameSize))
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}

	if cfg.Simulator.MTU <= limits.MediaHeaderSize+limits.SBCHeaderSize {
		errs = append(errs, fmt.Errorf("simulator.mtu %d cannot carry a media packet", cfg.Simulator.MTU))
	}
	if cfg.Simulator.Input == "" && cfg.Simulator.ToneHz <= 0 {
		errs = append(errs, fmt.Errorf("simulator.tone_hz %.1f must be positive without an input file", cfg.Simulator.ToneHz))
	}
	if cfg.Simulator.Duration < 0 {
		errs = append(errs, fmt.Errorf("simulator.duration %s must not be negative", cfg.Simulator.Duration))
	}

	return errors.Join(errs...)
}

// ApplyLogging configures the standard logrus logger from l.
func ApplyLogging(l LogConfig) error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}
	logrus.SetLevel(level)

	if strings.EqualFold(l.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
