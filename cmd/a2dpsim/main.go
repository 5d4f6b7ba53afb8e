// Package main provides a command-line loopback simulator for the A2DP
// media pipeline.
//
// It streams a WAV file or a generated tone through a source session, an
// in-memory transport and a sink session, and writes what the sink plays to
// a WAV file. Prometheus metrics can be served while the stream runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/a2dpstream/audio"
	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/config"
	"github.com/opd-ai/a2dpstream/simulator"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CLI flags
type cliFlags struct {
	configPath string
	input      string
	resample   bool
	output     string
	duration   time.Duration
	logLevel   string
	metrics    string
	help       bool
}

// parseFlags parses command-line flags.
func parseFlags() *cliFlags {
	f := &cliFlags{}
	flag.StringVar(&f.configPath, "config", "", "YAML configuration file (default: built-in defaults)")
	flag.StringVar(&f.input, "input", "", "WAV file to stream (overrides simulator.input)")
	flag.BoolVar(&f.resample, "resample", false, "Convert the input file to codec.sample_rate")
	flag.StringVar(&f.output, "output", "", "WAV file to write (overrides simulator.output)")
	flag.DurationVar(&f.duration, "duration", 0, "Length of the generated tone (overrides simulator.duration)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (overrides log.level)")
	flag.StringVar(&f.metrics, "metrics", "", "Serve Prometheus metrics on this address (enables metrics)")
	flag.BoolVar(&f.help, "help", false, "Show help message")
	flag.Parse()
	return f
}

// printUsage prints the usage information.
func printUsage() {
	fmt.Println("A2DP Loopback Simulator")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Println("Streams audio through a source session, an in-memory transport and a")
	fmt.Println("sink session, and records what the sink plays.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Stream a 5 second 440 Hz tone to out.wav\n")
	fmt.Printf("  %s\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Stream a file with metrics on :9464\n")
	fmt.Printf("  %s -input music.wav -output played.wav -metrics :9464\n", os.Args[0])
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func loadConfig(f *cliFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}

	if f.input != "" {
		cfg.Simulator.Input = f.input
	}
	if f.resample {
		cfg.Simulator.Resample = true
	}
	if f.output != "" {
		cfg.Simulator.Output = f.output
	}
	if f.duration > 0 {
		cfg.Simulator.Duration = f.duration
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = f.metrics
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openInput opens the WAV input or builds the tone generator. A WAV file
// dictates the stream's sample rate and channel count.
func openInput(cfg *config.Config) (audio.Reader, func() error, error) {
	if cfg.Simulator.Input == "" {
		format := audio.Format{SampleRate: cfg.Codec.SampleRate, Channels: 1}
		if mode, err := config.ParseChannelMode(cfg.Codec.ChannelMode); err == nil {
			format.Channels = mode.Channels()
		}
		tone := audio.NewToneInput(format, cfg.Simulator.ToneHz, 0.5)
		if d := cfg.Simulator.Duration; d > 0 {
			tone.Limit = int(int64(format.SampleRate)*int64(d)/int64(time.Second)) * format.FrameBytes()
		}
		return tone, func() error { return nil }, nil
	}

	file, err := os.Open(cfg.Simulator.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	in, err := audio.NewWAVInput(file)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("read input %q: %w", cfg.Simulator.Input, err)
	}

	format := in.Format()
	switch {
	case format.Channels == 1:
		cfg.Codec.ChannelMode = codec.ChannelModeMono.String()
	case cfg.Codec.ChannelMode == codec.ChannelModeMono.String():
		cfg.Codec.ChannelMode = codec.ChannelModeJointStereo.String()
	}
	if !cfg.Simulator.Resample || format.SampleRate == cfg.Codec.SampleRate {
		cfg.Codec.SampleRate = format.SampleRate
		return in, file.Close, nil
	}

	resampled, err := audio.NewResamplingReader(in, format,
		audio.Format{SampleRate: cfg.Codec.SampleRate, Channels: format.Channels})
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("resample input: %w", err)
	}
	return resampled, file.Close, nil
}

// serveMetrics serves /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logrus.WithFields(logrus.Fields{
		"function": "serveMetrics",
		"listen":   addr,
	}).Info("Serving metrics")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func run(cfg *config.Config) (simulator.Result, error) {
	in, closeInput, err := openInput(cfg)
	if err != nil {
		return simulator.Result{}, err
	}
	defer closeInput()

	stream, err := cfg.Codec.Configuration()
	if err != nil {
		return simulator.Result{}, err
	}
	outFile, err := os.Create(cfg.Simulator.Output)
	if err != nil {
		return simulator.Result{}, fmt.Errorf("create output: %w", err)
	}
	defer outFile.Close()
	out := audio.NewWAVOutput(outFile, audio.Format{SampleRate: stream.SampleRate, Channels: stream.Channels})

	sim, err := simulator.New(cfg, in, out)
	if err != nil {
		return simulator.Result{}, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res simulator.Result
	g, gctx := errgroup.WithContext(ctx)
	streamCtx, streamDone := context.WithCancel(gctx)
	g.Go(func() error {
		defer streamDone()
		var runErr error
		res, runErr = sim.Run(gctx)
		return runErr
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(streamCtx, cfg.Metrics.Listen)
		})
	}

	err = g.Wait()
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return res, err
}

func main() {
	flags := parseFlags()
	if flags.help {
		printUsage()
		os.Exit(0)
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}
	if err := config.ApplyLogging(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	res, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Simulation complete")
	fmt.Printf("  Duration:        %s\n", res.Duration.Round(time.Millisecond))
	fmt.Printf("  PCM captured:    %d bytes\n", res.Fed)
	fmt.Printf("  Frames sent:     %d in %d packets\n", res.Source.FramesSent, res.Source.Sends)
	fmt.Printf("  Send failures:   %d\n", res.Source.SendFailures)
	fmt.Printf("  Frames played:   %d\n", res.Sink.FramesDecoded)
	fmt.Printf("  Underruns:       %d\n", res.Sink.Underruns)
	fmt.Printf("  Overruns:        %d\n", res.Sink.Overruns)
	fmt.Printf("  Malformed:       %d\n", res.Sink.Malformed)
	fmt.Printf("  Output:          %s\n", cfg.Simulator.Output)
}
