package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opd-ai/a2dpstream/audio"
	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/config"
	"github.com/opd-ai/a2dpstream/event"
	"github.com/opd-ai/a2dpstream/eventloop"
	"github.com/opd-ai/a2dpstream/sink"
	"github.com/opd-ai/a2dpstream/source"
	"github.com/opd-ai/a2dpstream/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// loopQueueSize bounds the tasks waiting on the simulator loop.
const loopQueueSize = 1024

var (
	// ErrEncoderUnavailable indicates a codec that cannot encode without an engine
	ErrEncoderUnavailable = errors.New("codec cannot encode in the simulator")

	// ErrFormatMismatch indicates input audio that does not match the stream configuration
	ErrFormatMismatch = errors.New("input format does not match stream configuration")

	// ErrNegotiationFailed indicates a stream configuration the source cannot propose
	ErrNegotiationFailed = errors.New("configuration negotiation failed")
)

// Result summarizes a finished run.
type Result struct {
	Duration  time.Duration
	Fed       int
	Source    source.PacerStats
	Sink      sink.Stats
	Transport transport.LoopbackStats
	Events    int
}

// Simulator owns both ends of a loopback stream.
type Simulator struct {
	cfg    *config.Config
	stream codec.Configuration
	format audio.Format

	loop *eventloop.Loop
	bus  *event.Bus
	link *transport.Loopback
	src  *source.Session
	snk  *sink.Session

	element [codec.CodecInfoSize]byte

	in      audio.Reader
	capture *audio.MemoryInput
	fed     int
	events  int
}

// New builds the pipeline described by cfg. in supplies PCM in the stream's
// format and out receives the played PCM.
func New(cfg *config.Config, in audio.Reader, out audio.Writer) (*Simulator, error) {
	stream, err := cfg.Codec.Configuration()
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	codecType, err := codec.ParseType(cfg.Codec.Type)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	if codecType == codec.TypeOpus {
		return nil, fmt.Errorf("simulator: %w: %s", ErrEncoderUnavailable, codecType)
	}
	if f, ok := in.(interface{ Format() audio.Format }); ok {
		if got := f.Format(); got.SampleRate != stream.SampleRate || got.Channels != stream.Channels {
			return nil, fmt.Errorf("simulator: %w: input %d Hz x%d, stream %d Hz x%d",
				ErrFormatMismatch, got.SampleRate, got.Channels, stream.SampleRate, stream.Channels)
		}
	}

	s := &Simulator{
		cfg:     cfg,
		stream:  stream,
		format:  audio.Format{SampleRate: stream.SampleRate, Channels: stream.Channels},
		loop:    eventloop.New(loopQueueSize),
		bus:     event.NewBus(),
		in:      in,
		capture: audio.NewMemoryInput(nil),
	}
	s.bus.Subscribe(s.countEvent)
	s.bus.Subscribe(LogEvent)

	s.link, err = transport.NewLoopback(s.loop, transport.LoopbackConfig{MTU: cfg.Simulator.MTU})
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	srcCodec, err := codec.New(codecType, nil)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	s.src, err = source.NewSession(source.Config{
		Codec:       srcCodec,
		Input:       s.capture,
		Sender:      s.link,
		Scheduler:   s.loop,
		Bus:         s.bus,
		Period:      cfg.Source.Period,
		StorageSize: cfg.Source.StorageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	if s.element, err = s.propose(); err != nil {
		return nil, err
	}

	snkCodec, err := codec.New(codecType, nil)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	var sched eventloop.Scheduler
	if !cfg.Sink.FreeRunning {
		sched = s.loop
	}
	s.snk, err = sink.NewSession(sink.Config{
		Codec:              snkCodec,
		Output:             out,
		Bus:                s.bus,
		Scheduler:          sched,
		PlaybackPeriod:     cfg.Sink.PlaybackPeriod,
		Threshold:          cfg.Sink.Threshold,
		RebufferOnUnderrun: cfg.Sink.RebufferOnUnderrun,
		Volume:             audio.NewVolumeStage(cfg.Sink.Volume),
	})
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	s.link.RegisterSink(s.snk)

	return s, nil
}

// Bus returns the event bus both sessions report on.
func (s *Simulator) Bus() *event.Bus { return s.bus }

// Run streams until the input is exhausted and the sink has played what it
// can, or until ctx is done. Both sessions are closed before Run returns.
func (s *Simulator) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logrus.WithFields(logrus.Fields{
		"function":    "Simulator.Run",
		"codec":       s.cfg.Codec.Type,
		"sample_rate": s.stream.SampleRate,
		"channels":    s.stream.Channels,
		"mtu":         s.cfg.Simulator.MTU,
	}).Info("Starting loopback stream")

	startErr := make(chan error, 1)
	if err := s.loop.Post(func() { startErr <- s.start() }); err != nil {
		return Result{}, fmt.Errorf("simulator: %w", err)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return s.loop.Run(gctx)
	})
	g.Go(func() error {
		select {
		case err := <-startErr:
			if err != nil {
				return err
			}
		case <-gctx.Done():
			return nil
		}
		return s.feed(gctx)
	})
	g.Go(func() error {
		s.watch(gctx, cancel)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	// The loop has stopped; the sessions are only touched from here on.
	res := s.result(started)
	closeErr := errors.Join(s.src.Close(), s.snk.Close(), s.link.Close())
	if err == nil {
		err = closeErr
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Simulator.Run",
		"duration":      res.Duration.String(),
		"frames_sent":   res.Source.FramesSent,
		"frames_played": res.Sink.FramesDecoded,
		"underruns":     res.Sink.Underruns,
		"overruns":      res.Sink.Overruns,
	}).Info("Loopback stream finished")

	return res, err
}

// propose builds the configuration element the source sends to the sink and
// checks it against the source's advertised capabilities.
func (s *Simulator) propose() ([codec.CodecInfoSize]byte, error) {
	caps := s.src.Capabilities()
	element, err := codec.EncodeCodecInfo(s.stream)
	if err != nil {
		return element, fmt.Errorf("simulator: %w: %w", ErrNegotiationFailed, err)
	}
	if !codec.WithinCapabilities(caps, element[:]) {
		return element, fmt.Errorf("simulator: %w: element % x outside capabilities % x",
			ErrNegotiationFailed, element[:], caps)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Simulator.propose",
		"capabilities": fmt.Sprintf("% x", caps),
		"element":      fmt.Sprintf("% x", element[:]),
	}).Debug("Proposed stream configuration")
	return element, nil
}

// start configures both ends from the proposed element, the sink first as
// the remote device would accept it before the source commits.
func (s *Simulator) start() error {
	if err := s.snk.OnWireConfiguration(s.element[:]); err != nil {
		return fmt.Errorf("simulator: configure sink: %w", err)
	}
	if err := s.snk.Start(); err != nil {
		return fmt.Errorf("simulator: start sink: %w", err)
	}
	if err := s.src.OnWireConfiguration(s.element[:]); err != nil {
		return fmt.Errorf("simulator: configure source: %w", err)
	}
	if err := s.src.Start(); err != nil {
		return fmt.Errorf("simulator: start source: %w", err)
	}
	return nil
}

// feed reads one period of PCM per tick from the input and appends it to
// the capture buffer on the loop.
func (s *Simulator) feed(ctx context.Context) error {
	period := s.cfg.Source.Period
	samples := int(int64(s.stream.SampleRate) * int64(period) / int64(time.Second))
	buf := make([]byte, max(1, samples)*s.format.FrameBytes())

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := s.in.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if perr := s.loop.Post(func() {
				s.capture.Append(chunk)
				s.fed += len(chunk)
			}); perr != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Simulator.feed",
					"bytes":    n,
					"error":    perr.Error(),
				}).Warn("Dropped captured audio")
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			logrus.WithFields(logrus.Fields{
				"function": "Simulator.feed",
			}).Info("Input exhausted")
			if perr := s.loop.Post(func() { s.capture.EOF = true }); perr != nil && !errors.Is(perr, eventloop.ErrLoopStopped) {
				return fmt.Errorf("simulator: %w", perr)
			}
			return nil
		default:
			return fmt.Errorf("simulator: read input: %w", err)
		}
	}
}

// watch ends the run once the source has sent everything and the sink has
// nothing more it can play for two consecutive checks.
func (s *Simulator) watch(ctx context.Context, done context.CancelFunc) {
	ticker := time.NewTicker(s.cfg.Source.Period)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		finished := make(chan bool, 1)
		if err := s.loop.Post(func() { finished <- s.drained() }); err != nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case ok := <-finished:
			if !ok {
				idle = 0
				continue
			}
			if idle++; idle >= 2 {
				done()
				return
			}
		}
	}
}

func (s *Simulator) drained() bool {
	pacer := s.src.Pacer()
	if pacer == nil || !pacer.Exhausted() {
		return false
	}
	if s.snk.Available() == 0 {
		return true
	}
	if s.snk.PlaybackState() == sink.StateBuffering {
		logrus.WithFields(logrus.Fields{
			"function":  "Simulator.drained",
			"buffered":  s.snk.FramesBuffered(),
			"threshold": s.cfg.Sink.Threshold,
		}).Warn("Stream ended below the playback threshold")
		return true
	}
	return false
}

func (s *Simulator) result(started time.Time) Result {
	res := Result{
		Duration:  time.Since(started),
		Fed:       s.fed,
		Sink:      s.snk.Stats(),
		Transport: s.link.Stats(),
		Events:    s.events,
	}
	if pacer := s.src.Pacer(); pacer != nil {
		res.Source = pacer.Stats()
	}
	return res
}

func (s *Simulator) countEvent(event.Event) {
	s.events++
}
