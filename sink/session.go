package sink

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/a2dpstream/audio"
	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/event"
	"github.com/opd-ai/a2dpstream/eventloop"
	"github.com/opd-ai/a2dpstream/limits"
	"github.com/opd-ai/a2dpstream/metrics"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotOpen indicates media or control on a closed pipeline
	ErrNotOpen = errors.New("sink pipeline not open")

	// ErrInvalidState indicates a stream transition not allowed from the current state
	ErrInvalidState = errors.New("invalid stream state transition")

	// ErrPaused indicates media dropped because the stream is paused
	ErrPaused = errors.New("sink stream paused")

	// ErrMissingCodec indicates a Config without a codec
	ErrMissingCodec = errors.New("sink requires a codec")

	// ErrMissingOutput indicates a Config without an audio output
	ErrMissingOutput = errors.New("sink requires an audio output")
)

// StreamState is the sink stream lifecycle.
type StreamState uint8

// Stream states.
const (
	StreamClosed StreamState = iota
	StreamOpen
	StreamPlaying
	StreamPaused
)

// String returns the state name.
func (s StreamState) String() string {
	switch s {
	case StreamClosed:
		return "Closed"
	case StreamOpen:
		return "Open"
	case StreamPlaying:
		return "Playing"
	case StreamPaused:
		return "Paused"
	default:
		return fmt.Sprintf("StreamState(%d)", uint8(s))
	}
}

// Config configures a sink Session.
type Config struct {
	// ID names the session in logs and events; a UUID when empty
	ID string
	// Codec decodes buffered frames. Required.
	Codec codec.Codec
	// Output receives decoded PCM. Required.
	Output audio.Writer
	// Bus receives events; nil drops them
	Bus *event.Bus
	// Scheduler drives the playback clock; nil means free-running
	Scheduler eventloop.Scheduler
	// PlaybackPeriod is the playback tick; limits.AudioTimeout when zero
	PlaybackPeriod time.Duration
	// Threshold is the frame count that starts playback; limits.OptimalFramesMin when zero
	Threshold int
	// RebufferOnUnderrun re-enters BUFFERING when playback runs dry
	RebufferOnUnderrun bool
	// Volume is applied to decoded PCM; full volume when nil
	Volume *audio.VolumeStage
}

// Stats counts sink activity over the session's life.
type Stats struct {
	PacketsAccepted int
	FramesBuffered  int
	FramesDecoded   int
	Malformed       int
	Overruns        int
	DroppedPaused   int
	DecodeErrors    int
	Underruns       int
}

// Session is one receive stream. It implements transport.SinkHandler.
type Session struct {
	id        string
	codec     codec.Codec
	output    audio.Writer
	bus       *event.Bus
	sched     eventloop.Scheduler
	period    time.Duration
	threshold int
	rebuffer  bool
	volume    *audio.VolumeStage

	state  StreamState
	cfg    codec.Configuration
	jitter *JitterBuffer
	gate   *Gate
	timer  eventloop.Timer
	frame  []byte

	// playback credit in sample-nanoseconds
	credit   int64
	starving bool
	stats    Stats
}

// NewSession creates a closed sink session. Missing optional settings fall
// back to the 10ms playback tick, the minimum optimal frame threshold and
// full volume. A nil Scheduler selects free-running mode, where frames are
// decoded as soon as they arrive.
//
// Parameters:
//   - cfg: collaborators and playback settings; Codec and Output are required
//
// Returns:
//   - *Session: the new session in the Closed state
//   - error: ErrMissingCodec or ErrMissingOutput when a required collaborator is nil
func NewSession(cfg Config) (*Session, error) {
	if cfg.Codec == nil {
		return nil, ErrMissingCodec
	}
	if cfg.Output == nil {
		return nil, ErrMissingOutput
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.PlaybackPeriod <= 0 {
		cfg.PlaybackPeriod = limits.AudioTimeout
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = limits.OptimalFramesMin
	}
	if cfg.Volume == nil {
		cfg.Volume = audio.NewVolumeStage(audio.MaxVolume)
	}

	s := &Session{
		id:        cfg.ID,
		codec:     cfg.Codec,
		output:    cfg.Output,
		bus:       cfg.Bus,
		sched:     cfg.Scheduler,
		period:    cfg.PlaybackPeriod,
		threshold: cfg.Threshold,
		rebuffer:  cfg.RebufferOnUnderrun,
		volume:    cfg.Volume,
	}
	s.gate = NewGate(s.threshold, s.rebuffer, s.onGateChange)

	logrus.WithFields(logrus.Fields{
		"function":      "sink.NewSession",
		"session":       s.id,
		"codec":         s.codec.Type().String(),
		"threshold":     s.threshold,
		"rebuffer":      s.rebuffer,
		"free_running":  s.sched == nil,
		"playback_tick": s.period.String(),
	}).Info("Sink session created")

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the stream state.
func (s *Session) State() StreamState { return s.state }

// PlaybackState returns the gate state.
func (s *Session) PlaybackState() PlaybackState { return s.gate.State() }

// Configuration returns the active codec configuration.
func (s *Session) Configuration() codec.Configuration { return s.cfg }

// Available returns the bytes buffered.
func (s *Session) Available() int {
	if s.jitter == nil {
		return 0
	}
	return s.jitter.Available()
}

// FramesBuffered returns the whole frames buffered.
func (s *Session) FramesBuffered() int {
	if s.jitter == nil {
		return 0
	}
	return s.jitter.FramesBuffered()
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats { return s.stats }

// Open configures the decoder for cfg and readies the jitter buffer.
func (s *Session) Open(cfg codec.Configuration) error {
	if s.state != StreamClosed {
		return s.logicFault("Session.Open", fmt.Errorf("%w: open from %s", ErrInvalidState, s.state))
	}
	if err := s.configure(cfg); err != nil {
		return err
	}

	metrics.ActiveSessions.WithLabelValues(metrics.RoleSink).Inc()
	s.setState(StreamOpen)
	return nil
}

// Start begins playback of buffered audio.
func (s *Session) Start() error {
	switch s.state {
	case StreamPlaying:
		return nil
	case StreamOpen:
	case StreamClosed:
		return s.logicFault("Session.Start", ErrNotOpen)
	default:
		return s.logicFault("Session.Start", fmt.Errorf("%w: start from %s", ErrInvalidState, s.state))
	}

	s.setState(StreamPlaying)
	s.armClock()
	s.drainFreeRunning()
	return nil
}

// Pause holds playback. Buffered frames are kept and inbound media is
// dropped until Resume.
func (s *Session) Pause() error {
	switch s.state {
	case StreamPaused:
		return nil
	case StreamPlaying:
	case StreamClosed:
		return s.logicFault("Session.Pause", ErrNotOpen)
	default:
		return s.logicFault("Session.Pause", fmt.Errorf("%w: pause from %s", ErrInvalidState, s.state))
	}

	s.disarmClock()
	s.gate.Pause()
	s.setState(StreamPaused)
	return nil
}

// Resume continues a paused stream.
func (s *Session) Resume() error {
	switch s.state {
	case StreamPlaying:
		return nil
	case StreamPaused:
	case StreamClosed:
		return s.logicFault("Session.Resume", ErrNotOpen)
	default:
		return s.logicFault("Session.Resume", fmt.Errorf("%w: resume from %s", ErrInvalidState, s.state))
	}

	s.setState(StreamPlaying)
	s.gate.Resume(s.jitter.FramesBuffered(), s.jitter.Available())
	s.armClock()
	s.drainFreeRunning()
	return nil
}

// Close tears the pipeline down. Buffered frames are discarded. Closing a
// closed session does nothing.
func (s *Session) Close() error {
	if s.state == StreamClosed {
		return nil
	}

	s.disarmClock()
	discarded := s.jitter.Available()
	s.jitter.Clear()
	s.gate.Reset()
	err := s.codec.Close()

	metrics.ActiveSessions.WithLabelValues(metrics.RoleSink).Dec()
	metrics.BufferedBytes.WithLabelValues(metrics.RoleSink).Set(0)

	logrus.WithFields(logrus.Fields{
		"function":  "Session.Close",
		"session":   s.id,
		"discarded": discarded,
		"decoded":   s.stats.FramesDecoded,
	}).Info("Sink session closed")

	s.setState(StreamClosed)
	return err
}

// OnConfigurationChanged applies a new codec configuration. On an open
// stream the buffer is flushed and the decoder rebuilt before any further
// frame is decoded; the stream state is kept. A configuration the codec
// rejects closes the session.
func (s *Session) OnConfigurationChanged(cfg codec.Configuration) error {
	if s.state == StreamClosed {
		return s.Open(cfg)
	}
	if cfg.Equal(s.cfg) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.OnConfigurationChanged",
			"session":  s.id,
		}).Debug("Configuration unchanged")
		return nil
	}

	discarded := s.jitter.Available()
	s.jitter.Clear()
	s.credit = 0
	s.starving = false
	metrics.BufferedBytes.WithLabelValues(metrics.RoleSink).Set(0)
	if s.state != StreamPaused {
		s.gate.Reset()
	}

	logrus.WithFields(cfg.Fields()).WithFields(logrus.Fields{
		"function":  "Session.OnConfigurationChanged",
		"session":   s.id,
		"discarded": discarded,
		"state":     s.state.String(),
	}).Info("Reconfiguring sink pipeline")

	if err := s.codec.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.OnConfigurationChanged",
			"session":  s.id,
			"error":    err.Error(),
		}).Warn("Decoder close failed during reconfiguration")
	}
	if err := s.configure(cfg); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// OnWireConfiguration applies a codec information element received from
// the remote device. The element is decoded, checked against the local
// codec's capabilities and then handled like OnConfigurationChanged.
//
// Parameters:
//   - element: the 4-byte configuration element selecting one option per field
//
// Returns:
//   - error: ErrUnsupportedWireValue or ErrInvalidConfiguration from the codec
//     package when the element is rejected; the session is then Closed and an
//     ErrorConfiguration event has been emitted
func (s *Session) OnWireConfiguration(element []byte) error {
	cfg, err := codec.ConfigurationFromElement(element, s.codec.Capabilities())
	if err != nil {
		err = s.configFault("Session.OnWireConfiguration", err)
		if s.state != StreamClosed {
			_ = s.Close()
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Session.OnWireConfiguration",
		"session":  s.id,
		"element":  fmt.Sprintf("% x", element),
	}).Debug("Applying remote configuration element")
	return s.OnConfigurationChanged(cfg)
}

// OnMediaPacket accepts one inbound media packet: media header, SBC header,
// frames. Malformed packets are dropped without touching the buffer.
func (s *Session) OnMediaPacket(packet []byte) {
	if s.state == StreamClosed {
		metrics.DroppedPacketsTotal.WithLabelValues(metrics.RoleSink, metrics.ReasonClosed).Inc()
		_ = s.logicFault("Session.OnMediaPacket", ErrNotOpen)
		return
	}

	mp, err := Demux(packet)
	if err != nil {
		s.malformed("Session.OnMediaPacket", len(packet), err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Session.OnMediaPacket",
		"session":  s.id,
		"sequence": mp.Header.SequenceNumber,
		"frames":   mp.SBC.Frames,
		"payload":  len(mp.Payload),
	}).Debug("Media packet received")

	_ = s.OnFrameReceived(mp.Payload, mp.SBC.Frames)
}

// OnFrameReceived buffers payload holding frameCount frames. The payload
// excludes the media and SBC headers.
func (s *Session) OnFrameReceived(payload []byte, frameCount int) error {
	switch s.state {
	case StreamClosed:
		return s.logicFault("Session.OnFrameReceived", ErrNotOpen)
	case StreamPaused:
		s.stats.DroppedPaused++
		metrics.DroppedPacketsTotal.WithLabelValues(metrics.RoleSink, metrics.ReasonPaused).Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Session.OnFrameReceived",
			"session":  s.id,
			"size":     len(payload),
		}).Debug("Dropping media while paused")
		return ErrPaused
	}

	if frameCount <= 0 {
		return s.malformed("Session.OnFrameReceived", len(payload), ErrNoFrames)
	}
	if len(payload) < frameCount {
		return s.malformed("Session.OnFrameReceived", len(payload),
			fmt.Errorf("%w: %d bytes cannot hold %d frames", limits.ErrPacketTooShort, len(payload), frameCount))
	}

	if err := s.jitter.Push(payload, frameCount); err != nil {
		s.stats.Overruns++
		metrics.DroppedPacketsTotal.WithLabelValues(metrics.RoleSink, metrics.ReasonOverrun).Inc()
		logrus.WithFields(logrus.Fields{
			"function":  "Session.OnFrameReceived",
			"session":   s.id,
			"size":      len(payload),
			"available": s.jitter.Available(),
			"free":      s.jitter.Free(),
		}).Error("Jitter buffer overrun, packet dropped")
		s.emit(event.Event{Kind: event.KindError, ErrorKind: event.ErrorTransient, Err: err})
		return err
	}

	s.stats.PacketsAccepted++
	s.stats.FramesBuffered += frameCount
	metrics.PacketsTotal.WithLabelValues(metrics.RoleSink).Inc()
	metrics.FramesTotal.WithLabelValues(metrics.RoleSink).Add(float64(frameCount))
	metrics.BufferedBytes.WithLabelValues(metrics.RoleSink).Set(float64(s.jitter.Available()))

	s.gate.OnBuffered(s.jitter.FramesBuffered())
	s.drainFreeRunning()
	return nil
}

// OnPlaybackTick advances the playback clock by one period and decodes the
// frames that period covers.
func (s *Session) OnPlaybackTick() {
	if s.state != StreamPlaying || s.gate.State() != StatePlaying {
		s.credit = 0
		return
	}

	frameCost := int64(s.samplesPerFrame()) * int64(time.Second)
	if frameCost == 0 {
		return
	}
	s.credit += int64(s.cfg.SampleRate) * s.period.Nanoseconds()

	for s.credit >= frameCost {
		if !s.jitter.HasFrame() {
			s.underrun()
			return
		}
		s.playFrame()
		s.credit -= frameCost
		s.starving = false
	}
}

// SetVolume sets the output level in percent and reports the applied value.
func (s *Session) SetVolume(percent int) int {
	applied := s.volume.SetVolume(percent)
	s.emit(event.Event{Kind: event.KindVolumeChanged, Volume: applied})
	return applied
}

// SetAbsoluteVolume sets the output level from an AVRCP absolute volume.
func (s *Session) SetAbsoluteVolume(abs uint8) int {
	return s.SetVolume(audio.AbsoluteToPercent(abs))
}

// Volume returns the output level in percent.
func (s *Session) Volume() int { return s.volume.Volume() }

// OnMetadata forwards now-playing metadata from the remote player.
func (s *Session) OnMetadata(t event.MetadataType, text string, value uint32) {
	s.emit(event.Event{Kind: event.KindMetadata, Metadata: t, Text: text, Value: value})
}

func (s *Session) configure(cfg codec.Configuration) error {
	if err := s.codec.Configure(cfg); err != nil {
		return s.configFault("Session.configure", err)
	}
	if err := s.codec.Begin(); err != nil {
		return s.configFault("Session.configure", err)
	}

	capacity := BufferCapacity(s.codec.EncodedFrameBytes())
	if s.jitter == nil || s.jitter.Capacity() != capacity {
		jitter, err := NewJitterBuffer(capacity)
		if err != nil {
			return s.configFault("Session.configure", err)
		}
		s.jitter = jitter
	}
	s.cfg = cfg

	logrus.WithFields(cfg.Fields()).WithFields(logrus.Fields{
		"function":      "Session.configure",
		"session":       s.id,
		"buffer_bytes":  capacity,
		"encoded_bytes": s.codec.EncodedFrameBytes(),
		"decoded_bytes": s.codec.DecodedFrameBytes(),
	}).Info("Sink pipeline configured")

	s.emit(event.Event{Kind: event.KindConfigured})
	return nil
}

func (s *Session) samplesPerFrame() int {
	if s.cfg.Channels > 0 && s.codec.DecodedFrameBytes() > 0 {
		return s.codec.DecodedFrameBytes() / (s.cfg.Channels * audio.BytesPerSample)
	}
	return s.cfg.SamplesPerFrame()
}

func (s *Session) drainFreeRunning() {
	if s.sched != nil || s.state != StreamPlaying || s.gate.State() != StatePlaying {
		return
	}
	for s.jitter.HasFrame() {
		s.playFrame()
	}
}

func (s *Session) playFrame() {
	size := s.jitter.FrameSize()
	if cap(s.frame) < size {
		s.frame = make([]byte, size)
	}
	s.frame = s.frame[:size]
	s.jitter.PopFrame(s.frame)
	metrics.BufferedBytes.WithLabelValues(metrics.RoleSink).Set(float64(s.jitter.Available()))

	pcm, err := s.codec.Decode(s.frame)
	if err != nil {
		s.stats.DecodeErrors++
		metrics.DecodeErrorsTotal.WithLabelValues("decode").Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Session.playFrame",
			"session":  s.id,
			"size":     size,
			"error":    err.Error(),
		}).Error("Frame decode failed, frame dropped")
		s.emit(event.Event{Kind: event.KindError, ErrorKind: event.ErrorMalformedInput, Err: err})
		return
	}
	s.stats.FramesDecoded++

	pcm, _ = s.volume.Process(pcm)
	n, err := s.output.Write(pcm)
	if err != nil || n < len(pcm) {
		fields := logrus.Fields{
			"function": "Session.playFrame",
			"session":  s.id,
			"written":  n,
			"size":     len(pcm),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		logrus.WithFields(fields).Warn("Short write to audio output")
	}
}

func (s *Session) underrun() {
	s.credit = 0
	if s.starving {
		return
	}
	s.starving = true
	s.stats.Underruns++
	metrics.UnderrunsTotal.Inc()

	rebuffered := s.gate.OnUnderrun()
	logrus.WithFields(logrus.Fields{
		"function":   "Session.underrun",
		"session":    s.id,
		"available":  s.jitter.Available(),
		"rebuffered": rebuffered,
	}).Warn("Playback underrun")
	s.emit(event.Event{Kind: event.KindUnderrun})
}

func (s *Session) armClock() {
	if s.sched == nil || s.timer != nil {
		return
	}
	s.credit = 0
	s.timer = s.sched.Every(s.period, s.OnPlaybackTick)
}

func (s *Session) disarmClock() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.credit = 0
}

func (s *Session) setState(to StreamState) {
	from := s.state
	s.state = to
	logrus.WithFields(logrus.Fields{
		"function": "Session.setState",
		"session":  s.id,
		"from":     from.String(),
		"to":       to.String(),
	}).Info("Sink stream state changed")
	s.emit(event.Event{Kind: event.KindStateChanged, Scope: "stream", From: from.String(), To: to.String()})
}

func (s *Session) onGateChange(from, to PlaybackState) {
	if to != StatePlaying {
		s.starving = false
	}
	logrus.WithFields(logrus.Fields{
		"function": "Session.onGateChange",
		"session":  s.id,
		"from":     from.String(),
		"to":       to.String(),
		"frames":   s.FramesBuffered(),
	}).Info("Playback state changed")
	s.emit(event.Event{Kind: event.KindStateChanged, Scope: "playback", From: from.String(), To: to.String()})
}

func (s *Session) malformed(function string, size int, err error) error {
	s.stats.Malformed++
	metrics.DroppedPacketsTotal.WithLabelValues(metrics.RoleSink, metrics.ReasonMalformed).Inc()
	logrus.WithFields(logrus.Fields{
		"function": function,
		"session":  s.id,
		"size":     size,
		"error":    err.Error(),
	}).Warn("Malformed media packet dropped")
	s.emit(event.Event{Kind: event.KindError, ErrorKind: event.ErrorMalformedInput, Err: err})
	return err
}

func (s *Session) configFault(function string, err error) error {
	logrus.WithFields(logrus.Fields{
		"function": function,
		"session":  s.id,
		"error":    err.Error(),
	}).Error("Sink configuration rejected")
	s.emit(event.Event{Kind: event.KindError, ErrorKind: event.ErrorConfiguration, Err: err})
	return err
}

func (s *Session) logicFault(function string, err error) error {
	logrus.WithFields(logrus.Fields{
		"function": function,
		"session":  s.id,
		"state":    s.state.String(),
		"error":    err.Error(),
	}).Error("Sink called in wrong state")
	s.emit(event.Event{Kind: event.KindError, ErrorKind: event.ErrorLogic, Err: err})
	return err
}

func (s *Session) emit(e event.Event) {
	e.Session = s.id
	e.Role = metrics.RoleSink
	s.bus.Emit(e)
}
