package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/a2dpstream/audio"
	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/event"
	"github.com/opd-ai/a2dpstream/eventloop"
	"github.com/opd-ai/a2dpstream/metrics"
	"github.com/opd-ai/a2dpstream/transport"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotOpen indicates a control call on a closed stream
	ErrNotOpen = errors.New("source pipeline not open")

	// ErrInvalidState indicates a transition not allowed from the current state
	ErrInvalidState = errors.New("invalid stream state transition")

	// ErrMissingCollaborator indicates a Config without a codec, sender or scheduler
	ErrMissingCollaborator = errors.New("source requires a codec, a sender and a scheduler")
)

// StreamState is the source stream lifecycle.
type StreamState uint8

// Stream states.
const (
	StreamClosed StreamState = iota
	StreamOpen
	StreamStreaming
	StreamPaused
)

// String returns the state name.
func (s StreamState) String() string {
	switch s {
	case StreamClosed:
		return "Closed"
	case StreamOpen:
		return "Open"
	case StreamStreaming:
		return "Streaming"
	case StreamPaused:
		return "Paused"
	default:
		return fmt.Sprintf("StreamState(%d)", uint8(s))
	}
}

// Config configures a source Session.
type Config struct {
	// ID names the session in logs and events; a UUID when empty
	ID string
	// Codec encodes captured PCM. Required.
	Codec codec.Codec
	// Input supplies PCM; nil sends nothing
	Input audio.Reader
	// Sender carries media payloads. Required. A sender that is also a
	// transport.SourceRegistrar gets the session registered automatically.
	Sender transport.MediaSender
	// Scheduler drives the pacing timer. Required.
	Scheduler eventloop.Scheduler
	// Bus receives events; nil drops them
	Bus *event.Bus
	// Period is the pacing tick; limits.AudioTimeout when zero
	Period time.Duration
	// StorageSize is the transmit queue capacity; limits.StorageSize when zero
	StorageSize int
}

// Session is one transmit stream. It implements transport.SourceHandler.
type Session struct {
	id    string
	codec codec.Codec
	cfg   Config

	state  StreamState
	stream codec.Configuration
	pacer  *Pacer
}

// NewSession creates a closed source session. When cfg.Sender also
// implements transport.SourceRegistrar the session registers itself so the
// transport can hand it send slots.
//
// Parameters:
//   - cfg: codec, PCM input, sender, scheduler and pacing settings
//
// Returns:
//   - *Session: the new session in the Closed state
//   - error: ErrMissingCollaborator when the codec, sender or scheduler is nil
func NewSession(cfg Config) (*Session, error) {
	if cfg.Codec == nil || cfg.Sender == nil || cfg.Scheduler == nil {
		return nil, ErrMissingCollaborator
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	s := &Session{id: cfg.ID, codec: cfg.Codec, cfg: cfg}
	if reg, ok := cfg.Sender.(transport.SourceRegistrar); ok {
		reg.RegisterSource(s)
	}

	logrus.WithFields(logrus.Fields{
		"function": "source.NewSession",
		"session":  s.id,
		"codec":    s.codec.Type().String(),
	}).Info("Source session created")

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the stream state.
func (s *Session) State() StreamState { return s.state }

// Configuration returns the active codec configuration.
func (s *Session) Configuration() codec.Configuration { return s.stream }

// Pacer returns the active pacer, nil while closed.
func (s *Session) Pacer() *Pacer { return s.pacer }

// Capabilities returns the codec capability element to advertise.
func (s *Session) Capabilities() []byte { return s.codec.Capabilities() }

// Open configures the encoder and builds the transmit queue.
func (s *Session) Open(cfg codec.Configuration) error {
	if s.state != StreamClosed {
		return s.logicFault("Session.Open", fmt.Errorf("%w: open from %s", ErrInvalidState, s.state))
	}
	if err := s.build(cfg); err != nil {
		return err
	}
	metrics.ActiveSessions.WithLabelValues(metrics.RoleSource).Inc()
	s.setState(StreamOpen)
	return nil
}

// Start begins paced transmission.
func (s *Session) Start() error {
	switch s.state {
	case StreamStreaming:
		return nil
	case StreamOpen:
	case StreamClosed:
		return s.logicFault("Session.Start", ErrNotOpen)
	default:
		return s.logicFault("Session.Start", fmt.Errorf("%w: start from %s", ErrInvalidState, s.state))
	}

	if err := s.pacer.Start(); err != nil {
		return s.configFault("Session.Start", err)
	}
	s.setState(StreamStreaming)
	return nil
}

// Stop ends transmission and discards queued audio. Stopping a stream that
// is not streaming does nothing.
func (s *Session) Stop() error {
	switch s.state {
	case StreamStreaming, StreamPaused:
		s.pacer.Stop()
		s.setState(StreamOpen)
	}
	return nil
}

// Pause suspends transmission and keeps queued frames.
func (s *Session) Pause() error {
	switch s.state {
	case StreamPaused:
		return nil
	case StreamStreaming:
	case StreamClosed:
		return s.logicFault("Session.Pause", ErrNotOpen)
	default:
		return s.logicFault("Session.Pause", fmt.Errorf("%w: pause from %s", ErrInvalidState, s.state))
	}
	s.pacer.Suspend()
	s.setState(StreamPaused)
	return nil
}

// Resume continues a paused stream.
func (s *Session) Resume() error {
	switch s.state {
	case StreamStreaming:
		return nil
	case StreamPaused:
	case StreamClosed:
		return s.logicFault("Session.Resume", ErrNotOpen)
	default:
		return s.logicFault("Session.Resume", fmt.Errorf("%w: resume from %s", ErrInvalidState, s.state))
	}
	if err := s.pacer.Start(); err != nil {
		return s.configFault("Session.Resume", err)
	}
	s.setState(StreamStreaming)
	return nil
}

// Close stops transmission and releases the encoder. Closing a closed
// session does nothing.
func (s *Session) Close() error {
	if s.state == StreamClosed {
		return nil
	}
	s.pacer.Stop()
	s.pacer = nil
	err := s.codec.Close()
	metrics.ActiveSessions.WithLabelValues(metrics.RoleSource).Dec()
	s.setState(StreamClosed)
	return err
}

// OnConfigurationChanged applies a new codec configuration. An open stream
// is torn down and rebuilt; a stream that was streaming is restarted.
func (s *Session) OnConfigurationChanged(cfg codec.Configuration) error {
	if s.state == StreamClosed {
		return s.Open(cfg)
	}
	if cfg.Equal(s.stream) {
		return nil
	}

	wasStreaming := s.state == StreamStreaming
	logrus.WithFields(cfg.Fields()).WithFields(logrus.Fields{
		"function":     "Session.OnConfigurationChanged",
		"session":      s.id,
		"rate_changed": cfg.SampleRate != s.stream.SampleRate,
		"restart":      wasStreaming,
	}).Info("Reopening source pipeline")

	if err := s.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.OnConfigurationChanged",
			"session":  s.id,
			"error":    err.Error(),
		}).Warn("Encoder close failed during reconfiguration")
	}
	if err := s.Open(cfg); err != nil {
		return err
	}
	if wasStreaming {
		return s.Start()
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

// OnSendReady forwards the transport's send slot to the pacer.
func (s *Session) OnSendReady() {
	if s.pacer == nil {
		return
	}
	s.pacer.OnSendReady()
}

func (s *Session) build(cfg codec.Configuration) error {
	if err := s.codec.Configure(cfg); err != nil {
		return s.configFault("Session.build", err)
	}
	if err := s.codec.Begin(); err != nil {
		return s.configFault("Session.build", err)
	}

	pacer, err := NewPacer(PacerConfig{
		ID:              s.id,
		Encoder:         s.codec,
		Input:           s.cfg.Input,
		Sender:          s.cfg.Sender,
		Scheduler:       s.cfg.Scheduler,
		Bus:             s.cfg.Bus,
		Period:          s.cfg.Period,
		StorageSize:     s.cfg.StorageSize,
		SamplesPerFrame: s.samplesPerFrame(cfg),
	})
	if err != nil {
		return s.configFault("Session.build", err)
	}
	s.pacer = pacer
	s.stream = cfg

	logrus.WithFields(cfg.Fields()).WithFields(logrus.Fields{
		"function":      "Session.build",
		"session":       s.id,
		"encoded_bytes": s.codec.EncodedFrameBytes(),
		"decoded_bytes": s.codec.DecodedFrameBytes(),
		"queue_bytes":   pacer.Queue().Capacity(),
	}).Info("Source pipeline configured")

	s.emit(event.Event{Kind: event.KindConfigured})
	return nil
}

func (s *Session) samplesPerFrame(cfg codec.Configuration) int {
	if cfg.Channels > 0 && s.codec.DecodedFrameBytes() > 0 {
		return s.codec.DecodedFrameBytes() / (cfg.Channels * audio.BytesPerSample)
	}
	return cfg.SamplesPerFrame()
}

func (s *Session) setState(to StreamState) {
	from := s.state
	s.state = to
	logrus.WithFields(logrus.Fields{
		"function": "Session.setState",
		"session":  s.id,
		"from":     from.String(),
		"to":       to.String(),
	}).Info("Source stream state changed")
	s.emit(event.Event{Kind: event.KindStateChanged, Scope: "stream", From: from.String(), To: to.String()})
}

func (s *Session) configFault(function string, err error) error {
	logrus.WithFields(logrus.Fields{
		"function": function,
		"session":  s.id,
		"error":    err.Error(),
	}).Error("Source configuration rejected")
	s.emit(event.Event{Kind: event.KindError, ErrorKind: event.ErrorConfiguration, Err: err})
	return err
}

func (s *Session) logicFault(function string, err error) error {
	logrus.WithFields(logrus.Fields{
		"function": function,
		"session":  s.id,
		"state":    s.state.String(),
		"error":    err.Error(),
	}).Error("Source called in wrong state")
	s.emit(event.Event{Kind: event.KindError, ErrorKind: event.ErrorLogic, Err: err})
	return err
}

func (s *Session) emit(e event.Event) {
	e.Session = s.id
	e.Role = metrics.RoleSource
	s.cfg.Bus.Emit(e)
}
