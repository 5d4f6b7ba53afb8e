package source

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opd-ai/a2dpstream/audio"
	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/event"
	"github.com/opd-ai/a2dpstream/eventloop"
	"github.com/opd-ai/a2dpstream/limits"
	"github.com/opd-ai/a2dpstream/metrics"
	"github.com/opd-ai/a2dpstream/transport"
	"github.com/sirupsen/logrus"
)

var (
	// ErrPayloadTooSmall indicates a payload limit that cannot carry one frame
	ErrPayloadTooSmall = errors.New("max payload cannot carry a frame")

	// ErrQueueTooSmall indicates a queue that cannot hold one frame
	ErrQueueTooSmall = errors.New("transmit queue cannot hold a frame")
)

// Encoder is the part of a codec the pacer drives.
type Encoder interface {
	codec.FrameSizeOracle
	Encode(raw []byte) ([]byte, error)
}

// SendContext is the pacer's per-stream transmission bookkeeping.
type SendContext struct {
	Streaming      bool
	SendInFlight   bool
	MaxPayloadSize int
	timer          eventloop.Timer
}

// PacerConfig configures a Pacer.
type PacerConfig struct {
	ID        string
	Encoder   Encoder
	Input     audio.Reader
	Sender    transport.MediaSender
	Scheduler eventloop.Scheduler
	Bus       *event.Bus
	// Period is the pacing tick; limits.AudioTimeout when zero
	Period time.Duration
	// StorageSize is the queue capacity; limits.StorageSize when zero
	StorageSize int
	// SamplesPerFrame stamps media timestamps
	SamplesPerFrame int
}

// PacerStats counts pacer activity.
type PacerStats struct {
	Ticks        int
	SkippedTicks int
	Fills        int
	FramesQueued int
	Sends        int
	FramesSent   int
	SendFailures int
	EncodeErrors int
}

// Pacer moves encoded frames from the queue to the transport on a timer.
type Pacer struct {
	id         string
	encoder    Encoder
	input      audio.Reader
	sender     transport.MediaSender
	sched      eventloop.Scheduler
	bus        *event.Bus
	period     time.Duration
	samples    int
	encodedLen int
	decodedLen int

	queue   *TxQueue
	ctx     SendContext
	pcm     []byte
	pcmLen  int
	payload []byte
	eof     bool
	stats   PacerStats
}

// NewPacer creates a stopped pacer. The transmit queue is sized from
// cfg.StorageSize and the encoder's frame sizes are fixed for the pacer's
// lifetime, so a reconfigured encoder needs a new pacer.
//
// Parameters:
//   - cfg: encoder, input, sender and timing; zero Period and StorageSize
//     take the package defaults
//
// Returns:
//   - *Pacer: the new pacer, not yet ticking
//   - error: codec.ErrNotConfigured when the encoder reports no frame sizes,
//     ErrQueueTooSmall when the queue cannot hold one encoded frame
func NewPacer(cfg PacerConfig) (*Pacer, error) {
	if cfg.Period <= 0 {
		cfg.Period = limits.AudioTimeout
	}
	if cfg.StorageSize <= 0 {
		cfg.StorageSize = limits.StorageSize
	}

	encodedLen := cfg.Encoder.EncodedFrameBytes()
	decodedLen := cfg.Encoder.DecodedFrameBytes()
	if encodedLen <= 0 || decodedLen <= 0 {
		return nil, fmt.Errorf("%w: encoded %d, decoded %d", codec.ErrNotConfigured, encodedLen, decodedLen)
	}
	if cfg.StorageSize < encodedLen {
		return nil, fmt.Errorf("%w: %d bytes for %d byte frames", ErrQueueTooSmall, cfg.StorageSize, encodedLen)
	}

	queue, err := NewTxQueue(cfg.StorageSize)
	if err != nil {
		return nil, err
	}

	return &Pacer{
		id:         cfg.ID,
		encoder:    cfg.Encoder,
		input:      cfg.Input,
		sender:     cfg.Sender,
		sched:      cfg.Scheduler,
		bus:        cfg.Bus,
		period:     cfg.Period,
		samples:    cfg.SamplesPerFrame,
		encodedLen: encodedLen,
		decodedLen: decodedLen,
		queue:      queue,
		pcm:        make([]byte, decodedLen*limits.SBCPacketCount),
		payload:    make([]byte, limits.SBCHeaderSize+limits.MaxFrameCount*encodedLen),
	}, nil
}

// Context returns a copy of the send context.
func (p *Pacer) Context() SendContext { return p.ctx }

// Queue returns the transmit queue.
func (p *Pacer) Queue() *TxQueue { return p.queue }

// Stats returns a snapshot of the counters.
func (p *Pacer) Stats() PacerStats { return p.stats }

// Start sizes the payload limit, resets the flags and arms the pacing timer.
// Starting a started pacer does nothing.
func (p *Pacer) Start() error {
	if p.ctx.Streaming {
		return nil
	}

	maxPayload := min(p.sender.MaxPayloadSize(), p.queue.Capacity())
	if limits.FramesPerPayload(maxPayload, p.encodedLen) == 0 {
		return fmt.Errorf("%w: %d bytes for %d byte frames", ErrPayloadTooSmall, maxPayload, p.encodedLen)
	}

	p.ctx.MaxPayloadSize = maxPayload
	p.ctx.SendInFlight = false
	p.ctx.Streaming = true
	p.ctx.timer = p.sched.Every(p.period, p.OnTick)

	logrus.WithFields(logrus.Fields{
		"function":    "Pacer.Start",
		"session":     p.id,
		"max_payload": maxPayload,
		"frame_bytes": p.encodedLen,
		"period":      p.period.String(),
	}).Info("Media pacing started")
	return nil
}

// Suspend disarms the timer and clears the flags but keeps queued frames.
func (p *Pacer) Suspend() {
	if p.ctx.timer != nil {
		p.ctx.timer.Stop()
		p.ctx.timer = nil
	}
	p.ctx.Streaming = false
	p.ctx.SendInFlight = false
}

// Stop disarms the timer, clears the flags and discards queued audio.
// Stopping a stopped pacer does nothing.
func (p *Pacer) Stop() {
	if !p.ctx.Streaming && p.ctx.timer == nil && p.queue.Available() == 0 && p.pcmLen == 0 {
		return
	}

	discarded := p.queue.Available()
	p.Suspend()
	p.queue.Clear()
	p.pcmLen = 0
	metrics.BufferedBytes.WithLabelValues(metrics.RoleSource).Set(0)

	logrus.WithFields(logrus.Fields{
		"function":  "Pacer.Stop",
		"session":   p.id,
		"discarded": discarded,
		"sent":      p.stats.FramesSent,
	}).Info("Media pacing stopped")
}

// OnTick is the pacing timer callback.
func (p *Pacer) OnTick() {
	p.stats.Ticks++
	if p.ctx.SendInFlight || !p.ctx.Streaming {
		p.stats.SkippedTicks++
		return
	}

	for p.queue.Available() == 0 {
		if !p.fill() {
			break
		}
	}
	metrics.BufferedBytes.WithLabelValues(metrics.RoleSource).Set(float64(p.queue.Available()))

	if p.queue.WholeFrames(p.encodedLen) == 0 {
		return
	}
	p.ctx.SendInFlight = true
	p.sender.RequestSend()
}

// OnSendReady sends every whole frame the payload can carry.
func (p *Pacer) OnSendReady() {
	if !p.ctx.Streaming || !p.ctx.SendInFlight {
		logrus.WithFields(logrus.Fields{
			"function":  "Pacer.OnSendReady",
			"session":   p.id,
			"streaming": p.ctx.Streaming,
		}).Debug("Ignoring send slot with no send outstanding")
		return
	}

	frames := min(p.queue.WholeFrames(p.encodedLen), limits.FramesPerPayload(p.ctx.MaxPayloadSize, p.encodedLen))
	if frames == 0 {
		p.ctx.SendInFlight = false
		return
	}

	size := limits.SBCHeaderSize + frames*p.encodedLen
	buf := p.payload[:size]
	buf[0] = byte(frames) & 0x0F
	p.queue.ReadFrames(buf[limits.SBCHeaderSize:], frames, p.encodedLen)
	metrics.BufferedBytes.WithLabelValues(metrics.RoleSource).Set(float64(p.queue.Available()))

	err := p.sender.SendMedia(transport.MediaPayload{
		Data:    buf,
		Samples: uint32(frames * p.samples),
	})
	p.ctx.SendInFlight = false

	if err != nil {
		p.stats.SendFailures++
		metrics.SendFailuresTotal.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Pacer.OnSendReady",
			"session":  p.id,
			"frames":   frames,
			"size":     size,
			"error":    err.Error(),
		}).Error("Media send failed")
		p.emit(event.Event{Kind: event.KindSendFailed, ErrorKind: event.ErrorTransport, Err: err})
		return
	}

	p.stats.Sends++
	p.stats.FramesSent += frames
	metrics.PacketsTotal.WithLabelValues(metrics.RoleSource).Inc()
	metrics.FramesTotal.WithLabelValues(metrics.RoleSource).Add(float64(frames))

	logrus.WithFields(logrus.Fields{
		"function":  "Pacer.OnSendReady",
		"session":   p.id,
		"frames":    frames,
		"size":      size,
		"remaining": p.queue.Available(),
	}).Debug("Media payload sent")
}

// fill reads up to one batch of PCM and encodes the whole blocks that fit
// in the queue. It reports whether any frame was queued.
func (p *Pacer) fill() bool {
	if p.input != nil && !p.eof && p.pcmLen < len(p.pcm) {
		n, err := p.input.Read(p.pcm[p.pcmLen:])
		p.pcmLen += n
		if errors.Is(err, io.EOF) {
			p.eof = true
			logrus.WithFields(logrus.Fields{
				"function": "Pacer.fill",
				"session":  p.id,
			}).Info("Audio input exhausted")
		} else if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pacer.fill",
				"session":  p.id,
				"error":    err.Error(),
			}).Warn("Audio input read failed")
		}
	}

	queued := 0
	off := 0
	for p.pcmLen-off >= p.decodedLen && p.queue.Free() >= p.encodedLen {
		block := p.pcm[off : off+p.decodedLen]
		off += p.decodedLen

		frame, err := p.encoder.Encode(block)
		if err != nil {
			p.stats.EncodeErrors++
			metrics.DecodeErrorsTotal.WithLabelValues("encode").Inc()
			logrus.WithFields(logrus.Fields{
				"function": "Pacer.fill",
				"session":  p.id,
				"error":    err.Error(),
			}).Error("Frame encode failed, block dropped")
			p.emit(event.Event{Kind: event.KindError, ErrorKind: event.ErrorMalformedInput, Err: err})
			continue
		}
		if !p.queue.PushFrame(frame) {
			logrus.WithFields(logrus.Fields{
				"function": "Pacer.fill",
				"session":  p.id,
				"size":     len(frame),
				"free":     p.queue.Free(),
			}).Error("Encoded frame does not fit transmit queue, dropped")
			continue
		}
		queued++
	}

	// keep the unencoded tail for the next fill
	p.pcmLen = copy(p.pcm, p.pcm[off:p.pcmLen])

	if queued > 0 {
		p.stats.Fills++
		p.stats.FramesQueued += queued
	}
	return queued > 0
}

// Exhausted reports whether the input hit end of stream and everything read
// has been sent.
func (p *Pacer) Exhausted() bool {
	return p.eof && p.pcmLen < p.decodedLen && p.queue.WholeFrames(p.encodedLen) == 0 && !p.ctx.SendInFlight
}

func (p *Pacer) emit(e event.Event) {
	e.Session = p.id
	e.Role = metrics.RoleSource
	p.bus.Emit(e)
}
