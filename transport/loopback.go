package transport

import (
	"sync"

	"github.com/opd-ai/a2dpstream/eventloop"
	"github.com/opd-ai/a2dpstream/limits"
	"github.com/sirupsen/logrus"
)

// DefaultMTU is the L2CAP MTU the loopback advertises when none is set.
const DefaultMTU = 895

// LoopbackConfig configures a Loopback.
type LoopbackConfig struct {
	// MTU bounds a whole media packet, media header included
	MTU int
	// PayloadType is the RTP payload type stamped on each packet
	PayloadType uint8
}

// LoopbackStats counts loopback activity.
type LoopbackStats struct {
	Requests  int
	Sent      int
	Delivered int
	Failed    int
	Bytes     int
}

// Loopback is an in-process transport joining one source to one sink.
// Callbacks are posted to the executor; nothing is delivered re-entrantly.
type Loopback struct {
	exec       eventloop.Executor
	mtu        int
	packetizer *Packetizer

	mu       sync.Mutex
	source   SourceHandler
	sink     SinkHandler
	failN    int
	failErr  error
	closed   bool
	stats    LoopbackStats
	lastSent []byte
}

// NewLoopback creates a loopback transport that posts callbacks to exec.
// Every sent payload is packetized as a media packet and delivered to the
// registered sink on the executor, never synchronously from SendMedia.
//
// Parameters:
//   - exec: executor that runs delivery and send-ready callbacks
//   - cfg: MTU and payload type; zero values take DefaultMTU and
//     DynamicPayloadType
//
// Returns:
//   - *Loopback: the new transport with no sink or source registered
//   - error: limits.ErrPacketTooShort when the MTU cannot carry the headers
func NewLoopback(exec eventloop.Executor, cfg LoopbackConfig) (*Loopback, error) {
	if cfg.MTU == 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.PayloadType == 0 {
		cfg.PayloadType = DynamicPayloadType
	}
	if cfg.MTU <= limits.MediaHeaderSize+limits.SBCHeaderSize {
		return nil, limits.ErrPacketTooShort
	}

	packetizer, err := NewPacketizer(cfg.PayloadType)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewLoopback",
		"mtu":      cfg.MTU,
	}).Info("Loopback transport created")

	return &Loopback{
		exec:       exec,
		mtu:        cfg.MTU,
		packetizer: packetizer,
	}, nil
}

// RegisterSource sets the handler that receives send-ready callbacks.
func (l *Loopback) RegisterSource(h SourceHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.source = h
}

// RegisterSink sets the handler that receives media packets.
func (l *Loopback) RegisterSink(h SinkHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = h
}

// MaxPayloadSize returns the MTU minus the media header.
func (l *Loopback) MaxPayloadSize() int {
	return l.mtu - limits.MediaHeaderSize
}

// RequestSend posts an OnSendReady callback for the registered source.
func (l *Loopback) RequestSend() {
	l.mu.Lock()
	source := l.source
	closed := l.closed
	l.stats.Requests++
	l.mu.Unlock()

	if closed || source == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Loopback.RequestSend",
			"closed":   closed,
		}).Warn("Send request ignored, no source handler")
		return
	}

	if err := l.exec.Post(source.OnSendReady); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Loopback.RequestSend",
			"error":    err.Error(),
		}).Error("Failed to post send-ready callback")
	}
}

// SendMedia frames p and posts it to the sink.
func (l *Loopback) SendMedia(p MediaPayload) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.failN > 0 {
		l.failN--
		l.stats.Failed++
		return l.failErr
	}
	if err := limits.ValidatePayloadSize(p.Data, l.MaxPayloadSize()); err != nil {
		l.stats.Failed++
		return err
	}
	if l.sink == nil {
		l.stats.Failed++
		return ErrNoSink
	}

	packet, err := l.packetizer.Packetize(p.Data, p.Samples)
	if err != nil {
		l.stats.Failed++
		return err
	}

	l.stats.Sent++
	l.stats.Bytes += len(p.Data)
	l.lastSent = append(l.lastSent[:0], p.Data...)

	logrus.WithFields(logrus.Fields{
		"function": "Loopback.SendMedia",
		"size":     len(packet),
		"samples":  p.Samples,
	}).Debug("Media packet sent")

	return l.deliverLocked(packet)
}

// Inject delivers a raw packet to the sink as if it came off the wire.
func (l *Loopback) Inject(packet []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.sink == nil {
		return ErrNoSink
	}
	return l.deliverLocked(append([]byte(nil), packet...))
}

func (l *Loopback) deliverLocked(packet []byte) error {
	sink := l.sink
	err := l.exec.Post(func() {
		l.mu.Lock()
		l.stats.Delivered++
		l.mu.Unlock()
		sink.OnMediaPacket(packet)
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Loopback.deliver",
			"error":    err.Error(),
		}).Error("Failed to post media packet")
	}
	return err
}

// FailSends makes the next n SendMedia calls return err, or ErrSendFailed
// when err is nil.
func (l *Loopback) FailSends(n int, err error) {
	if err == nil {
		err = ErrSendFailed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failN = n
	l.failErr = err
}

// Stats returns a snapshot of the counters.
func (l *Loopback) Stats() LoopbackStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// LastPayload returns a copy of the most recent successfully sent payload.
func (l *Loopback) LastPayload() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.lastSent...)
}

// Close stops all further delivery.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	logrus.WithFields(logrus.Fields{
		"function": "Loopback.Close",
		"sent":     l.stats.Sent,
		"failed":   l.stats.Failed,
	}).Info("Loopback transport closed")
	return nil
}
