package transport

import "errors"

var (
	// ErrNoSink indicates media was sent before a sink was registered
	ErrNoSink = errors.New("no sink registered")

	// ErrClosed indicates the transport has been closed
	ErrClosed = errors.New("transport closed")

	// ErrSendFailed is the default injected send failure
	ErrSendFailed = errors.New("media send failed")
)

// MediaPayload is one outbound media payload: the SBC header byte followed
// by whole encoded frames.
type MediaPayload struct {
	Data []byte
	// Samples is the number of PCM samples per channel the payload covers
	Samples uint32
}

// MediaSender is the source side of the transport.
type MediaSender interface {
	// MaxPayloadSize is the largest payload SendMedia accepts, in bytes
	MaxPayloadSize() int
	// RequestSend asks for a later OnSendReady callback
	RequestSend()
	// SendMedia sends one payload. Call it only from OnSendReady.
	SendMedia(p MediaPayload) error
}

// SourceHandler receives send-ready notifications.
type SourceHandler interface {
	OnSendReady()
}

// SinkHandler receives inbound media packets.
type SinkHandler interface {
	OnMediaPacket(packet []byte)
}

// SourceRegistrar accepts a source handler.
type SourceRegistrar interface {
	RegisterSource(h SourceHandler)
}

// SinkRegistrar accepts a sink handler.
type SinkRegistrar interface {
	RegisterSink(h SinkHandler)
}
