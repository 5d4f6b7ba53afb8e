// Package transport defines the media transport surface the A2DP pipeline
// talks to, and an in-memory loopback implementation of it.
//
// A source session sends through a MediaSender using a request / ready
// handshake: the pacer calls RequestSend, the transport later calls
// SourceHandler.OnSendReady on the event loop, and the pacer answers with
// exactly one SendMedia. A sink session receives complete media packets
// (media header, SBC header, frames) through SinkHandler.OnMediaPacket.
//
// Handlers are registered explicitly with RegisterSource and RegisterSink.
// Implementations must invoke them on the pipeline's event loop, never from
// their own goroutines.
//
// Loopback connects one source to one sink inside a process. Media packets
// are framed with a 12 byte RTP header built by github.com/pion/rtp, so the
// sink's demuxer sees the same layout as it would from a Bluetooth stack.
package transport
