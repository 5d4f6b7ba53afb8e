// Package source implements the transmit side of the A2DP media pipeline:
//
//	audio input -> encoder -> TxQueue -> Pacer -> transport
//
// A periodic timer drives the Pacer. Each tick that finds the stream
// streaming and no send in flight tops the TxQueue up, but only once it has
// fully drained, so frames leave in batches rather than a trickle. The tick
// then asks the transport for a send slot; when the transport calls back,
// the Pacer sends every whole frame queued, capped by the payload size and
// the 4-bit frame count, behind a one-byte count header. Partial frames never
// leave the queue.
//
// A failed send is reported on the event bus and not retried. Capture never
// blocks: a short read from the audio input ends the fill for that tick and
// any partial PCM block is kept for the next one.
package source
