// Package sink implements the receive side of the A2DP media pipeline:
//
//	transport -> demux -> JitterBuffer -> Gate -> decoder -> volume -> output
//
// Inbound media packets are split into their media header, SBC header and
// frame payload. Frames accumulate in a fixed-size JitterBuffer and the Gate
// holds playback back until OptimalFramesMin frames are buffered. Once the
// gate is PLAYING, whole frames are decoded and written to the audio output.
//
// # Playback Clock
//
// When the session has a Scheduler, frames leave the buffer at the media
// rate: every playback tick credits period*sampleRate samples and one frame
// is decoded per samples-per-frame of credit. A tick that has credit but no
// whole frame buffered is an underrun. By default the gate stays PLAYING and
// the output starves until data returns; with RebufferOnUnderrun the gate
// drops back to BUFFERING and waits for the threshold again.
//
// Without a Scheduler the session is free-running: every accepted packet
// drains the buffer as far as whole frames allow.
//
// # Reconfiguration
//
// A new codec configuration discards every buffered frame, closes the
// decoder and reconfigures it before anything else is decoded. Frames queued
// under the old configuration are never decoded with the new one.
//
// All methods run on the pipeline's event loop and are not safe for
// concurrent use.
package sink
