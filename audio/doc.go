// Package audio provides the PCM capture and playback collaborators of the
// A2DP pipeline and the volume stage that sits between decoder and output.
//
// All PCM is 16-bit signed little-endian, channels interleaved. Readers are
// non-blocking: a Read returns whatever is available right now, which may be
// less than asked for, and returns io.EOF once the input is exhausted.
//
// Devices:
//   - MemoryInput / MemoryOutput: byte slices, used by tests
//   - ToneInput: an endless sine tone, used by the simulator when no input
//     file is given
//   - WAVInput / WAVOutput: RIFF WAVE files via github.com/go-audio/wav
package audio
