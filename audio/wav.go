package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

// WAVInput reads 16-bit PCM from a WAV file.
type WAVInput struct {
	decoder *wav.Decoder
	format  Format
	buf     *goaudio.IntBuffer
	done    bool
}

// NewWAVInput validates the file header and prepares for reading.
func NewWAVInput(r io.ReadSeeker) (*WAVInput, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidFile
	}
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if decoder.BitDepth != 16 || decoder.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: %d-bit format %d", ErrUnsupportedFormat, decoder.BitDepth, decoder.WavAudioFormat)
	}

	format := Format{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewWAVInput",
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Info("WAV input opened")

	return &WAVInput{
		decoder: decoder,
		format:  format,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Format returns the file's sample rate and channel count.
func (w *WAVInput) Format() Format { return w.format }

// Read implements Reader, returning io.EOF at end of file.
func (w *WAVInput) Read(p []byte) (int, error) {
	if w.done {
		return 0, io.EOF
	}
	samples := len(p) / BytesPerSample
	if samples == 0 {
		return 0, nil
	}
	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]

	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to read WAV samples: %w", err)
	}
	if n == 0 {
		w.done = true
		return 0, io.EOF
	}
	for i, v := range w.buf.Data[:n] {
		putSample(p[i*BytesPerSample:], int16(v))
	}
	return n * BytesPerSample, nil
}

// WAVOutput writes 16-bit PCM to a WAV file. Close must be called to
// finalise the header.
type WAVOutput struct {
	encoder *wav.Encoder
	format  Format
	buf     *goaudio.IntBuffer
	written int
	closed  bool
}

// NewWAVOutput creates a 16-bit PCM WAV writer.
func NewWAVOutput(ws io.WriteSeeker, format Format) *WAVOutput {
	return &WAVOutput{
		encoder: wav.NewEncoder(ws, format.SampleRate, 16, format.Channels, 1),
		format:  format,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: 16,
		},
	}
}

// Write implements Writer. A trailing odd byte is ignored.
func (w *WAVOutput) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	samples := len(p) / BytesPerSample
	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]
	for i := range w.buf.Data {
		w.buf.Data[i] = int(getSample(p[i*BytesPerSample:]))
	}
	if err := w.encoder.Write(w.buf); err != nil {
		return 0, fmt.Errorf("failed to write WAV samples: %w", err)
	}
	w.written += samples * BytesPerSample
	return len(p), nil
}

// Close flushes the encoder and patches the header sizes.
func (w *WAVOutput) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	logrus.WithFields(logrus.Fields{
		"function": "WAVOutput.Close",
		"bytes":    w.written,
	}).Info("WAV output closed")

	return w.encoder.Close()
}
