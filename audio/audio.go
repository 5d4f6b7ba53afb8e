package audio

import (
	"errors"
	"io"
	"math"
	"sync"
)

// BytesPerSample is the size of one 16-bit PCM sample.
const BytesPerSample = 2

var (
	// ErrUnsupportedFormat indicates a WAV file that is not 16-bit PCM
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidFile indicates input that is not a WAV file
	ErrInvalidFile = errors.New("invalid WAV file")

	// ErrClosed indicates use of a closed device
	ErrClosed = errors.New("audio device closed")
)

// Reader is a non-blocking PCM capture device.
type Reader interface {
	// Read fills p with up to len(p) bytes of PCM available now
	Read(p []byte) (int, error)
}

// Writer is a PCM playback device.
type Writer interface {
	// Write queues p for playback
	Write(p []byte) (int, error)
}

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBytes returns the size of one sample frame (all channels).
func (f Format) FrameBytes() int {
	return f.Channels * BytesPerSample
}

// MemoryInput serves PCM from memory. ChunkSize, when positive, caps every
// Read to simulate a device that delivers audio in small pieces.
type MemoryInput struct {
	mu        sync.Mutex
	data      []byte
	ChunkSize int
	// EOF makes an empty input report io.EOF instead of a zero-length read
	EOF bool
}

// NewMemoryInput creates an input holding a copy of data.
func NewMemoryInput(data []byte) *MemoryInput {
	return &MemoryInput{data: append([]byte(nil), data...)}
}

// Append adds more captured audio.
func (m *MemoryInput) Append(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, data...)
}

// Len returns the unread byte count.
func (m *MemoryInput) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Read implements Reader.
func (m *MemoryInput) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.data) == 0 {
		if m.EOF {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := len(p)
	if m.ChunkSize > 0 {
		n = min(n, m.ChunkSize)
	}
	n = copy(p[:n], m.data)
	m.data = m.data[n:]
	return n, nil
}

// MemoryOutput collects played PCM.
type MemoryOutput struct {
	mu   sync.Mutex
	data []byte
}

// Write implements Writer.
func (m *MemoryOutput) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, p...)
	return len(p), nil
}

// Bytes returns a copy of everything written.
func (m *MemoryOutput) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Len returns the number of bytes written.
func (m *MemoryOutput) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// ToneInput generates a continuous sine tone at a fixed amplitude. It never
// runs dry; Limit, when positive, ends the tone after that many bytes.
type ToneInput struct {
	format    Format
	frequency float64
	amplitude float64
	phase     float64
	produced  int
	Limit     int
}

// NewToneInput creates a tone generator. amplitude is in 0..1.
func NewToneInput(format Format, frequency, amplitude float64) *ToneInput {
	return &ToneInput{
		format:    format,
		frequency: frequency,
		amplitude: math.Max(0, math.Min(1, amplitude)),
	}
}

// Read implements Reader. Only whole sample frames are produced.
func (t *ToneInput) Read(p []byte) (int, error) {
	frameBytes := t.format.FrameBytes()
	n := len(p) - len(p)%frameBytes
	if t.Limit > 0 {
		if t.produced >= t.Limit {
			return 0, io.EOF
		}
		n = min(n, t.Limit-t.produced)
		n -= n % frameBytes
	}

	step := 2 * math.Pi * t.frequency / float64(t.format.SampleRate)
	for off := 0; off < n; off += frameBytes {
		v := int16(math.Sin(t.phase) * t.amplitude * math.MaxInt16)
		for ch := 0; ch < t.format.Channels; ch++ {
			putSample(p[off+ch*BytesPerSample:], v)
		}
		t.phase = math.Mod(t.phase+step, 2*math.Pi)
	}
	t.produced += n
	return n, nil
}

func putSample(b []byte, v int16) {
	b[0] = byte(v)
	b[1] = byte(uint16(v) >> 8)
}

func getSample(b []byte) int16 {
	return int16(uint16(b[0]) | uint16(b[1])<<8)
}
