package audio

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryInputShortReads checks that MemoryInput honours ChunkSize and
// returns short reads.
func TestMemoryInputShortReads(t *testing.T) {
	in := NewMemoryInput([]byte{1, 2, 3, 4, 5, 6})
	in.ChunkSize = 4

	buf := make([]byte, 10)
	n, err := in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])

	n, err = in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = in.Read(buf)
	assert.NoError(t, err, "dry input is not end of stream")
	assert.Zero(t, n)

	in.Append([]byte{7})
	assert.Equal(t, 1, in.Len())

	in.EOF = true
	_, _ = in.Read(buf)
	_, err = in.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

// TestMemoryOutput verifies MemoryOutput accumulates every written block.
func TestMemoryOutput(t *testing.T) {
	var out MemoryOutput
	_, err := out.Write([]byte{1, 2})
	require.NoError(t, err)
	_, err = out.Write([]byte{3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out.Bytes())
	assert.Equal(t, 3, out.Len())
}

// TestToneInput reads whole sample frames that carry the same sample on every
// channel.
func TestToneInput(t *testing.T) {
	format := Format{SampleRate: 8000, Channels: 2}
	tone := NewToneInput(format, 1000, 0.5)
	tone.Limit = 40

	buf := make([]byte, 27)
	n, err := tone.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 24, n, "only whole sample frames")

	// channels carry the same sample
	for off := 0; off < n; off += format.FrameBytes() {
		assert.Equal(t, getSample(buf[off:]), getSample(buf[off+2:]))
	}

	n, err = tone.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	_, err = tone.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

// TestWAVRoundTrip writes PCM to a WAV file and reads it back with the same
// format.
func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	format := Format{SampleRate: 44100, Channels: 2}

	pcm := make([]byte, 4096)
	for i := 0; i < len(pcm); i += 2 {
		putSample(pcm[i:], int16(i*7-2000))
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	out := NewWAVOutput(f, format)
	n, err := out.Write(pcm)
	require.NoError(t, err)
	assert.Equal(t, len(pcm), n)
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())
	require.NoError(t, f.Close())

	_, err = out.Write(pcm)
	assert.ErrorIs(t, err, ErrClosed)

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	in, err := NewWAVInput(f)
	require.NoError(t, err)
	assert.Equal(t, format, in.Format())

	var got []byte
	buf := make([]byte, 1000)
	for {
		n, err := in.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, pcm, got)
}

// TestWAVInputRejectsGarbage ensures a non-WAV stream is refused.
func TestWAVInputRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file"), 0o600))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = NewWAVInput(f)
	assert.ErrorIs(t, err, ErrInvalidFile)
}
