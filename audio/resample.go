package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Resampler converts interleaved 16-bit PCM between sample rates by linear
// interpolation. Input may arrive in arbitrary chunks; the last input frame
// of each chunk is held back until the next one arrives.
type Resampler struct {
	from, to int
	channels int
	step     float64
	pos      float64
	pending  []int16
}

// NewResampler creates a resampler from one rate to another.
func NewResampler(from, to, channels int) (*Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: sample rates %d -> %d", ErrUnsupportedFormat, from, to)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, channels)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewResampler",
		"from":     from,
		"to":       to,
		"channels": channels,
	}).Info("Resampler created")

	return &Resampler{
		from:     from,
		to:       to,
		channels: channels,
		step:     float64(from) / float64(to),
	}, nil
}

// Resample consumes pcm and returns the converted frames available so far.
// A trailing partial sample frame in pcm is ignored.
func (r *Resampler) Resample(pcm []byte) []byte {
	frameBytes := r.channels * BytesPerSample
	whole := len(pcm) - len(pcm)%frameBytes
	if r.from == r.to {
		return append([]byte(nil), pcm[:whole]...)
	}

	for off := 0; off < whole; off += BytesPerSample {
		r.pending = append(r.pending, getSample(pcm[off:]))
	}
	frames := len(r.pending) / r.channels

	var out []byte
	for {
		i := int(r.pos)
		if i+1 >= frames {
			break
		}
		frac := r.pos - float64(i)
		for ch := 0; ch < r.channels; ch++ {
			a := float64(r.pending[i*r.channels+ch])
			b := float64(r.pending[(i+1)*r.channels+ch])
			var s [BytesPerSample]byte
			putSample(s[:], int16(a*(1-frac)+b*frac))
			out = append(out, s[:]...)
		}
		r.pos += r.step
	}

	drop := min(int(r.pos), frames)
	r.pending = append(r.pending[:0], r.pending[drop*r.channels:]...)
	r.pos -= float64(drop)
	return out
}

// Reset forgets held-back input.
func (r *Resampler) Reset() {
	r.pending = r.pending[:0]
	r.pos = 0
}

// ResamplingReader adapts a Reader to a different sample rate.
type ResamplingReader struct {
	src        Reader
	resampler  *Resampler
	format     Format
	ratio      float64
	scratch    []byte
	out        []byte
	eof        bool
	frameBytes int
}

// NewResamplingReader reads from src, which delivers PCM in format from,
// and produces PCM at to.SampleRate. Channel counts must match.
func NewResamplingReader(src Reader, from, to Format) (*ResamplingReader, error) {
	if from.Channels != to.Channels {
		return nil, fmt.Errorf("%w: cannot map %d channels to %d", ErrUnsupportedFormat, from.Channels, to.Channels)
	}
	r, err := NewResampler(from.SampleRate, to.SampleRate, to.Channels)
	if err != nil {
		return nil, err
	}
	return &ResamplingReader{
		src:        src,
		resampler:  r,
		format:     to,
		ratio:      float64(from.SampleRate) / float64(to.SampleRate),
		frameBytes: to.FrameBytes(),
	}, nil
}

// Format returns the output format.
func (rr *ResamplingReader) Format() Format { return rr.format }

// Read implements Reader. Only whole sample frames are returned; io.EOF is
// reported once the source has ended and everything converted was read.
func (rr *ResamplingReader) Read(p []byte) (int, error) {
	want := len(p) - len(p)%rr.frameBytes
	for len(rr.out) < want && !rr.eof {
		need := int(float64(want-len(rr.out))*rr.ratio) + rr.frameBytes
		need -= need % rr.frameBytes
		if cap(rr.scratch) < need {
			rr.scratch = make([]byte, need)
		}

		n, err := rr.src.Read(rr.scratch[:need])
		rr.out = append(rr.out, rr.resampler.Resample(rr.scratch[:n])...)
		if errors.Is(err, io.EOF) {
			rr.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
	}

	if len(rr.out) == 0 && rr.eof {
		return 0, io.EOF
	}
	n := min(want, len(rr.out))
	copy(p, rr.out[:n])
	rr.out = append(rr.out[:0], rr.out[n:]...)
	return n, nil
}
