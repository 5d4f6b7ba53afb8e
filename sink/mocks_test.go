package sink

import (
	"errors"

	"github.com/opd-ai/a2dpstream/codec"
	"github.com/pion/rtp"
)

var errRejected = errors.New("configuration rejected")

// fakeCodec decodes a frame into a PCM block filled with the frame's first
// byte, and records the configuration each frame was decoded under.
type fakeCodec struct {
	encoded int
	decoded int
	reject  int // sample rate Configure refuses

	cfg          codec.Configuration
	configured   []codec.Configuration
	closed       int
	decodedUnder []int // sample rate per decoded frame
	firstBytes   []byte
	frameLens    []int
	failDecode   bool
}

func (f *fakeCodec) Type() codec.Type { return codec.TypeSBC }

func (f *fakeCodec) Configure(cfg codec.Configuration) error {
	if f.reject != 0 && cfg.SampleRate == f.reject {
		return errRejected
	}
	f.cfg = cfg
	f.configured = append(f.configured, cfg)
	return nil
}

func (f *fakeCodec) Configuration() codec.Configuration { return f.cfg }

func (f *fakeCodec) Begin() error { return nil }

func (f *fakeCodec) Encode(raw []byte) ([]byte, error) { return nil, codec.ErrEncodeUnsupported }

func (f *fakeCodec) Decode(frame []byte) ([]byte, error) {
	if f.failDecode {
		return nil, codec.ErrFrameSize
	}
	f.decodedUnder = append(f.decodedUnder, f.cfg.SampleRate)
	f.firstBytes = append(f.firstBytes, frame[0])
	f.frameLens = append(f.frameLens, len(frame))
	out := make([]byte, f.decoded)
	for i := range out {
		out[i] = frame[0]
	}
	return out, nil
}

func (f *fakeCodec) Capabilities() []byte { return nil }

func (f *fakeCodec) EncodedFrameBytes() int { return f.encoded }

func (f *fakeCodec) DecodedFrameBytes() int { return f.decoded }

func (f *fakeCodec) Close() error {
	f.closed++
	return nil
}

// mediaPacket builds a media packet carrying frames frames of size bytes
// each, every byte set to fill.
func mediaPacket(seq uint16, frames, size int, fill byte) []byte {
	payload := make([]byte, 1+frames*size)
	payload[0] = byte(frames)
	for i := 1; i < len(payload); i++ {
		payload[i] = fill
	}
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 128,
			SSRC:           0x1234,
		},
		Payload: payload,
	}
	data, err := p.Marshal()
	if err != nil {
		panic(err)
	}
	return data
}

func frames(n, size int, fill byte) []byte {
	out := make([]byte, n*size)
	for i := range out {
		out[i] = fill
	}
	return out
}
