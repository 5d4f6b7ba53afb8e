package source

import (
	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/transport"
)

// fakeEncoder turns each PCM block into a frame of encoded bytes filled with
// the block's first byte.
type fakeEncoder struct {
	encoded int
	decoded int
	blocks  [][]byte
	fail    bool
}

func (f *fakeEncoder) EncodedFrameBytes() int { return f.encoded }

func (f *fakeEncoder) DecodedFrameBytes() int { return f.decoded }

func (f *fakeEncoder) Encode(raw []byte) ([]byte, error) {
	if f.fail {
		return nil, codec.ErrFrameSize
	}
	f.blocks = append(f.blocks, append([]byte(nil), raw...))
	frame := make([]byte, f.encoded)
	for i := range frame {
		frame[i] = raw[0]
	}
	return frame, nil
}

// fakeCodec adapts fakeEncoder to the full codec interface.
type fakeCodec struct {
	fakeEncoder
	configured []codec.Configuration
	closed     int
}

func (f *fakeCodec) Type() codec.Type { return codec.TypeSBC }

func (f *fakeCodec) Configure(cfg codec.Configuration) error {
	f.configured = append(f.configured, cfg)
	return nil
}

func (f *fakeCodec) Configuration() codec.Configuration {
	if len(f.configured) == 0 {
		return codec.Configuration{}
	}
	return f.configured[len(f.configured)-1]
}

func (f *fakeCodec) Begin() error { return nil }

func (f *fakeCodec) Decode(frame []byte) ([]byte, error) { return nil, codec.ErrEncodeUnsupported }

func (f *fakeCodec) Capabilities() []byte { return []byte{0xFF, 0xFF, 2, 53} }

func (f *fakeCodec) Close() error {
	f.closed++
	return nil
}

// mockSender records send requests and payloads.
type mockSender struct {
	maxPayload int
	requests   int
	sent       []transport.MediaPayload
	failures   int
	source     transport.SourceHandler
}

func (m *mockSender) MaxPayloadSize() int { return m.maxPayload }

func (m *mockSender) RequestSend() { m.requests++ }

func (m *mockSender) SendMedia(p transport.MediaPayload) error {
	if m.failures > 0 {
		m.failures--
		return transport.ErrSendFailed
	}
	m.sent = append(m.sent, transport.MediaPayload{
		Data:    append([]byte(nil), p.Data...),
		Samples: p.Samples,
	})
	return nil
}

func (m *mockSender) RegisterSource(h transport.SourceHandler) { m.source = h }

func pcmBlocks(n, size int) []byte {
	out := make([]byte, n*size)
	for i := range out {
		out[i] = byte(i / size)
	}
	return out
}
