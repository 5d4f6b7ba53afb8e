package sink

import (
	"testing"

	"github.com/opd-ai/a2dpstream/audio"
	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/event"
	"github.com/opd-ai/a2dpstream/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneFramePerTick is a mono configuration where one 10ms playback tick
// covers exactly one 128-sample frame.
func oneFramePerTick() codec.Configuration {
	cfg := codec.DefaultConfiguration()
	cfg.SampleRate = 12800
	cfg.Channels = 1
	cfg.ChannelMode = codec.ChannelModeMono
	return cfg
}

type sinkFixture struct {
	session *Session
	codec   *fakeCodec
	output  *audio.MemoryOutput
	sched   *eventloop.ManualScheduler
	events  *event.Recorder
}

func newFixture(t *testing.T, rebuffer bool, freeRunning bool) *sinkFixture {
	t.Helper()

	f := &sinkFixture{
		codec:  &fakeCodec{encoded: 100, decoded: 256},
		output: &audio.MemoryOutput{},
		sched:  eventloop.NewManualScheduler(),
		events: &event.Recorder{},
	}
	bus := event.NewBus()
	bus.Subscribe(f.events.Handle)

	cfg := Config{
		ID:                 "sink-test",
		Codec:              f.codec,
		Output:             f.output,
		Bus:                bus,
		Scheduler:          f.sched,
		RebufferOnUnderrun: rebuffer,
	}
	if freeRunning {
		cfg.Scheduler = nil
	}

	s, err := NewSession(cfg)
	require.NoError(t, err)
	f.session = s
	return f
}

func (f *sinkFixture) openAndStart(t *testing.T) {
	t.Helper()
	require.NoError(t, f.session.Open(oneFramePerTick()))
	require.NoError(t, f.session.Start())
}

func (f *sinkFixture) push(t *testing.T, n int, fill byte) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.session.OnFrameReceived(frames(1, 100, fill), 1))
	}
}

func (f *sinkFixture) errorsOf(kind event.ErrorKind) []event.Event {
	var out []event.Event
	for _, e := range f.events.OfKind(event.KindError) {
		if e.ErrorKind == kind {
			out = append(out, e)
		}
	}
	return out
}

// TestNewSessionRequiresCollaborators ensures a sink needs a codec and an
// output.
func TestNewSessionRequiresCollaborators(t *testing.T) {
	_, err := NewSession(Config{Output: &audio.MemoryOutput{}})
	assert.ErrorIs(t, err, ErrMissingCodec)

	_, err = NewSession(Config{Codec: &fakeCodec{}})
	assert.ErrorIs(t, err, ErrMissingOutput)

	s, err := NewSession(Config{Codec: &fakeCodec{}, Output: &audio.MemoryOutput{}})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
}

// TestSessionJitterThreshold checks that playback waits for the frame
// threshold.
func TestSessionJitterThreshold(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)

	for i := 1; i < 30; i++ {
		f.push(t, 1, byte(i))
		assert.Equal(t, StateBuffering, f.session.PlaybackState(), "after %d bytes", i*100)
	}
	assert.Equal(t, 2900, f.session.Available())

	f.push(t, 1, 30)
	assert.Equal(t, 3000, f.session.Available())
	assert.Equal(t, StatePlaying, f.session.PlaybackState())
	assert.Empty(t, f.codec.firstBytes, "nothing decoded before the first playback tick")
}

// TestSessionThresholdWithMultiFramePackets counts frames, not packets,
// toward the threshold.
func TestSessionThresholdWithMultiFramePackets(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)

	f.session.OnMediaPacket(mediaPacket(1, 10, 100, 1))
	f.session.OnMediaPacket(mediaPacket(2, 10, 100, 2))
	assert.Equal(t, StateBuffering, f.session.PlaybackState())

	f.session.OnMediaPacket(mediaPacket(3, 10, 100, 3))
	assert.Equal(t, StatePlaying, f.session.PlaybackState())
	assert.Equal(t, 30, f.session.FramesBuffered())
	assert.Equal(t, 3, f.session.Stats().PacketsAccepted)
}

// TestSessionMalformedPacketLeavesBufferUntouched drops a malformed packet
// without touching buffered frames.
func TestSessionMalformedPacketLeavesBufferUntouched(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)
	f.push(t, 3, 1)
	before := f.session.Available()

	f.session.OnMediaPacket(make([]byte, 8))

	assert.Equal(t, before, f.session.Available())
	assert.Equal(t, StateBuffering, f.session.PlaybackState())
	assert.Len(t, f.errorsOf(event.ErrorMalformedInput), 1)
	assert.Equal(t, 1, f.session.Stats().Malformed)

	assert.Error(t, f.session.OnFrameReceived(frames(1, 10, 1), 0))
	assert.Error(t, f.session.OnFrameReceived([]byte{1, 2}, 5))
	assert.Equal(t, before, f.session.Available())
	assert.Len(t, f.errorsOf(event.ErrorMalformedInput), 3)
}

// TestSessionPlaybackClock checks one frame is played per playback tick.
func TestSessionPlaybackClock(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)
	f.push(t, 30, 7)

	f.sched.Tick()
	f.sched.Tick()
	assert.Len(t, f.codec.firstBytes, 2, "one frame per tick at 12.8 kHz")
	assert.Equal(t, 2*256, f.output.Len())
	assert.Equal(t, 2800, f.session.Available())
}

// TestSessionUnderrunKeepsPlayingByDefault verifies an underrun keeps the
// gate in PLAYING by default.
func TestSessionUnderrunKeepsPlayingByDefault(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)
	f.push(t, 30, 1)

	for i := 0; i < 30; i++ {
		f.sched.Tick()
	}
	assert.Equal(t, 30, f.session.Stats().FramesDecoded)

	f.sched.Tick()
	f.sched.Tick()
	assert.Equal(t, StatePlaying, f.session.PlaybackState())
	assert.Len(t, f.events.OfKind(event.KindUnderrun), 1, "one event per starvation episode")

	// a single frame plays at once, no refill to the threshold
	f.push(t, 1, 9)
	f.sched.Tick()
	assert.Equal(t, 31, f.session.Stats().FramesDecoded)
	assert.Equal(t, byte(9), f.codec.firstBytes[30])
}

// TestSessionUnderrunRebuffers verifies an underrun returns to BUFFERING when
// rebuffering is on.
func TestSessionUnderrunRebuffers(t *testing.T) {
	f := newFixture(t, true, false)
	f.openAndStart(t)
	f.push(t, 30, 1)
	for i := 0; i < 31; i++ {
		f.sched.Tick()
	}

	assert.Equal(t, StateBuffering, f.session.PlaybackState())
	assert.Len(t, f.events.OfKind(event.KindUnderrun), 1)
	assert.Equal(t, 1, f.session.Stats().Underruns)

	f.push(t, 29, 2)
	f.sched.Tick()
	assert.Equal(t, 30, f.session.Stats().FramesDecoded, "buffering again, nothing plays")

	f.push(t, 1, 2)
	assert.Equal(t, StatePlaying, f.session.PlaybackState())
	f.sched.Tick()
	assert.Equal(t, 31, f.session.Stats().FramesDecoded)
}

// TestSessionReconfigurationDiscardsBufferedFrames flushes frames buffered
// under the old configuration.
func TestSessionReconfigurationDiscardsBufferedFrames(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)
	f.push(t, 35, 0xAA)
	require.Equal(t, StatePlaying, f.session.PlaybackState())
	require.Equal(t, 3500, f.session.Available())

	cfgB := oneFramePerTick()
	cfgB.MaxBitpool = 35
	require.NoError(t, f.session.OnConfigurationChanged(cfgB))

	assert.Zero(t, f.session.Available())
	assert.Equal(t, StateIdle, f.session.PlaybackState())
	assert.Equal(t, StreamPlaying, f.session.State())
	assert.Equal(t, 1, f.codec.closed)
	assert.Equal(t, cfgB, f.codec.cfg)
	assert.Equal(t, cfgB, f.session.Configuration())
	assert.Len(t, f.events.OfKind(event.KindConfigured), 2)

	f.push(t, 30, 0xBB)
	f.sched.Tick()
	require.NotEmpty(t, f.codec.firstBytes)
	for _, b := range f.codec.firstBytes {
		assert.Equal(t, byte(0xBB), b, "no frame from the old configuration is decoded")
	}
}

// TestSessionReconfigurationRejected closes the session when a new
// configuration is refused.
func TestSessionReconfigurationRejected(t *testing.T) {
	f := newFixture(t, false, false)
	f.codec.reject = 8000
	f.openAndStart(t)
	f.push(t, 5, 1)

	bad := oneFramePerTick()
	bad.SampleRate = 8000
	assert.ErrorIs(t, f.session.OnConfigurationChanged(bad), errRejected)
	assert.Equal(t, StreamClosed, f.session.State())
	assert.Len(t, f.errorsOf(event.ErrorConfiguration), 1)
}

// TestSessionSameConfigurationIsNoop keeps buffered frames when the
// configuration is unchanged.
func TestSessionSameConfigurationIsNoop(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)
	f.push(t, 5, 1)

	require.NoError(t, f.session.OnConfigurationChanged(oneFramePerTick()))
	assert.Equal(t, 500, f.session.Available())
	assert.Zero(t, f.codec.closed)
}

// TestSessionOpenRejectedConfiguration reports a configuration error when
// Open is refused.
func TestSessionOpenRejectedConfiguration(t *testing.T) {
	f := newFixture(t, false, false)
	f.codec.reject = 12800

	err := f.session.Open(oneFramePerTick())
	assert.ErrorIs(t, err, errRejected)
	assert.Equal(t, StreamClosed, f.session.State())
	assert.Len(t, f.errorsOf(event.ErrorConfiguration), 1)
}

// TestSessionPauseResume holds playback while paused and resumes it
// afterwards.
func TestSessionPauseResume(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)
	f.push(t, 30, 1)
	assert.Equal(t, 1, f.sched.Active())

	require.NoError(t, f.session.Pause())
	require.NoError(t, f.session.Pause())
	assert.Equal(t, StreamPaused, f.session.State())
	assert.Equal(t, StatePaused, f.session.PlaybackState())
	assert.Zero(t, f.sched.Active(), "playback clock stopped")

	err := f.session.OnFrameReceived(frames(1, 100, 2), 1)
	assert.ErrorIs(t, err, ErrPaused)
	assert.Equal(t, 3000, f.session.Available(), "buffer retained, no fill")
	assert.Equal(t, 1, f.session.Stats().DroppedPaused)

	require.NoError(t, f.session.Resume())
	assert.Equal(t, StreamPlaying, f.session.State())
	assert.Equal(t, StatePlaying, f.session.PlaybackState(), "threshold already met")
	assert.Equal(t, 1, f.sched.Active())

	f.sched.Tick()
	assert.Equal(t, 1, f.session.Stats().FramesDecoded)
}

// TestSessionStateErrors covers calls made in the wrong stream state.
func TestSessionStateErrors(t *testing.T) {
	f := newFixture(t, false, false)

	assert.ErrorIs(t, f.session.Start(), ErrNotOpen)
	assert.ErrorIs(t, f.session.Pause(), ErrNotOpen)
	assert.ErrorIs(t, f.session.Resume(), ErrNotOpen)
	assert.ErrorIs(t, f.session.OnFrameReceived(frames(1, 100, 1), 1), ErrNotOpen)

	require.NoError(t, f.session.Open(oneFramePerTick()))
	assert.ErrorIs(t, f.session.Open(oneFramePerTick()), ErrInvalidState)
	assert.ErrorIs(t, f.session.Pause(), ErrInvalidState)
	assert.ErrorIs(t, f.session.Resume(), ErrInvalidState)

	assert.NotEmpty(t, f.errorsOf(event.ErrorLogic))
}

// TestSessionCloseIsIdempotent checks that closing twice is harmless.
func TestSessionCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)
	f.push(t, 10, 1)

	require.NoError(t, f.session.Close())
	require.NoError(t, f.session.Close())
	assert.Equal(t, StreamClosed, f.session.State())
	assert.Equal(t, StateIdle, f.session.PlaybackState())
	assert.Zero(t, f.session.Available())
	assert.Zero(t, f.sched.Active())
	assert.Equal(t, 1, f.codec.closed)

	f.session.OnMediaPacket(mediaPacket(1, 1, 100, 1))
	assert.Zero(t, f.session.Available())
}

// TestSessionFreeRunningDrainsOnArrival decodes frames as they arrive when no
// scheduler is set.
func TestSessionFreeRunningDrainsOnArrival(t *testing.T) {
	f := newFixture(t, false, true)
	f.openAndStart(t)

	f.push(t, 29, 1)
	assert.Zero(t, f.output.Len())

	f.push(t, 1, 1)
	assert.Zero(t, f.session.Available())
	assert.Equal(t, 30*256, f.output.Len())

	f.push(t, 1, 1)
	assert.Equal(t, 31*256, f.output.Len())
}

// TestSessionOpenNotStartedBuffersOnly buffers frames on an open stream
// without playing them.
func TestSessionOpenNotStartedBuffersOnly(t *testing.T) {
	f := newFixture(t, false, true)
	require.NoError(t, f.session.Open(oneFramePerTick()))

	f.push(t, 30, 1)
	assert.Equal(t, StatePlaying, f.session.PlaybackState())
	assert.Zero(t, f.output.Len(), "no output before Start")

	require.NoError(t, f.session.Start())
	assert.Equal(t, 30*256, f.output.Len())
}

// TestSessionOverrun reports an overrun when the jitter buffer is full.
func TestSessionOverrun(t *testing.T) {
	f := newFixture(t, false, false)
	require.NoError(t, f.session.Open(oneFramePerTick()))

	f.push(t, 72, 1)
	assert.Equal(t, 7200, f.session.Available())

	err := f.session.OnFrameReceived(frames(1, 100, 1), 1)
	assert.ErrorIs(t, err, ErrOverrun)
	assert.Equal(t, 7200, f.session.Available())
	assert.Len(t, f.errorsOf(event.ErrorTransient), 1)
	assert.Equal(t, 1, f.session.Stats().Overruns)
}

// TestSessionDecodeFailureDropsFrame drops a frame the decoder rejects and
// keeps going.
func TestSessionDecodeFailureDropsFrame(t *testing.T) {
	f := newFixture(t, false, true)
	f.codec.failDecode = true
	f.openAndStart(t)

	f.push(t, 30, 1)
	assert.Zero(t, f.session.Available())
	assert.Zero(t, f.output.Len())
	assert.Equal(t, 30, f.session.Stats().DecodeErrors)
}

// TestSessionVolumeAndMetadata applies volume changes and forwards metadata
// as events.
func TestSessionVolumeAndMetadata(t *testing.T) {
	f := newFixture(t, false, true)
	f.openAndStart(t)

	assert.Equal(t, 100, f.session.SetVolume(130))
	assert.Equal(t, 100, f.session.SetAbsoluteVolume(127))
	assert.Equal(t, 49, f.session.SetAbsoluteVolume(63))
	assert.Equal(t, 49, f.session.Volume())

	volumes := f.events.OfKind(event.KindVolumeChanged)
	require.Len(t, volumes, 3)
	assert.Equal(t, 49, volumes[2].Volume)
	assert.Equal(t, "sink-test", volumes[2].Session)
	assert.Equal(t, "sink", volumes[2].Role)

	f.session.OnMetadata(event.MetadataTitle, "Blue in Green", 0)
	f.session.OnMetadata(event.MetadataSongLen, "", 337000)
	meta := f.events.OfKind(event.KindMetadata)
	require.Len(t, meta, 2)
	assert.Equal(t, "Blue in Green", meta[0].Text)
	assert.Equal(t, uint32(337000), meta[1].Value)

	f.session.SetVolume(0)
	f.push(t, 30, 0x40)
	assert.Equal(t, make([]byte, 30*256), f.output.Bytes(), "muted output")
}

// TestSessionStateEvents checks the state change events a session emits.
func TestSessionStateEvents(t *testing.T) {
	f := newFixture(t, false, false)
	f.openAndStart(t)
	f.push(t, 30, 1)
	require.NoError(t, f.session.Close())

	var got []string
	for _, e := range f.events.OfKind(event.KindStateChanged) {
		got = append(got, e.Scope+":"+e.From+">"+e.To)
	}
	assert.Equal(t, []string{
		"stream:Closed>Open",
		"stream:Open>Playing",
		"playback:IDLE>BUFFERING",
		"playback:BUFFERING>PLAYING",
		"playback:PLAYING>IDLE",
		"stream:Playing>Closed",
	}, got)
}

// TestSessionDecodesMixedFrameSizes verifies that packets whose frames
// differ in size reach the decoder one whole frame at a time.
func TestSessionDecodesMixedFrameSizes(t *testing.T) {
	fc := &fakeCodec{encoded: 1275, decoded: 64}
	s, err := NewSession(Config{
		ID:        "sink-mixed",
		Codec:     fc,
		Output:    &audio.MemoryOutput{},
		Threshold: 4,
	})
	require.NoError(t, err)
	require.NoError(t, s.Open(oneFramePerTick()))
	require.NoError(t, s.Start())

	s.OnMediaPacket(mediaPacket(1, 1, 10, 0x0a))
	s.OnMediaPacket(mediaPacket(2, 1, 20, 0x0b))
	s.OnMediaPacket(mediaPacket(3, 2, 7, 0x0c))
	assert.Equal(t, StatePlaying, s.PlaybackState())

	assert.Equal(t, []int{10, 20, 7, 7}, fc.frameLens)
	assert.Equal(t, []byte{0x0a, 0x0b, 0x0c, 0x0c}, fc.firstBytes)
	assert.Zero(t, s.Available())
	assert.Zero(t, s.FramesBuffered())
}

// TestSessionWireConfiguration opens the sink from a remote configuration
// element and reconfigures it with a second one.
func TestSessionWireConfiguration(t *testing.T) {
	f := newFixture(t, false, false)
	cfg := codec.DefaultConfiguration()
	element, err := codec.EncodeCodecInfo(cfg)
	require.NoError(t, err)

	require.NoError(t, f.session.OnWireConfiguration(element[:]))
	assert.Equal(t, StreamOpen, f.session.State())
	assert.Equal(t, cfg, f.session.Configuration())

	cfg.SampleRate = 48000
	element, err = codec.EncodeCodecInfo(cfg)
	require.NoError(t, err)
	require.NoError(t, f.session.OnWireConfiguration(element[:]))
	assert.Equal(t, StreamOpen, f.session.State())
	assert.Equal(t, 48000, f.session.Configuration().SampleRate)
	assert.Empty(t, f.errorsOf(event.ErrorConfiguration))
}

// TestSessionWireConfigurationUnknownChannelMode checks that an element with
// an unknown channel-mode flag is reported and leaves the session Closed.
func TestSessionWireConfigurationUnknownChannelMode(t *testing.T) {
	tests := []struct {
		name string
		open bool
	}{
		{"from closed", false},
		{"while playing", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false, false)
			if tt.open {
				f.openAndStart(t)
			}

			// 0x03 sets both joint stereo and stereo.
			err := f.session.OnWireConfiguration([]byte{0x23, 0x15, 2, 53})
			assert.ErrorIs(t, err, codec.ErrUnsupportedWireValue)
			assert.Equal(t, StreamClosed, f.session.State())
			assert.Len(t, f.errorsOf(event.ErrorConfiguration), 1)
		})
	}
}
