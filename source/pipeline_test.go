package source_test

import (
	"testing"

	"github.com/opd-ai/a2dpstream/audio"
	"github.com/opd-ai/a2dpstream/codec"
	"github.com/opd-ai/a2dpstream/event"
	"github.com/opd-ai/a2dpstream/eventloop"
	"github.com/opd-ai/a2dpstream/sink"
	"github.com/opd-ai/a2dpstream/source"
	"github.com/opd-ai/a2dpstream/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSourceToSinkOverLoopback streams frames from a source session to a sink
// session over the loopback transport.
func TestSourceToSinkOverLoopback(t *testing.T) {
	cfg := codec.DefaultConfiguration()
	cfg.Channels = 1
	cfg.ChannelMode = codec.ChannelModeMono
	frameBytes := cfg.SamplesPerFrame() * 2

	pcm := make([]byte, 20*frameBytes)
	for i := range pcm {
		pcm[i] = byte(i * 31)
	}
	input := audio.NewMemoryInput(pcm)
	input.EOF = true
	output := &audio.MemoryOutput{}

	loop := eventloop.New(64)
	sched := eventloop.NewManualScheduler()
	lb, err := transport.NewLoopback(loop, transport.LoopbackConfig{})
	require.NoError(t, err)

	events := &event.Recorder{}
	bus := event.NewBus()
	bus.Subscribe(events.Handle)

	rx, err := sink.NewSession(sink.Config{
		Codec:     codec.NewPCM(),
		Output:    output,
		Bus:       bus,
		Threshold: 4,
	})
	require.NoError(t, err)
	lb.RegisterSink(rx)
	require.NoError(t, rx.Open(cfg))
	require.NoError(t, rx.Start())

	tx, err := source.NewSession(source.Config{
		Codec:     codec.NewPCM(),
		Input:     input,
		Sender:    lb,
		Scheduler: sched,
		Bus:       bus,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Open(cfg))
	require.NoError(t, tx.Start())

	for i := 0; i < 100 && !tx.Pacer().Exhausted(); i++ {
		sched.Tick()
		loop.RunPending()
	}

	require.True(t, tx.Pacer().Exhausted())
	assert.Equal(t, 20, tx.Pacer().Stats().FramesSent)
	assert.Equal(t, 20, rx.Stats().FramesDecoded)
	assert.Equal(t, pcm, output.Bytes(), "audio arrives intact and in order")
	assert.Empty(t, events.OfKind(event.KindError))
	assert.Empty(t, events.OfKind(event.KindSendFailed))

	require.NoError(t, tx.Close())
	require.NoError(t, rx.Close())
	require.NoError(t, lb.Close())
}
