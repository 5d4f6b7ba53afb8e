// Package a2dpstream implements the media plane of an A2DP audio stream:
// the path encoded audio frames take between a Bluetooth transport and an
// audio device, in both directions.
//
// The receive side (package sink) demultiplexes media packets into codec
// frames, holds them in a jitter buffer until enough audio is queued,
// decodes them on a playback clock and hands PCM to an output device. The
// transmit side (package source) captures PCM, encodes it into a bounded
// queue and paces whole frames onto the transport whenever it reports
// capacity.
//
// # Getting Started
//
// Both pipelines run on a single event loop. Build a loop, a transport and
// the sessions, then open and start them from the loop:
//
//	loop := eventloop.New(1024)
//	link, _ := transport.NewLoopback(loop, transport.LoopbackConfig{})
//
//	snk, _ := sink.NewSession(sink.Config{
//	    Codec:     codec.NewPCM(),
//	    Output:    &audio.MemoryOutput{},
//	    Scheduler: loop,
//	})
//	link.RegisterSink(snk)
//
//	src, _ := source.NewSession(source.Config{
//	    Codec:     codec.NewPCM(),
//	    Input:     audio.NewToneInput(audio.Format{SampleRate: 16000, Channels: 1}, 440, 0.5),
//	    Sender:    link,
//	    Scheduler: loop,
//	})
//
//	loop.Post(func() {
//	    snk.Open(cfg)
//	    snk.Start()
//	    src.Open(cfg)
//	    src.Start()
//	})
//	loop.Run(ctx)
//
// Package simulator wires exactly this, and cmd/a2dpsim exposes it on the
// command line.
//
// # Events
//
// Sessions report state changes, faults, underruns, volume and metadata on
// an event.Bus. Faults never stop a pipeline: malformed packets, overruns
// and failed sends are dropped and reported.
//
// # Logging
//
// All packages log through logrus with a "function" field. Configure the
// level and format with config.ApplyLogging.
package a2dpstream
