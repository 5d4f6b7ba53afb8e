package sink

import "fmt"

// PlaybackState is the state of the playback gate.
type PlaybackState uint8

// Playback gate states.
const (
	// StateIdle: buffer empty, playback stopped
	StateIdle PlaybackState = iota
	// StateBuffering: frames accumulating, playback stopped
	StateBuffering
	// StatePlaying: frames draining to the decoder
	StatePlaying
	// StatePaused: buffer retained, no network fill
	StatePaused
)

// String returns the state name.
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBuffering:
		return "BUFFERING"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	default:
		return fmt.Sprintf("PlaybackState(%d)", uint8(s))
	}
}

// Gate decides when buffered frames may be played.
type Gate struct {
	state     PlaybackState
	threshold int
	rebuffer  bool
	onChange  func(from, to PlaybackState)
}

// NewGate creates an IDLE gate that starts playback at threshold frames.
// onChange, if not nil, is called on every transition.
func NewGate(threshold int, rebufferOnUnderrun bool, onChange func(from, to PlaybackState)) *Gate {
	return &Gate{
		threshold: threshold,
		rebuffer:  rebufferOnUnderrun,
		onChange:  onChange,
	}
}

// State returns the current state.
func (g *Gate) State() PlaybackState { return g.state }

// Threshold returns the frame count that starts playback.
func (g *Gate) Threshold() int { return g.threshold }

// OnBuffered is called after frames were added. The first data moves IDLE to
// BUFFERING; reaching the threshold moves BUFFERING to PLAYING.
func (g *Gate) OnBuffered(framesBuffered int) {
	if g.state == StateIdle {
		g.transition(StateBuffering)
	}
	if g.state == StateBuffering && framesBuffered >= g.threshold {
		g.transition(StatePlaying)
	}
}

// OnUnderrun is called when playback found no whole frame. It reports
// whether the gate went back to BUFFERING.
func (g *Gate) OnUnderrun() bool {
	if g.state != StatePlaying || !g.rebuffer {
		return false
	}
	g.transition(StateBuffering)
	return true
}

// Pause holds playback and retains the buffer.
func (g *Gate) Pause() {
	if g.state != StatePaused {
		g.transition(StatePaused)
	}
}

// Resume leaves PAUSED. An empty buffer returns to IDLE, otherwise the gate
// buffers and plays at once if the threshold is already met.
func (g *Gate) Resume(framesBuffered, availableBytes int) {
	if g.state != StatePaused {
		return
	}
	if availableBytes == 0 {
		g.transition(StateIdle)
		return
	}
	g.transition(StateBuffering)
	g.OnBuffered(framesBuffered)
}

// Reset returns to IDLE.
func (g *Gate) Reset() {
	if g.state != StateIdle {
		g.transition(StateIdle)
	}
}

func (g *Gate) transition(to PlaybackState) {
	from := g.state
	g.state = to
	if g.onChange != nil {
		g.onChange(from, to)
	}
}
