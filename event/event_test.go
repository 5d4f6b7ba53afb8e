package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBusDeliversInOrder checks that subscribers see events in publish order.
func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(func(e Event) { order = append(order, "first:"+e.Kind.String()) })
	bus.Subscribe(func(e Event) { order = append(order, "second:"+e.Kind.String()) })
	bus.Subscribe(nil)

	bus.Emit(Event{Kind: KindUnderrun})
	assert.Equal(t, []string{"first:underrun", "second:underrun"}, order)
}

// TestNilBusDrops verifies publishing on a nil bus is a no-op.
func TestNilBusDrops(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Emit(Event{Kind: KindError}) })
}

// TestRecorder checks the recorder filters events by kind.
func TestRecorder(t *testing.T) {
	bus := NewBus()
	rec := &Recorder{}
	bus.Subscribe(rec.Handle)

	boom := errors.New("boom")
	bus.Emit(Event{Kind: KindStateChanged, From: "idle", To: "buffering"})
	bus.Emit(Event{Kind: KindError, ErrorKind: ErrorTransport, Err: boom})
	bus.Emit(Event{Kind: KindStateChanged, From: "buffering", To: "playing"})

	assert.Len(t, rec.Events(), 3)
	states := rec.OfKind(KindStateChanged)
	assert.Len(t, states, 2)
	assert.Equal(t, "playing", states[1].To)

	errs := rec.OfKind(KindError)
	assert.ErrorIs(t, errs[0].Err, boom)
	assert.Equal(t, "transport", errs[0].ErrorKind.String())

	rec.Reset()
	assert.Empty(t, rec.Events())
}

// TestStringers covers the String methods of the event enumerations.
func TestStringers(t *testing.T) {
	assert.Equal(t, "send_failed", KindSendFailed.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
	assert.Equal(t, "malformed_input", ErrorMalformedInput.String())
	assert.Equal(t, "error_kind(42)", ErrorKind(42).String())
}
