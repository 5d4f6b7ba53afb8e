// Package event carries status, error and metadata notifications from the
// media pipeline up to the session owner.
//
// Events are enum-tagged values delivered synchronously on the event loop
// that raised them. Handlers must not block; a handler that needs to do slow
// work should hand the event off to its own goroutine.
package event

import (
	"fmt"
	"sync"
)

// Kind tags an Event.
type Kind uint8

// Event kinds.
const (
	// KindStateChanged reports a stream or playback state transition
	KindStateChanged Kind = iota
	// KindError reports a fault; ErrorKind classifies it
	KindError
	// KindSendFailed reports a transport send failure
	KindSendFailed
	// KindConfigured reports a new codec configuration taking effect
	KindConfigured
	// KindMetadata reports now-playing metadata from the remote
	KindMetadata
	// KindVolumeChanged reports a volume change in percent
	KindVolumeChanged
	// KindUnderrun reports the jitter buffer running dry during playback
	KindUnderrun
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStateChanged:
		return "state_changed"
	case KindError:
		return "error"
	case KindSendFailed:
		return "send_failed"
	case KindConfigured:
		return "configured"
	case KindMetadata:
		return "metadata"
	case KindVolumeChanged:
		return "volume_changed"
	case KindUnderrun:
		return "underrun"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ErrorKind classifies a fault.
type ErrorKind uint8

// Fault classes.
const (
	// ErrorTransient covers buffer pressure: data dropped, pipeline continues
	ErrorTransient ErrorKind = iota
	// ErrorMalformedInput covers packets too short for their headers
	ErrorMalformedInput
	// ErrorConfiguration covers unsupported codec configurations
	ErrorConfiguration
	// ErrorTransport covers failed sends
	ErrorTransport
	// ErrorLogic covers calls made in the wrong state
	ErrorLogic
)

// String returns the fault class name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorTransient:
		return "transient"
	case ErrorMalformedInput:
		return "malformed_input"
	case ErrorConfiguration:
		return "configuration"
	case ErrorTransport:
		return "transport"
	case ErrorLogic:
		return "logic"
	default:
		return fmt.Sprintf("error_kind(%d)", uint8(k))
	}
}

// MetadataType identifies a now-playing metadata field.
type MetadataType uint8

// Metadata fields reported by a remote player.
const (
	MetadataTitle MetadataType = iota
	MetadataArtist
	MetadataAlbum
	MetadataGenre
	MetadataPlaybackPosMs
	MetadataTrack
	MetadataTracks
	MetadataSongLen
	MetadataSongPos
)

// Event is a single notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    Kind
	Session string
	Role    string

	// KindStateChanged; Scope names the state machine ("stream" or "playback")
	Scope string
	From  string
	To    string

	// KindError, KindSendFailed
	ErrorKind ErrorKind
	Err       error

	// KindMetadata
	Metadata MetadataType
	Text     string
	Value    uint32

	// KindVolumeChanged
	Volume int
}

// Handler receives events.
type Handler func(Event)

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for every subsequent event.
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Emit delivers e to every subscriber before returning. A nil bus drops e.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
