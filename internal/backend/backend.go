// Package backend provides a uniform control surface over the two
// playback backends: direct audio streams and the embedded video
// widget used as an audio source.
package backend

import (
	"time"

	"github.com/soniqfm/soniq/internal/media"
)

// Status represents the backend-reported playback state.
type Status int

const (
	Unstarted Status = iota
	Playing
	Paused
	Buffering
	Cued
	Ended
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Buffering:
		return "buffering"
	case Cued:
		return "cued"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// EventType identifies an adapter event.
type EventType int

const (
	EventReady EventType = iota
	EventPlay
	EventPause
	EventEnd
	EventError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by an adapter toward the coordinator.
type Event struct {
	Type EventType
	Err  error // set for EventError
}

// Adapter is the capability surface both backends implement.
//
// Calls made before the underlying handle is initialized are never
// errors: the widget adapter remembers the latest play/pause request
// and replays it once ready, drops seeks, and reports 0 for position
// and duration. Errors during playback arrive as EventError and mean
// "this track is unplayable", nothing more.
type Adapter interface {
	// Load cues a track. EventReady fires once the backend is
	// controllable for this track.
	Load(track media.Track) error

	Play()
	Pause()
	// Seek clamps to [0, duration].
	Seek(pos time.Duration)

	// SetVolume takes a level in [0, 1].
	SetVolume(level float64)
	SetMuted(muted bool)

	Position() time.Duration
	Duration() time.Duration
	Status() Status

	// Events returns the adapter's event stream. The channel is closed
	// by Close.
	Events() <-chan Event

	Close() error
}

const eventBufferSize = 16

// emit sends an event without blocking, dropping it if the buffer is
// full.
func emit(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
	}
}

// clampPosition bounds pos to [0, duration]. An unknown duration (0)
// only clamps the lower bound.
func clampPosition(pos, duration time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}
