package playback

import (
	"time"

	"github.com/soniqfm/soniq/internal/media"
	"github.com/soniqfm/soniq/internal/queue"
)

// State represents the coordinator's per-track state machine.
//
// Transitions:
//
//	Idle → Loading            (play)
//	Loading → Playing         (backend confirms)
//	Playing ⇄ Paused          (pause/resume)
//	Playing → Ended           (track finished)
//	Ended → Loading           (advance to next track)
//	Ended → Idle              (queue exhausted, repeat off)
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateEnded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a track is loaded (anything but Idle).
func (s State) IsActive() bool {
	return s != StateIdle
}

// Snapshot is a read-only copy of the playback state for rendering.
// The coordinator is the only writer; consumers render from snapshots
// or from subscription events, never by mutating shared state.
type Snapshot struct {
	CurrentTrack *media.Track
	Queue        []media.Track
	CurrentIndex int

	State     State
	IsPlaying bool
	IsLoading bool

	Position time.Duration
	Duration time.Duration
	Volume   float64
	Muted    bool

	Shuffled   bool
	RepeatMode queue.RepeatMode

	// ActiveSource is only meaningful while a track is loaded.
	ActiveSource media.Source
}
