package playback

import (
	"time"

	"github.com/soniqfm/soniq/internal/media"
	"github.com/soniqfm/soniq/internal/queue"
)

// StateChange is emitted when the playback state machine moves.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange is emitted when playback moves to a different track:
// explicit play calls, next/previous, and automatic advance when a
// track ends. Repeat-one replays do not emit (the track is unchanged).
type TrackChange struct {
	Previous *media.Track
	Current  *media.Track
	Index    int
}

// PositionChange is emitted on seeks and on sync-loop reconciliation.
type PositionChange struct {
	Position time.Duration
	Duration time.Duration
}

// QueueChange is emitted when the queue contents change.
type QueueChange struct {
	Tracks []media.Track
	Index  int
}

// ModeChange is emitted when repeat or shuffle mode changes.
type ModeChange struct {
	RepeatMode queue.RepeatMode
	Shuffled   bool
}

// GateDenied is emitted when the anonymous play limit refuses a play.
// This is a normal outcome, not a failure: the UI layer presents an
// upgrade prompt from it.
type GateDenied struct {
	Track media.Track
}

// ErrorEvent is emitted when a track is skipped as unplayable, or the
// coordinator gives up after too many consecutive failures.
type ErrorEvent struct {
	Track *media.Track
	Err   error
}
