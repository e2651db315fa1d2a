package playback

import (
	"context"
	"errors"
	"time"

	"github.com/soniqfm/soniq/internal/backend"
	"github.com/soniqfm/soniq/internal/media"
	"github.com/soniqfm/soniq/internal/queue"
)

// ErrPlayDenied is returned when the anonymous play limit refuses a
// play transition. No adapter call was made and no state was mutated;
// the UI layer turns this into an upgrade prompt.
var ErrPlayDenied = errors.New("anonymous play limit reached")

// AdapterFactory constructs a backend adapter for a track source. The
// coordinator tears down the previous adapter before requesting a new
// one, so at most one adapter is live at a time.
type AdapterFactory func(source media.Source) (backend.Adapter, error)

// Service is the playback coordinator contract: the single writer of
// the now-playing state, driven by both backends.
type Service interface {
	// Playback control. All play-starting calls run the anonymous
	// play-gate and return ErrPlayDenied when it refuses.
	Play(ctx context.Context) error                  // start/resume at the current queue position
	PlayTrack(ctx context.Context, t media.Track) error
	PlayList(ctx context.Context, tracks []media.Track, startIndex int) error
	PlayShuffled(ctx context.Context, tracks []media.Track) error
	PlayAt(ctx context.Context, index int) error
	Pause()
	Toggle(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SeekTo(pos time.Duration)
	SetVolume(level float64)
	SetMuted(muted bool)

	// Queue manipulation
	AddToQueue(tracks ...media.Track)
	RemoveFromQueue(index int)
	MoveInQueue(from, to int)
	ClearQueue()

	// Mode control
	ToggleShuffle() bool
	SetRepeatMode(mode queue.RepeatMode)
	CycleRepeatMode() queue.RepeatMode

	// Foreground signals that the application regained visibility;
	// platforms may have silently suspended playback meanwhile.
	Foreground()

	// State queries
	Snapshot() Snapshot
	CurrentTrack() *media.Track
	IsPlaying() bool

	// Event subscription
	Subscribe() *Subscription

	// Lifecycle
	Close() error
}
