// Package queue owns the playback order: track list, current index,
// shuffle order, and repeat policy.
package queue

import (
	"math/rand/v2"

	"github.com/soniqfm/soniq/internal/media"
)

// RepeatMode defines the repeat behavior.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "Off"
	case RepeatAll:
		return "All"
	case RepeatOne:
		return "One"
	default:
		return "Unknown"
	}
}

// Queue holds the ordered track list and playback position.
// All mutation goes through the coordinator; the queue itself is not
// safe for concurrent use.
type Queue struct {
	tracks       []media.Track
	original     []media.Track // pre-shuffle order, nil when shuffle is off
	currentIndex int           // -1 if nothing loaded
	shuffle      bool
	repeat       RepeatMode
	rng          *rand.Rand
}

// New creates a new empty queue.
func New() *Queue {
	return &Queue{
		currentIndex: -1,
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Current returns the currently loaded track, or nil if none.
func (q *Queue) Current() *media.Track {
	if q.currentIndex < 0 || q.currentIndex >= len(q.tracks) {
		return nil
	}
	return &q.tracks[q.currentIndex]
}

// CurrentIndex returns the index of the current track (-1 if none).
func (q *Queue) CurrentIndex() int {
	return q.currentIndex
}

// Tracks returns a copy of all tracks in playback order.
func (q *Queue) Tracks() []media.Track {
	result := make([]media.Track, len(q.tracks))
	copy(result, q.tracks)
	return result
}

// Len returns the number of tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.tracks) == 0
}

// Add appends tracks without changing the playback position.
func (q *Queue) Add(tracks ...media.Track) {
	q.tracks = append(q.tracks, tracks...)
	if q.shuffle {
		q.original = append(q.original, tracks...)
	}
}

// Replace clears the queue, adds tracks, and sets the index to 0.
// Shuffle is turned off. Returns the first track, or nil if empty.
func (q *Queue) Replace(tracks ...media.Track) *media.Track {
	q.tracks = append(q.tracks[:0:0], tracks...)
	q.original = nil
	q.shuffle = false
	if len(q.tracks) == 0 {
		q.currentIndex = -1
		return nil
	}
	q.currentIndex = 0
	return q.Current()
}

// JumpTo sets the current index. Returns the track at that position,
// or nil if the index is out of bounds.
func (q *Queue) JumpTo(index int) *media.Track {
	if index < 0 || index >= len(q.tracks) {
		return nil
	}
	q.currentIndex = index
	return q.Current()
}

// RemoveAt removes the track at the given index, adjusting the current
// index. Removing the current track leaves no current track.
func (q *Queue) RemoveAt(index int) bool {
	if index < 0 || index >= len(q.tracks) {
		return false
	}
	removed := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	if q.shuffle {
		for i, t := range q.original {
			if t.ID == removed.ID {
				q.original = append(q.original[:i], q.original[i+1:]...)
				break
			}
		}
	}

	switch {
	case q.currentIndex > index:
		q.currentIndex--
	case q.currentIndex == index:
		q.currentIndex = -1
	}
	return true
}

// Move moves the track at fromIndex to toIndex, following the current
// track if it is the one moved.
func (q *Queue) Move(fromIndex, toIndex int) bool {
	if fromIndex < 0 || fromIndex >= len(q.tracks) {
		return false
	}
	if toIndex < 0 || toIndex >= len(q.tracks) {
		return false
	}
	if fromIndex == toIndex {
		return true
	}

	track := q.tracks[fromIndex]
	q.tracks = append(q.tracks[:fromIndex], q.tracks[fromIndex+1:]...)
	q.tracks = append(q.tracks[:toIndex], append([]media.Track{track}, q.tracks[toIndex:]...)...)

	switch {
	case q.currentIndex == fromIndex:
		q.currentIndex = toIndex
	case fromIndex < q.currentIndex && q.currentIndex <= toIndex:
		q.currentIndex--
	case toIndex <= q.currentIndex && q.currentIndex < fromIndex:
		q.currentIndex++
	}
	return true
}

// Clear removes all tracks and resets the position.
func (q *Queue) Clear() {
	q.tracks = q.tracks[:0]
	q.original = nil
	q.shuffle = false
	q.currentIndex = -1
}

// RepeatMode returns the current repeat mode.
func (q *Queue) RepeatMode() RepeatMode {
	return q.repeat
}

// SetRepeatMode sets the repeat mode.
func (q *Queue) SetRepeatMode(mode RepeatMode) {
	q.repeat = mode
}

// CycleRepeatMode advances Off -> All -> One -> Off and returns the
// new mode.
func (q *Queue) CycleRepeatMode() RepeatMode {
	switch q.repeat {
	case RepeatOff:
		q.repeat = RepeatAll
	case RepeatAll:
		q.repeat = RepeatOne
	default:
		q.repeat = RepeatOff
	}
	return q.repeat
}

// Advance moves the position by direction (+1 next, -1 previous) per
// the repeat rules and returns the track to play. A nil result means
// the queue is exhausted: the position is left on the final track.
func (q *Queue) Advance(direction int) *media.Track {
	if q.currentIndex < 0 || len(q.tracks) == 0 {
		return nil
	}

	// Repeat-one replays the current track from the start; the index
	// never moves.
	if q.repeat == RepeatOne {
		return q.Current()
	}

	next := q.currentIndex + direction
	switch {
	case next >= len(q.tracks):
		if q.repeat == RepeatAll {
			q.currentIndex = 0
			return q.Current()
		}
		return nil
	case next < 0:
		// No wraparound backward: previous at the first track restarts it.
		q.currentIndex = 0
		return q.Current()
	default:
		q.currentIndex = next
		return q.Current()
	}
}

// HasNext returns true if Advance(+1) would yield a track.
func (q *Queue) HasNext() bool {
	if q.currentIndex < 0 || len(q.tracks) == 0 {
		return false
	}
	if q.repeat == RepeatOne || q.repeat == RepeatAll {
		return true
	}
	return q.currentIndex < len(q.tracks)-1
}

// PeekNext returns the track Advance(+1) would move to without
// changing the position.
func (q *Queue) PeekNext() *media.Track {
	if q.currentIndex < 0 || len(q.tracks) == 0 {
		return nil
	}
	if q.repeat == RepeatOne {
		return q.Current()
	}
	next := q.currentIndex + 1
	if next >= len(q.tracks) {
		if q.repeat == RepeatAll {
			return &q.tracks[0]
		}
		return nil
	}
	return &q.tracks[next]
}
