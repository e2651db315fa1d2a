package queue

import "github.com/soniqfm/soniq/internal/media"

// Shuffle returns whether shuffle is enabled.
func (q *Queue) Shuffle() bool {
	return q.shuffle
}

// ToggleShuffle flips shuffle and returns the new value.
func (q *Queue) ToggleShuffle() bool {
	q.SetShuffle(!q.shuffle)
	return q.shuffle
}

// SetShuffle enables or disables shuffle.
//
// Turning shuffle on snapshots the current order, then applies a
// uniform random permutation with the current track pinned at index 0
// so playback is not interrupted. Turning it off restores the
// snapshot and re-locates the current track within it.
func (q *Queue) SetShuffle(enabled bool) {
	if enabled == q.shuffle {
		return
	}
	if enabled {
		q.original = append(q.original[:0:0], q.tracks...)
		q.shuffleTracks(true)
		q.shuffle = true
		return
	}

	current := q.Current()
	q.tracks = q.original
	q.original = nil
	q.shuffle = false
	if current == nil {
		return
	}
	q.currentIndex = q.indexOf(current.ID)
}

// ReplaceShuffled replaces the queue with a uniform random permutation
// of tracks, enables shuffle, and starts at index 0. Unlike
// SetShuffle, nothing is pinned: no track is playing yet.
func (q *Queue) ReplaceShuffled(tracks ...media.Track) *media.Track {
	q.original = append([]media.Track(nil), tracks...)
	q.tracks = append(q.tracks[:0:0], tracks...)
	q.shuffle = true
	if len(q.tracks) == 0 {
		q.currentIndex = -1
		return nil
	}
	q.shuffleAll()
	q.currentIndex = 0
	return q.Current()
}

// shuffleTracks permutes the queue. With pinCurrent, the current track
// moves to index 0 and only the remaining tracks are permuted.
func (q *Queue) shuffleTracks(pinCurrent bool) {
	if !pinCurrent || q.currentIndex < 0 {
		q.shuffleAll()
		if q.currentIndex >= 0 {
			q.currentIndex = 0
		}
		return
	}

	q.tracks[0], q.tracks[q.currentIndex] = q.tracks[q.currentIndex], q.tracks[0]
	q.currentIndex = 0
	rest := q.tracks[1:]
	q.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
}

// shuffleAll applies a Fisher-Yates permutation to the whole queue.
func (q *Queue) shuffleAll() {
	q.rng.Shuffle(len(q.tracks), func(i, j int) {
		q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	})
}

// indexOf returns the index of the first track with the given id, or
// -1 if absent. Duplicate ids resolve to the earliest position.
func (q *Queue) indexOf(id string) int {
	for i, t := range q.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
