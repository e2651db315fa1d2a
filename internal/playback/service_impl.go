package playback

import (
	"context"
	"sync"
	"time"

	"github.com/soniqfm/soniq/internal/backend"
	"github.com/soniqfm/soniq/internal/gate"
	"github.com/soniqfm/soniq/internal/gesture"
	"github.com/soniqfm/soniq/internal/media"
	"github.com/soniqfm/soniq/internal/queue"
)

// After this many consecutive unplayable tracks the coordinator stops
// auto-skipping and goes Idle instead of looping forever.
const maxConsecutiveFailures = 5

// Verify serviceImpl implements Service at compile time.
var _ Service = (*serviceImpl)(nil)

type serviceImpl struct {
	mu sync.Mutex

	queue    *queue.Queue
	gate     *gate.Gate
	registry *gesture.Registry
	factory  AdapterFactory

	// adapter is the single live backend adapter. It is replaced, never
	// shared: teardown always precedes construction of a different one.
	adapter      backend.Adapter
	activeSource media.Source

	state    State
	position time.Duration
	duration time.Duration
	volume   float64
	muted    bool

	// pendingLoads counts loads whose ready event has not arrived yet.
	// A ready that leaves the count above zero answers a superseded
	// load and is discarded, so rapid skips cannot resurrect an old
	// track.
	pendingLoads int
	skipFailures int

	syncStop chan struct{}

	subs   []*Subscription
	subsMu sync.RWMutex

	closed bool
}

// New creates the playback coordinator. It owns the queue and is the
// only writer of playback state.
func New(q *queue.Queue, g *gate.Gate, reg *gesture.Registry, factory AdapterFactory) Service {
	return &serviceImpl{
		queue:    q,
		gate:     g,
		registry: reg,
		factory:  factory,
		state:    StateIdle,
		volume:   1,
	}
}

// --- Playback control ---

// Play starts or resumes playback at the current queue position.
func (s *serviceImpl) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	// Resuming a paused, already-counted track skips the gate.
	if s.state == StatePaused && s.adapter != nil {
		s.registry.Unlock()
		s.adapter.Play()
		return nil
	}

	track := s.queue.Current()
	jump := false
	if track == nil {
		if s.queue.IsEmpty() {
			return nil
		}
		first := s.queue.Tracks()[0]
		track = &first
		jump = true
	}
	if err := s.authorizePlay(ctx, *track); err != nil {
		return err
	}
	if jump {
		s.queue.JumpTo(0)
	}
	return s.startTrackLocked(ctx, nil, *track, true)
}

// PlayTrack replaces the queue with the single track and plays it.
// The gate runs before the mutex is taken and before any queue
// mutation: a denied play leaves everything untouched.
func (s *serviceImpl) PlayTrack(ctx context.Context, t media.Track) error {
	if err := s.authorizePlay(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	prev := s.queue.Current()
	s.queue.Replace(t)
	s.notifyQueue()
	return s.startTrackLocked(ctx, prev, t, true)
}

// PlayList replaces the queue and starts at startIndex.
func (s *serviceImpl) PlayList(ctx context.Context, tracks []media.Track, startIndex int) error {
	if len(tracks) == 0 {
		return nil
	}
	target := tracks[0]
	if startIndex > 0 && startIndex < len(tracks) {
		target = tracks[startIndex]
	}
	if err := s.authorizePlay(ctx, target); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	prev := s.queue.Current()
	s.queue.Replace(tracks...)
	if startIndex > 0 {
		if t := s.queue.JumpTo(startIndex); t == nil {
			s.queue.JumpTo(0)
		}
	}
	s.notifyQueue()
	s.notifyMode()
	track := s.queue.Current()
	return s.startTrackLocked(ctx, prev, *track, true)
}

// PlayShuffled replaces the queue with a random permutation of tracks,
// enables shuffle, and starts at the first position. The permutation
// has not been drawn yet when the gate runs, so a denial event carries
// the first requested track.
func (s *serviceImpl) PlayShuffled(ctx context.Context, tracks []media.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	if err := s.authorizePlay(ctx, tracks[0]); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	prev := s.queue.Current()
	track := s.queue.ReplaceShuffled(tracks...)
	s.notifyQueue()
	s.notifyMode()
	return s.startTrackLocked(ctx, prev, *track, true)
}

// PlayAt plays the queue track at the given index.
func (s *serviceImpl) PlayAt(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if index < 0 || index >= s.queue.Len() {
		return nil
	}
	track := s.queue.Tracks()[index]
	if err := s.authorizePlay(ctx, track); err != nil {
		return err
	}
	prev := s.queue.Current()
	s.queue.JumpTo(index)
	return s.startTrackLocked(ctx, prev, track, true)
}

// Pause pauses playback. The state flips immediately so the UI stays
// responsive; the sync loop corrects it if the backend kept playing.
func (s *serviceImpl) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.adapter == nil || s.state != StatePlaying {
		return
	}
	prev := s.state
	s.state = StatePaused
	s.adapter.Pause()
	s.notifyState(prev, s.state)
}

// Toggle pauses when playing, otherwise plays.
func (s *serviceImpl) Toggle(ctx context.Context) error {
	s.mu.Lock()
	playing := s.state == StatePlaying
	s.mu.Unlock()
	if playing {
		s.Pause()
		return nil
	}
	return s.Play(ctx)
}

// Next advances to the next track per shuffle/repeat rules.
func (s *serviceImpl) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.advanceLocked(ctx, 1, true)
}

// Previous moves to the previous track (clamped at the first).
func (s *serviceImpl) Previous(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.advanceLocked(ctx, -1, true)
}

// SeekTo seeks to an absolute position. For the widget backend the
// position is written optimistically so the progress bar does not snap
// back before the next poll tick.
func (s *serviceImpl) SeekTo(pos time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.adapter == nil {
		return
	}
	s.adapter.Seek(pos)
	if s.activeSource == media.SourceWidget {
		if pos < 0 {
			pos = 0
		}
		if s.duration > 0 && pos > s.duration {
			pos = s.duration
		}
		s.position = pos
		s.notifyPosition()
	}
}

// SetVolume sets the output level (0.0 to 1.0).
func (s *serviceImpl) SetVolume(level float64) {
	level = min(max(level, 0), 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = level
	if s.adapter != nil {
		s.adapter.SetVolume(level)
	}
}

// SetMuted sets the muted state.
func (s *serviceImpl) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
	if s.adapter != nil {
		s.adapter.SetMuted(muted)
	}
}

// --- Queue manipulation ---

// AddToQueue appends tracks without changing playback.
func (s *serviceImpl) AddToQueue(tracks ...media.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Add(tracks...)
	s.notifyQueue()
}

// RemoveFromQueue removes the track at the given index.
func (s *serviceImpl) RemoveFromQueue(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.RemoveAt(index) {
		s.notifyQueue()
	}
}

// MoveInQueue moves the track at from to position to.
func (s *serviceImpl) MoveInQueue(from, to int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Move(from, to) {
		s.notifyQueue()
	}
}

// ClearQueue clears the queue and stops playback.
func (s *serviceImpl) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Clear()
	s.stopSyncLoopLocked()
	if s.adapter != nil {
		s.adapter.Pause()
	}
	prev := s.state
	s.state = StateIdle
	s.position = 0
	s.duration = 0
	s.notifyQueue()
	s.notifyState(prev, s.state)
}

// --- Mode control ---

// ToggleShuffle flips shuffle and returns the new value.
func (s *serviceImpl) ToggleShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled := s.queue.ToggleShuffle()
	s.notifyQueue()
	s.notifyMode()
	return enabled
}

// SetRepeatMode sets the repeat mode.
func (s *serviceImpl) SetRepeatMode(mode queue.RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetRepeatMode(mode)
	s.notifyMode()
}

// CycleRepeatMode advances the repeat mode and returns the new one.
func (s *serviceImpl) CycleRepeatMode() queue.RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := s.queue.CycleRepeatMode()
	s.notifyMode()
	return mode
}

// Foreground invokes the resume gesture to recover playback the
// platform may have suspended while backgrounded.
func (s *serviceImpl) Foreground() {
	s.registry.Resume()
}

// --- State queries ---

// Snapshot returns a copy of the playback state for rendering. The
// stream backend reports time continuously, so its position is read
// live; the widget backend's cached values are reconciled by the sync
// loop.
func (s *serviceImpl) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, dur := s.position, s.duration
	if s.adapter != nil && s.activeSource == media.SourceStream {
		pos = s.adapter.Position()
		if d := s.adapter.Duration(); d > 0 {
			dur = d
		}
	}

	return Snapshot{
		CurrentTrack: s.queue.Current(),
		Queue:        s.queue.Tracks(),
		CurrentIndex: s.queue.CurrentIndex(),
		State:        s.state,
		IsPlaying:    s.state == StatePlaying,
		IsLoading:    s.state == StateLoading,
		Position:     pos,
		Duration:     dur,
		Volume:       s.volume,
		Muted:        s.muted,
		Shuffled:     s.queue.Shuffle(),
		RepeatMode:   s.queue.RepeatMode(),
		ActiveSource: s.activeSource,
	}
}

// CurrentTrack returns the current track, or nil.
func (s *serviceImpl) CurrentTrack() *media.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Current()
}

// IsPlaying returns true while playback is confirmed running.
func (s *serviceImpl) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePlaying
}

// Subscribe creates a new event subscription.
func (s *serviceImpl) Subscribe() *Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	sub := newSubscription()
	s.subs = append(s.subs, sub)
	return sub
}

// Close shuts down the coordinator and the active adapter.
func (s *serviceImpl) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.teardownAdapterLocked()
	s.mu.Unlock()

	s.subsMu.Lock()
	for _, sub := range s.subs {
		sub.close()
	}
	s.subs = nil
	s.subsMu.Unlock()
	return nil
}

// --- Internals ---

// authorizePlay runs the gate for one play. It must be called before
// any queue mutation so a denial leaves the coordinator untouched; the
// gate is self-synchronized, so callers may run it without holding
// s.mu and keep Snapshot responsive during the remote increment.
func (s *serviceImpl) authorizePlay(ctx context.Context, track media.Track) error {
	if s.gate.Authorize(ctx) == gate.Denied {
		s.notifyGateDenied(track)
		return ErrPlayDenied
	}
	return nil
}

// startTrackLocked selects the adapter for the track's source and
// begins loading. The caller has already authorized the play.
// userGesture marks plays that originate from direct user input: the
// unlock callback runs synchronously on that stack, never behind a
// timer.
func (s *serviceImpl) startTrackLocked(ctx context.Context, prev *media.Track, track media.Track, userGesture bool) error {
	if err := s.ensureAdapterLocked(track.Source); err != nil {
		return s.skipUnplayableLocked(ctx, track, err)
	}

	prevState := s.state
	s.state = StateLoading
	s.position = 0
	s.duration = track.Duration
	s.pendingLoads++

	if userGesture {
		s.registry.Unlock()
	}

	if err := s.adapter.Load(track); err != nil {
		s.pendingLoads--
		return s.skipUnplayableLocked(ctx, track, err)
	}

	s.notifyState(prevState, s.state)
	// Repeat-one replays keep the same track; no TrackChange then.
	if prev == nil || prev.ID != track.ID {
		s.notifyTrack(prev, track)
	}
	return nil
}

// advanceLocked moves the queue per repeat/shuffle rules and starts
// the resulting track, or stops cleanly when the queue is exhausted.
func (s *serviceImpl) advanceLocked(ctx context.Context, direction int, userGesture bool) error {
	prev := s.queue.Current()
	prevIndex := s.queue.CurrentIndex()
	track := s.queue.Advance(direction)
	if track == nil {
		// No more tracks: playback stops, the last track stays loaded
		// at its end position.
		s.stopSyncLoopLocked()
		if s.adapter != nil {
			s.adapter.Pause()
		}
		prevState := s.state
		if prev == nil {
			s.state = StateIdle
		} else {
			s.state = StateEnded
		}
		s.notifyState(prevState, s.state)
		return nil
	}

	if err := s.authorizePlay(ctx, *track); err != nil {
		// Put the queue back where it was. A denied skip keeps the
		// current track playing; a denied auto-advance stops like an
		// exhausted queue.
		if prevIndex >= 0 {
			s.queue.JumpTo(prevIndex)
		}
		if userGesture {
			return err
		}
		s.stopSyncLoopLocked()
		if s.adapter != nil {
			s.adapter.Pause()
		}
		prevState := s.state
		s.state = StateEnded
		s.notifyState(prevState, s.state)
		return err
	}
	return s.startTrackLocked(ctx, prev, *track, userGesture)
}

// skipUnplayableLocked treats a track as unplayable: emit an error
// event and advance, giving up after maxConsecutiveFailures in a row.
func (s *serviceImpl) skipUnplayableLocked(ctx context.Context, track media.Track, err error) error {
	s.skipFailures++
	s.notifyError(&track, err)

	if s.skipFailures >= maxConsecutiveFailures {
		s.stopSyncLoopLocked()
		prevState := s.state
		s.state = StateIdle
		s.position = 0
		s.duration = 0
		s.notifyState(prevState, s.state)
		return nil
	}
	return s.advanceLocked(ctx, 1, false)
}

// ensureAdapterLocked makes the live adapter match the track source,
// tearing down the previous adapter first when the source differs.
func (s *serviceImpl) ensureAdapterLocked(source media.Source) error {
	if s.adapter != nil && s.activeSource == source {
		return nil
	}
	s.teardownAdapterLocked()

	a, err := s.factory(source)
	if err != nil {
		return err
	}
	s.adapter = a
	s.activeSource = source
	s.pendingLoads = 0
	a.SetVolume(s.volume)
	a.SetMuted(s.muted)
	go s.pumpEvents(a)
	return nil
}

func (s *serviceImpl) teardownAdapterLocked() {
	s.stopSyncLoopLocked()
	if s.adapter == nil {
		return
	}
	s.adapter.Close()
	s.adapter = nil
	s.pendingLoads = 0
}

// pumpEvents forwards adapter events into the coordinator until the
// adapter's channel closes on teardown.
func (s *serviceImpl) pumpEvents(a backend.Adapter) {
	for e := range a.Events() {
		s.handleAdapterEvent(a, e)
	}
}

func (s *serviceImpl) handleAdapterEvent(a backend.Adapter, e backend.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Events from a superseded adapter are discarded unconditionally.
	if s.closed || s.adapter != a {
		return
	}

	switch e.Type {
	case backend.EventReady:
		s.pendingLoads--
		if s.pendingLoads > 0 {
			// Stale readiness callback: a newer play is in flight and
			// must not be resurrected by this one.
			return
		}
		a.Play()

	case backend.EventPlay:
		s.skipFailures = 0
		prev := s.state
		s.state = StatePlaying
		if s.activeSource == media.SourceWidget {
			s.startSyncLoopLocked()
		}
		s.notifyState(prev, s.state)

	case backend.EventPause:
		if s.state == StatePlaying {
			s.state = StatePaused
			s.notifyState(StatePlaying, s.state)
		}

	case backend.EventEnd:
		if s.state == StatePlaying || s.state == StatePaused {
			s.position = s.duration
			_ = s.advanceLocked(context.Background(), 1, false)
		}

	case backend.EventError:
		track := s.queue.Current()
		if track == nil {
			return
		}
		_ = s.skipUnplayableLocked(context.Background(), *track, e.Err)
	}
}

// --- Notifications ---

func (s *serviceImpl) notifyState(prev, cur State) {
	if prev == cur {
		return
	}
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendState(StateChange{Previous: prev, Current: cur})
	}
}

func (s *serviceImpl) notifyTrack(prev *media.Track, cur media.Track) {
	index := s.queue.CurrentIndex()
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendTrack(TrackChange{Previous: prev, Current: &cur, Index: index})
	}
}

func (s *serviceImpl) notifyPosition() {
	e := PositionChange{Position: s.position, Duration: s.duration}
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendPosition(e)
	}
}

func (s *serviceImpl) notifyQueue() {
	e := QueueChange{Tracks: s.queue.Tracks(), Index: s.queue.CurrentIndex()}
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendQueue(e)
	}
}

func (s *serviceImpl) notifyMode() {
	e := ModeChange{RepeatMode: s.queue.RepeatMode(), Shuffled: s.queue.Shuffle()}
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendMode(e)
	}
}

func (s *serviceImpl) notifyGateDenied(track media.Track) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendGateDenied(GateDenied{Track: track})
	}
}

func (s *serviceImpl) notifyError(track *media.Track, err error) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendError(ErrorEvent{Track: track, Err: err})
	}
}
