package playback

import (
	"time"

	"github.com/soniqfm/soniq/internal/backend"
)

// The widget backend cannot push continuous time updates, so while it
// is active a polling loop reconciles its cached position and duration
// into the playback state. The stream backend reports time natively
// and never engages the loop.
const syncInterval = 250 * time.Millisecond

// startSyncLoopLocked starts the polling loop for the current adapter.
// No-op if a loop is already running.
func (s *serviceImpl) startSyncLoopLocked() {
	if s.syncStop != nil {
		return
	}
	stop := make(chan struct{})
	s.syncStop = stop
	go s.syncLoop(s.adapter, stop)
}

// stopSyncLoopLocked tears the polling loop down. Leaking the ticker
// would double-apply time writes when a new loop starts.
func (s *serviceImpl) stopSyncLoopLocked() {
	if s.syncStop == nil {
		return
	}
	close(s.syncStop)
	s.syncStop = nil
}

func (s *serviceImpl) syncLoop(a backend.Adapter, stop chan struct{}) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.syncTick(a)
		}
	}
}

// syncTick is one atomic read-then-write reconciliation. A concurrent
// seek simply overwrites a slightly stale result on the next tick
// (last writer wins).
func (s *serviceImpl) syncTick(a backend.Adapter) {
	status := a.Status()
	if status == backend.Unstarted {
		// Handle not ready yet: skip this tick, not an error.
		return
	}
	pos := a.Position()
	dur := a.Duration()

	s.mu.Lock()
	// A torn-down loop must apply zero further writes.
	if s.closed || s.adapter != a || s.syncStop == nil {
		s.mu.Unlock()
		return
	}

	s.position = pos
	// Duration is only written when it changes, to spare consumers
	// redundant re-renders.
	if dur > 0 && dur != s.duration {
		s.duration = dur
	}

	// An optimistic pause the backend ignored is corrected here.
	if s.state == StatePaused && status == backend.Playing {
		s.state = StatePlaying
		s.notifyState(StatePaused, StatePlaying)
	}
	s.notifyPosition()
	s.mu.Unlock()
}
