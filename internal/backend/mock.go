package backend

import (
	"sync"
	"time"

	"github.com/soniqfm/soniq/internal/media"
)

// Mock is a test double for an Adapter. Tests drive it by emitting
// events and inspecting recorded calls.
type Mock struct {
	mu         sync.Mutex
	status     Status
	position   time.Duration
	duration   time.Duration
	loadErr    error
	loadCalls  []media.Track
	playCalls  int
	pauseCalls int
	seekCalls  []time.Duration
	volCalls   []float64
	closed     bool

	events chan Event
}

// NewMock creates a new mock adapter for testing.
func NewMock() *Mock {
	return &Mock{
		status: Unstarted,
		events: make(chan Event, eventBufferSize),
	}
}

func (m *Mock) Load(track media.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls = append(m.loadCalls, track)
	if m.loadErr != nil {
		return m.loadErr
	}
	m.status = Unstarted
	m.position = 0
	return nil
}

func (m *Mock) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playCalls++
	m.status = Playing
	emit(m.events, Event{Type: EventPlay})
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	if m.status == Playing {
		m.status = Paused
		emit(m.events, Event{Type: EventPause})
	}
}

func (m *Mock) Seek(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, pos)
	m.position = clampPosition(pos, m.duration)
}

func (m *Mock) SetVolume(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volCalls = append(m.volCalls, level)
}

func (m *Mock) SetMuted(_ bool) {}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

// Test helpers

func (m *Mock) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *Mock) SetPosition(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = pos
}

func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

func (m *Mock) LoadCalls() []media.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]media.Track(nil), m.loadCalls...)
}

func (m *Mock) PlayCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCalls
}

func (m *Mock) PauseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseCalls
}

func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.seekCalls...)
}

func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// EmitReady simulates the backend handle becoming ready.
func (m *Mock) EmitReady() {
	m.mu.Lock()
	m.status = Cued
	m.mu.Unlock()
	emit(m.events, Event{Type: EventReady})
}

// EmitEnd simulates the current track finishing naturally.
func (m *Mock) EmitEnd() {
	m.mu.Lock()
	m.status = Ended
	m.mu.Unlock()
	emit(m.events, Event{Type: EventEnd})
}

// EmitError simulates a playback error for the current track.
func (m *Mock) EmitError(err error) {
	emit(m.events, Event{Type: EventError, Err: err})
}

// Verify the adapters implement Adapter at compile time.
var (
	_ Adapter = (*Mock)(nil)
	_ Adapter = (*StreamAdapter)(nil)
	_ Adapter = (*WidgetAdapter)(nil)
)
