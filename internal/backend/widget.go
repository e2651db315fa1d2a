package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/soniqfm/soniq/internal/gesture"
	"github.com/soniqfm/soniq/internal/media"
)

const (
	dialRetries    = 5
	dialRetryDelay = 500 * time.Millisecond
)

// command is a control frame sent to the widget bridge.
type command struct {
	Cmd     string  `json:"cmd"` // load, play, pause, seek, volume, mute
	MediaID string  `json:"media_id,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
	Level   float64 `json:"level,omitempty"`
	Muted   bool    `json:"muted,omitempty"`
}

// frame is an event pushed by the widget bridge. The bridge announces
// readiness per loaded media, pushes state transitions, and reports
// time/duration on its own cadence (it cannot stream continuous time
// updates, which is why the coordinator polls the cached values).
type frame struct {
	Event    string  `json:"event"` // ready, state, time, error
	State    string  `json:"state,omitempty"`
	Seconds  float64 `json:"seconds,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// WidgetAdapter drives the embedded video widget through its bridge.
//
// The control handle is lazily initialized: the bridge connection comes
// up asynchronously and each loaded media announces readiness on its
// own schedule. Until then, the latest play/pause request is parked in
// a depth-1 pending slot and replayed on ready, seeks are dropped
// (duration is unknown, the request is meaningless), and volume is
// remembered and applied on ready.
type WidgetAdapter struct {
	url      string
	registry *gesture.Registry
	log      *log.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	ready       bool
	status      Status
	position    time.Duration
	duration    time.Duration
	pending     *bool // nil: none; true: play; false: pause
	wantPlaying bool
	level       float64
	muted       bool
	loaded      *media.Track
	closed      bool

	writeMu sync.Mutex

	events chan Event
	done   chan struct{}
}

// NewWidget creates a widget adapter and begins connecting to the
// bridge in the background. The adapter installs its unlock and resume
// callbacks in the registry; Close clears them.
func NewWidget(bridgeURL string, registry *gesture.Registry, logger *log.Logger) *WidgetAdapter {
	a := &WidgetAdapter{
		url:      bridgeURL,
		registry: registry,
		log:      logger,
		level:    1,
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}

	// Autoplay unlock must run synchronously on the user gesture
	// stack: unmute and start inline, no timers.
	registry.SetUnlock(func() {
		a.writeNow(command{Cmd: "mute", Muted: false})
		a.writeNow(command{Cmd: "play"})
	})
	registry.SetResume(func() {
		a.mu.Lock()
		resume := a.wantPlaying && a.ready
		a.mu.Unlock()
		if resume {
			a.writeNow(command{Cmd: "play"})
		}
	})

	go a.connect()
	return a
}

// connect dials the bridge with bounded retries, then reads frames
// until the adapter closes.
func (a *WidgetAdapter) connect() {
	var conn *websocket.Conn
	var err error
	for attempt := 0; attempt < dialRetries; attempt++ {
		conn, _, err = websocket.DefaultDialer.Dial(a.url, nil)
		if err == nil {
			break
		}
		select {
		case <-a.done:
			return
		case <-time.After(dialRetryDelay):
		}
	}
	if err != nil {
		a.log.Error("widget bridge unreachable", "url", a.url, "err", err)
		a.emit(Event{Type: EventError, Err: fmt.Errorf("bridge dial: %w", err)})
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conn = conn
	a.connected = true
	loaded := a.loaded
	a.mu.Unlock()

	a.log.Debug("widget bridge connected", "url", a.url)

	// A load requested before the connection came up is sent now.
	if loaded != nil {
		a.writeNow(command{Cmd: "load", MediaID: loaded.WidgetID})
	}

	a.readLoop(conn)
}

func (a *WidgetAdapter) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-a.done:
			default:
				a.log.Debug("widget bridge read failed", "err", err)
				a.emit(Event{Type: EventError, Err: fmt.Errorf("bridge read: %w", err)})
			}
			return
		}
		a.handleFrame(f)
	}
}

func (a *WidgetAdapter) handleFrame(f frame) {
	switch f.Event {
	case "ready":
		a.handleReady(f)
	case "state":
		a.handleState(f)
	case "time":
		a.mu.Lock()
		a.position = secondsToDuration(f.Seconds)
		if f.Duration > 0 {
			a.duration = secondsToDuration(f.Duration)
		}
		a.mu.Unlock()
	case "error":
		a.emit(Event{Type: EventError, Err: fmt.Errorf("widget: %s", f.Reason)})
	}
}

func (a *WidgetAdapter) handleReady(f frame) {
	a.mu.Lock()
	a.ready = true
	a.status = Cued
	if f.Duration > 0 {
		a.duration = secondsToDuration(f.Duration)
	}
	pending := a.pending
	a.pending = nil
	level, muted := a.level, a.muted
	a.mu.Unlock()

	a.writeNow(command{Cmd: "volume", Level: level})
	a.writeNow(command{Cmd: "mute", Muted: muted})
	if pending != nil {
		if *pending {
			a.writeNow(command{Cmd: "play"})
		} else {
			a.writeNow(command{Cmd: "pause"})
		}
	}

	a.emit(Event{Type: EventReady})
}

func (a *WidgetAdapter) handleState(f frame) {
	status := parseStatus(f.State)

	a.mu.Lock()
	prev := a.status
	a.status = status
	a.mu.Unlock()

	if status == prev {
		return
	}
	switch status {
	case Playing:
		a.emit(Event{Type: EventPlay})
	case Paused:
		a.emit(Event{Type: EventPause})
	case Ended:
		a.emit(Event{Type: EventEnd})
	}
}

// Load cues a media id on the bridge. Readiness arrives asynchronously
// as EventReady.
func (a *WidgetAdapter) Load(track media.Track) error {
	if track.Source != media.SourceWidget {
		return fmt.Errorf("widget adapter: wrong source %s", track.Source)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("load widget: adapter closed")
	}
	a.loaded = &track
	a.ready = false
	a.status = Unstarted
	a.position = 0
	a.duration = 0
	a.pending = nil
	a.wantPlaying = false
	connected := a.connected
	a.mu.Unlock()

	if connected {
		a.writeNow(command{Cmd: "load", MediaID: track.WidgetID})
	}
	// Not connected yet: connect() replays the load once dialed.
	return nil
}

// Play starts or resumes playback. Before the handle is ready the
// request is parked in the pending slot (latest wins).
func (a *WidgetAdapter) Play() {
	a.mu.Lock()
	a.wantPlaying = true
	if !a.ready {
		on := true
		a.pending = &on
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.writeNow(command{Cmd: "play"})
}

// Pause pauses playback, or overwrites a pending play before ready.
func (a *WidgetAdapter) Pause() {
	a.mu.Lock()
	a.wantPlaying = false
	if !a.ready {
		off := false
		a.pending = &off
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.writeNow(command{Cmd: "pause"})
}

// Seek moves to an absolute position. Dropped silently before ready.
func (a *WidgetAdapter) Seek(pos time.Duration) {
	a.mu.Lock()
	if !a.ready {
		a.mu.Unlock()
		return
	}
	pos = clampPosition(pos, a.duration)
	a.position = pos
	a.mu.Unlock()
	a.writeNow(command{Cmd: "seek", Seconds: pos.Seconds()})
}

// SetVolume stores the level and applies it when the handle allows.
func (a *WidgetAdapter) SetVolume(level float64) {
	level = min(max(level, 0), 1)
	a.mu.Lock()
	a.level = level
	ready := a.ready
	a.mu.Unlock()
	if ready {
		a.writeNow(command{Cmd: "volume", Level: level})
	}
}

// SetMuted stores the muted state and applies it when ready.
func (a *WidgetAdapter) SetMuted(muted bool) {
	a.mu.Lock()
	a.muted = muted
	ready := a.ready
	a.mu.Unlock()
	if ready {
		a.writeNow(command{Cmd: "mute", Muted: muted})
	}
}

// Position returns the last bridge-reported position (0 before ready).
func (a *WidgetAdapter) Position() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// Duration returns the last bridge-reported duration (0 before ready).
func (a *WidgetAdapter) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration
}

// Status returns the last bridge-reported state.
func (a *WidgetAdapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Events returns the adapter event stream.
func (a *WidgetAdapter) Events() <-chan Event {
	return a.events
}

// Close tears down the bridge connection and clears the gesture slots.
func (a *WidgetAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	conn := a.conn
	a.conn = nil
	a.connected = false
	close(a.events)
	a.mu.Unlock()

	a.registry.Clear()
	close(a.done)
	if conn != nil {
		conn.Close()
	}
	return nil
}

// emit sends an event unless the adapter is closed. The closed check
// and the send share the lock so a concurrent Close cannot slip a
// channel close in between.
func (a *WidgetAdapter) emit(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	emit(a.events, e)
}

// writeNow writes a command directly. A mutex serializes writers per
// the websocket single-writer rule. Writes before the connection is up
// are dropped; the pre-ready contract already covers them.
func (a *WidgetAdapter) writeNow(cmd command) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return
	}

	a.writeMu.Lock()
	err := conn.WriteJSON(cmd)
	a.writeMu.Unlock()
	if err != nil {
		a.log.Debug("widget bridge write failed", "cmd", cmd.Cmd, "err", err)
	}
}

func parseStatus(s string) Status {
	switch s {
	case "playing":
		return Playing
	case "paused":
		return Paused
	case "buffering":
		return Buffering
	case "cued":
		return Cued
	case "ended":
		return Ended
	default:
		return Unstarted
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
