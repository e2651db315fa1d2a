package backend

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/soniqfm/soniq/internal/media"
)

// The speaker is initialized once with the first track's sample rate.
var speakerInitialized bool

// StreamAdapter plays direct audio streams through the speaker.
type StreamAdapter struct {
	httpClient *http.Client

	mu       sync.Mutex
	status   Status
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	level    float64
	muted    bool
	gen      int // invalidates the end callback of a superseded load

	events chan Event
	closed bool
}

// NewStream creates a stream adapter. timeout bounds the initial fetch
// of remote streams.
func NewStream(timeout time.Duration) *StreamAdapter {
	return &StreamAdapter{
		httpClient: &http.Client{Timeout: timeout},
		level:      1,
		events:     make(chan Event, eventBufferSize),
	}
}

// Load fetches and decodes the track's stream, cueing it paused.
// EventReady is emitted once the stream is decoded.
func (a *StreamAdapter) Load(track media.Track) error {
	if track.Source != media.SourceStream {
		return fmt.Errorf("stream adapter: wrong source %s", track.Source)
	}

	a.stop()

	streamer, format, err := a.open(track.StreamURL)
	if err != nil {
		return fmt.Errorf("load stream: %w", err)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		streamer.Close()
		return fmt.Errorf("load stream: adapter closed")
	}

	if !speakerInitialized {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			a.mu.Unlock()
			streamer.Close()
			return fmt.Errorf("init speaker: %w", err)
		}
		speakerInitialized = true
	}

	a.streamer = streamer
	a.format = format
	a.ctrl = &beep.Ctrl{Streamer: streamer, Paused: true}
	a.volume = &effects.Volume{
		Streamer: a.ctrl,
		Base:     2,
		Volume:   levelToVolume(a.level),
		Silent:   a.muted || a.level <= 0,
	}
	a.status = Cued
	a.gen++
	gen := a.gen
	vol := a.volume
	a.mu.Unlock()

	speaker.Play(beep.Seq(vol, beep.Callback(func() {
		a.finished(gen)
	})))

	a.emit(Event{Type: EventReady})
	return nil
}

// emit sends an event unless the adapter is closed. Shares the lock
// with Close so the channel cannot be closed mid-send.
func (a *StreamAdapter) emit(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	emit(a.events, e)
}

func (a *StreamAdapter) open(source string) (beep.StreamSeekCloser, beep.Format, error) {
	var reader io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := a.httpClient.Get(source)
		if err != nil {
			return nil, beep.Format{}, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, beep.Format{}, fmt.Errorf("unexpected status: %s", resp.Status)
		}
		// Buffer the whole stream so the decoder can seek.
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, beep.Format{}, err
		}
		reader = readSeekNopCloser{bytes.NewReader(data)}
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, beep.Format{}, err
		}
		reader = f
	}

	ext := strings.ToLower(filepath.Ext(strippedPath(source)))
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(reader)
	case ".flac":
		streamer, format, err = flac.Decode(reader)
	case ".wav":
		streamer, format, err = wav.Decode(reader)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(reader)
	default:
		err = fmt.Errorf("unsupported format: %q", ext)
	}
	if err != nil {
		reader.Close()
		return nil, beep.Format{}, err
	}
	return streamer, format, nil
}

// strippedPath drops any query string so extension sniffing works on
// URLs like /track.mp3?token=x.
func strippedPath(source string) string {
	if i := strings.IndexByte(source, '?'); i >= 0 {
		return source[:i]
	}
	return source
}

// Play resumes or starts playback.
func (a *StreamAdapter) Play() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctrl == nil || a.status == Playing {
		return
	}
	speaker.Lock()
	a.ctrl.Paused = false
	speaker.Unlock()
	a.status = Playing
	emit(a.events, Event{Type: EventPlay})
}

// Pause pauses playback. No-op if not playing.
func (a *StreamAdapter) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctrl == nil || a.status != Playing {
		return
	}
	speaker.Lock()
	a.ctrl.Paused = true
	speaker.Unlock()
	a.status = Paused
	emit(a.events, Event{Type: EventPause})
}

// Seek moves to an absolute position, clamped to the track bounds.
func (a *StreamAdapter) Seek(pos time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.streamer == nil {
		return
	}
	pos = clampPosition(pos, a.format.SampleRate.D(a.streamer.Len()))
	speaker.Lock()
	_ = a.streamer.Seek(a.format.SampleRate.N(pos))
	speaker.Unlock()
}

// SetVolume sets the output level (0.0 to 1.0).
func (a *StreamAdapter) SetVolume(level float64) {
	level = min(max(level, 0), 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.level = level
	if a.volume == nil {
		return
	}
	speaker.Lock()
	a.volume.Volume = levelToVolume(level)
	a.volume.Silent = a.muted || level <= 0
	speaker.Unlock()
}

// SetMuted sets the muted state; unmuting restores the stored level.
func (a *StreamAdapter) SetMuted(muted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.muted = muted
	if a.volume == nil {
		return
	}
	speaker.Lock()
	a.volume.Silent = muted || a.level <= 0
	speaker.Unlock()
}

// Position returns the current playback position (0 when nothing is
// loaded).
func (a *StreamAdapter) Position() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.streamer == nil {
		return 0
	}
	return a.format.SampleRate.D(a.streamer.Position())
}

// Duration returns the decoded stream duration (0 when nothing is
// loaded).
func (a *StreamAdapter) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.streamer == nil {
		return 0
	}
	return a.format.SampleRate.D(a.streamer.Len())
}

// Status returns the backend-reported state.
func (a *StreamAdapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Events returns the adapter event stream.
func (a *StreamAdapter) Events() <-chan Event {
	return a.events
}

// Close stops playback and releases resources.
func (a *StreamAdapter) Close() error {
	a.stop()
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	return nil
}

// finished runs from the speaker goroutine when the stream drains.
func (a *StreamAdapter) finished(gen int) {
	a.mu.Lock()
	if gen != a.gen || a.closed {
		// A newer load replaced this stream.
		a.mu.Unlock()
		return
	}
	a.status = Ended
	emit(a.events, Event{Type: EventEnd})
	a.mu.Unlock()
}

func (a *StreamAdapter) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.streamer == nil {
		return
	}
	speaker.Clear()
	a.streamer.Close()
	a.streamer = nil
	a.ctrl = nil
	a.volume = nil
	a.gen++
	a.status = Unstarted
}

// levelToVolume maps a linear 0-1 level onto beep's base-2 log scale:
// 1.0 -> 0, 0.5 -> -1, 0.25 -> -2. Zero is handled via Silent.
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }
