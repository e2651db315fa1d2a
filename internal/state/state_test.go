package state

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/soniqfm/soniq/internal/media"
)

// setupTestDB creates an in-memory SQLite database with the schema initialized.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			t.Fatalf("failed to set pragma: %v", err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		t.Fatalf("failed to init schema: %v", err)
	}

	return db
}

func setupTestManager(t *testing.T) *Manager {
	t.Helper()
	return &Manager{db: setupTestDB(t)}
}

func TestGetQueue_Empty(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	q, err := m.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	if q.CurrentIndex != -1 {
		t.Errorf("expected index -1 on empty db, got %d", q.CurrentIndex)
	}
	if len(q.Tracks) != 0 {
		t.Errorf("expected no tracks, got %d", len(q.Tracks))
	}
}

func TestSaveAndGetQueue(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	saved := QueueState{
		CurrentIndex: 1,
		RepeatMode:   2,
		Shuffle:      true,
		Tracks: []media.Track{
			{
				ID:        "t1",
				Title:     "First",
				Artist:    "Someone",
				Thumbnail: "https://img.test/t1.jpg",
				Duration:  3*time.Minute + 14*time.Second,
				Source:    media.SourceStream,
				StreamURL: "https://cdn.test/t1.mp3",
			},
			{
				ID:       "t2",
				Title:    "Second",
				Duration: 2 * time.Minute,
				Source:   media.SourceWidget,
				WidgetID: "w-t2",
			},
		},
	}

	if err := m.SaveQueue(saved); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}

	got, err := m.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	if got.CurrentIndex != 1 || got.RepeatMode != 2 || !got.Shuffle {
		t.Errorf("queue state mismatch: %+v", got)
	}
	if len(got.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(got.Tracks))
	}
	if got.Tracks[0] != saved.Tracks[0] {
		t.Errorf("track 0 round trip mismatch:\n saved %+v\n got   %+v", saved.Tracks[0], got.Tracks[0])
	}
	if got.Tracks[1].Artist != "" || got.Tracks[1].StreamURL != "" {
		t.Errorf("NULL columns should come back empty: %+v", got.Tracks[1])
	}
	if got.Tracks[1].Source != media.SourceWidget || got.Tracks[1].WidgetID != "w-t2" {
		t.Errorf("widget track mismatch: %+v", got.Tracks[1])
	}
}

func TestSaveQueue_ReplacesPrevious(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	first := QueueState{CurrentIndex: 0, Tracks: []media.Track{
		{ID: "a", Title: "A", Source: media.SourceStream},
		{ID: "b", Title: "B", Source: media.SourceStream},
	}}
	if err := m.SaveQueue(first); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}

	second := QueueState{CurrentIndex: 0, Tracks: []media.Track{
		{ID: "c", Title: "C", Source: media.SourceWidget, WidgetID: "w-c"},
	}}
	if err := m.SaveQueue(second); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}

	got, err := m.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	if len(got.Tracks) != 1 || got.Tracks[0].ID != "c" {
		t.Errorf("save should replace the previous queue, got %+v", got.Tracks)
	}
}

func TestSaveQueueDebounced_FlushedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soniq.db")
	openFile := func() *Manager {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			t.Fatalf("failed to open db: %v", err)
		}
		if err := initSchema(db); err != nil {
			db.Close()
			t.Fatalf("failed to init schema: %v", err)
		}
		return &Manager{db: db}
	}

	m := openFile()
	m.SaveQueueDebounced(QueueState{CurrentIndex: 0, Tracks: []media.Track{
		{ID: "a", Title: "A", Source: media.SourceStream},
	}})

	// Close before the debounce fires: the pending state must be flushed.
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	m2 := openFile()
	defer m2.Close()
	got, err := m2.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	if len(got.Tracks) != 1 || got.Tracks[0].ID != "a" {
		t.Errorf("pending save was not flushed on close: %+v", got)
	}
}

func TestSaveQueueDebounced_CollapsesWrites(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	for i := range 5 {
		m.SaveQueueDebounced(QueueState{CurrentIndex: i, Tracks: []media.Track{
			{ID: "a", Title: "A", Source: media.SourceStream},
		}})
	}

	deadline := time.After(2 * time.Second)
	for {
		got, err := m.GetQueue()
		if err != nil {
			t.Fatalf("GetQueue failed: %v", err)
		}
		if got.CurrentIndex == 4 {
			return // only the last write landed
		}
		select {
		case <-deadline:
			t.Fatalf("debounced save never landed, index = %d", got.CurrentIndex)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestGetSettings_Defaults(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	s, err := m.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if s.Volume != 1.0 || s.Muted {
		t.Errorf("expected defaults, got %+v", s)
	}
}

func TestSaveAndGetSettings(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	if err := m.SaveSettings(0.35, true); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	s, err := m.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if s.Volume != 0.35 || !s.Muted {
		t.Errorf("settings round trip mismatch: %+v", s)
	}
}

func TestSaveSettings_PreservesQueueRow(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	if err := m.SaveQueue(QueueState{CurrentIndex: 3, RepeatMode: 1}); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}
	if err := m.SaveSettings(0.5, false); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, err := m.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	if got.CurrentIndex != 3 || got.RepeatMode != 1 {
		t.Errorf("settings save must not clobber queue columns: %+v", got)
	}
}

func TestDevice_CreatedOnceAndStable(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	first, err := m.Device()
	if err != nil {
		t.Fatalf("Device failed: %v", err)
	}
	if first.DeviceID == "" {
		t.Fatal("expected a generated device id")
	}
	if first.SessionID != "" {
		t.Errorf("expected no session on first run, got %q", first.SessionID)
	}

	second, err := m.Device()
	if err != nil {
		t.Fatalf("Device failed: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("device id must be stable: %q vs %q", first.DeviceID, second.DeviceID)
	}
}

func TestSaveSessionID(t *testing.T) {
	m := setupTestManager(t)
	defer m.Close()

	if _, err := m.Device(); err != nil {
		t.Fatalf("Device failed: %v", err)
	}
	if err := m.SaveSessionID("sess-1"); err != nil {
		t.Fatalf("SaveSessionID failed: %v", err)
	}

	d, err := m.Device()
	if err != nil {
		t.Fatalf("Device failed: %v", err)
	}
	if d.SessionID != "sess-1" {
		t.Errorf("expected sess-1, got %q", d.SessionID)
	}

	// Clearing maps back to NULL.
	if err := m.SaveSessionID(""); err != nil {
		t.Fatalf("SaveSessionID failed: %v", err)
	}
	d, err = m.Device()
	if err != nil {
		t.Fatalf("Device failed: %v", err)
	}
	if d.SessionID != "" {
		t.Errorf("expected cleared session, got %q", d.SessionID)
	}
}
