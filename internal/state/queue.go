package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/soniqfm/soniq/internal/db"
	"github.com/soniqfm/soniq/internal/media"
)

// QueueState represents the saved queue state.
type QueueState struct {
	CurrentIndex int
	RepeatMode   int
	Shuffle      bool
	Tracks       []media.Track
}

// GetQueue returns the saved queue state, or an empty one on first run.
func (m *Manager) GetQueue() (*QueueState, error) {
	return getQueue(m.db)
}

// SaveQueue persists the queue state immediately.
func (m *Manager) SaveQueue(state QueueState) error {
	return saveQueue(m.db, state)
}

func getQueue(db *sql.DB) (*QueueState, error) {
	var currentIndex, repeatMode int
	var shuffle bool
	row := db.QueryRow(`SELECT current_index, repeat_mode, shuffle FROM queue_state WHERE id = 1`)
	err := row.Scan(&currentIndex, &repeatMode, &shuffle)
	if errors.Is(err, sql.ErrNoRows) {
		return &QueueState{CurrentIndex: -1}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT track_id, title, artist, thumbnail, artwork, duration_ms, source, stream_url, widget_id
		FROM queue_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []media.Track
	for rows.Next() {
		var t media.Track
		var artist, thumbnail, artwork, streamURL, widgetID sql.NullString
		var durationMS int64
		var source int

		err := rows.Scan(&t.ID, &t.Title, &artist, &thumbnail, &artwork, &durationMS, &source, &streamURL, &widgetID)
		if err != nil {
			return nil, err
		}

		t.Artist = dbutil.NullStringValue(artist)
		t.Thumbnail = dbutil.NullStringValue(thumbnail)
		t.Artwork = dbutil.NullStringValue(artwork)
		t.Duration = time.Duration(durationMS) * time.Millisecond
		t.Source = media.Source(source)
		t.StreamURL = dbutil.NullStringValue(streamURL)
		t.WidgetID = dbutil.NullStringValue(widgetID)
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueueState{
		CurrentIndex: currentIndex,
		RepeatMode:   repeatMode,
		Shuffle:      shuffle,
		Tracks:       tracks,
	}, nil
}

func saveQueue(sqlDB *sql.DB, state QueueState) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		// Clear existing queue
		_, err := tx.Exec(`DELETE FROM queue_tracks`)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO queue_state (id, current_index, repeat_mode, shuffle)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index,
				repeat_mode = excluded.repeat_mode,
				shuffle = excluded.shuffle
		`, state.CurrentIndex, state.RepeatMode, state.Shuffle)
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_tracks (position, track_id, title, artist, thumbnail, artwork, duration_ms, source, stream_url, widget_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range state.Tracks {
			_, err = stmt.Exec(i, t.ID, t.Title,
				dbutil.NullString(t.Artist),
				dbutil.NullString(t.Thumbnail),
				dbutil.NullString(t.Artwork),
				t.Duration.Milliseconds(),
				int(t.Source),
				dbutil.NullString(t.StreamURL),
				dbutil.NullString(t.WidgetID))
			if err != nil {
				return err
			}
		}
		return nil
	})
}
