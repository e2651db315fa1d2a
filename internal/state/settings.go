package state

import (
	"database/sql"
	"errors"
)

// PlaybackSettings represents the saved volume and mute state.
type PlaybackSettings struct {
	Volume float64
	Muted  bool
}

// GetSettings returns the saved playback settings.
func (m *Manager) GetSettings() (*PlaybackSettings, error) {
	var volume float64
	var muted bool

	row := m.db.QueryRow(`SELECT volume, muted FROM queue_state WHERE id = 1`)
	err := row.Scan(&volume, &muted)
	if errors.Is(err, sql.ErrNoRows) {
		return &PlaybackSettings{Volume: 1.0, Muted: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return &PlaybackSettings{Volume: volume, Muted: muted}, nil
}

// SaveSettings persists the volume and mute state.
func (m *Manager) SaveSettings(volume float64, muted bool) error {
	_, err := m.db.Exec(`
		INSERT INTO queue_state (id, current_index, repeat_mode, shuffle, volume, muted)
		VALUES (1, -1, 0, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			volume = excluded.volume,
			muted = excluded.muted
	`, volume, muted)
	return err
}
