package state

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	dbutil "github.com/soniqfm/soniq/internal/db"
)

// DeviceState holds the stable device identity and the last known
// anonymous session, if any.
type DeviceState struct {
	DeviceID  string
	SessionID string
}

// Device returns the device state, generating and persisting a new
// device id on first run.
func (m *Manager) Device() (*DeviceState, error) {
	var deviceID string
	var sessionID sql.NullString

	row := m.db.QueryRow(`SELECT device_id, session_id FROM device WHERE id = 1`)
	err := row.Scan(&deviceID, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		deviceID = uuid.NewString()
		_, err := m.db.Exec(`INSERT INTO device (id, device_id) VALUES (1, ?)`, deviceID)
		if err != nil {
			return nil, err
		}
		return &DeviceState{DeviceID: deviceID}, nil
	}
	if err != nil {
		return nil, err
	}

	return &DeviceState{
		DeviceID:  deviceID,
		SessionID: dbutil.NullStringValue(sessionID),
	}, nil
}

// SaveSessionID persists the anonymous session id for reuse across
// restarts. An empty id clears it.
func (m *Manager) SaveSessionID(id string) error {
	_, err := m.db.Exec(`UPDATE device SET session_id = ? WHERE id = 1`,
		dbutil.NullString(id))
	return err
}
