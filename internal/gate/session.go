// Package gate enforces the anonymous play-count policy. It is
// consulted before any play transition when no authenticated identity
// is present; authenticated sessions bypass it entirely.
package gate

import "context"

// Session is the anonymous play session owned by the gate. It exists
// only for unauthenticated identities and is persisted client-side by
// id so it survives restarts.
type Session struct {
	ID             string `json:"session_id"`
	PlayCount      int    `json:"play_count"`
	RemainingPlays int    `json:"remaining_plays"`
	LimitReached   bool   `json:"limit_reached"`
}

// Service is the external anonymous-session API consumed by the gate.
type Service interface {
	// CreateSession registers a new anonymous session for a device.
	CreateSession(ctx context.Context, deviceID string) (*Session, error)
	// IncrementPlay counts one play against the session. Returns
	// ErrLimitReached when the service refuses the increment, and
	// ErrSessionNotFound when the session has expired server-side.
	IncrementPlay(ctx context.Context, sessionID string) (*Session, error)
	// GetSession fetches the current session status.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}
