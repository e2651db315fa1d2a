package gate

import (
	"context"
	"errors"
	"sync"
)

// Decision is the outcome of a gate check.
type Decision int

const (
	// Allowed means the play was counted and may proceed.
	Allowed Decision = iota
	// Bypassed means the gate did not apply: authenticated identity,
	// or session bootstrap has not completed yet.
	Bypassed
	// Denied means the anonymous play limit is reached. The caller
	// must not touch any adapter or mutate playback state.
	Denied
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Bypassed:
		return "bypassed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Gate tracks the anonymous play session and authorizes play
// transitions.
type Gate struct {
	mu            sync.Mutex
	svc           Service
	session       *Session
	authenticated bool
}

// New creates a gate backed by the given session service.
func New(svc Service) *Gate {
	return &Gate{svc: svc}
}

// SetAuthenticated marks whether an authenticated identity is acting.
// Authenticated identities bypass the gate entirely.
func (g *Gate) SetAuthenticated(authenticated bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authenticated = authenticated
}

// SetSession installs the anonymous session. Session creation happens
// out of band (bootstrap, or restore from local state).
func (g *Gate) SetSession(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = s
}

// Session returns the current anonymous session, or nil.
func (g *Gate) Session() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	s := *g.session
	return &s
}

// Authorize checks whether a play transition may proceed and, when it
// applies, counts the play against the remote session.
//
// The gate never blocks playback over infrastructure problems: a
// missing session (bootstrap race) or an unreachable service resolves
// to Bypassed. Only a known-exhausted limit denies.
func (g *Gate) Authorize(ctx context.Context) Decision {
	g.mu.Lock()
	if g.authenticated || g.session == nil {
		g.mu.Unlock()
		return Bypassed
	}
	if g.session.LimitReached {
		g.mu.Unlock()
		return Denied
	}
	sessionID := g.session.ID
	g.mu.Unlock()

	updated, err := g.svc.IncrementPlay(ctx, sessionID)
	switch {
	case errors.Is(err, ErrLimitReached):
		// The increment that would overflow is itself refused.
		g.mu.Lock()
		if g.session != nil {
			g.session.LimitReached = true
			g.session.RemainingPlays = 0
		}
		g.mu.Unlock()
		return Denied
	case errors.Is(err, ErrSessionNotFound):
		// Expired server-side: drop it so bootstrap can recreate.
		g.mu.Lock()
		g.session = nil
		g.mu.Unlock()
		return Bypassed
	case err != nil:
		return Bypassed
	}

	g.mu.Lock()
	g.session = updated
	g.mu.Unlock()
	return Allowed
}
