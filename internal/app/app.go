package app

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/soniqfm/soniq/internal/backend"
	"github.com/soniqfm/soniq/internal/config"
	"github.com/soniqfm/soniq/internal/gate"
	"github.com/soniqfm/soniq/internal/gesture"
	"github.com/soniqfm/soniq/internal/media"
	"github.com/soniqfm/soniq/internal/playback"
	"github.com/soniqfm/soniq/internal/queue"
	"github.com/soniqfm/soniq/internal/state"
)

// App wires config, persistence, the play gate and the playback
// coordinator together and keeps saved state in sync with playback.
type App struct {
	Playback playback.Service
	Gate     *gate.Gate
	Gestures *gesture.Registry

	cfg      *config.Config
	stateMgr *state.Manager
	logger   *log.Logger
}

// New builds the application from configuration, restoring the saved
// queue, settings and anonymous session.
func New(ctx context.Context, cfg *config.Config, stateMgr *state.Manager, logger *log.Logger) (*App, error) {
	reg := gesture.NewRegistry()

	g, err := buildGate(ctx, cfg, stateMgr, logger)
	if err != nil {
		return nil, err
	}

	q := queue.New()
	restoreQueue(q, stateMgr, logger)

	svc := playback.New(q, g, reg, adapterFactory(cfg, reg, logger))

	if settings, err := stateMgr.GetSettings(); err == nil {
		svc.SetVolume(settings.Volume)
		svc.SetMuted(settings.Muted)
	}

	return &App{
		Playback: svc,
		Gate:     g,
		Gestures: reg,
		cfg:      cfg,
		stateMgr: stateMgr,
		logger:   logger,
	}, nil
}

// Run consumes playback events until ctx is cancelled, persisting
// queue changes as they happen.
func (a *App) Run(ctx context.Context) error {
	sub := a.Playback.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done:
			return nil
		case e := <-sub.TrackChanged:
			if e.Current != nil {
				a.logger.Info("now playing", "track", e.Current.Title, "artist", e.Current.Artist)
			}
			a.saveQueueState(true)
		case <-sub.QueueChanged:
			a.saveQueueState(true)
		case <-sub.ModeChanged:
			a.saveQueueState(true)
		case e := <-sub.GateDenied:
			a.logger.Warn("play limit reached", "track", e.Track.Title)
		case e := <-sub.Error:
			if e.Track != nil {
				a.logger.Error("track unplayable", "track", e.Track.Title, "err", e.Err)
			} else {
				a.logger.Error("playback error", "err", e.Err)
			}
		}
	}
}

// Close persists the final state and shuts down playback.
func (a *App) Close() error {
	a.saveQueueState(false)
	if err := a.stateMgr.SaveSessionID(sessionID(a.Gate)); err != nil {
		a.logger.Warn("failed to save session", "err", err)
	}
	snap := a.Playback.Snapshot()
	if err := a.stateMgr.SaveSettings(snap.Volume, snap.Muted); err != nil {
		a.logger.Warn("failed to save settings", "err", err)
	}
	return a.Playback.Close()
}

func sessionID(g *gate.Gate) string {
	if s := g.Session(); s != nil {
		return s.ID
	}
	return ""
}

// buildGate restores or creates the anonymous session. Gate service
// failures are logged and tolerated: playback starts ungated.
func buildGate(ctx context.Context, cfg *config.Config, stateMgr *state.Manager, logger *log.Logger) (*gate.Gate, error) {
	if !cfg.HasGateConfig() {
		return gate.New(nil), nil
	}

	client := gate.NewClient(cfg.Gate.ServiceURL)
	g := gate.New(client)
	g.SetAuthenticated(cfg.IsAuthenticated())
	if cfg.IsAuthenticated() {
		return g, nil
	}

	device, err := stateMgr.Device()
	if err != nil {
		return nil, err
	}

	if device.SessionID != "" {
		if session, err := client.GetSession(ctx, device.SessionID); err == nil {
			g.SetSession(session)
			return g, nil
		} else if !errors.Is(err, gate.ErrSessionNotFound) {
			logger.Warn("failed to restore session", "err", err)
			return g, nil
		}
	}

	session, err := client.CreateSession(ctx, device.DeviceID)
	if err != nil {
		logger.Warn("failed to create session", "err", err)
		return g, nil
	}
	g.SetSession(session)
	if err := stateMgr.SaveSessionID(session.ID); err != nil {
		logger.Warn("failed to save session", "err", err)
	}
	return g, nil
}

func restoreQueue(q *queue.Queue, stateMgr *state.Manager, logger *log.Logger) {
	saved, err := stateMgr.GetQueue()
	if err != nil {
		logger.Warn("failed to restore queue", "err", err)
		return
	}
	if len(saved.Tracks) == 0 {
		return
	}
	q.Replace(saved.Tracks...)
	q.SetRepeatMode(queue.RepeatMode(saved.RepeatMode))
	// Jump before re-enabling shuffle: SetShuffle draws a fresh
	// permutation pinned on the current track, so the saved index must
	// already point at it.
	if saved.CurrentIndex >= 0 {
		q.JumpTo(saved.CurrentIndex)
	}
	q.SetShuffle(saved.Shuffle)
}

// adapterFactory selects the backend for a track source.
func adapterFactory(cfg *config.Config, reg *gesture.Registry, logger *log.Logger) playback.AdapterFactory {
	return func(source media.Source) (backend.Adapter, error) {
		switch source {
		case media.SourceWidget:
			return backend.NewWidget(cfg.Widget.BridgeURL, reg, logger.With("backend", "widget")), nil
		default:
			return backend.NewStream(time.Duration(cfg.Stream.TimeoutSeconds) * time.Second), nil
		}
	}
}

func (a *App) saveQueueState(debounced bool) {
	snap := a.Playback.Snapshot()
	qs := state.QueueState{
		CurrentIndex: snap.CurrentIndex,
		RepeatMode:   int(snap.RepeatMode),
		Shuffle:      snap.Shuffled,
		Tracks:       snap.Queue,
	}
	if debounced {
		a.stateMgr.SaveQueueDebounced(qs)
		return
	}
	if err := a.stateMgr.SaveQueue(qs); err != nil {
		a.logger.Warn("failed to save queue", "err", err)
	}
}
