package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soniqfm/soniq/internal/backend"
	"github.com/soniqfm/soniq/internal/gate"
	"github.com/soniqfm/soniq/internal/gesture"
	"github.com/soniqfm/soniq/internal/media"
	"github.com/soniqfm/soniq/internal/queue"
)

// adapterRecorder is an AdapterFactory handing out mock adapters and
// remembering them.
type adapterRecorder struct {
	mu      sync.Mutex
	created []*backend.Mock
	loadErr error
}

func (r *adapterRecorder) factory(_ media.Source) (backend.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := backend.NewMock()
	if r.loadErr != nil {
		m.SetLoadError(r.loadErr)
	}
	r.created = append(r.created, m)
	return m, nil
}

func (r *adapterRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

func (r *adapterRecorder) last() *backend.Mock {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.created) == 0 {
		return nil
	}
	return r.created[len(r.created)-1]
}

func streamTrack(id string) media.Track {
	return media.Track{ID: id, Source: media.SourceStream, StreamURL: "https://cdn.test/" + id + ".mp3"}
}

func widgetTrack(id string) media.Track {
	return media.Track{ID: id, Source: media.SourceWidget, WidgetID: "w-" + id}
}

func newTestService() (Service, *adapterRecorder, *gate.Gate, *gesture.Registry) {
	rec := &adapterRecorder{}
	g := gate.New(nil) // no session: gate bypasses
	reg := gesture.NewRegistry()
	svc := New(queue.New(), g, reg, rec.factory)
	return svc, rec, g, reg
}

func waitPlaying(t *testing.T, svc Service) {
	t.Helper()
	require.Eventually(t, svc.IsPlaying, 2*time.Second, 5*time.Millisecond,
		"playback never reached Playing")
}

func waitLoads(t *testing.T, m *backend.Mock, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(m.LoadCalls()) >= n },
		2*time.Second, 5*time.Millisecond, "expected %d loads", n)
}

func TestService_PlayTrackReachesPlaying(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	require.NoError(t, svc.PlayTrack(context.Background(), streamTrack("a")))

	snap := svc.Snapshot()
	assert.Equal(t, StateLoading, snap.State)
	assert.True(t, snap.IsLoading)
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "a", snap.CurrentTrack.ID)

	m := rec.last()
	require.NotNil(t, m)
	m.EmitReady()

	waitPlaying(t, svc)
	snap = svc.Snapshot()
	assert.True(t, snap.IsPlaying)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, media.SourceStream, snap.ActiveSource)
}

func TestService_GateDenialTouchesNothing(t *testing.T) {
	svc, rec, g, _ := newTestService()
	defer svc.Close()
	g.SetSession(&gate.Session{ID: "s1", LimitReached: true})

	sub := svc.Subscribe()
	err := svc.PlayTrack(context.Background(), streamTrack("a"))

	require.ErrorIs(t, err, ErrPlayDenied)
	assert.Equal(t, 0, rec.count(), "denied play must not construct or call any adapter")
	assert.Equal(t, StateIdle, svc.Snapshot().State)

	select {
	case e := <-sub.GateDenied:
		assert.Equal(t, "a", e.Track.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a GateDenied event")
	}
}

func TestService_StaleReadyIsDiscarded(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	// Play A; before its backend is ready, play B on the same source.
	require.NoError(t, svc.PlayTrack(ctx, widgetTrack("a")))
	m := rec.last()
	require.NoError(t, svc.PlayTrack(ctx, widgetTrack("b")))
	require.Same(t, m, rec.last(), "same source reuses the adapter")

	// A's readiness callback fires late: it must not start playback
	// or resurrect A.
	m.EmitReady()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, m.PlayCalls(), "stale ready must not trigger play")
	require.NotNil(t, svc.CurrentTrack())
	assert.Equal(t, "b", svc.CurrentTrack().ID)

	// B's readiness is current and starts playback.
	m.EmitReady()
	waitPlaying(t, svc)
	assert.Equal(t, "b", svc.CurrentTrack().ID)
}

func TestService_ErrorSkipsToNextTrack(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	sub := svc.Subscribe()
	require.NoError(t, svc.PlayList(context.Background(),
		[]media.Track{streamTrack("a"), streamTrack("b")}, 0))

	m := rec.last()
	m.EmitReady()
	waitPlaying(t, svc)

	m.EmitError(errors.New("stream gone"))

	waitLoads(t, m, 2)
	loads := m.LoadCalls()
	assert.Equal(t, "b", loads[1].ID, "error must auto-skip to the next track")

	select {
	case e := <-sub.Error:
		require.NotNil(t, e.Track)
		assert.Equal(t, "a", e.Track.ID)
	case <-time.After(time.Second):
		t.Fatal("expected an Error event for the skipped track")
	}
}

func TestService_ConsecutiveFailuresStopSkipping(t *testing.T) {
	rec := &adapterRecorder{loadErr: errors.New("boom")}
	svc := New(queue.New(), gate.New(nil), gesture.NewRegistry(), rec.factory)
	defer svc.Close()

	svc.SetRepeatMode(queue.RepeatAll) // would loop forever without the bound
	err := svc.PlayList(context.Background(),
		[]media.Track{streamTrack("a"), streamTrack("b"), streamTrack("c")}, 0)

	require.NoError(t, err, "load failures resolve into state, not errors")
	assert.Equal(t, StateIdle, svc.Snapshot().State)
	assert.Equal(t, maxConsecutiveFailures, len(rec.last().LoadCalls()))
}

func TestService_NaturalEndAdvances(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	require.NoError(t, svc.PlayList(context.Background(),
		[]media.Track{streamTrack("a"), streamTrack("b")}, 0))
	m := rec.last()
	m.EmitReady()
	waitPlaying(t, svc)

	m.EmitEnd()

	waitLoads(t, m, 2)
	assert.Equal(t, "b", m.LoadCalls()[1].ID)
	assert.Equal(t, 1, svc.Snapshot().CurrentIndex)
}

func TestService_EndOfQueueStopsWithoutWrap(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	require.NoError(t, svc.PlayList(context.Background(),
		[]media.Track{streamTrack("a"), streamTrack("b"), streamTrack("c")}, 2))
	m := rec.last()
	m.EmitReady()
	waitPlaying(t, svc)

	m.EmitEnd()

	require.Eventually(t, func() bool { return svc.Snapshot().State == StateEnded },
		2*time.Second, 5*time.Millisecond)
	snap := svc.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 2, snap.CurrentIndex, "last track stays loaded, no wrap")
	assert.Equal(t, 1, len(m.LoadCalls()))
}

func TestService_EndOfQueueWithRepeatAllWraps(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	require.NoError(t, svc.PlayList(context.Background(),
		[]media.Track{streamTrack("a"), streamTrack("b"), streamTrack("c")}, 2))
	svc.SetRepeatMode(queue.RepeatAll)
	m := rec.last()
	m.EmitReady()
	waitPlaying(t, svc)

	m.EmitEnd()

	waitLoads(t, m, 2)
	assert.Equal(t, "a", m.LoadCalls()[1].ID)
	assert.Equal(t, 0, svc.Snapshot().CurrentIndex)
}

func TestService_PauseIsOptimistic(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	require.NoError(t, svc.PlayTrack(context.Background(), streamTrack("a")))
	m := rec.last()
	m.EmitReady()
	waitPlaying(t, svc)

	svc.Pause()

	// No waiting: the flag flips before the backend confirms.
	assert.False(t, svc.IsPlaying())
	assert.Equal(t, 1, m.PauseCalls())
}

func TestService_ResumeSkipsGateAndReload(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	require.NoError(t, svc.PlayTrack(context.Background(), streamTrack("a")))
	m := rec.last()
	m.EmitReady()
	waitPlaying(t, svc)
	plays := m.PlayCalls()

	svc.Pause()
	require.Eventually(t, func() bool { return !svc.IsPlaying() },
		time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Play(context.Background()))
	waitPlaying(t, svc)

	assert.Equal(t, 1, len(m.LoadCalls()), "resume must not reload the track")
	assert.Equal(t, plays+1, m.PlayCalls())
}

func TestService_SourceSwitchTearsDownAdapter(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	require.NoError(t, svc.PlayTrack(ctx, widgetTrack("a")))
	widget := rec.last()
	widget.EmitReady()
	waitPlaying(t, svc)

	require.NoError(t, svc.PlayTrack(ctx, streamTrack("b")))

	assert.True(t, widget.Closed(), "previous adapter must be torn down on source switch")
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, media.SourceStream, svc.Snapshot().ActiveSource)
}

func TestService_SyncLoopStopsAfterSourceSwitch(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	require.NoError(t, svc.PlayTrack(ctx, widgetTrack("a")))
	widget := rec.last()
	widget.EmitReady()
	waitPlaying(t, svc)

	// Let the sync loop pick up the widget position at least once.
	widget.SetDuration(3 * time.Minute)
	widget.SetPosition(42 * time.Second)
	require.Eventually(t, func() bool { return svc.Snapshot().Position == 42*time.Second },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.PlayTrack(ctx, streamTrack("b")))

	// Any tick applied after teardown would leak the old position in.
	widget.SetPosition(99 * time.Second)
	time.Sleep(3 * syncInterval)
	assert.NotEqual(t, 99*time.Second, svc.Snapshot().Position)
}

func TestService_SeekOnWidgetWritesOptimistically(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	require.NoError(t, svc.PlayTrack(context.Background(), widgetTrack("a")))
	m := rec.last()
	m.EmitReady()
	waitPlaying(t, svc)

	svc.SeekTo(90 * time.Second)

	// The progress position updates before any poll tick.
	assert.Equal(t, 90*time.Second, svc.Snapshot().Position)
	require.Len(t, m.SeekCalls(), 1)
	assert.Equal(t, 90*time.Second, m.SeekCalls()[0])
}

func TestService_UnlockRunsOnUserPlayOnly(t *testing.T) {
	svc, rec, _, reg := newTestService()
	defer svc.Close()

	var unlocks int
	reg.SetUnlock(func() { unlocks++ })

	require.NoError(t, svc.PlayList(context.Background(),
		[]media.Track{streamTrack("a"), streamTrack("b")}, 0))
	// The unlock gesture ran synchronously, before PlayList returned.
	assert.Equal(t, 1, unlocks)

	m := rec.last()
	m.EmitReady()
	waitPlaying(t, svc)

	// Automatic advance is not a user gesture.
	m.EmitEnd()
	waitLoads(t, m, 2)
	assert.Equal(t, 1, unlocks)
}

func TestService_SnapshotInvariants(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	require.NoError(t, svc.PlayList(context.Background(),
		[]media.Track{streamTrack("a"), streamTrack("b")}, 0))
	m := rec.last()
	m.SetDuration(2 * time.Minute)
	m.EmitReady()
	waitPlaying(t, svc)
	m.SetPosition(30 * time.Second)

	snap := svc.Snapshot()
	require.NotNil(t, snap.CurrentTrack)
	assert.GreaterOrEqual(t, snap.CurrentIndex, 0)
	assert.Less(t, snap.CurrentIndex, len(snap.Queue))
	assert.GreaterOrEqual(t, snap.Position, time.Duration(0))
	assert.LessOrEqual(t, snap.Position, snap.Duration)
}

func TestService_DeniedPlayLeavesQueueUntouched(t *testing.T) {
	svc, rec, g, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	require.NoError(t, svc.PlayTrack(ctx, streamTrack("a")))
	rec.last().EmitReady()
	waitPlaying(t, svc)

	g.SetSession(&gate.Session{ID: "s1", LimitReached: true})
	err := svc.PlayTrack(ctx, streamTrack("b"))

	require.ErrorIs(t, err, ErrPlayDenied)
	snap := svc.Snapshot()
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "a", snap.CurrentTrack.ID, "denied play must not swap the current track")
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "a", snap.Queue[0].ID, "denied play must not replace the queue")
	assert.True(t, snap.IsPlaying, "the running track keeps playing")
	assert.Equal(t, 1, len(rec.last().LoadCalls()))
}

func TestService_DeniedNextRollsBackQueuePosition(t *testing.T) {
	svc, rec, g, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	require.NoError(t, svc.PlayList(ctx,
		[]media.Track{streamTrack("a"), streamTrack("b")}, 0))
	rec.last().EmitReady()
	waitPlaying(t, svc)

	g.SetSession(&gate.Session{ID: "s1", LimitReached: true})
	err := svc.Next(ctx)

	require.ErrorIs(t, err, ErrPlayDenied)
	snap := svc.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex, "denied skip must restore the queue position")
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "a", snap.CurrentTrack.ID)
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 1, len(rec.last().LoadCalls()))
}

// blockingGateService parks IncrementPlay until released, simulating a
// slow gate backend.
type blockingGateService struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingGateService) CreateSession(context.Context, string) (*gate.Session, error) {
	return &gate.Session{ID: "s1"}, nil
}

func (b *blockingGateService) IncrementPlay(context.Context, string) (*gate.Session, error) {
	b.entered <- struct{}{}
	<-b.release
	return &gate.Session{ID: "s1", PlayCount: 1}, nil
}

func (b *blockingGateService) GetSession(context.Context, string) (*gate.Session, error) {
	return &gate.Session{ID: "s1"}, nil
}

func TestService_SnapshotNotBlockedByGateCall(t *testing.T) {
	bg := &blockingGateService{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	g := gate.New(bg)
	g.SetSession(&gate.Session{ID: "s1"})
	rec := &adapterRecorder{}
	svc := New(queue.New(), g, gesture.NewRegistry(), rec.factory)
	defer svc.Close()

	playDone := make(chan error, 1)
	go func() {
		playDone <- svc.PlayTrack(context.Background(), streamTrack("a"))
	}()
	<-bg.entered

	// The remote increment is in flight; reads must still return.
	snapDone := make(chan struct{})
	go func() {
		svc.Snapshot()
		svc.IsPlaying()
		close(snapDone)
	}()
	select {
	case <-snapDone:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Snapshot blocked behind the gate call")
	}

	close(bg.release)
	require.NoError(t, <-playDone)
}

func TestService_SubscriptionReceivesTrackChanges(t *testing.T) {
	svc, rec, _, _ := newTestService()
	defer svc.Close()

	sub := svc.Subscribe()
	require.NoError(t, svc.PlayTrack(context.Background(), streamTrack("a")))
	rec.last().EmitReady()

	select {
	case e := <-sub.TrackChanged:
		require.NotNil(t, e.Current)
		assert.Equal(t, "a", e.Current.ID)
		assert.Nil(t, e.Previous)
	case <-time.After(time.Second):
		t.Fatal("expected a TrackChange event")
	}
}
