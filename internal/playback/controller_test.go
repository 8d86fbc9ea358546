package playback

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	c        *Controller
	pres     *fakePresenter
	sessions *fakeSessions
	rec      *elementRecorder
	sched    *fakeScheduler
}

func newControllerFixture() *controllerFixture {
	f := &controllerFixture{
		pres:     &fakePresenter{},
		sessions: newFakeSessions(),
		rec:      &elementRecorder{},
		sched:    &fakeScheduler{},
	}
	f.c = NewController(ControllerConfig{
		Presenter:   f.pres,
		Sessions:    f.sessions,
		NewElement:  f.rec.factory,
		Scheduler:   f.sched,
		PreloadTime: 20,
		Logger:      zerolog.Nop(),
	})
	return f
}

// playLocally selects media, appears, and plays it locally up to pos.
func (f *controllerFixture) playLocally(t *testing.T, pos float64) {
	t.Helper()

	f.c.SelectMedia(mustInfo("http://media/bbb.mp4"))
	f.c.Appear()
	require.Equal(t, ModeLocal, f.c.Mode())

	f.c.Player().Play()
	el := f.rec.last()
	require.NotNil(t, el)
	el.ev.Ready(600, false)
	el.ev.Position(pos)
	require.Equal(t, StatePlaying, f.c.Player().State())
}

func TestAppearWithoutSessionGoesLocal(t *testing.T) {
	f := newControllerFixture()
	f.c.SelectMedia(mustInfo("http://media/bbb.mp4"))

	f.c.Appear()

	assert.Equal(t, ModeLocal, f.c.Mode())
	assert.Equal(t, StateStopped, f.c.Player().State())
	assert.True(t, f.c.Player().Media().SameContent(f.c.Media()))
	assert.True(t, f.sessions.listeners[f.c])
	assert.Empty(t, f.rec.elems, "nothing to continue, so the player waits on its splash")
}

func TestLocalToRemoteWhilePlaying(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 42.0)

	s := f.sessions.connect("session-1")
	f.c.SessionStarted(s)

	require.Equal(t, ModeRemote, f.c.Mode())
	require.Len(t, s.client.loads, 1)

	load := s.client.loads[0]
	require.Len(t, load.items, 1)
	assert.Equal(t, 42.0, load.items[0].StartPosition)
	assert.True(t, load.items[0].Autoplay)
	assert.Equal(t, 20.0, load.items[0].PreloadTime)
	assert.Equal(t, "http://media/bbb.mp4", load.items[0].Media.ContentID())
	assert.Equal(t, RepeatOff, load.opts.RepeatMode)

	assert.Equal(t, StateStopped, f.c.Player().State())
	assert.True(t, f.rec.elems[0].closed)
	assert.True(t, f.pres.queueVisible)
	assert.True(t, s.client.listeners[f.c])
}

func TestLocalToRemoteWhilePaused(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 13)
	f.c.Player().Pause()

	s := f.sessions.connect("session-1")
	f.c.SwitchToRemotePlayback()

	require.Len(t, s.client.loads, 1)
	assert.False(t, s.client.loads[0].items[0].Autoplay)
	assert.Equal(t, 13.0, s.client.loads[0].items[0].StartPosition)
}

func TestLocalToRemoteWhenStoppedSendsNothing(t *testing.T) {
	f := newControllerFixture()
	f.c.SelectMedia(mustInfo("http://media/bbb.mp4"))
	f.c.Appear()

	s := f.sessions.connect("session-1")
	f.c.SessionStarted(s)

	assert.Equal(t, ModeRemote, f.c.Mode())
	assert.Empty(t, s.client.loads)
}

func TestRemoteToLocalPaused(t *testing.T) {
	f := newControllerFixture()
	f.c.SelectMedia(mustInfo("http://media/bbb.mp4"))
	s := f.sessions.connect("session-1")
	f.c.Appear()
	require.Equal(t, ModeRemote, f.c.Mode())

	s.client.state = RemotePaused
	s.client.position = 10.0
	f.sessions.current = nil
	f.c.SessionEnded(s, nil)

	require.Equal(t, ModeLocal, f.c.Mode())
	p := f.c.Player()
	assert.Equal(t, StateStopped, p.State(), "autoPlay=false keeps the splash")
	assert.False(t, p.PendingPlay())
	assert.Nil(t, f.c.Session())
	assert.False(t, s.client.listeners[f.c])
	assert.Equal(t, []string{"The casting session has ended."}, f.pres.messages)

	// the captured position is applied once the user starts playback
	p.Play()
	el := f.rec.last()
	el.ev.Ready(600, false)
	require.Equal(t, []float64{10.0}, el.seeks)
}

func TestRemoteToLocalPlayingAutoStarts(t *testing.T) {
	f := newControllerFixture()
	f.c.SelectMedia(mustInfo("http://media/bbb.mp4"))
	s := f.sessions.connect("session-1")
	f.c.Appear()

	s.client.state = RemotePlaying
	s.client.position = 77
	f.c.SwitchToLocalPlayback()

	assert.Equal(t, StateStarting, f.c.Player().State())
	f.rec.last().ev.Ready(600, false)
	assert.Equal(t, []float64{77}, f.rec.last().seeks)
}

func TestRemoteToLocalEndedDoesNotAutoPlay(t *testing.T) {
	f := newControllerFixture()
	f.c.SelectMedia(mustInfo("http://media/bbb.mp4"))
	s := f.sessions.connect("session-1")
	f.c.Appear()

	s.client.state = RemoteIdle
	s.client.position = 600
	f.c.SwitchToLocalPlayback()

	assert.Equal(t, StateStopped, f.c.Player().State())
	assert.Empty(t, f.rec.elems)
}

func TestSessionEndedMessageCarriesError(t *testing.T) {
	f := newControllerFixture()
	s := f.sessions.connect("session-1")
	f.c.Appear()

	f.c.SessionEnded(s, errors.New("network lost"))

	require.Len(t, f.pres.messages, 1)
	assert.Equal(t, "The casting session has ended.\nnetwork lost", f.pres.messages[0])
	assert.Equal(t, ModeLocal, f.c.Mode())
}

func TestSessionEndedForOtherSessionIgnored(t *testing.T) {
	f := newControllerFixture()
	f.sessions.connect("session-1")
	f.c.Appear()

	f.c.SessionEnded(&fakeSession{id: "stale", client: newFakeClient()}, nil)

	assert.Equal(t, ModeRemote, f.c.Mode())
	assert.Empty(t, f.pres.messages)
}

func TestSwitchesAreIdempotent(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 30)

	f.c.SwitchToLocalPlayback()
	assert.Equal(t, StatePlaying, f.c.Player().State())
	assert.Len(t, f.rec.elems, 1)

	s := f.sessions.connect("session-1")
	f.c.SwitchToRemotePlayback()
	f.c.SwitchToRemotePlayback()
	f.c.SessionResumed(s)

	assert.Len(t, s.client.loads, 1)
	assert.Equal(t, ModeRemote, f.c.Mode())
}

func TestRoundTripRestoresPosition(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 42.0)

	s := f.sessions.connect("session-1")
	f.c.SwitchToRemotePlayback()
	require.Len(t, s.client.loads, 1)

	// the receiver reports back what it was asked to do
	item := s.client.loads[0].items[0]
	s.client.position = item.StartPosition
	s.client.state = RemotePlaying

	f.c.SwitchToLocalPlayback()
	require.Equal(t, ModeLocal, f.c.Mode())
	require.Equal(t, StateStarting, f.c.Player().State())

	el := f.rec.last()
	el.ev.Ready(600, false)
	require.Equal(t, []float64{42.0}, el.seeks)
	el.finishLastSeek()

	assert.Equal(t, StatePlaying, f.c.Player().State())
	assert.Equal(t, 42.0, f.c.Player().Position())
}

func TestSwitchToRemoteWithoutSessionIsNoop(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 3)

	f.c.SwitchToRemotePlayback()

	assert.Equal(t, ModeLocal, f.c.Mode())
	assert.Equal(t, StatePlaying, f.c.Player().State())
}

func TestHandoffFailureFallsBackToLocal(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 42.0)

	s := f.sessions.connect("session-1")
	f.c.SwitchToRemotePlayback()
	require.Len(t, s.client.loads, 1)

	s.client.loads[0].done(errors.New("LOAD_FAILED"))

	require.Equal(t, ModeLocal, f.c.Mode())
	require.Len(t, f.pres.messages, 1)
	assert.Contains(t, f.pres.messages[0], "LOAD_FAILED")
	assert.False(t, f.pres.queueVisible)
	assert.Equal(t, StateStopped, f.c.Player().State())
	assert.False(t, s.client.listeners[f.c])

	f.c.Player().Play()
	assert.Equal(t, 1, f.pres.choices, "session still connected, so play offers the receiver")
}

func TestHandoffFailureAfterDetachOnlyReports(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 42.0)

	s := f.sessions.connect("session-1")
	f.c.SwitchToRemotePlayback()
	f.sessions.current = nil
	f.c.SessionEnded(s, nil)
	require.Equal(t, ModeLocal, f.c.Mode())

	s.client.loads[0].done(errors.New("late"))

	assert.Equal(t, ModeLocal, f.c.Mode())
	assert.Len(t, f.pres.messages, 2)
}

func TestHandoffSuccessKeepsRemote(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 1)

	s := f.sessions.connect("session-1")
	f.c.SwitchToRemotePlayback()
	s.client.loads[0].done(nil)

	assert.Equal(t, ModeRemote, f.c.Mode())
	assert.Empty(t, f.pres.messages)
}

func TestSessionStartFailed(t *testing.T) {
	f := newControllerFixture()
	f.c.Appear()

	f.c.SessionStartFailed(errors.New("refused"))

	assert.Equal(t, ModeLocal, f.c.Mode())
	require.Len(t, f.pres.messages, 1)
	assert.Contains(t, f.pres.messages[0], "refused")
}

func TestSessionResumeFailed(t *testing.T) {
	f := newControllerFixture()
	s := f.sessions.connect("session-1")
	f.c.Appear()
	require.Equal(t, ModeRemote, f.c.Mode())

	f.c.SessionResumeFailed(s, errors.New("gone"))

	assert.Equal(t, ModeLocal, f.c.Mode())
	assert.Equal(t, []string{"The casting session could not be resumed."}, f.pres.messages)
}

func TestRemoteStatusUpdatesMedia(t *testing.T) {
	f := newControllerFixture()
	f.c.SelectMedia(mustInfo("http://media/a.mp4"))
	f.sessions.connect("session-1")
	f.c.Appear()

	next := mustInfo("http://media/b.mp4")
	f.c.RemoteMediaStatusChanged("session-1", &MediaStatus{Media: next})
	assert.Same(t, next, f.c.Media())

	f.c.RemoteMediaStatusChanged("other", &MediaStatus{Media: mustInfo("http://media/c.mp4")})
	assert.Same(t, next, f.c.Media())

	f.c.RemoteMediaStatusChanged("session-1", &MediaStatus{})
	assert.Same(t, next, f.c.Media())
}

func TestPlayGateOffersChoice(t *testing.T) {
	f := newControllerFixture()
	f.c.SelectMedia(mustInfo("http://media/a.mp4"))
	f.sessions.connect("session-1")
	f.c.Appear()

	f.c.Player().Play()

	assert.Equal(t, 1, f.pres.choices)
	assert.Equal(t, StateStopped, f.c.Player().State())
}

func TestEnqueueAndPlayNow(t *testing.T) {
	f := newControllerFixture()
	f.c.SelectMedia(mustInfo("http://media/a.mp4"))
	s := f.sessions.connect("session-1")
	f.c.Appear()

	// no receiver status yet: appending falls back to a new queue
	f.c.EnqueueSelectedItemRemotely()
	require.Len(t, s.client.loads, 1)
	assert.Empty(t, s.client.inserts)
	assert.Equal(t, `Added "Title of http://media/a.mp4" to queue.`, f.pres.messages[0])
	assert.True(t, s.client.loads[0].items[0].Autoplay)

	s.client.status = &MediaStatus{RepeatMode: RepeatAll}
	f.c.EnqueueSelectedItemRemotely()
	require.Len(t, s.client.inserts, 1)
	assert.Equal(t, 20.0, s.client.inserts[0].item.PreloadTime)

	f.c.PlaySelectedItemRemotely()
	require.Len(t, s.client.loads, 2)
	assert.Equal(t, RepeatAll, s.client.loads[1].opts.RepeatMode)

	s.client.loads[1].done(errors.New("boom"))
	assert.Contains(t, f.pres.messages[len(f.pres.messages)-1], "boom")
}

func TestDisappearAppearImplicitPause(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 5)

	f.c.Disappear()
	assert.Equal(t, StatePaused, f.c.Player().State())
	assert.True(t, f.c.ImplicitlyPaused())
	assert.False(t, f.sessions.listeners[f.c])

	f.c.Appear()
	assert.Equal(t, StatePlaying, f.c.Player().State())
	assert.False(t, f.c.ImplicitlyPaused())
}

func TestDisappearLeavesUserPauseAlone(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 5)
	f.c.Player().Pause()

	f.c.Disappear()
	f.c.Appear()

	assert.Equal(t, StatePaused, f.c.Player().State())
}

func TestSelectMediaInLocalMode(t *testing.T) {
	f := newControllerFixture()
	f.playLocally(t, 5)

	f.c.SelectMedia(mustInfo("http://media/other.mp4"))

	assert.Equal(t, StateStopped, f.c.Player().State())
	assert.Equal(t, "http://media/other.mp4", f.c.Player().Media().ContentID())
	assert.True(t, f.rec.elems[0].closed)
}

func TestParseRemotePlayerState(t *testing.T) {
	tt := map[string]RemotePlayerState{
		"PLAYING":          RemotePlaying,
		"paused":           RemotePaused,
		"PAUSED_PLAYBACK":  RemotePaused,
		"IDLE":             RemoteIdle,
		"STOPPED":          RemoteIdle,
		"NO_MEDIA_PRESENT": RemoteIdle,
		"BUFFERING":        RemoteBuffering,
		"TRANSITIONING":    RemoteLoading,
		"":                 RemoteUnknown,
		"whatever":         RemoteUnknown,
	}

	for in, want := range tt {
		assert.Equal(t, want, ParseRemotePlayerState(in), in)
	}
}
