package interactive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/internal/media"
	"go2tv.app/castvideos/internal/playback"
)

// syncLoop runs closures inline; timers never fire.
type syncLoop struct{}

func (syncLoop) Post(f func()) bool { f(); return true }
func (syncLoop) Call(f func())      { f() }
func (syncLoop) AfterFunc(time.Duration, func()) func() {
	return func() {}
}

type nopElement struct{ loads int }

func (e *nopElement) Load()                    { e.loads++ }
func (e *nopElement) Play()                    {}
func (e *nopElement) Pause()                   {}
func (e *nopElement) Seek(_ float64, _ func()) {}
func (e *nopElement) Close()                   {}

type fakeClient struct {
	loads    []playback.QueueItem
	inserts  []playback.QueueItem
	seeks    []float64
	pauses   int
	plays    int
	pos      float64
	state    playback.RemotePlayerState
	status   *playback.MediaStatus
	edits    []string
	queueErr error
}

func (c *fakeClient) QueueLoad(items []playback.QueueItem, _ playback.QueueLoadOptions, done func(error)) {
	c.loads = append(c.loads, items...)
	done(nil)
}
func (c *fakeClient) QueueInsert(item playback.QueueItem, done func(error)) {
	c.inserts = append(c.inserts, item)
	done(nil)
}
func (c *fakeClient) QueueJumpToItem(id int, done func(error)) {
	c.edits = append(c.edits, fmt.Sprintf("jump %d", id))
	done(c.queueErr)
}
func (c *fakeClient) QueueRemoveItem(id int, done func(error)) {
	c.edits = append(c.edits, fmt.Sprintf("remove %d", id))
	done(c.queueErr)
}
func (c *fakeClient) QueueReorder(id, before int, done func(error)) {
	c.edits = append(c.edits, fmt.Sprintf("reorder %d before %d", id, before))
	done(c.queueErr)
}
func (c *fakeClient) Play(done func(error))  { c.plays++; done(nil) }
func (c *fakeClient) Pause(done func(error)) { c.pauses++; done(nil) }
func (c *fakeClient) Stop(done func(error))  { done(nil) }
func (c *fakeClient) Seek(pos float64, done func(error)) {
	c.seeks = append(c.seeks, pos)
	done(nil)
}
func (c *fakeClient) MediaStatus() *playback.MediaStatus               { return c.status }
func (c *fakeClient) LastKnownStreamPosition() float64                 { return c.pos }
func (c *fakeClient) LastKnownPlayerState() playback.RemotePlayerState { return c.state }
func (c *fakeClient) AddListener(playback.RemoteMediaListener)         {}
func (c *fakeClient) RemoveListener(playback.RemoteMediaListener)      {}

type fakeSession struct{ client *fakeClient }

func (s *fakeSession) ID() string                    { return "s1" }
func (s *fakeSession) DeviceName() string            { return "Living Room" }
func (s *fakeSession) Connected() bool               { return true }
func (s *fakeSession) Client() playback.RemoteClient { return s.client }

type fakeSessions struct {
	current *fakeSession
	started []devices.Device
	ended   []bool
}

func (f *fakeSessions) CurrentSession() playback.Session {
	if f.current == nil {
		return nil
	}
	return f.current
}
func (f *fakeSessions) HasConnectedSession() bool               { return f.current != nil }
func (f *fakeSessions) AddListener(playback.SessionListener)    {}
func (f *fakeSessions) RemoveListener(playback.SessionListener) {}
func (f *fakeSessions) Connecting() bool                        { return false }
func (f *fakeSessions) EndSession(stopMedia bool)               { f.ended = append(f.ended, stopMedia) }
func (f *fakeSessions) StartSession(_ context.Context, d devices.Device) {
	f.started = append(f.started, d)
}

type harness struct {
	screen   tcell.SimulationScreen
	ps       *PlayerScreen
	ctrl     *playback.Controller
	sessions *fakeSessions
	elems    []*nopElement
}

func newHarness(t *testing.T, dev *devices.Device) *harness {
	t.Helper()

	s := tcell.NewSimulationScreen("UTF-8")
	h := &harness{screen: s, sessions: &fakeSessions{}}
	h.ps = NewPlayerScreen(ScreenConfig{
		Screen:   s,
		Loop:     syncLoop{},
		Sessions: h.sessions,
		Device:   dev,
		Logger:   zerolog.Nop(),
	})
	h.ctrl = playback.NewController(playback.ControllerConfig{
		Presenter: h.ps,
		Sessions:  h.sessions,
		NewElement: func(*media.Info, playback.ElementEvents) playback.MediaElement {
			e := &nopElement{}
			h.elems = append(h.elems, e)
			return e
		},
		Scheduler: syncLoop{},
		Logger:    zerolog.Nop(),
	})
	h.ps.Attach(h.ctrl)

	require.NoError(t, h.ps.Init())
	t.Cleanup(s.Fini)
	s.SetSize(100, 30)
	h.ps.draw()

	return h
}

func (h *harness) key(k tcell.Key, r rune) {
	h.ps.HandleKeyEvent(tcell.NewEventKey(k, r, tcell.ModNone))
}

func (h *harness) text() string { return screenText(h.screen) }

func screenText(s tcell.Screen) string {
	w, ht := s.Size()
	var b strings.Builder
	for y := range ht {
		for x := range w {
			r, _, _, _ := s.GetContent(x, y)
			b.WriteRune(r)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func bunny(t *testing.T) *media.Info {
	t.Helper()
	info, err := media.NewInfo(media.Options{
		ContentID: "http://cdn/bbb.mp4",
		Duration:  596,
		Metadata:  map[string]string{media.KeyTitle: "Big Buck Bunny"},
	})
	require.NoError(t, err)
	return info
}

// lateScreen fails the test when drawn on before Init.
type lateScreen struct {
	tcell.SimulationScreen
	t           *testing.T
	initialized bool
}

func (s *lateScreen) Init() error {
	s.initialized = true
	return s.SimulationScreen.Init()
}

func (s *lateScreen) Clear() {
	if !s.initialized {
		s.t.Fatal("Clear on an uninitialised screen")
	}
	s.SimulationScreen.Clear()
}

func (s *lateScreen) Show() {
	if !s.initialized {
		s.t.Fatal("Show on an uninitialised screen")
	}
	s.SimulationScreen.Show()
}

func TestControllerBeforeScreenInit(t *testing.T) {
	s := &lateScreen{SimulationScreen: tcell.NewSimulationScreen("UTF-8"), t: t}
	sessions := &fakeSessions{}
	ps := NewPlayerScreen(ScreenConfig{Screen: s, Loop: syncLoop{}, Sessions: sessions, Logger: zerolog.Nop()})
	ctrl := playback.NewController(playback.ControllerConfig{
		Presenter:  ps,
		Sessions:   sessions,
		NewElement: func(*media.Info, playback.ElementEvents) playback.MediaElement { return &nopElement{} },
		Scheduler:  syncLoop{},
		Logger:     zerolog.Nop(),
	})
	ps.Attach(ctrl)

	// the order the command uses: the controller appears first
	ctrl.Appear()
	ctrl.SelectMedia(bunny(t))
	ps.SetQueueVisible(false)
	ps.ShowMessage("hello")

	require.NoError(t, ps.Init())
	t.Cleanup(s.Fini)

	text := screenText(s)
	assert.Contains(t, text, "Title: Big Buck Bunny")
	assert.Contains(t, text, "hello")
}

func TestScreenShowsMedia(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.Appear()
	h.ctrl.SelectMedia(bunny(t))

	out := h.text()
	assert.Contains(t, out, "Title: Big Buck Bunny")
	assert.Contains(t, out, "[Local] Stopped")
	assert.Contains(t, out, "Press ESC to stop and exit.")
}

func TestPlayKeyStartsLocalPlayback(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Appear()
	h.ctrl.SelectMedia(bunny(t))

	h.key(tcell.KeyRune, 'p')

	require.Len(t, h.elems, 1)
	assert.Equal(t, 1, h.elems[0].loads)
	assert.Equal(t, playback.StateStarting, h.ctrl.Player().State())
	assert.Contains(t, h.text(), "[Local] Starting")
}

func TestPlayChoice(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Appear()
	h.ctrl.SelectMedia(bunny(t))

	client := &fakeClient{}
	h.sessions.current = &fakeSession{client: client}

	h.key(tcell.KeyRune, 'p')
	assert.Contains(t, h.text(), "[1] Play Now")
	assert.Empty(t, h.elems, "local playback must not start while the choice is open")

	h.key(tcell.KeyRune, '1')
	require.Len(t, client.loads, 1)
	assert.Equal(t, "http://cdn/bbb.mp4", client.loads[0].Media.ContentID())
	assert.NotContains(t, h.text(), "[1] Play Now")
}

func TestCastKey(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Appear()

	h.key(tcell.KeyRune, 'c')
	assert.Contains(t, h.text(), "No receiver selected.")

	dev := devices.Device{Name: "Living Room", Addr: "http://10.0.0.9:8009", Type: devices.DeviceTypeChromecast}
	h = newHarness(t, &dev)
	h.ctrl.Appear()

	h.key(tcell.KeyRune, 'c')
	require.Len(t, h.sessions.started, 1)
	assert.Equal(t, dev, h.sessions.started[0])

	h.sessions.current = &fakeSession{client: &fakeClient{}}
	h.key(tcell.KeyRune, 'c')
	assert.Equal(t, []bool{true}, h.sessions.ended)
}

func TestRemoteKeys(t *testing.T) {
	h := newHarness(t, nil)
	client := &fakeClient{pos: 5, state: playback.RemotePlaying}
	h.sessions.current = &fakeSession{client: client}

	h.ctrl.Appear()
	require.Equal(t, playback.ModeRemote, h.ctrl.Mode())

	h.key(tcell.KeyRune, 'p')
	assert.Equal(t, 1, client.pauses)

	client.state = playback.RemotePaused
	h.key(tcell.KeyRune, 'p')
	assert.Equal(t, 1, client.plays)

	h.key(tcell.KeyLeft, 0)
	h.key(tcell.KeyRight, 0)
	assert.Equal(t, []float64{0, 15}, client.seeks)

	out := h.text()
	assert.Contains(t, out, "[Casting: Living Room] Paused")
}

func TestSeekIsThrottled(t *testing.T) {
	h := newHarness(t, nil)
	client := &fakeClient{pos: 100}
	h.sessions.current = &fakeSession{client: client}
	h.ctrl.Appear()

	for range 10 {
		h.key(tcell.KeyRight, 0)
	}
	assert.Len(t, client.seeks, 3)
}

func TestMessageExpires(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Now()
	h.ps.now = func() time.Time { return now }

	h.ps.ShowMessage("The casting session has ended.\nreceiver stopped responding")
	out := h.text()
	assert.Contains(t, out, "The casting session has ended.")
	assert.Contains(t, out, "receiver stopped responding")

	now = now.Add(messageTTL + time.Second)
	h.ps.draw()
	assert.NotContains(t, h.text(), "The casting session has ended.")
}

func TestProgressBar(t *testing.T) {
	h := newHarness(t, nil)
	client := &fakeClient{pos: 30, status: &playback.MediaStatus{Duration: 60, QueueLength: 2}}
	h.sessions.current = &fakeSession{client: client}
	h.ctrl.Appear()

	assert.Equal(t, "00:30 [=====-----] 01:00", h.ps.progressBar(24))

	h.ps.cfg.ShowRemaining = true
	assert.Equal(t, "00:30 [====-----] -00:30", h.ps.progressBar(24))

	assert.Contains(t, h.text(), "Receiver queue: 2 items")
}

func TestQueuePane(t *testing.T) {
	h := newHarness(t, nil)
	client := &fakeClient{state: playback.RemotePlaying, status: &playback.MediaStatus{
		PlayerState: playback.RemotePlaying,
		Items: []playback.QueueEntry{
			{ID: 1, Title: "Big Buck Bunny"},
			{ID: 2, Title: "Sintel"},
			{ID: 3, Title: "Tears of Steel"},
		},
		CurrentItemID: 1,
	}}

	h.key(tcell.KeyRune, 'q')
	assert.Contains(t, h.text(), "Not casting.")

	h.sessions.current = &fakeSession{client: client}
	h.ctrl.Appear()

	h.key(tcell.KeyRune, 'q')
	out := h.text()
	assert.Contains(t, out, "Receiver queue: 3 items")
	assert.Contains(t, out, "▶ Big Buck Bunny")
	assert.Contains(t, out, "Tears of Steel")
	assert.Contains(t, out, queueHelpLine)

	h.key(tcell.KeyDown, 0)
	h.key(tcell.KeyEnter, 0)
	h.key(tcell.KeyRune, 'J')
	h.key(tcell.KeyRune, 'K')
	h.key(tcell.KeyRune, 'd')
	assert.Equal(t, []string{"jump 2", "reorder 2 before 0", "reorder 2 before 1", "remove 2"}, client.edits)

	// Keys do not reach the player while the pane has focus.
	h.key(tcell.KeyRune, 'p')
	assert.Zero(t, client.pauses)

	h.key(tcell.KeyEscape, 0)
	require.NoError(t, h.ps.ctx.Err(), "ESC closes the pane first")
	assert.Contains(t, h.text(), helpLine)

	h.key(tcell.KeyRune, 'p')
	assert.Equal(t, 1, client.pauses)
}

func TestQueueRequestFailure(t *testing.T) {
	h := newHarness(t, nil)
	client := &fakeClient{queueErr: errors.New("INVALID_REQUEST"), status: &playback.MediaStatus{
		Items:         []playback.QueueEntry{{ID: 7, Title: "Sintel"}},
		CurrentItemID: 7,
	}}
	h.sessions.current = &fakeSession{client: client}
	h.ctrl.Appear()

	h.key(tcell.KeyRune, 'q')
	h.key(tcell.KeyRune, 'd')

	out := h.text()
	assert.Contains(t, out, "Queue request failed:")
	assert.Contains(t, out, "INVALID_REQUEST")
	assert.False(t, h.ctrl.Queue().Busy())
}

func TestEscapeQuits(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Appear()

	h.key(tcell.KeyEscape, 0)
	assert.Error(t, h.ps.ctx.Err())
}
