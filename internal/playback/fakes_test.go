package playback

import (
	"time"

	"go2tv.app/castvideos/internal/media"
)

type fakeElement struct {
	info   *media.Info
	ev     ElementEvents
	loaded bool
	closed bool

	playing   bool
	plays     int
	pauses    int
	seeks     []float64
	seekDones []func()
}

func (e *fakeElement) Load()  { e.loaded = true }
func (e *fakeElement) Play()  { e.playing = true; e.plays++ }
func (e *fakeElement) Pause() { e.playing = false; e.pauses++ }
func (e *fakeElement) Close() { e.closed = true }

func (e *fakeElement) Seek(pos float64, done func()) {
	e.seeks = append(e.seeks, pos)
	e.seekDones = append(e.seekDones, done)
}

// finishSeek completes the i-th seek issued on this element.
func (e *fakeElement) finishSeek(i int) { e.seekDones[i]() }

func (e *fakeElement) finishLastSeek() { e.seekDones[len(e.seekDones)-1]() }

type elementRecorder struct {
	elems []*fakeElement
}

func (r *elementRecorder) factory(info *media.Info, ev ElementEvents) MediaElement {
	e := &fakeElement{info: info, ev: ev}
	r.elems = append(r.elems, e)
	return e
}

func (r *elementRecorder) last() *fakeElement {
	if len(r.elems) == 0 {
		return nil
	}
	return r.elems[len(r.elems)-1]
}

type fakeTimer struct {
	f         func()
	cancelled bool
}

type fakeScheduler struct {
	pending []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, f func()) func() {
	t := &fakeTimer{f: f}
	s.pending = append(s.pending, t)
	return func() { t.cancelled = true }
}

// fire runs the timers armed so far. Timers armed while firing wait for
// the next call.
func (s *fakeScheduler) fire() {
	ts := s.pending
	s.pending = nil
	for _, t := range ts {
		if !t.cancelled {
			t.f()
		}
	}
}

func (s *fakeScheduler) armed() int {
	n := 0
	for _, t := range s.pending {
		if !t.cancelled {
			n++
		}
	}
	return n
}

type fakeHost struct {
	styles     []BarStyle
	hidden     []bool
	offer      bool
	offerCalls int
}

func (h *fakeHost) SetBarStyle(s BarStyle) { h.styles = append(h.styles, s) }
func (h *fakeHost) SetBarHidden(b bool)    { h.hidden = append(h.hidden, b) }

func (h *fakeHost) ShouldOfferRemotePlayback() bool {
	h.offerCalls++
	return h.offer
}

type fakePresenter struct {
	fakeHost
	messages     []string
	queueVisible bool
	choices      int
	mediaChanges []*media.Info
}

func (p *fakePresenter) ShowMessage(m string)          { p.messages = append(p.messages, m) }
func (p *fakePresenter) SetQueueVisible(v bool)        { p.queueVisible = v }
func (p *fakePresenter) PresentPlayChoice()            { p.choices++ }
func (p *fakePresenter) MediaChanged(info *media.Info) { p.mediaChanges = append(p.mediaChanges, info) }

type queueLoadCall struct {
	items []QueueItem
	opts  QueueLoadOptions
	done  func(error)
}

type queueInsertCall struct {
	item QueueItem
	done func(error)
}

type queueEditCall struct {
	method   string
	itemID   int
	beforeID int
	done     func(error)
}

type fakeClient struct {
	status    *MediaStatus
	edits     []queueEditCall
	position  float64
	state     RemotePlayerState
	loads     []queueLoadCall
	inserts   []queueInsertCall
	listeners map[RemoteMediaListener]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{listeners: map[RemoteMediaListener]bool{}}
}

func (c *fakeClient) QueueLoad(items []QueueItem, opts QueueLoadOptions, done func(error)) {
	c.loads = append(c.loads, queueLoadCall{items: items, opts: opts, done: done})
}

func (c *fakeClient) QueueInsert(item QueueItem, done func(error)) {
	c.inserts = append(c.inserts, queueInsertCall{item: item, done: done})
}

func (c *fakeClient) QueueJumpToItem(id int, done func(error)) {
	c.edits = append(c.edits, queueEditCall{method: "jump", itemID: id, done: done})
}

func (c *fakeClient) QueueRemoveItem(id int, done func(error)) {
	c.edits = append(c.edits, queueEditCall{method: "remove", itemID: id, done: done})
}

func (c *fakeClient) QueueReorder(id, before int, done func(error)) {
	c.edits = append(c.edits, queueEditCall{method: "reorder", itemID: id, beforeID: before, done: done})
}

func (c *fakeClient) Play(done func(error))                   { done(nil) }
func (c *fakeClient) Pause(done func(error))                  { done(nil) }
func (c *fakeClient) Seek(_ float64, done func(error))        { done(nil) }
func (c *fakeClient) Stop(done func(error))                   { done(nil) }
func (c *fakeClient) MediaStatus() *MediaStatus               { return c.status }
func (c *fakeClient) LastKnownStreamPosition() float64        { return c.position }
func (c *fakeClient) LastKnownPlayerState() RemotePlayerState { return c.state }
func (c *fakeClient) AddListener(l RemoteMediaListener)       { c.listeners[l] = true }
func (c *fakeClient) RemoveListener(l RemoteMediaListener)    { delete(c.listeners, l) }

type fakeSession struct {
	id        string
	connected bool
	client    *fakeClient
}

func (s *fakeSession) ID() string           { return s.id }
func (s *fakeSession) DeviceName() string   { return "Living Room TV" }
func (s *fakeSession) Connected() bool      { return s.connected }
func (s *fakeSession) Client() RemoteClient { return s.client }

type fakeSessions struct {
	current   *fakeSession
	listeners map[SessionListener]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{listeners: map[SessionListener]bool{}}
}

func (m *fakeSessions) CurrentSession() Session {
	if m.current == nil {
		return nil
	}
	return m.current
}

func (m *fakeSessions) HasConnectedSession() bool {
	return m.current != nil && m.current.connected
}

func (m *fakeSessions) AddListener(l SessionListener)    { m.listeners[l] = true }
func (m *fakeSessions) RemoveListener(l SessionListener) { delete(m.listeners, l) }

func (m *fakeSessions) connect(id string) *fakeSession {
	m.current = &fakeSession{id: id, connected: true, client: newFakeClient()}
	return m.current
}

func mustInfo(id string) *media.Info {
	info, err := media.NewInfo(media.Options{
		ContentID:   id,
		ContentType: "video/mp4",
		Metadata:    map[string]string{media.KeyTitle: "Title of " + id},
	})
	if err != nil {
		panic(err)
	}
	return info
}
