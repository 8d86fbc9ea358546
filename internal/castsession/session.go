package castsession

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/internal/media"
	"go2tv.app/castvideos/internal/playback"
)

// backend is the device specific half of a session. Methods are called
// from worker goroutines, never from the loop.
type backend interface {
	queueLoad(ctx context.Context, items []playback.QueueItem, opts playback.QueueLoadOptions) error
	queueInsert(ctx context.Context, item playback.QueueItem) error
	queueJump(ctx context.Context, itemID int) error
	queueRemove(ctx context.Context, itemID int) error
	queueReorder(ctx context.Context, itemID, beforeID int) error
	play(ctx context.Context) error
	pause(ctx context.Context) error
	seek(ctx context.Context, pos float64) error
	stop(ctx context.Context) error
	status(ctx context.Context) (receiverStatus, error)
	close(stopMedia bool) error
}

// receiverStatus is a backend status poll result.
type receiverStatus struct {
	State       string
	Position    float64
	Duration    float64
	ContentID   string
	ContentType string
	Title       string

	Items         []receiverItem
	CurrentItemID int
}

// receiverItem is a queue entry as the receiver reports it.
type receiverItem struct {
	ID        int
	ContentID string
	Title     string
}

// Session implements playback.Session.
type Session struct {
	id     string
	device devices.Device
	client *Client

	ctx    context.Context
	cancel context.CancelFunc
}

var _ playback.Session = (*Session)(nil)

func newSession(id string, dev devices.Device) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{id: id, device: dev, ctx: ctx, cancel: cancel}
}

func (s *Session) attach(loop Poster, b backend, logger zerolog.Logger) {
	s.client = &Client{
		loop:       loop,
		backend:    b,
		ctx:        s.ctx,
		sessionID:  s.id,
		repeatMode: playback.RepeatOff,
		known:      make(map[string]*media.Info),
		Logger:     logger.With().Str("Session", s.id).Logger(),
	}
}

func (s *Session) detach() {
	s.cancel()
	if s.client != nil {
		s.client.closed = true
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) DeviceName() string     { return s.device.Name }
func (s *Session) Device() devices.Device { return s.device }
func (s *Session) Connected() bool        { return s.client != nil && !s.client.closed }
func (s *Session) Client() playback.RemoteClient {
	if s.client == nil {
		return nil
	}
	return s.client
}

// Client implements playback.RemoteClient on top of a backend. Requests
// run on worker goroutines, their completions and the status fan-out are
// posted back to the loop.
type Client struct {
	loop      Poster
	backend   backend
	ctx       context.Context
	sessionID string
	closed    bool

	status      *playback.MediaStatus
	lastPos     float64
	lastState   playback.RemotePlayerState
	repeatMode  playback.RepeatMode
	queueLength int
	// known maps content IDs sent to the receiver to their Info so status
	// updates hand out the same descriptor.
	known map[string]*media.Info

	listeners []playback.RemoteMediaListener
	Logger    zerolog.Logger
}

var _ playback.RemoteClient = (*Client)(nil)

func (c *Client) remember(info *media.Info) {
	if info != nil {
		c.known[info.ContentID()] = info
	}
}

// run executes fn off the loop and calls done with its result on the loop.
func (c *Client) run(method string, fn func(ctx context.Context) error, done func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
		err := fn(ctx)
		cancel()

		if err != nil {
			c.Logger.Error().Str("Method", method).Err(err).Msg("request failed")
		}
		c.loop.Post(func() {
			if done != nil {
				done(err)
			}
		})
	}()
}

// QueueLoad implements playback.RemoteClient.
func (c *Client) QueueLoad(items []playback.QueueItem, opts playback.QueueLoadOptions, done func(error)) {
	for _, it := range items {
		c.remember(it.Media)
	}
	if opts.RepeatMode == "" {
		opts.RepeatMode = playback.RepeatOff
	}

	c.run("QueueLoad", func(ctx context.Context) error {
		return c.backend.queueLoad(ctx, items, opts)
	}, func(err error) {
		if err == nil {
			c.repeatMode = opts.RepeatMode
			c.queueLength = len(items)
		}
		if done != nil {
			done(err)
		}
	})
}

// QueueInsert implements playback.RemoteClient.
func (c *Client) QueueInsert(item playback.QueueItem, done func(error)) {
	c.remember(item.Media)

	c.run("QueueInsert", func(ctx context.Context) error {
		return c.backend.queueInsert(ctx, item)
	}, func(err error) {
		if err == nil {
			c.queueLength++
		}
		if done != nil {
			done(err)
		}
	})
}

// QueueJumpToItem implements playback.RemoteClient.
func (c *Client) QueueJumpToItem(itemID int, done func(error)) {
	c.run("QueueJumpToItem", func(ctx context.Context) error {
		return c.backend.queueJump(ctx, itemID)
	}, done)
}

// QueueRemoveItem implements playback.RemoteClient.
func (c *Client) QueueRemoveItem(itemID int, done func(error)) {
	c.run("QueueRemoveItem", func(ctx context.Context) error {
		return c.backend.queueRemove(ctx, itemID)
	}, func(err error) {
		if err == nil && c.queueLength > 0 {
			c.queueLength--
		}
		if done != nil {
			done(err)
		}
	})
}

// QueueReorder implements playback.RemoteClient.
func (c *Client) QueueReorder(itemID, beforeID int, done func(error)) {
	c.run("QueueReorder", func(ctx context.Context) error {
		return c.backend.queueReorder(ctx, itemID, beforeID)
	}, done)
}

func (c *Client) Play(done func(error))  { c.run("Play", c.backend.play, done) }
func (c *Client) Pause(done func(error)) { c.run("Pause", c.backend.pause, done) }
func (c *Client) Stop(done func(error))  { c.run("Stop", c.backend.stop, done) }

// Seek implements playback.RemoteClient.
func (c *Client) Seek(pos float64, done func(error)) {
	c.run("Seek", func(ctx context.Context) error {
		return c.backend.seek(ctx, pos)
	}, done)
}

// MediaStatus implements playback.RemoteClient.
func (c *Client) MediaStatus() *playback.MediaStatus { return c.status }

// LastKnownStreamPosition implements playback.RemoteClient.
func (c *Client) LastKnownStreamPosition() float64 { return c.lastPos }

// LastKnownPlayerState implements playback.RemoteClient.
func (c *Client) LastKnownPlayerState() playback.RemotePlayerState { return c.lastState }

// AddListener implements playback.RemoteClient.
func (c *Client) AddListener(l playback.RemoteMediaListener) {
	if !slices.Contains(c.listeners, l) {
		c.listeners = append(c.listeners, l)
	}
}

// RemoveListener implements playback.RemoteClient.
func (c *Client) RemoveListener(l playback.RemoteMediaListener) {
	c.listeners = slices.DeleteFunc(c.listeners, func(x playback.RemoteMediaListener) bool { return x == l })
}

// applyStatus records a poll result and notifies the listeners. Runs on
// the loop.
func (c *Client) applyStatus(rs receiverStatus) {
	if c.closed {
		return
	}

	state := playback.ParseRemotePlayerState(rs.State)
	c.lastState = state
	c.lastPos = rs.Position

	st := &playback.MediaStatus{
		Media:       c.mediaFor(rs),
		PlayerState: state,
		Position:    rs.Position,
		Duration:    rs.Duration,
		RepeatMode:  c.repeatMode,
		QueueLength: c.queueLength,

		CurrentItemID: rs.CurrentItemID,
	}
	if len(rs.Items) > 0 {
		c.queueLength = len(rs.Items)
		st.QueueLength = c.queueLength
		st.Items = c.queueEntries(rs.Items)
	}
	if st.Media == nil && state == playback.RemoteIdle {
		// nothing loaded yet
		st = nil
	}
	c.status = st

	for _, l := range slices.Clone(c.listeners) {
		l.RemoteMediaStatusChanged(c.sessionID, st)
	}
}

func (c *Client) queueEntries(items []receiverItem) []playback.QueueEntry {
	out := make([]playback.QueueEntry, 0, len(items))
	for _, it := range items {
		e := playback.QueueEntry{ID: it.ID, Title: it.Title, Media: c.known[it.ContentID]}
		if e.Title == "" && e.Media != nil {
			e.Title = e.Media.Title()
		}
		out = append(out, e)
	}
	return out
}

func (c *Client) mediaFor(rs receiverStatus) *media.Info {
	if rs.ContentID == "" {
		return nil
	}
	if info, ok := c.known[rs.ContentID]; ok {
		return info
	}

	// Loaded by another sender.
	meta := map[string]string{}
	if rs.Title != "" {
		meta[media.KeyTitle] = rs.Title
	}
	info, err := media.NewInfo(media.Options{
		ContentID:   rs.ContentID,
		ContentType: rs.ContentType,
		Duration:    rs.Duration,
		Metadata:    meta,
	})
	if err != nil {
		return nil
	}
	c.known[rs.ContentID] = info
	return info
}
