package playback

import (
	"fmt"

	"github.com/rs/zerolog"

	"go2tv.app/castvideos/internal/media"
)

const (
	msgSessionEnded      = "The casting session has ended."
	msgSessionNotResumed = "The casting session could not be resumed."
	msgStartFailed       = "Failed to start a session"
	msgLoadFailed        = "Failed to load media on the receiver"
	msgRequestFailed     = "Receiver request failed"
)

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Presenter  Presenter
	Sessions   SessionManager
	NewElement ElementFactory
	Scheduler  Scheduler
	// PreloadTime is copied into every queue item, in seconds.
	PreloadTime float64
	Logger      zerolog.Logger
}

// Controller owns the playback mode. It moves playback between the local
// player and the receiver session, carrying position and pause state.
type Controller struct {
	Logger zerolog.Logger

	presenter   Presenter
	sessions    SessionManager
	player      *LocalPlayer
	queue       *QueueEditor
	preloadTime float64

	mode      Mode
	mediaInfo *media.Info
	session   Session

	implicitlyPaused bool
	queueVisible     bool
}

var (
	_ PlaybackHost        = (*Controller)(nil)
	_ SessionListener     = (*Controller)(nil)
	_ RemoteMediaListener = (*Controller)(nil)
)

// NewController returns a controller in ModeNone.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		Logger:      cfg.Logger,
		presenter:   cfg.Presenter,
		sessions:    cfg.Sessions,
		preloadTime: cfg.PreloadTime,
	}
	c.player = NewLocalPlayer(c, cfg.NewElement, cfg.Scheduler, cfg.Logger)
	c.queue = NewQueueEditor(cfg.Presenter, cfg.Sessions, cfg.Logger)

	return c
}

func (c *Controller) Mode() Mode             { return c.mode }
func (c *Controller) Player() *LocalPlayer   { return c.player }
func (c *Controller) Queue() *QueueEditor    { return c.queue }
func (c *Controller) Media() *media.Info     { return c.mediaInfo }
func (c *Controller) Session() Session       { return c.session }
func (c *Controller) QueueVisible() bool     { return c.queueVisible }
func (c *Controller) ImplicitlyPaused() bool { return c.implicitlyPaused }

// SelectMedia makes info the current item. The player is reset to its
// splash state for the new item.
func (c *Controller) SelectMedia(info *media.Info) {
	c.mediaInfo = info
	c.presenter.MediaChanged(info)

	if c.mode != ModeNone {
		c.player.LoadMedia(info, false, 0)
	}
}

// Appear reconciles the mode with the session manager and resumes a local
// player paused by Disappear.
func (c *Controller) Appear() {
	c.Logger.Debug().Str("Method", "Appear").Stringer("Mode", c.mode).Msg("appear")

	if c.mode == ModeLocal && c.implicitlyPaused {
		c.player.Play()
		c.implicitlyPaused = false
	}

	switch {
	case c.sessions.HasConnectedSession() && c.mode != ModeRemote:
		c.SwitchToRemotePlayback()
	case c.sessions.CurrentSession() == nil && c.mode != ModeLocal:
		c.SwitchToLocalPlayback()
	}

	c.sessions.AddListener(c)
}

// Disappear pauses local playback until the next Appear.
func (c *Controller) Disappear() {
	c.presenter.SetBarStyle(BarDefault)

	if c.mode == ModeLocal {
		st := c.player.State()
		if st == StatePlaying || st == StateStarting {
			c.implicitlyPaused = true
			c.player.Pause()
		}
	}

	c.sessions.RemoveListener(c)
}

// SwitchToLocalPlayback moves playback onto the local player. When coming
// from a receiver, the last known remote position and state are carried
// over.
func (c *Controller) SwitchToLocalPlayback() {
	if c.mode == ModeLocal {
		return
	}
	c.Logger.Debug().Str("Method", "SwitchToLocalPlayback").Stringer("From", c.mode).Msg("switching mode")

	c.setQueueVisible(false)

	// Entering from ModeNone there is nothing to continue, so the player
	// waits on its splash state.
	var (
		t        Transfer
		autoPlay bool
	)
	if c.mode == ModeRemote && c.session != nil {
		t = transferFromRemote(c.session.Client())
		autoPlay = t.AutoPlay()
		c.Logger.Debug().Str("Method", "SwitchToLocalPlayback").Float64("Position", t.Position).
			Bool("Paused", t.Paused).Bool("Ended", t.Ended).Msg("captured remote state")
	}

	c.populateMediaInfo(autoPlay, t.Position)
	c.detachSession()
	c.mode = ModeLocal
}

// SwitchToRemotePlayback attaches to the current session. Media playing
// locally is loaded on the receiver at the local position.
func (c *Controller) SwitchToRemotePlayback() {
	if c.mode == ModeRemote {
		return
	}

	s := c.sessions.CurrentSession()
	if s == nil {
		c.Logger.Debug().Str("Method", "SwitchToRemotePlayback").Msg("no session to switch to")
		return
	}
	c.Logger.Debug().Str("Method", "SwitchToRemotePlayback").Str("Session", s.ID()).Msg("switching mode")

	c.session = s
	client := s.Client()

	if c.mode == ModeLocal && c.player.State() != StateStopped && c.mediaInfo != nil {
		t := transferFromLocal(c.player)
		info := c.mediaInfo
		sid := s.ID()

		item := QueueItem{
			Media:         info,
			Autoplay:      t.AutoPlay(),
			StartPosition: t.Position,
			PreloadTime:   c.preloadTime,
		}
		opts := QueueLoadOptions{RepeatMode: RepeatOff, PlayPosition: t.Position}

		client.QueueLoad([]QueueItem{item}, opts, func(err error) {
			if err == nil {
				c.Logger.Debug().Str("Method", "SwitchToRemotePlayback").Msg("hand-off load completed")
				return
			}
			c.handoffFailed(sid, info, t, err)
		})
	}

	c.player.Stop()
	c.player.ShowSplashScreen()
	if c.mediaInfo != nil {
		c.player.LoadMedia(c.mediaInfo, false, 0)
	}
	c.setQueueVisible(true)
	client.AddListener(c)
	c.mode = ModeRemote
}

// handoffFailed falls back to the local player at the captured position,
// paused, if the failed load still belongs to the attached session.
func (c *Controller) handoffFailed(sid string, info *media.Info, t Transfer, err error) {
	c.Logger.Error().Str("Method", "handoffFailed").Err(err).Msg("hand-off load failed")
	c.presenter.ShowMessage(fmt.Sprintf("%s: %v", msgLoadFailed, err))

	if c.mode != ModeRemote || c.session == nil || c.session.ID() != sid {
		return
	}

	c.setQueueVisible(false)
	c.detachSession()
	c.mode = ModeLocal
	c.mediaInfo = info
	c.player.LoadMedia(info, false, t.Position)
}

func (c *Controller) populateMediaInfo(autoPlay bool, playPosition float64) {
	c.presenter.MediaChanged(c.mediaInfo)
	c.player.LoadMedia(c.mediaInfo, autoPlay, playPosition)
}

func (c *Controller) detachSession() {
	if c.session != nil {
		c.session.Client().RemoveListener(c)
	}
	c.session = nil
}

func (c *Controller) setQueueVisible(v bool) {
	c.queueVisible = v
	c.presenter.SetQueueVisible(v)
}

// SessionStarted implements SessionListener.
func (c *Controller) SessionStarted(s Session) {
	c.Logger.Info().Str("Method", "SessionStarted").Str("Device", s.DeviceName()).Msg("session started")
	c.setQueueVisible(true)
	c.SwitchToRemotePlayback()
}

// SessionResumed implements SessionListener.
func (c *Controller) SessionResumed(s Session) {
	c.Logger.Info().Str("Method", "SessionResumed").Str("Device", s.DeviceName()).Msg("session resumed")
	c.setQueueVisible(true)
	c.SwitchToRemotePlayback()
}

// SessionEnded implements SessionListener. Events for a session other than
// the attached one are ignored.
func (c *Controller) SessionEnded(s Session, err error) {
	if c.session != nil && s != nil && c.session.ID() != s.ID() {
		return
	}
	c.Logger.Info().Str("Method", "SessionEnded").AnErr("Reason", err).Msg("session ended")

	msg := msgSessionEnded
	if err != nil {
		msg += "\n" + err.Error()
	}
	c.presenter.ShowMessage(msg)
	c.setQueueVisible(false)
	c.SwitchToLocalPlayback()
}

// SessionStartFailed implements SessionListener.
func (c *Controller) SessionStartFailed(err error) {
	c.Logger.Warn().Str("Method", "SessionStartFailed").Err(err).Msg("session start failed")

	if err != nil {
		c.presenter.ShowMessage(fmt.Sprintf("%s: %v", msgStartFailed, err))
	}
	c.setQueueVisible(false)
}

// SessionResumeFailed implements SessionListener.
func (c *Controller) SessionResumeFailed(_ Session, err error) {
	c.Logger.Warn().Str("Method", "SessionResumeFailed").Err(err).Msg("session resume failed")

	c.presenter.ShowMessage(msgSessionNotResumed)
	c.setQueueVisible(false)
	c.SwitchToLocalPlayback()
}

// RemoteMediaStatusChanged implements RemoteMediaListener.
func (c *Controller) RemoteMediaStatusChanged(sessionID string, st *MediaStatus) {
	if c.session == nil || c.session.ID() != sessionID {
		return
	}
	if st == nil || st.Media == nil {
		return
	}
	if c.mediaInfo.SameContent(st.Media) {
		return
	}

	c.mediaInfo = st.Media
	c.presenter.MediaChanged(st.Media)
}

// SetBarStyle implements PlaybackHost.
func (c *Controller) SetBarStyle(style BarStyle) { c.presenter.SetBarStyle(style) }

// SetBarHidden implements PlaybackHost.
func (c *Controller) SetBarHidden(hidden bool) { c.presenter.SetBarHidden(hidden) }

// ShouldOfferRemotePlayback implements PlaybackHost. With a connected
// receiver, pressing play offers to play or enqueue there instead.
func (c *Controller) ShouldOfferRemotePlayback() bool {
	if c.mediaInfo != nil && c.sessions.HasConnectedSession() {
		c.presenter.PresentPlayChoice()
		return false
	}
	return true
}

// PlaySelectedItemRemotely replaces the receiver queue with the current
// item.
func (c *Controller) PlaySelectedItemRemotely() {
	c.LoadSelectedItem(false)
}

// EnqueueSelectedItemRemotely appends the current item to the receiver
// queue.
func (c *Controller) EnqueueSelectedItemRemotely() {
	c.LoadSelectedItem(true)

	title := ""
	if c.mediaInfo != nil {
		title = c.mediaInfo.Title()
	}
	c.presenter.ShowMessage("Added \"" + title + "\" to queue.")
	c.setQueueVisible(true)
}

// LoadSelectedItem sends the current item to the receiver. It is appended
// to the existing queue when appending is set and the receiver has one,
// otherwise it becomes a new single item queue.
func (c *Controller) LoadSelectedItem(appending bool) {
	s := c.sessions.CurrentSession()
	if s == nil || c.mediaInfo == nil {
		return
	}
	client := s.Client()

	item := QueueItem{
		Media:       c.mediaInfo,
		Autoplay:    true,
		PreloadTime: c.preloadTime,
	}

	st := client.MediaStatus()
	if st != nil && appending {
		client.QueueInsert(item, c.requestDone("QueueInsert"))
		return
	}

	opts := QueueLoadOptions{RepeatMode: RepeatOff}
	if st != nil && st.RepeatMode != "" {
		opts.RepeatMode = st.RepeatMode
	}
	client.QueueLoad([]QueueItem{item}, opts, c.requestDone("QueueLoad"))
}

func (c *Controller) requestDone(method string) func(error) {
	return func(err error) {
		if err != nil {
			c.Logger.Error().Str("Method", method).Err(err).Msg("request failed")
			c.presenter.ShowMessage(fmt.Sprintf("%s: %v", msgRequestFailed, err))
			return
		}
		c.Logger.Debug().Str("Method", method).Msg("request completed")
	}
}
