package playback

import (
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/castvideos/internal/media"
)

// ToolbarDelay is how long the controls stay up after an interaction.
const ToolbarDelay = 3 * time.Second

// LocalPlayer drives a MediaElement through load, play, pause, seek and
// stop. It shows a splash state whenever it is Stopped.
type LocalPlayer struct {
	Logger zerolog.Logger

	host       PlaybackHost
	newElement ElementFactory
	sched      Scheduler

	media *media.Info
	state PlayerState
	elem  MediaElement

	// gen changes whenever the element is torn down; seekGen whenever a
	// seek is issued. Completions carrying an old value are dropped.
	gen     uint64
	seekGen uint64

	pendingPlayPosition float64
	pendingPlay         bool
	seeking             bool
	reloadAttempted     bool

	position float64
	duration float64

	fullscreenRequested bool
	controlsHidden      bool
	recentInteraction   bool
	cancelHide          func()
	// hideGen stamps the armed hide timer. A timer that already posted its
	// run before being cancelled carries an old value.
	hideGen uint64
}

// NewLocalPlayer returns a stopped player showing the splash state.
func NewLocalPlayer(host PlaybackHost, newElement ElementFactory, sched Scheduler, logger zerolog.Logger) *LocalPlayer {
	return &LocalPlayer{
		Logger:      logger,
		host:        host,
		newElement:  newElement,
		sched:       sched,
		pendingPlay: true,
	}
}

func (p *LocalPlayer) State() PlayerState { return p.state }
func (p *LocalPlayer) Media() *media.Info { return p.media }
func (p *LocalPlayer) Seeking() bool      { return p.seeking }
func (p *LocalPlayer) PendingPlay() bool  { return p.pendingPlay }

// Position is the last stream position reported by the element.
func (p *LocalPlayer) Position() float64 { return p.position }

// Duration is 0 until the element reported ready.
func (p *LocalPlayer) Duration() float64 { return p.duration }

// IsPlayingLocally is true when media is rendered on this device.
func (p *LocalPlayer) IsPlayingLocally() bool {
	return p.state == StatePlaying || p.state == StatePaused
}

// IsFullscreen reports whether the player currently occupies the screen.
func (p *LocalPlayer) IsFullscreen() bool {
	return p.state != StateStopped && p.fullscreenRequested
}

// ControlsVisible reports whether the toolbar is shown.
func (p *LocalPlayer) ControlsVisible() bool { return !p.controlsHidden }

// LoadMedia resets the player to the splash state for info. Playback starts
// right away when autoPlay is set, at playPosition if it is positive.
// Loading the content that is already active is ignored.
func (p *LocalPlayer) LoadMedia(info *media.Info, autoPlay bool, playPosition float64) {
	p.Logger.Debug().Str("Method", "LoadMedia").Bool("AutoPlay", autoPlay).
		Float64("Position", playPosition).Msg("load media")

	if info != nil && p.media.SameContent(info) && p.state != StateStopped {
		return
	}

	p.media = info
	p.purge()
	p.state = StateStopped
	p.position = 0
	p.duration = 0

	if info == nil {
		p.configureControls()
		return
	}

	p.pendingPlayPosition = playPosition
	p.pendingPlay = autoPlay
	p.reloadAttempted = false

	if autoPlay {
		p.start()
	}
	p.configureControls()
}

// Play starts or resumes playback. While a seek is in flight, or while the
// element is starting, the request is recorded and applied later.
func (p *LocalPlayer) Play() {
	switch {
	case p.seeking:
		p.pendingPlay = true
	case p.state == StatePaused:
		p.elem.Play()
		p.state = StatePlaying
	case p.state == StateStarting:
		p.pendingPlay = true
	case p.state == StateStopped:
		if p.media == nil {
			return
		}
		if p.host != nil && !p.host.ShouldOfferRemotePlayback() {
			return
		}
		p.recentInteraction = true
		p.pendingPlay = true
		p.reloadAttempted = false
		p.start()
	default:
		return
	}
	p.configureControls()
}

// Pause pauses playback, or cancels a pending play request.
func (p *LocalPlayer) Pause() {
	switch {
	case p.seeking:
		p.pendingPlay = false
	case p.state == StatePlaying:
		p.elem.Pause()
		p.state = StatePaused
	case p.state == StateStarting:
		p.pendingPlay = false
	default:
		return
	}
	p.configureControls()
}

// TogglePause is the play/pause button.
func (p *LocalPlayer) TogglePause() {
	p.recentInteraction = true

	switch {
	case p.seeking:
		p.pendingPlay = !p.pendingPlay
	case p.state == StatePlaying:
		p.Pause()
	case p.state == StateStarting:
		p.pendingPlay = !p.pendingPlay
	default:
		p.Play()
	}
}

// Stop tears down the element.
func (p *LocalPlayer) Stop() {
	p.purge()
	p.state = StateStopped
	p.configureControls()
}

// Seek moves to t. A seek while Starting is deferred until the element is
// ready; a seek while already seeking supersedes the previous one.
func (p *LocalPlayer) Seek(t float64) {
	if t < 0 {
		t = 0
	}

	switch {
	case p.seeking:
		p.performSeek(t)
	case p.state == StatePlaying:
		p.pendingPlay = true
		p.performSeek(t)
	case p.state == StatePaused:
		p.pendingPlay = false
		p.performSeek(t)
	case p.state == StateStarting:
		p.pendingPlayPosition = t
	}
}

// ShowSplashScreen resets the player as if the media had finished.
func (p *LocalPlayer) ShowSplashScreen() {
	p.handlePlaybackEnded()
}

// SetFullscreen records whether the host wants the player to fill the
// screen.
func (p *LocalPlayer) SetFullscreen(requested bool) {
	p.fullscreenRequested = requested

	if p.host != nil {
		if p.IsFullscreen() {
			p.host.SetBarStyle(BarTransparent)
		} else {
			p.host.SetBarStyle(BarDefault)
		}
	}
	p.DidTouchControl()
}

// DidTouchControl shows the controls and, while playing, arms the timer
// that hides them again.
func (p *LocalPlayer) DidTouchControl() {
	p.controlsHidden = false
	if p.host != nil {
		p.host.SetBarHidden(false)
	}
	p.recentInteraction = true

	if p.state == StatePlaying || p.state == StateStarting {
		p.scheduleHide()
	}
}

func (p *LocalPlayer) scheduleHide() {
	if p.sched == nil {
		return
	}
	if p.cancelHide != nil {
		p.cancelHide()
	}
	p.hideGen++
	gen := p.hideGen
	p.cancelHide = p.sched.AfterFunc(ToolbarDelay, func() { p.hideToolbar(gen) })
}

func (p *LocalPlayer) hideToolbar(gen uint64) {
	if gen != p.hideGen {
		return
	}
	p.cancelHide = nil

	if p.state != StatePlaying && p.state != StateStarting {
		return
	}

	if p.recentInteraction {
		p.recentInteraction = false
		p.scheduleHide()
		return
	}

	p.controlsHidden = true
	if p.IsFullscreen() && p.host != nil {
		p.host.SetBarHidden(true)
	}
}

func (p *LocalPlayer) configureControls() {
	p.DidTouchControl()
}

func (p *LocalPlayer) start() {
	p.state = StateStarting
	p.gen++
	gen := p.gen

	p.Logger.Debug().Str("Method", "start").Uint64("Generation", gen).Msg("creating media element")

	p.elem = p.newElement(p.media, ElementEvents{
		Ready: func(duration float64, indefinite bool) {
			if gen != p.gen {
				return
			}
			p.handleReady(duration, indefinite)
		},
		Position: func(pos float64) {
			if gen != p.gen {
				return
			}
			p.handlePosition(pos)
		},
		Ended: func() {
			if gen != p.gen {
				return
			}
			p.handlePlaybackEnded()
		},
	})
	p.elem.Load()
}

// dropElement closes the current element and invalidates its callbacks.
func (p *LocalPlayer) dropElement() {
	if p.elem != nil {
		p.elem.Close()
		p.elem = nil
	}
	p.gen++
	p.seeking = false
}

func (p *LocalPlayer) purge() {
	p.dropElement()
	p.pendingPlayPosition = 0
	p.pendingPlay = true
	if p.cancelHide != nil {
		p.cancelHide()
		p.cancelHide = nil
	}
}

func (p *LocalPlayer) handleReady(duration float64, indefinite bool) {
	if p.state != StateStarting {
		return
	}

	if indefinite {
		if p.reloadAttempted {
			p.Logger.Warn().Str("Method", "handleReady").Msg("media duration still indefinite after reload, giving up")
			return
		}

		p.Logger.Info().Str("Method", "handleReady").Msg("media duration indefinite, reloading")
		p.reloadAttempted = true
		p.dropElement()
		p.start()
		return
	}

	p.duration = duration

	if p.pendingPlayPosition > 0 {
		pos := p.pendingPlayPosition
		p.pendingPlayPosition = 0
		p.performSeek(pos)
		return
	}

	p.applyPendingPlay()
	p.configureControls()
}

func (p *LocalPlayer) performSeek(t float64) {
	p.seeking = true
	p.seekGen++
	gen, seekGen := p.gen, p.seekGen

	p.Logger.Debug().Str("Method", "performSeek").Float64("Position", t).Msg("seeking")

	p.elem.Seek(t, func() {
		if gen != p.gen || seekGen != p.seekGen {
			return
		}
		p.position = t
		p.handleSeekFinished()
	})
}

func (p *LocalPlayer) handleSeekFinished() {
	p.applyPendingPlay()
	p.seeking = false
	p.configureControls()
}

func (p *LocalPlayer) applyPendingPlay() {
	if p.pendingPlay {
		p.pendingPlay = false
		p.elem.Play()
		p.state = StatePlaying
		return
	}

	p.elem.Pause()
	p.state = StatePaused
}

func (p *LocalPlayer) handlePosition(pos float64) {
	if p.seeking || !p.IsPlayingLocally() {
		return
	}
	p.position = pos
}

func (p *LocalPlayer) handlePlaybackEnded() {
	p.state = StateStopped
	p.duration = 0
	p.position = 0
	p.purge()

	if p.host != nil {
		p.host.SetBarStyle(BarDefault)
	}
	p.configureControls()
}
