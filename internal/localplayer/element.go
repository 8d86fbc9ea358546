// Package localplayer is the on-device media element used by the terminal
// player. It has no decoder: position is a pausable clock over the media
// duration, which comes from the catalog or from ffprobe.
package localplayer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/castvideos/internal/media"
	"go2tv.app/castvideos/internal/playback"
	"go2tv.app/castvideos/utils"
)

const (
	defaultTick       = 250 * time.Millisecond
	defaultSeekSettle = 150 * time.Millisecond
	probeTimeout      = 15 * time.Second
)

// Poster re-enters the playback loop. playback.Loop implements it.
type Poster interface {
	Post(f func()) bool
}

// Prober returns the duration in seconds of a file or URL.
type Prober func(ctx context.Context, target string) (float64, error)

// Config wires a Factory.
type Config struct {
	Loop       Poster
	FFprobe    string
	Tick       time.Duration
	SeekSettle time.Duration
	// Probe overrides the ffprobe based prober.
	Probe  Prober
	Logger zerolog.Logger
}

// Factory creates clock elements.
type Factory struct {
	cfg Config
}

// NewFactory fills in defaults for cfg.
func NewFactory(cfg Config) *Factory {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.SeekSettle <= 0 {
		cfg.SeekSettle = defaultSeekSettle
	}
	if cfg.Probe == nil {
		ffprobe := cfg.FFprobe
		cfg.Probe = func(ctx context.Context, target string) (float64, error) {
			return utils.DurationForMediaSeconds(ctx, ffprobe, target)
		}
	}
	return &Factory{cfg: cfg}
}

// New implements playback.ElementFactory.
func (f *Factory) New(info *media.Info, ev playback.ElementEvents) playback.MediaElement {
	ctx, cancel := context.WithCancel(context.Background())
	return &Element{
		cfg:    f.cfg,
		info:   info,
		ev:     ev,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Element is a playback.MediaElement driven by a wall clock.
type Element struct {
	cfg    Config
	info   *media.Info
	ev     playback.ElementEvents
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	duration float64
	playing  bool
	base     float64   // position when the clock was last (re)started
	since    time.Time // wall time of base while playing
	ended    bool
	ticking  bool
}

// post forwards f to the loop unless the element was closed.
func (e *Element) post(f func()) {
	if e.ctx.Err() != nil {
		return
	}
	e.cfg.Loop.Post(func() {
		if e.ctx.Err() != nil {
			return
		}
		f()
	})
}

func (e *Element) target() string {
	if p := e.info.LocalPath(); p != "" {
		return p
	}
	return e.info.ContentID()
}

// Load resolves the duration and reports Ready. Live streams and media that
// cannot be probed are reported as indefinite.
func (e *Element) Load() {
	go func() {
		d := e.info.Duration()
		if d <= 0 && e.info.StreamType() != media.StreamLive {
			ctx, cancel := context.WithTimeout(e.ctx, probeTimeout)
			var err error
			d, err = e.cfg.Probe(ctx, e.target())
			cancel()
			if err != nil {
				e.cfg.Logger.Warn().Str("Method", "Load").Str("Target", e.target()).Err(err).Msg("duration probe failed")
				d = 0
			}
		}

		e.mu.Lock()
		e.duration = d
		e.mu.Unlock()

		e.post(func() { e.ev.Ready(d, d <= 0) })
	}()
}

func (e *Element) positionLocked(now time.Time) float64 {
	pos := e.base
	if e.playing {
		pos += now.Sub(e.since).Seconds()
	}
	if e.duration > 0 && pos > e.duration {
		pos = e.duration
	}
	return pos
}

// Position returns the current clock position.
func (e *Element) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked(time.Now())
}

func (e *Element) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playing || e.ended {
		return
	}
	e.playing = true
	e.since = time.Now()

	if !e.ticking {
		e.ticking = true
		go e.tick()
	}
}

func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return
	}
	e.base = e.positionLocked(time.Now())
	e.playing = false
}

// Seek moves the clock and reports completion after the settle delay.
func (e *Element) Seek(pos float64, done func()) {
	e.mu.Lock()
	if pos < 0 {
		pos = 0
	}
	if e.duration > 0 && pos > e.duration {
		pos = e.duration
	}
	e.base = pos
	e.since = time.Now()
	e.ended = false
	e.mu.Unlock()

	t := time.NewTimer(e.cfg.SeekSettle)
	go func() {
		defer t.Stop()
		select {
		case <-e.ctx.Done():
		case <-t.C:
			e.post(done)
		}
	}()
}

func (e *Element) Close() {
	e.cancel()
}

// tick reports the position while playing and detects the end of media.
func (e *Element) tick() {
	t := time.NewTicker(e.cfg.Tick)
	defer t.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-t.C:
			e.mu.Lock()
			if !e.playing {
				e.mu.Unlock()
				continue
			}
			pos := e.positionLocked(now)
			finished := e.duration > 0 && pos >= e.duration
			if finished {
				e.base = e.duration
				e.playing = false
				e.ended = true
			}
			e.mu.Unlock()

			e.post(func() { e.ev.Position(pos) })
			if finished {
				e.post(e.ev.Ended)
			}
		}
	}
}
