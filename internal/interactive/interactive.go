// Package interactive is the terminal front end: bubbletea pickers for the
// catalog and the receiver, and a tcell player screen that drives the
// playback controller.
package interactive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/encoding"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/internal/media"
	"go2tv.app/castvideos/internal/playback"
	"go2tv.app/castvideos/utils"
)

const (
	messageTTL      = 4 * time.Second
	refreshInterval = 500 * time.Millisecond
	defaultSeekStep = 10 * time.Second

	helpLine      = "p play/pause  ←/→ seek  c cast  a enqueue  q queue  f fullscreen  o preview  ESC quit"
	queueHelpLine = "↑/↓ select  ENTER play  d remove  K/J move  q/ESC close"
)

// Looper is the playback loop as seen by the screen.
type Looper interface {
	Post(f func()) bool
	Call(f func())
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// Sessions is the part of the session manager the screen drives.
type Sessions interface {
	playback.SessionManager
	StartSession(ctx context.Context, dev devices.Device)
	EndSession(stopMedia bool)
	Connecting() bool
}

// Previewer opens media in an external application.
type Previewer interface {
	Open(info *media.Info) error
}

// ScreenConfig wires a PlayerScreen.
type ScreenConfig struct {
	Screen   tcell.Screen
	Loop     Looper
	Sessions Sessions
	// Device is the receiver "c" casts to. Nil disables casting.
	Device        *devices.Device
	Previewer     Previewer
	SeekStep      time.Duration
	ShowRemaining bool
	Logger        zerolog.Logger
}

// PlayerScreen renders the controller state and maps keys to controller
// actions. Apart from Run, every method runs on the playback loop.
type PlayerScreen struct {
	Logger zerolog.Logger

	cfg     ScreenConfig
	ctrl    *playback.Controller
	limiter *rate.Limiter
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	// initialized is owned by the goroutine calling Init and Run, ready
	// and closed by the loop. Nothing is drawn unless ready.
	initialized bool
	ready       bool
	closed      bool

	title        string
	message      string
	messageUntil time.Time
	barStyle     playback.BarStyle
	barHidden    bool
	queueVisible bool
	editingQueue bool
	choice       bool
	fullscreen   bool
}

var _ playback.Presenter = (*PlayerScreen)(nil)

// NewPlayerScreen returns a screen that still needs a controller, see
// Attach.
func NewPlayerScreen(cfg ScreenConfig) *PlayerScreen {
	if cfg.SeekStep <= 0 {
		cfg.SeekStep = defaultSeekStep
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PlayerScreen{
		Logger:  cfg.Logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(150*time.Millisecond), 3),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// InitTcellNewScreen creates the terminal screen.
func InitTcellNewScreen() (tcell.Screen, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("can't start new interactive screen: %w", err)
	}
	return s, nil
}

// Attach sets the controller driven by the keys.
func (p *PlayerScreen) Attach(c *playback.Controller) { p.ctrl = c }

// Init takes over the terminal. Presenter calls made before Init only
// record state, the first frame is drawn here. Must not be called from the
// loop.
func (p *PlayerScreen) Init() error {
	if p.initialized {
		return nil
	}
	s := p.cfg.Screen

	encoding.Register()
	if err := s.Init(); err != nil {
		return fmt.Errorf("player screen: %w", err)
	}
	s.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	p.initialized = true

	p.cfg.Loop.Call(func() {
		p.ready = true
		p.draw()
	})
	return nil
}

// Run shows the screen until ESC is pressed or ctx is done. It calls Init
// if that did not happen yet.
func (p *PlayerScreen) Run(ctx context.Context) error {
	if err := p.Init(); err != nil {
		return err
	}
	s := p.cfg.Screen

	p.cfg.Loop.Post(p.scheduleRefresh)
	go p.pollEvents()

	select {
	case <-ctx.Done():
	case <-p.ctx.Done():
	}

	p.cfg.Loop.Call(func() { p.closed = true })
	p.cancel()
	s.Fini()
	return nil
}

// Quit ends Run.
func (p *PlayerScreen) Quit() { p.cancel() }

func (p *PlayerScreen) pollEvents() {
	s := p.cfg.Screen
	for {
		switch ev := s.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			p.cfg.Loop.Post(func() {
				if !p.closed {
					s.Sync()
					p.draw()
				}
			})
		case *tcell.EventKey:
			p.cfg.Loop.Post(func() { p.HandleKeyEvent(ev) })
		}
	}
}

func (p *PlayerScreen) scheduleRefresh() {
	p.cfg.Loop.AfterFunc(refreshInterval, func() {
		if p.closed || p.ctx.Err() != nil {
			return
		}
		p.draw()
		p.scheduleRefresh()
	})
}

// HandleKeyEvent maps a key press to a controller action.
func (p *PlayerScreen) HandleKeyEvent(ev *tcell.EventKey) {
	if p.closed || p.ctrl == nil {
		return
	}
	defer p.draw()

	if p.choice {
		p.handleChoice(ev)
		return
	}
	if p.editingQueue {
		p.handleQueueKey(ev)
		return
	}

	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		p.Quit()
		return
	case tcell.KeyLeft:
		p.seekBy(-p.cfg.SeekStep.Seconds())
	case tcell.KeyRight:
		p.seekBy(p.cfg.SeekStep.Seconds())
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'p':
			p.togglePlay()
		case 'c':
			p.toggleCast()
		case 'a':
			p.enqueue()
		case 'q':
			p.editQueue()
		case 'f':
			p.fullscreen = !p.fullscreen
			p.ctrl.Player().SetFullscreen(p.fullscreen)
		case 'o':
			p.preview()
		}
	}

	if p.ctrl.Mode() == playback.ModeLocal {
		p.ctrl.Player().DidTouchControl()
	}
}

func (p *PlayerScreen) handleChoice(ev *tcell.EventKey) {
	switch {
	case ev.Key() == tcell.KeyEscape:
		p.choice = false
	case ev.Key() == tcell.KeyRune && ev.Rune() == '1':
		p.choice = false
		p.ctrl.PlaySelectedItemRemotely()
	case ev.Key() == tcell.KeyRune && ev.Rune() == '2':
		p.choice = false
		p.ctrl.EnqueueSelectedItemRemotely()
	}
}

func (p *PlayerScreen) editQueue() {
	if !p.cfg.Sessions.HasConnectedSession() {
		p.ShowMessage("Not casting.")
		return
	}
	p.editingQueue = true
}

func (p *PlayerScreen) handleQueueKey(ev *tcell.EventKey) {
	q := p.ctrl.Queue()
	switch ev.Key() {
	case tcell.KeyEscape:
		p.editingQueue = false
	case tcell.KeyUp:
		q.SelectNext(-1)
	case tcell.KeyDown:
		q.SelectNext(1)
	case tcell.KeyEnter:
		q.JumpToSelected()
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			p.editingQueue = false
		case 'd':
			q.RemoveSelected()
		case 'K':
			q.MoveSelected(-1)
		case 'J':
			q.MoveSelected(1)
		}
	}
}

func (p *PlayerScreen) remoteClient() playback.RemoteClient {
	if s := p.ctrl.Session(); s != nil {
		return s.Client()
	}
	return nil
}

func (p *PlayerScreen) requestDone(action string) func(error) {
	return func(err error) {
		if err != nil {
			p.ShowMessage(fmt.Sprintf("%s failed: %v", action, err))
		}
	}
}

func (p *PlayerScreen) togglePlay() {
	if p.ctrl.Mode() != playback.ModeRemote {
		p.ctrl.Player().TogglePause()
		return
	}

	client := p.remoteClient()
	if client == nil {
		return
	}
	switch client.LastKnownPlayerState() {
	case playback.RemotePlaying, playback.RemoteBuffering:
		client.Pause(p.requestDone("Pause"))
	case playback.RemoteIdle:
		// nothing loaded on the receiver, send the current item
		p.ctrl.PlaySelectedItemRemotely()
	default:
		client.Play(p.requestDone("Play"))
	}
}

func (p *PlayerScreen) seekBy(delta float64) {
	if !p.limiter.Allow() {
		return
	}

	if p.ctrl.Mode() == playback.ModeRemote {
		client := p.remoteClient()
		if client == nil {
			return
		}
		client.Seek(max(client.LastKnownStreamPosition()+delta, 0), p.requestDone("Seek"))
		return
	}

	player := p.ctrl.Player()
	if player.State() == playback.StateStopped {
		return
	}
	pos := max(player.Position()+delta, 0)
	if d := player.Duration(); d > 0 {
		pos = min(pos, d)
	}
	player.Seek(pos)
}

func (p *PlayerScreen) toggleCast() {
	sessions := p.cfg.Sessions
	switch {
	case sessions.HasConnectedSession():
		p.ShowMessage("Stopping cast…")
		sessions.EndSession(true)
	case sessions.Connecting():
		p.ShowMessage("Still connecting…")
	case p.cfg.Device == nil:
		p.ShowMessage("No receiver selected.")
	default:
		p.ShowMessage("Connecting to " + p.cfg.Device.Name + "…")
		sessions.StartSession(p.ctx, *p.cfg.Device)
	}
}

func (p *PlayerScreen) enqueue() {
	if !p.cfg.Sessions.HasConnectedSession() {
		p.ShowMessage("Not casting.")
		return
	}
	p.ctrl.EnqueueSelectedItemRemotely()
}

func (p *PlayerScreen) preview() {
	info := p.ctrl.Media()
	if info == nil || p.cfg.Previewer == nil {
		return
	}
	if err := p.cfg.Previewer.Open(info); err != nil {
		p.ShowMessage(err.Error())
	}
}

// SetBarStyle implements playback.Presenter.
func (p *PlayerScreen) SetBarStyle(style playback.BarStyle) {
	p.barStyle = style
	p.draw()
}

// SetBarHidden implements playback.Presenter.
func (p *PlayerScreen) SetBarHidden(hidden bool) {
	p.barHidden = hidden
	p.draw()
}

// ShowMessage implements playback.Presenter.
func (p *PlayerScreen) ShowMessage(msg string) {
	p.Logger.Debug().Str("Method", "ShowMessage").Str("Message", msg).Msg("toast")
	p.message = msg
	p.messageUntil = p.now().Add(messageTTL)
	p.draw()
}

// SetQueueVisible implements playback.Presenter.
func (p *PlayerScreen) SetQueueVisible(visible bool) {
	p.queueVisible = visible
	if !visible {
		p.editingQueue = false
	}
	p.draw()
}

// PresentPlayChoice implements playback.Presenter.
func (p *PlayerScreen) PresentPlayChoice() {
	p.choice = true
	p.draw()
}

// MediaChanged implements playback.Presenter.
func (p *PlayerScreen) MediaChanged(info *media.Info) {
	p.title = ""
	if info != nil {
		p.title = info.Title()
		if p.title == "" {
			p.title = info.ContentID()
		}
	}
	p.draw()
}

func (p *PlayerScreen) emitStr(x, y int, style tcell.Style, str string) {
	s := p.cfg.Screen
	for _, c := range str {
		var comb []rune
		w := runewidth.RuneWidth(c)
		if w == 0 {
			comb = []rune{c}
			c = ' '
			w = 1
		}
		s.SetContent(x, y, c, comb, style)
		x += w
	}
}

func (p *PlayerScreen) emitCentered(y int, style tcell.Style, str string) {
	w, _ := p.cfg.Screen.Size()
	str = runewidth.Truncate(str, w, "…")
	p.emitStr(max(w/2-runewidth.StringWidth(str)/2, 0), y, style, str)
}

// statusLine describes where and how the media is playing.
func (p *PlayerScreen) statusLine() string {
	if p.ctrl == nil {
		return ""
	}

	switch p.ctrl.Mode() {
	case playback.ModeRemote:
		name := ""
		if s := p.ctrl.Session(); s != nil {
			name = ": " + s.DeviceName()
		}
		state := playback.RemoteUnknown
		if c := p.remoteClient(); c != nil {
			state = c.LastKnownPlayerState()
		}
		return fmt.Sprintf("[Casting%s] %s", name, state)
	case playback.ModeLocal:
		return fmt.Sprintf("[Local] %s", p.ctrl.Player().State())
	}
	return ""
}

func (p *PlayerScreen) times() (pos, dur float64) {
	if p.ctrl == nil {
		return 0, 0
	}
	if p.ctrl.Mode() == playback.ModeRemote {
		c := p.remoteClient()
		if c == nil {
			return 0, 0
		}
		if st := c.MediaStatus(); st != nil {
			dur = st.Duration
		}
		return c.LastKnownStreamPosition(), dur
	}
	return p.ctrl.Player().Position(), p.ctrl.Player().Duration()
}

// progressBar renders "pos [====----] dur" in width cells.
func (p *PlayerScreen) progressBar(width int) string {
	pos, dur := p.times()

	right := utils.FormatClock(dur)
	if p.cfg.ShowRemaining && dur > 0 {
		right = utils.FormatClock(pos - dur)
	}
	left := utils.FormatClock(pos)

	inner := width - runewidth.StringWidth(left) - runewidth.StringWidth(right) - 4
	if inner < 1 {
		return left + " / " + right
	}

	filled := 0
	if dur > 0 {
		filled = int(float64(inner) * min(pos/dur, 1))
	}
	return left + " [" + strings.Repeat("=", filled) + strings.Repeat("-", inner-filled) + "] " + right
}

func (p *PlayerScreen) draw() {
	if p.closed || !p.ready {
		return
	}
	s := p.cfg.Screen
	w, h := s.Size()

	bold := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite).Bold(true)
	barStyle := tcell.StyleDefault
	if p.barStyle == playback.BarTransparent {
		barStyle = barStyle.Dim(true)
	}

	s.Clear()

	if !p.fullscreen {
		p.emitStr(1, 1, tcell.StyleDefault, "Press ESC to stop and exit.")
		help := helpLine
		if p.editingQueue {
			help = queueHelpLine
		}
		p.emitCentered(h-2, tcell.StyleDefault, help)
	}

	p.emitCentered(h/2-3, tcell.StyleDefault, "Title: "+p.title)
	p.emitCentered(h/2-1, bold, p.statusLine())

	if !p.barHidden {
		p.emitCentered(h/2, barStyle, p.progressBar(min(w-4, 72)))
	}

	switch {
	case p.choice:
		p.emitCentered(h/2+2, bold, "Play on receiver: [1] Play Now  [2] Add to Queue  [ESC] Cancel")
	case p.message != "" && p.now().Before(p.messageUntil):
		for i, line := range strings.Split(p.message, "\n") {
			p.emitCentered(h/2+2+i, bold, line)
		}
	}

	if p.queueVisible || p.editingQueue {
		p.drawQueue(h/2+5, h-3)
	}

	s.Show()
}

func (p *PlayerScreen) queueLine() string {
	c := p.remoteClient()
	if c == nil {
		return "Receiver queue"
	}
	st := c.MediaStatus()
	if st == nil {
		return "Receiver queue: empty"
	}
	n := st.QueueLength
	if len(st.Items) > 0 {
		n = len(st.Items)
	}
	line := fmt.Sprintf("Receiver queue: %d items", n)
	if n == 1 {
		line = "Receiver queue: 1 item"
	}
	if p.ctrl.Queue().Busy() {
		line += " (updating…)"
	}
	return line
}

// drawQueue renders the queue header at top and as many items as fit
// above bottom, keeping the selection in view while editing.
func (p *PlayerScreen) drawQueue(top, bottom int) {
	if p.ctrl == nil {
		return
	}
	p.emitCentered(top, tcell.StyleDefault, p.queueLine())

	q := p.ctrl.Queue()
	items, current := q.Items()
	rows := bottom - top - 1
	if rows <= 0 || len(items) == 0 {
		return
	}

	selected := playback.InvalidItemID
	first := 0
	if p.editingQueue {
		selected = q.Selected()
		for i, e := range items {
			if e.ID == selected {
				first = max(0, i-rows+1)
				break
			}
		}
	}

	w, _ := p.cfg.Screen.Size()
	width := min(w-4, 72)
	x := max(w/2-width/2, 0)
	for i, e := range items[first:min(first+rows, len(items))] {
		marker := "  "
		if e.ID == current {
			marker = "▶ "
		}
		title := e.Title
		if title == "" {
			title = fmt.Sprintf("Item %d", e.ID)
		}

		style := tcell.StyleDefault
		if e.ID == selected {
			style = style.Reverse(true)
		}
		p.emitStr(x, top+1+i, style, runewidth.Truncate(marker+title, width, "…"))
	}
}
