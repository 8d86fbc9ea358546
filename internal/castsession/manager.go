// Package castsession connects the playback controller to receivers. A
// Manager owns at most one session at a time. Device I/O runs on worker
// goroutines and every outcome is posted back onto the playback loop.
package castsession

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/internal/playback"
)

const (
	defaultPollInterval = time.Second
	defaultMaxFailures  = 3
	requestTimeout      = 30 * time.Second
)

// ErrUnsupportedDevice is returned for devices of an unknown type.
var ErrUnsupportedDevice = errors.New("unsupported device type")

// Poster re-enters the playback loop. playback.Loop implements it.
type Poster interface {
	Post(f func()) bool
}

// Config wires a Manager.
type Config struct {
	Loop Poster
	// PollInterval is the receiver status period.
	PollInterval time.Duration
	// MaxFailures consecutive status errors end the session.
	MaxFailures int
	// OnDevice is called on the loop with the address of every device a
	// session was established with, so it can be resumed later.
	OnDevice func(addr string)
	Logger   zerolog.Logger
}

// dialer connects to a device. It runs on a worker goroutine.
type dialer func(ctx context.Context, dev devices.Device, logger zerolog.Logger) (backend, error)

// Manager implements playback.SessionManager. Apart from the Start, Resume
// and End requests, its methods must be called on the loop.
type Manager struct {
	cfg       Config
	dial      dialer
	current   *Session
	pending   *Session
	listeners []playback.SessionListener
	Logger    zerolog.Logger
}

var _ playback.SessionManager = (*Manager)(nil)

// NewManager returns a manager without a session.
func NewManager(cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}

	return &Manager{
		cfg:    cfg,
		dial:   dialDevice,
		Logger: cfg.Logger,
	}
}

func dialDevice(ctx context.Context, dev devices.Device, logger zerolog.Logger) (backend, error) {
	switch dev.Type {
	case devices.DeviceTypeChromecast:
		return dialChromecast(ctx, dev, logger)
	case devices.DeviceTypeDLNA:
		return dialDLNA(ctx, dev, logger)
	}
	return nil, errors.Wrap(ErrUnsupportedDevice, dev.Type)
}

// CurrentSession implements playback.SessionManager.
func (m *Manager) CurrentSession() playback.Session {
	if m.current == nil {
		return nil
	}
	return m.current
}

// HasConnectedSession implements playback.SessionManager.
func (m *Manager) HasConnectedSession() bool {
	return m.current != nil && m.current.Connected()
}

// Connecting reports whether a session is being established.
func (m *Manager) Connecting() bool { return m.pending != nil }

// AddListener implements playback.SessionManager.
func (m *Manager) AddListener(l playback.SessionListener) {
	if !slices.Contains(m.listeners, l) {
		m.listeners = append(m.listeners, l)
	}
}

// RemoveListener implements playback.SessionManager.
func (m *Manager) RemoveListener(l playback.SessionListener) {
	m.listeners = slices.DeleteFunc(m.listeners, func(x playback.SessionListener) bool { return x == l })
}

func (m *Manager) notify(f func(l playback.SessionListener)) {
	for _, l := range slices.Clone(m.listeners) {
		f(l)
	}
}

// StartSession connects to dev. The previous session, if any, is ended
// first. Must be called on the loop.
func (m *Manager) StartSession(ctx context.Context, dev devices.Device) {
	m.connect(ctx, dev, false)
}

// ResumeSession reconnects to a device used before, reporting resume
// events instead of start events. Must be called on the loop.
func (m *Manager) ResumeSession(ctx context.Context, dev devices.Device) {
	m.connect(ctx, dev, true)
}

func (m *Manager) connect(ctx context.Context, dev devices.Device, resume bool) {
	if m.current != nil {
		m.EndSession(false)
	}

	s := newSession(uuid.NewString(), dev)
	m.pending = s
	m.Logger.Info().Str("Method", "connect").Str("Device", dev.Name).Str("Session", s.id).Bool("Resume", resume).Msg("connecting")

	go func() {
		dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		b, err := m.dial(dialCtx, dev, m.Logger)
		cancel()

		posted := m.cfg.Loop.Post(func() { m.connected(s, b, err, resume) })
		if !posted && b != nil {
			_ = b.close(false)
		}
	}()
}

func (m *Manager) connected(s *Session, b backend, err error, resume bool) {
	if m.pending != s {
		// superseded by a newer request
		if b != nil {
			go b.close(false)
		}
		return
	}
	m.pending = nil

	if err != nil {
		m.Logger.Warn().Str("Method", "connected").Str("Device", s.device.Name).Err(err).Msg("connection failed")
		if resume {
			m.notify(func(l playback.SessionListener) { l.SessionResumeFailed(s, err) })
			return
		}
		m.notify(func(l playback.SessionListener) { l.SessionStartFailed(err) })
		return
	}

	s.attach(m.cfg.Loop, b, m.Logger)
	m.current = s
	go m.poll(s)

	if m.cfg.OnDevice != nil {
		m.cfg.OnDevice(s.device.Addr)
	}

	if resume {
		m.notify(func(l playback.SessionListener) { l.SessionResumed(s) })
		return
	}
	m.notify(func(l playback.SessionListener) { l.SessionStarted(s) })
}

// EndSession disconnects the current session. Must be called on the loop.
func (m *Manager) EndSession(stopMedia bool) {
	m.pending = nil
	if m.current == nil {
		return
	}
	m.end(m.current, nil, stopMedia)
}

func (m *Manager) end(s *Session, reason error, stopMedia bool) {
	if m.current != s {
		return
	}
	m.current = nil
	s.detach()

	m.Logger.Info().Str("Method", "end").Str("Session", s.id).AnErr("Reason", reason).Msg("session ended")
	go func() {
		if err := s.client.backend.close(stopMedia); err != nil {
			m.Logger.Debug().Str("Method", "end").Err(err).Msg("close failed")
		}
	}()

	m.notify(func(l playback.SessionListener) { l.SessionEnded(s, reason) })
}

// poll refreshes the receiver status until the session ends. MaxFailures
// errors in a row end the session.
func (m *Manager) poll(s *Session) {
	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}

		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		st, err := s.client.backend.status(ctx)
		cancel()

		if s.ctx.Err() != nil {
			return
		}

		if err != nil {
			failures++
			m.Logger.Debug().Str("Method", "poll").Int("Failures", failures).Err(err).Msg("status failed")
			if failures >= m.cfg.MaxFailures {
				reason := errors.Wrap(err, "receiver stopped responding")
				m.cfg.Loop.Post(func() { m.end(s, reason, false) })
				return
			}
			continue
		}

		failures = 0
		m.cfg.Loop.Post(func() { s.client.applyStatus(st) })
	}
}
