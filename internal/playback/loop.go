package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const loopBacklog = 256

// Loop serializes all state transitions onto one goroutine.
type Loop struct {
	tasks  chan func()
	quit   chan struct{}
	once   sync.Once
	Logger zerolog.Logger
}

// NewLoop returns a loop that is not running yet.
func NewLoop(logger zerolog.Logger) *Loop {
	return &Loop{
		tasks:  make(chan func(), loopBacklog),
		quit:   make(chan struct{}),
		Logger: logger,
	}
}

// Run drains posted closures until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	l.Logger.Debug().Str("Method", "Run").Msg("playback loop started")
	defer l.Logger.Debug().Str("Method", "Run").Msg("playback loop stopped")

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.quit:
			return
		case f := <-l.tasks:
			f()
		}
	}
}

// Post queues f. It returns false if the loop is stopped.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}

	select {
	case l.tasks <- f:
		return true
	case <-l.quit:
		return false
	}
}

// Call runs f on the loop and waits for it. Never call it from the loop
// goroutine.
func (l *Loop) Call(f func()) {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		f()
	}) {
		return
	}

	select {
	case <-done:
	case <-l.quit:
	}
}

// AfterFunc implements Scheduler. Cancelling from the loop also drops a
// run that was already posted but has not started.
func (l *Loop) AfterFunc(d time.Duration, f func()) func() {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				f()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Stop terminates the loop. Pending closures are dropped.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
}

// Done is closed once the loop is stopped.
func (l *Loop) Done() <-chan struct{} { return l.quit }
