// Package castprotocol drives Chromecast receivers. Connection handling and
// the standard media commands come from go-chromecast, queue requests are
// sent as custom payloads on the media namespace.
package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
	pb "github.com/vishen/go-chromecast/cast/proto"
)

var (
	ErrNotConnected   = errors.New("chromecast not connected")
	ErrNoTransport    = errors.New("failed to get transport ID after retries")
	ErrNoMediaSession = errors.New("receiver has no media session")
)

// wakeRetries bounds how often a request is retried while a sleeping TV
// wakes up.
const wakeRetries = 5

// CastClient wraps go-chromecast Application for simplified API
type CastClient struct {
	app         *application.Application
	conn        cast.Conn // kept for custom payloads
	mu          sync.RWMutex
	host        string
	port        int
	connected   bool
	wakeDelay   time.Duration
	queue       queueCache
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastClient) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// NewCastClient prepares a client for the device at deviceAddr
// ("http://host:port", port defaults to 8009). It does not connect.
func NewCastClient(deviceAddr string) (*CastClient, error) {
	u, err := url.Parse(deviceAddr)
	if err != nil {
		return nil, fmt.Errorf("parse device addr: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parse device addr %q: missing host", deviceAddr)
	}

	port := 8009
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse device port: %w", err)
		}
	}

	conn := cast.NewConnection()
	app := application.NewApplication(
		application.WithConnection(conn),
		application.WithConnectionRetries(5), // slow TVs need time to wake
	)

	c := &CastClient{
		app:       app,
		conn:      conn,
		host:      u.Hostname(),
		port:      port,
		wakeDelay: 4 * time.Second,
	}
	app.AddMessageFunc(c.observe)

	return c, nil
}

// observe receives every message the application reads off the
// connection.
func (c *CastClient) observe(msg *pb.CastMessage) {
	if msg.GetNamespace() != namespaceMedia {
		return
	}
	c.queue.observe([]byte(msg.GetPayloadUtf8()))
}

// Connect establishes connection to the Chromecast device.
func (c *CastClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil {
		return fmt.Errorf("chromecast connect: app is nil")
	}

	c.Log().Debug().Str("Method", "Connect").Str("Host", c.host).Int("Port", c.port).Msg("connecting")
	if err := c.app.Start(c.host, c.port); err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("chromecast connect: %w", err)
	}
	c.connected = true
	c.Log().Debug().Str("Method", "Connect").Msg("connected successfully")
	return nil
}

// isTimeoutError checks if an error is a timeout/deadline exceeded error.
// This typically happens when the TV needs to wake from sleep.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// withWakeRetry runs fn, retrying timeouts while the device wakes up.
func (c *CastClient) withWakeRetry(method string, fn func() error) error {
	var lastErr error
	for attempt := range wakeRetries {
		if !c.IsConnected() {
			return ErrNotConnected
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTimeoutError(lastErr) {
			break
		}

		c.Log().Debug().Str("Method", method).Int("Attempt", attempt).Err(lastErr).Msg("timeout, TV may be waking up, retrying...")
		time.Sleep(c.wakeDelay)
	}

	c.Log().Error().Str("Method", method).Err(lastErr).Msg("failed")
	return lastErr
}

// transportID waits for the running receiver app to report its transport
// ID, backing off between status refreshes.
func (c *CastClient) transportID() (string, error) {
	for i := range 8 {
		if !c.IsConnected() {
			return "", ErrNotConnected
		}

		if err := c.app.Update(); err != nil {
			c.Log().Debug().Str("Method", "transportID").Int("Attempt", i+1).Err(err).Msg("app.Update retry")
			time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
			continue
		}
		if app := c.app.App(); app != nil && app.TransportId != "" {
			return app.TransportId, nil
		}
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}

	return "", ErrNoTransport
}

// QueueLoad launches the Default Media Receiver and replaces its queue with
// items. Playback starts at items[startIndex], currentTime seconds in.
func (c *CastClient) QueueLoad(items []QueueItem, startIndex int, currentTime float64, repeatMode string) error {
	c.Log().Debug().Str("Method", "QueueLoad").Int("Items", len(items)).Int("StartIndex", startIndex).
		Float64("CurrentTime", currentTime).Str("RepeatMode", repeatMode).Msg("loading queue")

	if !c.IsConnected() {
		c.Log().Debug().Str("Method", "QueueLoad").Msg("connection closed, reconnecting")
		if err := c.Connect(); err != nil {
			return fmt.Errorf("reconnect before queue load: %w", err)
		}
	}

	payload := NewQueueLoad(items, startIndex, currentTime, repeatMode)

	return c.withWakeRetry("QueueLoad", func() error {
		if err := LaunchDefaultReceiver(c.conn); err != nil {
			return err
		}
		transportId, err := c.transportID()
		if err != nil {
			return err
		}
		return sendMedia(c.conn, transportId, payload)
	})
}

// QueueInsert appends items to the queue of the running media session.
func (c *CastClient) QueueInsert(items []QueueItem) error {
	c.Log().Debug().Str("Method", "QueueInsert").Int("Items", len(items)).Msg("inserting into queue")

	return c.sendQueueCommand("QueueInsert", func(mediaSessionID int) cast.Payload {
		return NewQueueInsert(mediaSessionID, items)
	})
}

// QueueJumpToItem makes itemID the current item.
func (c *CastClient) QueueJumpToItem(itemID int) error {
	c.Log().Debug().Str("Method", "QueueJumpToItem").Int("ItemID", itemID).Msg("jumping to queue item")

	return c.sendQueueCommand("QueueJumpToItem", func(mediaSessionID int) cast.Payload {
		return NewQueueJump(mediaSessionID, itemID)
	})
}

// QueueRemoveItem drops itemID from the queue.
func (c *CastClient) QueueRemoveItem(itemID int) error {
	c.Log().Debug().Str("Method", "QueueRemoveItem").Int("ItemID", itemID).Msg("removing queue item")

	return c.sendQueueCommand("QueueRemoveItem", func(mediaSessionID int) cast.Payload {
		return NewQueueRemove(mediaSessionID, itemID)
	})
}

// QueueReorder moves itemID in front of beforeID, or to the end of the
// queue when beforeID is zero.
func (c *CastClient) QueueReorder(itemID, beforeID int) error {
	c.Log().Debug().Str("Method", "QueueReorder").Int("ItemID", itemID).Int("Before", beforeID).Msg("reordering queue")

	return c.sendQueueCommand("QueueReorder", func(mediaSessionID int) cast.Payload {
		return NewQueueReorder(mediaSessionID, itemID, beforeID)
	})
}

// sendQueueCommand sends the payload built for the running media session.
func (c *CastClient) sendQueueCommand(method string, build func(mediaSessionID int) cast.Payload) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return c.withWakeRetry(method, func() error {
		if err := c.app.Update(); err != nil {
			return err
		}

		app, m, _ := c.app.Status()
		if app == nil || app.TransportId == "" {
			return ErrNoTransport
		}
		if m == nil || m.MediaSessionId == 0 {
			return ErrNoMediaSession
		}

		return sendMedia(c.conn, app.TransportId, build(m.MediaSessionId))
	})
}

// Play resumes playback.
func (c *CastClient) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Play").Msg("resuming playback")
	err := c.app.Unpause()
	if err != nil {
		c.Log().Error().Str("Method", "Play").Err(err).Msg("failed")
	}
	return err
}

// Pause pauses playback.
func (c *CastClient) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Pause").Msg("pausing playback")
	err := c.app.Pause()
	if err != nil {
		c.Log().Error().Str("Method", "Pause").Err(err).Msg("failed")
	}
	return err
}

// Stop stops playback and closes the media session.
func (c *CastClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Stop").Msg("stopping playback")
	err := c.app.Stop()
	if err != nil {
		c.Log().Error().Str("Method", "Stop").Err(err).Msg("failed")
	}
	return err
}

// Seek seeks to position in seconds from start. The receiver works in
// whole seconds.
func (c *CastClient) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Seek").Float64("Seconds", seconds).Msg("seeking")
	err := c.app.SeekFromStart(int(seconds))
	if err != nil {
		c.Log().Error().Str("Method", "Seek").Err(err).Msg("failed")
	}
	return err
}

// GetStatus returns current playback status.
// No mutex needed, the underlying library has its own sync.
func (c *CastClient) GetStatus() (*CastStatus, error) {
	if err := c.app.Update(); err != nil {
		c.Log().Error().Str("Method", "GetStatus").Err(err).Msg("app.Update failed")
		return nil, err
	}

	_, m, vol := c.app.Status()
	status := &CastStatus{}
	if vol != nil {
		status.Volume = float32(vol.Level)
		status.Muted = vol.Muted
	}
	if m == nil {
		status.PlayerState = "IDLE"
		return status, nil
	}

	status.PlayerState = m.PlayerState
	status.CurrentTime = m.CurrentTime
	status.MediaSessionID = m.MediaSessionId
	if m.Media.Duration > 0 {
		status.Duration = m.Media.Duration
	}
	status.ContentID = m.Media.ContentId
	status.ContentType = m.Media.ContentType
	status.MediaTitle = m.Media.Metadata.Title

	status.Items, status.CurrentItemID = c.queue.snapshot()
	if m.CurrentItemId != 0 {
		status.CurrentItemID = m.CurrentItemId
	}

	return status, nil
}

// Close disconnects from the Chromecast device.
func (c *CastClient) Close(stopMedia bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", "Close").Bool("StopMedia", stopMedia).Msg("closing connection")
	c.connected = false
	err := c.app.Close(stopMedia)
	if err != nil {
		c.Log().Error().Str("Method", "Close").Err(err).Msg("failed")
	}
	return err
}

// IsConnected returns whether client is connected.
func (c *CastClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
