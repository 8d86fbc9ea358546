package playback

import (
	"time"

	"go2tv.app/castvideos/internal/media"
)

// ElementEvents are the callbacks a MediaElement reports through. They must
// be invoked on the playback loop.
type ElementEvents struct {
	// Ready fires once the element knows whether the media has a usable
	// duration. indefinite means the load did not produce one.
	Ready func(duration float64, indefinite bool)
	// Position fires periodically with the current stream position.
	Position func(pos float64)
	// Ended fires when playback reached the end of the media.
	Ended func()
}

// MediaElement is the on-device renderer driven by LocalPlayer. A new
// element is created for every load and closed on teardown.
type MediaElement interface {
	Load()
	Play()
	Pause()
	// Seek calls done on the loop once the seek settled.
	Seek(pos float64, done func())
	Close()
}

// ElementFactory creates an element for info reporting through ev.
type ElementFactory func(info *media.Info, ev ElementEvents) MediaElement

// Scheduler runs f on the playback loop after d. The returned func cancels
// the timer if it has not fired yet.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// PlaybackHost is the UI contract of the local player.
type PlaybackHost interface {
	SetBarStyle(style BarStyle)
	SetBarHidden(hidden bool)
	// ShouldOfferRemotePlayback is consulted when play is pressed while the
	// player is stopped. Returning false cancels local playback.
	ShouldOfferRemotePlayback() bool
}

// Presenter is the UI port of the Controller.
type Presenter interface {
	SetBarStyle(style BarStyle)
	SetBarHidden(hidden bool)
	ShowMessage(msg string)
	SetQueueVisible(visible bool)
	// PresentPlayChoice asks the user between "Play Now" and "Add to Queue"
	// on the connected receiver.
	PresentPlayChoice()
	MediaChanged(info *media.Info)
}

// QueueItem is one entry of a remote queue request.
type QueueItem struct {
	Media         *media.Info
	Autoplay      bool
	StartPosition float64
	PreloadTime   float64
}

// QueueLoadOptions parametrize a queue load.
type QueueLoadOptions struct {
	StartIndex   int
	PlayPosition float64
	RepeatMode   RepeatMode
}

// InvalidItemID is the zero queue item id. Receivers never assign it.
const InvalidItemID = 0

// QueueEntry is one item of the receiver queue.
type QueueEntry struct {
	ID    int
	Title string
	// Media is nil for items another sender queued.
	Media *media.Info
}

// MediaStatus is the receiver side view of the current media.
type MediaStatus struct {
	Media       *media.Info
	PlayerState RemotePlayerState
	Position    float64
	Duration    float64
	RepeatMode  RepeatMode
	QueueLength int

	// Items lists the receiver queue in play order when the receiver
	// reports it.
	Items         []QueueEntry
	CurrentItemID int
}

// ItemIndex returns the position of id in Items, or -1.
func (s *MediaStatus) ItemIndex(id int) int {
	if s == nil || id == InvalidItemID {
		return -1
	}
	for i, e := range s.Items {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// RemoteMediaListener receives media status updates. sessionID identifies
// the session the update belongs to.
type RemoteMediaListener interface {
	RemoteMediaStatusChanged(sessionID string, status *MediaStatus)
}

// RemoteClient controls media on a receiver. Completions and listener
// callbacks are delivered on the playback loop.
type RemoteClient interface {
	QueueLoad(items []QueueItem, opts QueueLoadOptions, done func(error))
	QueueInsert(item QueueItem, done func(error))
	QueueJumpToItem(itemID int, done func(error))
	QueueRemoveItem(itemID int, done func(error))
	// QueueReorder moves itemID in front of beforeID. InvalidItemID moves
	// it to the end of the queue.
	QueueReorder(itemID, beforeID int, done func(error))
	Play(done func(error))
	Pause(done func(error))
	Seek(pos float64, done func(error))
	Stop(done func(error))

	// MediaStatus is nil until the receiver reported one.
	MediaStatus() *MediaStatus
	LastKnownStreamPosition() float64
	LastKnownPlayerState() RemotePlayerState

	AddListener(l RemoteMediaListener)
	RemoveListener(l RemoteMediaListener)
}

// Session is a connection to a receiver.
type Session interface {
	ID() string
	DeviceName() string
	Connected() bool
	Client() RemoteClient
}

// SessionListener receives session lifecycle events on the playback loop.
type SessionListener interface {
	SessionStarted(s Session)
	SessionResumed(s Session)
	SessionEnded(s Session, err error)
	SessionStartFailed(err error)
	SessionResumeFailed(s Session, err error)
}

// SessionManager tracks the current receiver session.
type SessionManager interface {
	CurrentSession() Session
	HasConnectedSession() bool
	AddListener(l SessionListener)
	RemoveListener(l SessionListener)
}
