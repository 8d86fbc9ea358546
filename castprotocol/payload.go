package castprotocol

import (
	"fmt"
	"sync/atomic"

	"github.com/vishen/go-chromecast/cast"
)

const (
	namespaceMedia    = "urn:x-cast:com.google.cast.media"
	namespaceReceiver = "urn:x-cast:com.google.cast.receiver"
	defaultSender     = "sender-0"
	defaultReceiver   = "receiver-0"

	// DefaultMediaReceiverID is the app id of the Default Media Receiver.
	DefaultMediaReceiverID = "CC1AD845"
)

// Request ID counter for Chromecast messages
var requestIDCounter int32

func nextRequestID() int {
	return int(atomic.AddInt32(&requestIDCounter, 1))
}

// messageSender is the part of cast.Conn the payload helpers need.
type messageSender interface {
	Send(requestID int, payload cast.Payload, sourceID, destinationID, namespace string) error
}

// QueueItem is one entry of a QUEUE_LOAD or QUEUE_INSERT request.
type QueueItem struct {
	Media       MediaItemWithTracks `json:"media"`
	Autoplay    bool                `json:"autoplay"`
	StartTime   float64             `json:"startTime"`
	PreloadTime float64             `json:"preloadTime,omitempty"`
}

// QueueLoadPayload replaces the receiver queue.
type QueueLoadPayload struct {
	Type        string      `json:"type"`
	RequestId   int         `json:"requestId"`
	Items       []QueueItem `json:"items"`
	StartIndex  int         `json:"startIndex"`
	CurrentTime float64     `json:"currentTime,omitempty"`
	RepeatMode  string      `json:"repeatMode"`
}

func (p *QueueLoadPayload) SetRequestId(id int) { p.RequestId = id }

// QueueInsertPayload appends items to the queue of a running media
// session.
type QueueInsertPayload struct {
	Type           string      `json:"type"`
	RequestId      int         `json:"requestId"`
	MediaSessionId int         `json:"mediaSessionId"`
	Items          []QueueItem `json:"items"`
}

func (p *QueueInsertPayload) SetRequestId(id int) { p.RequestId = id }

// QueueUpdatePayload moves playback to another queue item, either by id or
// by a relative jump.
type QueueUpdatePayload struct {
	Type           string `json:"type"`
	RequestId      int    `json:"requestId"`
	MediaSessionId int    `json:"mediaSessionId"`
	CurrentItemId  int    `json:"currentItemId,omitempty"`
	Jump           int    `json:"jump,omitempty"`
}

func (p *QueueUpdatePayload) SetRequestId(id int) { p.RequestId = id }

// QueueRemovePayload drops items from the queue.
type QueueRemovePayload struct {
	Type           string `json:"type"`
	RequestId      int    `json:"requestId"`
	MediaSessionId int    `json:"mediaSessionId"`
	ItemIds        []int  `json:"itemIds"`
}

func (p *QueueRemovePayload) SetRequestId(id int) { p.RequestId = id }

// QueueReorderPayload moves items in front of InsertBefore, or to the end
// of the queue when it is zero.
type QueueReorderPayload struct {
	Type           string `json:"type"`
	RequestId      int    `json:"requestId"`
	MediaSessionId int    `json:"mediaSessionId"`
	ItemIds        []int  `json:"itemIds"`
	InsertBefore   int    `json:"insertBefore,omitempty"`
}

func (p *QueueReorderPayload) SetRequestId(id int) { p.RequestId = id }

type launchPayload struct {
	Type      string `json:"type"`
	RequestId int    `json:"requestId"`
	AppId     string `json:"appId"`
}

func (p *launchPayload) SetRequestId(id int) { p.RequestId = id }

var (
	_ cast.Payload = (*QueueLoadPayload)(nil)
	_ cast.Payload = (*QueueInsertPayload)(nil)
	_ cast.Payload = (*QueueUpdatePayload)(nil)
	_ cast.Payload = (*QueueRemovePayload)(nil)
	_ cast.Payload = (*QueueReorderPayload)(nil)
	_ cast.Payload = (*launchPayload)(nil)
)

// NewQueueLoad builds a QUEUE_LOAD request. An empty repeat mode means
// REPEAT_OFF.
func NewQueueLoad(items []QueueItem, startIndex int, currentTime float64, repeatMode string) *QueueLoadPayload {
	if repeatMode == "" {
		repeatMode = "REPEAT_OFF"
	}
	if startIndex < 0 || startIndex >= len(items) {
		startIndex = 0
	}

	return &QueueLoadPayload{
		Type:        "QUEUE_LOAD",
		Items:       items,
		StartIndex:  startIndex,
		CurrentTime: currentTime,
		RepeatMode:  repeatMode,
	}
}

// NewQueueInsert builds a QUEUE_INSERT request for the given media session.
// Without an insertBefore id the items go to the end of the queue.
func NewQueueInsert(mediaSessionID int, items []QueueItem) *QueueInsertPayload {
	return &QueueInsertPayload{
		Type:           "QUEUE_INSERT",
		MediaSessionId: mediaSessionID,
		Items:          items,
	}
}

// NewQueueJump builds a QUEUE_UPDATE request that makes itemID the current
// item.
func NewQueueJump(mediaSessionID, itemID int) *QueueUpdatePayload {
	return &QueueUpdatePayload{
		Type:           "QUEUE_UPDATE",
		MediaSessionId: mediaSessionID,
		CurrentItemId:  itemID,
	}
}

// NewQueueRemove builds a QUEUE_REMOVE request.
func NewQueueRemove(mediaSessionID int, itemIDs ...int) *QueueRemovePayload {
	return &QueueRemovePayload{
		Type:           "QUEUE_REMOVE",
		MediaSessionId: mediaSessionID,
		ItemIds:        itemIDs,
	}
}

// NewQueueReorder builds a QUEUE_REORDER request moving itemID in front of
// beforeID. A zero beforeID moves it to the end.
func NewQueueReorder(mediaSessionID, itemID, beforeID int) *QueueReorderPayload {
	return &QueueReorderPayload{
		Type:           "QUEUE_REORDER",
		MediaSessionId: mediaSessionID,
		ItemIds:        []int{itemID},
		InsertBefore:   beforeID,
	}
}

// LaunchDefaultReceiver asks the device to start the Default Media Receiver.
func LaunchDefaultReceiver(conn messageSender) error {
	payload := &launchPayload{Type: "LAUNCH", AppId: DefaultMediaReceiverID}
	id := nextRequestID()
	payload.SetRequestId(id)

	if err := conn.Send(id, payload, defaultSender, defaultReceiver, namespaceReceiver); err != nil {
		return fmt.Errorf("launch default receiver: %w", err)
	}
	return nil
}

// sendMedia stamps a request id on payload and sends it to the media
// namespace of the receiver app identified by transportId.
func sendMedia(conn messageSender, transportId string, payload cast.Payload) error {
	id := nextRequestID()
	payload.SetRequestId(id)

	if err := conn.Send(id, payload, defaultSender, transportId, namespaceMedia); err != nil {
		return fmt.Errorf("send media command: %w", err)
	}
	return nil
}
