package castprotocol

import (
	"encoding/json"
	"slices"
	"sync"
)

// CastStatus represents current Chromecast playback state.
type CastStatus struct {
	PlayerState    string  // "PLAYING", "PAUSED", "IDLE", "BUFFERING"
	CurrentTime    float32 // Current position in seconds
	Duration       float32 // Total duration in seconds
	Volume         float32 // Volume level (0.0 to 1.0)
	Muted          bool
	MediaTitle     string
	ContentID      string
	ContentType    string
	MediaSessionID int

	// Queue as last broadcast by the receiver, in play order.
	Items         []QueueEntry
	CurrentItemID int
}

// HasMedia reports whether the receiver has a media session.
func (s *CastStatus) HasMedia() bool {
	return s != nil && s.MediaSessionID != 0
}

// QueueEntry is one item of the receiver queue.
type QueueEntry struct {
	ItemID    int
	ContentID string
	Title     string
}

type mediaStatusMessage struct {
	Type   string `json:"type"`
	Status []struct {
		MediaSessionId int `json:"mediaSessionId"`
		CurrentItemId  int `json:"currentItemId"`
		Items          []struct {
			ItemId int `json:"itemId"`
			Media  *struct {
				ContentId string `json:"contentId"`
				Metadata  struct {
					Title string `json:"title"`
				} `json:"metadata"`
			} `json:"media"`
		} `json:"items"`
	} `json:"status"`
}

// queueCache follows the queue through MEDIA_STATUS broadcasts. Receivers
// only include the items when the queue changed, so the last list is kept
// until the media session goes away.
type queueCache struct {
	mu      sync.Mutex
	items   []QueueEntry
	current int
}

// observe applies a media namespace message. Anything that is not a
// MEDIA_STATUS is ignored.
func (q *queueCache) observe(payload []byte) {
	var msg mediaStatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != "MEDIA_STATUS" {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(msg.Status) == 0 || msg.Status[0].MediaSessionId == 0 {
		q.items, q.current = nil, 0
		return
	}

	st := msg.Status[0]
	if st.CurrentItemId != 0 {
		q.current = st.CurrentItemId
	}
	if st.Items == nil {
		return
	}

	prev := make(map[int]QueueEntry, len(q.items))
	for _, e := range q.items {
		prev[e.ItemID] = e
	}

	items := make([]QueueEntry, 0, len(st.Items))
	for _, it := range st.Items {
		e := prev[it.ItemId]
		e.ItemID = it.ItemId
		if it.Media != nil {
			e.ContentID = it.Media.ContentId
			if it.Media.Metadata.Title != "" {
				e.Title = it.Media.Metadata.Title
			}
		}
		items = append(items, e)
	}
	q.items = items
}

func (q *queueCache) snapshot() ([]QueueEntry, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items), q.current
}
