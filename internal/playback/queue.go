package playback

import (
	"fmt"

	"github.com/rs/zerolog"
)

const msgQueueRequestFailed = "Queue request failed"

// QueueEditor edits the receiver queue of the current session. One request
// is outstanding at a time, edits made while it runs are dropped.
type QueueEditor struct {
	Logger zerolog.Logger

	presenter Presenter
	sessions  SessionManager

	busy     bool
	selected int
}

// NewQueueEditor returns an editor acting on the current session of
// sessions.
func NewQueueEditor(p Presenter, sessions SessionManager, logger zerolog.Logger) *QueueEditor {
	return &QueueEditor{Logger: logger, presenter: p, sessions: sessions}
}

// Busy reports whether a queue request is outstanding.
func (q *QueueEditor) Busy() bool { return q.busy }

func (q *QueueEditor) client() RemoteClient {
	s := q.sessions.CurrentSession()
	if s == nil || !s.Connected() {
		return nil
	}
	return s.Client()
}

func (q *QueueEditor) status() *MediaStatus {
	c := q.client()
	if c == nil {
		return nil
	}
	return c.MediaStatus()
}

// Items returns the receiver queue and the id of the item playing.
func (q *QueueEditor) Items() ([]QueueEntry, int) {
	st := q.status()
	if st == nil {
		return nil, InvalidItemID
	}
	return st.Items, st.CurrentItemID
}

// Selected returns the id of the selected item. The selection falls back
// to the current item, then to the first one, when the selected item left
// the queue.
func (q *QueueEditor) Selected() int {
	st := q.status()
	if st == nil || len(st.Items) == 0 {
		return InvalidItemID
	}
	if st.ItemIndex(q.selected) >= 0 {
		return q.selected
	}
	if st.ItemIndex(st.CurrentItemID) >= 0 {
		return st.CurrentItemID
	}
	return st.Items[0].ID
}

// SelectNext moves the selection down by delta items, clamped to the
// queue bounds.
func (q *QueueEditor) SelectNext(delta int) {
	st := q.status()
	if st == nil || len(st.Items) == 0 {
		return
	}
	i := st.ItemIndex(q.Selected()) + delta
	i = max(0, min(i, len(st.Items)-1))
	q.selected = st.Items[i].ID
}

// JumpToSelected makes the selected item the current one.
func (q *QueueEditor) JumpToSelected() {
	id := q.Selected()
	if id == InvalidItemID {
		return
	}
	q.send("QueueJumpToItem", func(c RemoteClient, done func(error)) {
		c.QueueJumpToItem(id, done)
	})
}

// RemoveSelected drops the selected item from the queue.
func (q *QueueEditor) RemoveSelected() {
	id := q.Selected()
	if id == InvalidItemID {
		return
	}
	q.send("QueueRemoveItem", func(c RemoteClient, done func(error)) {
		c.QueueRemoveItem(id, done)
	})
}

// MoveSelected moves the selected item one place up (delta -1) or down
// (delta 1).
func (q *QueueEditor) MoveSelected(delta int) {
	st := q.status()
	id := q.Selected()
	from := st.ItemIndex(id)
	if from < 0 || (delta != -1 && delta != 1) {
		return
	}
	to := from + delta
	if to < 0 || to >= len(st.Items) {
		return
	}

	// The item ends up in front of whatever follows its destination.
	before := InvalidItemID
	if delta < 0 {
		before = st.Items[to].ID
	} else if to+1 < len(st.Items) {
		before = st.Items[to+1].ID
	}

	q.send("QueueReorder", func(c RemoteClient, done func(error)) {
		c.QueueReorder(id, before, done)
	})
}

func (q *QueueEditor) send(method string, call func(c RemoteClient, done func(error))) {
	if q.busy {
		q.Logger.Debug().Str("Method", method).Msg("queue request outstanding, dropped")
		return
	}
	c := q.client()
	if c == nil {
		return
	}

	q.busy = true
	call(c, func(err error) {
		q.busy = false
		if err != nil {
			q.Logger.Error().Str("Method", method).Err(err).Msg("queue request failed")
			q.presenter.ShowMessage(fmt.Sprintf("%s:\n%v", msgQueueRequestFailed, err))
			return
		}
		q.Logger.Debug().Str("Method", method).Msg("queue request completed")
	})
}
