package castsession

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/internal/media"
	"go2tv.app/castvideos/internal/playback"
	"go2tv.app/castvideos/soapcalls"
)

var (
	// ErrEmptyQueue is returned when a queue load has no playable item.
	ErrEmptyQueue = errors.New("queue has no playable item")
	// ErrUnknownItem is returned for queue edits naming an item the
	// receiver does not hold.
	ErrUnknownItem = errors.New("no such queue item")
)

// dlnaEntry is one item of the emulated DLNA queue.
type dlnaEntry struct {
	id    int
	media *media.Info
}

// dlnaBackend drives a UPnP AVTransport service. Renderers only know a
// current and a next URI, so the queue is kept here: items[cur] is the
// current URI and items[cur+1], if any, the next one.
type dlnaBackend struct {
	tv     *soapcalls.TVPayload
	Logger zerolog.Logger

	// mu is held for the whole of a queue operation.
	mu     sync.Mutex
	items  []dlnaEntry
	cur    int
	lastID int
}

// dlnaDescribe is replaced in tests.
var dlnaDescribe = soapcalls.DMRextractor

func dialDLNA(ctx context.Context, dev devices.Device, logger zerolog.Logger) (backend, error) {
	dmr, err := dlnaDescribe(ctx, dev.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "describe %s", dev.Name)
	}

	b := &dlnaBackend{
		tv:     soapcalls.NewTVPayload(dmr.AvtransportControlURL, logger),
		Logger: logger,
	}

	// A renderer that does not answer GetTransportInfo is not usable.
	if _, err := b.tv.GetTransportInfo(ctx); err != nil {
		return nil, errors.Wrapf(err, "connect to %s", dev.Name)
	}

	return b, nil
}

func mediaRef(info *media.Info) soapcalls.MediaRef {
	ref := soapcalls.MediaRef{
		URL:   info.ContentID(),
		Type:  info.ContentType(),
		Title: info.Title(),
	}
	for _, t := range info.Tracks() {
		if t.Type == media.TrackText && t.ContentID != "" {
			ref.SubtitlesURL = t.ContentID
			break
		}
	}
	return ref
}

func (b *dlnaBackend) newEntry(info *media.Info) dlnaEntry {
	b.lastID++
	return dlnaEntry{id: b.lastID, media: info}
}

func (b *dlnaBackend) indexOf(id int) int {
	for i, e := range b.items {
		if e.id == id {
			return i
		}
	}
	return -1
}

// queueLoad sets the start item as the current URI and the one after it, if
// any, as the next URI. The start position is applied with a seek.
func (b *dlnaBackend) queueLoad(ctx context.Context, items []playback.QueueItem, opts playback.QueueLoadOptions) error {
	idx := opts.StartIndex
	if idx < 0 || idx >= len(items) {
		idx = 0
	}
	if len(items) == 0 || items[idx].Media == nil {
		return ErrEmptyQueue
	}
	item := items[idx]

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.tv.SetAVTransportURI(ctx, mediaRef(item.Media)); err != nil {
		return err
	}

	b.items, b.cur = nil, 0
	for i, it := range items {
		if it.Media == nil {
			continue
		}
		if i == idx {
			b.cur = len(b.items)
		}
		b.items = append(b.items, b.newEntry(it.Media))
	}

	start := item.StartPosition
	if opts.PlayPosition > 0 {
		start = opts.PlayPosition
	}

	switch {
	case item.Autoplay:
		if err := b.tv.Play(ctx); err != nil {
			return err
		}
		b.seekStart(ctx, start)
	case start > 0:
		// Renderers refuse seeks on a stopped transport. Start it, seek
		// and pause again so the item waits at start.
		if err := b.tv.Play(ctx); err != nil {
			return err
		}
		b.seekStart(ctx, start)
		if err := b.tv.Pause(ctx); err != nil {
			return err
		}
	}

	b.syncNext(ctx, false)
	return nil
}

func (b *dlnaBackend) seekStart(ctx context.Context, start float64) {
	if start <= 0 {
		return
	}
	if err := b.tv.Seek(ctx, start); err != nil {
		b.Logger.Warn().Str("Method", "queueLoad").Float64("Position", start).Err(err).Msg("start seek failed")
	}
}

// syncNext hands items[cur+1] to the renderer. With clearEmpty set, an
// empty next slot is cleared on the renderer too.
func (b *dlnaBackend) syncNext(ctx context.Context, clearEmpty bool) {
	var err error
	switch {
	case b.cur+1 < len(b.items):
		err = b.tv.SetNextAVTransportURI(ctx, mediaRef(b.items[b.cur+1].media))
	case clearEmpty:
		err = b.tv.ClearNextAVTransportURI(ctx)
	}
	if err != nil {
		b.Logger.Warn().Str("Method", "syncNext").Err(err).Msg("next URI rejected")
	}
}

// queueInsert appends item. The renderer only learns about it once it is
// the next item.
func (b *dlnaBackend) queueInsert(ctx context.Context, item playback.QueueItem) error {
	if item.Media == nil {
		return ErrEmptyQueue
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.newEntry(item.Media)
	if len(b.items) == 0 {
		// Nothing loaded by us; the item replaces whatever comes next.
		b.items = []dlnaEntry{e}
		b.cur = -1
		return b.tv.SetNextAVTransportURI(ctx, mediaRef(item.Media))
	}

	b.items = append(b.items, e)
	if len(b.items)-1 == b.cur+1 {
		return b.tv.SetNextAVTransportURI(ctx, mediaRef(item.Media))
	}
	return nil
}

// queueJump makes id the current URI and starts it.
func (b *dlnaBackend) queueJump(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(id)
	if i < 0 {
		return ErrUnknownItem
	}
	if i == b.cur {
		return nil
	}
	return b.playIndex(ctx, i)
}

func (b *dlnaBackend) playIndex(ctx context.Context, i int) error {
	if err := b.tv.SetAVTransportURI(ctx, mediaRef(b.items[i].media)); err != nil {
		return err
	}
	b.cur = i
	if err := b.tv.Play(ctx); err != nil {
		return err
	}
	b.syncNext(ctx, true)
	return nil
}

// queueRemove drops id. Removing the current item moves on to the next
// one, or stops the renderer at the end of the queue.
func (b *dlnaBackend) queueRemove(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(id)
	if i < 0 {
		return ErrUnknownItem
	}

	switch {
	case i == b.cur && i+1 < len(b.items):
		b.items = slices.Delete(b.items, i, i+1)
		return b.playIndex(ctx, i)
	case i == b.cur:
		b.items = slices.Delete(b.items, i, i+1)
		b.cur = len(b.items)
		return b.tv.Stop(ctx)
	case i < b.cur:
		b.items = slices.Delete(b.items, i, i+1)
		b.cur--
		return nil
	default:
		b.items = slices.Delete(b.items, i, i+1)
		if i == b.cur+1 {
			b.syncNext(ctx, true)
		}
		return nil
	}
}

// queueReorder moves id in front of beforeID, or to the end when beforeID
// is playback.InvalidItemID.
func (b *dlnaBackend) queueReorder(ctx context.Context, id, beforeID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(id)
	if i < 0 || (beforeID != playback.InvalidItemID && b.indexOf(beforeID) < 0) {
		return ErrUnknownItem
	}

	var curID int
	if b.cur >= 0 && b.cur < len(b.items) {
		curID = b.items[b.cur].id
	}
	nextID := b.nextID()

	e := b.items[i]
	b.items = slices.Delete(b.items, i, i+1)
	to := len(b.items)
	if beforeID != playback.InvalidItemID {
		to = b.indexOf(beforeID)
	}
	b.items = slices.Insert(b.items, to, e)

	if curID != 0 {
		b.cur = b.indexOf(curID)
	}
	if b.nextID() != nextID {
		b.syncNext(ctx, true)
	}
	return nil
}

func (b *dlnaBackend) nextID() int {
	if n := b.cur + 1; n >= 0 && n < len(b.items) {
		return b.items[n].id
	}
	return playback.InvalidItemID
}

func (b *dlnaBackend) play(ctx context.Context) error  { return b.tv.Play(ctx) }
func (b *dlnaBackend) pause(ctx context.Context) error { return b.tv.Pause(ctx) }
func (b *dlnaBackend) stop(ctx context.Context) error  { return b.tv.Stop(ctx) }

func (b *dlnaBackend) seek(ctx context.Context, pos float64) error {
	return b.tv.Seek(ctx, pos)
}

func (b *dlnaBackend) status(ctx context.Context) (receiverStatus, error) {
	state, err := b.tv.GetTransportInfo(ctx)
	if err != nil {
		return receiverStatus{}, err
	}

	pos, err := b.tv.GetPositionInfo(ctx)
	if err != nil {
		return receiverStatus{}, err
	}

	st := receiverStatus{
		State:     state,
		Position:  pos.RelTime,
		Duration:  pos.Duration,
		ContentID: pos.TrackURI,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// The renderer moved on to the next URI by itself.
	if next := b.cur + 1; next < len(b.items) && st.ContentID != "" && st.ContentID == b.items[next].media.ContentID() {
		b.cur = next
		b.syncNext(ctx, false)
	}

	if b.cur >= 0 && b.cur < len(b.items) {
		st.CurrentItemID = b.items[b.cur].id
		if st.ContentID == "" && playback.ParseRemotePlayerState(state) != playback.RemoteIdle {
			// Some renderers leave TrackURI empty while playing.
			st.ContentID = b.items[b.cur].media.ContentID()
		}
	}
	for _, e := range b.items {
		st.Items = append(st.Items, receiverItem{ID: e.id, ContentID: e.media.ContentID(), Title: e.media.Title()})
	}

	return st, nil
}

func (b *dlnaBackend) close(stopMedia bool) error {
	if !stopMedia {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return b.tv.Stop(ctx)
}
