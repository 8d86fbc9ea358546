package castsession

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castvideos/castprotocol"
	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/internal/playback"
)

// chromecastBackend drives the Default Media Receiver through go-chromecast.
// The library calls are blocking and do not take a context.
type chromecastBackend struct {
	cc *castprotocol.CastClient
}

func dialChromecast(_ context.Context, dev devices.Device, logger zerolog.Logger) (backend, error) {
	cc, err := castprotocol.NewCastClient(dev.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "chromecast")
	}
	cc.Logger = logger

	if err := cc.Connect(); err != nil {
		return nil, errors.Wrapf(err, "connect to %s", dev.Name)
	}

	return &chromecastBackend{cc: cc}, nil
}

func castQueueItems(items []playback.QueueItem) []castprotocol.QueueItem {
	out := make([]castprotocol.QueueItem, 0, len(items))
	for _, it := range items {
		if it.Media == nil {
			continue
		}
		out = append(out, castprotocol.QueueItem{
			Media:       castprotocol.MediaFromInfo(it.Media),
			Autoplay:    it.Autoplay,
			StartTime:   it.StartPosition,
			PreloadTime: it.PreloadTime,
		})
	}
	return out
}

func (b *chromecastBackend) queueLoad(_ context.Context, items []playback.QueueItem, opts playback.QueueLoadOptions) error {
	return b.cc.QueueLoad(castQueueItems(items), opts.StartIndex, opts.PlayPosition, string(opts.RepeatMode))
}

func (b *chromecastBackend) queueInsert(_ context.Context, item playback.QueueItem) error {
	return b.cc.QueueInsert(castQueueItems([]playback.QueueItem{item}))
}

func (b *chromecastBackend) queueJump(_ context.Context, itemID int) error {
	return b.cc.QueueJumpToItem(itemID)
}

func (b *chromecastBackend) queueRemove(_ context.Context, itemID int) error {
	return b.cc.QueueRemoveItem(itemID)
}

func (b *chromecastBackend) queueReorder(_ context.Context, itemID, beforeID int) error {
	return b.cc.QueueReorder(itemID, beforeID)
}

func (b *chromecastBackend) play(context.Context) error  { return b.cc.Play() }
func (b *chromecastBackend) pause(context.Context) error { return b.cc.Pause() }
func (b *chromecastBackend) stop(context.Context) error  { return b.cc.Stop() }

func (b *chromecastBackend) seek(_ context.Context, pos float64) error {
	return b.cc.Seek(pos)
}

func (b *chromecastBackend) status(context.Context) (receiverStatus, error) {
	st, err := b.cc.GetStatus()
	if err != nil {
		return receiverStatus{}, err
	}
	if !st.HasMedia() {
		return receiverStatus{State: "IDLE"}, nil
	}

	rs := receiverStatus{
		State:         st.PlayerState,
		Position:      float64(st.CurrentTime),
		Duration:      float64(st.Duration),
		ContentID:     st.ContentID,
		ContentType:   st.ContentType,
		Title:         st.MediaTitle,
		CurrentItemID: st.CurrentItemID,
	}
	for _, it := range st.Items {
		rs.Items = append(rs.Items, receiverItem{ID: it.ItemID, ContentID: it.ContentID, Title: it.Title})
	}

	return rs, nil
}

func (b *chromecastBackend) close(stopMedia bool) error {
	return b.cc.Close(stopMedia)
}
