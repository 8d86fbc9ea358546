package castsession

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/internal/media"
	"go2tv.app/castvideos/internal/playback"
	"go2tv.app/castvideos/soapcalls"
)

type renderer struct {
	mu      sync.Mutex
	actions []string
	bodies  []string
	state   string
	track   string
}

func (r *renderer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	action := strings.Trim(req.Header.Get("SOAPAction"), `"`)
	action = action[strings.LastIndex(action, "#")+1:]
	body, _ := io.ReadAll(req.Body)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	r.bodies = append(r.bodies, string(body))

	switch action {
	case "GetTransportInfo":
		_, _ = io.WriteString(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:GetTransportInfoResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><CurrentTransportState>`+r.state+`</CurrentTransportState></u:GetTransportInfoResponse></s:Body></s:Envelope>`)
	case "GetPositionInfo":
		_, _ = io.WriteString(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:GetPositionInfoResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><TrackDuration>0:01:00</TrackDuration><TrackURI>`+r.track+`</TrackURI><RelTime>0:00:07</RelTime></u:GetPositionInfoResponse></s:Body></s:Envelope>`)
	}
}

func (r *renderer) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func newDLNABackend(t *testing.T, r *renderer) *dlnaBackend {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &dlnaBackend{
		tv:     soapcalls.NewTVPayload(srv.URL+"/control", zerolog.Nop()),
		Logger: zerolog.Nop(),
	}
}

func testInfo(t *testing.T, id string) *media.Info {
	t.Helper()
	info, err := media.NewInfo(media.Options{
		ContentID:   id,
		ContentType: "video/mp4",
		Metadata:    map[string]string{media.KeyTitle: "Big Buck Bunny"},
		Tracks: []media.Track{
			{ID: 1, Type: media.TrackText, ContentID: "http://cdn/bbb.vtt", ContentType: "text/vtt"},
		},
	})
	require.NoError(t, err)
	return info
}

func TestDLNAQueueLoad(t *testing.T) {
	r := &renderer{}
	b := newDLNABackend(t, r)

	items := []playback.QueueItem{
		{Media: testInfo(t, "http://cdn/a.mp4"), Autoplay: true, StartPosition: 42},
		{Media: testInfo(t, "http://cdn/b.mp4")},
	}
	require.NoError(t, b.queueLoad(context.Background(), items, playback.QueueLoadOptions{}))

	assert.Equal(t, []string{"SetAVTransportURI", "Play", "Seek", "SetNextAVTransportURI"}, r.calls())
	assert.Contains(t, r.bodies[0], "http://cdn/a.mp4")
	assert.Contains(t, r.bodies[0], "bbb.vtt")
	assert.Contains(t, r.bodies[2], "<Target>00:00:42</Target>")
	assert.Contains(t, r.bodies[3], "http://cdn/b.mp4")
}

func TestDLNAQueueLoadPaused(t *testing.T) {
	r := &renderer{}
	b := newDLNABackend(t, r)

	items := []playback.QueueItem{
		{Media: testInfo(t, "http://cdn/a.mp4")},
		{Media: testInfo(t, "http://cdn/b.mp4")},
	}
	require.NoError(t, b.queueLoad(context.Background(), items, playback.QueueLoadOptions{StartIndex: 1}))

	assert.Equal(t, []string{"SetAVTransportURI"}, r.calls())
	assert.Contains(t, r.bodies[0], "http://cdn/b.mp4")
}

func TestDLNAQueueLoadPausedAtPosition(t *testing.T) {
	r := &renderer{}
	b := newDLNABackend(t, r)

	items := []playback.QueueItem{{Media: testInfo(t, "http://cdn/a.mp4")}}
	require.NoError(t, b.queueLoad(context.Background(), items, playback.QueueLoadOptions{PlayPosition: 90}))

	assert.Equal(t, []string{"SetAVTransportURI", "Play", "Seek", "Pause"}, r.calls())
	assert.Contains(t, r.bodies[2], "<Target>00:01:30</Target>")
}

// loadThree loads a, b and c with a playing.
func loadThree(t *testing.T, r *renderer, b *dlnaBackend) []int {
	t.Helper()
	items := []playback.QueueItem{
		{Media: testInfo(t, "http://cdn/a.mp4"), Autoplay: true},
		{Media: testInfo(t, "http://cdn/b.mp4")},
		{Media: testInfo(t, "http://cdn/c.mp4")},
	}
	require.NoError(t, b.queueLoad(context.Background(), items, playback.QueueLoadOptions{}))
	require.Equal(t, []string{"SetAVTransportURI", "Play", "SetNextAVTransportURI"}, r.calls())

	r.mu.Lock()
	r.actions, r.bodies = nil, nil
	r.mu.Unlock()

	var ids []int
	for _, e := range b.items {
		ids = append(ids, e.id)
	}
	return ids
}

func TestDLNAQueueJump(t *testing.T) {
	r := &renderer{}
	b := newDLNABackend(t, r)
	ids := loadThree(t, r, b)

	require.NoError(t, b.queueJump(context.Background(), ids[2]))
	assert.Equal(t, []string{"SetAVTransportURI", "Play", "SetNextAVTransportURI"}, r.calls())
	assert.Contains(t, r.bodies[0], "http://cdn/c.mp4")
	assert.Contains(t, r.bodies[2], "<NextURI></NextURI>", "nothing after the last item")
	assert.Equal(t, 2, b.cur)

	assert.ErrorIs(t, b.queueJump(context.Background(), 999), ErrUnknownItem)
}

func TestDLNAQueueRemove(t *testing.T) {
	r := &renderer{}
	b := newDLNABackend(t, r)
	ids := loadThree(t, r, b)
	ctx := context.Background()

	// Removing the next item hands the one after it to the renderer.
	require.NoError(t, b.queueRemove(ctx, ids[1]))
	assert.Equal(t, []string{"SetNextAVTransportURI"}, r.calls())
	assert.Contains(t, r.bodies[0], "http://cdn/c.mp4")

	// Removing the current item plays the next one.
	require.NoError(t, b.queueRemove(ctx, ids[0]))
	assert.Equal(t, []string{"SetNextAVTransportURI", "SetAVTransportURI", "Play", "SetNextAVTransportURI"}, r.calls())
	assert.Contains(t, r.bodies[1], "http://cdn/c.mp4")
	assert.Equal(t, ids[2], b.items[b.cur].id)

	// Removing the last one stops the renderer.
	require.NoError(t, b.queueRemove(ctx, ids[2]))
	assert.Equal(t, "Stop", r.calls()[4])
	assert.Empty(t, b.items)

	assert.ErrorIs(t, b.queueRemove(ctx, ids[2]), ErrUnknownItem)
}

func TestDLNAQueueReorder(t *testing.T) {
	r := &renderer{}
	b := newDLNABackend(t, r)
	ids := loadThree(t, r, b)
	ctx := context.Background()

	// c in front of b changes the next URI.
	require.NoError(t, b.queueReorder(ctx, ids[2], ids[1]))
	assert.Equal(t, []string{"SetNextAVTransportURI"}, r.calls())
	assert.Contains(t, r.bodies[0], "http://cdn/c.mp4")
	assert.Equal(t, []int{ids[0], ids[2], ids[1]}, []int{b.items[0].id, b.items[1].id, b.items[2].id})

	// Moving a to the end keeps it current with nothing after it.
	require.NoError(t, b.queueReorder(ctx, ids[0], playback.InvalidItemID))
	assert.Equal(t, ids[0], b.items[b.cur].id)
	assert.Equal(t, 2, b.cur)
	assert.Len(t, r.calls(), 2)
	assert.Contains(t, r.bodies[1], "<NextURI></NextURI>")

	assert.ErrorIs(t, b.queueReorder(ctx, ids[0], 999), ErrUnknownItem)
}

func TestDLNAStatusFollowsNextURI(t *testing.T) {
	r := &renderer{}
	b := newDLNABackend(t, r)
	ids := loadThree(t, r, b)

	r.mu.Lock()
	r.state, r.track = "PLAYING", "http://cdn/b.mp4"
	r.mu.Unlock()

	st, err := b.status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids[1], st.CurrentItemID)
	require.Len(t, st.Items, 3)
	assert.Equal(t, receiverItem{ID: ids[2], ContentID: "http://cdn/c.mp4", Title: "Big Buck Bunny"}, st.Items[2])
	assert.Equal(t, []string{"GetTransportInfo", "GetPositionInfo", "SetNextAVTransportURI"}, r.calls())
	assert.Contains(t, r.bodies[2], "http://cdn/c.mp4")
}

func TestDLNAQueueLoadEmpty(t *testing.T) {
	b := newDLNABackend(t, &renderer{})
	assert.ErrorIs(t, b.queueLoad(context.Background(), nil, playback.QueueLoadOptions{}), ErrEmptyQueue)
}

func TestDLNAStatus(t *testing.T) {
	r := &renderer{state: "PLAYING"}
	b := newDLNABackend(t, r)
	b.items = []dlnaEntry{b.newEntry(testInfo(t, "http://cdn/a.mp4"))}

	st, err := b.status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, receiverStatus{
		State:         "PLAYING",
		Position:      7,
		Duration:      60,
		ContentID:     "http://cdn/a.mp4",
		Items:         []receiverItem{{ID: 1, ContentID: "http://cdn/a.mp4", Title: "Big Buck Bunny"}},
		CurrentItemID: 1,
	}, st)

	r.mu.Lock()
	r.state, r.track = "STOPPED", ""
	r.mu.Unlock()

	st, err = b.status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.ContentID)
}

func TestDLNADial(t *testing.T) {
	r := &renderer{state: "NO_MEDIA_PRESENT"}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	orig := dlnaDescribe
	t.Cleanup(func() { dlnaDescribe = orig })
	dlnaDescribe = func(ctx context.Context, url string) (*soapcalls.DMRextracted, error) {
		return &soapcalls.DMRextracted{FriendlyName: "TV", AvtransportControlURL: srv.URL + "/control"}, nil
	}

	b, err := dialDLNA(context.Background(), devices.Device{Name: "TV", Addr: "http://tv/desc.xml", Type: devices.DeviceTypeDLNA}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, []string{"GetTransportInfo"}, r.calls())

	require.NoError(t, b.close(false))
	assert.Len(t, r.calls(), 1)
	require.NoError(t, b.close(true))
	assert.Equal(t, "Stop", r.calls()[1])
}

func TestDialUnsupportedDevice(t *testing.T) {
	_, err := dialDevice(context.Background(), devices.Device{Type: "AirPlay"}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
}

func TestCastQueueItems(t *testing.T) {
	items := castQueueItems([]playback.QueueItem{
		{Media: testInfo(t, "http://cdn/a.mp4"), Autoplay: true, StartPosition: 12, PreloadTime: 20},
		{},
	})

	require.Len(t, items, 1)
	assert.Equal(t, "http://cdn/a.mp4", items[0].Media.ContentId)
	assert.True(t, items[0].Autoplay)
	assert.Equal(t, 12.0, items[0].StartTime)
	assert.Equal(t, 20.0, items[0].PreloadTime)
	assert.Len(t, items[0].Media.Tracks, 1)
}
