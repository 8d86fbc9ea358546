package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	videoFormat            = "mp4"
	defaultTrackMimeType   = "text/vtt"
	thumbnailWidth         = 480
	thumbnailHeight        = 720
	posterWidth            = 780
	posterHeight           = 1200
	catalogRetryMax        = 3
	catalogRequestDeadline = 30 * time.Second
)

// Item is a node of the catalog tree. Groups have children, leaves carry
// an Info.
type Item struct {
	Title    string
	ImageURL string
	Children []*Item
	Info     *Info
	Parent   *Item
}

// IsGroup reports whether the item is a container.
func (it *Item) IsGroup() bool { return it.Info == nil }

// Leaves returns the playable descendants in order.
func (it *Item) Leaves() []*Item {
	if !it.IsGroup() {
		return []*Item{it}
	}

	var out []*Item
	for _, c := range it.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Catalog is a loaded media list.
type Catalog struct {
	Title string
	Root  *Item
}

// ErrHTTPStatus wraps a non-200 reply to the catalog request.
var ErrHTTPStatus = errors.New("media list request failed")

type rawCatalog struct {
	Categories []map[string]any `mapstructure:"categories"`
}

type rawCategory struct {
	Name       string           `mapstructure:"name"`
	MP4Base    string           `mapstructure:"mp4"`
	ImagesBase string           `mapstructure:"images"`
	TracksBase string           `mapstructure:"tracks"`
	Videos     []map[string]any `mapstructure:"videos"`
}

type rawVideo struct {
	Title    string      `mapstructure:"title"`
	Subtitle string      `mapstructure:"subtitle"`
	Studio   string      `mapstructure:"studio"`
	Artist   string      `mapstructure:"artist"`
	Duration float64     `mapstructure:"duration"`
	Thumb    string      `mapstructure:"image-480x270"`
	Poster   string      `mapstructure:"image-780x1200"`
	Sources  []rawSource `mapstructure:"sources"`
	Tracks   []rawTrack  `mapstructure:"tracks"`
}

type rawSource struct {
	Type string `mapstructure:"type"`
	Mime string `mapstructure:"mime"`
	URL  string `mapstructure:"url"`
}

type rawTrack struct {
	ID        int    `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Subtype   string `mapstructure:"subtype"`
	ContentID string `mapstructure:"contentId"`
	Language  string `mapstructure:"language"`
}

// Loader fetches catalogs over HTTP.
type Loader struct {
	client *retryablehttp.Client
	Logger zerolog.Logger
}

// NewLoader returns a Loader with a retrying HTTP client.
func NewLoader(logger zerolog.Logger) *Loader {
	c := retryablehttp.NewClient()
	c.RetryMax = catalogRetryMax
	c.Logger = nil
	c.HTTPClient.Timeout = catalogRequestDeadline

	return &Loader{client: c, Logger: logger}
}

// Load downloads and decodes the media list at u.
func (l *Loader) Load(ctx context.Context, u string) (*Catalog, error) {
	l.Logger.Debug().Str("Method", "Load").Str("URL", u).Msg("loading media list")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "media list request")
	}

	res, err := l.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "media list request")
	}
	defer res.Body.Close()

	l.Logger.Debug().Str("Method", "Load").Int("Status", res.StatusCode).Msg("media list response")

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPStatus, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "media list read")
	}

	return Decode(body)
}

// Decode builds a catalog from the JSON media list. Only the first category
// carrying videos is decoded.
func Decode(data []byte) (*Catalog, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "media list decode")
	}

	var raw rawCatalog
	if err := weakDecode(doc, &raw); err != nil {
		return nil, err
	}

	cat := &Catalog{Root: &Item{}}
	for _, c := range raw.Categories {
		var rc rawCategory
		if err := weakDecode(c, &rc); err != nil {
			return nil, err
		}

		if rc.Videos == nil {
			continue
		}

		cat.Title = rc.Name
		cat.Root.Title = rc.Name

		if err := decodeItems(cat.Root, rc); err != nil {
			return nil, err
		}
		break
	}

	return cat, nil
}

func decodeItems(parent *Item, rc rawCategory) error {
	for _, v := range rc.Videos {
		var rv rawVideo
		if err := weakDecode(v, &rv); err != nil {
			return err
		}

		var mime, contentURL string
		for _, s := range rv.Sources {
			if s.Type == videoFormat {
				mime = s.Mime
				contentURL = resolveURL(s.URL, rc.MP4Base)
				break
			}
		}

		if contentURL == "" {
			continue
		}

		meta := map[string]string{}
		setIf(meta, KeyTitle, rv.Title)
		setIf(meta, KeyDescription, rv.Subtitle)
		setIf(meta, KeyStudio, rv.Studio)
		setIf(meta, KeyArtist, rv.Artist)

		var images []Image
		if u := resolveURL(rv.Thumb, rc.ImagesBase); u != "" {
			images = append(images, Image{URL: u, Width: thumbnailWidth, Height: thumbnailHeight})
		}
		if u := resolveURL(rv.Poster, rc.ImagesBase); u != "" {
			meta[KeyPosterURL] = u
			images = append(images, Image{URL: u, Width: posterWidth, Height: posterHeight})
		}

		var tracks []Track
		for _, t := range rv.Tracks {
			tracks = append(tracks, Track{
				ID:          t.ID,
				Type:        trackTypeFrom(t.Type),
				Subtype:     textSubtypeFrom(t.Subtype),
				ContentID:   resolveURL(t.ContentID, rc.TracksBase),
				ContentType: defaultTrackMimeType,
				Name:        t.Name,
				Language:    t.Language,
			})
		}

		info, err := NewInfo(Options{
			ContentID:   contentURL,
			ContentType: mime,
			StreamType:  StreamBuffered,
			Duration:    rv.Duration,
			Metadata:    meta,
			Images:      images,
			Tracks:      tracks,
		})
		if err != nil {
			return err
		}

		child := &Item{Title: rv.Title, Info: info, Parent: parent}
		if len(images) > 0 {
			child.ImageURL = images[0].URL
		}
		parent.Children = append(parent.Children, child)
	}

	return nil
}

func weakDecode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "media list decoder")
	}

	if err := dec.Decode(in); err != nil {
		return errors.Wrap(err, "media list decode")
	}
	return nil
}

// resolveURL keeps absolute http(s) URLs and resolves anything else
// against base.
func resolveURL(s, base string) string {
	if s == "" {
		return ""
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}

	b, err := url.Parse(base)
	if err != nil {
		return ""
	}

	ref, err := url.Parse(s)
	if err != nil {
		return ""
	}

	return b.ResolveReference(ref).String()
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func trackTypeFrom(s string) TrackType {
	switch s {
	case "audio":
		return TrackAudio
	case "text":
		return TrackText
	case "video":
		return TrackVideo
	}
	return TrackUnknown
}

func textSubtypeFrom(s string) string {
	switch s {
	case "captions", "chapters", "descriptions", "metadata", "subtitles":
		return strings.ToUpper(s)
	}
	return ""
}
