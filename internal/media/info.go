// Package media holds the playable media descriptors and the catalog
// (media list) they are browsed from.
package media

import (
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"

	"go2tv.app/castvideos/utils"
)

// Metadata keys.
const (
	KeyTitle       = "title"
	KeySubtitle    = "subtitle"
	KeyArtist      = "artist"
	KeyStudio      = "studio"
	KeyDescription = "description"
	KeyPosterURL   = "posterUrl"
)

// StreamType mirrors the receiver stream types.
type StreamType string

const (
	StreamBuffered StreamType = "BUFFERED"
	StreamLive     StreamType = "LIVE"
)

// TrackType is the kind of a media track.
type TrackType string

const (
	TrackUnknown TrackType = ""
	TrackAudio   TrackType = "AUDIO"
	TrackVideo   TrackType = "VIDEO"
	TrackText    TrackType = "TEXT"
)

// Track describes one audio, video or text track of a media item.
type Track struct {
	ID          int
	Type        TrackType
	Subtype     string // "SUBTITLES", "CAPTIONS", ... for text tracks
	ContentID   string
	ContentType string
	Name        string
	Language    string
}

// Image is an artwork reference.
type Image struct {
	URL    string
	Width  int
	Height int
}

// Info describes one playable item. An Info is never mutated after it has
// been built; accessors hand out copies.
type Info struct {
	contentID   string
	contentType string
	streamType  StreamType
	duration    float64
	localPath   string
	metadata    map[string]string
	images      []Image
	tracks      []Track
}

// Options are the fields used to build an Info.
type Options struct {
	ContentID   string
	ContentType string
	StreamType  StreamType
	Duration    float64 // seconds, 0 when unknown
	LocalPath   string  // set when the content is a file served by this process
	Metadata    map[string]string
	Images      []Image
	Tracks      []Track
}

// ErrNoContentID is returned when building an Info without a content ID.
var ErrNoContentID = errors.New("media info without content id")

// NewInfo builds an immutable Info.
func NewInfo(o Options) (*Info, error) {
	if o.ContentID == "" {
		return nil, ErrNoContentID
	}

	st := o.StreamType
	if st == "" {
		st = StreamBuffered
	}

	return &Info{
		contentID:   o.ContentID,
		contentType: o.ContentType,
		streamType:  st,
		duration:    o.Duration,
		localPath:   o.LocalPath,
		metadata:    maps.Clone(o.Metadata),
		images:      slices.Clone(o.Images),
		tracks:      slices.Clone(o.Tracks),
	}, nil
}

// FromFile builds an Info for a local media file. The content ID is the URL
// the file is exposed under (see httphandlers), the MIME type is sniffed from
// the file header.
func FromFile(path, servedURL string, tracks []Track) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "media from file")
	}

	mtype, err := utils.GetMimeDetailsFromFile(f)
	if err != nil {
		return nil, errors.Wrap(err, "media from file")
	}

	return NewInfo(Options{
		ContentID:   servedURL,
		ContentType: mtype,
		LocalPath:   path,
		Metadata:    map[string]string{KeyTitle: filepath.Base(path)},
		Tracks:      tracks,
	})
}

func (i *Info) ContentID() string      { return i.contentID }
func (i *Info) ContentType() string    { return i.contentType }
func (i *Info) StreamType() StreamType { return i.streamType }
func (i *Info) LocalPath() string      { return i.localPath }

// Duration returns the duration in seconds, 0 if unknown.
func (i *Info) Duration() float64 { return i.duration }

// Metadata returns the value stored under key.
func (i *Info) Metadata(key string) string { return i.metadata[key] }

// Title is a shortcut for Metadata(KeyTitle).
func (i *Info) Title() string { return i.metadata[KeyTitle] }

// Subtitle returns the artist, falling back to the studio.
func (i *Info) Subtitle() string {
	if s := i.metadata[KeyArtist]; s != "" {
		return s
	}
	return i.metadata[KeyStudio]
}

func (i *Info) Images() []Image { return slices.Clone(i.images) }
func (i *Info) Tracks() []Track { return slices.Clone(i.tracks) }

// SameContent reports whether both infos point to the same content.
func (i *Info) SameContent(o *Info) bool {
	if i == nil || o == nil {
		return i == o
	}
	return i.contentID == o.contentID
}
