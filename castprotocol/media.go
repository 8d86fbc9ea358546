package castprotocol

import (
	"go2tv.app/castvideos/internal/media"
)

// Metadata types understood by the default media receiver.
const (
	metadataGeneric = 0
	metadataMovie   = 1
)

// MediaTrack represents a media track. Type is "TEXT", "AUDIO" or "VIDEO",
// SubType qualifies text tracks ("SUBTITLES", "CAPTIONS").
type MediaTrack struct {
	TrackId     int    `json:"trackId"`
	Type        string `json:"type"`
	SubType     string `json:"subtype,omitempty"`
	ContentId   string `json:"trackContentId"`
	ContentType string `json:"trackContentType"`
	Name        string `json:"name,omitempty"`
	Language    string `json:"language,omitempty"`
}

// MediaImage is an artwork entry of MediaMeta.
type MediaImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MediaMeta contains metadata about the media.
type MediaMeta struct {
	MetadataType int          `json:"metadataType"`
	Title        string       `json:"title,omitempty"`
	Subtitle     string       `json:"subtitle,omitempty"`
	Studio       string       `json:"studio,omitempty"`
	Images       []MediaImage `json:"images,omitempty"`
}

// MediaItemWithTracks is the media section of LOAD and queue items.
type MediaItemWithTracks struct {
	ContentId   string       `json:"contentId"`
	ContentType string       `json:"contentType"`
	StreamType  string       `json:"streamType"`
	Duration    float32      `json:"duration,omitempty"`
	Metadata    *MediaMeta   `json:"metadata,omitempty"`
	Tracks      []MediaTrack `json:"tracks,omitempty"`
}

// MediaFromInfo converts a media.Info into its wire form.
func MediaFromInfo(info *media.Info) MediaItemWithTracks {
	m := MediaItemWithTracks{
		ContentId:   info.ContentID(),
		ContentType: info.ContentType(),
		StreamType:  string(info.StreamType()),
		Duration:    float32(info.Duration()),
	}

	meta := &MediaMeta{
		MetadataType: metadataGeneric,
		Title:        info.Title(),
		Subtitle:     info.Metadata(media.KeySubtitle),
		Studio:       info.Metadata(media.KeyStudio),
	}
	if meta.Studio != "" {
		meta.MetadataType = metadataMovie
	}
	for _, img := range info.Images() {
		meta.Images = append(meta.Images, MediaImage{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	m.Metadata = meta

	for _, t := range info.Tracks() {
		if t.Type == media.TrackUnknown {
			continue
		}
		m.Tracks = append(m.Tracks, MediaTrack{
			TrackId:     t.ID,
			Type:        string(t.Type),
			SubType:     t.Subtype,
			ContentId:   t.ContentID,
			ContentType: t.ContentType,
			Name:        t.Name,
			Language:    t.Language,
		})
	}

	return m
}
