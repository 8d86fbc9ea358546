package utils

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// ErrUnknownMime is returned when neither the file header nor the file
// extension identify the media type.
var ErrUnknownMime = errors.New("unknown media type")

const (
	dlnaOrgFlagStreamingTransferMode   = 1 << 24
	dlnaOrgFlagBackgroundTransfertMode = 1 << 22
	dlnaOrgFlagConnectionStall         = 1 << 21
	dlnaOrgFlagDlnaV15                 = 1 << 20
)

var dlnaProfiles = map[string]string{
	"video/x-matroska": "DLNA.ORG_PN=MATROSKA",
	"video/mpeg":       "DLNA.ORG_PN=MPEG1",
	"video/mp4":        "DLNA.ORG_PN=AVC_MP4_MP_SD_AAC_MULT5",
	"video/quicktime":  "DLNA.ORG_PN=AVC_MP4_MP_SD_AAC_MULT5",
	"video/x-m4v":      "DLNA.ORG_PN=AVC_MP4_MP_SD_AAC_MULT5",
	"audio/mpeg":       "DLNA.ORG_PN=MP3",
}

// BuildContentFeatures builds the value of the "contentFeatures.dlna.org"
// header for files served to renderers. Byte range seeking is always
// advertised since files are served with http.ServeContent.
func BuildContentFeatures(mediaType string) string {
	var cf strings.Builder

	if prof, ok := dlnaProfiles[mediaType]; ok {
		cf.WriteString(prof + ";")
	}

	cf.WriteString("DLNA.ORG_OP=01;DLNA.ORG_CI=0;DLNA.ORG_FLAGS=")
	fmt.Fprintf(&cf, "%.8x%.24x", dlnaOrgFlagStreamingTransferMode|
		dlnaOrgFlagBackgroundTransfertMode|
		dlnaOrgFlagConnectionStall|
		dlnaOrgFlagDlnaV15, 0)

	return cf.String()
}

// GetMimeDetailsFromFile sniffs the media type from the file header, falling
// back to the file extension. f is closed.
func GetMimeDetailsFromFile(f io.ReadCloser) (string, error) {
	defer f.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("getMimeDetailsFromFile read: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}

	if named, ok := f.(interface{ Name() string }); ok {
		if t := MimeFromExtension(named.Name()); t != "" {
			return t, nil
		}
	}

	return "", ErrUnknownMime
}

// MimeFromExtension maps a file name to a media type, without parameters.
func MimeFromExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".srt":
		return "application/x-subrip"
	case ".vtt":
		return "text/vtt"
	case ".mkv":
		return "video/x-matroska"
	case ".mp4":
		return "video/mp4"
	case ".m4v":
		return "video/x-m4v"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".m3u8":
		return "application/x-mpegurl"
	}

	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}
