package utils

import (
	"net/url"
	"path/filepath"
)

// ConvertFilename percent-encodes the base name of s for use as a URL path
// segment.
func ConvertFilename(s string) string {
	return url.PathEscape(filepath.Base(s))
}
