package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var srtTimestamp = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}),(\d{3})`)

func getCharDet(head []byte) (string, error) {
	det := chardet.NewTextDetector()
	guess, err := det.DetectBest(head)
	if err != nil {
		return "", err
	}
	return guess.Charset, nil
}

// ToUTF8 detects the charset of data and transcodes it to UTF-8. Data that
// already is UTF-8, or whose charset is unknown, is returned as is.
func ToUTF8(data []byte) ([]byte, error) {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}

	charset, err := getCharDet(head)
	if err != nil || charset == "" || strings.EqualFold(charset, "UTF-8") {
		return data, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return data, nil
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("transcode %s subtitles: %w", charset, err)
	}
	return out, nil
}

// ConvertSRTtoWebVTT reads an SRT file in any detectable charset and returns
// its WebVTT rendition in UTF-8.
func ConvertSRTtoWebVTT(srtPath string) ([]byte, error) {
	data, err := os.ReadFile(srtPath)
	if err != nil {
		return nil, fmt.Errorf("open srt: %w", err)
	}

	data, err = ToUTF8(data)
	if err != nil {
		return nil, err
	}

	return ConvertSRTReaderToWebVTT(bytes.NewReader(data))
}

// ConvertSRTReaderToWebVTT converts UTF-8 SRT content to WebVTT.
func ConvertSRTReaderToWebVTT(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("WEBVTT\n\n")

	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimRight(line, "\r")

		if strings.Contains(line, " --> ") {
			line = srtTimestamp.ReplaceAllString(line, "$1.$2")
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}

	return buf.Bytes(), nil
}
