package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNoDuration is returned when ffprobe reports no usable duration, which
// is the case for live streams and broken files.
var ErrNoDuration = errors.New("media has no duration")

type ffprobeFormat struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// CheckFFprobe verifies the ffprobe binary can be executed.
func CheckFFprobe(ffprobe string) error {
	cmd := exec.Command(ffprobe, "-version")
	if _, err := cmd.Output(); err != nil {
		return fmt.Errorf("ffprobe check: %w", err)
	}
	return nil
}

// DurationForMediaSeconds returns the duration of target in seconds.
// target is either a local path or an http(s) URL.
func DurationForMediaSeconds(ctx context.Context, ffprobe, target string) (float64, error) {
	if !IsRemote(target) {
		if _, err := os.Stat(target); err != nil {
			return 0, err
		}
	}

	cmd := exec.CommandContext(ctx, ffprobe,
		"-loglevel", "error",
		"-show_format",
		"-of", "json",
		target,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	return parseFFprobeDuration(output)
}

func parseFFprobeDuration(output []byte) (float64, error) {
	var info ffprobeFormat
	if err := json.Unmarshal(output, &info); err != nil {
		return 0, fmt.Errorf("ffprobe output: %w", err)
	}

	d := strings.TrimSpace(info.Format.Duration)
	if d == "" || d == "N/A" {
		return 0, ErrNoDuration
	}

	secs, err := strconv.ParseFloat(d, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", d, err)
	}
	if secs <= 0 {
		return 0, ErrNoDuration
	}

	return secs, nil
}

// IsRemote reports whether target is an http(s) URL.
func IsRemote(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

// FormatClock renders seconds as mm:ss, or h:mm:ss past the hour. Negative
// values get a leading minus, the way remaining time is shown.
func FormatClock(secs float64) string {
	sign := ""
	if secs < 0 {
		sign = "-"
		secs = -secs
	}

	t := time.Duration(secs * float64(time.Second)).Round(time.Second)
	h := t / time.Hour
	t -= h * time.Hour
	m := t / time.Minute
	t -= m * time.Minute
	s := t / time.Second

	if h > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%s%02d:%02d", sign, m, s)
}

// FormatHMS renders seconds the way UPnP AVTransport expects them,
// H+:MM:SS.
func FormatHMS(secs float64) string {
	if secs < 0 {
		secs = 0
	}

	t := time.Duration(secs * float64(time.Second)).Truncate(time.Second)
	h := t / time.Hour
	t -= h * time.Hour
	m := t / time.Minute
	t -= m * time.Minute

	return fmt.Sprintf("%02d:%02d:%02d", h, m, t/time.Second)
}

// ParseHMS parses an AVTransport H+:MM:SS[.F+] time into seconds.
func ParseHMS(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NOT_IMPLEMENTED" {
		return 0, fmt.Errorf("parse time %q: not available", s)
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("parse time %q: want H:MM:SS", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}

	return float64(h*3600+m*60) + sec, nil
}
