// Package playback implements the local/remote playback mode state machine:
// a local player driving a media element, and a controller that hands
// playback off to and back from a remote cast session.
//
// Every exported method in this package must be called from the playback
// Loop goroutine. Asynchronous completions (element callbacks, remote
// request results, session events) are expected to be posted onto the same
// Loop by their producers.
package playback

import "strings"

// Mode is where media is currently rendered.
type Mode int

const (
	ModeNone Mode = iota
	ModeLocal
	ModeRemote
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "Local"
	case ModeRemote:
		return "Remote"
	}
	return "None"
}

// PlayerState is the state of the local player.
type PlayerState int

const (
	StateStopped PlayerState = iota
	StateStarting
	StatePlaying
	StatePaused
)

func (s PlayerState) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	}
	return "Stopped"
}

// RemotePlayerState is the last state reported by a receiver.
type RemotePlayerState int

const (
	RemoteUnknown RemotePlayerState = iota
	RemoteIdle
	RemotePlaying
	RemotePaused
	RemoteBuffering
	RemoteLoading
)

func (s RemotePlayerState) String() string {
	switch s {
	case RemoteIdle:
		return "Idle"
	case RemotePlaying:
		return "Playing"
	case RemotePaused:
		return "Paused"
	case RemoteBuffering:
		return "Buffering"
	case RemoteLoading:
		return "Loading"
	}
	return "Unknown"
}

// ParseRemotePlayerState maps Chromecast and UPnP AVTransport state strings.
func ParseRemotePlayerState(s string) RemotePlayerState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IDLE", "STOPPED", "NO_MEDIA_PRESENT":
		return RemoteIdle
	case "PLAYING":
		return RemotePlaying
	case "PAUSED", "PAUSED_PLAYBACK":
		return RemotePaused
	case "BUFFERING":
		return RemoteBuffering
	case "LOADING", "TRANSITIONING":
		return RemoteLoading
	}
	return RemoteUnknown
}

// BarStyle is the navigation bar look requested by the local player.
type BarStyle int

const (
	BarDefault BarStyle = iota
	BarTransparent
)

func (b BarStyle) String() string {
	if b == BarTransparent {
		return "Transparent"
	}
	return "Default"
}

// RepeatMode of a remote queue. Values are the receiver wire values.
type RepeatMode string

const (
	RepeatOff           RepeatMode = "REPEAT_OFF"
	RepeatAll           RepeatMode = "REPEAT_ALL"
	RepeatSingle        RepeatMode = "REPEAT_SINGLE"
	RepeatAllAndShuffle RepeatMode = "REPEAT_ALL_AND_SHUFFLE"
)
