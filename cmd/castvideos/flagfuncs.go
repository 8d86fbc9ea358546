package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/soapcalls"
	"go2tv.app/castvideos/utils"
)

const chromecastPort = "8009"

func listFlagFunction(ctx context.Context, timeout int) error {
	devs, err := devices.LoadAllDevices(ctx, timeout)
	if err != nil {
		return errors.Wrap(err, "listFlagFunction error")
	}
	fmt.Println()

	boldStart, boldEnd := "", ""
	if runtime.GOOS == "linux" {
		boldStart = "\033[1m"
		boldEnd = "\033[0m"
	}

	for i, d := range devs {
		fmt.Printf("%sDevice %v%s\n", boldStart, i+1, boldEnd)
		fmt.Printf("%s--------%s\n", boldStart, boldEnd)
		fmt.Printf("%sModel:%s %s\n", boldStart, boldEnd, d.Name)
		fmt.Printf("%sType:%s  %s\n", boldStart, boldEnd, d.Type)
		fmt.Printf("%sURL:%s   %s\n", boldStart, boldEnd, d.Addr)
		fmt.Println()
	}

	return nil
}

// deviceFromTarget turns a -t value into a device. Targets on the cast
// port are Chromecasts, anything else is taken as a DLNA description URL.
func deviceFromTarget(target string) (devices.Device, error) {
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return devices.Device{}, errors.Wrap(err, "checkTflag parse error")
	}
	if u.Host == "" {
		return devices.Device{}, errors.Errorf("checkTflag: %q has no host", target)
	}

	if u.Port() == chromecastPort {
		return devices.Device{
			Name: u.Hostname(),
			Addr: "http://" + net.JoinHostPort(u.Hostname(), chromecastPort),
			Type: devices.DeviceTypeChromecast,
		}, nil
	}

	return devices.Device{Name: u.Hostname(), Addr: target, Type: devices.DeviceTypeDLNA}, nil
}

// describeTarget fills in the friendly name of a DLNA target and warns
// when a Chromecast target does not answer on its cast port.
func describeTarget(ctx context.Context, d devices.Device, logger zerolog.Logger) devices.Device {
	switch d.Type {
	case devices.DeviceTypeDLNA:
		name, err := soapcalls.GetFriendlyName(ctx, d.Addr)
		if err != nil {
			logger.Warn().Str("Method", "describeTarget").Err(err).Msg("no device description")
			return d
		}
		if name != "" {
			d.Name = name
		}
	case devices.DeviceTypeChromecast:
		u, err := url.Parse(d.Addr)
		if err == nil && !utils.HostPortIsAlive(u.Host) {
			logger.Warn().Str("Method", "describeTarget").Str("Target", u.Host).Msg("receiver not reachable")
		}
	}
	return d
}

func checkVflag() error {
	if *videoArg == "" {
		return nil
	}
	if _, err := os.Stat(*videoArg); err != nil {
		return errors.Wrap(err, "checkVflag error")
	}
	return nil
}

// checkSflag validates -s. Without it, a .srt next to the video is used
// when present.
func checkSflag() error {
	if *subsArg != "" {
		if _, err := os.Stat(*subsArg); err != nil {
			return errors.Wrap(err, "checkSflag error")
		}
		return nil
	}

	if *videoArg == "" {
		return nil
	}
	if srt := subtitlesFor(*videoArg); srt != "" {
		*subsArg = srt
	}
	return nil
}

func subtitlesFor(video string) string {
	for _, ext := range []string{".srt", ".vtt"} {
		candidate := video[:len(video)-len(filepath.Ext(video))] + ext
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func checkVerflag() bool {
	if *versionPtr {
		fmt.Printf("castvideos Version: %s, ", version)
		fmt.Printf("Build: %s\n", build)
		return true
	}
	return false
}

func checkDflag() error {
	if *devicePtr < 0 {
		return errors.New("checkDflag: device number must be positive")
	}
	if *devicePtr > 0 && *targetPtr != "" {
		return errors.New("checkDflag: -d and -t are mutually exclusive")
	}
	return nil
}

func checkflags() error {
	if err := checkVflag(); err != nil {
		return errors.Wrap(err, "checkflags error")
	}
	if err := checkSflag(); err != nil {
		return errors.Wrap(err, "checkflags error")
	}
	if err := checkDflag(); err != nil {
		return errors.Wrap(err, "checkflags error")
	}
	return nil
}
