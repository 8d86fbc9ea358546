// Package devices discovers cast receivers: DLNA media renderers over SSDP
// and Chromecasts over mDNS.
package devices

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/alexballas/go-ssdp"
	"github.com/pkg/errors"

	"go2tv.app/castvideos/soapcalls"
)

var (
	ErrNoDeviceAvailable  = errors.New("loadSSDPservices: No available Media Renderers")
	ErrDeviceNotAvailable = errors.New("devicePicker: Requested device not available")
)

// Device types.
const (
	DeviceTypeDLNA       = "DLNA"
	DeviceTypeChromecast = "Chromecast"
)

// Device is a discovered receiver. Addr is the device description URL for
// DLNA renderers and "http://host:port" for Chromecasts.
type Device struct {
	Name        string
	Addr        string
	Type        string
	IsAudioOnly bool
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Type)
}

// Hooks replaced in tests.
var (
	ssdpSearch              = ssdp.Search
	loadDevicesFromLocation = soapcalls.DMRextractor
)

// LoadSSDPservices returns the media renderers that expose an AVTransport
// service, sorted by name. Devices are searched for delay seconds.
func LoadSSDPservices(ctx context.Context, delay int) ([]Device, error) {
	list, err := ssdpSearch(ssdp.All, delay, "")
	if err != nil {
		return nil, fmt.Errorf("LoadSSDPservices search error: %w", err)
	}

	seen := make(map[string]bool)
	var out []Device
	for _, srv := range list {
		// Renderers answer ssdp:all with several service types; the
		// description behind one location is enough.
		if srv.Location == "" || seen[srv.Location] {
			continue
		}
		seen[srv.Location] = true

		dmr, err := loadDevicesFromLocation(ctx, srv.Location)
		if err != nil || dmr.AvtransportControlURL == "" {
			continue
		}

		name := dmr.FriendlyName
		if name == "" {
			name = srv.Server
		}
		out = append(out, Device{Name: name, Addr: srv.Location, Type: DeviceTypeDLNA})
	}

	if len(out) == 0 {
		return nil, ErrNoDeviceAvailable
	}

	sortDevices(out)
	return out, nil
}

// LoadAllDevices runs DLNA and Chromecast discovery and merges the results.
// An empty result is reported as ErrNoDeviceAvailable.
func LoadAllDevices(ctx context.Context, delay int) ([]Device, error) {
	type result struct {
		devs []Device
		err  error
	}

	dlna := make(chan result, 1)
	go func() {
		devs, err := LoadSSDPservices(ctx, delay)
		dlna <- result{devs, err}
	}()

	out := DiscoverChromecasts(ctx, chromecastBrowseTimeout(delay))

	r := <-dlna
	if r.err != nil && !errors.Is(r.err, ErrNoDeviceAvailable) {
		return nil, r.err
	}
	out = append(out, r.devs...)

	if len(out) == 0 {
		return nil, ErrNoDeviceAvailable
	}

	sortDevices(out)
	return out, nil
}

// DevicePicker will pick the nth (1 based) device.
func DevicePicker(devs []Device, n int) (Device, error) {
	if n > len(devs) || n <= 0 {
		return Device{}, ErrDeviceNotAvailable
	}
	return devs[n-1], nil
}

func sortDevices(devs []Device) {
	slices.SortFunc(devs, func(a, b Device) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.Addr, b.Addr)
	})
}
