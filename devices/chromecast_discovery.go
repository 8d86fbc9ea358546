package devices

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// CapabilityVideoOut is the bitmask for video output capability (bit 0)
	CapabilityVideoOut = 1

	googlecastService = "_googlecast._tcp"
	// mDNS query timeout per request
	chromecastQueryTimeout = 750 * time.Millisecond
)

// mdnsQuery is replaced in tests.
var mdnsQuery = mdns.Query

func chromecastBrowseTimeout(delay int) time.Duration {
	if delay <= 0 {
		return chromecastQueryTimeout
	}
	return time.Duration(delay) * time.Second
}

// chromecastFromEntry turns an mDNS answer into a Device. The friendly name
// comes from the "fn" TXT field, audio only devices are told apart by the
// "ca" capability field.
func chromecastFromEntry(entry *mdns.ServiceEntry) (Device, bool) {
	if entry == nil || entry.AddrV4 == nil {
		return Device{}, false
	}
	if !strings.Contains(entry.Name, "_googlecast") {
		return Device{}, false
	}

	friendlyName := entry.Name
	isAudioOnly := false
	for _, txt := range entry.InfoFields {
		if after, ok := strings.CutPrefix(txt, "fn="); ok {
			friendlyName = after
		}
		if after, ok := strings.CutPrefix(txt, "ca="); ok {
			isAudioOnly = isChromecastAudioOnly(after)
		}
	}

	if idx := strings.Index(friendlyName, "._googlecast"); idx > 0 {
		friendlyName = friendlyName[:idx]
	}

	return Device{
		Name:        friendlyName,
		Addr:        fmt.Sprintf("http://%s:%d", entry.AddrV4, entry.Port),
		Type:        DeviceTypeChromecast,
		IsAudioOnly: isAudioOnly,
	}, true
}

// DiscoverChromecasts browses for Chromecasts for the given time on every
// active interface. Machines with several adapters (VPN, Docker, ...) may
// not reach the cast network through the default one.
func DiscoverChromecasts(ctx context.Context, timeout time.Duration) []Device {
	entriesCh := make(chan *mdns.ServiceEntry, 256)
	found := make(map[string]Device)
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		for entry := range entriesCh {
			if d, ok := chromecastFromEntry(entry); ok {
				found[d.Addr] = d
			}
		}
	}()

	queryIface := func(iface *net.Interface) {
		if ctx.Err() != nil {
			return
		}
		params := mdns.DefaultParams(googlecastService)
		params.Entries = entriesCh
		params.Timeout = timeout
		params.DisableIPv6 = true
		params.WantUnicastResponse = true
		params.Logger = log.New(io.Discard, "", 0)
		params.Interface = iface
		_ = mdnsQuery(params)
	}

	interfaces := getActiveNetworkInterfaces()
	if len(interfaces) == 0 {
		queryIface(nil)
	} else {
		var wg sync.WaitGroup
		for _, iface := range interfaces {
			wg.Go(func() { queryIface(&iface) })
		}
		wg.Wait()
	}

	close(entriesCh)
	<-doneCh

	out := make([]Device, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	sortDevices(out)

	return out
}

// getActiveNetworkInterfaces returns all network interfaces that are up,
// multicast-capable, not loopback, and have an IPv4 address.
func getActiveNetworkInterfaces() []net.Interface {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var active []net.Interface
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				active = append(active, iface)
				break
			}
		}
	}

	return active
}

// isChromecastAudioOnly checks the "ca" capability bitmask. Without the
// video out bit the device is audio only (Chromecast Audio, Google Home
// speakers). Unparsable values count as video capable.
func isChromecastAudioOnly(caField string) bool {
	ca, err := strconv.Atoi(caField)
	if err != nil {
		return false
	}
	return (ca & CapabilityVideoOut) == 0
}
