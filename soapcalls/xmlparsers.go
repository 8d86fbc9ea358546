package soapcalls

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoAVTransport is returned when a device description has no
// AVTransport service.
var ErrNoAVTransport = errors.New("device has no AVTransport service")

type rootNode struct {
	XMLName xml.Name `xml:"root"`
	URLBase string   `xml:"URLBase"`
	Device  struct {
		FriendlyName string `xml:"friendlyName"`
		ServiceList  struct {
			Services []struct {
				Type        string `xml:"serviceType"`
				ID          string `xml:"serviceId"`
				ControlURL  string `xml:"controlURL"`
				EventSubURL string `xml:"eventSubURL"`
			} `xml:"service"`
		} `xml:"serviceList"`
	} `xml:"device"`
}

type upnpFault struct {
	XMLName   xml.Name `xml:"Envelope"`
	ErrorCode string   `xml:"Body>Fault>detail>UPnPError>errorCode"`
}

// DMRextracted stores the services URLs of a media renderer.
type DMRextracted struct {
	FriendlyName           string
	AvtransportControlURL  string
	AvtransportEventSubURL string
	RenderingControlURL    string
}

// DMRextractor fetches the device description at dmrurl and extracts the
// service URLs.
func DMRextractor(ctx context.Context, dmrurl string) (*DMRextracted, error) {
	body, err := fetchDescription(ctx, dmrurl)
	if err != nil {
		return nil, err
	}

	return parseDMR(dmrurl, body)
}

func fetchDescription(ctx context.Context, dmrurl string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dmrurl, nil)
	if err != nil {
		return nil, fmt.Errorf("DMRextractor GET error: %w", err)
	}
	req.Header.Set("Connection", "close")

	resp, err := newRetryableHTTPClient(2).Do(req)
	if err != nil {
		return nil, fmt.Errorf("DMRextractor Do GET error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DMRextractor GET: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("DMRextractor read error: %w", err)
	}
	return body, nil
}

func parseDMR(dmrurl string, body []byte) (*DMRextracted, error) {
	var root rootNode
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("DMRextractor unmarshal error: %w", err)
	}

	base, err := url.Parse(dmrurl)
	if err != nil {
		return nil, fmt.Errorf("DMRextractor parse error: %w", err)
	}
	if root.URLBase != "" {
		if b, err := url.Parse(root.URLBase); err == nil {
			base = b
		}
	}

	resolve := func(ref string) string {
		if !strings.HasPrefix(ref, "/") && !strings.Contains(ref, "://") {
			ref = "/" + ref
		}
		u, err := base.Parse(ref)
		if err != nil {
			return ""
		}
		return u.String()
	}

	ex := &DMRextracted{FriendlyName: strings.TrimSpace(root.Device.FriendlyName)}
	for _, service := range root.Device.ServiceList.Services {
		switch service.ID {
		case "urn:upnp-org:serviceId:AVTransport":
			ex.AvtransportControlURL = resolve(service.ControlURL)
			ex.AvtransportEventSubURL = resolve(service.EventSubURL)
		case "urn:upnp-org:serviceId:RenderingControl":
			ex.RenderingControlURL = resolve(service.ControlURL)
		}
	}

	if ex.AvtransportControlURL == "" {
		return nil, ErrNoAVTransport
	}

	return ex, nil
}

// parseUPnPError returns the errorCode of a SOAP fault body, if any.
func parseUPnPError(body []byte) string {
	var f upnpFault
	if err := xml.Unmarshal(body, &f); err != nil {
		return ""
	}
	return f.ErrorCode
}
