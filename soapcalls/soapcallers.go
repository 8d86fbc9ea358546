// Package soapcalls is a small UPnP AVTransport client for DLNA media
// renderers.
package soapcalls

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castvideos/utils"
)

// ErrSOAPStatus is returned when the renderer answers with a non 2xx
// status, usually a UPnP fault.
var ErrSOAPStatus = errors.New("soap call failed")

// TVPayload talks to one renderer's AVTransport service.
type TVPayload struct {
	ControlURL  string
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
	client      *http.Client
}

// PositionInfo is the decoded GetPositionInfo response. Times are seconds,
// zero when the renderer does not know them.
type PositionInfo struct {
	TrackURI string
	RelTime  float64
	Duration float64
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (p *TVPayload) Log() *zerolog.Logger {
	if p.LogOutput != nil {
		p.initLogOnce.Do(func() {
			p.Logger = zerolog.New(p.LogOutput).With().Timestamp().Logger()
		})
	}
	return &p.Logger
}

// NewTVPayload returns a client for the AVTransport control URL.
func NewTVPayload(controlURL string, logger zerolog.Logger) *TVPayload {
	return &TVPayload{
		ControlURL: controlURL,
		Logger:     logger,
		client:     newRetryableHTTPClient(3),
	}
}

func (p *TVPayload) httpClient() *http.Client {
	if p.client == nil {
		p.client = newRetryableHTTPClient(3)
	}
	return p.client
}

// sendAction posts a SOAP body for action and returns the response body.
func (p *TVPayload) sendAction(ctx context.Context, action string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ControlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s POST error: %w", action, err)
	}

	req.Header = http.Header{
		"SOAPAction":   []string{`"` + avTransportType + `#` + action + `"`},
		"content-type": []string{"text/xml"},
		"charset":      []string{"utf-8"},
		"Connection":   []string{"close"},
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		p.Log().Error().Str("Method", action).Err(err).Msg("request failed")
		return nil, fmt.Errorf("%s Do POST error: %w", action, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s read error: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.Log().Error().Str("Method", action).Int("Status", resp.StatusCode).Msg("renderer refused action")
		if code := parseUPnPError(out); code != "" {
			return nil, errors.Wrapf(ErrSOAPStatus, "%s: HTTP %d, UPnP error %s", action, resp.StatusCode, code)
		}
		return nil, errors.Wrapf(ErrSOAPStatus, "%s: HTTP %d", action, resp.StatusCode)
	}

	p.Log().Debug().Str("Method", action).Msg("ok")
	return out, nil
}

// SetAVTransportURI makes m the current item of the renderer.
func (p *TVPayload) SetAVTransportURI(ctx context.Context, m MediaRef) error {
	body, err := setAVTransportSoapBuild(m)
	if err != nil {
		return fmt.Errorf("SetAVTransportURI soap build error: %w", err)
	}
	_, err = p.sendAction(ctx, "SetAVTransportURI", body)
	return err
}

// SetNextAVTransportURI queues m after the current item.
func (p *TVPayload) SetNextAVTransportURI(ctx context.Context, m MediaRef) error {
	body, err := setNextAVTransportSoapBuild(m)
	if err != nil {
		return fmt.Errorf("SetNextAVTransportURI soap build error: %w", err)
	}
	_, err = p.sendAction(ctx, "SetNextAVTransportURI", body)
	return err
}

// ClearNextAVTransportURI drops whatever the renderer would play next.
func (p *TVPayload) ClearNextAVTransportURI(ctx context.Context) error {
	return p.simpleAction(ctx, "SetNextAVTransportURI", clearNextAVTransportSoapBuild)
}

func (p *TVPayload) Play(ctx context.Context) error  { return p.simpleAction(ctx, "Play", playSoapBuild) }
func (p *TVPayload) Pause(ctx context.Context) error { return p.simpleAction(ctx, "Pause", pauseSoapBuild) }
func (p *TVPayload) Stop(ctx context.Context) error  { return p.simpleAction(ctx, "Stop", stopSoapBuild) }

func (p *TVPayload) simpleAction(ctx context.Context, action string, build func() ([]byte, error)) error {
	body, err := build()
	if err != nil {
		return fmt.Errorf("%s soap build error: %w", action, err)
	}
	_, err = p.sendAction(ctx, action, body)
	return err
}

// Seek moves the current item to secs.
func (p *TVPayload) Seek(ctx context.Context, secs float64) error {
	body, err := seekSoapBuild(secs)
	if err != nil {
		return fmt.Errorf("Seek soap build error: %w", err)
	}
	_, err = p.sendAction(ctx, "Seek", body)
	return err
}

// GetTransportInfo returns the renderer transport state, e.g. "PLAYING" or
// "PAUSED_PLAYBACK".
func (p *TVPayload) GetTransportInfo(ctx context.Context) (string, error) {
	body, err := getTransportInfoSoapBuild()
	if err != nil {
		return "", fmt.Errorf("GetTransportInfo soap build error: %w", err)
	}

	out, err := p.sendAction(ctx, "GetTransportInfo", body)
	if err != nil {
		return "", err
	}

	return parseTransportInfo(out)
}

// GetPositionInfo returns the current track and its position.
func (p *TVPayload) GetPositionInfo(ctx context.Context) (PositionInfo, error) {
	body, err := getPositionInfoSoapBuild()
	if err != nil {
		return PositionInfo{}, fmt.Errorf("GetPositionInfo soap build error: %w", err)
	}

	out, err := p.sendAction(ctx, "GetPositionInfo", body)
	if err != nil {
		return PositionInfo{}, err
	}

	return parsePositionInfo(out)
}

type positionInfoResponse struct {
	XMLName       xml.Name `xml:"Envelope"`
	TrackURI      string   `xml:"Body>GetPositionInfoResponse>TrackURI"`
	RelTime       string   `xml:"Body>GetPositionInfoResponse>RelTime"`
	TrackDuration string   `xml:"Body>GetPositionInfoResponse>TrackDuration"`
}

type transportInfoResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	State   string   `xml:"Body>GetTransportInfoResponse>CurrentTransportState"`
}

func parseTransportInfo(b []byte) (string, error) {
	var r transportInfoResponse
	if err := xml.Unmarshal(b, &r); err != nil {
		return "", fmt.Errorf("GetTransportInfo unmarshal error: %w", err)
	}
	return r.State, nil
}

func parsePositionInfo(b []byte) (PositionInfo, error) {
	var r positionInfoResponse
	if err := xml.Unmarshal(b, &r); err != nil {
		return PositionInfo{}, fmt.Errorf("GetPositionInfo unmarshal error: %w", err)
	}

	info := PositionInfo{TrackURI: r.TrackURI}
	// Renderers answer NOT_IMPLEMENTED or leave fields empty when idle.
	if t, err := utils.ParseHMS(r.RelTime); err == nil {
		info.RelTime = t
	}
	if t, err := utils.ParseHMS(r.TrackDuration); err == nil {
		info.Duration = t
	}

	return info, nil
}
