package soapcalls

import (
	"encoding/xml"
	"fmt"
	"strings"

	"go2tv.app/castvideos/utils"
)

const (
	soapSchema      = "http://schemas.xmlsoap.org/soap/envelope/"
	soapEncoding    = "http://schemas.xmlsoap.org/soap/encoding/"
	avTransportType = "urn:schemas-upnp-org:service:AVTransport:1"
	xmlHeader       = `<?xml version="1.0" encoding="utf-8"?>`
)

type soapEnvelope struct {
	XMLName  xml.Name `xml:"s:Envelope"`
	Schema   string   `xml:"xmlns:s,attr"`
	Encoding string   `xml:"s:encodingStyle,attr"`
	Body     soapBody `xml:"s:Body"`
}

type soapBody struct {
	Action any
}

type playAction struct {
	XMLName     xml.Name `xml:"u:Play"`
	AVTransport string   `xml:"xmlns:u,attr"`
	InstanceID  string
	Speed       string
}

type pauseAction struct {
	XMLName     xml.Name `xml:"u:Pause"`
	AVTransport string   `xml:"xmlns:u,attr"`
	InstanceID  string
}

type stopAction struct {
	XMLName     xml.Name `xml:"u:Stop"`
	AVTransport string   `xml:"xmlns:u,attr"`
	InstanceID  string
}

type seekAction struct {
	XMLName     xml.Name `xml:"u:Seek"`
	AVTransport string   `xml:"xmlns:u,attr"`
	InstanceID  string
	Unit        string
	Target      string
}

type setAVTransportURIAction struct {
	XMLName            xml.Name `xml:"u:SetAVTransportURI"`
	AVTransport        string   `xml:"xmlns:u,attr"`
	InstanceID         string
	CurrentURI         string
	CurrentURIMetaData metaData `xml:"CurrentURIMetaData"`
}

type setNextAVTransportURIAction struct {
	XMLName         xml.Name `xml:"u:SetNextAVTransportURI"`
	AVTransport     string   `xml:"xmlns:u,attr"`
	InstanceID      string
	NextURI         string
	NextURIMetaData metaData `xml:"NextURIMetaData"`
}

type getTransportInfoAction struct {
	XMLName     xml.Name `xml:"u:GetTransportInfo"`
	AVTransport string   `xml:"xmlns:u,attr"`
	InstanceID  string
}

type getPositionInfoAction struct {
	XMLName     xml.Name `xml:"u:GetPositionInfo"`
	AVTransport string   `xml:"xmlns:u,attr"`
	InstanceID  string
}

// metaData carries an escaped DIDL-Lite document.
type metaData struct {
	Value []byte `xml:",chardata"`
}

type didlLite struct {
	XMLName    xml.Name `xml:"DIDL-Lite"`
	SchemaDIDL string   `xml:"xmlns,attr"`
	DC         string   `xml:"xmlns:dc,attr"`
	Sec        string   `xml:"xmlns:sec,attr"`
	SchemaUPNP string   `xml:"xmlns:upnp,attr"`
	Item       didlItem `xml:"item"`
}

type didlItem struct {
	ID               string        `xml:"id,attr"`
	ParentID         string        `xml:"parentID,attr"`
	Restricted       string        `xml:"restricted,attr"`
	SecCaptionInfo   *captionInfo  `xml:"sec:CaptionInfo,omitempty"`
	SecCaptionInfoEx *captionInfo  `xml:"sec:CaptionInfoEx,omitempty"`
	DCtitle          string        `xml:"dc:title"`
	UPNPClass        string        `xml:"upnp:class"`
	Res              []didlResNode `xml:"res"`
}

type captionInfo struct {
	Type  string `xml:"sec:type,attr"`
	Value string `xml:",chardata"`
}

type didlResNode struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	Value        string `xml:",chardata"`
}

// MediaRef is what a renderer needs to know about an item.
type MediaRef struct {
	URL          string
	Type         string // MIME type
	Title        string
	SubtitlesURL string // WebVTT or SRT, optional
}

func buildSOAP(action any) ([]byte, error) {
	env := soapEnvelope{
		Schema:   soapSchema,
		Encoding: soapEncoding,
		Body:     soapBody{Action: action},
	}

	b, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("soap build: %w", err)
	}

	return append([]byte(xmlHeader), b...), nil
}

func upnpClass(mediaType string) string {
	switch {
	case strings.HasPrefix(mediaType, "audio/"):
		return "object.item.audioItem.musicTrack"
	case strings.HasPrefix(mediaType, "image/"):
		return "object.item.imageItem.photo"
	default:
		return "object.item.videoItem.movie"
	}
}

func didlMetadata(m MediaRef) ([]byte, error) {
	title := m.Title
	if title == "" {
		title = m.URL
	}

	item := didlItem{
		ID:         "1",
		ParentID:   "0",
		Restricted: "1",
		DCtitle:    title,
		UPNPClass:  upnpClass(m.Type),
		Res: []didlResNode{{
			ProtocolInfo: "http-get:*:" + m.Type + ":" + utils.BuildContentFeatures(m.Type),
			Value:        m.URL,
		}},
	}

	if m.SubtitlesURL != "" {
		subType := "srt"
		if strings.HasSuffix(strings.ToLower(m.SubtitlesURL), ".vtt") {
			subType = "vtt"
		}
		item.SecCaptionInfo = &captionInfo{Type: subType, Value: m.SubtitlesURL}
		item.SecCaptionInfoEx = &captionInfo{Type: subType, Value: m.SubtitlesURL}
		item.Res = append(item.Res, didlResNode{
			ProtocolInfo: "http-get:*:text/" + subType + ":*",
			Value:        m.SubtitlesURL,
		})
	}

	l := didlLite{
		SchemaDIDL: "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/",
		DC:         "http://purl.org/dc/elements/1.1/",
		Sec:        "http://www.sec.co.kr/",
		SchemaUPNP: "urn:schemas-upnp-org:metadata-1-0/upnp/",
		Item:       item,
	}

	b, err := xml.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("didl build: %w", err)
	}
	return b, nil
}

func setAVTransportSoapBuild(m MediaRef) ([]byte, error) {
	meta, err := didlMetadata(m)
	if err != nil {
		return nil, err
	}

	return buildSOAP(setAVTransportURIAction{
		AVTransport:        avTransportType,
		InstanceID:         "0",
		CurrentURI:         m.URL,
		CurrentURIMetaData: metaData{Value: meta},
	})
}

func setNextAVTransportSoapBuild(m MediaRef) ([]byte, error) {
	meta, err := didlMetadata(m)
	if err != nil {
		return nil, err
	}

	return buildSOAP(setNextAVTransportURIAction{
		AVTransport:     avTransportType,
		InstanceID:      "0",
		NextURI:         m.URL,
		NextURIMetaData: metaData{Value: meta},
	})
}

// clearNextAVTransportSoapBuild empties the renderer's next slot.
func clearNextAVTransportSoapBuild() ([]byte, error) {
	return buildSOAP(setNextAVTransportURIAction{
		AVTransport: avTransportType,
		InstanceID:  "0",
	})
}

func playSoapBuild() ([]byte, error) {
	return buildSOAP(playAction{AVTransport: avTransportType, InstanceID: "0", Speed: "1"})
}

func pauseSoapBuild() ([]byte, error) {
	return buildSOAP(pauseAction{AVTransport: avTransportType, InstanceID: "0"})
}

func stopSoapBuild() ([]byte, error) {
	return buildSOAP(stopAction{AVTransport: avTransportType, InstanceID: "0"})
}

func seekSoapBuild(secs float64) ([]byte, error) {
	return buildSOAP(seekAction{
		AVTransport: avTransportType,
		InstanceID:  "0",
		Unit:        "REL_TIME",
		Target:      utils.FormatHMS(secs),
	})
}

func getTransportInfoSoapBuild() ([]byte, error) {
	return buildSOAP(getTransportInfoAction{AVTransport: avTransportType, InstanceID: "0"})
}

func getPositionInfoSoapBuild() ([]byte, error) {
	return buildSOAP(getPositionInfoAction{AVTransport: avTransportType, InstanceID: "0"})
}
