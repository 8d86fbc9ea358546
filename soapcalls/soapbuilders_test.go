package soapcalls

import (
	"strings"
	"testing"
)

func TestSimpleActionBuilders(t *testing.T) {
	const prefix = `<?xml version="1.0" encoding="utf-8"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`
	const suffix = `</s:Body></s:Envelope>`

	tt := []struct {
		name  string
		build func() ([]byte, error)
		want  string
	}{
		{"play", playSoapBuild, `<u:Play xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><InstanceID>0</InstanceID><Speed>1</Speed></u:Play>`},
		{"pause", pauseSoapBuild, `<u:Pause xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><InstanceID>0</InstanceID></u:Pause>`},
		{"stop", stopSoapBuild, `<u:Stop xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><InstanceID>0</InstanceID></u:Stop>`},
		{"seek", func() ([]byte, error) { return seekSoapBuild(65.7) }, `<u:Seek xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><InstanceID>0</InstanceID><Unit>REL_TIME</Unit><Target>00:01:05</Target></u:Seek>`},
		{"transport info", getTransportInfoSoapBuild, `<u:GetTransportInfo xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><InstanceID>0</InstanceID></u:GetTransportInfo>`},
		{"position info", getPositionInfoSoapBuild, `<u:GetPositionInfo xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><InstanceID>0</InstanceID></u:GetPositionInfo>`},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.build()
			if err != nil {
				t.Fatalf("%s: build failed: %s", tc.name, err.Error())
			}
			if want := prefix + tc.want + suffix; string(out) != want {
				t.Fatalf("%s: got: %s, want: %s.", tc.name, out, want)
			}
		})
	}
}

func TestSetAVTransportSoapBuild(t *testing.T) {
	m := MediaRef{
		URL:          "http://192.168.88.250:3500/video%20example.mp4",
		Type:         "video/mp4",
		Title:        "Tom & Jerry",
		SubtitlesURL: "http://192.168.88.250:3500/video_example.vtt",
	}

	out, err := setAVTransportSoapBuild(m)
	if err != nil {
		t.Fatalf("setAVTransportSoapBuild: %s", err.Error())
	}

	s := string(out)
	for _, want := range []string{
		`<u:SetAVTransportURI xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">`,
		`<CurrentURI>http://192.168.88.250:3500/video%20example.mp4</CurrentURI>`,
		`&lt;dc:title&gt;Tom &amp;amp; Jerry&lt;/dc:title&gt;`,
		`&lt;upnp:class&gt;object.item.videoItem.movie&lt;/upnp:class&gt;`,
		`http-get:*:video/mp4:DLNA.ORG_PN=AVC_MP4_MP_SD_AAC_MULT5;DLNA.ORG_OP=01`,
		`&lt;sec:CaptionInfo sec:type=&#34;vtt&#34;&gt;http://192.168.88.250:3500/video_example.vtt`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("setAVTransportSoapBuild output is missing %s\n%s", want, s)
		}
	}
}

func TestClearNextAVTransportSoapBuild(t *testing.T) {
	out, err := clearNextAVTransportSoapBuild()
	if err != nil {
		t.Fatalf("clearNextAVTransportSoapBuild: %s", err.Error())
	}

	s := string(out)
	for _, want := range []string{`<NextURI></NextURI>`, `<NextURIMetaData></NextURIMetaData>`} {
		if !strings.Contains(s, want) {
			t.Fatalf("clearNextAVTransportSoapBuild output is missing %s\n%s", want, s)
		}
	}
}

func TestSetNextAVTransportSoapBuild(t *testing.T) {
	out, err := setNextAVTransportSoapBuild(MediaRef{URL: "http://example.com/song.mp3", Type: "audio/mpeg"})
	if err != nil {
		t.Fatalf("setNextAVTransportSoapBuild: %s", err.Error())
	}

	s := string(out)
	for _, want := range []string{
		`<NextURI>http://example.com/song.mp3</NextURI>`,
		`object.item.audioItem.musicTrack`,
		`&lt;dc:title&gt;http://example.com/song.mp3&lt;/dc:title&gt;`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("setNextAVTransportSoapBuild output is missing %s\n%s", want, s)
		}
	}
	if strings.Contains(s, "CaptionInfo") {
		t.Fatal("no caption info expected without subtitles")
	}
}
