// Package httphandlers exposes local media files and subtitles to
// receivers over HTTP, with the DLNA headers renderers look for.
package httphandlers

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castvideos/utils"
)

// ErrNotServing is returned by URL helpers before the server listens.
var ErrNotServing = errors.New("http server is not listening")

// HTTPserver serves registered files and in-memory payloads.
type HTTPserver struct {
	http     *http.Server
	Mux      *http.ServeMux
	handlers map[string]servedItem
	addr     string
	mu       sync.Mutex
	Logger   zerolog.Logger
}

// servedItem is either a file on disk or an in-memory payload.
type servedItem struct {
	path      string
	data      []byte
	mediaType string
	isMedia   bool
}

// NewServer returns a server that will listen on addr (ip:port).
func NewServer(addr string, logger zerolog.Logger) *HTTPserver {
	mux := http.NewServeMux()
	s := &HTTPserver{
		http:     &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		Mux:      mux,
		handlers: make(map[string]servedItem),
		Logger:   logger,
	}
	mux.HandleFunc("/", s.ServeMediaHandler())

	return s
}

// StartServer listens and serves until StopServer. The listen outcome is
// reported on serverStarted before serving begins.
func (s *HTTPserver) StartServer(serverStarted chan<- error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		serverStarted <- fmt.Errorf("server listen error: %w", err)
		return
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.Logger.Debug().Str("Method", "StartServer").Str("Addr", ln.Addr().String()).Msg("serving")
	serverStarted <- nil
	_ = s.http.Serve(ln)
}

// StopServer forcefully closes the HTTP server.
func (s *HTTPserver) StopServer() {
	s.http.Close()
}

// Addr returns the address the server listens on.
func (s *HTTPserver) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// urlFor returns the URL of a handler key. Keys are unescaped paths.
func (s *HTTPserver) urlFor(dir, name string) (string, error) {
	addr := s.Addr()
	if addr == "" {
		return "", ErrNotServing
	}
	return "http://" + addr + dir + utils.ConvertFilename(name), nil
}

// ServeFile exposes the media file at path and returns its URL.
func (s *HTTPserver) ServeFile(path, mediaType string) (string, error) {
	name := filepath.Base(path)
	s.addHandler("/"+name, servedItem{path: path, mediaType: mediaType, isMedia: true})
	return s.urlFor("/", name)
}

// ServeSubtitles exposes a subtitle file as WebVTT and returns its URL.
// SRT files are converted on registration.
func (s *HTTPserver) ServeSubtitles(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		data, err = utils.ConvertSRTtoWebVTT(path)
	case ".vtt":
		data, err = os.ReadFile(path)
	default:
		return "", fmt.Errorf("ServeSubtitles: unsupported subtitle file %q", path)
	}
	if err != nil {
		return "", errors.Wrap(err, "ServeSubtitles")
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".vtt"
	s.addHandler("/subs/"+base, servedItem{data: data, mediaType: "text/vtt"})

	return s.urlFor("/subs/", base)
}

func (s *HTTPserver) addHandler(urlPath string, item servedItem) {
	s.mu.Lock()
	s.handlers[urlPath] = item
	s.mu.Unlock()
}

// ServeMediaHandler is a helper method used to properly handle media and subtitle streaming.
func (s *HTTPserver) ServeMediaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		item, exists := s.handlers[r.URL.Path]
		s.mu.Unlock()

		if !exists {
			http.Error(w, "not exists", http.StatusNotFound)
			return
		}

		if item.path == "" {
			serveContent(w, r, item, bytes.NewReader(item.data), time.Now())
			return
		}

		f, err := os.Open(item.path)
		if err != nil {
			s.Logger.Error().Str("Method", "ServeMediaHandler").Err(err).Msg("open failed")
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.NotFound(w, r)
			return
		}

		serveContent(w, r, item, f, info.ModTime())
	}
}

func serveContent(w http.ResponseWriter, r *http.Request, item servedItem, f io.ReadSeeker, modTime time.Time) {
	w.Header()["transferMode.dlna.org"] = []string{"Interactive"}
	if item.isMedia {
		w.Header()["transferMode.dlna.org"] = []string{"Streaming"}
		w.Header()["realTimeInfo.dlna.org"] = []string{"DLNA.ORG_TLAG=*"}
	}
	if item.mediaType != "" {
		w.Header()["Content-Type"] = []string{item.mediaType}
	}
	if r.Header.Get("getcontentFeatures.dlna.org") == "1" {
		w.Header()["contentFeatures.dlna.org"] = []string{utils.BuildContentFeatures(item.mediaType)}
	}

	switch r.Method {
	case http.MethodGet:
		name := strings.TrimLeft(r.URL.Path, "/")
		http.ServeContent(w, r, name, modTime, f)
	case http.MethodHead:
		size, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			http.Error(w, "cant get file size", http.StatusInternalServerError)
			return
		}

		w.Header()["Content-Length"] = []string{strconv.FormatInt(size, 10)}
		if !modTime.IsZero() && !modTime.Equal(time.Unix(0, 0)) {
			w.Header().Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
