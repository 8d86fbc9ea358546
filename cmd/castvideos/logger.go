package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castvideos/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the process logger from the settings: a console writer
// on stderr, or JSON lines appended to the log file. The terminal UI owns
// the screen, so the file is the default.
func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrap(err, "log level")
	}
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogOutput == "stderr" {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
		return zerolog.New(w).Level(level).With().Timestamp().Logger(), nopCloser{}, nil
	}

	path := cfg.DefaultLogFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return zerolog.Nop(), nil, errors.Wrap(err, "log dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrap(err, "log file")
	}

	l := zerolog.New(f).Level(level).With().Timestamp()
	if level <= zerolog.DebugLevel {
		l = l.Caller()
	}
	return l.Logger(), f, nil
}
