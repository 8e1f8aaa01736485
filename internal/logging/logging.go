// Package logging points the standard logger at stderr plus an optional
// rotating file and any extra sinks such as the web log tail.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// File enables a rotating log file when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	Extra []io.Writer
}

// NewWriter builds the fan-out writer. The closer releases the rotating file
// and is safe to call when no file is configured.
func NewWriter(console io.Writer, opts Options) (io.Writer, io.Closer) {
	writers := make([]io.Writer, 0, 2+len(opts.Extra))
	if console != nil {
		writers = append(writers, console)
	}

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(opts.File); path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, lj)
		closer = lj
	}
	for _, w := range opts.Extra {
		if w != nil {
			writers = append(writers, w)
		}
	}
	return io.MultiWriter(writers...), closer
}

// Setup installs NewWriter(os.Stderr, opts) as the standard logger output.
func Setup(opts Options) io.Closer {
	w, closer := NewWriter(os.Stderr, opts)
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
