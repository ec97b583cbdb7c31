// Package logging constructs the prefixed loggers used across the
// bridge. Each subsystem logs with a bracketed prefix so interleaved
// daemon output stays attributable.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures logger construction.
type Options struct {
	// File receives a rotated copy of all output. Empty disables the
	// file sink.
	File string

	// Quiet suppresses stderr; logs still reach the file sink.
	Quiet bool

	// MaxSizeMB caps each log file before rotation. Defaults to 10.
	MaxSizeMB int

	// MaxBackups bounds the retained rotated files. Defaults to 3.
	MaxBackups int
}

// Setup builds the shared output sink. Call once at startup, then hand
// the returned writer to New for each subsystem.
func Setup(opts Options) io.Writer {
	var sinks []io.Writer
	if !opts.Quiet {
		sinks = append(sinks, os.Stderr)
	}
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize == 0 {
			maxSize = 10
		}
		maxBackups := opts.MaxBackups
		if maxBackups == 0 {
			maxBackups = 3
		}
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		})
	}
	switch len(sinks) {
	case 0:
		return io.Discard
	case 1:
		return sinks[0]
	default:
		return io.MultiWriter(sinks...)
	}
}

// New returns a logger writing to w with a bracketed subsystem prefix,
// e.g. New(w, "import") logs as "[import] ...".
func New(w io.Writer, subsystem string) *log.Logger {
	return log.New(w, "["+subsystem+"] ", log.LstdFlags)
}
