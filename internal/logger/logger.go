// Package logger builds the zerolog logger shared by one billy invocation.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	// Path of the rotating log file. Empty disables the file sink.
	Path  string
	Level string
	// Console mirrors log lines on Console in human-readable form.
	Console io.Writer
}

// Logger is the project-wide logging type.
type Logger = zerolog.Logger

// New returns a logger writing JSON lines to a rotating file and, when
// requested, to a console writer. The returned closer flushes the file sink.
func New(opt Options) (Logger, io.Closer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if opt.Path != "" {
		file := &lumberjack.Logger{
			Filename:   opt.Path,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
		}
		writers = append(writers, file)
		closer = file
	}
	if opt.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: opt.Console, TimeFormat: time.TimeOnly})
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	log := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp().Int("pid", os.Getpid()).Logger()
	return log, closer
}

// Nop returns a disabled logger.
func Nop() Logger {
	return zerolog.Nop()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// parseLevel supports string-only levels
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.DebugLevel
	}
}
