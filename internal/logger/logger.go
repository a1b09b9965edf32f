// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ForwardLevel is the minimum level copied to a forward writer.
const ForwardLevel = zerolog.WarnLevel

type Options struct {
	Level  string
	Pretty bool
	// File enables a rotated log file in addition to stderr.
	File string
	// Forward receives every line at ForwardLevel or above, e.g. a Telegram
	// debug chat.
	Forward io.Writer
}

// New returns a logger writing to stderr plus the optional sinks. An
// unparsable level falls back to info.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var console io.Writer = os.Stderr
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{console}

	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}
	if opts.Forward != nil {
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: opts.Forward},
			Level:  ForwardLevel,
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("service", "plate-gate").
		Logger()
}
