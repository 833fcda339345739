// Package applog sets up the process-wide zerolog logger: a console
// writer for interactive use, a JSON writer for machine consumption,
// and an optional rotated file sink via lumberjack.
package applog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is one of zerolog's level names (debug, info, warn, error);
	// empty defaults to info.
	Level string
	// JSON selects structured output instead of the human console
	// writer (cmd/loadrunner's --log-json flag sets this).
	JSON bool
	// FilePath, if non-empty, adds a rotated file sink alongside stdout.
	FilePath string
}

// New builds a configured zerolog.Logger writing to stdout (console or
// JSON) and optionally to a rotated file.
func New(opts Options) zerolog.Logger {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			level = parsed
		}
	}

	var writers []io.Writer
	if opts.JSON {
		writers = append(writers, os.Stdout)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	if opts.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     7,
		})
	}

	return zerolog.New(io.MultiWriter(writers...)).Level(level).With().Timestamp().Logger()
}
