// Package logging configures the process-wide zerolog logger.
//
// The teacher logs with fmt.Printf("[TAG] message") banners; this repo keeps
// the tagged-banner feel for humans at a terminal but carries structured
// fields (session_id, project_id, task) for everything else, matching the
// corpus's preference for rs/zerolog over ad-hoc string building.
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds a logger writing to stderr: a human-readable console writer
// when stderr is a terminal, structured JSON lines otherwise (piped to a
// file, collected by a supervisor, etc).
func New(level string) zerolog.Logger {
	var w zerolog.ConsoleWriter
	var logger zerolog.Logger

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = os.Stderr
			cw.TimeFormat = "15:04:05"
		})
		logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return logger.Level(lvl)
}

// Component returns a child logger tagged with a component name, the
// structured-field equivalent of the teacher's "[TAG] message" prefix.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
