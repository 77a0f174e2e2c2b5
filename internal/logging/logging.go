// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"sifra/internal/cfg"
	"sifra/internal/common"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup sets the global level and output. When File is set, log lines are
// also written to a size-rotated file; the returned Closer flushes it.
func Setup(s cfg.LogSettings) (io.Closer, error) {
	return setup(s, os.Stderr)
}

func setup(s cfg.LogSettings, stderr io.Writer) (io.Closer, error) {
	level, err := zerolog.ParseLevel(s.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", s.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer
	switch s.Format {
	case common.LogFormatJSON:
		console = stderr
	case common.LogFormatConsole, "":
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	default:
		return nil, fmt.Errorf("unknown log format %q", s.Format)
	}

	var (
		out    io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if s.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    s.MaxSizeMB,
			MaxBackups: s.MaxBackups,
			MaxAge:     s.MaxAgeDays,
			Compress:   true,
		}
		// file output is always JSON, whatever the console format
		out = zerolog.MultiLevelWriter(console, rotating)
		closer = rotating
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}
