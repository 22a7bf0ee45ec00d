package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level   slog.Level
	Console io.Writer
	NoColor bool

	// File is the log file path. Empty disables file logging.
	File string

	// MaxAge is the number of days rotated files are kept. Zero keeps them all.
	MaxAge int
}

// New builds a logger writing colored lines to the console and, when
// configured, plain text lines to a rotating file. The returned closer
// releases the file.
func New(opts Options) (*slog.Logger, io.Closer) {
	handlers := []slog.Handler{
		tint.NewHandler(opts.Console, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.DateTime,
			NoColor:    opts.NoColor,
		}),
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  100, // megabytes
			MaxAge:   opts.MaxAge,
			Compress: true,
		}
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: opts.Level}))
		closer = file
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.TrimSpace(s)))
	return level, err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
