package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// setupLogging installs the default logger. Level 0 logs info, anything
// higher logs debug.
func setupLogging(w io.Writer, level int, format string) error {
	handler, err := newLogHandler(w, level, format)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func newLogHandler(w io.Writer, level int, format string) (slog.Handler, error) {
	slogLevel := slog.LevelInfo
	if level > 0 {
		slogLevel = slog.LevelDebug
	}

	switch format {
	case "", "pretty":
		noColor := true
		if f, ok := w.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		return tint.NewHandler(w, &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.Kitchen,
			NoColor:    noColor,
		}), nil
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel}), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want pretty, text or json)", format)
	}
}
