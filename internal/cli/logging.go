package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"tapbot/internal/config"
)

// newLogger builds the slog logger from the logging section. The
// returned closer releases the log file, if one was opened.
func newLogger(cfg config.Logging) (*slog.Logger, func(), error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	switch format {
	case "", "text", "json":
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	out := io.Writer(os.Stderr)
	closer := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(h), closer, nil
}
