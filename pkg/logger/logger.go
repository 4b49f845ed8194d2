package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns JSON logger writing to w. LOG_LEVEL overrides fallback when it parses.
func New(w io.Writer, fallback slog.Level) *slog.Logger {
	level := fallback
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(env)); err == nil {
			level = parsed
		}
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
