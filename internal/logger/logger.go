package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns the process logger: JSON at info level in prod, text at debug
// level elsewhere. Every record carries the service name.
func New(env string) *slog.Logger {
	return NewWriter(env, os.Stdout)
}

func NewWriter(env string, w io.Writer) *slog.Logger {
	var h slog.Handler
	if env == "prod" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(h).With("service", "qrcharge")
}
