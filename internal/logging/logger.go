package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the process-wide structured logger.
var Logger = slog.Default()

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init builds the global logger. format is "json" or "text".
func Init(level, format string) *slog.Logger {
	return InitWriter(os.Stdout, level, format)
}

func InitWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return Logger
}

func WithUser(userID string) *slog.Logger {
	return Logger.With("user_id", userID)
}

func WithPost(postID string) *slog.Logger {
	return Logger.With("post_id", postID)
}

func WithError(err error) *slog.Logger {
	return Logger.With("error", err)
}
