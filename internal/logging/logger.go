package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a structured logger. Format is "json" for anything that
// ships logs somewhere, or "text" for a human watching an interactive client
// run; level is debug/info/warn/error.
func NewLogger(level, format string) *slog.Logger {
	lvl := levelFromString(level)
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl, AddSource: true})
	}
	return slog.New(handler)
}

// ForActor tags every line with the identity the log belongs to, so logs from
// several clients on one box can be told apart.
func ForActor(log *slog.Logger, role, actorID string) *slog.Logger {
	return log.With("role", role, "actor_id", actorID)
}

func levelFromString(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
