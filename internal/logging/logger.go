package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	InitTo(os.Stdout)
}

// InitTo is Init writing to w. Stdio servers pass os.Stderr to keep stdout clean.
func InitTo(w io.Writer) {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithTurn returns a logger carrying the identifiers of one conversation turn.
func WithTurn(turnID, sessionID, userKey string) *slog.Logger {
	return slog.With(
		"turn_id", turnID,
		"session_id", sessionID,
		"user_key", userKey,
	)
}

// WithJob returns a logger scoped to one scheduler job run for a user.
func WithJob(jobName, userKey string) *slog.Logger {
	return slog.With(
		"job", jobName,
		"user_key", userKey,
	)
}
