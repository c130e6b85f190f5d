package logger

import (
	"log/slog"
	"os"
)

// New returns a structured JSON logger using slog, tagged with the service
// name and worker identity so multi-instance logs stay attributable.
func New(service, worker string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler).With(
		"service", service,
		"worker", worker,
	)
}
