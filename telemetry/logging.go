package telemetry

import (
	"fmt"
	"io"
	"log/slog"
)

// NewLogger builds the handler every binary installs as the slog default:
// JSON lines when jsonOut is set, text otherwise, filtered at level
// (debug, info, warn or error).
func NewLogger(w io.Writer, jsonOut bool, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if jsonOut {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
