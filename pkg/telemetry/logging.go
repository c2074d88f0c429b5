// Package telemetry holds the observability side of a simulation session:
// log formatting, sampled series, observer fan-out, Prometheus metrics and a
// text renderer.
package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/boristopalov/spacenav/pkg/core"
)

// ParseLevel maps a config level name to a slog level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// NewLogger builds a text or JSON slog logger writing to w.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FormatPosition renders the position and velocity of a named object.
func FormatPosition(name string, sv core.StateVector) string {
	p, v := sv.Position, sv.Velocity
	return fmt.Sprintf("%s position: x - %0.5f, y - %0.5f, z - %0.5f. %s velocity: Vx - %0.5f, Vy - %0.5f, Vz - %0.5f",
		name, p[0], p[1], p[2], name, v[0], v[1], v[2])
}

// PositionAttrs returns structured attributes for a position log line.
func PositionAttrs(name string, sv core.StateVector) []any {
	p, v := sv.Position, sv.Velocity
	return []any{
		slog.String("object", name),
		slog.Group("position", slog.Float64("x", p[0]), slog.Float64("y", p[1]), slog.Float64("z", p[2])),
		slog.Group("velocity", slog.Float64("vx", v[0]), slog.Float64("vy", v[1]), slog.Float64("vz", v[2])),
	}
}
