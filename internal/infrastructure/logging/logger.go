package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "asysbus-bridge"

// Logger is a slog.Logger carrying the bridge's default attributes. It
// satisfies the Debug/Info/Warn/Error interfaces declared by the asb and
// mqtt packages.
type Logger struct {
	*slog.Logger
}

// New builds a Logger for cfg writing to stdout, or stderr when
// cfg.Output says so.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(cfg, version, out)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.LoggingConfig, version string, out io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// parseLevel accepts the slog level names in any case, plus "warning".
// Anything else is info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// With returns a child Logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags every entry of the child logger with component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used until the config has been read: text on
// stderr at info level.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{}, "dev", os.Stderr)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}
