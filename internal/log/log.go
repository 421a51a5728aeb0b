// Package log builds the slog loggers shared by the api, worker and
// scanner binaries. Output goes to stderr through charmbracelet's handler,
// prefixed with the component name.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var level = log.InfoLevel

// SetLevel sets the minimum level for loggers created afterwards. It
// accepts debug, info, warn and error; an empty name leaves it unchanged.
func SetLevel(name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	l, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	level = l
	return nil
}

func handler(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          prefix,
		Level:           level,
	})
}

// New returns a logger for the named component.
func New(component string) *slog.Logger {
	return slog.New(handler(component))
}

// Child returns a logger for a sub-component of base, e.g. "api/attendance".
// Attributes added to base with With are not carried over.
func Child(base *slog.Logger, name string) *slog.Logger {
	if h, ok := base.Handler().(*log.Logger); ok && h.GetPrefix() != "" {
		return New(h.GetPrefix() + "/" + name)
	}
	return New(name)
}

type loggerKey struct{}

func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext falls back to slog.Default when ctx carries no logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
