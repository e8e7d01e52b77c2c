// Package logging builds the slog loggers used by the weffo binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jacoelho/weffo"
)

// Options selects the level, format and destination of a logger.
type Options struct {
	Level  string
	JSON   bool
	Writer io.Writer
}

// New creates a configured logger. It writes to stderr unless opts.Writer is
// set, and reports errors under the "err" key.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	cfg := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, cfg))
	}
	return slog.New(slog.NewTextHandler(w, cfg))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps debug, warn and error to their levels; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Observer logs pipeline transitions: steps at debug level, failures at
// error level.
func Observer(l *slog.Logger) weffo.Observer {
	return observer(l, true)
}

// Transitions logs successful steps at debug level and ignores failures.
// Callers that report the returned error themselves use it to avoid
// printing each failure twice.
func Transitions(l *slog.Logger) weffo.Observer {
	return observer(l, false)
}

func observer(l *slog.Logger, failures bool) weffo.Observer {
	return weffo.ObserverFunc(func(t weffo.Transition) {
		attrs := []any{
			"request", t.Request,
			"from", t.From.String(),
			"to", t.To.String(),
			"elapsed", t.Elapsed,
		}
		if t.To == weffo.StateFailed {
			if failures {
				attrs = append(attrs, "stage", string(t.Stage), "error", t.Err)
				l.Error("pipeline request failed", attrs...)
			}
			return
		}
		l.Debug("pipeline transition", attrs...)
	})
}
