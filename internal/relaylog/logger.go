// Package relaylog provides the relay's structured logging, adapted from
// the teacher's internal/logger package: same colorized
// timestamp/level/message/attrs line shape, plus a configurable minimum
// level and byte-count humanization for transfer-completion log lines.
package relaylog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
)

// PrettyHandler is a slog.Handler rendering
// "timestamp LEVEL message key=value..." lines with ANSI-colorized level
// names, gated by MinLevel.
type PrettyHandler struct {
	mu       sync.Mutex
	out      io.Writer
	MinLevel slog.Level
}

// NewPrettyHandler builds a handler writing to out at the given minimum
// level.
func NewPrettyHandler(out io.Writer, minLevel slog.Level) *PrettyHandler {
	return &PrettyHandler{out: out, MinLevel: minLevel}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.MinLevel
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timestamp := r.Time.Format(time.TimeOnly)
	level := h.colorizeLevel(r.Level)
	line := fmt.Sprintf("%s %s %s", timestamp, level, r.Message)

	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s%s%s=%v", colorGray, a.Key, colorReset, a.Value.Any())
		return true
	})

	_, err := fmt.Fprintln(h.out, line)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *PrettyHandler) WithGroup(name string) slog.Handler       { return h }

func (h *PrettyHandler) colorizeLevel(level slog.Level) string {
	var color, name string
	switch level {
	case slog.LevelDebug:
		color, name = colorBlue, "DEBUG"
	case slog.LevelInfo:
		color, name = colorGreen, "INFO"
	case slog.LevelWarn:
		color, name = colorYellow, "WARN"
	case slog.LevelError:
		color, name = colorRed, "ERROR"
	default:
		color, name = colorGray, level.String()
	}
	return fmt.Sprintf("%s%-5s%s", color, name, colorReset)
}

// New builds the relay's default logger, writing to stdout at minLevel.
func New(minLevel slog.Level) *slog.Logger {
	return slog.New(NewPrettyHandler(os.Stdout, minLevel))
}

// Bytes renders a byte count the way transfer-completion log lines want
// it, e.g. "14 MB" instead of a raw integer.
func Bytes(n int64) string {
	return humanize.Bytes(uint64(n))
}
