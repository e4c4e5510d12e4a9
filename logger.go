package gshade

import (
	"context"
	"log/slog"
)

// NopLogger returns a logger that discards all records. Components use it
// when the host does not supply one.
func NopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// LoggerOrNop returns l, or a discarding logger if l is nil.
func LoggerOrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return NopLogger()
	}
	return l
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
