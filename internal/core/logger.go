package core

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger shared by every runtime package.
// Pass nil to restore the silent default. Safe for concurrent use.
//
// Levels:
//   - Debug: state transitions, allocation sizes
//   - Info: activation, disposal, quality changes
//   - Warn: conservative fallbacks, halved allocations, recovered entities
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current runtime logger. Never nil.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
