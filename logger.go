package volren

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// NopLogger returns a logger that silently discards all output.
func NopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the package-wide default logger. Accessed atomically so
// that SetLogger can be called while other goroutines log.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(NopLogger())
}

// SetLogger configures the default logger for volren and its sub-packages.
// By default volren produces no log output.
//
// Components built with an explicit logger option (gpumem.WithLogger,
// render.WithLogger) use that logger instead; the default is only consulted
// when no logger was injected.
//
// Pass nil to restore the silent default.
//
// Log levels used by volren:
//   - [slog.LevelDebug]: reuse of shared resources, reference count changes
//   - [slog.LevelInfo]: resource creation and destruction, dataset loads
//   - [slog.LevelWarn]: unknown handles, leaked resources, budget overruns
//   - [slog.LevelError]: failed opens, decodes and shader compiles
//
// Example:
//
//	volren.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = NopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current default logger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
