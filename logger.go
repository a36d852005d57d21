package condcache

import (
	"log/slog"
	"sync/atomic"
)

// log returns the logger for the Engine.
// If a logger is configured on the Engine, it returns that logger.
// Otherwise, it falls back to the package-level logger.
func (e *Engine) log() *slog.Logger {
	if e != nil && e.logger != nil {
		return e.logger
	}
	return GetLogger()
}

var packageLogger atomic.Pointer[slog.Logger]

// GetLogger returns the package-level logger, used by code that runs without
// an Engine in reach, such as cache backends and background helpers.
// Defaults to slog.Default.
func GetLogger() *slog.Logger {
	if l := packageLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// SetLogger replaces the package-level logger. Passing nil restores
// slog.Default.
func SetLogger(l *slog.Logger) {
	packageLogger.Store(l)
}
