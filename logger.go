package imap

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// Logger defines the minimal logging interface used by the package.
//
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithAttrs(args ...any) Logger
}

const logComponent = "imap/mailbox"

var globalLogger atomic.Value // stores Logger

func init() {
	globalLogger.Store(defaultLogger())
}

// verboseLevel lets debug records through while Verbose is set.
type verboseLevel struct{}

func (verboseLevel) Level() slog.Level {
	if Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func defaultLogger() Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: verboseLevel{}})
	return SlogLogger(slog.New(handler)).WithAttrs("component", logComponent)
}

// SetLogger replaces the global logger used by the package. Passing nil
// restores the built-in slog logger.
func SetLogger(logger Logger) {
	if logger == nil {
		globalLogger.Store(defaultLogger())
		return
	}
	globalLogger.Store(logger.WithAttrs("component", logComponent))
}

// SetSlogLogger is a convenience helper for using a *slog.Logger directly.
func SetSlogLogger(logger *slog.Logger) {
	SetLogger(SlogLogger(logger))
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
func SlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return nil
	}
	return slogAdapter{logger: logger}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }

func (s slogAdapter) Info(msg string, args ...any) { s.logger.Info(msg, args...) }

func (s slogAdapter) Warn(msg string, args ...any) { s.logger.Warn(msg, args...) }

func (s slogAdapter) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func (s slogAdapter) WithAttrs(args ...any) Logger {
	return slogAdapter{logger: s.logger.With(args...)}
}

func getLogger() Logger {
	if v := globalLogger.Load(); v != nil {
		if l, ok := v.(Logger); ok {
			return l
		}
	}
	l := defaultLogger()
	globalLogger.Store(l)
	return l
}

// connectionLogger adds per-connection context to the configured logger.
// connNum < 0 means there is no connection context.
func connectionLogger(connNum int, mailbox string) Logger {
	logger := getLogger()
	if connNum < 0 && mailbox == "" {
		return logger
	}

	args := make([]any, 0, 4)
	if connNum >= 0 {
		args = append(args, "conn", connNum)
	}
	if mailbox != "" {
		args = append(args, "mailbox", mailbox)
	}
	return logger.WithAttrs(args...)
}

// debugLog emits a debug log entry when verbose logging is enabled.
func debugLog(connNum int, mailbox string, msg string, args ...any) {
	if !Verbose {
		return
	}
	connectionLogger(connNum, mailbox).Debug(msg, args...)
}

func warnLog(connNum int, mailbox string, msg string, args ...any) {
	connectionLogger(connNum, mailbox).Warn(msg, args...)
}

func errorLog(connNum int, mailbox string, msg string, args ...any) {
	connectionLogger(connNum, mailbox).Error(msg, args...)
}
