// Package log implements support for structured logging.
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// defaultCallerUnwind is log.DefaultCaller + 1 for the leveling wrapper
// and + 1 for the shared emit helper.
const defaultCallerUnwind = 5

// Logger is a structured logger.
type Logger struct {
	base         log.Logger
	logger       log.Logger
	level        Level
	module       string
	callerUnwind int
}

// NewDefaultLogger initializes a new logger instance with default settings.
// For usage outside tests, prefer RootLogger() from package `cmd/common`.
func NewDefaultLogger(module string) *Logger {
	logger, err := NewLogger(module, os.Stdout, FmtJSON, LevelInfo)
	if err != nil {
		// NewLogger only fails on an invalid format.
		panic(err)
	}
	return logger
}

// NewLogger initializes a new logger instance.
func NewLogger(module string, w io.Writer, format Format, lvl Level) (*Logger, error) {
	var base log.Logger
	switch format {
	case FmtLogfmt:
		base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case FmtJSON:
		base = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("log: unsupported log format: %v", format)
	}

	return &Logger{
		base:         base,
		logger:       withPrefixes(base, defaultCallerUnwind),
		level:        lvl,
		module:       module,
		callerUnwind: defaultCallerUnwind,
	}, nil
}

func withPrefixes(base log.Logger, callerUnwind int) log.Logger {
	return log.WithPrefix(base,
		"ts", log.DefaultTimestampUTC,
		"caller", log.Caller(callerUnwind),
	)
}

func (l *Logger) emit(lvl Level, leveled func(log.Logger) log.Logger, msg string, keyvals []interface{}) {
	if l.level > lvl {
		return
	}
	keyvals = append([]interface{}{"module", l.module, "msg", msg}, keyvals...)
	_ = leveled(l.logger).Log(keyvals...)
}

// Debug logs the message and key value pairs at the Debug log level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.emit(LevelDebug, level.Debug, msg, keyvals)
}

// Info logs the message and key value pairs at the Info log level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.emit(LevelInfo, level.Info, msg, keyvals)
}

// Warn logs the message and key value pairs at the Warn log level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.emit(LevelWarn, level.Warn, msg, keyvals)
}

// Error logs the message and key value pairs at the Error log level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.emit(LevelError, level.Error, msg, keyvals)
}

// With returns a clone of the logger with the provided key/value pairs
// added as context for all subsequent logs.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	clone := *l
	clone.base = log.With(l.base, keyvals...)
	clone.logger = log.With(l.logger, keyvals...)
	return &clone
}

// WithModule returns a clone of the logger with the provided module
// added as context for all subsequent logs.
func (l *Logger) WithModule(module string) *Logger {
	clone := *l
	clone.module = module
	return &clone
}

// WithCallerUnwind returns a clone of the logger that reports the caller
// `unwind` frames up the stack. Use it when the logger is called through
// an adapter, e.g. a third-party library's logging hook.
func (l *Logger) WithCallerUnwind(unwind int) *Logger {
	clone := *l
	clone.callerUnwind = unwind
	clone.logger = withPrefixes(l.base, unwind)
	return &clone
}

// Level is the logging level.
func (l *Logger) Level() Level {
	return l.level
}

// writerLogger adapts Logger to io.Writer. Every write is logged at Info
// level as a single message.
type writerLogger struct {
	logger *Logger
}

func (w *writerLogger) Write(p []byte) (int, error) {
	w.logger.Info(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// WriterIntoLogger returns an io.Writer that forwards everything written
// to it to `logger`.
func WriterIntoLogger(logger *Logger) io.Writer {
	return &writerLogger{logger: logger}
}
