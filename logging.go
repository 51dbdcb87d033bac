// logging.go wires the kernel's diagnostic events to a real structured
// logging stack instead of a hand-rolled formatter: github.com/joeycumines/logiface
// provides the leveled builder API, github.com/joeycumines/stumpy renders
// events as JSON. A NewNoOpLogger is kept for tests and for callers who
// have not opted into diagnostics.

package kerncore

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Level is a syslog-style severity, re-exported from logiface so call
// sites never need to import it directly.
type Level = logiface.Level

// Severity levels used by the kernel's own log call sites. Scheduler and
// VM internals only ever log at these four.
const (
	LevelDebug = logiface.LevelDebug
	LevelInfo  = logiface.LevelInformational
	LevelWarn  = logiface.LevelWarning
	LevelError = logiface.LevelError
)

// Logger is the structured logger used for scheduler and VM diagnostics:
// thread lifecycle transitions, donation chains, ticks, eviction, and swap
// I/O. Every call site tags its event with a "component" field (e.g.
// "sched", "donate", "frame", "swap") so downstream log aggregation can
// filter by subsystem without parsing the message text.
type Logger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewLogger builds a Logger writing stumpy-encoded JSON lines to w at the
// given minimum level.
func NewLogger(level Level, w io.Writer) *Logger {
	return &Logger{
		l: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
			stumpy.L.WithLevel(level),
		),
	}
}

// level returns the effective minimum level, LevelDisabled if unset.
func (lg *Logger) level() Level {
	if lg == nil || lg.l == nil {
		return logiface.LevelDisabled
	}
	return lg.l.Level()
}

// NewDefaultLogger builds a Logger writing to os.Stderr at LevelInfo.
func NewDefaultLogger() *Logger {
	return NewLogger(LevelInfo, os.Stderr)
}

// NewNoOpLogger builds a Logger that discards everything; IsEnabled always
// reports false so call sites can skip building fields entirely.
func NewNoOpLogger() *Logger {
	return &Logger{l: stumpy.L.New(stumpy.L.WithLevel(logiface.LevelDisabled))}
}

// IsEnabled reports whether level would produce output, letting hot paths
// (e.g. the per-tick recent_cpu update) skip field construction entirely
// when logging is disabled.
func (lg *Logger) IsEnabled(level Level) bool {
	return level.Enabled() && level <= lg.level()
}

// event logs msg at level with component and an alternating key/value
// field list (kv[0], kv[1], kv[2], kv[3], ...). Odd-length kv is truncated
// to its last complete pair.
func (lg *Logger) event(level Level, component, msg string, kv ...any) {
	if !lg.IsEnabled(level) {
		return
	}
	b := lg.l.Build(level)
	if b == nil {
		return
	}
	b = b.Str("component", component)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		b = b.Any(key, kv[i+1])
	}
	b.Log(msg)
}

// Debug logs a debug-level scheduler/VM event.
func (lg *Logger) Debug(component, msg string, kv ...any) { lg.event(LevelDebug, component, msg, kv...) }

// Info logs an info-level scheduler/VM event.
func (lg *Logger) Info(component, msg string, kv ...any) { lg.event(LevelInfo, component, msg, kv...) }

// Warn logs a warning-level scheduler/VM event.
func (lg *Logger) Warn(component, msg string, kv ...any) { lg.event(LevelWarn, component, msg, kv...) }

// Error logs an error-level scheduler/VM event, attaching err if non-nil.
func (lg *Logger) Error(component, msg string, err error, kv ...any) {
	if !lg.IsEnabled(LevelError) {
		return
	}
	b := lg.l.Build(LevelError)
	if b == nil {
		return
	}
	b = b.Str("component", component)
	if err != nil {
		b = b.Err(err)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		b = b.Any(key, kv[i+1])
	}
	b.Log(msg)
}
