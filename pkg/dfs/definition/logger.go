// Package definition holds the small cross-cutting interfaces shared by
// every other package: the logger contract and its default implementation.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is implemented by anything that can receive the node's log
// output. Callers needing structured fields use WithField, which returns
// a derived Logger carrying the field.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// ToggleDebug turns debug-level output on or off and returns the new
	// state.
	ToggleDebug(value bool) bool

	// WithField returns a derived logger that prefixes every entry with
	// the given key/value, e.g. node_id, role, peer.
	WithField(key string, value interface{}) Logger
}

// DefaultLogger wraps a logrus.Entry so log lines carry the structured
// fields attached through WithField (e.g. role, component) instead of
// being formatted by hand.
type DefaultLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger returns a Logger writing to stderr at info level.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: logrus.NewEntry(l)}
}

func (l *DefaultLogger) Info(v ...interface{})                 { l.entry.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                  { l.entry.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                 { l.entry.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }

func (l *DefaultLogger) Debug(v ...interface{}) { l.entry.Debug(v...) }
func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l *DefaultLogger) Fatal(v ...interface{}) { l.entry.Fatal(v...) }
func (l *DefaultLogger) Fatalf(format string, v ...interface{}) {
	l.entry.Fatalf(format, v...)
}

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return value
}

func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return &DefaultLogger{entry: l.entry.WithField(key, value)}
}
