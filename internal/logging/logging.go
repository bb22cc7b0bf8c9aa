// Package logging backs internal.Logger with github.com/sirupsen/logrus.
// The interface stays the teacher's own shape (Debugf/Infof/Warnf/Errorf);
// only the concrete implementation changes, from a stdlib log.Logger to a
// structured logrus one.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cipforge/adapter/internal"
)

// logrusLogger adapts a *logrus.Logger to internal.Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// New creates a logrus-backed Logger writing structured (text) output to
// stderr at the given level ("debug", "info", "warn", "error"); an
// unrecognized level falls back to "info".
func New(level string) internal.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
