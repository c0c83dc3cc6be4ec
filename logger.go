package gofaye

import (
	"fmt"
	"log/slog"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface a Session writes to. args are alternating
// key/value pairs, as with log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// WithError returns a Logger that attaches err to every entry
	WithError(err error) Logger

	// WithField returns a Logger that attaches key=value to every entry
	WithField(key string, value any) Logger
}

type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Info(string, ...any) {}
func (nullLogger) Warn(string, ...any) {}
func (nullLogger) Error(string, ...any) {}
func (l nullLogger) WithError(error) Logger { return l }
func (l nullLogger) WithField(string, any) Logger { return l }

func newNullLogger() Logger {
	return nullLogger{}
}

// logrusLogger adapts a logrus.FieldLogger, turning key/value args into
// logrus fields
type logrusLogger struct {
	logrus.FieldLogger
}

func (l *logrusLogger) entry(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return l.FieldLogger
	}
	fields := make(logrus.Fields, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 == len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		fields[key] = args[i+1]
	}
	return l.FieldLogger.WithFields(fields)
}

func (l *logrusLogger) Debug(msg string, args ...any) { l.entry(args).Debug(msg) }
func (l *logrusLogger) Info(msg string, args ...any) { l.entry(args).Info(msg) }
func (l *logrusLogger) Warn(msg string, args ...any) { l.entry(args).Warn(msg) }
func (l *logrusLogger) Error(msg string, args ...any) { l.entry(args).Error(msg) }

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{l.FieldLogger.WithError(err)}
}

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{l.FieldLogger.WithField(key, value)}
}

type slogLogger struct {
	*slog.Logger
}

func (l *slogLogger) WithError(err error) Logger {
	return l.WithField(logrus.ErrorKey, err)
}

func (l *slogLogger) WithField(key string, value any) Logger {
	return &slogLogger{l.With(slog.Any(key, value))}
}
