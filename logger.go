package auth

import (
	"io"
	"os"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

// Logger is the logging contract used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers
type LoggerProvider interface {
	GetLogger(name string) glog.Logger
}

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	// Level is one of trace, debug, info, warn, error
	Level string
	// Format is console (alias text), pretty or json
	Format string
	Output io.Writer
	Name   string
}

// NewLogger returns the root glog logger. Rich errors logged under an
// "error" key carry their category, code and metadata.
func NewLogger(opts LoggerOptions) *glog.BaseLogger {
	options := []glog.Option{
		glog.WithLevel(opts.Level),
		glog.WithLoggerType(opts.Format),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	}
	if opts.Name != "" {
		options = append(options, glog.WithName(opts.Name))
	}
	if opts.Output != nil {
		options = append(options, glog.WithWriter(opts.Output))
	}
	return glog.NewLogger(options...)
}

var defaultLogger = NewLogger(LoggerOptions{
	Level:  glog.Info,
	Format: glog.LoggerTypeConsole,
	Output: os.Stderr,
	Name:   "auth",
})

// defLogger is used whenever a component is built without a logger.
func defLogger() Logger {
	return defaultLogger
}

// NopLogger discards everything.
func NopLogger() Logger {
	return glog.Nop()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger()
	}
	return l
}
