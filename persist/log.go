package persist

import (
	"io"

	"github.com/uplo-tech/log"

	"github.com/obnam-mirror/obnam2/build"
)

// Logger is a wrapper for log.Logger that also gates Debug calls behind the
// process-wide verbosity selected by OBNAM_SERVER_LOG / OBNAM_CLIENT_LOG.
type Logger struct {
	*log.Logger
	level build.LogLevel
}

var options = log.Options{
	BinaryName:   "obnam",
	BugReportURL: build.IssuesURL,
	Debug:        build.DEBUG,
	Release:      build.ReleaseType(),
	Version:      build.Version,
}

// NewFileLogger returns a logger at the given verbosity that logs to
// logFilename, appending to the file and creating it if necessary.
func NewFileLogger(logFilename string, level build.LogLevel) (*Logger, error) {
	logger, err := log.NewFileLogger(logFilename, options)
	if err != nil {
		return nil, err
	}
	return &Logger{logger, level}, nil
}

// NewLogger returns a logger at the given verbosity that writes to w.
func NewLogger(w io.Writer, level build.LogLevel) (*Logger, error) {
	logger, err := log.NewLogger(w, options)
	if err != nil {
		return nil, err
	}
	return &Logger{logger, level}, nil
}

// Debug logs a message only when the configured level is LogDebug.
func (l *Logger) Debug(v ...interface{}) {
	if l.level >= build.LogDebug {
		l.Debugln(v...)
	}
}

// Info logs a message when the configured level is LogInfo or more verbose.
func (l *Logger) Info(v ...interface{}) {
	if l.level >= build.LogInfo {
		l.Println(v...)
	}
}

// Warn logs a message when the configured level is LogWarn or more verbose.
func (l *Logger) Warn(v ...interface{}) {
	if l.level >= build.LogWarn {
		l.Println(v...)
	}
}

// Error always logs a message; error-level output is never suppressed.
func (l *Logger) Error(v ...interface{}) {
	l.Println(v...)
}
