// Package logging builds the service logger. Every entry goes to stdout and
// to the global log file; info and above is also written to the summary file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

type Options struct {
	GlobalPath  string
	SummaryPath string
	Level       string
	// Stdout receives the console copy; defaults to os.Stdout.
	Stdout io.Writer
}

// Logger is a logrus logger that owns its log files.
type Logger struct {
	*logrus.Logger
	files []*os.File
}

func New(opts Options) (*Logger, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	l := &Logger{Logger: logger}

	global, err := openLogFile(opts.GlobalPath)
	if err != nil {
		return nil, err
	}
	l.files = append(l.files, global)

	summary, err := openLogFile(opts.SummaryPath)
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	l.files = append(l.files, summary)

	writers := lfshook.WriterMap{}
	for _, lvl := range logrus.AllLevels {
		if lvl <= logrus.InfoLevel {
			writers[lvl] = io.MultiWriter(global, summary)
		} else {
			writers[lvl] = global
		}
	}
	logger.AddHook(lfshook.NewHook(writers, &logrus.JSONFormatter{}))

	return l, nil
}

func (l *Logger) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
