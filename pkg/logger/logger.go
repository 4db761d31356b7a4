// Package logger wraps logrus with the small leveled API used across the
// project. Every service holds a *Logger carrying its service name as a
// structured field.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls level, format and destination of a Logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "json" or "text".
	Format string
	// Output is "stdout", "stderr" or "file".
	Output string
	// FilePrefix is the log file path prefix when Output is "file"; the
	// current date and a .log extension are appended.
	FilePrefix string
}

// Logger is a leveled, structured logger.
type Logger struct {
	root  *logrus.Logger
	entry *logrus.Entry
}

// New creates a Logger from the given configuration.
func New(cfg LoggingConfig) (*Logger, error) {
	root := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	root.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		root.SetOutput(os.Stdout)
	case "stderr":
		root.SetOutput(os.Stderr)
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "skydeck"
		}
		name := fmt.Sprintf("%s-%s.log", prefix, time.Now().UTC().Format("2006-01-02"))
		if dir := filepath.Dir(name); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		root.SetOutput(f)
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	return &Logger{root: root, entry: logrus.NewEntry(root)}, nil
}

// NewDefault creates an info-level text Logger on stdout tagged with the
// given service name. It never fails.
func NewDefault(service string) *Logger {
	root := logrus.New()
	root.SetLevel(logrus.InfoLevel)
	root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	root.SetOutput(os.Stdout)
	return &Logger{root: root, entry: root.WithField("service", service)}
}

// SetOutput redirects all output, including loggers derived with WithField
// and friends. Tests use it with io.Discard.
func (l *Logger) SetOutput(w io.Writer) {
	l.root.SetOutput(w)
}

// WithField returns a Logger with an additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{root: l.root, entry: l.entry.WithField(key, value)}
}

// WithFields returns a Logger with additional structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{root: l.root, entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a Logger with the error attached as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{root: l.root, entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *Logger) Info(args ...interface{}) { l.entry.Info(args...) }

func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *Logger) Warn(args ...interface{}) { l.entry.Warn(args...) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *Logger) Fatal(args ...interface{}) { l.entry.Fatal(args...) }

func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
