package telemetry

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(jsonFormatter())
	return l
}

func jsonFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
		},
	}
}

// Configure applies the log level and output format. Unknown values keep the defaults.
func Configure(level, format string) {
	mu.Lock()
	defer mu.Unlock()
	if parsed, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		logger.SetLevel(parsed)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		logger.SetFormatter(jsonFormatter())
	}
}

// SetOutput redirects log lines, mostly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	entry(fields).Info(msg)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	entry(fields).Warn(msg)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	entry(fields).Error(msg)
}

func entry(fields map[string]any) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return logger.WithFields(logrus.Fields(fields))
}
