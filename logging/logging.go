// logging/logging.go

// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a logrus logger. Supported levels: debug, info, warn,
// error. format "text" selects the human-readable formatter, anything else
// emits JSON.
func NewLogger(level, format string) *logrus.Logger {
	return newLogger(os.Stdout, level, format)
}

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetReportCaller(lvl == logrus.DebugLevel)

	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func WithComponent(logger logrus.FieldLogger, component string) logrus.FieldLogger {
	return logger.WithField("component", component)
}

func WithVideo(logger logrus.FieldLogger, videoID string) logrus.FieldLogger {
	return logger.WithField("video_id", videoID)
}

// Discard returns a logger that drops everything; used by tests.
func Discard() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// SanitizeToken masks a token for safe logging.
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
