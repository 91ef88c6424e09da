// Package logging configures the agent's logrus backend.
package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AleksandrNi/token-agent/internal/model"
)

// New builds a logrus.Logger from the parsed logging settings. Level
// parse failures fall back to info rather than aborting startup, since
// config validation (C11) is the place invalid levels are rejected.
func New(settings model.LoggingSettings) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(settings.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch settings.Format {
	case "compact":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	return logger
}

// ValidLevels lists the logging levels the config validator accepts.
var ValidLevels = []string{"trace", "debug", "info", "warn", "error"}

// IsValidLevel reports whether level is one of ValidLevels.
func IsValidLevel(level string) bool {
	for _, l := range ValidLevels {
		if l == level {
			return true
		}
	}
	return false
}
