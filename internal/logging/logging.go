// Package logging configures the process-wide structured logger.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing JSON or text to stderr depending on
// format ("json" or "text"), at the given level ("debug", "info", "warn",
// "error"). Unknown values fall back to text/info.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr

	if strings.EqualFold(format, "json") {
		log.Formatter = &logrus.JSONFormatter{}
	} else {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log
}

// ForJob returns an Entry pre-populated with the fields scan workers are
// expected to carry on every log line (spec.md §9: "structured logging
// carrying job id, ip, credential id, duration, and outcome").
func ForJob(log *logrus.Logger, jobID string, ip string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"job_id": jobID,
		"ip":     ip,
	})
}
