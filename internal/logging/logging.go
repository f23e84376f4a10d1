// Package logging builds the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stdout.  Production environments get JSON
// lines; anything else gets the human-readable text formatter.  An unknown
// level falls back to info.
func New(env, level, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, env, level, format)
}

// NewWithOutput is New with an explicit writer.
func NewWithOutput(w io.Writer, env, level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "text") || (format == "" && !strings.EqualFold(env, "prod")) {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
