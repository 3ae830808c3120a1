package logger

import "github.com/sirupsen/logrus"

// NewLogger returns the root logger. Components derive their own entries
// from it with WithField("component", ...).
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
