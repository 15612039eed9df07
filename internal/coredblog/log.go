// Package coredblog centralizes logrus setup so every package logs with the
// same formatter and field conventions, following leftmike-maho's pattern
// of configuring logrus once in the command layer and sharing the package
// logger everywhere else.
package coredblog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. Components attach fields with .WithField.
var Log = logrus.New()

func init() {
	Log.SetFormatter(&logrus.TextFormatter{
		DisableLevelTruncation: true,
		FullTimestamp:          true,
	})
	Log.SetOutput(os.Stderr)
}

// SetLevel parses level (trace/debug/info/warn/error) and applies it,
// falling back to info on an unrecognized value.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}

// Component returns a logger pre-tagged with the subsystem name, e.g.
// coredblog.Component("bufferpool").
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
