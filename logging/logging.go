// Package logging constructs the logrus logger every other package
// receives as a *logrus.Entry, keeping format/level selection in one
// place rather than each package reading config.Config itself.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/yfsproj/yfsd/config"
)

// New builds a *logrus.Entry configured from cfg, tagged with a
// "component" field every caller should override via WithField for its
// own subsystem name.
func New(cfg config.LogConfig) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	return logrus.NewEntry(log).WithField("component", "yfsd"), nil
}
