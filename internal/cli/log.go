package cli

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/gantry-run/gantry/internal/config"
)

// newLogger builds the host logger from configuration. Verbose mode
// forces debug level regardless of the configured one.
func newLogger(cfg *config.Config, verbose bool, out io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(out)

	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	return logrus.NewEntry(logger)
}
