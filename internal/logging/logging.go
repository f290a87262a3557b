package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"trueinterview/internal/config"
)

// Setup configures the global logrus logger once at startup
func Setup(cfg *config.LogConfig) error {
	return SetupWithOutput(cfg, os.Stderr)
}

// SetupWithOutput configures the global logger writing to out
func SetupWithOutput(cfg *config.LogConfig, out io.Writer) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logrus.SetLevel(level)
	logrus.SetOutput(out)
	return nil
}
