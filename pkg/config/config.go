package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/devices-monitor/internal/csvlog"
	"github.com/srg/devices-monitor/internal/devicefactory"
	"github.com/srg/devices-monitor/internal/poller"
)

// Config holds application configuration
type Config struct {
	LogLevel       logrus.Level  `json:"log_level"`
	Backend        string        `json:"backend" default:"auto"`
	ScanDuration   time.Duration `json:"scan_duration" default:"2s"`
	LogFile        string        `json:"log_file"` // empty: csvlog.DefaultPath
	Connect        bool          `json:"connect" default:"false"`
	SkipIncomplete bool          `json:"skip_incomplete" default:"false"`
	NoNotify       bool          `json:"no_notify" default:"false"`
	Schedule       string        `json:"schedule" default:"@every 15m"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	defaults.SetDefaults(cfg)
	return cfg
}

// Validate checks the values that flags can break.
func (c *Config) Validate() error {
	if _, err := devicefactory.Resolve(c.Backend, runtime.GOOS); err != nil {
		return err
	}
	if c.ScanDuration <= 0 {
		return fmt.Errorf("scan duration must be positive, got %s", c.ScanDuration)
	}
	return nil
}

// LogPath returns LogFile or the default log location.
func (c *Config) LogPath() (string, error) {
	if c.LogFile != "" {
		return c.LogFile, nil
	}
	return csvlog.DefaultPath()
}

// PollerOptions converts the configuration into poller options.
func (c *Config) PollerOptions() poller.Options {
	return poller.Options{
		ScanDuration:   c.ScanDuration,
		Connect:        c.Connect,
		SkipIncomplete: c.SkipIncomplete,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
