package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/devices-monitor/pkg/config"
)

// logLevels are the values accepted by --log-level.
var logLevels = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
}

// configureLogger resolves the log level from --log-level, then --verbose,
// stores it into cfg and builds the logger from cfg.
// Without either flag only errors are logged.
func configureLogger(cmd *cobra.Command, verboseFlagName string, cfg *config.Config) (*logrus.Logger, error) {
	cfg.LogLevel = logrus.ErrorLevel

	if name, _ := cmd.Flags().GetString("log-level"); name != "" {
		level, ok := logLevels[name]
		if !ok {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
		}
		cfg.LogLevel = level
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		cfg.LogLevel = logrus.DebugLevel
	}

	return cfg.NewLogger(), nil
}
