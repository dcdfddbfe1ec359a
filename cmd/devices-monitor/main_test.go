package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/devices-monitor/internal/device"
	"github.com/srg/devices-monitor/internal/poller"
	"github.com/srg/devices-monitor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "missing feature",
			err:      fmt.Errorf("pass failed: %w", &device.NotFoundError{Resource: "service", UUIDs: []string{"180f"}, Device: "AA:BB"}),
			contains: `service "180f" not found on AA:BB`,
		},
		{
			name:     "bluetooth off",
			err:      fmt.Errorf("scan on hci0 failed: %w", device.ErrBluetoothOff),
			contains: "Bluetooth is turned off",
		},
		{
			name:     "no controller",
			err:      fmt.Errorf("failed to create BLE device: %w", device.ErrNotInitialized),
			contains: "try --backend",
		},
		{
			name:     "malformed value",
			err:      fmt.Errorf("Mouse: %w", poller.ErrMalformedValue),
			contains: "unexpected data from device",
		},
		{
			name:     "other",
			err:      errors.New("disk full"),
			contains: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.contains)
		})
	}
}

func newLoggerTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		args     []string
		expected logrus.Level
	}{
		{nil, logrus.ErrorLevel},
		{[]string{"--verbose"}, logrus.DebugLevel},
		{[]string{"--log-level", "warn"}, logrus.WarnLevel},
		{[]string{"--log-level", "info", "--verbose"}, logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd := newLoggerTestCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg := config.DefaultConfig()
			logger, err := configureLogger(cmd, "verbose", cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel(), "--log-level MUST take precedence over --verbose")
			assert.Equal(t, tt.expected, cfg.LogLevel, "resolved level MUST be stored in the config")
		})
	}

	cmd := newLoggerTestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "trace"}))
	_, err := configureLogger(cmd, "verbose", config.DefaultConfig())
	assert.ErrorContains(t, err, "invalid log level")
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewCountdownProgressPrinter(&buf, "Scanning for BLE devices", "Scanning", 2*time.Second, "Reading")

	assert.Equal(t, 2, p.remaining(0))
	assert.Equal(t, 1, p.remaining(1200*time.Millisecond))
	assert.Equal(t, 0, p.remaining(3*time.Second))

	p.Start()
	p.Callback()("Reading")
	p.Stop() // second stop is a no-op

	assert.True(t, strings.HasPrefix(buf.String(), "\rScanning for BLE devices (Scanning...)"))
	assert.True(t, strings.HasSuffix(buf.String(), clearLineSequence), "Stop MUST clear the progress line")
	assert.Panics(t, p.Start, "ProgressPrinter MUST be single-use")
}

func TestBatteryColor(t *testing.T) {
	assert.Equal(t, batteryColor(100), batteryColor(50))
	assert.NotEqual(t, batteryColor(50), batteryColor(49))
	assert.NotEqual(t, batteryColor(20), batteryColor(19))
}
