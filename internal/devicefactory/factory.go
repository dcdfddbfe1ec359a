package devicefactory

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/devices-monitor/internal/device"
	"github.com/srg/devices-monitor/internal/device/bluez"
	goble "github.com/srg/devices-monitor/internal/device/go-ble"
)

// Supported backend names.
const (
	BackendAuto  = "auto"
	BackendBlueZ = "bluez"
	BackendGoBLE = "goble"
)

// Backends lists the accepted --backend values.
var Backends = []string{BackendAuto, BackendBlueZ, BackendGoBLE}

// ConnectSystemBus opens the D-Bus connection used by the BlueZ backend.
// This is a variable so that it can be overridden in tests.
var ConnectSystemBus = bluez.ConnectSystemBus

// Resolve maps "auto" to the platform default backend and validates the name.
func Resolve(backend string, goos string) (string, error) {
	switch b := strings.ToLower(strings.TrimSpace(backend)); b {
	case "", BackendAuto:
		if goos == "linux" {
			return BackendBlueZ, nil
		}
		return BackendGoBLE, nil
	case BackendBlueZ, BackendGoBLE:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected one of %s)", backend, strings.Join(Backends, ", "))
	}
}

// NewManager creates the device.Manager for the named backend.
func NewManager(backend string, logger *logrus.Logger) (device.Manager, error) {
	resolved, err := Resolve(backend, runtime.GOOS)
	if err != nil {
		return nil, err
	}
	logger.WithField("backend", resolved).Debug("Creating device manager")

	switch resolved {
	case BackendBlueZ:
		bus, err := ConnectSystemBus()
		if err != nil {
			return nil, fmt.Errorf("bluez backend unavailable: %w", err)
		}
		return bluez.NewManager(bus, logger), nil
	default:
		return goble.NewManager(logger), nil
	}
}
