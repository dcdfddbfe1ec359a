package main

import (
	"errors"
	"fmt"

	"github.com/srg/devices-monitor/internal/device"
	"github.com/srg/devices-monitor/internal/poller"
)

// FormatUserError turns known failures into a message with a hint for the user.
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return fmt.Sprintf("%s\n  the device does not expose the Device Information and Battery services; use --skip-incomplete to ignore it", notFound)
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off, turn it on and try again"
	case errors.Is(err, device.ErrNotInitialized):
		return fmt.Sprintf("%s\n  no usable Bluetooth controller found; try --backend", err)
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("%s\n  the backend lacks permissions or support for this operation", err)
	case errors.Is(err, device.ErrMalformedPeripheral), errors.Is(err, poller.ErrMalformedValue):
		return fmt.Sprintf("unexpected data from device: %s", err)
	default:
		return err.Error()
	}
}
