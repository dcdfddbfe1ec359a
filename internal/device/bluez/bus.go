package bluez

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/srg/devices-monitor/internal/device"
)

// BlueZ D-Bus constants
const (
	busName            = "org.bluez"
	adapterIface       = "org.bluez.Adapter1"
	deviceIface        = "org.bluez.Device1"
	gattServiceIface   = "org.bluez.GattService1"
	gattCharIface      = "org.bluez.GattCharacteristic1"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
)

// ManagedObjects is the reply of ObjectManager.GetManagedObjects:
// object path → interface → property → value.
type ManagedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Bus is the part of a D-Bus connection the backend talks to.
type Bus interface {
	ManagedObjects(ctx context.Context) (ManagedObjects, error)
	Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call
	Close() error
}

type systemBus struct {
	conn *dbus.Conn
}

// ConnectSystemBus opens a private connection to the D-Bus system bus.
func ConnectSystemBus() (Bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &systemBus{conn: conn}, nil
}

func (b *systemBus) ManagedObjects(ctx context.Context) (ManagedObjects, error) {
	var objects ManagedObjects
	call := b.conn.Object(busName, "/").CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, NormalizeError(call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("failed to parse managed objects: %w", err)
	}
	return objects, nil
}

func (b *systemBus) Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call {
	return b.conn.Object(busName, path).CallWithContext(ctx, method, 0, args...)
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}

// NormalizeError maps BlueZ D-Bus error names onto the device sentinels.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	switch errorName(err) {
	case "org.bluez.Error.NotReady":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case "org.bluez.Error.NotConnected":
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case "org.bluez.Error.AlreadyConnected":
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case "org.bluez.Error.InProgress":
		return fmt.Errorf("%w: %v", device.ErrScanInProgress, err)
	case "org.bluez.Error.NotSupported", "org.bluez.Error.NotPermitted":
		return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
	case "org.freedesktop.DBus.Error.ServiceUnknown":
		return fmt.Errorf("%w: BlueZ is not running: %v", device.ErrNotInitialized, err)
	case "org.freedesktop.DBus.Error.NoReply":
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	}

	if device.ContainsIgnoreCase(err.Error(), "resource not ready") {
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}
	return err
}

func errorName(err error) string {
	var derr dbus.Error
	if errors.As(err, &derr) {
		return derr.Name
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) {
		return pderr.Name
	}
	return ""
}

// variantValue reads a typed property out of an interface property map.
func variantValue[T any](props map[string]dbus.Variant, name string) (T, bool) {
	var zero T
	v, ok := props[name]
	if !ok {
		return zero, false
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, false
	}
	return val, true
}
