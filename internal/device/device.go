package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrFeatureMissing matches every NotFoundError: an expected GATT service or
// characteristic is not present on a peripheral.
var ErrFeatureMissing = errors.New("expected GATT feature not present")

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
	Device   string   // Peripheral address, optional
}

func (e *NotFoundError) Error() string {
	var msg string
	switch len(e.UUIDs) {
	case 0:
		msg = fmt.Sprintf("%s not found", e.Resource)
	case 1:
		msg = fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		// BLE hierarchy: characteristic is in service
		msg = fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
	}
	if e.Device != "" {
		msg += fmt.Sprintf(" on %s", e.Device)
	}
	return msg
}

// Is allows errors.Is(err, ErrFeatureMissing) for any NotFoundError
func (e *NotFoundError) Is(target error) bool {
	return target == ErrFeatureMissing
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff, Msg: "Bluetooth is turned off"}
)

// Operation errors
var (
	ErrTimeout             = errors.New("timeout")
	ErrUnsupported         = errors.New("unsupported")
	ErrMalformedPeripheral = errors.New("malformed peripheral properties")
	ErrScanInProgress      = errors.New("scan already in progress")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ContainsIgnoreCase checks substring case-insensitively
func ContainsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Manager enumerates the Bluetooth adapters of the host.
type Manager interface {
	Adapters(ctx context.Context) ([]Adapter, error)
	Close() error
}

// ScanFilter restricts discovery to peripherals advertising one of Services.
// The zero value scans for everything.
type ScanFilter struct {
	Services []uuid.UUID
}

// Adapter is a host Bluetooth radio.
type Adapter interface {
	// Info returns a human-readable description of the adapter.
	Info(ctx context.Context) (string, error)
	StartScan(ctx context.Context, filter ScanFilter) error
	StopScan(ctx context.Context) error
	// Peripherals returns the peripherals known to the adapter, in discovery order.
	Peripherals(ctx context.Context) ([]Peripheral, error)
}

// Properties holds what is known about a peripheral without connecting to it.
type Properties struct {
	Address   string
	LocalName string
	RSSI      int
	Services  []uuid.UUID
}

// DisplayName returns the local name, or a placeholder when the peripheral has none.
func (p *Properties) DisplayName() string {
	if p.LocalName == "" {
		return "(peripheral name unknown)"
	}
	return p.LocalName
}

// Peripheral is a BLE device discovered by an Adapter.
type Peripheral interface {
	Address() string
	// Properties returns nil, nil when the backend has no data for the peripheral.
	Properties(ctx context.Context) (*Properties, error)
	IsConnected(ctx context.Context) (bool, error)
	Connect(ctx context.Context) error
	DiscoverServices(ctx context.Context) error
	// Services returns the services found by the last DiscoverServices call.
	Services() []Service
	Read(ctx context.Context, char Characteristic) ([]byte, error)
}

// Service is a discovered GATT service.
type Service struct {
	UUID            uuid.UUID
	Primary         bool
	Characteristics []Characteristic
}

// Characteristic is a discovered GATT characteristic. Handle is backend specific.
type Characteristic struct {
	UUID    uuid.UUID
	Service uuid.UUID
	Handle  any
}

// FindService returns the service with the given UUID.
func FindService(services []Service, id uuid.UUID) (Service, error) {
	for _, svc := range services {
		if svc.UUID == id {
			return svc, nil
		}
	}
	return Service{}, &NotFoundError{Resource: "service", UUIDs: []string{ShortUUID(id)}}
}

// FindCharacteristic returns the characteristic with the given UUID within svc.
func FindCharacteristic(svc Service, id uuid.UUID) (Characteristic, error) {
	for _, char := range svc.Characteristics {
		if char.UUID == id {
			return char, nil
		}
	}
	return Characteristic{}, &NotFoundError{Resource: "characteristic", UUIDs: []string{ShortUUID(svc.UUID), ShortUUID(id)}}
}

// GetCharacteristic looks up a characteristic by service and characteristic UUID.
// Returns a NotFoundError if either is missing.
func GetCharacteristic(services []Service, service, char uuid.UUID) (Characteristic, error) {
	svc, err := FindService(services, service)
	if err != nil {
		return Characteristic{}, err
	}
	return FindCharacteristic(svc, char)
}
