package poller

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// NoDevicesMessage is reported when an adapter saw peripherals but none of them was connected.
const NoDevicesMessage = "No connected devices found"

// ErrMalformedValue is returned when a characteristic value cannot be decoded.
var ErrMalformedValue = errors.New("malformed characteristic value")

// DeviceStatus is the information read from one connected peripheral.
type DeviceStatus struct {
	Address      string
	Name         string
	Manufacturer string
	Model        string
	BatteryLevel uint8 // percent
}

func (s DeviceStatus) String() string {
	return fmt.Sprintf("%s: %s %s battery %d%%", s.Name, s.Manufacturer, s.Model, s.BatteryLevel)
}

// Statuses holds the statuses of one adapter keyed by peripheral address,
// in peripheral enumeration order.
type Statuses = orderedmap.OrderedMap[string, DeviceStatus]

// NewStatuses returns an empty Statuses.
func NewStatuses() *Statuses {
	return orderedmap.New[string, DeviceStatus]()
}

// Render joins every status with a single space.
func Render(statuses *Statuses) string {
	if statuses == nil || statuses.Len() == 0 {
		return NoDevicesMessage
	}
	parts := make([]string, 0, statuses.Len())
	for pair := statuses.Oldest(); pair != nil; pair = pair.Next() {
		parts = append(parts, pair.Value.String())
	}
	return strings.Join(parts, " ")
}

// decodeText decodes a UTF-8 string characteristic. Trailing NUL padding is
// dropped; bytes that are not valid UTF-8 yield a placeholder carrying their hex dump.
func decodeText(data []byte) string {
	data = bytes.TrimRight(data, "\x00")
	if !utf8.Valid(data) {
		return fmt.Sprintf("<invalid utf-8: %s>", hex.EncodeToString(data))
	}
	return string(data)
}

// parseBattery returns the first byte of a Battery Level value.
func parseBattery(data []byte) (uint8, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty battery level", ErrMalformedValue)
	}
	return data[0], nil
}
