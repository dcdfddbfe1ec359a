package goble

import (
	"encoding/binary"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/devices-monitor/internal/device"
)

// toUUID converts a go-ble UUID (little-endian bytes) into a canonical UUID.
func toUUID(u ble.UUID) (uuid.UUID, error) {
	switch len(u) {
	case 2:
		return device.UUID16(binary.LittleEndian.Uint16(u)), nil
	case 4:
		out := device.BaseUUID
		binary.BigEndian.PutUint32(out[0:4], binary.LittleEndian.Uint32(u))
		return out, nil
	case 16:
		var out uuid.UUID
		for i := range out {
			out[i] = u[len(u)-1-i]
		}
		return out, nil
	default:
		return uuid.Nil, fmt.Errorf("invalid BLE UUID length %d", len(u))
	}
}

// advertisedServices converts the service UUIDs of an advertisement, skipping malformed ones.
func advertisedServices(adv ble.Advertisement) []uuid.UUID {
	bleServices := adv.Services()
	result := make([]uuid.UUID, 0, len(bleServices))
	for _, svc := range bleServices {
		if u, err := toUUID(svc); err == nil {
			result = append(result, u)
		}
	}
	return result
}

// matchesFilter reports whether adv advertises one of the filter services.
// An empty filter matches everything.
func matchesFilter(services []uuid.UUID, filter device.ScanFilter) bool {
	if len(filter.Services) == 0 {
		return true
	}
	for _, required := range filter.Services {
		for _, advertised := range services {
			if required == advertised {
				return true
			}
		}
	}
	return false
}
