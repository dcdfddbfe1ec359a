package device

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// BaseUUID is the Bluetooth SIG base UUID, 0000xxxx-0000-1000-8000-00805f9b34fb.
var BaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// Well-known GATT services and characteristics
var (
	DeviceInformationService = UUID16(0x180A)
	ManufacturerNameChar     = UUID16(0x2A29)
	ModelNumberChar          = UUID16(0x2A24)
	BatteryService           = UUID16(0x180F)
	BatteryLevelChar         = UUID16(0x2A19)
)

// UUID16 expands a 16-bit assigned number into a full 128-bit UUID.
func UUID16(short uint16) uuid.UUID {
	u := BaseUUID
	binary.BigEndian.PutUint16(u[2:4], short)
	return u
}

// IsUUID16 reports whether u is derived from the Bluetooth SIG base UUID.
func IsUUID16(u uuid.UUID) bool {
	v := u
	v[2], v[3] = 0, 0
	return v == BaseUUID
}

// ShortUUID renders SIG-based UUIDs as their 16-bit alias ("180f"), others in full.
func ShortUUID(u uuid.UUID) string {
	if IsUUID16(u) {
		return fmt.Sprintf("%04x", binary.BigEndian.Uint16(u[2:4]))
	}
	return u.String()
}

// ParseUUID accepts 16-bit ("180F", "0x180f"), 32-bit and 128-bit UUID strings,
// with or without dashes.
func ParseUUID(s string) (uuid.UUID, error) {
	v := strings.TrimSpace(strings.ToLower(s))
	v = strings.TrimPrefix(v, "0x")
	switch len(v) {
	case 4, 8:
		n, err := strconv.ParseUint(v, 16, 32)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		u := BaseUUID
		binary.BigEndian.PutUint32(u[0:4], uint32(n))
		return u, nil
	}
	u, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u, nil
}

// ParseUUIDs parses each string with ParseUUID.
func ParseUUIDs(ss []string) ([]uuid.UUID, error) {
	result := make([]uuid.UUID, 0, len(ss))
	for i, s := range ss {
		if s == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		u, err := ParseUUID(s)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, nil
}
