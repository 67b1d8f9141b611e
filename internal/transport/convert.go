package transport

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nerrad567/bluescout-core/internal/device"
)

// parseBDAddr converts "AA:BB:CC:DD:EE:FF" into the little-endian byte order
// the kernel expects in socket addresses.
func parseBDAddr(address string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(address, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return out, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return out, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
		out[5-i] = b[0]
	}
	return out, nil
}

// splitManufacturerData splits a raw manufacturer-specific AD payload into
// company id (little-endian, first two bytes) and the remaining bytes.
func splitManufacturerData(raw []byte) map[uint16][]byte {
	if len(raw) < 2 {
		return nil
	}
	id := binary.LittleEndian.Uint16(raw[:2])
	payload := make([]byte, len(raw)-2)
	copy(payload, raw[2:])
	return map[uint16][]byte{id: payload}
}

// normalizeUUID lower-cases a service identifier and expands 16- and 32-bit
// short forms onto the base UUID. Anything that is not hex is returned
// lower-cased but otherwise untouched.
func normalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	raw := strings.ReplaceAll(s, "-", "")
	if _, err := hex.DecodeString(raw); err != nil {
		return s
	}
	switch len(raw) {
	case 4:
		raw = "0000" + raw + "00001000800000805f9b34fb"
	case 8:
		raw = raw + "00001000800000805f9b34fb"
	case 32:
	default:
		return s
	}
	return raw[0:8] + "-" + raw[8:12] + "-" + raw[12:16] + "-" + raw[16:20] + "-" + raw[20:32]
}

func normalizeUUIDs(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, u := range in {
		if u = normalizeUUID(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// advertisementSighting builds a sighting from one received advertisement.
func advertisementSighting(address, name string, rssi int, services []string, manufacturer []byte) device.Sighting {
	signal := int16(rssi)
	return device.Sighting{
		Address:          device.NormalizeAddress(address),
		Name:             strings.TrimSpace(name),
		Transport:        device.TransportAdvertisement,
		SignalStrength:   &signal,
		Services:         normalizeUUIDs(services),
		ManufacturerData: splitManufacturerData(manufacturer),
	}
}
