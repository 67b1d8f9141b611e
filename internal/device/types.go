package device

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Transport identifies the radio transport family a device was seen on.
type Transport string

const (
	// TransportClassic is the connection-oriented socket transport.
	TransportClassic Transport = "classic"

	// TransportAdvertisement is the broadcast transport with optional sessions.
	TransportAdvertisement Transport = "advertisement"
)

// Valid reports whether t is a known transport.
func (t Transport) Valid() bool {
	return t == TransportClassic || t == TransportAdvertisement
}

// ParseTransport accepts "classic", "advertisement" and the short form "ble".
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classic", "bredr":
		return TransportClassic, nil
	case "advertisement", "ble", "le":
		return TransportAdvertisement, nil
	default:
		return "", fmt.Errorf("%w: unknown transport %q", ErrInvalidSighting, s)
	}
}

// Sighting is one observation of a device produced by a transport scan.
type Sighting struct {
	Address   string
	Name      string
	Transport Transport

	// SignalStrength is only reported by advertisement scans.
	SignalStrength *int16

	Services         []string
	ManufacturerData map[uint16][]byte

	// DeviceClass is the Class of Device, reported by classic inquiry.
	DeviceClass *uint32
}

// Record is the registry entry for one address.
type Record struct {
	Address          string            `json:"address"`
	DisplayName      string            `json:"display_name"`
	Transport        Transport         `json:"transport"`
	FirstSeen        time.Time         `json:"first_seen"`
	LastSeen         time.Time         `json:"last_seen"`
	SignalStrength   *int16            `json:"signal_strength,omitempty"`
	DeviceClass      *uint32           `json:"device_class,omitempty"`
	Services         []string          `json:"services"`
	ManufacturerData map[uint16][]byte `json:"manufacturer_data,omitempty"`
	Signatures       []string          `json:"signatures"`
}

// DeepCopy returns an independent copy of the record.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.SignalStrength != nil {
		v := *r.SignalStrength
		c.SignalStrength = &v
	}
	if r.DeviceClass != nil {
		v := *r.DeviceClass
		c.DeviceClass = &v
	}
	c.Services = slices.Clone(r.Services)
	c.Signatures = slices.Clone(r.Signatures)
	if r.ManufacturerData != nil {
		c.ManufacturerData = make(map[uint16][]byte, len(r.ManufacturerData))
		for id, data := range r.ManufacturerData {
			c.ManufacturerData[id] = slices.Clone(data)
		}
	}
	return &c
}

// ManufacturerIDs returns the manufacturer ids in ascending order.
func (r *Record) ManufacturerIDs() []uint16 {
	return slices.Sorted(maps.Keys(r.ManufacturerData))
}

// NormalizeAddress upper-cases and trims an address so sightings of the
// same radio from either transport share one key.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// mergeServices returns existing with every new service appended once.
// Comparison is case-insensitive; the first spelling wins.
func mergeServices(existing, incoming []string) []string {
	out := existing
	for _, s := range incoming {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !slices.ContainsFunc(out, func(e string) bool { return strings.EqualFold(e, s) }) {
			out = append(out, s)
		}
	}
	return out
}
