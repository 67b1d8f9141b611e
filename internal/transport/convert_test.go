package transport

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nerrad567/bluescout-core/internal/device"
)

func TestParseBDAddr(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    [6]byte
		wantErr bool
	}{
		{"upper", "AA:BB:CC:11:22:33", [6]byte{0x33, 0x22, 0x11, 0xcc, 0xbb, 0xaa}, false},
		{"lower", "aa:bb:cc:11:22:33", [6]byte{0x33, 0x22, 0x11, 0xcc, 0xbb, 0xaa}, false},
		{"too short", "AA:BB:CC", [6]byte{}, true},
		{"bad octet", "AA:BB:CC:11:22:ZZ", [6]byte{}, true},
		{"long octet", "AAA:BB:CC:11:22:33", [6]byte{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBDAddr(tt.address)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("parseBDAddr(%q) error = %v, want ErrInvalidAddress", tt.address, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBDAddr(%q) error = %v", tt.address, err)
			}
			if got != tt.want {
				t.Errorf("parseBDAddr(%q) = %x, want %x", tt.address, got, tt.want)
			}
		})
	}
}

func TestSplitManufacturerData(t *testing.T) {
	got := splitManufacturerData([]byte{0x4c, 0x00, 0x02, 0x15})
	want := map[uint16][]byte{0x004c: {0x02, 0x15}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitManufacturerData() = %v, want %v", got, want)
	}
	if got := splitManufacturerData([]byte{0x4c}); got != nil {
		t.Errorf("splitManufacturerData(short) = %v, want nil", got)
	}
}

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"180D", "0000180d-0000-1000-8000-00805f9b34fb"},
		{"0000FFE1", "0000ffe1-0000-1000-8000-00805f9b34fb"},
		{"0000ffe100001000800000805f9b34fb", "0000ffe1-0000-1000-8000-00805f9b34fb"},
		{"0000FFE1-0000-1000-8000-00805F9B34FB", "0000ffe1-0000-1000-8000-00805f9b34fb"},
		{"not-a-uuid", "not-a-uuid"},
		{"zzzz", "zzzz"},
		{"NOTHEX12", "nothex12"},
		{"0000180g-0000-1000-8000-00805f9b34fb", "0000180g-0000-1000-8000-00805f9b34fb"},
	}
	for _, tt := range tests {
		if got := normalizeUUID(tt.in); got != tt.want {
			t.Errorf("normalizeUUID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAdvertisementSighting(t *testing.T) {
	s := advertisementSighting("aa:bb:cc:dd:ee:ff", " Band ", -61, []string{"180d"}, []byte{0x06, 0x00, 0x01})

	if s.Address != "AA:BB:CC:DD:EE:FF" || s.Name != "Band" {
		t.Errorf("address/name = %q/%q", s.Address, s.Name)
	}
	if s.Transport != device.TransportAdvertisement {
		t.Errorf("Transport = %v, want advertisement", s.Transport)
	}
	if s.SignalStrength == nil || *s.SignalStrength != -61 {
		t.Errorf("SignalStrength = %v, want -61", s.SignalStrength)
	}
	if len(s.Services) != 1 || s.Services[0] != "0000180d-0000-1000-8000-00805f9b34fb" {
		t.Errorf("Services = %v", s.Services)
	}
	if p, ok := s.ManufacturerData[0x0006]; !ok || len(p) != 1 {
		t.Errorf("ManufacturerData = %v, want company 0x0006", s.ManufacturerData)
	}
}
