package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/bluescout-core/internal/connection"
	"github.com/nerrad567/bluescout-core/internal/device"
)

func TestClassicSighting(t *testing.T) {
	props := map[string]dbus.Variant{
		"Address": dbus.MakeVariant("aa:bb:cc:11:22:33"),
		"Name":    dbus.MakeVariant("Headset"),
		"Class":   dbus.MakeVariant(uint32(0x240404)),
		"UUIDs":   dbus.MakeVariant([]string{"0000110B-0000-1000-8000-00805F9B34FB"}),
		"RSSI":    dbus.MakeVariant(int16(-60)),
	}

	s, ok := classicSighting(props)
	if !ok {
		t.Fatal("classicSighting() ok = false")
	}
	if s.Address != "AA:BB:CC:11:22:33" || s.Name != "Headset" {
		t.Errorf("address/name = %q/%q", s.Address, s.Name)
	}
	if s.Transport != device.TransportClassic {
		t.Errorf("Transport = %v, want classic", s.Transport)
	}
	if s.DeviceClass == nil || *s.DeviceClass != 0x240404 {
		t.Errorf("DeviceClass = %v", s.DeviceClass)
	}
	if s.SignalStrength != nil {
		t.Error("classic sighting carries a signal strength")
	}
	if len(s.Services) != 1 || s.Services[0] != "0000110b-0000-1000-8000-00805f9b34fb" {
		t.Errorf("Services = %v", s.Services)
	}
}

func TestClassicSighting_Skips(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]dbus.Variant
	}{
		{"no address", map[string]dbus.Variant{"Class": dbus.MakeVariant(uint32(1))}},
		{"le only", map[string]dbus.Variant{"Address": dbus.MakeVariant("AA:BB:CC:11:22:33")}},
		{"wrong type", map[string]dbus.Variant{
			"Address": dbus.MakeVariant("AA:BB:CC:11:22:33"),
			"Class":   dbus.MakeVariant("0x240404"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := classicSighting(tt.props); ok {
				t.Error("classicSighting() ok = true, want false")
			}
		})
	}
}

func TestEmitInRange(t *testing.T) {
	device1 := func(addr string, rssi bool) map[string]map[string]dbus.Variant {
		props := map[string]dbus.Variant{
			"Address": dbus.MakeVariant(addr),
			"Class":   dbus.MakeVariant(uint32(0x5a020c)),
		}
		if rssi {
			props["RSSI"] = dbus.MakeVariant(int16(-61))
		}
		return map[string]map[string]dbus.Variant{bluezDevice1: props}
	}
	objects := managedObjectMap{
		"/org/bluez/hci0":                       {bluezAdapter1: {}},
		"/org/bluez/hci0/dev_AA_BB_CC_00_00_01": device1("AA:BB:CC:00:00:01", true),
		// paired earlier, not in range now
		"/org/bluez/hci0/dev_AA_BB_CC_00_00_02": device1("AA:BB:CC:00:00:02", false),
		"/org/bluez/hci1/dev_AA_BB_CC_00_00_03": device1("AA:BB:CC:00:00:03", true),
		"/org/bluez/hci0/dev_AA_BB_CC_00_00_04/service0010": {
			"org.bluez.GattService1": {"UUID": dbus.MakeVariant("0000180f-0000-1000-8000-00805f9b34fb")},
		},
	}

	var got []string
	n := emitInRange(objects, "/org/bluez/hci0", func(s device.Sighting) {
		got = append(got, s.Address)
	})
	if n != 1 || len(got) != 1 || got[0] != "AA:BB:CC:00:00:01" {
		t.Errorf("emitInRange() = %d %v, want 1 [AA:BB:CC:00:00:01]", n, got)
	}
}

func TestBlueZInquirer_NoBus(t *testing.T) {
	b := NewBlueZInquirer("")
	b.connect = func() (*dbus.Conn, error) { return nil, errors.New("no such file or directory") }

	err := b.Scan(context.Background(), time.Millisecond, func(device.Sighting) {
		t.Error("emit called without a bus")
	})
	if !errors.Is(err, connection.ErrTransportUnavailable) {
		t.Errorf("Scan() error = %v, want ErrTransportUnavailable", err)
	}
}
