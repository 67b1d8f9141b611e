package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/bluescout-core/internal/device"
)

// BlueZ D-Bus names.
const (
	bluezBus          = "org.bluez"
	bluezAdapter1     = "org.bluez.Adapter1"
	bluezDevice1      = "org.bluez.Device1"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"
)

// DefaultAdapter is the HCI adapter used when none is configured.
const DefaultAdapter = "hci0"

// Logger is the logging interface used by the transports.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BlueZInquirer runs classic inquiry through the BlueZ daemon.
//
// The system bus connection is the shared one from dbus.SystemBus and is
// never closed here.
type BlueZInquirer struct {
	adapter string
	connect func() (*dbus.Conn, error)
	logger  Logger
}

// NewBlueZInquirer creates an inquirer bound to the named adapter ("hci0").
func NewBlueZInquirer(adapter string) *BlueZInquirer {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	return &BlueZInquirer{
		adapter: adapter,
		connect: dbus.SystemBus,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (b *BlueZInquirer) SetLogger(l Logger) {
	if l != nil {
		b.logger = l
	}
}

// Scan runs BR/EDR discovery for d and emits one sighting per classic device
// heard during this inquiry. Cancelling ctx ends discovery early; devices
// found so far are still emitted.
func (b *BlueZInquirer) Scan(ctx context.Context, d time.Duration, emit func(device.Sighting)) error {
	conn, err := b.connect()
	if err != nil {
		return unavailable("system bus", err)
	}

	adapterPath := dbus.ObjectPath("/org/bluez/" + b.adapter)
	adapter := conn.Object(bluezBus, adapterPath)

	powered, err := adapter.GetProperty(bluezAdapter1 + ".Powered")
	if err != nil {
		return unavailable("adapter "+b.adapter, err)
	}
	if on, ok := powered.Value().(bool); ok && !on {
		return unavailable("adapter "+b.adapter, fmt.Errorf("powered off"))
	}

	filter := map[string]dbus.Variant{
		"Transport": dbus.MakeVariant("bredr"),
	}
	if call := adapter.CallWithContext(ctx, bluezAdapter1+".SetDiscoveryFilter", 0, filter); call.Err != nil {
		b.logger.Debug("discovery filter rejected", "adapter", b.adapter, "error", call.Err)
	}

	if call := adapter.CallWithContext(ctx, bluezAdapter1+".StartDiscovery", 0); call.Err != nil {
		return fmt.Errorf("start discovery on %s: %w", b.adapter, call.Err)
	}

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()

	// BlueZ drops the RSSI property once discovery stops, so the object
	// snapshot is taken while the inquiry is still running.
	objects, listErr := managedObjects(conn)

	if call := adapter.Call(bluezAdapter1+".StopDiscovery", 0); call.Err != nil {
		b.logger.Debug("stop discovery failed", "adapter", b.adapter, "error", call.Err)
	}
	if listErr != nil {
		return listErr
	}

	found := emitInRange(objects, adapterPath, emit)
	b.logger.Debug("classic inquiry complete", "adapter", b.adapter, "devices", found)
	return ctx.Err()
}

type managedObjectMap = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func managedObjects(conn *dbus.Conn) (managedObjectMap, error) {
	var objects managedObjectMap
	call := conn.Object(bluezBus, "/").Call(dbusObjectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("list managed objects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("decode managed objects: %w", err)
	}
	return objects, nil
}

// emitInRange emits the classic devices under adapterPath that the running
// inquiry actually heard. Paired and cached devices that are out of range
// carry no RSSI and are skipped. Returns the number emitted.
func emitInRange(objects managedObjectMap, adapterPath dbus.ObjectPath, emit func(device.Sighting)) int {
	prefix := string(adapterPath) + "/"
	found := 0
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := ifaces[bluezDevice1]
		if !ok {
			continue
		}
		if _, heard := variantValue[int16](props, "RSSI"); !heard {
			continue
		}
		s, ok := classicSighting(props)
		if !ok {
			continue
		}
		emit(s)
		found++
	}
	return found
}

// classicSighting converts Device1 properties into a sighting. Devices
// without a Class of Device are LE-only entries cached by the daemon and
// are skipped.
func classicSighting(props map[string]dbus.Variant) (device.Sighting, bool) {
	address, ok := variantValue[string](props, "Address")
	if !ok || address == "" {
		return device.Sighting{}, false
	}
	class, ok := variantValue[uint32](props, "Class")
	if !ok {
		return device.Sighting{}, false
	}

	name, _ := variantValue[string](props, "Name")
	uuids, _ := variantValue[[]string](props, "UUIDs")

	return device.Sighting{
		Address:     device.NormalizeAddress(address),
		Name:        name,
		Transport:   device.TransportClassic,
		Services:    normalizeUUIDs(uuids),
		DeviceClass: &class,
	}, true
}

func variantValue[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := props[key]
	if !ok {
		return zero, false
	}
	out, ok := v.Value().(T)
	if !ok {
		return zero, false
	}
	return out, true
}
