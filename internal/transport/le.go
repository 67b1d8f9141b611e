package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"

	"github.com/nerrad567/bluescout-core/internal/connection"
	"github.com/nerrad567/bluescout-core/internal/device"
)

// LE scans advertisements and opens GATT sessions on one HCI device.
// The device is opened on first use and held until Close.
type LE struct {
	deviceID int
	open     func(id int) (ble.Device, error)
	logger   Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewLE creates an advertisement transport for HCI device id (0 for hci0).
func NewLE(deviceID int) *LE {
	return &LE{deviceID: deviceID, open: openHCI, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (l *LE) SetLogger(lg Logger) {
	if lg != nil {
		l.logger = lg
	}
}

func (l *LE) device() (ble.Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dev != nil {
		return l.dev, nil
	}
	dev, err := l.open(l.deviceID)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("hci%d", l.deviceID), err)
	}
	l.dev = dev
	return dev, nil
}

// Scan listens for advertisements for d and emits one sighting per packet.
// Duplicates are reported so signal strength stays current.
func (l *LE) Scan(ctx context.Context, d time.Duration, emit func(device.Sighting)) error {
	dev, err := l.device()
	if err != nil {
		return err
	}

	scanCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	handler := func(a ble.Advertisement) {
		emit(advertisementSighting(a.Addr().String(), a.LocalName(), a.RSSI(), uuidStrings(a.Services()), a.ManufacturerData()))
	}

	err = dev.Scan(scanCtx, true, handler)
	if err != nil && scanCtx.Err() == nil {
		return fmt.Errorf("advertisement scan: %w", err)
	}
	return ctx.Err()
}

// Connect opens a GATT session and discovers its profile.
func (l *LE) Connect(ctx context.Context, address string) (connection.Session, error) {
	dev, err := l.device()
	if err != nil {
		return nil, err
	}

	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection() //nolint:errcheck // Discovery error takes precedence
		return nil, fmt.Errorf("discover profile %s: %w", address, err)
	}

	l.logger.Debug("gatt session open", "address", address, "services", len(profile.Services))
	return &leSession{client: client, profile: profile}, nil
}

// Close releases the HCI device.
func (l *LE) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dev == nil {
		return nil
	}
	err := l.dev.Stop()
	l.dev = nil
	return err
}

type leSession struct {
	client  ble.Client
	profile *ble.Profile
}

func (s *leSession) Services(context.Context) ([]string, error) {
	out := make([]string, 0, len(s.profile.Services))
	for _, svc := range s.profile.Services {
		out = append(out, normalizeUUID(svc.UUID.String()))
	}
	return out, nil
}

func (s *leSession) WriteCharacteristic(ctx context.Context, uuid string, data []byte) error {
	c := findCharacteristic(s.profile, uuid)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrCharacteristicNotFound, uuid)
	}
	_, err := withContext(ctx, func() (struct{}, error) {
		return struct{}{}, s.client.WriteCharacteristic(c, data, false)
	})
	return err
}

func (s *leSession) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	c := findCharacteristic(s.profile, uuid)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, uuid)
	}
	return withContext(ctx, func() ([]byte, error) {
		return s.client.ReadCharacteristic(c)
	})
}

func (s *leSession) Disconnect() error {
	return s.client.CancelConnection()
}

// findCharacteristic looks a characteristic up by UUID in any spelling.
func findCharacteristic(p *ble.Profile, uuid string) *ble.Characteristic {
	if p == nil {
		return nil
	}
	want := normalizeUUID(uuid)
	for _, svc := range p.Services {
		for _, c := range svc.Characteristics {
			if normalizeUUID(c.UUID.String()) == want {
				return c
			}
		}
	}
	return nil
}

func uuidStrings(in []ble.UUID) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, u := range in {
		out[i] = u.String()
	}
	return out
}

// withContext runs a blocking GATT call and returns early when ctx ends.
// The call itself keeps running until the stack answers.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

var _ connection.SessionTransport = (*LE)(nil)
