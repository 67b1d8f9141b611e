package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementSignal     = "device_signal"
	measurementScanPass   = "scan_pass"
	measurementConnection = "connection_event"
)

// WriteSignal records one advertisement signal strength reading.
//
// The address is a tag so a single device's RSSI history can be queried
// directly. Non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteSignal("AA:BB:CC:11:22:33", -61, time.Now())
func (c *Client) WriteSignal(address string, rssi int16, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(signalPoint(address, rssi, at))
}

// WriteScanPass records the outcome of one discovery pass.
//
// Parameters:
//   - transport: "classic" or "advertisement"
//   - seen: distinct devices observed during the pass
//   - discovered: devices that were new to the registry
//   - failures: transient scan errors absorbed during the pass
//   - elapsed: wall-clock length of the pass
func (c *Client) WriteScanPass(transport string, seen, discovered, failures int, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(scanPassPoint(transport, seen, discovered, failures, elapsed, time.Now()))
}

// WriteConnectionEvent records a connection lifecycle event for an address.
func (c *Client) WriteConnectionEvent(address, transport, event string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(connectionPoint(address, transport, event, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

func signalPoint(address string, rssi int16, at time.Time) *write.Point {
	return write.NewPoint(
		measurementSignal,
		map[string]string{"address": address},
		map[string]interface{}{"rssi": int64(rssi)},
		at,
	)
}

func scanPassPoint(transport string, seen, discovered, failures int, elapsed time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		measurementScanPass,
		map[string]string{"transport": transport},
		map[string]interface{}{
			"seen":       int64(seen),
			"discovered": int64(discovered),
			"failures":   int64(failures),
			"elapsed_ms": elapsed.Milliseconds(),
		},
		at,
	)
}

func connectionPoint(address, transport, event string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementConnection,
		map[string]string{
			"address":   address,
			"transport": transport,
			"event":     event,
		},
		map[string]interface{}{"count": int64(1)},
		at,
	)
}
