// Package influxdb provides InfluxDB connectivity for Blue Scout Core.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes and health monitoring.
//
// # Purpose
//
// Three measurements are written:
//   - device_signal: advertisement RSSI per address over time
//   - scan_pass: per-pass device counts, failures and duration
//   - connection_event: connect, disconnect and failure counts per address
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSignal("AA:BB:CC:11:22:33", -61, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; errors are
// delivered through SetOnError.
package influxdb
