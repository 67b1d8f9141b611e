// Package transport provides the concrete radio collaborators used by the
// connection manager and the discovery loop.
//
// Two transport families are covered:
//
//   - Classic: inquiry runs through BlueZ over D-Bus (Adapter1 discovery with a
//     BR/EDR filter) and connections are RFCOMM stream sockets.
//   - Advertisement: scanning and GATT sessions run through go-ble on the raw
//     HCI device.
//
// Every scanner satisfies the same shape:
//
//	Scan(ctx context.Context, d time.Duration, emit func(device.Sighting)) error
//
// A missing adapter or radio that cannot be opened is reported wrapped in
// connection.ErrTransportUnavailable so the discovery loop ends the pass
// instead of retrying. All other errors are transient.
//
// The socket and HCI implementations are Linux only. Other platforms build
// stubs that report the transport as unavailable.
package transport
