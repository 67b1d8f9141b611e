// Package connection provides the Connection Manager for Blue Scout Core.
//
// The Manager owns one State per target address and mediates every read
// and write against either transport family behind a single address-keyed
// surface. Callers never branch on transport type.
//
// # Lifecycle
//
//	Disconnected ──Connect──▶ Connecting ──ok──▶ Connected ──Disconnect──▶ Disconnecting ──▶ Disconnected
//	                              │
//	                              └──error──▶ Disconnected (address absent)
//
// At most one State exists per address. A Connect for an address that is
// Connecting, Connected or Disconnecting fails fast with
// ErrAlreadyInProgress. A failed connect leaves no State behind.
//
// # Timing
//
// The timing engine is consulted before every transport operation:
// ConnectionAttempt before a connect, ScanJitter before a teardown and
// between relay forwarding steps, TransmissionShape before each write.
//
// # Relay
//
// Relay connects two targets and forwards inbound data in both directions
// until the context is cancelled or either side fails. Both connections are
// always torn down before Relay returns.
//
// # Thread Safety
//
// All Manager methods are safe for concurrent use. Operations on different
// addresses never contend beyond a brief map lookup. The transport handle
// never leaves the Manager.
package connection
