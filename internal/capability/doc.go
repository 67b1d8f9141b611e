// Package capability routes operator commands for a connected device to a
// platform-specific executor.
//
// The connection manager owns the link; an Executor only frames the command,
// writes it over the Channel it is handed and returns the peer's reply. No
// command semantics live here. Platform selection is an input supplied by
// the caller through a PlatformResolver, not inferred from the address.
package capability
