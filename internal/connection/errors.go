package connection

import "errors"

var (
	// ErrTransportUnavailable indicates the radio adapter or driver cannot
	// be reached. Transport implementations wrap it.
	ErrTransportUnavailable = errors.New("connection: transport unavailable")

	// ErrConnectFailed indicates the remote refused or could not be reached.
	ErrConnectFailed = errors.New("connection: connect failed")

	// ErrNotConnected is returned for operations on an address with no
	// live connection.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrAlreadyInProgress is returned when another operation already owns
	// the address.
	ErrAlreadyInProgress = errors.New("connection: already in progress")

	// ErrInvalidTarget is returned for an empty address or unknown transport.
	ErrInvalidTarget = errors.New("connection: invalid target")
)
