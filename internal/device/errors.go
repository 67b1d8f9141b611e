package device

import "errors"

var (
	// ErrDeviceNotFound is returned when an address has no registry record.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidSighting is returned when a sighting has no usable address
	// or an unknown transport.
	ErrInvalidSighting = errors.New("device: invalid sighting")
)
