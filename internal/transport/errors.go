package transport

import (
	"errors"
	"fmt"

	"github.com/nerrad567/bluescout-core/internal/connection"
)

var (
	// ErrInvalidAddress is returned when an address is not six colon-separated octets.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrStreamClosed is returned by I/O on a closed stream.
	ErrStreamClosed = errors.New("transport: stream closed")

	// ErrInvalidChannel is returned for RFCOMM channels outside 1-30.
	ErrInvalidChannel = errors.New("transport: invalid rfcomm channel")

	// ErrCharacteristicNotFound is returned when a session has no such characteristic.
	ErrCharacteristicNotFound = errors.New("transport: characteristic not found")
)

// unavailable marks err as a loss of the radio itself.
func unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", connection.ErrTransportUnavailable, what, err)
}
