package capability

import "errors"

var (
	// ErrEmptyCommand is returned when a request carries no command name.
	ErrEmptyCommand = errors.New("capability: empty command")

	// ErrUnknownPlatform is returned when a platform name cannot be parsed.
	ErrUnknownPlatform = errors.New("capability: unknown platform")

	// ErrNoReply is returned when the peer answers with an empty frame.
	ErrNoReply = errors.New("capability: empty reply")
)
