package control

import "errors"

var (
	// ErrUnknownAction is returned for a command topic with no handler.
	ErrUnknownAction = errors.New("control: unknown action")

	// ErrInvalidRequest is returned for a request missing required fields.
	ErrInvalidRequest = errors.New("control: invalid request")

	// ErrRateLimited is returned when a request exceeds the command rate.
	ErrRateLimited = errors.New("control: rate limited")

	// ErrNotFound is returned for an unknown relay, capture or exploit.
	ErrNotFound = errors.New("control: not found")

	// ErrNotConfigured is returned when an action needs a collaborator the
	// bridge was built without.
	ErrNotConfigured = errors.New("control: not configured")
)
