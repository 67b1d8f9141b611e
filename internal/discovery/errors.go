package discovery

import "errors"

var (
	// ErrAlreadyRunning is returned by Run and Start while a persistent scan is active.
	ErrAlreadyRunning = errors.New("discovery: already running")

	// ErrNoScanners is returned when neither transport has a scanner.
	ErrNoScanners = errors.New("discovery: no scanners configured")
)
