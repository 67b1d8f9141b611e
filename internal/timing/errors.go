package timing

import "errors"

// ErrInvalidLevel is returned when a stealth level outside 1..3 is requested.
var ErrInvalidLevel = errors.New("timing: stealth level must be 1, 2 or 3")
