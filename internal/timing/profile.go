package timing

import "fmt"

// Level selects one of the fixed timing-shaping profiles.
type Level int

const (
	// Level1 is uniform random delays only. Fastest.
	Level1 Level = 1
	// Level2 adds a single slow sinusoid and damps transport bias.
	Level2 Level = 2
	// Level3 adds layered sinusoids and human-like micro-patterns. Slowest.
	Level3 Level = 3
)

// String returns the level as "L1".."L3".
func (l Level) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// Profile is the process-wide stealth configuration.
// It is a value type; copies cannot alter an engine built from it.
type Profile struct {
	Level Level
}

// NewProfile validates level and returns the matching Profile.
func NewProfile(level int) (Profile, error) {
	l := Level(level)
	if l < Level1 || l > Level3 {
		return Profile{}, fmt.Errorf("%w: got %d", ErrInvalidLevel, level)
	}
	return Profile{Level: l}, nil
}
