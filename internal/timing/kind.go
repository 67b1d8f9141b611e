package timing

import "time"

// Kind identifies which delay model to apply.
type Kind int

const (
	// ScanJitter is the general-purpose pacing delay used between scan
	// bursts and before teardown. Advances the engine phase.
	ScanJitter Kind = iota + 1

	// ScanPause is the short pause between classic inquiry rounds.
	ScanPause

	// ConnectionAttempt is applied before every transport connect.
	ConnectionAttempt

	// TransmissionShape paces a payload of Params.Size bytes.
	TransmissionShape

	// ScanWindowWidth sizes one advertisement listening window.
	ScanWindowWidth

	// ScanCycleDuration sizes one full discovery pass.
	ScanCycleDuration
)

var kindNames = map[Kind]string{
	ScanJitter:        "scan_jitter",
	ScanPause:         "scan_pause",
	ConnectionAttempt: "connection_attempt",
	TransmissionShape: "transmission_shape",
	ScanWindowWidth:   "scan_window_width",
	ScanCycleDuration: "scan_cycle_duration",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Params tunes a single delay request. Zero values select the defaults.
type Params struct {
	// Base is the fixed floor for ScanJitter and ScanPause.
	Base time.Duration
	// Scale is the width of the uniform term for ScanJitter and ScanPause.
	Scale time.Duration
	// Size is the payload length in bytes for TransmissionShape.
	Size int
}

// Defaults for Params. ConnectionAttempt at level 1 uses its own pair.
const (
	DefaultJitterBase  = 100 * time.Millisecond
	DefaultJitterScale = 2 * time.Second
	DefaultPauseBase   = 100 * time.Millisecond
	DefaultPauseScale  = time.Second

	attemptBase  = 500 * time.Millisecond
	attemptScale = time.Second
)

// Caps on TransmissionShape totals.
const (
	TransmissionCapL1 = 5 * time.Second
	TransmissionCapL2 = 3 * time.Second
)

// Keystroke bounds for short payloads at level 3.
const (
	KeystrokeMin = 50 * time.Millisecond
	KeystrokeMax = 300 * time.Millisecond

	keystrokeThreshold = 128
	chunkSize          = 512
)

// humanRetry is the level 3 connection cadence in seconds: three quick
// attempts, a pause, two follow-ups, a long pause, three final attempts.
var humanRetry = [10]float64{0.2, 0.3, 0.1, 1.5, 0.4, 0.2, 3.0, 0.3, 0.3, 0.3}

// Schedule is an ordered list of delays. A caller sleeps each in turn.
type Schedule []time.Duration

// Total returns the sum of every step.
func (s Schedule) Total() time.Duration {
	var total time.Duration
	for _, d := range s {
		total += d
	}
	return total
}
