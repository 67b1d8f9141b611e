// Package timing shapes every radio-facing delay in Blue Scout.
//
// An Engine is built from a Profile (one of three stealth levels) and
// produces schedules for scan pacing, connection attempts and payload
// transmission. Level 1 is plain uniform noise. Levels 2 and 3 add slow
// sinusoidal terms so the cadence is neither periodic nor flat-random.
//
// Phase-driven kinds (ScanJitter) advance an internal phase on every call.
// Wall-clock kinds (ScanPause, ScanWindowWidth, ScanCycleDuration, Choose,
// Jitter) use the engine clock as the sinusoid argument. With WithSeed,
// WithPhase and WithClock the full sequence is reproducible.
//
//	eng := timing.New(timing.Profile{Level: timing.Level3}, timing.WithSeed(7))
//	if err := eng.Wait(ctx, timing.ConnectionAttempt, timing.Params{}); err != nil {
//	    return err // cancelled
//	}
package timing
