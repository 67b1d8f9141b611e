package timing

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Engine computes shaped delays for one stealth profile.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The random source and the
//     phase are guarded by an internal mutex; callers need no locking.
type Engine struct {
	profile Profile

	mu    sync.Mutex
	rng   *rand.Rand
	phase float64

	now    func() time.Time
	sleep  Sleeper
	logger Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed fixes the random source so sequences are reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // timing noise, not crypto
	}
}

// WithPhase sets the starting phase of the phase-driven sinusoids.
func WithPhase(phase float64) Option {
	return func(e *Engine) { e.phase = phase }
}

// WithClock replaces the wall clock used as the sinusoid argument.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleeper replaces the blocking primitive used by Wait.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.sleep = s }
}

// New creates an Engine for profile. A profile with an out-of-range level
// is clamped to the nearest valid level.
func New(profile Profile, opts ...Option) *Engine {
	switch {
	case profile.Level < Level1:
		profile.Level = Level1
	case profile.Level > Level3:
		profile.Level = Level3
	}

	e := &Engine{
		profile: profile,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // timing noise, not crypto
		now:     time.Now,
		sleep:   SleepContext,
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Profile returns the profile the engine was built with.
func (e *Engine) Profile() Profile {
	return e.profile
}

// Plan computes the schedule for kind. Every step is non-negative.
func (e *Engine) Plan(kind Kind, p Params) Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()

	var s Schedule
	switch kind {
	case ScanJitter:
		s = Schedule{e.scanJitter(p)}
	case ScanPause:
		s = Schedule{e.scanPause(p)}
	case ConnectionAttempt:
		s = e.connectionAttempt()
	case TransmissionShape:
		s = e.transmission(p.Size)
	case ScanWindowWidth:
		s = Schedule{e.scanWindow()}
	case ScanCycleDuration:
		s = Schedule{e.scanCycle()}
	default:
		return Schedule{}
	}

	for i, d := range s {
		if d < 0 {
			s[i] = 0
		}
	}
	return s
}

// Delay returns the total duration of the schedule for kind.
func (e *Engine) Delay(kind Kind, p Params) time.Duration {
	return e.Plan(kind, p).Total()
}

// Wait plans kind and sleeps through each step. Cancellation of ctx is
// honoured between and during steps, and ctx.Err() is returned.
func (e *Engine) Wait(ctx context.Context, kind Kind, p Params) error {
	s := e.Plan(kind, p)
	e.logger.Debug("applying timing shape", "kind", kind.String(), "steps", len(s), "total", s.Total())

	for _, d := range s {
		if err := e.sleep(ctx, d); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Sleep blocks for d through the engine's sleeper. Used for pauses whose
// length the caller computed, such as the gap between discovery passes.
func (e *Engine) Sleep(ctx context.Context, d time.Duration) error {
	if err := e.sleep(ctx, max(0, d)); err != nil {
		return err
	}
	return ctx.Err()
}

// Choose draws true with probability p. At levels 2 and 3 the effective
// probability is damped toward the less conspicuous option.
func (e *Engine) Choose(p float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.profile.Level {
	case Level2:
		p *= 0.9
	case Level3:
		p *= 0.8 + 0.1*math.Sin(e.clock()*0.1)
	}
	return e.rng.Float64() < p
}

// Jitter scales v by 1+noise, where noise is a uniform term of width ratio
// plus level-dependent sinusoids. Negative results are clamped to zero.
func (e *Engine) Jitter(v time.Duration, ratio float64) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.clock()
	u := e.rng.Float64() - 0.5

	var noise float64
	switch e.profile.Level {
	case Level1:
		noise = u * ratio
	case Level2:
		noise = u*ratio*0.7 + 0.1*math.Sin(t*0.5)
	default:
		noise = u*ratio*0.5 + 0.1*math.Sin(t*0.3) + 0.05*math.Sin(t*0.7)
	}

	out := seconds(v.Seconds() * (1 + noise))
	if out < 0 {
		return 0
	}
	return out
}

// scanJitter advances the phase at levels 2 and 3.
func (e *Engine) scanJitter(p Params) time.Duration {
	base := orDefault(p.Base, DefaultJitterBase).Seconds()
	scale := orDefault(p.Scale, DefaultJitterScale).Seconds()
	u := e.rng.Float64()

	switch e.profile.Level {
	case Level1:
		return seconds(base + u*scale)
	case Level2:
		d := base + u*scale*0.5 + (0.5*math.Sin(e.phase) + 0.5)
		e.phase += 0.3
		return seconds(d)
	default:
		d := base + u*scale*0.3 + 0.3*math.Sin(e.phase) + 0.4*math.Sin(e.phase*0.5)
		e.phase += 0.2
		return seconds(d)
	}
}

func (e *Engine) scanPause(p Params) time.Duration {
	base := orDefault(p.Base, DefaultPauseBase).Seconds()
	scale := orDefault(p.Scale, DefaultPauseScale).Seconds()
	u := e.rng.Float64()
	t := e.clock()

	switch e.profile.Level {
	case Level1:
		return seconds(base + u*scale)
	case Level2:
		return seconds(base + u*scale*0.5 + 0.3*math.Sin(t))
	default:
		return seconds(base + u*scale*0.3 + 0.2*math.Sin(t) + 0.2*math.Sin(t*0.3))
	}
}

func (e *Engine) connectionAttempt() Schedule {
	switch e.profile.Level {
	case Level1:
		return Schedule{seconds(attemptBase.Seconds() + e.rng.Float64()*attemptScale.Seconds())}
	case Level2:
		bursts := 1 + e.rng.IntN(3)
		s := make(Schedule, 0, bursts+1)
		for range bursts {
			s = append(s, seconds(0.1+e.rng.Float64()*0.2))
		}
		return append(s, seconds(0.5+e.rng.Float64()*1.0))
	default:
		s := make(Schedule, 0, len(humanRetry))
		for _, d := range humanRetry {
			s = append(s, seconds(d*(0.9+e.rng.Float64()*0.2)))
		}
		return s
	}
}

func (e *Engine) transmission(size int) Schedule {
	if size <= 0 {
		return Schedule{}
	}
	kb := float64(size) / 1024

	switch e.profile.Level {
	case Level1:
		return Schedule{min(TransmissionCapL1, seconds(kb*0.1))}
	case Level2:
		d := math.Pow(kb, 0.7) * 0.3 * (0.8 + e.rng.Float64()*0.4)
		return Schedule{min(TransmissionCapL2, seconds(d))}
	}

	if size < keystrokeThreshold {
		s := make(Schedule, size)
		span := (KeystrokeMax - KeystrokeMin).Seconds()
		for i := range s {
			s[i] = seconds(KeystrokeMin.Seconds() + e.rng.Float64()*span)
		}
		return s
	}

	s := make(Schedule, 0, 2*(size/chunkSize+1))
	for remaining := size; remaining > 0; remaining -= chunkSize {
		chunk := min(chunkSize, remaining)
		s = append(s,
			seconds(math.Pow(float64(chunk)/1024, 0.6)*0.5),
			seconds(0.1+e.rng.Float64()*0.3),
		)
	}
	return s
}

func (e *Engine) scanWindow() time.Duration {
	u := e.rng.Float64()
	t := e.clock()

	switch e.profile.Level {
	case Level1:
		return seconds(2.0 + u*3.0)
	case Level2:
		return seconds(1.5 + u*2.0 + 0.5*math.Sin(t*0.5))
	default:
		return seconds(1.0 + u*1.5 + 0.3*math.Sin(t*0.3) + 0.2*math.Sin(t*0.7))
	}
}

func (e *Engine) scanCycle() time.Duration {
	u := e.rng.Float64()
	t := e.clock()

	switch e.profile.Level {
	case Level1:
		return seconds(8.0 + u*10.0)
	case Level2:
		return seconds(6.0 + u*6.0 + 2.0*math.Sin(t*0.2))
	default:
		return seconds(5.0 + u*4.0 + 1.5*math.Sin(t*0.15) + 1.0*math.Sin(t*0.4))
	}
}

// clock returns the engine time in fractional Unix seconds.
func (e *Engine) clock() float64 {
	return float64(e.now().UnixNano()) / float64(time.Second)
}

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
