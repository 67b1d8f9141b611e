package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/bluescout-core/internal/connection"
	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/timing"
)

// Defaults applied by NewLoop to zero Options fields.
const (
	DefaultInterval         = 60 * time.Second
	DefaultTransientBackoff = time.Second
	DefaultBreakerFailures  = 5
	DefaultBreakerTimeout   = 30 * time.Second

	// intervalJitter is the ratio passed to Jitter for the inter-cycle sleep.
	intervalJitter = 0.3
)

// Logger defines the logging interface used by the loop.
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

// Scanner runs one scan window on one transport and reports each sighting
// through emit. emit may be called from another goroutine.
type Scanner interface {
	Scan(ctx context.Context, d time.Duration, emit func(device.Sighting)) error
}

// Events receives discovery output.
type Events interface {
	DeviceDiscovered(rec device.Record)
	PassComplete(res PassResult)
}

// Telemetry receives signal and pass metrics.
type Telemetry interface {
	WriteSignal(address string, rssi int16, at time.Time)
	WriteScanPass(transport string, seen, discovered, failures int, elapsed time.Duration)
}

// PassResult summarises one scan pass.
type PassResult struct {
	Transport  device.Transport `json:"transport"`
	StartedAt  time.Time        `json:"started_at"`
	Elapsed    time.Duration    `json:"elapsed"`
	Windows    int              `json:"windows"`
	Seen       int              `json:"seen"`
	Discovered int              `json:"discovered"`
	Failures   int              `json:"failures"`
	Error      string           `json:"error,omitempty"`
}

// Options configures a Loop.
type Options struct {
	Registry *device.Registry
	Engine   *timing.Engine

	// Classic and Advertisement may each be nil; at least one is required
	// for Run and Rescan.
	Classic       Scanner
	Advertisement Scanner

	Events    Events
	Telemetry Telemetry

	Interval    time.Duration
	MaxDuration time.Duration

	// ClassicProbability is the chance a Run cycle picks classic when both
	// scanners exist. Zero never picks classic.
	ClassicProbability float64

	ClearOnRescan    bool
	TransientBackoff time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Loop is the discovery driver.
//
// Each pass runs the configured scanners behind a per-transport circuit
// breaker and merges every sighting into the registry. Pauses between
// passes come from the timing engine.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Only one Run may be active; a second returns ErrAlreadyRunning.
type Loop struct {
	registry  *device.Registry
	engine    *timing.Engine
	scanners  map[device.Transport]Scanner
	breakers  map[device.Transport]*gobreaker.CircuitBreaker[struct{}]
	events    Events
	telemetry Telemetry

	interval           time.Duration
	maxDuration        time.Duration
	classicProbability float64
	clearOnRescan      bool
	backoff            time.Duration

	now    func() time.Time
	logger Logger

	mu       sync.Mutex
	run      *runState
	lastPass *PassResult
}

type runState struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a loop from opts.
func NewLoop(opts Options) *Loop {
	if opts.Registry == nil {
		opts.Registry = device.NewRegistry(nil, nil)
	}
	if opts.Engine == nil {
		opts.Engine = timing.New(timing.Profile{Level: timing.Level2})
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.TransientBackoff <= 0 {
		opts.TransientBackoff = DefaultTransientBackoff
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = DefaultBreakerTimeout
	}

	l := &Loop{
		registry:           opts.Registry,
		engine:             opts.Engine,
		scanners:           make(map[device.Transport]Scanner),
		breakers:           make(map[device.Transport]*gobreaker.CircuitBreaker[struct{}]),
		events:             opts.Events,
		telemetry:          opts.Telemetry,
		interval:           opts.Interval,
		maxDuration:        opts.MaxDuration,
		classicProbability: opts.ClassicProbability,
		clearOnRescan:      opts.ClearOnRescan,
		backoff:            opts.TransientBackoff,
		now:                time.Now,
		logger:             noopLogger{},
	}

	for transport, s := range map[device.Transport]Scanner{
		device.TransportClassic:       opts.Classic,
		device.TransportAdvertisement: opts.Advertisement,
	} {
		if s == nil {
			continue
		}
		l.scanners[transport] = s
		l.breakers[transport] = l.newBreaker(transport, opts.BreakerFailures, opts.BreakerTimeout)
	}
	return l
}

func (l *Loop) newBreaker(transport device.Transport, failures uint32, timeout time.Duration) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "scan:" + string(transport),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("scan breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Run cycles scan passes until ctx is cancelled, Stop is called, or the
// maximum duration elapses. It returns nil on any of those.
//
// Returns:
//   - error: ErrNoScanners or ErrAlreadyRunning, before any pass starts
func (l *Loop) Run(ctx context.Context) error {
	runCtx, rs, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer l.end(rs)

	l.cycle(runCtx)
	return nil
}

// Start runs the persistent scan in the background.
func (l *Loop) Start(ctx context.Context) error {
	runCtx, rs, err := l.begin(ctx)
	if err != nil {
		return err
	}
	go func() {
		defer l.end(rs)
		l.cycle(runCtx)
	}()
	return nil
}

// Stop ends a persistent scan and waits for it to return. No-op when idle.
func (l *Loop) Stop() {
	l.mu.Lock()
	rs := l.run
	l.mu.Unlock()
	if rs == nil {
		return
	}
	rs.cancel()
	<-rs.done
}

// Running reports whether a persistent scan is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run != nil
}

// LastPass returns the most recent completed pass.
func (l *Loop) LastPass() (PassResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastPass == nil {
		return PassResult{}, false
	}
	return *l.lastPass, true
}

func (l *Loop) begin(ctx context.Context) (context.Context, *runState, error) {
	if len(l.scanners) == 0 {
		return nil, nil, ErrNoScanners
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.run != nil {
		return nil, nil, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if l.maxDuration > 0 {
		var stopTimer context.CancelFunc
		runCtx, stopTimer = context.WithTimeout(runCtx, l.maxDuration)
		parent := cancel
		cancel = func() {
			stopTimer()
			parent()
		}
	}

	rs := &runState{cancel: cancel, done: make(chan struct{})}
	l.run = rs
	return runCtx, rs, nil
}

func (l *Loop) end(rs *runState) {
	rs.cancel()
	l.mu.Lock()
	if l.run == rs {
		l.run = nil
	}
	l.mu.Unlock()
	close(rs.done)
}

func (l *Loop) cycle(ctx context.Context) {
	l.logger.Info("persistent scan started", "interval", l.interval, "max_duration", l.maxDuration)
	defer l.logger.Info("persistent scan stopped")

	for ctx.Err() == nil {
		started := l.now()
		transport := l.pick()

		if _, err := l.pass(ctx, transport, 0); err != nil && ctx.Err() == nil {
			l.logger.Warn("scan pass ended early", "transport", string(transport), "error", err)
		}

		elapsed := l.now().Sub(started)
		pause := l.engine.Jitter(max(0, l.interval-elapsed), intervalJitter)
		if err := l.engine.Sleep(ctx, pause); err != nil {
			return
		}
	}
}

// pick selects the transport for the next cycle.
func (l *Loop) pick() device.Transport {
	_, classic := l.scanners[device.TransportClassic]
	_, adv := l.scanners[device.TransportAdvertisement]

	switch {
	case classic && adv:
		if l.engine.Choose(l.classicProbability) {
			return device.TransportClassic
		}
		return device.TransportAdvertisement
	case classic:
		return device.TransportClassic
	default:
		return device.TransportAdvertisement
	}
}

// ScanClassic runs one classic pass. d <= 0 uses a shaped cycle duration.
func (l *Loop) ScanClassic(ctx context.Context, d time.Duration) (PassResult, error) {
	return l.pass(ctx, device.TransportClassic, d)
}

// ScanAdvertisement runs one advertisement pass. d <= 0 uses a shaped cycle duration.
func (l *Loop) ScanAdvertisement(ctx context.Context, d time.Duration) (PassResult, error) {
	return l.pass(ctx, device.TransportAdvertisement, d)
}

// ScanBoth runs one pass on every configured transport side by side. A
// failure on one transport does not stop the other; the first error is
// returned with every result.
func (l *Loop) ScanBoth(ctx context.Context, d time.Duration) ([]PassResult, error) {
	order := make([]device.Transport, 0, 2)
	for _, t := range []device.Transport{device.TransportClassic, device.TransportAdvertisement} {
		if _, ok := l.scanners[t]; ok {
			order = append(order, t)
		}
	}
	if len(order) == 0 {
		return nil, ErrNoScanners
	}

	results := make([]PassResult, len(order))
	var g errgroup.Group
	for i, t := range order {
		g.Go(func() error {
			res, err := l.pass(ctx, t, d)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// Rescan runs ScanBoth with a shaped duration, clearing the registry first
// when configured to.
func (l *Loop) Rescan(ctx context.Context) ([]PassResult, error) {
	if l.clearOnRescan {
		l.registry.Clear(ctx)
		l.logger.Info("registry cleared for rescan")
	}
	return l.ScanBoth(ctx, 0)
}

// pass runs scan windows on transport until the budget d is spent.
// Window and pause lengths are charged against the budget so a pass
// always terminates even when the scanner returns early.
func (l *Loop) pass(ctx context.Context, transport device.Transport, d time.Duration) (PassResult, error) {
	scanner, ok := l.scanners[transport]
	if !ok {
		return PassResult{Transport: transport}, fmt.Errorf("%w: no %s scanner", connection.ErrTransportUnavailable, transport)
	}
	breaker := l.breakers[transport]

	if d <= 0 {
		d = l.engine.Delay(timing.ScanCycleDuration, timing.Params{})
	}

	res := PassResult{Transport: transport, StartedAt: l.now()}
	tally := newTally()
	emit := l.emitter(ctx, tally)

	pauseKind := timing.ScanJitter
	if transport == device.TransportClassic {
		pauseKind = timing.ScanPause
	}

	l.logger.Debug("scan pass starting", "transport", string(transport), "budget", d)

	var passErr error
	for remaining := d; remaining > 0; {
		window := min(remaining, max(time.Millisecond, l.engine.Delay(timing.ScanWindowWidth, timing.Params{})))
		remaining -= window
		res.Windows++

		_, err := breaker.Execute(func() (struct{}, error) {
			return struct{}{}, scanner.Scan(ctx, window, emit)
		})

		switch {
		case ctx.Err() != nil:
			passErr = ctx.Err()
		case err == nil:
		case errors.Is(err, connection.ErrTransportUnavailable):
			l.logger.Error("adapter unavailable, ending pass", "transport", string(transport), "error", err)
			passErr = err
		default:
			res.Failures++
			l.logger.Warn("transient scan error", "transport", string(transport), "error", err)
			remaining -= l.backoff
			if err := l.engine.Sleep(ctx, l.backoff); err != nil {
				passErr = err
			}
			if passErr == nil {
				continue
			}
		}
		if passErr != nil || remaining <= 0 {
			break
		}

		pause := l.engine.Delay(pauseKind, timing.Params{})
		remaining -= pause
		if err := l.engine.Sleep(ctx, pause); err != nil {
			passErr = err
			break
		}
	}

	res.Seen, res.Discovered = tally.counts()
	res.Elapsed = l.now().Sub(res.StartedAt)
	if passErr != nil {
		res.Error = passErr.Error()
	}
	l.finish(res)
	return res, passErr
}

// emitter merges each sighting and fans it out to events and telemetry.
func (l *Loop) emitter(ctx context.Context, t *tally) func(device.Sighting) {
	return func(s device.Sighting) {
		isNew, err := l.registry.MergeSighting(ctx, s)
		if err != nil {
			l.logger.Debug("sighting rejected", "address", s.Address, "error", err)
			return
		}
		address := device.NormalizeAddress(s.Address)
		t.add(address, isNew)

		if s.SignalStrength != nil && l.telemetry != nil {
			l.telemetry.WriteSignal(address, *s.SignalStrength, l.now())
		}
		if isNew && l.events != nil {
			if rec, ok := l.registry.Get(address); ok {
				l.events.DeviceDiscovered(rec)
			}
		}
	}
}

func (l *Loop) finish(res PassResult) {
	l.mu.Lock()
	l.lastPass = &res
	l.mu.Unlock()

	l.logger.Info("scan pass complete",
		"transport", string(res.Transport),
		"seen", res.Seen,
		"discovered", res.Discovered,
		"failures", res.Failures,
		"elapsed", res.Elapsed,
	)

	if l.telemetry != nil {
		l.telemetry.WriteScanPass(string(res.Transport), res.Seen, res.Discovered, res.Failures, res.Elapsed)
	}
	if l.events != nil {
		l.events.PassComplete(res)
	}
}

// tally counts distinct addresses seen in one pass.
type tally struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	discovered int
}

func newTally() *tally {
	return &tally{seen: make(map[string]struct{})}
}

func (t *tally) add(address string, isNew bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[address] = struct{}{}
	if isNew {
		t.discovered++
	}
}

func (t *tally) counts() (seen, discovered int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen), t.discovered
}
