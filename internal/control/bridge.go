package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nerrad567/bluescout-core/internal/capability"
	"github.com/nerrad567/bluescout-core/internal/connection"
	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/discovery"
	"github.com/nerrad567/bluescout-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/bluescout-core/internal/signature"
)

const (
	// DefaultCommandTimeout bounds single-shot commands.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultCaptureSize is the capture queue size when a request gives none.
	DefaultCaptureSize = 256
)

// Logger defines the logging interface used by the bridge.
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

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Telemetry records connection events. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteConnectionEvent(address, transport, event string)
}

// Options holds the collaborators for a Bridge. MQTT and Connections are
// required; the rest are optional and the actions that need them answer
// NOT_CONFIGURED when absent.
type Options struct {
	MQTT        MQTTClient
	Connections *connection.Manager
	Registry    *device.Registry
	Discovery   *discovery.Loop
	Correlator  *signature.Correlator
	Resolver    *capability.StaticResolver
	Telemetry   Telemetry

	// RateLimit is commands per second; zero disables limiting.
	RateLimit float64
	Burst     int

	CommandTimeout time.Duration
	CaptureSize    int
}

// Bridge translates MQTT requests into engine operations.
//
// Each request runs in its own goroutine so a slow connect never holds up
// the MQTT client. Relays and captures outlive the request that started
// them and are tracked until stopped or the bridge stops.
//
// Thread Safety:
//   - All public methods are safe for concurrent use.
//   - Inbound requests are rate limited before a goroutine is spawned.
//   - Stop waits for in-flight requests and relays, then stops captures.
type Bridge struct {
	mqtt       MQTTClient
	conns      *connection.Manager
	registry   *device.Registry
	loop       *discovery.Loop
	correlator *signature.Correlator
	resolver   *capability.StaticResolver
	telemetry  Telemetry

	limiter        *rate.Limiter
	commandTimeout time.Duration
	captureSize    int

	relayMu sync.Mutex
	relays  map[string]*relay

	captureMu sync.Mutex
	captures  map[string]*connection.Capture

	// Shutdown coordination
	mu        sync.Mutex
	stopped   bool
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopCtx   func() bool

	logger Logger
}

type relay struct {
	id     string
	a, b   connection.Target
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewBridge creates a bridge. Call Start to subscribe.
//
// Parameters:
//   - opts: MQTT and Connections are required. Registry, Discovery, Correlator,
//     Resolver and Telemetry are optional; actions needing a missing one
//     answer NOT_CONFIGURED.
//
// Returns:
//   - *Bridge: Not yet subscribed
//   - error: ErrNotConfigured if a required collaborator is nil
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrNotConfigured)
	}
	if opts.Connections == nil {
		return nil, fmt.Errorf("%w: connection manager is required", ErrNotConfigured)
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.CaptureSize <= 0 {
		opts.CaptureSize = DefaultCaptureSize
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := max(1, opts.Burst)

	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Bridge{
		mqtt:           opts.MQTT,
		conns:          opts.Connections,
		registry:       opts.Registry,
		loop:           opts.Discovery,
		correlator:     opts.Correlator,
		resolver:       opts.Resolver,
		telemetry:      opts.Telemetry,
		limiter:        rate.NewLimiter(limit, burst),
		commandTimeout: opts.CommandTimeout,
		captureSize:    opts.CaptureSize,
		relays:         make(map[string]*relay),
		captures:       make(map[string]*connection.Capture),
		ctx:            ctx,
		ctxCancel:      ctxCancel,
		logger:         noopLogger{},
	}, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start subscribes to the command topics. Cancelling ctx has the same
// effect on running work as Stop, except that the subscription is kept.
//
// Parameters:
//   - ctx: Parent of every request, relay and capture context
//
// Returns:
//   - error: If the command subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	b.stopCtx = context.AfterFunc(ctx, b.ctxCancel)

	topic := mqtt.Topics{}.AllCommands()
	if err := b.mqtt.Subscribe(topic, 1, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)
	return nil
}

// Stop unsubscribes, cancels relays and captures, and waits for in-flight
// requests. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()

		if err := b.mqtt.Unsubscribe(mqtt.Topics{}.AllCommands()); err != nil {
			b.logger.Warn("unsubscribe from commands failed", "error", err)
		}

		b.ctxCancel()
		if b.stopCtx != nil {
			b.stopCtx()
		}
		b.wg.Wait()

		b.captureMu.Lock()
		for addr, c := range b.captures {
			c.Stop()
			delete(b.captures, addr)
		}
		b.captureMu.Unlock()

		b.logger.Info("control bridge stopped")
	})
}

// handleMessage routes one command. Parse failures are returned to the
// MQTT client for logging; everything else is answered on the response topic.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	action, ok := strings.CutPrefix(topic, mqtt.TopicPrefix+"/command/")
	if !ok || action == "" || strings.Contains(action, "/") {
		return fmt.Errorf("%w: topic %s", ErrUnknownAction, topic)
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRequest, action, err)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if !b.limiter.Allow() {
		b.logger.Warn("command rate limited", "action", action, "request_id", req.RequestID)
		b.respond(NewErrorResponse(req, action, ErrRateLimited))
		return nil
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.respond(b.dispatch(action, req))
	}()
	return nil
}

func (b *Bridge) dispatch(action string, req Request) Response {
	b.logger.Info("received command", "action", action, "request_id", req.RequestID, "address", req.Address)

	data, err := b.execute(action, req)
	if err != nil {
		b.logger.Warn("command failed", "action", action, "request_id", req.RequestID, "error", err)
		return NewErrorResponse(req, action, err)
	}
	return NewResponse(req, action, data)
}

func (b *Bridge) execute(action string, req Request) (any, error) {
	switch action {
	case ActionConnect:
		return b.connect(req)
	case ActionDisconnect:
		return b.disconnect(req)
	case ActionSend:
		return b.send(req)
	case ActionRecv:
		return b.recv(req)
	case ActionExecute:
		return b.executeCommand(req)
	case ActionRelayStart:
		return b.startRelay(req)
	case ActionRelayStop:
		return b.stopRelay(req)
	case ActionCaptureStart:
		return b.startCapture(req)
	case ActionCaptureDrain:
		return b.drainCapture(req, false)
	case ActionCaptureStop:
		return b.drainCapture(req, true)
	case ActionDiscoveryStart:
		return b.startDiscovery()
	case ActionDiscoveryStop:
		return b.stopDiscovery()
	case ActionScan:
		return b.scan(req)
	case ActionRescan:
		return b.rescan()
	case ActionDevices:
		return b.devices()
	case ActionDevice:
		return b.device(req)
	case ActionConnections:
		return b.conns.Connections(), nil
	case ActionAnnotate:
		return b.annotate(req)
	case ActionExploit:
		return b.exploit(req)
	case ActionJournal:
		return b.journal(req)
	case ActionStatus:
		return b.status(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

func (b *Bridge) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.ctx, b.commandTimeout)
}

func requireAddress(req Request) error {
	if strings.TrimSpace(req.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidRequest)
	}
	return nil
}

// transportFor falls back to the transport the device was last sighted on.
func (b *Bridge) transportFor(address string, t device.Transport) device.Transport {
	if t != "" || b.registry == nil {
		return t
	}
	if rec, ok := b.registry.Get(address); ok {
		return rec.Transport
	}
	return t
}

func (b *Bridge) connect(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	ctx, cancel := b.commandContext()
	defer cancel()

	transport := b.transportFor(req.Address, req.Transport)
	st, err := b.conns.Connect(ctx, req.Address, transport, req.params())
	if err != nil {
		b.announce(device.NormalizeAddress(req.Address), transport, connection.EventConnectFailed, err.Error())
		return nil, err
	}
	b.announce(st.Address, st.Transport, connection.EventConnected, st.ID)
	return st, nil
}

func (b *Bridge) disconnect(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	ctx, cancel := b.commandContext()
	defer cancel()

	address := device.NormalizeAddress(req.Address)
	st, _ := b.conns.Get(address)

	b.captureMu.Lock()
	if c, ok := b.captures[address]; ok {
		c.Stop()
		delete(b.captures, address)
	}
	b.captureMu.Unlock()

	if err := b.conns.Disconnect(ctx, address); err != nil {
		return nil, err
	}
	b.announce(address, st.Transport, connection.EventDisconnected, "")
	return map[string]string{"address": address}, nil
}

func (b *Bridge) send(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	ctx, cancel := b.commandContext()
	defer cancel()

	if err := b.conns.Send(ctx, req.Address, req.Payload); err != nil {
		return nil, err
	}
	return map[string]any{"address": device.NormalizeAddress(req.Address), "bytes": len(req.Payload)}, nil
}

func (b *Bridge) recv(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	ctx, cancel := b.commandContext()
	defer cancel()

	data, err := b.conns.Recv(ctx, req.Address)
	if err != nil {
		return nil, err
	}
	return map[string]any{"address": device.NormalizeAddress(req.Address), "payload": data}, nil
}

func (b *Bridge) executeCommand(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	if req.Command == "" {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidRequest)
	}
	ctx, cancel := b.commandContext()
	defer cancel()

	return b.conns.Execute(ctx, req.Address, req.Command, req.Args)
}

// startRelay answers as soon as the relay goroutine is running. Its end is
// announced on the first side's connection topic.
func (b *Bridge) startRelay(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	if req.Peer == nil || strings.TrimSpace(req.Peer.Address) == "" {
		return nil, fmt.Errorf("%w: peer address is required", ErrInvalidRequest)
	}

	a := connection.Target{
		Address:   device.NormalizeAddress(req.Address),
		Transport: b.transportFor(req.Address, req.Transport),
		Params:    req.params(),
	}
	bt := connection.Target{
		Address:   device.NormalizeAddress(req.Peer.Address),
		Transport: b.transportFor(req.Peer.Address, req.Peer.Transport),
		Params:    connection.Params{Port: req.Peer.Port, Characteristic: req.Peer.Characteristic},
	}

	ctx, cancel := context.WithCancel(b.ctx)
	r := &relay{id: uuid.NewString(), a: a, b: bt, cancel: cancel, done: make(chan struct{})}

	b.relayMu.Lock()
	b.relays[r.id] = r
	b.relayMu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(r.done)

		r.err = b.conns.Relay(ctx, a, bt)
		cancel()

		b.relayMu.Lock()
		delete(b.relays, r.id)
		b.relayMu.Unlock()

		detail := "relay " + r.id
		if r.err != nil {
			detail += ": " + r.err.Error()
		}
		b.announce(a.Address, a.Transport, connection.EventRelayEnded, detail)
		b.logger.Info("relay ended", "relay_id", r.id, "a", a.Address, "b", bt.Address, "error", r.err)
	}()

	return map[string]string{"relay_id": r.id, "a": a.Address, "b": bt.Address}, nil
}

func (b *Bridge) stopRelay(req Request) (any, error) {
	b.relayMu.Lock()
	r, ok := b.relays[req.RelayID]
	b.relayMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: relay %q", ErrNotFound, req.RelayID)
	}

	r.cancel()
	ctx, cancel := b.commandContext()
	defer cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]string{"relay_id": r.id}, nil
}

func (b *Bridge) startCapture(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	address := device.NormalizeAddress(req.Address)
	size := req.Capacity
	if size <= 0 {
		size = b.captureSize
	}

	b.captureMu.Lock()
	defer b.captureMu.Unlock()
	if c, ok := b.captures[address]; ok && c.Running() {
		return nil, fmt.Errorf("%w: capture on %s", connection.ErrAlreadyInProgress, address)
	}

	c, err := b.conns.Capture(b.ctx, address, size)
	if err != nil {
		return nil, err
	}
	b.captures[address] = c
	return map[string]any{"address": address, "capacity": size}, nil
}

// drainCapture returns buffered frames. With stop set the capture is ended
// and forgotten first, so the final drain sees every frame.
func (b *Bridge) drainCapture(req Request, stop bool) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	address := device.NormalizeAddress(req.Address)

	b.captureMu.Lock()
	c, ok := b.captures[address]
	if ok && stop {
		delete(b.captures, address)
	}
	b.captureMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no capture on %s", ErrNotFound, address)
	}

	if stop {
		c.Stop()
	}
	out := CaptureData{
		Address: address,
		Frames:  c.Drain(),
		Dropped: c.Dropped(),
		Running: c.Running(),
	}
	if err := c.Err(); err != nil {
		out.Error = err.Error()
	}
	return out, nil
}

func (b *Bridge) startDiscovery() (any, error) {
	if b.loop == nil {
		return nil, fmt.Errorf("%w: discovery", ErrNotConfigured)
	}
	if err := b.loop.Start(b.ctx); err != nil {
		return nil, err
	}
	return map[string]bool{"scanning": true}, nil
}

func (b *Bridge) stopDiscovery() (any, error) {
	if b.loop == nil {
		return nil, fmt.Errorf("%w: discovery", ErrNotConfigured)
	}
	b.loop.Stop()
	return map[string]bool{"scanning": false}, nil
}

// scan runs one pass on the requested transport, or on both when none is
// given. Passes are bounded by their own budget, not the command timeout.
func (b *Bridge) scan(req Request) (any, error) {
	if b.loop == nil {
		return nil, fmt.Errorf("%w: discovery", ErrNotConfigured)
	}
	d := req.duration()

	switch req.Transport {
	case device.TransportClassic:
		return b.loop.ScanClassic(b.ctx, d)
	case device.TransportAdvertisement:
		return b.loop.ScanAdvertisement(b.ctx, d)
	case "":
		return b.loop.ScanBoth(b.ctx, d)
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalidRequest, req.Transport)
	}
}

func (b *Bridge) rescan() (any, error) {
	if b.loop == nil {
		return nil, fmt.Errorf("%w: discovery", ErrNotConfigured)
	}
	return b.loop.Rescan(b.ctx)
}

func (b *Bridge) devices() (any, error) {
	if b.registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrNotConfigured)
	}
	devices := b.registry.Snapshot()
	return discovery.Snapshot{GeneratedAt: time.Now().UTC(), Count: len(devices), Devices: devices}, nil
}

func (b *Bridge) device(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	if b.registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrNotConfigured)
	}
	rec, ok := b.registry.Get(req.Address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, req.Address)
	}
	return rec, nil
}

// annotate records the operator-supplied platform for routing and merges
// the platform signature tags into the device record.
func (b *Bridge) annotate(req Request) (any, error) {
	if err := requireAddress(req); err != nil {
		return nil, err
	}
	p, err := capability.ParsePlatform(req.Platform)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"address": device.NormalizeAddress(req.Address), "platform": p}
	if b.registry != nil {
		ctx, cancel := b.commandContext()
		defer cancel()
		tags, err := b.registry.AnnotatePlatform(ctx, req.Address, string(p), req.Version)
		if err != nil {
			return nil, err
		}
		out["signatures"] = tags
	}

	// Only a successful annotation reaches the resolver.
	if b.resolver != nil {
		b.resolver.Set(req.Address, p)
	}
	return out, nil
}

func (b *Bridge) exploit(req Request) (any, error) {
	if b.correlator == nil {
		return nil, fmt.Errorf("%w: signatures", ErrNotConfigured)
	}
	if req.Exploit == "" {
		return nil, fmt.Errorf("%w: exploit is required", ErrInvalidRequest)
	}
	ex, ok := b.correlator.Database().Exploit(req.Exploit)
	if !ok {
		return nil, fmt.Errorf("%w: exploit %q", ErrNotFound, req.Exploit)
	}

	info := ExploitInfo{Name: req.Exploit, Description: ex.Description, Category: ex.Category, Requires: ex.Requires}
	if req.Address != "" {
		compatible := len(b.correlator.MatchExploitCompat(req.Address, req.Exploit)) > 0
		info.Compatible = &compatible
	}
	return info, nil
}

func (b *Bridge) journal(req Request) (any, error) {
	j := b.conns.Journal()
	if j == nil {
		return []connection.JournalEntry{}, nil
	}
	ctx, cancel := b.commandContext()
	defer cancel()

	address := ""
	if req.Address != "" {
		address = device.NormalizeAddress(req.Address)
	}
	return j.List(ctx, address, req.Limit)
}

func (b *Bridge) status() Status {
	b.relayMu.Lock()
	relays := len(b.relays)
	b.relayMu.Unlock()
	b.captureMu.Lock()
	captures := len(b.captures)
	b.captureMu.Unlock()

	s := Status{Connections: b.conns.Count(), Relays: relays, Captures: captures}
	if b.registry != nil {
		s.Devices = b.registry.Count()
	}
	if b.loop != nil {
		s.Scanning = b.loop.Running()
		if last, ok := b.loop.LastPass(); ok {
			s.LastPass = &last
		}
	}
	return s
}

// announce publishes a connection event and writes it to telemetry.
func (b *Bridge) announce(address string, transport device.Transport, event connection.Event, detail string) {
	if b.telemetry != nil {
		b.telemetry.WriteConnectionEvent(address, string(transport), string(event))
	}

	msg := ConnectionEvent{
		Address:   address,
		Transport: transport,
		Event:     event,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal connection event", "error", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.ConnectionEvent(address), payload, 1, false); err != nil {
		b.logger.Warn("failed to publish connection event", "address", address, "error", err)
	}
}

func (b *Bridge) respond(resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		b.logger.Error("failed to marshal response", "request_id", resp.RequestID, "error", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.Response(resp.RequestID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish response", "request_id", resp.RequestID, "error", err)
	}
}
