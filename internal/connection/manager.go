package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/bluescout-core/internal/capability"
	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/timing"
)

// Default transport parameters.
const (
	DefaultPort           = 1
	DefaultCharacteristic = "0000ffe1-0000-1000-8000-00805f9b34fb"
)

// Logger defines the logging interface used by the Manager.
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

// SignatureSource supplies cached signature tags for an address.
// *device.Registry satisfies it.
type SignatureSource interface {
	Signatures(address string) []string
}

// Options configures a Manager. Classic and Session may be nil when the
// corresponding radio is absent; connects on that transport then fail with
// ErrTransportUnavailable.
type Options struct {
	Classic    ClassicTransport
	Session    SessionTransport
	Engine     *timing.Engine
	Signatures SignatureSource
	Journal    Journal
	Router     *capability.Router
	Resolver   capability.PlatformResolver
	Defaults   Params
}

// entry is the manager-owned record for one address.
type entry struct {
	state State
	link  link

	// sendMu and recvMu serialise I/O per direction so a blocked read
	// never holds up a write.
	sendMu sync.Mutex
	recvMu sync.Mutex
}

// Manager owns every connection State, keyed by address.
//
// At most one State exists per address. Delays come from the timing
// engine, so a Connect can block for seconds at the higher stealth levels.
//
// Thread Safety:
//   - All public methods are safe for concurrent use.
//   - The entry map is guarded by a single mutex that is never held across I/O.
//   - Send and Recv on one address are serialised per direction.
type Manager struct {
	classic    ClassicTransport
	session    SessionTransport
	engine     *timing.Engine
	signatures SignatureSource
	journal    Journal
	router     *capability.Router
	resolver   capability.PlatformResolver
	defaults   Params

	mu      sync.Mutex
	entries map[string]*entry

	now    func() time.Time
	logger Logger
}

// NewManager creates a Manager.
//
// Parameters:
//   - opts: Transports and collaborators. A nil Classic or Session leaves
//     that transport unavailable. Engine, Router, Resolver and the default
//     port and characteristic fall back to built-in values.
//
// Returns:
//   - *Manager: With no connections
func NewManager(opts Options) *Manager {
	if opts.Engine == nil {
		opts.Engine = timing.New(timing.Profile{Level: timing.Level1})
	}
	if opts.Router == nil {
		opts.Router = capability.NewRouter()
	}
	if opts.Resolver == nil {
		opts.Resolver = capability.NewStaticResolver()
	}
	if opts.Defaults.Port == 0 {
		opts.Defaults.Port = DefaultPort
	}
	if opts.Defaults.Characteristic == "" {
		opts.Defaults.Characteristic = DefaultCharacteristic
	}

	return &Manager{
		classic:    opts.Classic,
		session:    opts.Session,
		engine:     opts.Engine,
		signatures: opts.Signatures,
		journal:    opts.Journal,
		router:     opts.Router,
		resolver:   opts.Resolver,
		defaults:   opts.Defaults,
		entries:    make(map[string]*entry),
		now:        time.Now,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Connect establishes a connection to address over transport.
//
// A State is reserved in the Connecting phase before any delay is applied,
// so a concurrent Connect for the same address fails fast with
// ErrAlreadyInProgress. On failure the reservation is released and the
// address is left absent.
//
// Parameters:
//   - ctx: Cancels the pre-connect delay and the dial itself
//   - address: Target device; normalised before use
//   - transport: Classic dials RFCOMM, advertisement opens a GATT session
//   - params: Zero fields take the manager defaults
//
// Returns:
//   - State: Snapshot in the Connected phase
//   - error: ErrInvalidTarget, ErrAlreadyInProgress, ErrTransportUnavailable
//     or ErrConnectFailed, wrapped with the address
func (m *Manager) Connect(ctx context.Context, address string, transport device.Transport, params Params) (State, error) {
	address = device.NormalizeAddress(address)
	if address == "" || !transport.Valid() {
		return State{}, fmt.Errorf("%w: %q over %q", ErrInvalidTarget, address, transport)
	}
	params = m.withDefaults(params)

	m.mu.Lock()
	if existing, ok := m.entries[address]; ok {
		phase := existing.state.Phase
		m.mu.Unlock()
		return State{}, fmt.Errorf("%w: %s is %s", ErrAlreadyInProgress, address, phase)
	}
	e := &entry{state: State{Address: address, Transport: transport, Phase: PhaseConnecting}}
	m.entries[address] = e
	m.mu.Unlock()

	m.logger.Info("connecting", "address", address, "transport", string(transport))

	l, services, err := m.dial(ctx, address, transport, params)
	if err != nil {
		m.release(address, e)
		m.record(ctx, address, transport, EventConnectFailed, err.Error())
		m.logger.Warn("connect failed", "address", address, "transport", string(transport), "error", err)
		return State{}, err
	}

	var tags []string
	if m.signatures != nil {
		tags = m.signatures.Signatures(address)
	}

	now := m.now()
	m.mu.Lock()
	e.link = l
	e.state.ID = uuid.NewString()
	e.state.Phase = PhaseConnected
	e.state.EstablishedAt = now
	e.state.LastActivity = now
	e.state.Signatures = tags
	e.state.Services = services
	st := e.state.clone()
	m.mu.Unlock()

	m.record(ctx, address, transport, EventConnected, st.ID)
	m.logger.Info("connected", "address", address, "transport", string(transport), "id", st.ID, "signatures", len(tags))
	return st, nil
}

// dial applies the connection timing and opens the transport link.
func (m *Manager) dial(ctx context.Context, address string, transport device.Transport, params Params) (link, []string, error) {
	if err := m.engine.Wait(ctx, timing.ConnectionAttempt, timing.Params{}); err != nil {
		return nil, nil, err
	}

	switch transport {
	case device.TransportClassic:
		if m.classic == nil {
			return nil, nil, fmt.Errorf("%w: classic", ErrTransportUnavailable)
		}
		stream, err := m.classic.Dial(ctx, address, params.Port)
		if err != nil {
			return nil, nil, connectError(address, err)
		}
		return streamLink{stream: stream}, nil, nil

	default:
		if m.session == nil {
			return nil, nil, fmt.Errorf("%w: advertisement", ErrTransportUnavailable)
		}
		session, err := m.session.Connect(ctx, address)
		if err != nil {
			return nil, nil, connectError(address, err)
		}
		services, err := session.Services(ctx)
		if err != nil {
			m.logger.Warn("listing services failed", "address", address, "error", err)
		}
		return sessionLink{session: session, characteristic: params.Characteristic}, services, nil
	}
}

// connectError classifies a transport dial failure.
func connectError(address string, err error) error {
	if errors.Is(err, ErrTransportUnavailable) || errors.Is(err, ErrConnectFailed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrConnectFailed, address, err)
}

func (m *Manager) withDefaults(p Params) Params {
	if p.Port == 0 {
		p.Port = m.defaults.Port
	}
	if p.Characteristic == "" {
		p.Characteristic = m.defaults.Characteristic
	}
	return p
}

// release removes e if it is still the entry for address.
func (m *Manager) release(address string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[address] == e {
		delete(m.entries, address)
	}
}

// Disconnect tears down the connection for address. It returns
// ErrNotConnected when there is none, so calling it twice is safe.
//
// The State is removed even when closing the transport handle fails; the
// close error is still returned.
func (m *Manager) Disconnect(ctx context.Context, address string) error {
	address = device.NormalizeAddress(address)

	m.mu.Lock()
	e, ok := m.entries[address]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConnected, address)
	}
	if e.state.Phase != PhaseConnected {
		phase := e.state.Phase
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyInProgress, address, phase)
	}
	e.state.Phase = PhaseDisconnecting
	transport := e.state.Transport
	m.mu.Unlock()

	if err := m.engine.Wait(ctx, timing.ScanJitter, timing.Params{}); err != nil {
		m.logger.Debug("teardown delay cut short", "address", address, "error", err)
	}

	closeErr := e.link.close()
	m.release(address, e)

	detail := ""
	if closeErr != nil {
		detail = closeErr.Error()
		m.logger.Warn("closing transport handle failed", "address", address, "error", closeErr)
	}
	m.record(ctx, address, transport, EventDisconnected, detail)
	m.logger.Info("disconnected", "address", address)

	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", address, closeErr)
	}
	return nil
}

// Send shapes and writes payload to address.
func (m *Manager) Send(ctx context.Context, address string, payload []byte) error {
	address = device.NormalizeAddress(address)
	e, err := m.connected(address)
	if err != nil {
		return err
	}

	if err := m.engine.Wait(ctx, timing.TransmissionShape, timing.Params{Size: len(payload)}); err != nil {
		return err
	}

	e.sendMu.Lock()
	err = e.link.send(ctx, payload)
	e.sendMu.Unlock()
	if err != nil {
		m.record(ctx, address, e.state.Transport, EventSendFailed, err.Error())
		return fmt.Errorf("sending to %s: %w", address, err)
	}

	m.touch(e)
	m.logger.Debug("sent", "address", address, "bytes", len(payload))
	return nil
}

// Recv reads the next inbound frame from address.
func (m *Manager) Recv(ctx context.Context, address string) ([]byte, error) {
	address = device.NormalizeAddress(address)
	e, err := m.connected(address)
	if err != nil {
		return nil, err
	}

	e.recvMu.Lock()
	data, err := e.link.recv(ctx)
	e.recvMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("receiving from %s: %w", address, err)
	}

	if len(data) > 0 {
		m.touch(e)
	}
	return data, nil
}

// connected returns the entry for address if it is Connected.
func (m *Manager) connected(address string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[address]
	if !ok || e.state.Phase != PhaseConnected {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, address)
	}
	return e, nil
}

func (m *Manager) touch(e *entry) {
	now := m.now()
	m.mu.Lock()
	if now.After(e.state.LastActivity) {
		e.state.LastActivity = now
	}
	m.mu.Unlock()
}

// Phase returns the lifecycle phase of address.
func (m *Manager) Phase(address string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[device.NormalizeAddress(address)]; ok {
		return e.state.Phase
	}
	return PhaseDisconnected
}

// Get returns a copy of the State for address.
func (m *Manager) Get(address string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[device.NormalizeAddress(address)]
	if !ok {
		return State{}, false
	}
	return e.state.clone(), true
}

// Connections returns a copy of every State ordered by address.
func (m *Manager) Connections() []State {
	m.mu.Lock()
	out := make([]State, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.state.clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.state.Phase == PhaseConnected {
			n++
		}
	}
	return n
}

// CloseAll disconnects every Connected address.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, st := range m.Connections() {
		if st.Phase != PhaseConnected {
			continue
		}
		if err := m.Disconnect(ctx, st.Address); err != nil && !errors.Is(err, ErrNotConnected) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Journal returns the configured journal, or nil.
func (m *Manager) Journal() Journal {
	return m.journal
}

func (m *Manager) record(ctx context.Context, address string, transport device.Transport, event Event, detail string) {
	if m.journal == nil {
		return
	}
	err := m.journal.Record(context.WithoutCancel(ctx), &JournalEntry{
		Address:    address,
		Transport:  string(transport),
		Event:      event,
		Detail:     detail,
		OccurredAt: m.now().UTC(),
	})
	if err != nil {
		m.logger.Warn("recording connection event failed", "address", address, "event", string(event), "error", err)
	}
}
