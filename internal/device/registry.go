package device

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/bluescout-core/internal/signature"
)

// Logger defines the logging interface used by the Registry.
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

// Correlator computes signature tags for a new record.
type Correlator interface {
	MatchClassic(address string, class *uint32) []string
	MatchAdvertisement(address string, manufacturerData map[uint16][]byte, services []string) []string
	MatchPlatform(platform, version string) []string
}

// Registry is the shared, de-duplicated device catalogue.
//
// Records are keyed by normalised address. The Repository, when set, is
// written through after the lock is released; persistence failures are
// logged and never fail a merge.
//
// Thread Safety:
//   - All public methods are safe for concurrent use.
//   - Writers are serialised by an RWMutex.
//   - Readers get deep copies, so later merges never alter a returned snapshot.
type Registry struct {
	correlator Correlator
	repo       Repository

	mu      sync.RWMutex
	records map[string]*Record

	now    func() time.Time
	logger Logger
}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - correlator: Source of signature tags; nil uses an empty database
//   - repo: Write-through store; nil keeps the registry purely in memory
//
// Returns:
//   - *Registry: Ready for use, logging to a no-op logger until SetLogger
func NewRegistry(correlator Correlator, repo Repository) *Registry {
	if correlator == nil {
		correlator = signature.NewCorrelator(nil)
	}
	return &Registry{
		correlator: correlator,
		repo:       repo,
		records:    make(map[string]*Record),
		now:        time.Now,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// MergeSighting folds one sighting into the registry.
//
// Known fields are never cleared by a sighting that lacks them, and service
// lists are unioned. Signature tags are computed when the record is created.
//
// Parameters:
//   - ctx: Bounds the write-through to the repository
//   - s: The observation; its address is normalised before lookup
//
// Returns:
//   - bool: True when the sighting created a new record
//   - error: ErrInvalidSighting for an empty address or unknown transport
func (r *Registry) MergeSighting(ctx context.Context, s Sighting) (bool, error) {
	address := NormalizeAddress(s.Address)
	if address == "" {
		return false, fmt.Errorf("%w: empty address", ErrInvalidSighting)
	}
	if !s.Transport.Valid() {
		return false, fmt.Errorf("%w: unknown transport %q", ErrInvalidSighting, s.Transport)
	}

	r.mu.Lock()
	rec, exists := r.records[address]
	if exists {
		r.refresh(rec, s)
	} else {
		rec = r.create(address, s)
		r.records[address] = rec
	}
	persisted := rec.DeepCopy()
	r.mu.Unlock()

	if exists {
		r.logger.Debug("device re-sighted", "address", address, "transport", string(s.Transport))
	} else {
		r.logger.Info("device discovered",
			"address", address,
			"name", persisted.DisplayName,
			"transport", string(s.Transport),
			"signatures", len(persisted.Signatures),
		)
	}

	r.persist(ctx, persisted)
	return !exists, nil
}

// create builds a new record and runs the correlator once. Caller holds mu.
func (r *Registry) create(address string, s Sighting) *Record {
	now := r.now()
	rec := &Record{
		Address:          address,
		DisplayName:      s.Name,
		Transport:        s.Transport,
		FirstSeen:        now,
		LastSeen:         now,
		Services:         mergeServices(nil, s.Services),
		ManufacturerData: make(map[uint16][]byte, len(s.ManufacturerData)),
	}
	if rec.Services == nil {
		rec.Services = []string{}
	}
	for id, data := range s.ManufacturerData {
		rec.ManufacturerData[id] = slices.Clone(data)
	}
	if s.DeviceClass != nil {
		v := *s.DeviceClass
		rec.DeviceClass = &v
	}
	if s.Transport == TransportAdvertisement && s.SignalStrength != nil {
		v := *s.SignalStrength
		rec.SignalStrength = &v
	}

	switch s.Transport {
	case TransportClassic:
		rec.Signatures = signature.NormalizeTags(r.correlator.MatchClassic(address, rec.DeviceClass))
	case TransportAdvertisement:
		rec.Signatures = signature.NormalizeTags(r.correlator.MatchAdvertisement(address, rec.ManufacturerData, rec.Services))
	}
	return rec
}

// refresh merges a re-sighting into rec. Caller holds mu.
func (r *Registry) refresh(rec *Record, s Sighting) {
	now := r.now()
	if !now.After(rec.LastSeen) {
		now = rec.LastSeen.Add(time.Nanosecond)
	}
	rec.LastSeen = now

	if s.Transport == TransportAdvertisement && s.SignalStrength != nil {
		v := *s.SignalStrength
		rec.SignalStrength = &v
	}
	if rec.DisplayName == "" && s.Name != "" {
		rec.DisplayName = s.Name
	}
	if rec.DeviceClass == nil && s.DeviceClass != nil {
		v := *s.DeviceClass
		rec.DeviceClass = &v
	}
	rec.Services = mergeServices(rec.Services, s.Services)
	for id, data := range s.ManufacturerData {
		if _, ok := rec.ManufacturerData[id]; !ok {
			rec.ManufacturerData[id] = slices.Clone(data)
		}
	}
}

// Snapshot returns a point-in-time copy of every record, ordered by
// FirstSeen then address.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec.DeepCopy())
	}
	r.mu.RUnlock()

	sortRecords(out)
	return out
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].FirstSeen.Equal(records[j].FirstSeen) {
			return records[i].FirstSeen.Before(records[j].FirstSeen)
		}
		return records[i].Address < records[j].Address
	})
}

// Get returns a copy of the record for address.
func (r *Registry) Get(address string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[NormalizeAddress(address)]
	if !ok {
		return Record{}, false
	}
	return *rec.DeepCopy(), true
}

// Signatures returns the cached tags for address, or nil if unknown.
func (r *Registry) Signatures(address string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.records[NormalizeAddress(address)]; ok {
		return slices.Clone(rec.Signatures)
	}
	return nil
}

// Count returns the number of records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// AnnotatePlatform adds the platform/version tags to an existing record and
// returns the resulting tag set. Existing tags are kept.
func (r *Registry) AnnotatePlatform(ctx context.Context, address, platform, version string) ([]string, error) {
	address = NormalizeAddress(address)
	extra := r.correlator.MatchPlatform(platform, version)

	r.mu.Lock()
	rec, ok := r.records[address]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
	}
	rec.Signatures = signature.Union(rec.Signatures, extra)
	persisted := rec.DeepCopy()
	r.mu.Unlock()

	r.logger.Info("platform annotated", "address", address, "platform", platform, "added", len(extra))
	r.persist(ctx, persisted)
	return slices.Clone(persisted.Signatures), nil
}

// Clear empties the registry and, when persisted, the stored table.
func (r *Registry) Clear(ctx context.Context) {
	r.mu.Lock()
	n := len(r.records)
	r.records = make(map[string]*Record)
	r.mu.Unlock()

	if r.repo != nil {
		if err := r.repo.DeleteAll(ctx); err != nil {
			r.logger.Warn("clearing persisted devices failed", "error", err)
		}
	}
	r.logger.Info("registry cleared", "removed", n)
}

// Restore loads persisted records. Addresses already in memory are kept
// as they are.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}
	records, err := r.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	restored := 0
	for i := range records {
		rec := records[i].DeepCopy()
		rec.Address = NormalizeAddress(rec.Address)
		if _, ok := r.records[rec.Address]; ok {
			continue
		}
		if rec.ManufacturerData == nil {
			rec.ManufacturerData = make(map[uint16][]byte)
		}
		r.records[rec.Address] = rec
		restored++
	}
	r.mu.Unlock()

	r.logger.Info("registry restored", "count", restored)
	return restored, nil
}

func (r *Registry) persist(ctx context.Context, rec *Record) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Upsert(ctx, rec); err != nil {
		r.logger.Warn("persisting device failed", "address", rec.Address, "error", err)
	}
}
