package device

import (
	"context"
	"database/sql"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/bluescout-core/internal/infrastructure/database"
	"github.com/nerrad567/bluescout-core/migrations"
)

// setupTestDB opens an in-memory store with the embedded schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func testRecord(address string, seen time.Time) *Record {
	return &Record{
		Address:          address,
		DisplayName:      "Band",
		Transport:        TransportAdvertisement,
		FirstSeen:        seen,
		LastSeen:         seen,
		SignalStrength:   int16Ptr(-61),
		Services:         []string{"0000180d-0000-1000-8000-00805f9b34fb"},
		ManufacturerData: map[uint16][]byte{0x004c: {0x02, 0x15}, 0x0075: nil},
		Signatures:       []string{"CVE-X"},
	}
}

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rec := testRecord("C0:FF:EE:00:00:01", testStart)
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	classic := &Record{
		Address:     "AA:BB:CC:11:22:33",
		Transport:   TransportClassic,
		FirstSeen:   testStart.Add(time.Minute),
		LastSeen:    testStart.Add(time.Minute),
		DeviceClass: uint32Ptr(0x5a020c),
	}
	if err := repo.Upsert(ctx, classic); err != nil {
		t.Fatalf("Upsert(classic) error = %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(list))
	}

	got := list[0]
	if got.Address != rec.Address || got.DisplayName != "Band" || got.Transport != TransportAdvertisement {
		t.Errorf("List()[0] = %+v", got)
	}
	if !got.FirstSeen.Equal(testStart) {
		t.Errorf("FirstSeen = %v, want %v", got.FirstSeen, testStart)
	}
	if got.SignalStrength == nil || *got.SignalStrength != -61 {
		t.Errorf("SignalStrength = %v, want -61", got.SignalStrength)
	}
	if !slices.Equal(got.ManufacturerData[0x004c], []byte{0x02, 0x15}) {
		t.Errorf("ManufacturerData[004c] = %x", got.ManufacturerData[0x004c])
	}
	if _, ok := got.ManufacturerData[0x0075]; !ok {
		t.Error("ManufacturerData[0075] missing")
	}
	if !slices.Equal(got.Signatures, []string{"CVE-X"}) {
		t.Errorf("Signatures = %v", got.Signatures)
	}

	c := list[1]
	if c.DeviceClass == nil || *c.DeviceClass != 0x5a020c {
		t.Errorf("DeviceClass = %v, want 0x5a020c", c.DeviceClass)
	}
	if c.SignalStrength != nil {
		t.Errorf("SignalStrength = %v, want nil", *c.SignalStrength)
	}
	if c.Services == nil || len(c.Services) != 0 {
		t.Errorf("Services = %#v, want empty slice", c.Services)
	}
}

func TestSQLiteRepository_UpsertOrdering(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	newer := testRecord("AA", testStart.Add(time.Hour))
	newer.FirstSeen = testStart.Add(10 * time.Minute)
	newer.DisplayName = "newer"

	older := testRecord("AA", testStart.Add(time.Minute))
	older.FirstSeen = testStart
	older.DisplayName = "older"

	if err := repo.Upsert(ctx, newer); err != nil {
		t.Fatalf("Upsert(newer) error = %v", err)
	}
	// A stale write arriving late must not roll fields back.
	if err := repo.Upsert(ctx, older); err != nil {
		t.Fatalf("Upsert(older) error = %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v", list, err)
	}
	got := list[0]
	if got.DisplayName != "newer" {
		t.Errorf("DisplayName = %q, want newer", got.DisplayName)
	}
	if !got.LastSeen.Equal(newer.LastSeen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, newer.LastSeen)
	}
	if !got.FirstSeen.Equal(testStart) {
		t.Errorf("FirstSeen = %v, want earliest %v", got.FirstSeen, testStart)
	}
}

func TestSQLiteRepository_DeleteAll(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	_ = repo.Upsert(ctx, testRecord("AA", testStart))
	_ = repo.Upsert(ctx, testRecord("BB", testStart))

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() after DeleteAll = %d records", len(list))
	}
}

func TestRegistry_WithSQLiteRepository(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	reg := NewRegistry(&stubCorrelator{advert: []string{"SWEYNTOOTH"}}, repo)
	reg.now = steppedClock(testStart, time.Second)
	_, _ = reg.MergeSighting(ctx, Sighting{Address: "c0:ff:ee:00:00:01", Transport: TransportAdvertisement, SignalStrength: int16Ptr(-70)})
	_, _ = reg.MergeSighting(ctx, Sighting{Address: "C0:FF:EE:00:00:01", Transport: TransportAdvertisement, SignalStrength: int16Ptr(-50)})

	restored := NewRegistry(&stubCorrelator{}, repo)
	if n, err := restored.Restore(ctx); err != nil || n != 1 {
		t.Fatalf("Restore() = %d, %v; want 1, nil", n, err)
	}
	rec, ok := restored.Get("C0:FF:EE:00:00:01")
	if !ok {
		t.Fatal("restored record missing")
	}
	if rec.SignalStrength == nil || *rec.SignalStrength != -50 {
		t.Errorf("SignalStrength = %v, want -50", rec.SignalStrength)
	}
	if !rec.LastSeen.Equal(testStart.Add(time.Second)) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, testStart.Add(time.Second))
	}
	if !slices.Equal(rec.Signatures, []string{"SWEYNTOOTH"}) {
		t.Errorf("Signatures = %v", rec.Signatures)
	}
}
