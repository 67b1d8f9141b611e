package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

func testSource() Source {
	return Source{
		FS: fstest.MapFS{
			"sql/20260301_090000_sightings.up.sql":   {Data: []byte("CREATE TABLE test_sightings (address TEXT PRIMARY KEY);")},
			"sql/20260301_090000_sightings.down.sql": {Data: []byte("DROP TABLE test_sightings;")},
			"sql/20260302_100000_links.up.sql":       {Data: []byte("CREATE TABLE test_links (id TEXT PRIMARY KEY);")},
			"sql/20260302_100000_links.down.sql":     {Data: []byte("DROP TABLE test_links;")},
			"sql/README.md":                          {Data: []byte("ignored")},
		},
		Dir: "sql",
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testSource()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"test_sightings", "test_links"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx, testSource())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	if err := db.Migrate(ctx, testSource()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testSource()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testSource()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_links") {
		t.Error("test_links should have been dropped")
	}
	if !tableExists(t, db, "test_sightings") {
		t.Error("test_sightings should remain")
	}

	_, pending, err := db.MigrationStatus(ctx, testSource())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "links" {
		t.Errorf("pending = %+v, want only links", pending)
	}
}

func TestMigrateNoSource(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, Source{}); err != nil {
		t.Fatalf("Migrate() with empty source error = %v", err)
	}
	if err := db.Migrate(ctx, Source{FS: fstest.MapFS{}, Dir: "missing"}); err != nil {
		t.Fatalf("Migrate() with missing dir error = %v", err)
	}
	if err := db.MigrateDown(ctx, Source{}); err != nil {
		t.Fatalf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"up", "20260301_090000_devices.up.sql", "20260301_090000", true, true},
		{"down", "20260301_090000_devices.down.sql", "20260301_090000", false, true},
		{"no direction", "20260301_090000_devices.sql", "", false, false},
		{"not sql", "20260301_090000_devices.up.txt", "", false, false},
		{"no version", "devices.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if version != tt.wantVersion || isUp != tt.wantUp || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tt.filename, version, isUp, ok, tt.wantVersion, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := map[string]string{
		"20260301_090000_devices.up.sql":        "devices",
		"20260301_090000_device_index.down.sql": "device_index",
		"short.up.sql":                          "short",
	}
	for in, want := range tests {
		if got := extractMigrationName(in); got != want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", in, got, want)
		}
	}
}
