package connection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/infrastructure/database"
	"github.com/nerrad567/bluescout-core/migrations"
)

func setupJournal(t *testing.T) *SQLiteJournal {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return NewSQLiteJournal(db.DB)
}

func TestSQLiteJournal(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)

	entries := []*JournalEntry{
		{Address: addrX, Transport: "classic", Event: EventConnected, OccurredAt: base},
		{Address: addrY, Transport: "advertisement", Event: EventConnectFailed, Detail: "refused", OccurredAt: base.Add(time.Second)},
		{Address: addrX, Transport: "classic", Event: EventDisconnected, OccurredAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if !strings.HasPrefix(e.ID, "con-") {
			t.Errorf("ID = %q, want con- prefix", e.ID)
		}
	}

	all, err := j.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].Event != EventDisconnected {
		t.Errorf("List() = %+v, want newest first", all)
	}

	x, err := j.List(ctx, addrX, 10)
	if err != nil {
		t.Fatalf("List(addrX) error = %v", err)
	}
	if len(x) != 2 || x[1].Event != EventConnected || !x[1].OccurredAt.Equal(base) {
		t.Errorf("List(addrX) = %+v", x)
	}

	one, _ := j.List(ctx, "", 1)
	if len(one) != 1 {
		t.Errorf("List(limit 1) = %d entries", len(one))
	}
}

func TestManager_WithSQLiteJournal(t *testing.T) {
	j := setupJournal(t)
	classic := NewMockClassic()
	classic.dialErr = errors.New("connection refused")
	m := newTestManager(classic, func(o *Options) { o.Journal = j })
	ctx := context.Background()

	_, _ = m.Connect(ctx, addrX, device.TransportClassic, Params{})

	got, err := j.List(ctx, addrX, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Event != EventConnectFailed || !strings.Contains(got[0].Detail, "refused") {
		t.Errorf("journal = %+v", got)
	}
}
