package connection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names a connection lifecycle entry.
type Event string

const (
	EventConnected     Event = "connected"
	EventConnectFailed Event = "connect_failed"
	EventDisconnected  Event = "disconnected"
	EventSendFailed    Event = "send_failed"
	EventRelayStarted  Event = "relay_started"
	EventRelayEnded    Event = "relay_ended"
	EventCommand       Event = "command"
)

// JournalEntry is one connection lifecycle record.
type JournalEntry struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	Transport  string    `json:"transport"`
	Event      Event     `json:"event"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Journal records connection lifecycle events.
type Journal interface {
	Record(ctx context.Context, e *JournalEntry) error
	List(ctx context.Context, address string, limit int) ([]JournalEntry, error)
}

// journalTimeFormat is fixed-width so occurred_at sorts as text.
const journalTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// SQLiteJournal stores entries in the connection_log table.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal creates a journal backed by db.
func NewSQLiteJournal(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db}
}

// Record inserts an entry. The ID and OccurredAt are generated if empty.
func (j *SQLiteJournal) Record(ctx context.Context, e *JournalEntry) error {
	if e.ID == "" {
		e.ID = "con-" + uuid.NewString()[:8]
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO connection_log (id, address, transport, event, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Address, e.Transport, string(e.Event), e.Detail,
		e.OccurredAt.UTC().Format(journalTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting connection log: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first. An empty address
// lists every address.
func (j *SQLiteJournal) List(ctx context.Context, address string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}

	query := `SELECT id, address, transport, event, detail, occurred_at FROM connection_log`
	args := []any{}
	if address != "" {
		query += ` WHERE address = ?`
		args = append(args, address)
	}
	query += ` ORDER BY occurred_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connection log: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var (
			e          JournalEntry
			event      string
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &e.Address, &e.Transport, &event, &e.Detail, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning connection log: %w", err)
		}
		e.Event = Event(event)
		if e.OccurredAt, err = time.Parse(journalTimeFormat, occurredAt); err != nil {
			return nil, fmt.Errorf("parsing connection log timestamp %q: %w", occurredAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection log: %w", err)
	}
	return entries, nil
}
