package device

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Repository persists registry records.
// This abstraction allows a SQLite store in production and a mock in tests.
type Repository interface {
	Upsert(ctx context.Context, rec *Record) error
	List(ctx context.Context) ([]Record, error)
	DeleteAll(ctx context.Context) error
}

// timeFormat is fixed-width so stored timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// deviceColumns is the SELECT column list for device queries.
const deviceColumns = `address, display_name, transport, first_seen, last_seen,
			signal_strength, device_class, services, manufacturer_data, signatures`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or merges a record. first_seen keeps the earliest value;
// the remaining columns only move forward when the incoming last_seen is
// not older than the stored one.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *Record) error {
	services, err := json.Marshal(nonNil(rec.Services))
	if err != nil {
		return fmt.Errorf("marshalling services: %w", err)
	}
	signatures, err := json.Marshal(nonNil(rec.Signatures))
	if err != nil {
		return fmt.Errorf("marshalling signatures: %w", err)
	}
	mfr, err := encodeManufacturerData(rec.ManufacturerData)
	if err != nil {
		return err
	}

	var signal, class any
	if rec.SignalStrength != nil {
		signal = int64(*rec.SignalStrength)
	}
	if rec.DeviceClass != nil {
		class = int64(*rec.DeviceClass)
	}

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			first_seen = MIN(devices.first_seen, excluded.first_seen),
			display_name = CASE WHEN excluded.last_seen >= devices.last_seen THEN excluded.display_name ELSE devices.display_name END,
			transport = CASE WHEN excluded.last_seen >= devices.last_seen THEN excluded.transport ELSE devices.transport END,
			signal_strength = CASE WHEN excluded.last_seen >= devices.last_seen THEN excluded.signal_strength ELSE devices.signal_strength END,
			device_class = CASE WHEN excluded.last_seen >= devices.last_seen THEN excluded.device_class ELSE devices.device_class END,
			services = CASE WHEN excluded.last_seen >= devices.last_seen THEN excluded.services ELSE devices.services END,
			manufacturer_data = CASE WHEN excluded.last_seen >= devices.last_seen THEN excluded.manufacturer_data ELSE devices.manufacturer_data END,
			signatures = CASE WHEN excluded.last_seen >= devices.last_seen THEN excluded.signatures ELSE devices.signatures END,
			last_seen = MAX(devices.last_seen, excluded.last_seen)`

	_, err = r.db.ExecContext(ctx, query,
		rec.Address,
		rec.DisplayName,
		string(rec.Transport),
		rec.FirstSeen.UTC().Format(timeFormat),
		rec.LastSeen.UTC().Format(timeFormat),
		signal,
		class,
		string(services),
		mfr,
		string(signatures),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", rec.Address, err)
	}
	return nil
}

// List returns every stored record ordered by first_seen then address.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY first_seen, address`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, nil
}

// DeleteAll removes every stored record.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("deleting devices: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec                       Record
		transport                 string
		firstSeen, lastSeen       string
		signal, class             sql.NullInt64
		services, mfr, signatures string
	)
	if err := rows.Scan(&rec.Address, &rec.DisplayName, &transport, &firstSeen, &lastSeen,
		&signal, &class, &services, &mfr, &signatures); err != nil {
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	rec.Transport = Transport(transport)

	var err error
	if rec.FirstSeen, err = time.Parse(timeFormat, firstSeen); err != nil {
		return nil, fmt.Errorf("parsing first_seen %q: %w", firstSeen, err)
	}
	if rec.LastSeen, err = time.Parse(timeFormat, lastSeen); err != nil {
		return nil, fmt.Errorf("parsing last_seen %q: %w", lastSeen, err)
	}

	if signal.Valid {
		v := int16(signal.Int64) //nolint:gosec // stored from an int16
		rec.SignalStrength = &v
	}
	if class.Valid {
		v := uint32(class.Int64) //nolint:gosec // stored from a uint32
		rec.DeviceClass = &v
	}

	if err := json.Unmarshal([]byte(services), &rec.Services); err != nil {
		return nil, fmt.Errorf("decoding services for %s: %w", rec.Address, err)
	}
	if err := json.Unmarshal([]byte(signatures), &rec.Signatures); err != nil {
		return nil, fmt.Errorf("decoding signatures for %s: %w", rec.Address, err)
	}
	if rec.ManufacturerData, err = decodeManufacturerData(mfr); err != nil {
		return nil, fmt.Errorf("decoding manufacturer data for %s: %w", rec.Address, err)
	}
	return &rec, nil
}

// encodeManufacturerData stores ids and payloads as hex strings so the
// column stays readable with the sqlite3 shell.
func encodeManufacturerData(data map[uint16][]byte) (string, error) {
	m := make(map[string]string, len(data))
	for id, payload := range data {
		m[fmt.Sprintf("%04x", id)] = hex.EncodeToString(payload)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshalling manufacturer data: %w", err)
	}
	return string(b), nil
}

func decodeManufacturerData(s string) (map[uint16][]byte, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	out := make(map[uint16][]byte, len(m))
	for k, v := range m {
		id, err := strconv.ParseUint(k, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("manufacturer id %q: %w", k, err)
		}
		payload, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("manufacturer payload %q: %w", k, err)
		}
		out[uint16(id)] = payload
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
