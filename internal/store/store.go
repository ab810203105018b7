// Package store keeps the history of acceleration readings in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
	_ "modernc.org/sqlite"
)

const (
	// DefaultLimit is used by Latest when limit is not positive.
	DefaultLimit = 50
	// MaxLimit caps how many readings one Latest call returns.
	MaxLimit = 1000
)

// Store is a sqlite-backed reading history.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (creating if needed) the database at path and applies
// migrations. Use ":memory:" for a throwaway store.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure sqlite (%s): %w", pragma, err)
		}
	}
	if err := migrateUp(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion() (uint, error) {
	version, dirty, err := schemaVersion(s.db, s.log)
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// Record appends one reading.
func (s *Store) Record(ctx context.Context, r model.Reading) error {
	at := r.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (mote_id, x, y, z, received_at) VALUES (?, ?, ?, ?, ?)`,
		r.MoteID, r.X, r.Y, r.Z, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record reading for mote %d: %w", r.MoteID, err)
	}
	return nil
}

// Accept implements router.ReadingSink; failures are logged.
func (s *Store) Accept(ctx context.Context, r model.Reading) {
	if err := s.Record(ctx, r); err != nil {
		s.log.Warn(ctx, "reading not stored",
			logging.Int("mote_id", r.MoteID),
			logging.Err(err),
		)
	}
}

// Query filters Latest. A nil MoteID matches every mote.
type Query struct {
	MoteID *int
	Limit  int
}

// Latest returns the newest readings first.
func (s *Store) Latest(ctx context.Context, q Query) ([]model.Reading, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	var (
		rows *sql.Rows
		err  error
	)
	if q.MoteID != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT mote_id, x, y, z, received_at FROM readings
			 WHERE mote_id = ? ORDER BY received_at DESC, reading_id DESC LIMIT ?`,
			*q.MoteID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT mote_id, x, y, z, received_at FROM readings
			 ORDER BY received_at DESC, reading_id DESC LIMIT ?`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	out := make([]model.Reading, 0, min(limit, DefaultLimit))
	for rows.Next() {
		var (
			r  model.Reading
			ns int64
		)
		if err := rows.Scan(&r.MoteID, &r.X, &r.Y, &r.Z, &ns); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.ReceivedAt = time.Unix(0, ns).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

// Count returns the number of stored readings.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}
