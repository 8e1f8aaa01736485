// Package flightlog persists received telemetry to sqlite, one row per
// sample grouped into flights.
package flightlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"raspifpv/internal/wire"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertFlightSQL = `INSERT INTO flights (started_at, source) VALUES (?, ?)`

	insertSampleSQL = `
INSERT INTO samples (flight_id, ts, kind, latitude, longitude, altitude, bearing, voltage, current, rssi)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFlightsSQL = `
SELECT f.id, f.started_at, f.source, COUNT(s.id)
FROM flights f LEFT JOIN samples s ON s.flight_id = f.id
GROUP BY f.id
ORDER BY f.started_at ASC`

	selectSamplesSQL = `
SELECT ts, kind, latitude, longitude, altitude, bearing, voltage, current, rssi
FROM samples WHERE flight_id = ? ORDER BY id ASC`
)

var ErrClosed = errors.New("flightlog: store closed")

// Flight summarises one recording session.
type Flight struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source"`
	Samples   int64     `json:"samples"`
}

// Entry is a stored sample with its receive time.
type Entry struct {
	At     time.Time   `json:"at"`
	Sample wire.Sample `json:"sample"`
}

// SqliteStore is safe for concurrent use. The database is opened and the
// schema created on first use.
type SqliteStore struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
}

func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening connection: %w", err)
			return
		}
		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

// StartFlight creates a flight row and returns its ID.
func (s *SqliteStore) StartFlight(ctx context.Context, at time.Time, source string) (flightID int64, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	result, err := db.ExecContext(ctx, insertFlightSQL, at.UTC(), source)
	if err != nil {
		err = fmt.Errorf("inserting flight: %w", err)
		return
	}
	flightID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting flight ID: %w", err)
	}
	return
}

// InsertSamples writes entries for flightID in a single transaction.
func (s *SqliteStore) InsertSamples(ctx context.Context, flightID int64, entries []Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSampleSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, e := range entries {
		r := toSampleRow(e.Sample)
		if _, err = stmt.ExecContext(ctx, flightID, e.At.UTC(), r.Kind,
			r.Latitude, r.Longitude, r.Altitude, r.Bearing,
			r.Voltage, r.Current, r.RSSI); err != nil {
			return fmt.Errorf("inserting sample: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing samples: %w", err)
	}
	return nil
}

// Flights lists recorded flights oldest first.
func (s *SqliteStore) Flights(ctx context.Context) (flights []Flight, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFlightsSQL)
	if err != nil {
		err = fmt.Errorf("querying flights: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var f Flight
		if err = rows.Scan(&f.ID, &f.StartedAt, &f.Source, &f.Samples); err != nil {
			err = fmt.Errorf("scanning flight: %w", err)
			return
		}
		flights = append(flights, f)
	}
	err = rows.Err()
	return
}

// Samples returns the entries of one flight in insertion order.
func (s *SqliteStore) Samples(ctx context.Context, flightID int64) (entries []Entry, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSamplesSQL, flightID)
	if err != nil {
		err = fmt.Errorf("querying samples: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r sampleRow
		var at time.Time
		if err = rows.Scan(&at, &r.Kind, &r.Latitude, &r.Longitude, &r.Altitude, &r.Bearing, &r.Voltage, &r.Current, &r.RSSI); err != nil {
			err = fmt.Errorf("scanning sample: %w", err)
			return
		}
		sample, cErr := r.toSample()
		if cErr != nil {
			err = cErr
			return
		}
		entries = append(entries, Entry{At: at, Sample: sample})
	}
	err = rows.Err()
	return
}

// Close releases the connection. It is safe to call more than once.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		// Fire the once so a later getDB cannot open a fresh handle.
		s.dbOnce.Do(func() { s.dbErr = ErrClosed })
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}
