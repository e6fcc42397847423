// Package sqlite implements the booking store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"studiobook/internal/models"
	"studiobook/internal/storage"
)

const defaultOpTimeout = 5 * time.Second

// Store is a booking store backed by a local SQLite file.
type Store struct {
	db        *sql.DB
	log       *zerolog.Logger
	opTimeout time.Duration
	path      string
}

// Open initializes the SQLite database at path, creating the schema if
// needed. WAL mode and a busy timeout keep concurrent request handlers from
// tripping over each other.
func Open(path string, opTimeout time.Duration, log *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	s := &Store{db: db, log: log, opTimeout: opTimeout, path: path}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	log.Info().Str("path", path).Msg("sqlite store initialized")
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			time_slots TEXT NOT NULL,
			package TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			payment_account TEXT NOT NULL DEFAULT '',
			payment_bank TEXT NOT NULL DEFAULT '',
			payment_reference TEXT NOT NULL DEFAULT '',
			payment_confirmed INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Slot holds. A row exists only while its booking is pending or
		// confirmed; the primary key is the double-booking guard.
		`CREATE TABLE IF NOT EXISTS booking_slots (
			date TEXT NOT NULL,
			slot TEXT NOT NULL,
			booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			PRIMARY KEY (date, slot)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created ON bookings(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_slots_booking ON booking_slots(booking_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", q[:30], err)
		}
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Path returns the database file path (used by the backup service).
func (s *Store) Path() string { return s.path }

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) &&
		(serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			serr.ExtendedCode == sqlite3.ErrConstraintUnique)
}

// CreateBooking inserts a booking and its slot holds in one transaction.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.OpError{Op: "create_booking", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = models.StatusPending
	}

	slotsJSON, err := json.Marshal(b.TimeSlots)
	if err != nil {
		return &storage.OpError{Op: "create_booking", Err: err}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (
			id, date, time_slots, package, name, phone, email, notes,
			payment_account, payment_bank, payment_reference,
			payment_confirmed, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Date, string(slotsJSON), b.Package, b.Name, b.Phone, b.Email, b.Notes,
		b.PaymentAccount, b.PaymentBank, b.PaymentReference,
		b.PaymentConfirmed, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return &storage.OpError{Op: "create_booking", Err: err}
	}

	for _, slot := range b.TimeSlots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_slots (date, slot, booking_id) VALUES (?, ?, ?)`,
			b.Date, slot, b.ID,
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrSlotTaken
			}
			return &storage.OpError{Op: "create_booking", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &storage.OpError{Op: "create_booking", Err: err}
	}
	return nil
}

const bookingColumns = `id, date, time_slots, package, name, phone, email, notes,
	payment_account, payment_bank, payment_reference,
	payment_confirmed, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var slotsJSON string
	err := row.Scan(
		&b.ID, &b.Date, &slotsJSON, &b.Package, &b.Name, &b.Phone, &b.Email, &b.Notes,
		&b.PaymentAccount, &b.PaymentBank, &b.PaymentReference,
		&b.PaymentConfirmed, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(slotsJSON), &b.TimeSlots); err != nil {
		return nil, fmt.Errorf("decode time_slots for %s: %w", b.ID, err)
	}
	return &b, nil
}

// GetBooking returns a booking by id.
func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, &storage.OpError{Op: "get_booking", Err: err}
	}
	return b, nil
}

// ListBookings returns bookings newest-first, optionally by status.
func (s *Store) ListBookings(ctx context.Context, status string) ([]models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE status = ? ORDER BY created_at DESC`, status)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, &storage.OpError{Op: "list_bookings", Err: err}
	}
	defer rows.Close()

	out := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, &storage.OpError{Op: "list_bookings", Err: err}
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.OpError{Op: "list_bookings", Err: err}
	}
	return out, nil
}

// UpdateBooking applies a partial update, enforcing the status lifecycle and
// releasing slot holds when the booking leaves an active status.
func (s *Store) UpdateBooking(ctx context.Context, id string, patch storage.Patch) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &storage.OpError{Op: "update_booking", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, &storage.OpError{Op: "update_booking", Err: err}
	}

	if patch.Status != nil {
		// Checked even for same-status patches: terminal bookings reject
		// every status write, including their own status.
		if !models.CanTransition(b.Status, *patch.Status) {
			return nil, storage.ErrInvalidTransition
		}
		if models.HoldsSlots(b.Status) && !models.HoldsSlots(*patch.Status) {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM booking_slots WHERE booking_id = ?`, id); err != nil {
				return nil, &storage.OpError{Op: "update_booking", Err: err}
			}
		}
		b.Status = *patch.Status
	}
	if patch.PaymentConfirmed != nil {
		b.PaymentConfirmed = *patch.PaymentConfirmed
	}
	b.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, payment_confirmed = ?, updated_at = ? WHERE id = ?`,
		b.Status, b.PaymentConfirmed, b.UpdatedAt, id,
	); err != nil {
		return nil, &storage.OpError{Op: "update_booking", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &storage.OpError{Op: "update_booking", Err: err}
	}
	return b, nil
}

// CancelBooking soft-deletes a booking by moving it to cancelled.
func (s *Store) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	status := models.StatusCancelled
	return s.UpdateBooking(ctx, id, storage.Patch{Status: &status})
}

// BookedSlots returns slots held on date by active bookings.
func (s *Store) BookedSlots(ctx context.Context, date string) (map[string]struct{}, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT slot FROM booking_slots WHERE date = ?`, date)
	if err != nil {
		return nil, &storage.OpError{Op: "booked_slots", Err: err}
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, &storage.OpError{Op: "booked_slots", Err: err}
		}
		out[slot] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.OpError{Op: "booked_slots", Err: err}
	}
	return out, nil
}

// Ping verifies the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}
