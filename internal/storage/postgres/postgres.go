// Package postgres implements the booking store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"studiobook/internal/models"
	"studiobook/internal/storage"
)

const defaultOpTimeout = 5 * time.Second

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// Store is a booking store backed by a PostgreSQL pool.
type Store struct {
	pool      *pgxpool.Pool
	log       *zerolog.Logger
	opTimeout time.Duration
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(ctx context.Context, dsn string, opTimeout time.Duration, log *zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	s := &Store{pool: pool, log: log, opTimeout: opTimeout}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	log.Info().Msg("postgres store initialized")
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id UUID PRIMARY KEY,
			date TEXT NOT NULL,
			time_slots TEXT[] NOT NULL,
			package TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			payment_account TEXT NOT NULL DEFAULT '',
			payment_bank TEXT NOT NULL DEFAULT '',
			payment_reference TEXT NOT NULL DEFAULT '',
			payment_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		// Slot holds; rows exist only while the booking is pending or
		// confirmed. The primary key is the double-booking guard.
		`CREATE TABLE IF NOT EXISTS booking_slots (
			date TEXT NOT NULL,
			slot TEXT NOT NULL,
			booking_id UUID NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			PRIMARY KEY (date, slot)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created ON bookings(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_slots_booking ON booking_slots(booking_id)`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateBooking inserts the booking and its slot holds in one transaction.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &storage.OpError{Op: "create_booking", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = models.StatusPending
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (
			id, date, time_slots, package, name, phone, email, notes,
			payment_account, payment_bank, payment_reference,
			payment_confirmed, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		b.ID, b.Date, b.TimeSlots, b.Package, b.Name, b.Phone, b.Email, b.Notes,
		b.PaymentAccount, b.PaymentBank, b.PaymentReference,
		b.PaymentConfirmed, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return &storage.OpError{Op: "create_booking", Err: err}
	}

	for _, slot := range b.TimeSlots {
		if _, err := tx.Exec(ctx,
			`INSERT INTO booking_slots (date, slot, booking_id) VALUES ($1,$2,$3)`,
			b.Date, slot, b.ID,
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrSlotTaken
			}
			return &storage.OpError{Op: "create_booking", Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrSlotTaken
		}
		return &storage.OpError{Op: "create_booking", Err: err}
	}
	return nil
}

const bookingColumns = `id, date, time_slots, package, name, phone, email, notes,
	payment_account, payment_bank, payment_reference,
	payment_confirmed, status, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.Date, &b.TimeSlots, &b.Package, &b.Name, &b.Phone, &b.Email, &b.Notes,
		&b.PaymentAccount, &b.PaymentBank, &b.PaymentReference,
		&b.PaymentConfirmed, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBooking returns a booking by id.
func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, &storage.OpError{Op: "get_booking", Err: err}
	}
	return b, nil
}

// ListBookings returns bookings newest-first, optionally filtered by status.
func (s *Store) ListBookings(ctx context.Context, status string) ([]models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE status = $1 ORDER BY created_at DESC`, status)
	} else {
		rows, err = s.pool.Query(ctx,
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

// UpdateBooking applies a partial update under a row lock, enforcing the
// status lifecycle and releasing slot holds on terminal transitions.
func (s *Store) UpdateBooking(ctx context.Context, id string, patch storage.Patch) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &storage.OpError{Op: "update_booking", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
			if _, err := tx.Exec(ctx,
				`DELETE FROM booking_slots WHERE booking_id = $1`, id); err != nil {
				return nil, &storage.OpError{Op: "update_booking", Err: err}
			}
		}
		b.Status = *patch.Status
	}
	if patch.PaymentConfirmed != nil {
		b.PaymentConfirmed = *patch.PaymentConfirmed
	}
	b.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx,
		`UPDATE bookings SET status = $1, payment_confirmed = $2, updated_at = $3 WHERE id = $4`,
		b.Status, b.PaymentConfirmed, b.UpdatedAt, id,
	); err != nil {
		return nil, &storage.OpError{Op: "update_booking", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
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

	rows, err := s.pool.Query(ctx,
		`SELECT slot FROM booking_slots WHERE date = $1`, date)
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

// Ping verifies pool connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
