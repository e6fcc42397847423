// Package storage defines the booking store abstraction shared by all
// persistence backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"studiobook/internal/models"
)

// Sentinel errors every backend maps its native failures onto. Callers use
// errors.Is; anything else coming out of a Store is a backend failure.
var (
	ErrNotFound          = errors.New("booking not found")
	ErrSlotTaken         = errors.New("time slot already booked")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// OpError wraps a backend failure with the operation that produced it.
// Connectivity problems, constraint violations and timeouts all surface as
// OpError; callers must not assume they are retryable.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *OpError) Unwrap() error { return e.Err }

// Patch is a partial booking update. Nil fields are left untouched.
type Patch struct {
	Status           *string
	PaymentConfirmed *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.PaymentConfirmed == nil
}

// Store is the persistence interface for booking records. Implementations
// must be safe for concurrent use and must enforce the slot-uniqueness
// invariant at write time: no two bookings holding slots (pending or
// confirmed) may share a (date, slot) pair.
type Store interface {
	// CreateBooking persists a new booking, assigning ID and timestamps.
	// Returns ErrSlotTaken if any requested slot is already held for the date.
	CreateBooking(ctx context.Context, b *models.Booking) error

	// GetBooking returns a booking by id, or ErrNotFound.
	GetBooking(ctx context.Context, id string) (*models.Booking, error)

	// ListBookings returns bookings ordered by created_at descending,
	// optionally filtered by status (empty string means all).
	ListBookings(ctx context.Context, status string) ([]models.Booking, error)

	// UpdateBooking applies a partial update and returns the updated record.
	// Returns ErrNotFound for an unknown id and ErrInvalidTransition when the
	// status change is not allowed from the stored status. Slots are released
	// atomically when the booking leaves an active status.
	UpdateBooking(ctx context.Context, id string, patch Patch) (*models.Booking, error)

	// CancelBooking is a soft delete: UpdateBooking to cancelled.
	CancelBooking(ctx context.Context, id string) (*models.Booking, error)

	// BookedSlots returns the slots held by pending or confirmed bookings on
	// the given YYYY-MM-DD date.
	BookedSlots(ctx context.Context, date string) (map[string]struct{}, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend handle.
	Close() error
}
