package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"studiobook/internal/models"
)

// recoveryCheckInterval is how long the failover store waits before probing
// the primary again after marking it down.
const recoveryCheckInterval = time.Minute

// FailoverStore routes calls to a primary store and falls back to a secondary
// one when the primary fails. After a failure the primary is considered down
// and is re-probed at most once per recoveryCheckInterval.
type FailoverStore struct {
	primary  Store
	fallback Store
	log      *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

// NewFailoverStore wraps primary with fallback.
func NewFailoverStore(primary, fallback Store, log *zerolog.Logger) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback, log: log}
}

// usePrimary decides whether the next call should go to the primary store.
func (f *FailoverStore) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) >= recoveryCheckInterval {
		f.lastCheck = time.Now()
		return true // recovery attempt
	}
	return false
}

func (f *FailoverStore) markDown(op string, err error) {
	if f.isDown.CompareAndSwap(false, true) {
		f.log.Warn().Err(err).Str("op", op).Msg("primary store down, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverStore) markUp() {
	if f.isDown.CompareAndSwap(true, false) {
		f.log.Info().Msg("primary store recovered")
	}
}

// backendFailure reports whether err indicates the backend itself failed, as
// opposed to a domain outcome (not found, slot conflict, bad transition) that
// must not trigger failover.
func backendFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case isDomainErr(err):
		return false
	default:
		return true
	}
}

func isDomainErr(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSlotTaken) ||
		errors.Is(err, ErrInvalidTransition)
}

func (f *FailoverStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	if f.usePrimary() {
		err := f.primary.CreateBooking(ctx, b)
		if !backendFailure(err) {
			f.markUp()
			return err
		}
		f.markDown("create_booking", err)
	}
	return f.fallback.CreateBooking(ctx, b)
}

func (f *FailoverStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if f.usePrimary() {
		b, err := f.primary.GetBooking(ctx, id)
		if !backendFailure(err) {
			f.markUp()
			return b, err
		}
		f.markDown("get_booking", err)
	}
	return f.fallback.GetBooking(ctx, id)
}

func (f *FailoverStore) ListBookings(ctx context.Context, status string) ([]models.Booking, error) {
	if f.usePrimary() {
		bs, err := f.primary.ListBookings(ctx, status)
		if !backendFailure(err) {
			f.markUp()
			return bs, err
		}
		f.markDown("list_bookings", err)
	}
	return f.fallback.ListBookings(ctx, status)
}

func (f *FailoverStore) UpdateBooking(ctx context.Context, id string, patch Patch) (*models.Booking, error) {
	if f.usePrimary() {
		b, err := f.primary.UpdateBooking(ctx, id, patch)
		if !backendFailure(err) {
			f.markUp()
			return b, err
		}
		f.markDown("update_booking", err)
	}
	return f.fallback.UpdateBooking(ctx, id, patch)
}

func (f *FailoverStore) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	if f.usePrimary() {
		b, err := f.primary.CancelBooking(ctx, id)
		if !backendFailure(err) {
			f.markUp()
			return b, err
		}
		f.markDown("cancel_booking", err)
	}
	return f.fallback.CancelBooking(ctx, id)
}

func (f *FailoverStore) BookedSlots(ctx context.Context, date string) (map[string]struct{}, error) {
	if f.usePrimary() {
		s, err := f.primary.BookedSlots(ctx, date)
		if !backendFailure(err) {
			f.markUp()
			return s, err
		}
		f.markDown("booked_slots", err)
	}
	return f.fallback.BookedSlots(ctx, date)
}

func (f *FailoverStore) Ping(ctx context.Context) error {
	if err := f.primary.Ping(ctx); err == nil {
		f.markUp()
		return nil
	}
	return f.fallback.Ping(ctx)
}

func (f *FailoverStore) Close() error {
	err := f.primary.Close()
	if ferr := f.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
