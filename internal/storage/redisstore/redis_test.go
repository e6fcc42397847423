package redisstore

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/models"
	"studiobook/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	logger := zerolog.New(io.Discard)
	return NewWithClient(rdb, &logger)
}

func testBooking(date string, slots ...string) *models.Booking {
	return &models.Booking{
		Date:      date,
		TimeSlots: slots,
		Name:      "Ada Lovelace",
		Phone:     "+2348012345678",
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBooking("2025-06-01", "10:00 AM")
	require.NoError(t, s.CreateBooking(ctx, b))
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, models.StatusPending, b.Status)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, []string{"10:00 AM"}, got.TimeSlots)
}

func TestGetBookingNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBooking(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSlotConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBooking(ctx, testBooking("2025-06-01", "10:00 AM")))

	err := s.CreateBooking(ctx, testBooking("2025-06-01", "10:00 AM"))
	assert.ErrorIs(t, err, storage.ErrSlotTaken)

	// Partial overlap rolls back the claimed slot.
	err = s.CreateBooking(ctx, testBooking("2025-06-01", "09:00 AM", "10:00 AM"))
	assert.ErrorIs(t, err, storage.ErrSlotTaken)

	booked, err := s.BookedSlots(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, booked, 1)
	_, held := booked["09:00 AM"]
	assert.False(t, held, "rejected booking must not leave a dangling hold")
}

func TestCancelFreesSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBooking("2025-06-01", "11:00 AM")
	require.NoError(t, s.CreateBooking(ctx, b))

	cancelled, err := s.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	booked, err := s.BookedSlots(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, booked)

	assert.NoError(t, s.CreateBooking(ctx, testBooking("2025-06-01", "11:00 AM")))
}

func TestUpdateTerminalBookingRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBooking("2025-06-01", "02:00 PM")
	require.NoError(t, s.CreateBooking(ctx, b))
	_, err := s.CancelBooking(ctx, b.ID)
	require.NoError(t, err)

	confirmed := models.StatusConfirmed
	_, err = s.UpdateBooking(ctx, b.ID, storage.Patch{Status: &confirmed})
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancelTwiceRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBooking("2025-06-01", "03:00 PM")
	require.NoError(t, s.CreateBooking(ctx, b))
	cancelled, err := s.CancelBooking(ctx, b.ID)
	require.NoError(t, err)

	_, err = s.CancelBooking(ctx, b.ID)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	// Writing a terminal booking's own status back is rejected too.
	status := models.StatusCancelled
	_, err = s.UpdateBooking(ctx, b.ID, storage.Patch{Status: &status})
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled.UpdatedAt.UnixNano(), got.UpdatedAt.UnixNano(),
		"rejected update must not touch the record")
}

func TestUpdatePaymentConfirmed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBooking("2025-06-01", "05:00 PM")
	require.NoError(t, s.CreateBooking(ctx, b))

	yes := true
	got, err := s.UpdateBooking(ctx, b.ID, storage.Patch{PaymentConfirmed: &yes})
	require.NoError(t, err)
	assert.True(t, got.PaymentConfirmed)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestListBookingsOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testBooking("2025-06-01", "09:00 AM")
	require.NoError(t, s.CreateBooking(ctx, first))
	second := testBooking("2025-06-01", "10:00 AM")
	require.NoError(t, s.CreateBooking(ctx, second))

	confirmed := models.StatusConfirmed
	_, err := s.UpdateBooking(ctx, second.ID, storage.Patch{Status: &confirmed})
	require.NoError(t, err)

	all, err := s.ListBookings(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	pending, err := s.ListBookings(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)
}
