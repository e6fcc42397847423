// Package redisstore implements the booking store on Redis, holding each
// booking as a JSON document plus per-slot hold keys.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studiobook/internal/models"
	"studiobook/internal/storage"
)

const defaultOpTimeout = 5 * time.Second

// Key layout:
//
//	booking:{id}        JSON document
//	bookings:created    sorted set of ids scored by created_at (unix nanos)
//	slot:{date}:{label} id of the booking holding the slot
const (
	bookingKeyPrefix = "booking:"
	createdIndexKey  = "bookings:created"
	slotKeyPrefix    = "slot:"
)

// Store is a booking store backed by a Redis client.
type Store struct {
	rdb       *redis.Client
	log       *zerolog.Logger
	opTimeout time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Address  string
	Password string
	DB       int
}

// Open connects to Redis and verifies connectivity.
func Open(ctx context.Context, opts Options, opTimeout time.Duration, log *zerolog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	log.Info().Str("address", opts.Address).Msg("redis store initialized")
	return &Store{rdb: rdb, log: log, opTimeout: opTimeout}, nil
}

// NewWithClient wraps an existing client (used by tests).
func NewWithClient(rdb *redis.Client, log *zerolog.Logger) *Store {
	return &Store{rdb: rdb, log: log, opTimeout: defaultOpTimeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func bookingKey(id string) string { return bookingKeyPrefix + id }

func slotKey(date, slot string) string { return slotKeyPrefix + date + ":" + slot }

// CreateBooking claims each slot with SETNX, then writes the document. If any
// slot is already held, previously claimed slots are released and
// ErrSlotTaken is returned.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = models.StatusPending
	}

	claimed := make([]string, 0, len(b.TimeSlots))
	for _, slot := range b.TimeSlots {
		ok, err := s.rdb.SetNX(ctx, slotKey(b.Date, slot), b.ID, 0).Result()
		if err != nil {
			s.releaseSlots(ctx, b.Date, claimed)
			return &storage.OpError{Op: "create_booking", Err: err}
		}
		if !ok {
			s.releaseSlots(ctx, b.Date, claimed)
			return storage.ErrSlotTaken
		}
		claimed = append(claimed, slot)
	}

	doc, err := json.Marshal(b)
	if err != nil {
		s.releaseSlots(ctx, b.Date, claimed)
		return &storage.OpError{Op: "create_booking", Err: err}
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, bookingKey(b.ID), doc, 0)
	pipe.ZAdd(ctx, createdIndexKey, redis.Z{Score: float64(now.UnixNano()), Member: b.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		s.releaseSlots(ctx, b.Date, claimed)
		return &storage.OpError{Op: "create_booking", Err: err}
	}
	return nil
}

func (s *Store) releaseSlots(ctx context.Context, date string, claimed []string) {
	for _, slot := range claimed {
		if err := s.rdb.Del(ctx, slotKey(date, slot)).Err(); err != nil {
			s.log.Error().Err(err).Str("date", date).Str("slot", slot).
				Msg("failed to release slot hold")
		}
	}
}

func (s *Store) fetchBooking(ctx context.Context, id string) (*models.Booking, error) {
	doc, err := s.rdb.Get(ctx, bookingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, &storage.OpError{Op: "get_booking", Err: err}
	}
	var b models.Booking
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, &storage.OpError{Op: "get_booking", Err: err}
	}
	return &b, nil
}

// GetBooking returns a booking by id.
func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.fetchBooking(ctx, id)
}

// ListBookings walks the created-at index newest-first and filters by status
// in memory. Booking volume for a single studio keeps this cheap.
func (s *Store) ListBookings(ctx context.Context, status string) ([]models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.rdb.ZRevRange(ctx, createdIndexKey, 0, -1).Result()
	if err != nil {
		return nil, &storage.OpError{Op: "list_bookings", Err: err}
	}

	out := make([]models.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := s.fetchBooking(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue // index entry for a purged document
		}
		if err != nil {
			return nil, &storage.OpError{Op: "list_bookings", Err: err}
		}
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

// UpdateBooking applies a partial update inside a WATCH transaction so that
// concurrent updates to the same booking retry instead of clobbering.
func (s *Store) UpdateBooking(ctx context.Context, id string, patch storage.Patch) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated *models.Booking
	key := bookingKey(id)

	txn := func(tx *redis.Tx) error {
		doc, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		var b models.Booking
		if err := json.Unmarshal(doc, &b); err != nil {
			return err
		}

		releaseSlots := false
		if patch.Status != nil {
			// Checked even for same-status patches: terminal bookings
			// reject every status write, including their own status.
			if !models.CanTransition(b.Status, *patch.Status) {
				return storage.ErrInvalidTransition
			}
			releaseSlots = models.HoldsSlots(b.Status) && !models.HoldsSlots(*patch.Status)
			b.Status = *patch.Status
		}
		if patch.PaymentConfirmed != nil {
			b.PaymentConfirmed = *patch.PaymentConfirmed
		}
		b.UpdatedAt = time.Now().UTC()

		newDoc, err := json.Marshal(&b)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newDoc, 0)
			if releaseSlots {
				for _, slot := range b.TimeSlots {
					pipe.Del(ctx, slotKey(b.Date, slot))
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = &b
		return nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.rdb.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // key changed under us, retry
		}
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidTransition) {
			return nil, err
		}
		return nil, &storage.OpError{Op: "update_booking", Err: err}
	}
	return nil, &storage.OpError{Op: "update_booking", Err: redis.TxFailedErr}
}

// CancelBooking soft-deletes a booking by moving it to cancelled.
func (s *Store) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	status := models.StatusCancelled
	return s.UpdateBooking(ctx, id, storage.Patch{Status: &status})
}

// BookedSlots scans the slot hold keys for the given date.
func (s *Store) BookedSlots(ctx context.Context, date string) (map[string]struct{}, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out := make(map[string]struct{})
	pattern := slotKeyPrefix + date + ":*"
	prefixLen := len(slotKeyPrefix + date + ":")

	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) > prefixLen {
			out[key[prefixLen:]] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, &storage.OpError{Op: "booked_slots", Err: err}
	}
	return out, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
