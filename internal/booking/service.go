// Package booking implements the appointment booking service: input
// validation, lifecycle enforcement and slot availability on top of a
// storage backend.
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"studiobook/internal/events"
	"studiobook/internal/metrics"
	"studiobook/internal/models"
	"studiobook/internal/slots"
	"studiobook/internal/storage"
)

// ValidationError reports a rejected input. It is raised before any storage
// call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// CreateInput is the client-supplied portion of a new booking.
type CreateInput struct {
	Date             string   `json:"date"`
	TimeSlots        []string `json:"time_slots"`
	Package          string   `json:"package"`
	Name             string   `json:"name"`
	Phone            string   `json:"phone"`
	Email            string   `json:"email"`
	Notes            string   `json:"notes"`
	PaymentAccount   string   `json:"payment_account"`
	PaymentBank      string   `json:"payment_bank"`
	PaymentReference string   `json:"payment_reference"`
}

// Availability is the slot picture for one date.
type Availability struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
	BookedSlots    []string `json:"bookedSlots"`
}

// Service owns booking records behind a Store.
type Service struct {
	store storage.Store
	bus   *events.Bus
	log   *zerolog.Logger
}

// NewService creates a booking service.
func NewService(store storage.Store, bus *events.Bus, log *zerolog.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// Create validates the input and persists a new pending booking.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	if _, err := slots.ParseDate(in.Date); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationf("name is required")
	}
	if strings.TrimSpace(in.Phone) == "" {
		return nil, validationf("phone is required")
	}
	normalized, err := slots.Normalize(in.TimeSlots)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	b := &models.Booking{
		Date:             in.Date,
		TimeSlots:        normalized,
		Package:          strings.TrimSpace(in.Package),
		Name:             strings.TrimSpace(in.Name),
		Phone:            strings.TrimSpace(in.Phone),
		Email:            strings.TrimSpace(in.Email),
		Notes:            in.Notes,
		PaymentAccount:   strings.TrimSpace(in.PaymentAccount),
		PaymentBank:      strings.TrimSpace(in.PaymentBank),
		PaymentReference: strings.TrimSpace(in.PaymentReference),
		Status:           models.StatusPending,
	}

	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}

	metrics.IncBookingCreated(b.Status)
	s.log.Info().
		Str("booking_id", b.ID).
		Str("date", b.Date).
		Strs("time_slots", b.TimeSlots).
		Msg("booking created")
	s.publish(events.TypeBookingCreated, b)
	return b, nil
}

// Get returns a single booking.
func (s *Service) Get(ctx context.Context, id string) (*models.Booking, error) {
	if id == "" {
		return nil, validationf("booking id is required")
	}
	return s.store.GetBooking(ctx, id)
}

// List returns bookings newest-first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]models.Booking, error) {
	if status != "" && !models.ValidStatus(status) {
		return nil, validationf("invalid status %q", status)
	}
	return s.store.ListBookings(ctx, status)
}

// Update applies a partial update (status and/or payment confirmation).
func (s *Service) Update(ctx context.Context, id string, patch storage.Patch) (*models.Booking, error) {
	if id == "" {
		return nil, validationf("booking id is required")
	}
	if patch.Empty() {
		return nil, validationf("nothing to update")
	}
	if patch.Status != nil && !models.ValidStatus(*patch.Status) {
		return nil, validationf("invalid status %q", *patch.Status)
	}

	b, err := s.store.UpdateBooking(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("booking_id", b.ID).
		Str("status", b.Status).
		Bool("payment_confirmed", b.PaymentConfirmed).
		Msg("booking updated")
	s.publish(events.TypeBookingUpdated, b)
	return b, nil
}

// Cancel soft-deletes a booking, freeing its slots.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Booking, error) {
	if id == "" {
		return nil, validationf("booking id is required")
	}

	b, err := s.store.CancelBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCancelled()
	s.log.Info().Str("booking_id", b.ID).Str("date", b.Date).Msg("booking cancelled")
	s.publish(events.TypeBookingCancelled, b)
	return b, nil
}

// AvailableSlots computes the open slots for a date: catalog minus the slots
// held by pending and confirmed bookings.
func (s *Service) AvailableSlots(ctx context.Context, date string) (*Availability, error) {
	if _, err := slots.ParseDate(date); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	booked, err := s.store.BookedSlots(ctx, date)
	if err != nil {
		return nil, err
	}

	bookedList := make([]string, 0, len(booked))
	for _, label := range slots.Catalog() {
		if _, ok := booked[label]; ok {
			bookedList = append(bookedList, label)
		}
	}

	return &Availability{
		Date:           date,
		AvailableSlots: slots.Available(booked),
		BookedSlots:    bookedList,
	}, nil
}

func (s *Service) publish(eventType string, b *models.Booking) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(b)
	if err != nil {
		s.log.Error().Err(err).Str("booking_id", b.ID).Msg("marshal event payload")
		return
	}
	s.bus.Publish(events.Event{Type: eventType, Payload: payload})
}
