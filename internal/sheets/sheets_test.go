package sheets

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studiobook/internal/events"
	"studiobook/internal/models"
)

func TestFilterActiveBookings(t *testing.T) {
	s := &SheetsService{}

	bookings := []models.Booking{
		{ID: "a", Status: models.StatusPending},
		{ID: "b", Status: models.StatusConfirmed},
		{ID: "c", Status: models.StatusCancelled},
		{ID: "d", Status: models.StatusCompleted},
	}

	active := s.filterActiveBookings(bookings)

	if len(active) != 3 {
		t.Errorf("Expected 3 active bookings, got %d", len(active))
	}

	for _, b := range active {
		if b.Status == models.StatusCancelled {
			t.Errorf("Cancelled booking found in active list")
		}
	}
}

func TestBookingRowValues(t *testing.T) {
	createdAt := time.Date(2026, 9, 20, 10, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2026, 9, 21, 11, 0, 0, 0, time.UTC)

	booking := &models.Booking{
		ID:               "bk-123",
		Date:             "2026-10-25",
		TimeSlots:        []string{"10:00 AM", "11:00 AM"},
		Package:          "Family Session",
		Status:           models.StatusConfirmed,
		Name:             "Test User",
		Phone:            "+49 151 0000000",
		Email:            "test@example.com",
		PaymentConfirmed: true,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}

	values := bookingRowValues(booking)

	expected := []interface{}{
		"bk-123",
		"2026-10-25",
		"10:00 AM, 11:00 AM",
		"Family Session",
		"confirmed",
		"Test User",
		"+49 151 0000000",
		"test@example.com",
		true,
		"2026-09-20 10:00:00",
		"2026-09-21 11:00:00",
	}

	if len(values) != len(expected) {
		t.Fatalf("Expected %d values, got %d", len(expected), len(values))
	}

	for i, v := range values {
		if v != expected[i] {
			t.Errorf("At index %d: expected %v, got %v", i, expected[i], v)
		}
	}
}

func TestCacheOperations(t *testing.T) {
	s := &SheetsService{
		rowCache: make(map[string]int),
	}

	s.setCachedRow("bk-100", 5)
	row, ok := s.getCachedRow("bk-100")
	if !ok || row != 5 {
		t.Errorf("Expected row 5, got %d (ok=%v)", row, ok)
	}

	s.deleteCacheRow("bk-100")
	_, ok = s.getCachedRow("bk-100")
	if ok {
		t.Errorf("Expected row to be deleted from cache")
	}

	s.setCachedRow("bk-200", 10)
	s.ClearCache()
	_, ok = s.getCachedRow("bk-200")
	if ok {
		t.Errorf("Expected cache to be cleared")
	}
}

func TestHandleEventNeverBlocks(t *testing.T) {
	log := zerolog.Nop()
	s := &SheetsService{
		log:      &log,
		queue:    make(chan models.Booking, 1),
		rowCache: make(map[string]int),
	}

	payload, err := json.Marshal(models.Booking{ID: "bk-1", Status: models.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	event := events.Event{Type: events.TypeBookingCreated, Payload: payload}

	// No worker is draining the queue; the second call hits a full queue and
	// must drop instead of blocking.
	done := make(chan struct{})
	go func() {
		_ = s.handleEvent(event)
		_ = s.handleEvent(event)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleEvent blocked on a full queue")
	}

	if len(s.queue) != 1 {
		t.Errorf("expected 1 queued booking, got %d", len(s.queue))
	}
}

func TestParseRowFromRange(t *testing.T) {
	tests := []struct {
		rng  string
		want int
	}{
		{"Bookings!A7:K7", 7},
		{"Bookings!A12", 12},
		{"A3:K3", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := parseRowFromRange(tt.rng); got != tt.want {
			t.Errorf("parseRowFromRange(%q) = %d, want %d", tt.rng, got, tt.want)
		}
	}
}
