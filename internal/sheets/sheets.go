// Package sheets mirrors the booking schedule into a Google Spreadsheet so
// studio staff can see it without touching the admin API.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"studiobook/internal/events"
	"studiobook/internal/models"
)

var headerRow = []interface{}{
	"ID", "Date", "Time Slots", "Package", "Status", "Name", "Phone", "Email",
	"Payment Confirmed", "Created At", "Updated At",
}

const (
	// syncQueueSize bounds pending sheet writes; overflow is dropped and the
	// next SyncAll repairs the sheet. Event handlers never block the request
	// path.
	syncQueueSize = 256

	// syncTimeout caps one Sheets API round trip.
	syncTimeout = 30 * time.Second
)

// SheetsService keeps one spreadsheet row per non-cancelled booking. Event
// writes are serialized through a single background worker.
type SheetsService struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	sheetName     string
	log           *zerolog.Logger
	queue         chan models.Booking

	mu       sync.Mutex
	rowCache map[string]int
}

// New authenticates with a service account key and returns a sync service.
func New(ctx context.Context, credentialsJSON []byte, spreadsheetID, sheetName string, log *zerolog.Logger) (*SheetsService, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}

	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}

	if sheetName == "" {
		sheetName = "Bookings"
	}
	s := &SheetsService{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		log:           log,
		queue:         make(chan models.Booking, syncQueueSize),
		rowCache:      make(map[string]int),
	}
	go s.run()
	return s, nil
}

// SubscribeTo registers sheet updates on the booking event bus.
func (s *SheetsService) SubscribeTo(bus *events.Bus) {
	bus.Subscribe(events.TypeBookingCreated, s.handleEvent)
	bus.Subscribe(events.TypeBookingUpdated, s.handleEvent)
	bus.Subscribe(events.TypeBookingCancelled, s.handleEvent)
}

// handleEvent decodes the event and enqueues it without blocking. When the
// queue is full the write is dropped; the next SyncAll repairs the sheet.
func (s *SheetsService) handleEvent(event events.Event) error {
	var b models.Booking
	if err := json.Unmarshal(event.Payload, &b); err != nil {
		s.log.Error().Err(err).Str("type", event.Type).Msg("Failed to decode booking event")
		return err
	}

	select {
	case s.queue <- b:
	default:
		s.log.Warn().Str("booking_id", b.ID).Msg("Sheet sync queue full, dropping")
	}
	return nil
}

// run serializes sheet writes, each bounded by syncTimeout.
func (s *SheetsService) run() {
	for b := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		var err error
		if b.Status == models.StatusCancelled {
			err = s.removeBooking(ctx, &b)
		} else {
			err = s.upsertBooking(ctx, &b)
		}
		cancel()
		if err != nil {
			s.log.Error().Err(err).Str("booking_id", b.ID).Msg("Sheets sync failed")
		}
	}
}

// SyncAll rewrites the sheet from scratch: header plus one row per
// non-cancelled booking. The row cache is rebuilt as a side effect.
func (s *SheetsService) SyncAll(ctx context.Context, bookings []models.Booking) error {
	active := s.filterActiveBookings(bookings)

	values := make([][]interface{}, 0, len(active)+1)
	values = append(values, headerRow)
	for i := range active {
		values = append(values, bookingRowValues(&active[i]))
	}

	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, s.sheetName, &sheetsapi.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}

	_, err = s.svc.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("%s!A1", s.sheetName),
		&sheetsapi.ValueRange{Values: values},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	s.ClearCache()
	s.mu.Lock()
	for i := range active {
		s.rowCache[active[i].ID] = i + 2 // row 1 is the header
	}
	s.mu.Unlock()

	s.log.Info().Int("bookings", len(active)).Msg("Schedule sheet rewritten")
	return nil
}

func (s *SheetsService) upsertBooking(ctx context.Context, b *models.Booking) error {
	row, ok := s.getCachedRow(b.ID)
	if !ok {
		var err error
		row, err = s.findRow(ctx, b.ID)
		if err != nil {
			return err
		}
	}

	if row == 0 {
		// Append a fresh row.
		resp, err := s.svc.Spreadsheets.Values.Append(
			s.spreadsheetID,
			fmt.Sprintf("%s!A1", s.sheetName),
			&sheetsapi.ValueRange{Values: [][]interface{}{bookingRowValues(b)}},
		).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append row: %w", err)
		}
		if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
			if r := parseRowFromRange(resp.Updates.UpdatedRange); r > 0 {
				s.setCachedRow(b.ID, r)
			}
		}
		return nil
	}

	_, err := s.svc.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("%s!A%d", s.sheetName, row),
		&sheetsapi.ValueRange{Values: [][]interface{}{bookingRowValues(b)}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	s.setCachedRow(b.ID, row)
	return nil
}

func (s *SheetsService) removeBooking(ctx context.Context, b *models.Booking) error {
	row, ok := s.getCachedRow(b.ID)
	if !ok {
		var err error
		row, err = s.findRow(ctx, b.ID)
		if err != nil {
			return err
		}
	}
	if row == 0 {
		return nil
	}

	blank := make([]interface{}, len(headerRow))
	for i := range blank {
		blank[i] = ""
	}
	_, err := s.svc.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("%s!A%d", s.sheetName, row),
		&sheetsapi.ValueRange{Values: [][]interface{}{blank}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("blank row %d: %w", row, err)
	}
	s.deleteCacheRow(b.ID)
	return nil
}

// findRow scans column A for the booking ID. Returns 0 when absent.
func (s *SheetsService) findRow(ctx context.Context, id string) (int, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(
		s.spreadsheetID,
		fmt.Sprintf("%s!A:A", s.sheetName),
	).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read id column: %w", err)
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cell, ok := row[0].(string); ok && cell == id {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (s *SheetsService) filterActiveBookings(bookings []models.Booking) []models.Booking {
	active := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status != models.StatusCancelled {
			active = append(active, b)
		}
	}
	return active
}

func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.Date,
		strings.Join(b.TimeSlots, ", "),
		b.Package,
		b.Status,
		b.Name,
		b.Phone,
		b.Email,
		b.PaymentConfirmed,
		b.CreatedAt.Format("2006-01-02 15:04:05"),
		b.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// parseRowFromRange extracts the row number from a range like "Bookings!A7:K7".
func parseRowFromRange(rng string) int {
	idx := strings.Index(rng, "!")
	if idx < 0 {
		return 0
	}
	cell := rng[idx+1:]
	if end := strings.Index(cell, ":"); end >= 0 {
		cell = cell[:end]
	}
	row := 0
	for _, r := range cell {
		if r >= '0' && r <= '9' {
			row = row*10 + int(r-'0')
		}
	}
	return row
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache drops all cached row positions.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[string]int)
}
