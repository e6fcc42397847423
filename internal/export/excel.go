// Package export renders booking lists as Excel workbooks for studio staff.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"studiobook/internal/models"
)

var bookingColumns = []string{
	"ID", "Date", "Time Slots", "Package", "Name", "Phone", "Email",
	"Status", "Payment Confirmed", "Payment Reference", "Notes",
	"Created At", "Updated At",
}

// WriteBookings writes an xlsx workbook with one row per booking.
func WriteBookings(w io.Writer, bookings []models.Booking) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Bookings"
	f.SetSheetName("Sheet1", sheet)

	if err := writeRow(f, sheet, 1, headerValues()); err != nil {
		return err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(bookingColumns), 1)
		_ = f.SetCellStyle(sheet, start, end, style)
	}

	for i, b := range bookings {
		if err := writeRow(f, sheet, i+2, bookingRowValues(&b)); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func headerValues() []interface{} {
	out := make([]interface{}, len(bookingColumns))
	for i, c := range bookingColumns {
		out[i] = c
	}
	return out
}

func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.Date,
		strings.Join(b.TimeSlots, ", "),
		b.Package,
		b.Name,
		b.Phone,
		b.Email,
		b.Status,
		b.PaymentConfirmed,
		b.PaymentReference,
		b.Notes,
		b.CreatedAt.Format("2006-01-02 15:04:05"),
		b.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, val); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}
