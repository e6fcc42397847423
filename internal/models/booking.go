package models

import "time"

// Booking statuses. A booking starts as pending and is confirmed by an
// operator; completed and cancelled are terminal.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Booking represents a studio session booking record.
type Booking struct {
	ID               string    `json:"id"`
	Date             string    `json:"date"`       // YYYY-MM-DD
	TimeSlots        []string  `json:"time_slots"` // ordered catalog labels, e.g. "10:00 AM"
	Package          string    `json:"package,omitempty"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	PaymentAccount   string    `json:"payment_account,omitempty"`
	PaymentBank      string    `json:"payment_bank,omitempty"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	PaymentConfirmed bool      `json:"payment_confirmed"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// statusTransitions lists the allowed status changes. Terminal statuses have
// no outgoing transitions.
var statusTransitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCancelled: {},
	StatusCompleted: {},
}

// ValidStatus reports whether s is one of the known booking statuses.
func ValidStatus(s string) bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether a booking may move from one status to another.
// Setting the same status again is allowed (idempotent update).
func CanTransition(from, to string) bool {
	if from == to {
		return !IsTerminalStatus(from)
	}
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further status changes are allowed.
func IsTerminalStatus(s string) bool {
	return s == StatusCancelled || s == StatusCompleted
}

// HoldsSlots reports whether a booking in this status occupies its time
// slots. Cancelled and completed bookings free their slots.
func HoldsSlots(status string) bool {
	return status == StatusPending || status == StatusConfirmed
}

// Active reports whether the booking still occupies its slots.
func (b *Booking) Active() bool {
	return HoldsSlots(b.Status)
}
