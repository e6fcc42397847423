// Package slots holds the studio's fixed daily slot catalog and the
// availability computation over it.
package slots

import (
	"fmt"
	"sort"
	"time"
)

// catalog is the ordered list of bookable session slots for a business day.
// Labels are what clients see and what bookings store.
var catalog = []string{
	"09:00 AM",
	"10:00 AM",
	"11:00 AM",
	"12:00 PM",
	"01:00 PM",
	"02:00 PM",
	"03:00 PM",
	"04:00 PM",
	"05:00 PM",
	"06:00 PM",
}

// index maps slot labels to catalog positions.
var index = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for i, s := range catalog {
		m[s] = i
	}
	return m
}()

// Catalog returns a copy of the full slot catalog in display order.
func Catalog() []string {
	out := make([]string, len(catalog))
	copy(out, catalog)
	return out
}

// Valid reports whether label is a known catalog slot.
func Valid(label string) bool {
	_, ok := index[label]
	return ok
}

// Normalize validates a requested slot list and returns it deduplicated and
// sorted in catalog order. An empty list or an unknown label is an error.
func Normalize(labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("at least one time slot is required")
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !Valid(l) {
			return nil, fmt.Errorf("unknown time slot %q", l)
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return index[out[i]] < index[out[j]] })
	return out, nil
}

// Available returns catalog − booked, preserving catalog order. A fully
// booked day yields an empty slice, not nil.
func Available(booked map[string]struct{}) []string {
	out := make([]string, 0, len(catalog))
	for _, s := range catalog {
		if _, taken := booked[s]; !taken {
			out = append(out, s)
		}
	}
	return out
}

// ParseDate parses a strict YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	return d, nil
}
