package facade

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/model"
)

// DatedSlot pairs a resolved slot with the calendar date it was fetched
// for, since model.Slot itself carries no date (slots are scoped to one
// (venue, field_type, date) query at a time).
type DatedSlot struct {
	Date string     `json:"date"`
	Slot model.Slot `json:"slot"`
}

// SlotListResult is ListSlots' return value.
type SlotListResult struct {
	Resolved ResolvedTarget `json:"resolved"`
	Slots    []DatedSlot    `json:"slots"`
}

// ResolvedTarget is the plain-data projection of resolver.Resolved
// handed back to external callers.
type ResolvedTarget struct {
	VenueID       string `json:"venue_id"`
	VenueName     string `json:"venue_name"`
	FieldTypeID   string `json:"field_type_id"`
	FieldTypeName string `json:"field_type_name"`
}

// ListSlotsRequest is ListSlots' input: either a preset or a raw
// venue/field-type selector, plus an optional date and start-hour
// filter.
type ListSlotsRequest struct {
	PresetIndex  int
	VenueID      string
	FieldTypeID  string
	Date         string
	StartHour    int
	ShowFull     bool
	BaseTarget   *model.BookingTarget
	User         string
}

// OrderOnceRequest is OrderOnce's input. Date accepts either a
// YYYY-MM-DD string or an integer day-offset; StartTime accepts "H",
// "HH", or "HH:MM"; EndTime defaults to StartTime plus the target's
// configured duration when empty.
type OrderOnceRequest struct {
	PresetIndex   int
	VenueID       string
	FieldTypeID   string
	Date          string
	StartTime     string
	EndTime       string
	DurationHours int
	BaseTarget    *model.BookingTarget
	User          string
}

// OrderResult is OrderOnce's return value.
type OrderResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// mergeTarget builds the BookingTarget a request resolves against,
// seeding it from req's base target (if any) and overlaying the
// request's own preset/venue/field-type selector.
func mergeTarget(base *model.BookingTarget, presetIndex int, venueID, fieldTypeID string) model.BookingTarget {
	var t model.BookingTarget
	if base != nil {
		t = *base
	}
	if presetIndex != 0 {
		t.PresetIndex = presetIndex
	}
	if venueID != "" {
		t.VenueID = venueID
	}
	if fieldTypeID != "" {
		t.FieldTypeID = fieldTypeID
	}
	return t
}

// parseOrderDate accepts "YYYY-MM-DD" or an integer day-offset from
// today, per spec.md §4.12's OrderOnce contract.
func parseOrderDate(raw string, now time.Time) (string, error) {
	if raw == "" {
		return now.Format("2006-01-02"), nil
	}
	if offset, err := strconv.Atoi(raw); err == nil {
		return now.AddDate(0, 0, offset).Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", raw); err != nil {
		return "", bookingerr.New(bookingerr.ErrConfig, 0, fmt.Sprintf("invalid date %q: expected YYYY-MM-DD or an integer day offset", raw))
	}
	return raw, nil
}

// parseOrderTime accepts "H", "HH", or "HH:MM" and returns a normalized
// "HH:MM" string plus the parsed hour.
func parseOrderTime(raw string) (string, int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, bookingerr.New(bookingerr.ErrConfig, 0, "time must not be empty")
	}
	if strings.Contains(raw, ":") {
		t, err := time.Parse("15:04", raw)
		if err != nil {
			return "", 0, bookingerr.New(bookingerr.ErrConfig, 0, fmt.Sprintf("invalid time %q: expected HH:MM", raw))
		}
		return t.Format("15:04"), t.Hour(), nil
	}
	hour, err := strconv.Atoi(raw)
	if err != nil || hour < 0 || hour > 23 {
		return "", 0, bookingerr.New(bookingerr.ErrConfig, 0, fmt.Sprintf("invalid time %q: expected H, HH, or HH:MM", raw))
	}
	return fmt.Sprintf("%02d:00", hour), hour, nil
}
