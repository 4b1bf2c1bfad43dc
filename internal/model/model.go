package model

import "calexport/internal/civil"

// Flag bits carried by a calendar store event row.
const (
	FlagAllDay    = 1 << 3
	FlagRecurring = 1 << 4
)

// Event represents a single occurrence, either as read from the calendar
// store or as a clone produced by expansion. Clones are independent values;
// nothing is shared between an Event and the base it was derived from.
type Event struct {
	Title string

	// Start / End are in the configured export timezone. For all-day
	// events End is exclusive: a one-day event ends at Start + 1 day.
	Start civil.Instant
	End   civil.Instant

	AllDay bool

	// Recurring reports whether the store marked this row as part of a
	// recurring series.
	Recurring bool

	// ItemID is the store item identifier, shared by every instance of a
	// series.
	ItemID string

	// CalendarID is the dense identifier assigned by CalendarIDs.
	CalendarID int
}

// CalendarIDs assigns small dense integers to calendar keys in first-seen
// order. The zero value is not usable; call NewCalendarIDs.
type CalendarIDs struct {
	ids  map[string]int
	keys []string
}

func NewCalendarIDs() *CalendarIDs {
	return &CalendarIDs{ids: make(map[string]int)}
}

// ID returns the identifier for key, assigning the next free one if key has
// not been seen yet.
func (c *CalendarIDs) ID(key string) int {
	if id, ok := c.ids[key]; ok {
		return id
	}
	id := len(c.keys)
	c.ids[key] = id
	c.keys = append(c.keys, key)
	return id
}

// Key returns the calendar key that was assigned id.
func (c *CalendarIDs) Key(id int) (string, bool) {
	if id < 0 || id >= len(c.keys) {
		return "", false
	}
	return c.keys[id], true
}

// Len returns the number of distinct calendars seen so far.
func (c *CalendarIDs) Len() int {
	return len(c.keys)
}
