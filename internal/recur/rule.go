package recur

import (
	"errors"
	"fmt"

	"github.com/samber/mo"

	"calexport/internal/civil"
)

// Interval is the repetition kind recognized in a rule text.
type Interval int

const (
	Unrecognized Interval = iota
	Weekly
	Monthly
)

func (i Interval) String() string {
	switch i {
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	default:
		return "UNRECOGNIZED"
	}
}

// Rule is the simplified recurrence description of one store item.
type Rule struct {
	Interval Interval

	// Until is local midnight of the last calendar day on which an
	// occurrence may start.
	Until mo.Option[civil.Instant]

	// Exceptions are local midnights of suppressed days.
	Exceptions []civil.Instant
}

// IsException reports whether day falls on one of the rule's exception days.
func (r Rule) IsException(day civil.Instant) bool {
	for _, ex := range r.Exceptions {
		if civil.SameCalendarDay(day, ex) {
			return true
		}
	}
	return false
}

var (
	// ErrRuleNotFound is returned when an UNTIL or EXDATE row refers to an
	// item that has no rule row yet. The input stream is out of order and the
	// export cannot continue.
	ErrRuleNotFound = errors.New("rule modifier for an item without a rule")

	// ErrFinalized is returned by Add after Finalize.
	ErrFinalized = errors.New("rule store is finalized")
)

// ParseError reports malformed date digits behind a rule marker.
type ParseError struct {
	ItemID string
	Marker string
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("item %s: malformed %s date in %q: %s", e.ItemID, e.Marker, e.Text, e.Reason)
}

// Warning is a non-fatal finding about a rule row.
type Warning struct {
	ItemID string
	Text   string
	Reason string
}
