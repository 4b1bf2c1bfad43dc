package expand

import (
	"slices"

	"calexport/internal/civil"
	"calexport/internal/model"
)

// Compare orders events for output: on the same calendar day all-day events
// come before timed ones, everything else is ordered by start instant.
func Compare(a, b model.Event) int {
	if civil.SameCalendarDay(a.Start, b.Start) && a.AllDay != b.AllDay {
		if a.AllDay {
			return -1
		}
		return 1
	}
	switch {
	case a.Start.Unix < b.Start.Unix:
		return -1
	case a.Start.Unix > b.Start.Unix:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b.
func Less(a, b model.Event) bool {
	return Compare(a, b) < 0
}

// Sort orders events in place. Events that compare equal keep their
// relative order.
func Sort(events []model.Event) {
	slices.SortStableFunc(events, Compare)
}
