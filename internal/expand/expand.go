package expand

import (
	"calexport/internal/civil"
	"calexport/internal/model"
	"calexport/internal/recur"
)

const (
	// DefaultMaxWeekly bounds an open-ended weekly series to a bit over one
	// year of occurrences.
	DefaultMaxWeekly = 53
)

// Rules is the read side of recur.Store.
type Rules interface {
	Rule(itemID string) (recur.Rule, bool)
}

// Config controls expansion.
type Config struct {
	// MaxWeekly is the number of weekly iterations for series without an
	// UNTIL date. If zero, DefaultMaxWeekly is used.
	MaxWeekly int
}

// Expand returns base followed by every occurrence derived from it:
//
//   - For an all-day event spanning several days, one clone per additional
//     covered day (End is exclusive).
//   - For a recurring event whose item has a WEEKLY rule, one clone per week
//     until the rule's UNTIL day (inclusive) or MaxWeekly iterations, minus
//     the weeks that land on an exception day.
//
// Weekly clones are not span-expanded. MONTHLY and unrecognized rules produce
// no clones.
func Expand(base model.Event, rules Rules, cfg Config) []model.Event {
	if cfg.MaxWeekly <= 0 {
		cfg.MaxWeekly = DefaultMaxWeekly
	}

	out := []model.Event{base}
	out = append(out, expandAllDaySpan(base)...)

	if !base.Recurring || rules == nil {
		return out
	}
	rule, ok := rules.Rule(base.ItemID)
	if !ok || rule.Interval != recur.Weekly {
		// The store also keeps one-off exception instances of a series under
		// the series' item id; without a WEEKLY rule they stay single.
		return out
	}
	return append(out, expandWeekly(base, rule, cfg.MaxWeekly)...)
}

func expandAllDaySpan(base model.Event) []model.Event {
	if !base.AllDay {
		return nil
	}
	extra := civil.DaysBetween(base.Start, base.End) - 1
	if extra <= 0 {
		return nil
	}

	out := make([]model.Event, 0, extra)
	for i := 0; i < extra; i++ {
		clone := base
		clone.Start = base.Start.AddDays(i + 1)
		clone.End = base.End.AddDays(i + 1)
		out = append(out, clone)
	}
	return out
}

func expandWeekly(base model.Event, rule recur.Rule, maxWeekly int) []model.Event {
	var out []model.Event

	until, hasUntil := rule.Until.Get()
	var boundary civil.Instant
	if hasUntil {
		// Occurrences may start any time on the UNTIL day itself.
		boundary = until.AddDays(1)
	}

	clone := base
	for i := 0; ; i++ {
		clone.Start = clone.Start.AddWeeks(1)
		clone.End = clone.End.AddWeeks(1)

		if hasUntil {
			if clone.Start.Unix >= boundary.Unix {
				break
			}
		} else if i == maxWeekly {
			break
		}

		if rule.IsException(clone.Start) {
			continue
		}
		out = append(out, clone)
	}
	return out
}
