package recur

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"calexport/internal/civil"
	appLog "calexport/internal/log"
)

const (
	markerWeekly  = "WEEKLY"
	markerMonthly = "MONTHLY"
	markerExdate  = "EXDATE"
	markerUntil   = "UNTIL"
	markerRRule   = "RRULE:"
)

// Store accumulates rules keyed by store item identifier.
//
// Rows are fed with Add in store order. Once every row has been added the
// store is finalized and becomes read-only; expansion only ever reads it.
type Store struct {
	loc       *time.Location
	rules     map[string]Rule
	warnings  []Warning
	finalized bool
}

// NewStore returns an empty store. Dates found in rule text are interpreted
// as local midnight in loc (time.Local if nil).
func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		loc:   loc,
		rules: make(map[string]Rule),
	}
}

// Add ingests one rule row.
//
//   - WEEKLY / MONTHLY records the interval for itemID.
//   - Otherwise EXDATE appends exception days to the existing rule.
//   - Otherwise the interval is unrecognized: a warning is recorded and the
//     item gets a rule that never expands.
//   - UNTIL, wherever present, sets the last valid day of the existing rule.
//
// ErrRuleNotFound and *ParseError are fatal for the export.
func (s *Store) Add(itemID, text string) error {
	if s.finalized {
		return ErrFinalized
	}

	switch {
	case strings.Contains(text, markerWeekly):
		s.setInterval(itemID, Weekly)
	case strings.Contains(text, markerMonthly):
		s.setInterval(itemID, Monthly)
	case strings.Contains(text, markerExdate):
		rule, ok := s.rules[itemID]
		if !ok {
			return fmt.Errorf("%w: EXDATE for item %s", ErrRuleNotFound, itemID)
		}
		days, err := s.parseExdates(itemID, text)
		if err != nil {
			return err
		}
		rule.Exceptions = append(rule.Exceptions, days...)
		s.rules[itemID] = rule
	default:
		s.warn(itemID, text, "recurrence interval not understood; no expansion")
		if _, ok := s.rules[itemID]; !ok {
			s.rules[itemID] = Rule{Interval: Unrecognized}
		}
	}

	if strings.Contains(text, markerUntil) {
		rule, ok := s.rules[itemID]
		if !ok {
			return fmt.Errorf("%w: UNTIL for item %s", ErrRuleNotFound, itemID)
		}
		until, err := s.parseUntil(itemID, text)
		if err != nil {
			return err
		}
		rule.Until = mo.Some(until)
		s.rules[itemID] = rule
	}

	s.inspect(itemID, text)
	return nil
}

func (s *Store) setInterval(itemID string, iv Interval) {
	rule := s.rules[itemID]
	rule.Interval = iv
	s.rules[itemID] = rule
}

// Finalize marks the end of rule ingestion.
func (s *Store) Finalize() {
	s.finalized = true
}

// Finalized reports whether Finalize has been called.
func (s *Store) Finalized() bool {
	return s.finalized
}

// Rule returns the rule recorded for itemID.
func (s *Store) Rule(itemID string) (Rule, bool) {
	r, ok := s.rules[itemID]
	return r, ok
}

// Len returns the number of items with a rule.
func (s *Store) Len() int {
	return len(s.rules)
}

// Warnings returns the non-fatal findings collected so far.
func (s *Store) Warnings() []Warning {
	return s.warnings
}

func (s *Store) warn(itemID, text, reason string) {
	s.warnings = append(s.warnings, Warning{ItemID: itemID, Text: text, Reason: reason})
	appLog.Warn("recurrence rule: "+reason, "item_id", itemID, "rule", text)
}

// parseUntil reads the YYYYMMDD stamp right after "UNTIL=".
func (s *Store) parseUntil(itemID, text string) (civil.Instant, error) {
	idx := strings.Index(text, markerUntil+"=")
	if idx < 0 {
		return civil.Instant{}, &ParseError{ItemID: itemID, Marker: markerUntil, Text: text, Reason: "missing '='"}
	}
	return s.parseStamp(itemID, markerUntil, text, text[idx+len(markerUntil)+1:])
}

// parseExdates reads every value of an EXDATE property, e.g.
// "EXDATE;TZID=Asia/Tokyo:20200907T090000,20200914T090000".
func (s *Store) parseExdates(itemID, text string) ([]civil.Instant, error) {
	idx := strings.Index(text, markerExdate)
	rest := text[idx+len(markerExdate):]

	switch {
	case strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, ":"):
		rest = rest[1:]
	case strings.HasPrefix(rest, ";"):
		colon := strings.IndexByte(rest, ':')
		if colon < 0 {
			return nil, &ParseError{ItemID: itemID, Marker: markerExdate, Text: text, Reason: "missing value separator"}
		}
		rest = rest[colon+1:]
	default:
		return nil, &ParseError{ItemID: itemID, Marker: markerExdate, Text: text, Reason: "missing value"}
	}

	if nl := strings.IndexAny(rest, "\r\n"); nl >= 0 {
		rest = rest[:nl]
	}

	var days []civil.Instant
	for _, v := range strings.Split(rest, ",") {
		day, err := s.parseStamp(itemID, markerExdate, text, strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func (s *Store) parseStamp(itemID, marker, text, v string) (civil.Instant, error) {
	perr := func(reason string) error {
		return &ParseError{ItemID: itemID, Marker: marker, Text: text, Reason: reason}
	}
	if len(v) < 8 {
		return civil.Instant{}, perr("fewer than 8 digits")
	}
	n := [3]int{}
	widths := [3]int{4, 2, 2}
	pos := 0
	for f, w := range widths {
		for _, c := range v[pos : pos+w] {
			if c < '0' || c > '9' {
				return civil.Instant{}, perr(fmt.Sprintf("non-digit %q", c))
			}
			n[f] = n[f]*10 + int(c-'0')
		}
		pos += w
	}

	year, month, day := n[0], time.Month(n[1]), n[2]
	if month < time.January || month > time.December {
		return civil.Instant{}, perr(fmt.Sprintf("month %d out of range", month))
	}
	if day < 1 || day > civil.DaysInMonth(year, month) {
		return civil.Instant{}, perr(fmt.Sprintf("day %d out of range", day))
	}
	return civil.Date(year, month, day, s.loc), nil
}

var freqNames = map[rrule.Frequency]string{
	rrule.YEARLY:   "YEARLY",
	rrule.MONTHLY:  "MONTHLY",
	rrule.WEEKLY:   "WEEKLY",
	rrule.DAILY:    "DAILY",
	rrule.HOURLY:   "HOURLY",
	rrule.MINUTELY: "MINUTELY",
	rrule.SECONDLY: "SECONDLY",
}

// inspect runs the RRULE part of text through a full RFC 5545 parser
// and records the facets that the weekly expansion does not honor.
func (s *Store) inspect(itemID, text string) {
	idx := strings.Index(text, markerRRule)
	if idx < 0 {
		return
	}
	line := text[idx+len(markerRRule):]
	if nl := strings.IndexAny(line, "\r\n"); nl >= 0 {
		line = line[:nl]
	}

	opt, err := rrule.StrToROption(line)
	if err != nil {
		s.warn(itemID, text, "rule does not parse as RFC 5545: "+err.Error())
		return
	}

	switch opt.Freq {
	case rrule.WEEKLY:
		if len(opt.Byweekday) > 1 {
			s.warn(itemID, text, "BYDAY lists several weekdays; only the first occurrence's weekday repeats")
		}
	case rrule.MONTHLY:
		s.warn(itemID, text, "FREQ=MONTHLY is recognized but not expanded")
	default:
		s.warn(itemID, text, "FREQ="+freqNames[opt.Freq]+" is not expanded")
	}
	if opt.Count > 0 {
		s.warn(itemID, text, fmt.Sprintf("COUNT=%d is not honored", opt.Count))
	}
	if opt.Interval > 1 {
		s.warn(itemID, text, fmt.Sprintf("INTERVAL=%d is not honored", opt.Interval))
	}
}
