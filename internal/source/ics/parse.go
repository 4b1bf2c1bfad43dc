package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calexport/internal/log"
	"calexport/internal/model"
	"calexport/internal/source"
)

// Parse converts one ICS payload into store rows.
//
//   - Every VEVENT becomes one event row keyed by its UID. DTSTART/DTEND are
//     rendered like Thunderbird's microsecond columns.
//   - RRULE and EXDATE properties become rule rows; all RRULE rows come
//     before any EXDATE row so modifiers always find their rule.
//   - A VEVENT with RECURRENCE-ID is a moved instance: it is emitted as a
//     single occurrence and its original date is excluded from the series.
//
// loc anchors all-day dates, which carry no zone of their own.
func Parse(src Source, body []byte, loc *time.Location) (*source.Rows, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID)
		return nil, err
	}

	rows := &source.Rows{}
	hasRule := make(map[string]bool)
	var modifiers []source.RuleRow

	for _, ve := range cal.Events() {
		ev, rules, mods, perr := parseVEvent(src, ve, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent skipped", perr, "id", src.ID)
			continue
		}
		rows.EventRows = append(rows.EventRows, ev)
		rows.RuleRows = append(rows.RuleRows, rules...)
		if len(rules) > 0 {
			hasRule[ev.ItemID] = true
		}
		modifiers = append(modifiers, mods...)
	}

	for _, m := range modifiers {
		if !hasRule[m.ItemID] {
			appLog.Warn("ics exception dropped: series has no RRULE", "id", src.ID, "uid", m.ItemID, "rule", m.Text)
			continue
		}
		rows.RuleRows = append(rows.RuleRows, m)
	}

	appLog.Info("ics parse completed", "id", src.ID, "events", len(rows.EventRows), "rules", len(rows.RuleRows))
	return rows, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (source.EventRow, []source.RuleRow, []source.RuleRow, error) {
	var ev source.EventRow
	ev.CalendarKey = src.ID

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return ev, nil, nil, errors.New("missing UID")
	}
	ev.ItemID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, nil, nil, fmt.Errorf("uid %s: missing DTSTART", ev.ItemID)
	}
	allDay := isDateValue(dtStart)

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, nil, nil, fmt.Errorf("uid %s: %w", ev.ItemID, err)
	}
	if allDay {
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	}

	end, err := ve.GetEndAt()
	switch {
	case err != nil && allDay:
		end = start.AddDate(0, 0, 1)
	case err != nil:
		end = start
	case allDay:
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	}

	ev.StartRaw = rawTime(start)
	ev.EndRaw = rawTime(end)
	if allDay {
		ev.Flags |= model.FlagAllDay
	}

	var rules, mods []source.RuleRow

	ridProp := ve.GetProperty("RECURRENCE-ID")
	if ridProp != nil {
		// A moved instance stays a single occurrence, and the series must
		// not also produce it on its original day.
		mods = append(mods, source.RuleRow{ItemID: ev.ItemID, Text: "EXDATE:" + ridProp.Value})
		return ev, nil, mods, nil
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyRrule) {
		rules = append(rules, source.RuleRow{ItemID: ev.ItemID, Text: "RRULE:" + p.Value})
	}
	if len(rules) > 0 {
		ev.Flags |= model.FlagRecurring
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		if p.Value == "" {
			continue
		}
		text := "EXDATE"
		if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
			text += ";TZID=" + tzs[0]
		}
		mods = append(mods, source.RuleRow{ItemID: ev.ItemID, Text: text + ":" + p.Value})
	}

	return ev, rules, mods, nil
}

// isDateValue reports whether a DTSTART carries a DATE rather than DATE-TIME.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// rawTime renders t the way Thunderbird stores it: epoch microseconds, so
// the first 10 characters are the (zero padded) epoch seconds.
func rawTime(t time.Time) string {
	return fmt.Sprintf("%010d%06d", t.Unix(), 0)
}

// Load reads and parses every source, concatenating rule rows before event
// rows the way the store is read.
func Load(ctx context.Context, f *Fetcher, srcs []Source, loc *time.Location) (*source.Rows, error) {
	all := &source.Rows{}
	for _, src := range srcs {
		res, err := f.Fetch(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("ics source %s: %w", src.ID, err)
		}
		rows, err := Parse(src, res.Body, loc)
		if err != nil {
			return nil, fmt.Errorf("ics source %s: %w", src.ID, err)
		}
		all.RuleRows = append(all.RuleRows, rows.RuleRows...)
		all.EventRows = append(all.EventRows, rows.EventRows...)
	}
	return all, nil
}
