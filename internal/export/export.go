package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"calexport/internal/civil"
	"calexport/internal/expand"
	appLog "calexport/internal/log"
	"calexport/internal/model"
	"calexport/internal/recur"
	"calexport/internal/source"
)

// Config controls one export run.
type Config struct {
	// Location is the zone events are rendered in. If nil, time.Local is used.
	Location *time.Location

	// MaxWeekly caps open-ended weekly series. If zero, the expander default
	// is used.
	MaxWeekly int
}

// Result is the outcome of Run.
type Result struct {
	// Events holds every occurrence in output order.
	Events []model.Event

	Calendars *model.CalendarIDs
	Rules     int
	Rows      int
	Warnings  []recur.Warning
}

// RowError reports an event row whose fields cannot be decoded.
type RowError struct {
	ItemID string
	Field  string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("event row %s: invalid %s %q: %v", e.ItemID, e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Run reads all rule rows, then all event rows from src, and returns the
// sorted occurrence list. Rule ingestion is complete before the first event
// is expanded. Any error aborts the run; nothing is returned to write.
func Run(ctx context.Context, src source.Source, cfg Config) (*Result, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	rules := recur.NewStore(cfg.Location)
	err := src.Rules(ctx, func(row source.RuleRow) error {
		if err := rules.Add(row.ItemID, row.Text); err != nil {
			return fmt.Errorf("rule row %q: %w", row.Text, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read recurrence rules: %w", err)
	}
	rules.Finalize()

	res := &Result{
		Calendars: model.NewCalendarIDs(),
		Rules:     rules.Len(),
		Warnings:  rules.Warnings(),
	}
	expandCfg := expand.Config{MaxWeekly: cfg.MaxWeekly}

	// Rows are delivered one at a time on this goroutine, so the calendar
	// table and the event slice need no locking.
	err = src.Events(ctx, func(row source.EventRow) error {
		ev, err := NewEvent(row, res.Calendars, cfg.Location)
		if err != nil {
			return err
		}
		res.Rows++
		res.Events = append(res.Events, expand.Expand(ev, rules, expandCfg)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	expand.Sort(res.Events)

	appLog.Info("export expanded",
		"rules", res.Rules,
		"rows", res.Rows,
		"occurrences", len(res.Events),
		"calendars", res.Calendars.Len(),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// NewEvent decodes a store row into a base event, assigning its calendar a
// dense identifier.
func NewEvent(row source.EventRow, ids *model.CalendarIDs, loc *time.Location) (model.Event, error) {
	start, err := parseRaw(row.ItemID, "event_start", row.StartRaw)
	if err != nil {
		return model.Event{}, err
	}
	end, err := parseRaw(row.ItemID, "event_end", row.EndRaw)
	if err != nil {
		return model.Event{}, err
	}
	if end < start {
		appLog.Warn("event ends before it starts; end clamped to start", "item_id", row.ItemID, "title", row.Title)
		end = start
	}

	return model.Event{
		Title:      row.Title,
		Start:      civil.FromUnix(start, loc),
		End:        civil.FromUnix(end, loc),
		AllDay:     row.Flags&model.FlagAllDay != 0,
		Recurring:  row.Flags&model.FlagRecurring != 0,
		ItemID:     row.ItemID,
		CalendarID: ids.ID(row.CalendarKey),
	}, nil
}

// parseRaw reads the epoch seconds held in the first 10 characters of a
// stored time; the rest is store specific and ignored.
func parseRaw(itemID, field, raw string) (int64, error) {
	v := strings.TrimSpace(raw)
	if len(v) > 10 {
		v = v[:10]
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &RowError{ItemID: itemID, Field: field, Value: raw, Err: err}
	}
	return sec, nil
}
