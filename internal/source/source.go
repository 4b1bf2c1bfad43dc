package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownColumn is returned when a store row carries a column the reader
// does not know how to map. The store layout is not the one this tool was
// written against, so the export stops.
var ErrUnknownColumn = errors.New("unknown column")

// RuleRow is one recurrence row: a rule, or a modifier line (UNTIL, EXDATE)
// for the rule of the same item.
type RuleRow struct {
	ItemID string
	Text   string
}

// EventRow is one event row as stored. StartRaw / EndRaw carry epoch seconds
// in their first 10 characters followed by store specific data.
type EventRow struct {
	CalendarKey string
	ItemID      string
	Title       string
	StartRaw    string
	EndRaw      string
	Flags       int
}

// Source produces rule and event rows. Callbacks are invoked sequentially on
// the calling goroutine; a non-nil error from fn stops the iteration and is
// returned.
type Source interface {
	Rules(ctx context.Context, fn func(RuleRow) error) error
	Events(ctx context.Context, fn func(EventRow) error) error
	Close() error
}

// UnknownColumnError wraps ErrUnknownColumn with the offending table/column.
func UnknownColumnError(table, column string) error {
	return fmt.Errorf("%w %q in %s", ErrUnknownColumn, column, table)
}

// Rows is an in-memory Source, handy for tests and for sources that load
// everything up front.
type Rows struct {
	RuleRows  []RuleRow
	EventRows []EventRow
}

func (r *Rows) Rules(ctx context.Context, fn func(RuleRow) error) error {
	for _, row := range r.RuleRows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rows) Events(ctx context.Context, fn func(EventRow) error) error {
	for _, row := range r.EventRows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rows) Close() error { return nil }
