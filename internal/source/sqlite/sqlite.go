/*
Package sqlite reads calendar rows from a Thunderbird/Lightning "local.sqlite"
calendar database.

TABLES:

	cal_recurrence: item_id, icalString   one row per RRULE / EXDATE line
	cal_events:     cal_id, id, title, event_start, event_end, flags

event_start / event_end are microseconds since the epoch; only their first 10
characters (the seconds) are consumed downstream.

Columns are mapped by name, the same way for any query, so a schema change
that renames or adds a column surfaces as source.ErrUnknownColumn instead of
silently shifting fields.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	appLog "calexport/internal/log"
	"calexport/internal/source"
)

const (
	DefaultRulesQuery  = "select item_id, icalString from cal_recurrence;"
	DefaultEventsQuery = "select cal_id, id, title, event_start, event_end, flags from cal_events;"
)

// Queries selects the rows to read.
type Queries struct {
	Rules  string
	Events string
}

// Store implements source.Source on top of a SQLite database.
type Store struct {
	db      *sql.DB
	queries Queries
}

// Open opens the database at path read-only.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open calendar database %s: %w", path, err)
	}
	appLog.Info("calendar database opened", "path", path)
	return New(db, Queries{}), nil
}

// New wraps an already open database. Empty queries fall back to the
// defaults.
func New(db *sql.DB, q Queries) *Store {
	if q.Rules == "" {
		q.Rules = DefaultRulesQuery
	}
	if q.Events == "" {
		q.Events = DefaultEventsQuery
	}
	return &Store{db: db, queries: q}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Rules(ctx context.Context, fn func(source.RuleRow) error) error {
	return s.each(ctx, "cal_recurrence", s.queries.Rules, func(cols []string, vals []sql.NullString) error {
		var row source.RuleRow
		for i, name := range cols {
			switch name {
			case "item_id":
				row.ItemID = vals[i].String
			case "icalString":
				row.Text = vals[i].String
			default:
				return source.UnknownColumnError("cal_recurrence", name)
			}
		}
		return fn(row)
	})
}

func (s *Store) Events(ctx context.Context, fn func(source.EventRow) error) error {
	return s.each(ctx, "cal_events", s.queries.Events, func(cols []string, vals []sql.NullString) error {
		var row source.EventRow
		for i, name := range cols {
			v := vals[i].String
			switch name {
			case "cal_id":
				row.CalendarKey = v
			case "id":
				row.ItemID = v
			case "title":
				row.Title = v
			case "event_start":
				row.StartRaw = v
			case "event_end":
				row.EndRaw = v
			case "flags":
				flags, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil && v != "" {
					return fmt.Errorf("cal_events row %s: invalid flags %q: %w", row.ItemID, v, err)
				}
				row.Flags = flags
			default:
				return source.UnknownColumnError("cal_events", name)
			}
		}
		return fn(row)
	})
}

func (s *Store) each(ctx context.Context, table, query string, fn func([]string, []sql.NullString) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read %s columns: %w", table, err)
	}

	n := 0
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		if err := fn(cols, vals); err != nil {
			return err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate %s: %w", table, err)
	}

	appLog.Debug("calendar table read", "table", table, "rows", n)
	return nil
}
