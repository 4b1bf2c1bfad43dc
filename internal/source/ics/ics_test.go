package ics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calexport/internal/model"
	"calexport/internal/source"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calexport//test//EN
BEGIN:VEVENT
UID:s1
SUMMARY:standup
DTSTART:20200831T090000Z
DTEND:20200831T100000Z
RRULE:FREQ=WEEKLY;UNTIL=20200921T090000Z
EXDATE:20200914T090000Z
END:VEVENT
BEGIN:VEVENT
UID:s1
SUMMARY:standup (moved)
RECURRENCE-ID:20200907T090000Z
DTSTART:20200908T090000Z
DTEND:20200908T100000Z
END:VEVENT
BEGIN:VEVENT
UID:h1
SUMMARY:trip
DTSTART;VALUE=DATE:20200710
DTEND;VALUE=DATE:20200713
END:VEVENT
BEGIN:VEVENT
UID:lonely
SUMMARY:moved without series
RECURRENCE-ID:20200101T090000Z
DTSTART:20200102T090000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func micros(t time.Time) string {
	return fmt.Sprintf("%d000000", t.Unix())
}

func TestParse(t *testing.T) {
	src := Source{ID: "work", Location: "work.ics"}
	rows, err := Parse(src, crlf(sampleICS), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, []source.RuleRow{
		{ItemID: "s1", Text: "RRULE:FREQ=WEEKLY;UNTIL=20200921T090000Z"},
		{ItemID: "s1", Text: "EXDATE:20200914T090000Z"},
		{ItemID: "s1", Text: "EXDATE:20200907T090000Z"},
	}, rows.RuleRows)

	require.Len(t, rows.EventRows, 4)

	series := rows.EventRows[0]
	assert.Equal(t, "work", series.CalendarKey)
	assert.Equal(t, "standup", series.Title)
	assert.Equal(t, micros(time.Date(2020, 8, 31, 9, 0, 0, 0, time.UTC)), series.StartRaw)
	assert.Equal(t, micros(time.Date(2020, 8, 31, 10, 0, 0, 0, time.UTC)), series.EndRaw)
	assert.Equal(t, model.FlagRecurring, series.Flags)

	moved := rows.EventRows[1]
	assert.Equal(t, "s1", moved.ItemID)
	assert.Equal(t, 0, moved.Flags)

	trip := rows.EventRows[2]
	assert.Equal(t, model.FlagAllDay, trip.Flags)
	assert.Equal(t, micros(time.Date(2020, 7, 10, 0, 0, 0, 0, time.UTC)), trip.StartRaw)
	assert.Equal(t, micros(time.Date(2020, 7, 13, 0, 0, 0, 0, time.UTC)), trip.EndRaw)

	lonely := rows.EventRows[3]
	assert.Equal(t, lonely.StartRaw, lonely.EndRaw)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(Source{ID: "x"}, nil, time.UTC)
	assert.Error(t, err)
}

func TestRawTime_PadsSeconds(t *testing.T) {
	raw := rawTime(time.Unix(946684800, 0))
	assert.Equal(t, "0946684800", raw[:10])
	assert.Len(t, raw, 16)
}

func TestFetcher_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	require.NoError(t, os.WriteFile(path, crlf(sampleICS), 0o600))

	rows, err := Load(context.Background(), NewFetcher(t.TempDir()), []Source{{ID: "home", Location: path}}, time.UTC)
	require.NoError(t, err)
	assert.Len(t, rows.EventRows, 4)
	assert.Equal(t, "home", rows.EventRows[0].CalendarKey)
}

func TestFetcher_RemoteCaching(t *testing.T) {
	var hits, conditional atomic.Int32
	down := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if down.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write(crlf(sampleICS))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", Location: srv.URL + "/private.ics?token=secret"}
	ctx := context.Background()

	first, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(1), conditional.Load())

	down.Store(true)
	third, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetcher_RemoteFailureWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(t.TempDir()).Fetch(context.Background(), Source{ID: "r", Location: srv.URL})
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/path/private.ics?token=abcd"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
