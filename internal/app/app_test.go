package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calexport/internal/config"
)

const calendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calexport//test//EN
BEGIN:VEVENT
UID:w1
SUMMARY:review
DTSTART:20200831T090000Z
DTEND:20200831T100000Z
RRULE:FREQ=WEEKLY;UNTIL=20200914T090000Z
END:VEVENT
END:VCALENDAR
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	icsPath := filepath.Join(dir, "work.ics")
	require.NoError(t, os.WriteFile(icsPath, []byte(strings.ReplaceAll(calendar, "\n", "\r\n")), 0o600))

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.OutputDir = filepath.Join(dir, "data")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.ICS = []config.ICSConfig{{ID: "work", URL: icsPath}}
	return cfg
}

func TestExport_ICS(t *testing.T) {
	cfg := testConfig(t)
	r, err := New(cfg)
	require.NoError(t, err)
	assert.Nil(t, r.Last())

	rep, err := r.Export(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 3, rep.Output.Lines)
	assert.Same(t, rep, r.Last())

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "2020", "9.dat"))
	require.NoError(t, err)
	assert.Equal(t, "09/07 09:00,0,0,review\n09/14 09:00,0,0,review\n", string(data))

	data, err = os.ReadFile(filepath.Join(cfg.OutputDir, "2020", "8.dat"))
	require.NoError(t, err)
	assert.Equal(t, "08/31 09:00,0,0,review\n", string(data))
}

func TestExport_FatalWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.ICS = nil
	cfg.Database = filepath.Join(t.TempDir(), "missing.sqlite")

	r, err := New(cfg)
	require.NoError(t, err)

	_, err = r.Export(context.Background())
	assert.Error(t, err)
	assert.Nil(t, r.Last())

	_, statErr := os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNew_InvalidTimezone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "Nowhere/Else"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestSchedule(t *testing.T) {
	t.Run("no schedule", func(t *testing.T) {
		r, err := New(testConfig(t))
		require.NoError(t, err)
		assert.ErrorIs(t, r.Schedule(context.Background()), ErrNoSchedule)
	})

	t.Run("invalid cron expression", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Schedule = "every now and then"
		r, err := New(cfg)
		require.NoError(t, err)
		assert.Error(t, r.Schedule(context.Background()))
	})

	t.Run("stops on cancel", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Schedule = "@hourly"
		r, err := New(cfg)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Schedule(ctx) }()
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	})
}
