package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "calexport.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calexport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: UTC
output_dir: /tmp/out
ics:
  - url: ./home.ics
  - id: work
    url: https://example.com/work.ics
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, 53, cfg.MaxWeeklyOccurrences)
	assert.Equal(t, "./local.sqlite", cfg.Database)
	require.Len(t, cfg.ICS, 2)
	assert.Equal(t, "ics-0", cfg.ICS[0].ID)
	assert.Equal(t, "work", cfg.ICS[1].ID)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calexport.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: Mars/Olympus\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calexport.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schedule: [unclosed\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLocation_Local(t *testing.T) {
	cfg := DefaultConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}
