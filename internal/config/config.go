package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS calendar used instead of the database.
type ICSConfig struct {
	// ID becomes the calendar key of the calendar's events.
	ID string `yaml:"id" json:"id"`
	// URL is a file path or http(s) URL.
	URL string `yaml:"url" json:"url"`
}

// Config is the top-level application configuration.
type Config struct {
	// Database is the Thunderbird/Lightning calendar database to export.
	Database string `yaml:"database" json:"database"`

	// ICS, if non-empty, replaces Database as the event source.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// OutputDir receives <year>/<month>.dat files.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Timezone is the IANA zone events are rendered in; "Local" uses the
	// system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// MaxWeeklyOccurrences caps weekly series that have no UNTIL date.
	MaxWeeklyOccurrences int `yaml:"max_weekly_occurrences" json:"max_weekly_occurrences"`

	// Schedule is a cron spec (e.g. "*/30 * * * *"). Empty means export once
	// and exit.
	Schedule string `yaml:"schedule" json:"schedule"`

	// Listen, if set, serves OutputDir over HTTP for the month viewer.
	Listen string `yaml:"listen" json:"listen"`

	// CORSOrigins are the origins allowed to fetch month files.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// CacheDir holds HTTP caches for remote ICS sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database:             "./local.sqlite",
		ICS:                  []ICSConfig{},
		OutputDir:            "./data",
		Timezone:             "Local",
		MaxWeeklyOccurrences: 53,
		CORSOrigins:          []string{"*"},
		CacheDir:             "./var/ics-cache",
		LogLevel:             "info",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics-%d", i)
		}
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.MaxWeeklyOccurrences <= 0 {
		c.MaxWeeklyOccurrences = def.MaxWeeklyOccurrences
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = def.CORSOrigins
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there (0600)
//     and returned.
//   - Otherwise the YAML is unmarshalled and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calexport-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
