// Package app ties the configured source, the export pipeline and the month
// writer together, once or on a cron schedule.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"calexport/internal/config"
	"calexport/internal/export"
	appLog "calexport/internal/log"
	"calexport/internal/output"
	"calexport/internal/source"
	"calexport/internal/source/ics"
	"calexport/internal/source/sqlite"
)

// ErrNoSchedule is returned by Schedule when the config has no cron spec.
var ErrNoSchedule = errors.New("no schedule configured")

// Report describes one completed export.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Export   *export.Result
	Output   output.Result
}

// Runner performs exports for a fixed configuration. Exports are serialized:
// a scheduled tick that fires while a run is in progress waits for it.
type Runner struct {
	cfg     *config.Config
	loc     *time.Location
	fetcher *ics.Fetcher

	mu   sync.Mutex
	last *Report
}

// New validates cfg and returns a Runner for it.
func New(cfg *config.Config) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	cfg.Normalize()
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		loc:     loc,
		fetcher: ics.NewFetcher(cfg.CacheDir),
	}, nil
}

// Last returns the report of the most recent successful export, or nil.
func (r *Runner) Last() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) openSource(ctx context.Context) (source.Source, error) {
	if len(r.cfg.ICS) == 0 {
		return sqlite.Open(r.cfg.Database)
	}
	srcs := make([]ics.Source, 0, len(r.cfg.ICS))
	for _, c := range r.cfg.ICS {
		srcs = append(srcs, ics.Source{ID: c.ID, Location: c.URL})
	}
	return ics.Load(ctx, r.fetcher, srcs, r.loc)
}

// Export runs one complete export. Nothing is written when reading or
// expanding fails.
func (r *Runner) Export(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := &Report{RunID: uuid.NewString(), Started: time.Now()}
	appLog.Info("export started", "run_id", rep.RunID, "output_dir", r.cfg.OutputDir)

	src, err := r.openSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", rep.RunID, err)
	}
	defer src.Close()

	res, err := export.Run(ctx, src, export.Config{
		Location:  r.loc,
		MaxWeekly: r.cfg.MaxWeeklyOccurrences,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", rep.RunID, err)
	}
	for _, w := range res.Warnings {
		appLog.Warn("recurrence rule", "run_id", rep.RunID, "item_id", w.ItemID, "rule", w.Text, "reason", w.Reason)
	}
	rep.Export = res

	out, err := output.Write(r.cfg.OutputDir, res.Events)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", rep.RunID, err)
	}
	rep.Output = out
	rep.Duration = time.Since(rep.Started)

	appLog.Info("export finished",
		"run_id", rep.RunID,
		"months", len(out.Written),
		"skipped", len(out.Skipped),
		"lines", out.Lines,
		"duration", rep.Duration.String(),
	)
	r.last = rep
	return rep, nil
}

// Schedule runs Export on the configured cron spec until ctx is canceled.
// A failed run is logged and the next tick tries again.
func (r *Runner) Schedule(ctx context.Context) error {
	if r.cfg.Schedule == "" {
		return ErrNoSchedule
	}

	c := cron.New()
	_, err := c.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.Export(ctx); err != nil {
			appLog.Error("scheduled export failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", r.cfg.Schedule, err)
	}

	appLog.Info("scheduler started", "schedule", r.cfg.Schedule)
	c.Start()
	<-ctx.Done()

	// Wait for a running export to finish.
	<-c.Stop().Done()
	appLog.Info("scheduler stopped")
	return nil
}
