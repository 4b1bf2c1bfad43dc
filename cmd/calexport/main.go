package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"calexport/internal/app"
	"calexport/internal/config"
	appLog "calexport/internal/log"
	"calexport/internal/web"
)

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	database   string
	outputDir  string
	serve      string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	if flags.database != "" {
		conf.Database = flags.database
		conf.ICS = nil
	}
	if flags.outputDir != "" {
		conf.OutputDir = flags.outputDir
	}
	if flags.serve != "" {
		conf.Listen = flags.serve
	}
	if flags.once {
		conf.Schedule = ""
		conf.Listen = ""
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("calexport starting", "version", "0.1.0")
	appLog.Info("effective config",
		"database", conf.Database,
		"ics_count", len(conf.ICS),
		"output_dir", conf.OutputDir,
		"timezone", conf.Timezone,
		"max_weekly_occurrences", conf.MaxWeeklyOccurrences,
		"schedule", conf.Schedule,
		"listen", conf.Listen,
	)

	runner, err := app.New(conf)
	if err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The first export always runs in the foreground so a fatal data error
	// is reported through the exit status.
	if _, err := runner.Export(ctx); err != nil {
		appLog.Error("export failed", err)
		os.Exit(1)
	}

	if conf.Schedule == "" && conf.Listen == "" {
		return
	}

	var wg sync.WaitGroup
	if conf.Schedule != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Schedule(ctx); err != nil {
				appLog.Error("scheduler failed", err)
				cancel()
			}
		}()
	}
	if conf.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := web.NewServer(conf.OutputDir, conf.CORSOrigins)
			if err := srv.ListenAndServe(ctx, conf.Listen); err != nil {
				appLog.Error("http server failed", err, "listen", conf.Listen)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	appLog.Info("shutting down")
	wg.Wait()
	appLog.Info("calexport exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./calexport.yaml", "Path to config file")
	flag.StringVar(&cfg.database, "db", "", "Calendar database to export (overrides config and ics sources)")
	flag.StringVar(&cfg.outputDir, "out", "", "Output directory (overrides config)")
	flag.StringVar(&cfg.serve, "serve", "", "Serve the output directory on this address (overrides config)")
	flag.BoolVar(&cfg.once, "once", false, "Export once and exit, ignoring schedule and listen")

	flag.Parse()

	return cfg
}
