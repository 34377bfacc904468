package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mix-go/xcli/flag"
	"github.com/mix-go/xutil/xenv"
	"go.uber.org/zap"

	"crontub/config"
	"crontub/di"
	"crontub/scheduler"
)

// loadConfig reads the config file and command line overrides and hands the
// result to di. Errors here happen before a logger exists.
func loadConfig() *config.Config {
	path := flag.Match("c", "config").String(xenv.Getenv("CRONTUB_CONFIG").String())
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crontub: %v\n", err)
		os.Exit(1)
	}
	if dirs := flag.Match("d", "dir").String(); dirs != "" {
		cfg.Dirs = strings.Split(dirs, ",")
	}
	if flag.Match("r", "recursive").Bool() {
		cfg.Recursive = true
	}
	di.Configure(cfg)
	return cfg
}

func intOption(logger *zap.SugaredLogger, def int, names ...string) int {
	v := flag.Match(names...).String()
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Fatalf("--%s must be a positive integer", names[len(names)-1])
	}
	return n
}

func daemonOptions(cfg *config.Config, loc *time.Location) scheduler.Options {
	return scheduler.Options{
		Dirs: cfg.Dirs,
		Watcher: scheduler.WatcherOptions{
			Recursive:   cfg.Recursive,
			Pattern:     cfg.Pattern,
			RequireExec: cfg.RequireExec,
		},
		Marker:      cfg.Marker,
		HeaderLines: cfg.HeaderLines,
		Policy:      scheduler.MalformedPolicy(cfg.MalformedPolicy),
		Interval:    cfg.Interval,
		Location:    loc,
		Workers:     cfg.Workers,
		Notify:      cfg.Notify,
	}
}

func runnerOptions(cfg *config.Config) scheduler.RunnerOptions {
	return scheduler.RunnerOptions{
		Timeout:      cfg.JobTimeout,
		KillGrace:    cfg.KillGrace,
		MaxJobs:      cfg.MaxJobs,
		AllowOverlap: cfg.AllowOverlap,
		OutputLimit:  cfg.OutputLimit,
		Env:          cfg.Env,
	}
}

// persistentHistory returns the configured mysql or redis store, or nil for
// the memory backend.
func persistentHistory(ctx context.Context, cfg *config.Config) (scheduler.HistoryStore, error) {
	switch cfg.History.Backend {
	case config.BackendMySQL:
		h := scheduler.NewGormHistory(di.Gorm())
		if err := h.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate executions table: %w", err)
		}
		return h, nil
	case config.BackendRedis:
		return scheduler.NewRedisHistory(di.GoRedis(), cfg.History.RedisKey, cfg.History.Capacity), nil
	default:
		return nil, nil
	}
}

func newHistory(ctx context.Context, cfg *config.Config) (scheduler.HistoryStore, error) {
	mem := scheduler.NewMemoryHistory(cfg.History.Capacity)
	mirror, err := persistentHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if mirror == nil {
		return mem, nil
	}
	return scheduler.NewTeeHistory(mem, mirror), nil
}
