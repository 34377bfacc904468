package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crontub/di"
	"crontub/scheduler"
	"crontub/web"
)

type DaemonCommand struct{}

func (t *DaemonCommand) Main() {
	cfg := loadConfig()
	logger := di.Zap()
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, err := newHistory(ctx, cfg)
	if err != nil {
		logger.Fatalf("history backend %s: %v", cfg.History.Backend, err)
	}
	runner := scheduler.NewRunner(runnerOptions(cfg), history, logger)
	daemon, err := scheduler.NewDaemon(daemonOptions(cfg, loc), runner, logger)
	if err != nil {
		logger.Fatalf("create daemon: %v", err)
	}

	if cfg.StatusAddr != "" {
		srv := web.NewStatusServer(cfg.StatusAddr, &statusSource{daemon: daemon, runner: runner}, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Errorf("status server exited: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if err := daemon.Run(ctx); err != nil {
		logger.Errorf("daemon exited: %v", err)
	}
	logger.Infow("shutdown complete", "running_jobs", runner.Running())
}

type statusSource struct {
	daemon *scheduler.Daemon
	runner *scheduler.Runner
}

func (s *statusSource) Snapshot() []scheduler.FileEntry {
	return s.daemon.Table().Snapshot()
}

func (s *statusSource) Jobs() []scheduler.RunningJob {
	return s.runner.Jobs()
}

func (s *statusSource) Recent(ctx context.Context, limit int) ([]scheduler.ExecutionRecord, error) {
	return s.runner.History().Recent(ctx, limit)
}

func (s *statusSource) State() scheduler.State {
	return s.daemon.Scheduler().State()
}
