package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"crontub/di"
	"crontub/scheduler"
)

type ListCommand struct{}

func (t *ListCommand) Main() {
	cfg := loadConfig()
	logger := di.Zap()
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	loc, _ := cfg.Location()

	noop := scheduler.DispatcherFunc(func(context.Context, scheduler.DueSet) {})
	daemon, err := scheduler.NewDaemon(daemonOptions(cfg, loc), noop, logger)
	if err != nil {
		logger.Fatalf("create daemon: %v", err)
	}
	daemon.Reconcile()

	now := time.Now().In(loc)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSCHEDULE\tSTATUS\tNEXT RUN")
	for _, e := range daemon.Table().Snapshot() {
		status := "enabled"
		if !e.Enabled {
			status = "disabled"
		}
		if e.LastError != "" {
			status += " (stale: " + e.LastError + ")"
		}
		next := "-"
		if t, ok := e.Spec.Next(now); ok && e.Enabled {
			next = t.Format("2006-01-02 15:04 MST")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Path, e.Raw, status, next)
	}
	tw.Flush()
}
