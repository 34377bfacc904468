package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"crontub/config"
	"crontub/di"
)

type HistoryCommand struct{}

func (t *HistoryCommand) Main() {
	cfg := loadConfig()
	logger := di.Zap()
	defer logger.Sync()

	if cfg.History.Backend == config.BackendMemory {
		logger.Fatalf("history.backend is memory; records live only inside the daemon (see status_addr)")
	}
	limit := intOption(logger, 20, "n", "limit")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := persistentHistory(ctx, cfg)
	if err != nil {
		logger.Fatalf("history backend %s: %v", cfg.History.Backend, err)
	}
	recs, err := store.Recent(ctx, limit)
	if err != nil {
		logger.Fatalf("load history: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPATH\tOUTCOME\tEXIT\tDURATION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Path, r.Outcome, r.ExitCode, r.Duration.Round(time.Millisecond))
	}
	tw.Flush()
}
