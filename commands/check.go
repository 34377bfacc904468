package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mix-go/xcli/flag"

	"crontub/di"
	"crontub/scheduler"
)

type CheckCommand struct{}

func (t *CheckCommand) Main() {
	cfg := loadConfig()
	logger := di.Zap()
	defer logger.Sync()

	path := flag.Match("f", "file").String()
	if path == "" {
		logger.Fatalf("--file is required")
	}
	count := intOption(logger, 5, "n", "next")
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Fatalf("open %s: %v", path, err)
	}
	content, err := io.ReadAll(io.LimitReader(f, 64*1024))
	f.Close()
	if err != nil {
		logger.Fatalf("read %s: %v", path, err)
	}

	spec, raw, err := scheduler.ExtractSchedule(content, cfg.Marker, cfg.HeaderLines)
	if err != nil {
		fmt.Printf("%s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("%s\n  schedule:  %s\n  canonical: %s\n", path, raw, spec.String())
	next := time.Now().In(loc)
	for i := 0; i < count; i++ {
		var ok bool
		if next, ok = spec.Next(next); !ok {
			fmt.Println("  no further runs")
			break
		}
		fmt.Printf("  next:      %s\n", next.Format("2006-01-02 15:04 MST Mon"))
	}
}
