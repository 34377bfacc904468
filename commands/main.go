package commands

import (
	"github.com/mix-go/xcli"
)

var configOption = &xcli.Option{
	Names: []string{"c", "config"},
	Usage: "Config file (yaml, json or toml), default $CRONTUB_CONFIG",
}

var dirOptions = []*xcli.Option{
	{
		Names: []string{"d", "dir"},
		Usage: "\tComma separated directories to watch, overrides config",
	},
	{
		Names: []string{"r", "recursive"},
		Usage: "Descend into subdirectories",
	},
}

var Commands = []*xcli.Command{
	{
		Name:    "daemon",
		Short:   "\tRun the cron daemon",
		Options: append([]*xcli.Option{configOption}, dirOptions...),
		RunI:    &DaemonCommand{},
	},
	{
		Name:  "check",
		Short: "\tParse the schedule embedded in a file",
		Options: []*xcli.Option{
			configOption,
			{
				Names: []string{"f", "file"},
				Usage: "\tFile to check",
			},
			{
				Names: []string{"n", "next"},
				Usage: "\tNumber of upcoming runs to print, default 5",
			},
		},
		RunI: &CheckCommand{},
	},
	{
		Name:    "list",
		Short:   "\tScan the watched directories and list scheduled files",
		Options: append([]*xcli.Option{configOption}, dirOptions...),
		RunI:    &ListCommand{},
	},
	{
		Name:  "history",
		Short: "\tShow recent executions from the mysql or redis history",
		Options: []*xcli.Option{
			configOption,
			{
				Names: []string{"n", "limit"},
				Usage: "\tNumber of records, default 20",
			},
		},
		RunI: &HistoryCommand{},
	},
}
