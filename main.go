package main

import (
	"github.com/mix-go/xcli"
	"github.com/mix-go/xutil/xenv"

	"crontub/commands"
	_ "crontub/config/dotenv"
)

func main() {
	xcli.SetName("crontub").
		SetVersion("0.2.0").
		SetDebug(xenv.Getenv("APP_DEBUG").Bool(false))
	xcli.AddCommand(commands.Commands...).Run()
}
