package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "portfolio")
	}

	flag.StringVar(&globals.configPath, "config", "", "Path to tracker.toml")
	flag.StringVar(&globals.dataDir, "data-dir", "", "Directory holding the database and config")
	flag.StringVar(&globals.logLevel, "log-level", "warn", "Log level written to stderr")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
