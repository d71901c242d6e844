package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&runCmd{}, "")
	commander.Register(&reconcileCmd{}, "")
	commander.Register(&viewCmd{}, "")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := execute(ctx, commander)
	stop()
	os.Exit(int(status))
}

// execute runs the named subcommand, or run when none is given.
func execute(ctx context.Context, commander *subcommands.Commander) subcommands.ExitStatus {
	if flag.NArg() > 0 {
		return commander.Execute(ctx)
	}
	cmd := &runCmd{}
	fs := flag.NewFlagSet(cmd.Name(), flag.ExitOnError)
	cmd.SetFlags(fs)
	return cmd.Execute(ctx, fs)
}
