package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Alias1177/StockPredictor/internal/reconcile"
	"github.com/google/subcommands"
)

type reconcileCmd struct{}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "resolve pending predictions against observed prices" }
func (*reconcileCmd) Usage() string {
	return `predictor reconcile

  Looks up the observed price for every pending prediction whose target date
  has arrived and marks it Correct or Incorrect. Predictions without data yet
  stay pending.
`
}

func (*reconcileCmd) SetFlags(*flag.FlagSet) {}

func (*reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	source, err := a.marketData()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if err := reconcileAndReport(ctx, reconcile.NewJob(source, a.ledger), a.notifier()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
