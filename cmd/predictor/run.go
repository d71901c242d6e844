package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Alias1177/StockPredictor/internal/analyze"
	"github.com/Alias1177/StockPredictor/internal/notify"
	"github.com/Alias1177/StockPredictor/internal/reconcile"
	"github.com/Alias1177/StockPredictor/internal/symbols"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"
)

type runCmd struct {
	retrain       bool
	skipReconcile bool
	symbols       string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "reconcile due predictions, then forecast every tracked symbol" }
func (*runCmd) Usage() string {
	return `predictor run [-retrain] [-skip-reconcile] [-symbols AAPL,MSFT]

  Resolves pending predictions whose target date has passed, then fetches
  history for each tracked symbol, trains or reuses its model, and appends
  one prediction per symbol to the ledger. This is the default command.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.retrain, "retrain", false, "Ignore persisted models and train from scratch.")
	f.BoolVar(&c.skipReconcile, "skip-reconcile", false, "Do not resolve pending predictions first.")
	f.StringVar(&c.symbols, "symbols", "", "Comma separated symbols. Overrides SYMBOLS and SYMBOLS_FILE.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	notifier := a.notifier()

	if !c.skipReconcile {
		if err := reconcileAndReport(ctx, reconcile.NewJob(source, a.ledger), notifier); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	}

	override := a.cfg.Symbols
	if c.symbols != "" {
		override = strings.Split(c.symbols, ",")
	}
	list, err := symbols.Load(a.cfg.SymbolsFile, override)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	conv := a.converter(ctx)
	orch := a.orchestrator(source, conv, c.retrain)
	report, err := orch.RunBatch(ctx, list, analyze.LineReporter{Out: os.Stdout, DisplayCurrency: conv.To()})

	var recorded []models.PredictionRecord
	for _, res := range report.Results {
		if res.Err == nil && !res.Duplicate {
			recorded = append(recorded, res.Record)
		}
	}
	ev := notify.Event{
		Kind:            notify.KindPrediction,
		RunID:           report.RunID,
		Summary:         fmt.Sprintf("%d recorded, %d skipped, %d failed", report.Recorded, report.Skipped, report.Failed),
		DisplayCurrency: conv.To(),
		Records:         recorded,
	}
	if nerr := notifier.Notify(context.WithoutCancel(ctx), ev); nerr != nil {
		log.Warn().Err(nerr).Msg("Failed to deliver notifications")
	}

	fmt.Printf("\n%d recorded, %d already recorded, %d skipped, %d failed\n",
		report.Recorded, report.Duplicates, report.Skipped, report.Failed)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// reconcileAndReport runs one reconciliation pass and prints a line per resolved record.
func reconcileAndReport(ctx context.Context, job *reconcile.Job, notifier notify.Notifier) error {
	report, err := job.Run(ctx)
	for _, rec := range report.Resolved {
		fmt.Printf("%-10s %s predicted %s actual %s: %s\n",
			rec.Symbol, rec.TargetDate.Format(models.DateLayout),
			rec.PredictedPrice.StringFixed(2), rec.ActualPrice.Decimal.StringFixed(2), rec.Outcome)
	}
	fmt.Println(report.Summary())

	if nerr := notifier.Notify(context.WithoutCancel(ctx), notify.Event{
		Kind:    notify.KindResolution,
		Summary: report.Summary(),
		Records: report.Resolved,
	}); nerr != nil {
		log.Warn().Err(nerr).Msg("Failed to deliver notifications")
	}

	if err != nil {
		return fmt.Errorf("reconciliation: %w", err)
	}
	return nil
}
