package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Alias1177/StockPredictor/internal/ledger"
	"github.com/google/uuid"
)

// BatchReport summarises one run over the tracked symbols.
type BatchReport struct {
	RunID      string
	StartedAt  time.Time
	Results    []CycleResult
	Recorded   int
	Duplicates int
	Skipped    int
	Failed     int
}

// Reporter receives the outcome of each cycle as it completes.
type Reporter interface {
	Report(res CycleResult)
}

// LineReporter prints one human readable line per symbol.
type LineReporter struct {
	Out             io.Writer
	DisplayCurrency string
}

func (r LineReporter) Report(res CycleResult) {
	switch {
	case errors.Is(res.Err, ErrInsufficientData), errors.Is(res.Err, ErrDataUnavailable):
		fmt.Fprintf(r.Out, "%-10s skipped: %v\n", res.Symbol, res.Err)
	case res.Err != nil:
		fmt.Fprintf(r.Out, "%-10s failed: %v\n", res.Symbol, res.Err)
	case res.Duplicate:
		fmt.Fprintf(r.Out, "%-10s already recorded at %s\n", res.Symbol, res.Record.CreatedAt.Format(time.RFC3339))
	default:
		note := ""
		if res.Fallback {
			note = " (fallback rate)"
		}
		fmt.Fprintf(r.Out, "%-10s predicted %s (%s %s%s) for %s\n",
			res.Symbol,
			res.Record.PredictedPrice.StringFixed(2),
			res.Record.PredictedPriceConverted.StringFixed(2),
			r.DisplayCurrency,
			note,
			res.Record.TargetDate.Format("2006-01-02"))
	}
}

// RunBatch runs one cycle per symbol in order. Every prediction in the batch shares the
// batch start time as created_at, so re-running an interrupted batch at the same instant
// is a no-op for symbols already recorded. Per-symbol failures are reported and the batch
// continues; ledger corruption and cancellation stop it.
func (o *Orchestrator) RunBatch(ctx context.Context, symbols []string, reporter Reporter) (BatchReport, error) {
	report := BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC().Truncate(time.Second),
	}
	logger := o.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().Int("symbols", len(symbols)).Msg("Starting forecast batch")

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("Batch cancelled")
			return report, err
		}

		res, err := o.runCycleAt(ctx, symbol, report.StartedAt)
		res.Err = err
		report.Results = append(report.Results, res)
		if reporter != nil {
			reporter.Report(res)
		}

		switch {
		case err == nil && res.Duplicate:
			report.Duplicates++
		case err == nil:
			report.Recorded++
		case errors.Is(err, ledger.ErrCorrupt):
			logger.Error().Err(err).Msg("Ledger corrupt, aborting batch")
			report.Failed++
			return report, err
		case errors.Is(err, ErrInsufficientData), errors.Is(err, ErrDataUnavailable):
			logger.Warn().Err(err).Str("symbol", symbol).Msg("Symbol skipped")
			report.Skipped++
		default:
			logger.Error().Err(err).Str("symbol", symbol).Msg("Forecast cycle failed")
			report.Failed++
		}
	}

	logger.Info().Int("recorded", report.Recorded).Int("duplicates", report.Duplicates).
		Int("skipped", report.Skipped).Int("failed", report.Failed).Msg("Forecast batch finished")
	return report, nil
}
