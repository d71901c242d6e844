// Package reconcile resolves pending predictions against observed prices.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Alias1177/StockPredictor/internal/ledger"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// sessionSearch bounds how far past the target date the job looks for the next trading
// session when the target date itself has no samples.
const sessionSearch = 7 * 24 * time.Hour

// Report counts what a reconciliation run did.
type Report struct {
	Checked      int
	Resolved     []models.PredictionRecord
	NotYetDue    int
	AwaitingData int
	SourceErrors int
	LedgerErrors []error
}

// Job resolves Pending ledger records once their target date has an observed price.
type Job struct {
	source models.CandleSource
	ledger ledger.Ledger
	now    func() time.Time
	logger zerolog.Logger
}

// NewJob creates a reconciliation job.
func NewJob(source models.CandleSource, l ledger.Ledger) *Job {
	return &Job{
		source: source,
		ledger: l,
		now:    time.Now,
		logger: log.With().Str("component", "reconcile").Logger(),
	}
}

// WithClock replaces the wall clock.
func (j *Job) WithClock(now func() time.Time) *Job {
	j.now = now
	return j
}

// Run walks the pending records. For each record whose target date has arrived it takes the
// first calendar day at or after target_date that has intraday samples up to now, and
// resolves the record with the latest close of that day. Records without a sample stay
// Pending. Data source errors are counted per record; only ledger corruption and
// cancellation end the run early.
func (j *Job) Run(ctx context.Context) (Report, error) {
	var report Report
	now := j.now().UTC()

	pending, err := j.ledger.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("listing pending predictions: %w", err)
	}

	for rec := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		logger := j.logger.With().Str("symbol", rec.Symbol).Time("created_at", rec.CreatedAt).Logger()

		if rec.TargetDate.After(now) {
			report.NotYetDue++
			continue
		}

		actual, ok, err := j.observedPrice(ctx, rec, now)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Error().Err(err).Msg("Failed to fetch observed price")
			report.SourceErrors++
			continue
		}
		if !ok {
			logger.Debug().Msg("No observed price yet")
			report.AwaitingData++
			continue
		}

		resolved, err := j.ledger.Resolve(ctx, rec.Key(), actual, now)
		switch {
		case err == nil:
			logger.Info().
				Str("predicted", resolved.PredictedPrice.StringFixed(2)).
				Str("actual", resolved.ActualPrice.Decimal.StringFixed(2)).
				Str("outcome", string(resolved.Outcome)).
				Msg("Prediction resolved")
			report.Resolved = append(report.Resolved, resolved)
		case errors.Is(err, ledger.ErrCorrupt):
			return report, err
		case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrAlreadyResolved):
			logger.Warn().Err(err).Msg("Ledger rejected resolution")
			report.LedgerErrors = append(report.LedgerErrors, err)
		default:
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Error().Err(err).Msg("Failed to resolve prediction")
			report.LedgerErrors = append(report.LedgerErrors, err)
		}
	}

	j.logger.Info().Int("checked", report.Checked).Int("resolved", len(report.Resolved)).
		Int("not_yet_due", report.NotYetDue).Int("awaiting_data", report.AwaitingData).
		Int("source_errors", report.SourceErrors).Msg("Reconciliation finished")
	return report, nil
}

// observedPrice returns the close of the latest sample on the first day at or after the
// target date that has data. A target date that falls on an exchange holiday resolves
// against the next session.
func (j *Job) observedPrice(ctx context.Context, rec models.PredictionRecord, now time.Time) (decimal.Decimal, bool, error) {
	start := rec.TargetDate
	cutoff := start.Add(sessionSearch)
	if now.Before(cutoff) {
		cutoff = now
	}

	candles, err := j.source.IntradayCandles(ctx, rec.Symbol, start, cutoff)
	if errors.Is(err, models.ErrNoData) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	var (
		latest  models.Candle
		session time.Time
		found   bool
	)
	for _, c := range candles {
		if c.Timestamp.Before(start) || c.Timestamp.After(cutoff) {
			continue
		}
		day := c.Timestamp.UTC().Truncate(24 * time.Hour)
		switch {
		case !found || day.Before(session):
			latest, session, found = c, day, true
		case day.Equal(session) && c.Timestamp.After(latest.Timestamp):
			latest = c
		}
	}
	if !found {
		return decimal.Zero, false, nil
	}
	return decimal.NewFromFloat(latest.Close), true, nil
}

// Summary is a one-line description of the report.
func (r Report) Summary() string {
	var correct int
	for _, rec := range r.Resolved {
		if rec.Outcome == models.OutcomeCorrect {
			correct++
		}
	}
	return fmt.Sprintf("checked %d, resolved %d (%d correct), waiting %d, errors %d",
		r.Checked, len(r.Resolved), correct, r.NotYetDue+r.AwaitingData, r.SourceErrors+len(r.LedgerErrors))
}
