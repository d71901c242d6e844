package analyze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Alias1177/StockPredictor/internal/calculate"
	"github.com/Alias1177/StockPredictor/internal/currency"
	"github.com/Alias1177/StockPredictor/internal/forecast"
	"github.com/Alias1177/StockPredictor/internal/ledger"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrDataUnavailable  = errors.New("market data unavailable")
	ErrInsufficientData = errors.New("insufficient data")
)

// Converter supplies the source to display currency rate snapshotted onto each record.
type Converter interface {
	Quote(ctx context.Context) currency.Quote
}

// Options configures a forecast cycle.
type Options struct {
	LookbackDays int
	MinLookback  int
	Horizon      int
	Model        string
	ModelParams  forecast.Params
	Features     calculate.FeatureParams
	// ModelDir enables model persistence when set.
	ModelDir     string
	RetrainEvery time.Duration
	ForceRetrain bool
	// AlwaysTrading reports symbols that trade on weekends.
	AlwaysTrading func(symbol string) bool
}

// CycleResult describes what one forecast cycle did.
type CycleResult struct {
	Symbol      string
	Record      models.PredictionRecord
	Duplicate   bool
	Fallback    bool
	ModelReused bool
	Train       forecast.TrainReport
	Err         error
}

// Orchestrator runs forecast cycles: fetch, featurize, train or load, predict, convert, append.
type Orchestrator struct {
	source    models.CandleSource
	ledger    ledger.Ledger
	converter Converter
	opts      Options
	now       func() time.Time
	logger    zerolog.Logger
}

// NewOrchestrator wires an orchestrator. Zero option values take the defaults.
func NewOrchestrator(source models.CandleSource, l ledger.Ledger, converter Converter, opts Options) *Orchestrator {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 730
	}
	if opts.MinLookback <= 0 {
		opts.MinLookback = 60
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 1
	}
	if opts.Model == "" {
		opts.Model = forecast.Sequence
	}
	if opts.Features == (calculate.FeatureParams{}) {
		opts.Features = calculate.DefaultFeatureParams()
	}
	if opts.AlwaysTrading == nil {
		opts.AlwaysTrading = func(string) bool { return false }
	}
	return &Orchestrator{
		source:    source,
		ledger:    l,
		converter: converter,
		opts:      opts,
		now:       time.Now,
		logger:    log.With().Str("component", "orchestrator").Logger(),
	}
}

// WithClock replaces the wall clock; used to pin created_at.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// RunCycle forecasts one symbol and appends the prediction stamped with the current time.
func (o *Orchestrator) RunCycle(ctx context.Context, symbol string) (CycleResult, error) {
	return o.runCycleAt(ctx, symbol, o.now())
}

func (o *Orchestrator) runCycleAt(ctx context.Context, symbol string, at time.Time) (CycleResult, error) {
	res := CycleResult{Symbol: symbol}
	logger := o.logger.With().Str("symbol", symbol).Logger()
	at = at.UTC().Truncate(time.Second)

	candles, err := o.source.DailyCandles(ctx, symbol, at.AddDate(0, 0, -o.opts.LookbackDays), at)
	if err != nil {
		if errors.Is(err, models.ErrNoData) {
			return res, fmt.Errorf("%s: %w", symbol, ErrDataUnavailable)
		}
		return res, fmt.Errorf("%s: fetching history: %w", symbol, err)
	}
	if len(candles) == 0 {
		return res, fmt.Errorf("%s: %w", symbol, ErrDataUnavailable)
	}

	rows := calculate.BuildFeatures(candles, o.opts.Features)
	if len(rows) < o.opts.MinLookback {
		return res, fmt.Errorf("%s: %d clean rows, need %d: %w", symbol, len(rows), o.opts.MinLookback, ErrInsufficientData)
	}
	logger.Debug().Int("candles", len(candles)).Int("rows", len(rows)).Msg("Features built")

	model, reused, report, err := o.model(symbol, rows, at)
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientData) {
			return res, fmt.Errorf("%s: %w: %w", symbol, ErrInsufficientData, err)
		}
		return res, fmt.Errorf("%s: training: %w", symbol, err)
	}
	res.ModelReused, res.Train = reused, report

	predicted, err := model.Predict(rows)
	if err != nil {
		return res, fmt.Errorf("%s: predicting: %w", symbol, err)
	}

	quote := o.converter.Quote(ctx)
	res.Fallback = quote.Fallback

	lastObserved := rows[len(rows)-1].Date
	target := models.TargetDate(lastObserved, o.opts.Horizon, o.opts.AlwaysTrading(symbol))

	rec := models.NewPrediction(symbol, at, target, model.Name(), predicted, quote.Rate)
	res.Record = rec

	if err := o.ledger.Append(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrDuplicateKey) {
			logger.Info().Time("created_at", rec.CreatedAt).Msg("Prediction already recorded")
			res.Duplicate = true
			return res, nil
		}
		return res, fmt.Errorf("%s: recording prediction: %w", symbol, err)
	}

	logger.Info().
		Str("predicted", rec.PredictedPrice.StringFixed(2)).
		Str("converted", rec.PredictedPriceConverted.StringFixed(2)).
		Str("target_date", rec.TargetDate.Format(models.DateLayout)).
		Bool("fallback_rate", quote.Fallback).
		Msg("Prediction recorded")
	return res, nil
}

// model returns a fresh persisted model when allowed, otherwise trains and persists a new one.
func (o *Orchestrator) model(symbol string, rows []calculate.FeatureRow, at time.Time) (forecast.Forecaster, bool, forecast.TrainReport, error) {
	f, err := forecast.New(o.opts.Model, o.opts.ModelParams)
	if err != nil {
		return nil, false, forecast.TrainReport{}, err
	}
	logger := o.logger.With().Str("symbol", symbol).Str("model", f.Name()).Logger()

	var path string
	if o.opts.ModelDir != "" {
		path = forecast.ModelPath(o.opts.ModelDir, symbol, f.Name())
		if !o.opts.ForceRetrain {
			fresh, err := forecast.LoadFresh(f, path, o.opts.RetrainEvery, o.opts.Horizon, at)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable model")
				if f, err = forecast.New(o.opts.Model, o.opts.ModelParams); err != nil {
					return nil, false, forecast.TrainReport{}, err
				}
			} else if fresh {
				logger.Debug().Time("trained_at", f.TrainedAt()).Int("horizon", f.Horizon()).Msg("Reusing persisted model")
				return f, true, forecast.TrainReport{TrainedAt: f.TrainedAt()}, nil
			}
		}
	}

	report, err := f.Train(rows, o.opts.Horizon)
	if err != nil {
		return nil, false, report, err
	}
	logger.Info().Int("samples", report.Samples).Int("holdout", report.Holdout).
		Float64("rmse", report.RMSE).Msg("Model trained")

	if path != "" {
		if err := f.Save(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to persist model")
		}
	}
	return f, false, report, nil
}
