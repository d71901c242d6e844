package analyze

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Alias1177/StockPredictor/internal/calculate"
	"github.com/Alias1177/StockPredictor/internal/currency"
	"github.com/Alias1177/StockPredictor/internal/forecast"
	"github.com/Alias1177/StockPredictor/internal/ledger"
	"github.com/Alias1177/StockPredictor/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var batchTime = time.Date(2024, 3, 8, 22, 0, 0, 0, time.UTC) // a Friday

func generateTestCandles(n int, generator func(int) models.Candle) []models.Candle {
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = generator(i)
	}
	return candles
}

// dailyCandles ends on the day of batchTime.
func dailyCandles(n int) []models.Candle {
	last := models.DateOf(batchTime)
	return generateTestCandles(n, func(i int) models.Candle {
		price := 150 + float64(i)*0.1 + 4*math.Sin(float64(i)/6)
		return models.Candle{
			Timestamp: last.AddDate(0, 0, i-n+1),
			Open:      price - 0.3,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    int64(10000 + i),
		}
	})
}

type fakeSource struct {
	daily    map[string][]models.Candle
	intraday map[string][]models.Candle
	err      map[string]error
	calls    int
}

func (f *fakeSource) DailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	f.calls++
	if err := f.err[symbol]; err != nil {
		return nil, err
	}
	c, ok := f.daily[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, models.ErrNoData)
	}
	return c, nil
}

func (f *fakeSource) IntradayCandles(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	if err := f.err[symbol]; err != nil {
		return nil, err
	}
	var out []models.Candle
	for _, c := range f.intraday[symbol] {
		if !c.Timestamp.Before(start) && !c.Timestamp.After(end) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, models.ErrNoData
	}
	return out, nil
}

type stubRates struct {
	rate decimal.Decimal
	err  error
}

func (s stubRates) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	return s.rate, s.err
}

func converter(rates stubRates) *currency.Converter {
	return currency.NewConverter(rates, currency.Options{From: "USD", To: "GBP", Fallback: decimal.RequireFromString("0.78")})
}

func smallFeatures() calculate.FeatureParams {
	return calculate.FeatureParams{ShortWindow: 5, LongWindow: 10, MomentumWindow: 3, VolatilityWindow: 5, RSIPeriod: 4}
}

func newTestOrchestrator(t *testing.T, src *fakeSource, rates stubRates, opts Options) (*Orchestrator, ledger.Ledger) {
	t.Helper()
	l := ledger.NewCSV(filepath.Join(t.TempDir(), "predictions.csv"), ledger.DefaultTolerance())
	if opts.Features == (calculate.FeatureParams{}) {
		opts.Features = smallFeatures()
	}
	if opts.ModelParams == (forecast.Params{}) {
		opts.ModelParams = forecast.Params{Window: 5, Epochs: 3, Hidden: 4, Trees: 5}
	}
	o := NewOrchestrator(src, l, converter(rates), opts).WithClock(func() time.Time { return batchTime })
	return o, l
}

func TestRunCycleRecordsPrediction(t *testing.T) {
	for _, model := range []string{forecast.Sequence, forecast.BoostedTrees} {
		t.Run(model, func(t *testing.T) {
			src := &fakeSource{daily: map[string][]models.Candle{"AAPL": dailyCandles(200)}}
			o, l := newTestOrchestrator(t, src, stubRates{rate: decimal.RequireFromString("0.80")}, Options{Model: model})

			res, err := o.RunCycle(context.Background(), "AAPL")
			require.NoError(t, err)
			assert.False(t, res.Duplicate)
			assert.False(t, res.Fallback)

			all, err := l.All(context.Background())
			require.NoError(t, err)
			require.Len(t, all, 1)
			rec := all[0]
			assert.Equal(t, "AAPL", rec.Symbol)
			assert.Equal(t, model, rec.Model)
			assert.True(t, batchTime.Equal(rec.CreatedAt))
			// Friday close targets Monday
			assert.Equal(t, "2024-03-11", rec.TargetDate.Format(models.DateLayout))
			assert.Equal(t, "0.8", rec.ConversionRate.String())
			assert.True(t, models.Convert(rec.PredictedPrice, rec.ConversionRate).Equal(rec.PredictedPriceConverted))
			assert.Equal(t, models.OutcomePending, rec.Outcome)
		})
	}
}

func TestRunCycleAlwaysTradingUsesCalendarDays(t *testing.T) {
	src := &fakeSource{daily: map[string][]models.Candle{"BTC-USD": dailyCandles(200)}}
	o, l := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, Options{
		AlwaysTrading: func(s string) bool { return s == "BTC-USD" },
	})

	_, err := o.RunCycle(context.Background(), "BTC-USD")
	require.NoError(t, err)

	all, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", all[0].TargetDate.Format(models.DateLayout))
}

func TestRunCycleInsufficientData(t *testing.T) {
	// 40 clean rows after warm-up, below the 60 row minimum
	candles := dailyCandles(40 + smallFeatures().WarmUp())
	require.Len(t, calculate.BuildFeatures(candles, smallFeatures()), 40)

	src := &fakeSource{daily: map[string][]models.Candle{"TEST": candles}}
	o, l := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, Options{})

	_, err := o.RunCycle(context.Background(), "TEST")
	assert.ErrorIs(t, err, ErrInsufficientData)

	all, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunCycleDataUnavailable(t *testing.T) {
	src := &fakeSource{}
	o, _ := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, Options{})

	_, err := o.RunCycle(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	src := &fakeSource{daily: map[string][]models.Candle{"AAPL": dailyCandles(150)}}
	o, l := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, Options{})

	first, err := o.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := o.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	all, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRunCycleFallbackRate(t *testing.T) {
	src := &fakeSource{daily: map[string][]models.Candle{"AAPL": dailyCandles(150)}}
	rates := stubRates{err: fmt.Errorf("%w: dial tcp: connection refused", models.ErrExternalService)}
	o, l := newTestOrchestrator(t, src, rates, Options{})

	res, err := o.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, res.Fallback)

	all, err := l.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "0.78", all[0].ConversionRate.String())
}

func TestRunCycleReusesPersistedModel(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{daily: map[string][]models.Candle{"AAPL": dailyCandles(150)}}
	opts := Options{ModelDir: dir, RetrainEvery: 24 * time.Hour, Model: forecast.BoostedTrees}

	o, _ := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, opts)
	o.WithClock(time.Now)
	first, err := o.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.False(t, first.ModelReused)
	assert.FileExists(t, forecast.ModelPath(dir, "AAPL", forecast.BoostedTrees))

	o2, _ := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, opts)
	o2.WithClock(time.Now)
	second, err := o2.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, second.ModelReused)
	assert.True(t, first.Record.PredictedPrice.Equal(second.Record.PredictedPrice))

	opts.ForceRetrain = true
	o3, _ := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, opts)
	o3.WithClock(time.Now)
	third, err := o3.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.False(t, third.ModelReused)
}

func TestRunCycleRetrainsWhenHorizonChanges(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{daily: map[string][]models.Candle{"AAPL": dailyCandles(150)}}
	opts := Options{ModelDir: dir, RetrainEvery: 24 * time.Hour, Model: forecast.BoostedTrees, Horizon: 1}

	o, _ := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, opts)
	o.WithClock(time.Now)
	_, err := o.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)

	opts.Horizon = 5
	o2, _ := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, opts)
	o2.WithClock(time.Now)
	second, err := o2.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.False(t, second.ModelReused)
	assert.Positive(t, second.Train.Samples)

	var saved forecast.BoostedTreesModel
	require.NoError(t, saved.Load(forecast.ModelPath(dir, "AAPL", forecast.BoostedTrees)))
	assert.Equal(t, 5, saved.Horizon())

	o3, _ := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, opts)
	o3.WithClock(time.Now)
	third, err := o3.RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, third.ModelReused)
}

func TestRunBatchContinuesPastFailures(t *testing.T) {
	src := &fakeSource{
		daily: map[string][]models.Candle{
			"AAPL": dailyCandles(150),
			"TEST": dailyCandles(20),
			"MSFT": dailyCandles(150),
		},
		err: map[string]error{"BROKEN": fmt.Errorf("%w: 502", models.ErrExternalService)},
	}
	o, l := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, Options{})

	var out bytes.Buffer
	report, err := o.RunBatch(context.Background(), []string{"AAPL", "TEST", "BROKEN", "GONE", "MSFT"},
		LineReporter{Out: &out, DisplayCurrency: "GBP"})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Recorded)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Results, 5)

	all, err := l.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "AAPL", all[0].Symbol)
	assert.Equal(t, "MSFT", all[1].Symbol)
	assert.True(t, all[0].CreatedAt.Equal(all[1].CreatedAt))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	assert.Len(t, lines, 5)
	assert.Contains(t, out.String(), "TEST       skipped")
	assert.Contains(t, out.String(), "BROKEN     failed")
}

func TestRunBatchStopsOnCancel(t *testing.T) {
	src := &fakeSource{daily: map[string][]models.Candle{"AAPL": dailyCandles(150)}}
	o, _ := newTestOrchestrator(t, src, stubRates{rate: decimal.NewFromInt(1)}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.RunBatch(ctx, []string{"AAPL", "MSFT"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Results)
	assert.Zero(t, src.calls)
}

type corruptLedger struct{ ledger.Ledger }

func (corruptLedger) Append(ctx context.Context, rec models.PredictionRecord) error {
	return fmt.Errorf("%w: bad row", ledger.ErrCorrupt)
}

func TestRunBatchAbortsOnCorruptLedger(t *testing.T) {
	src := &fakeSource{daily: map[string][]models.Candle{"AAPL": dailyCandles(150), "MSFT": dailyCandles(150)}}
	o := NewOrchestrator(src, corruptLedger{}, converter(stubRates{rate: decimal.NewFromInt(1)}), Options{
		Features:    smallFeatures(),
		ModelParams: forecast.Params{Window: 5, Epochs: 2, Hidden: 2},
	})

	report, err := o.RunBatch(context.Background(), []string{"AAPL", "MSFT"}, nil)
	assert.True(t, errors.Is(err, ledger.ErrCorrupt))
	assert.Len(t, report.Results, 1)
	assert.Equal(t, 1, src.calls)
}
