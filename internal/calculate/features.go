package calculate

import (
	"math"
	"time"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

// FeatureRow is one fully defined observation.
type FeatureRow struct {
	Date       time.Time
	Close      float64
	Return     float64
	SMAShort   float64
	SMALong    float64
	Momentum   float64
	Volatility float64
	RSI        float64
}

// Vector returns close, return, SMAs, momentum, volatility and RSI in that order.
func (r FeatureRow) Vector() []float64 {
	return []float64{r.Close, r.Return, r.SMAShort, r.SMALong, r.Momentum, r.Volatility, r.RSI}
}

// FeatureParams holds the indicator windows.
type FeatureParams struct {
	ShortWindow      int
	LongWindow       int
	MomentumWindow   int
	VolatilityWindow int
	RSIPeriod        int
}

// DefaultFeatureParams returns the 50/200 day moving averages with 10 day momentum,
// 20 day volatility and 14 day RSI.
func DefaultFeatureParams() FeatureParams {
	return FeatureParams{
		ShortWindow:      50,
		LongWindow:       200,
		MomentumWindow:   10,
		VolatilityWindow: 20,
		RSIPeriod:        14,
	}
}

// WarmUp is the number of leading candles that cannot produce a complete row.
func (p FeatureParams) WarmUp() int {
	w := p.LongWindow - 1
	for _, v := range []int{p.ShortWindow - 1, p.MomentumWindow, p.VolatilityWindow, p.RSIPeriod} {
		if v > w {
			w = v
		}
	}
	return w
}

// BuildFeatures derives indicator rows from candles ordered oldest first.
// Rows with any undefined or non-finite indicator are dropped.
func BuildFeatures(candles []models.Candle, p FeatureParams) []FeatureRow {
	n := len(candles)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}

	smaShort := alignRight(computeSMA(closes, p.ShortWindow), n)
	smaLong := alignRight(computeSMA(closes, p.LongWindow), n)
	rsi := alignRight(computeRSI(closes, p.RSIPeriod), n)
	returns := dailyReturns(closes)
	vol := rollingStd(returns, p.VolatilityWindow)

	rows := make([]FeatureRow, 0, n)
	for i := range candles {
		if i < p.MomentumWindow || i == 0 {
			continue
		}
		row := FeatureRow{
			Date:       models.DateOf(candles[i].Timestamp),
			Close:      closes[i],
			Return:     returns[i],
			SMAShort:   smaShort[i],
			SMALong:    smaLong[i],
			Momentum:   closes[i] - closes[i-p.MomentumWindow],
			Volatility: vol[i],
			RSI:        rsi[i],
		}
		if !finite(row.Vector()) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func computeSMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nil
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
}

func computeRSI(values []float64, period int) []float64 {
	if period < 1 || len(values) <= period {
		return nil
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(rsi.Compute(helper.SliceToChan(values)))
}

// alignRight places an indicator output that skipped its warm-up against the tail of
// an n-length series. Leading positions are NaN.
func alignRight(out []float64, n int) []float64 {
	aligned := make([]float64, n)
	offset := n - len(out)
	for i := range aligned {
		if i < offset {
			aligned[i] = math.NaN()
			continue
		}
		aligned[i] = out[i-offset]
	}
	return aligned
}

func dailyReturns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) > 0 {
		out[0] = math.NaN()
	}
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = closes[i]/closes[i-1] - 1
	}
	return out
}

// rollingStd is the sample standard deviation of the trailing window ending at each index.
func rollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if window < 2 || i < window {
			out[i] = math.NaN()
			continue
		}
		slice := values[i-window+1 : i+1]
		mean := average(slice)
		var ss float64
		for _, v := range slice {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
