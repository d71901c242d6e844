package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CandleSource is the market data collaborator.
type CandleSource interface {
	// DailyCandles returns daily candles in [start, end], oldest first.
	DailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error)
	// IntradayCandles returns the finest-granularity candles configured, in [start, end], oldest first.
	IntradayCandles(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error)
}

// RateSource returns a spot conversion rate between two currencies.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}
