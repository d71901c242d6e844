package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTargetDate(t *testing.T) {
	tests := []struct {
		name          string
		last          time.Time
		horizon       int
		alwaysTrading bool
		want          time.Time
	}{
		{"midweek", date(2024, 3, 5), 1, false, date(2024, 3, 6)},
		{"friday skips weekend", date(2024, 3, 8), 1, false, date(2024, 3, 11)},
		{"friday calendar days for always trading", date(2024, 3, 8), 1, true, date(2024, 3, 9)},
		{"multi day horizon crosses weekend", date(2024, 3, 7), 3, false, date(2024, 3, 12)},
		{"zero horizon treated as one", date(2024, 3, 5), 0, false, date(2024, 3, 6)},
		{"intraday timestamp truncated", time.Date(2024, 3, 5, 21, 30, 0, 0, time.UTC), 1, false, date(2024, 3, 6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TargetDate(tt.last, tt.horizon, tt.alwaysTrading)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestCalculateOutputSize(t *testing.T) {
	assert.Equal(t, 26, CalculateOutputSize("1h", 1))
	assert.Equal(t, 803, CalculateOutputSize("1day", 730))
	assert.Equal(t, 5000, CalculateOutputSize("1min", 30))
	assert.Equal(t, 1, CalculateOutputSize("unknown", 10))
}

func TestNewPrediction(t *testing.T) {
	created := time.Date(2024, 3, 5, 14, 0, 0, 123456, time.FixedZone("EST", -5*3600))
	rec := NewPrediction("AAPL", created, date(2024, 3, 6), "sequence", 187.456, decimal.RequireFromString("0.78"))

	assert.Equal(t, OutcomePending, rec.Outcome)
	assert.True(t, rec.IsPending())
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.Zero(t, rec.CreatedAt.Nanosecond())
	assert.Equal(t, "187.46", rec.PredictedPrice.StringFixed(2))
	assert.Equal(t, "146.22", rec.PredictedPriceConverted.StringFixed(2))
	assert.False(t, rec.ActualPrice.Valid)
	assert.Nil(t, rec.ResolvedAt)
}

func TestParseOutcome(t *testing.T) {
	o, err := ParseOutcome(" correct ")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeCorrect, o)

	_, err = ParseOutcome("maybe")
	assert.Error(t, err)
}
