package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount string
		code   string
		want   string
	}{
		{"187.46", "USD", "$187.46"},
		{"146.22", "GBP", "£146.22"},
		{"1234.5", "USD", "$1,234.50"},
		{"10", "XYZ", "10.00 XYZ"},
	}
	for _, tt := range tests {
		t.Run(tt.code+tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMoney(decimal.RequireFromString(tt.amount), tt.code))
		})
	}
}

func TestPrintLedger(t *testing.T) {
	created := time.Date(2024, 3, 5, 21, 0, 0, 0, time.UTC)
	target := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	rec := models.NewPrediction("AAPL", created, target, "sequence", 187.456, decimal.RequireFromString("0.78"))
	resolved := rec
	resolved.Symbol = "MSFT"
	resolved.ActualPrice = decimal.NewNullDecimal(decimal.RequireFromString("190"))
	resolved.Outcome = models.OutcomeCorrect

	var buf bytes.Buffer
	require.NoError(t, printLedger(&buf, []models.PredictionRecord{rec, resolved}, "USD", "GBP"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SYMBOL"))
	assert.Contains(t, lines[1], "AAPL")
	assert.Contains(t, lines[1], "$187.46")
	assert.Contains(t, lines[1], "£146.22")
	assert.Contains(t, lines[1], "Pending")
	assert.Contains(t, lines[2], "$190.00")
	assert.Contains(t, lines[2], "Correct")
}
