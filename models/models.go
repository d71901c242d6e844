package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrExternalService marks failures of a third-party dependency (market data or FX provider).
	ErrExternalService = errors.New("external service error")
	// ErrNoData is returned by a CandleSource that has nothing for the requested symbol and range.
	ErrNoData = errors.New("no data available")
)

// Candle represents a single price candle
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume,omitempty"`
}

// TwelveResponse represents the API response from Twelve Data
type TwelveResponse struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Values []struct {
		Datetime string  `json:"datetime"`
		Open     float64 `json:"open,string"`
		High     float64 `json:"high,string"`
		Low      float64 `json:"low,string"`
		Close    float64 `json:"close,string"`
		Volume   int64   `json:"volume,string,omitempty"`
	} `json:"values"`
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Outcome is the reconciliation state of a prediction.
type Outcome string

const (
	OutcomePending   Outcome = "Pending"
	OutcomeCorrect   Outcome = "Correct"
	OutcomeIncorrect Outcome = "Incorrect"
)

// ParseOutcome accepts the canonical names case-insensitively.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return OutcomePending, nil
	case "correct":
		return OutcomeCorrect, nil
	case "incorrect":
		return OutcomeIncorrect, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// RecordKey identifies a ledger row.
type RecordKey struct {
	Symbol    string
	CreatedAt time.Time
}

func (k RecordKey) String() string {
	return k.Symbol + "@" + k.CreatedAt.UTC().Format(time.RFC3339)
}

// PredictionRecord is one forecast event and, once reconciled, its observed outcome.
type PredictionRecord struct {
	Symbol                  string              `json:"symbol"`
	CreatedAt               time.Time           `json:"created_at"`
	TargetDate              time.Time           `json:"target_date"`
	Model                   string              `json:"model"`
	PredictedPrice          decimal.Decimal     `json:"predicted_price"`
	PredictedPriceConverted decimal.Decimal     `json:"predicted_price_converted"`
	ConversionRate          decimal.Decimal     `json:"conversion_rate"`
	ActualPrice             decimal.NullDecimal `json:"actual_price"`
	ActualPriceConverted    decimal.NullDecimal `json:"actual_price_converted"`
	ResolvedAt              *time.Time          `json:"resolved_at"`
	Outcome                 Outcome             `json:"outcome"`
}

// Key returns the row identity of the record.
func (r PredictionRecord) Key() RecordKey {
	return RecordKey{Symbol: r.Symbol, CreatedAt: r.CreatedAt}
}

// IsPending reports whether the record still awaits reconciliation.
func (r PredictionRecord) IsPending() bool {
	return r.Outcome == OutcomePending
}

// Convert applies a conversion rate and rounds to cents.
func Convert(price, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(rate).Round(2)
}

// NewPrediction builds a Pending record. Prices are rounded to cents and the rate snapshot is kept
// so the actual price can later be converted with the same rate.
func NewPrediction(symbol string, createdAt, targetDate time.Time, model string, predicted float64, rate decimal.Decimal) PredictionRecord {
	price := decimal.NewFromFloat(predicted).Round(2)
	return PredictionRecord{
		Symbol:                  symbol,
		CreatedAt:               createdAt.UTC().Truncate(time.Second),
		TargetDate:              DateOf(targetDate),
		Model:                   model,
		PredictedPrice:          price,
		PredictedPriceConverted: Convert(price, rate),
		ConversionRate:          rate,
		Outcome:                 OutcomePending,
	}
}
