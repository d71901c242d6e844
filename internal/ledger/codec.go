package ledger

import (
	"fmt"
	"time"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/shopspring/decimal"
)

// Columns is the persisted column order shared by the CSV header and the SQL table.
var Columns = []string{
	"symbol",
	"created_at",
	"target_date",
	"model",
	"predicted_price",
	"predicted_price_converted",
	"conversion_rate",
	"actual_price",
	"actual_price_converted",
	"resolved_at",
	"outcome",
}

// encodeRecord renders rec as text cells; null values become empty strings.
func encodeRecord(rec models.PredictionRecord) []string {
	return []string{
		rec.Symbol,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.TargetDate.UTC().Format(models.DateLayout),
		rec.Model,
		rec.PredictedPrice.StringFixed(2),
		rec.PredictedPriceConverted.StringFixed(2),
		rec.ConversionRate.String(),
		encodeNullDecimal(rec.ActualPrice),
		encodeNullDecimal(rec.ActualPriceConverted),
		encodeTime(rec.ResolvedAt),
		string(rec.Outcome),
	}
}

// decodeRecord parses cells produced by encodeRecord.
func decodeRecord(cells []string) (models.PredictionRecord, error) {
	var rec models.PredictionRecord
	if len(cells) != len(Columns) {
		return rec, fmt.Errorf("expected %d columns, got %d", len(Columns), len(cells))
	}

	var err error
	rec.Symbol = cells[0]
	if rec.Symbol == "" {
		return rec, fmt.Errorf("empty symbol")
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, cells[1]); err != nil {
		return rec, fmt.Errorf("created_at: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if rec.TargetDate, err = time.ParseInLocation(models.DateLayout, cells[2], time.UTC); err != nil {
		return rec, fmt.Errorf("target_date: %w", err)
	}
	rec.Model = cells[3]
	if rec.PredictedPrice, err = decimal.NewFromString(cells[4]); err != nil {
		return rec, fmt.Errorf("predicted_price: %w", err)
	}
	if rec.PredictedPriceConverted, err = decimal.NewFromString(cells[5]); err != nil {
		return rec, fmt.Errorf("predicted_price_converted: %w", err)
	}
	if rec.ConversionRate, err = decimal.NewFromString(cells[6]); err != nil {
		return rec, fmt.Errorf("conversion_rate: %w", err)
	}
	if rec.ActualPrice, err = decodeNullDecimal(cells[7]); err != nil {
		return rec, fmt.Errorf("actual_price: %w", err)
	}
	if rec.ActualPriceConverted, err = decodeNullDecimal(cells[8]); err != nil {
		return rec, fmt.Errorf("actual_price_converted: %w", err)
	}
	if rec.ResolvedAt, err = decodeTime(cells[9]); err != nil {
		return rec, fmt.Errorf("resolved_at: %w", err)
	}
	if rec.Outcome, err = models.ParseOutcome(cells[10]); err != nil {
		return rec, err
	}

	// The reconciliation fields move together
	resolved := rec.ActualPrice.Valid && rec.ActualPriceConverted.Valid && rec.ResolvedAt != nil
	partial := rec.ActualPrice.Valid || rec.ActualPriceConverted.Valid || rec.ResolvedAt != nil
	if (rec.IsPending() && partial) || (!rec.IsPending() && !resolved) {
		return rec, fmt.Errorf("inconsistent reconciliation fields for %s", rec.Key())
	}
	return rec, nil
}

func encodeNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func decodeNullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func encodeTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
