// Package notify publishes forecast and reconciliation outcomes to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Alias1177/StockPredictor/models"
)

// Kind distinguishes new predictions from resolved ones.
type Kind string

const (
	KindPrediction Kind = "prediction"
	KindResolution Kind = "resolution"
)

// Event is one batch of records worth telling someone about.
type Event struct {
	Kind            Kind
	RunID           string
	Summary         string
	DisplayCurrency string
	Records         []models.PredictionRecord
}

// Notifier delivers events. Implementations must tolerate empty record lists.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Format renders an event as plain text, one line per record.
func Format(ev Event) string {
	var b strings.Builder
	switch ev.Kind {
	case KindResolution:
		b.WriteString("Predictions resolved")
	default:
		b.WriteString("New predictions")
	}
	if ev.Summary != "" {
		b.WriteString(": ")
		b.WriteString(ev.Summary)
	}
	b.WriteByte('\n')

	for _, rec := range ev.Records {
		switch ev.Kind {
		case KindResolution:
			fmt.Fprintf(&b, "%s %s: predicted %s, actual %s, %s\n",
				rec.Symbol, rec.TargetDate.Format(models.DateLayout),
				rec.PredictedPrice.StringFixed(2), rec.ActualPrice.Decimal.StringFixed(2), rec.Outcome)
		default:
			fmt.Fprintf(&b, "%s %s: %s (%s %s)\n",
				rec.Symbol, rec.TargetDate.Format(models.DateLayout),
				rec.PredictedPrice.StringFixed(2), rec.PredictedPriceConverted.StringFixed(2), ev.DisplayCurrency)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
