package ledger

import (
	"fmt"
	"strings"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/shopspring/decimal"
)

type ToleranceMode string

const (
	ToleranceAbsolute ToleranceMode = "absolute"
	TolerancePercent  ToleranceMode = "percent"
)

// TolerancePolicy decides whether a prediction was close enough to the observed price.
// A difference exactly equal to the tolerance counts as Correct.
type TolerancePolicy struct {
	Mode  ToleranceMode
	Value decimal.Decimal
}

// DefaultTolerance is an absolute band of 5.00 in the source currency.
func DefaultTolerance() TolerancePolicy {
	return TolerancePolicy{Mode: ToleranceAbsolute, Value: decimal.NewFromInt(5)}
}

// NewTolerancePolicy validates mode and value.
func NewTolerancePolicy(mode string, value decimal.Decimal) (TolerancePolicy, error) {
	m := ToleranceMode(strings.ToLower(strings.TrimSpace(mode)))
	switch m {
	case ToleranceAbsolute, TolerancePercent:
	case "":
		m = ToleranceAbsolute
	default:
		return TolerancePolicy{}, fmt.Errorf("unknown tolerance mode %q", mode)
	}
	if value.IsNegative() {
		return TolerancePolicy{}, fmt.Errorf("tolerance must not be negative: %s", value)
	}
	return TolerancePolicy{Mode: m, Value: value}, nil
}

// Band returns the allowed absolute difference for an observed price.
func (p TolerancePolicy) Band(actual decimal.Decimal) decimal.Decimal {
	if p.Mode == TolerancePercent {
		return p.Value.Div(decimal.NewFromInt(100)).Mul(actual.Abs())
	}
	return p.Value
}

// Classify returns Correct when |predicted - actual| <= band.
func (p TolerancePolicy) Classify(predicted, actual decimal.Decimal) models.Outcome {
	if predicted.Sub(actual).Abs().LessThanOrEqual(p.Band(actual)) {
		return models.OutcomeCorrect
	}
	return models.OutcomeIncorrect
}

func (p TolerancePolicy) String() string {
	if p.Mode == TolerancePercent {
		return p.Value.String() + "%"
	}
	return p.Value.StringFixed(2)
}
