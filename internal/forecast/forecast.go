// Package forecast provides the price forecasting strategies. Each strategy learns the
// forward return close[t+h]/close[t]-1 from min-max scaled indicator rows and converts
// its prediction back to a price using the latest close.
package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Alias1177/StockPredictor/internal/calculate"
)

const (
	Sequence     = "sequence"
	BoostedTrees = "boosted_trees"

	DefaultHoldoutRatio = 0.2
)

var (
	ErrInsufficientData = errors.New("insufficient data to train")
	ErrNotTrained       = errors.New("model not trained")
	ErrUnknownModel     = errors.New("unknown model")
)

// Forecaster is a trainable one-value regressor over feature rows ordered oldest first.
type Forecaster interface {
	Name() string
	Train(rows []calculate.FeatureRow, horizon int) (TrainReport, error)
	Predict(rows []calculate.FeatureRow) (float64, error)
	Save(path string) error
	Load(path string) error
	TrainedAt() time.Time
	// Horizon is the number of periods ahead the model was trained to predict.
	Horizon() int
}

// TrainReport summarises a training run.
type TrainReport struct {
	Samples   int
	Holdout   int
	RMSE      float64 // price RMSE over the holdout slice, 0 when it is empty
	TrainedAt time.Time
}

// Params configures the strategies. Zero values take defaults, except HoldoutRatio:
// 0 trains on every sample and leaves TrainReport.RMSE at 0.
type Params struct {
	Window       int
	Trees        int
	MaxDepth     int
	Shrinkage    float64
	Hidden       int
	Epochs       int
	LearningRate float64
	HoldoutRatio float64
	Seed         int64
}

func (p Params) withDefaults() Params {
	if p.Window <= 0 {
		p.Window = 10
	}
	if p.Trees <= 0 {
		p.Trees = 50
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 3
	}
	if p.Shrinkage <= 0 {
		p.Shrinkage = 0.1
	}
	if p.Hidden <= 0 {
		p.Hidden = 16
	}
	if p.Epochs <= 0 {
		p.Epochs = 60
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 0.01
	}
	if p.HoldoutRatio < 0 || p.HoldoutRatio >= 1 {
		p.HoldoutRatio = DefaultHoldoutRatio
	}
	if p.Seed == 0 {
		p.Seed = 42
	}
	return p
}

// New returns the named strategy.
func New(name string, params Params) (Forecaster, error) {
	params = params.withDefaults()
	switch strings.ToLower(name) {
	case Sequence, "":
		return NewSequence(params), nil
	case BoostedTrees:
		return NewBoostedTrees(params), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// ModelPath is where the model for symbol is persisted inside dir.
func ModelPath(dir, symbol, model string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_").Replace(symbol)
	return filepath.Join(dir, safe+"_"+model+".json")
}

// LoadFresh loads a persisted model if one exists, was trained for horizon and within
// maxAge of now. It reports false, without error, when the file is missing or stale.
func LoadFresh(f Forecaster, path string, maxAge time.Duration, horizon int, now time.Time) (bool, error) {
	if maxAge <= 0 {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := f.Load(path); err != nil {
		return false, err
	}
	if f.Horizon() != horizon || now.Sub(f.TrainedAt()) >= maxAge {
		return false, nil
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
