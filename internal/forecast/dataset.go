package forecast

import (
	"fmt"
	"math"

	"github.com/Alias1177/StockPredictor/internal/calculate"
)

const minTrainSamples = 10

// MinMaxScaler maps each column to [0, 1] using the range seen at fit time.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// Fit records the per-column range of rows.
func (s *MinMaxScaler) Fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	cols := len(rows[0])
	s.Min = make([]float64, cols)
	s.Max = make([]float64, cols)
	copy(s.Min, rows[0])
	copy(s.Max, rows[0])
	for _, r := range rows[1:] {
		for j, v := range r {
			s.Min[j] = math.Min(s.Min[j], v)
			s.Max[j] = math.Max(s.Max[j], v)
		}
	}
}

// Transform scales v. Constant columns map to 0.
func (s *MinMaxScaler) Transform(v []float64) []float64 {
	out := make([]float64, len(v))
	for j, x := range v {
		span := s.Max[j] - s.Min[j]
		if span == 0 {
			continue
		}
		out[j] = (x - s.Min[j]) / span
	}
	return out
}

// sample is one labelled observation ending at row T.
type sample struct {
	X      []float64
	Y      float64 // forward return
	Close  float64 // close at T
	Future float64 // close at T+horizon
}

// split is a time-ordered train/holdout partition.
type split struct {
	Scaler  MinMaxScaler
	Train   []sample
	Holdout []sample
}

// prepare builds windowed samples from rows. The scaler is fitted on the rows feeding
// the training samples only; the trailing holdoutRatio of samples is held out.
func prepare(rows []calculate.FeatureRow, window, horizon int, holdoutRatio float64) (split, error) {
	if horizon < 1 {
		horizon = 1
	}
	first := window - 1
	last := len(rows) - 1 - horizon
	total := last - first + 1
	if total < minTrainSamples {
		return split{}, fmt.Errorf("%w: %d labelled samples", ErrInsufficientData, max(total, 0))
	}

	nTrain := total - int(float64(total)*holdoutRatio)
	if nTrain < minTrainSamples {
		return split{}, fmt.Errorf("%w: %d training samples", ErrInsufficientData, nTrain)
	}

	var sp split
	fitRows := make([][]float64, 0, first+nTrain)
	for _, r := range rows[:first+nTrain] {
		fitRows = append(fitRows, r.Vector())
	}
	sp.Scaler.Fit(fitRows)

	scaled := scaleRows(&sp.Scaler, rows)
	for t := first; t <= last; t++ {
		s := sample{
			X:      flatten(scaled[t-window+1 : t+1]),
			Close:  rows[t].Close,
			Future: rows[t+horizon].Close,
		}
		s.Y = s.Future/s.Close - 1
		if t-first < nTrain {
			sp.Train = append(sp.Train, s)
		} else {
			sp.Holdout = append(sp.Holdout, s)
		}
	}
	return sp, nil
}

// latestInput returns the feature input ending at the most recent row.
func latestInput(scaler *MinMaxScaler, rows []calculate.FeatureRow, window int) ([]float64, float64, error) {
	if len(rows) < window {
		return nil, 0, fmt.Errorf("%w: need %d rows to predict, have %d", ErrInsufficientData, window, len(rows))
	}
	tail := rows[len(rows)-window:]
	return flatten(scaleRows(scaler, tail)), tail[len(tail)-1].Close, nil
}

func scaleRows(scaler *MinMaxScaler, rows []calculate.FeatureRow) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = scaler.Transform(r.Vector())
	}
	return out
}

func flatten(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([]float64, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// holdoutRMSE scores price predictions over the holdout slice.
func holdoutRMSE(holdout []sample, predictReturn func([]float64) float64) float64 {
	if len(holdout) == 0 {
		return 0
	}
	var ss float64
	for _, s := range holdout {
		pred := s.Close * (1 + predictReturn(s.X))
		ss += (pred - s.Future) * (pred - s.Future)
	}
	return math.Sqrt(ss / float64(len(holdout)))
}
