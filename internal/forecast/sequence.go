package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/Alias1177/StockPredictor/internal/calculate"
)

// SequenceModel is a feed-forward network over a sliding window of feature rows.
// The window is flattened into one input vector feeding a single tanh hidden layer.
type SequenceModel struct {
	params Params
	state  sequenceState
}

type sequenceState struct {
	Kind                  string       `json:"kind"`
	Window                int          `json:"window"`
	Horizon               int          `json:"horizon"`
	Scaler                MinMaxScaler `json:"scaler"`
	TargetMean            float64      `json:"target_mean"`
	TargetStd             float64      `json:"target_std"`
	InputToHiddenWeights  [][]float64  `json:"input_to_hidden"`
	HiddenBiases          []float64    `json:"hidden_biases"`
	HiddenToOutputWeights []float64    `json:"hidden_to_output"`
	OutputBias            float64      `json:"output_bias"`
	TrainedAt             time.Time    `json:"trained_at"`
}

// NewSequence creates an untrained sequence model.
func NewSequence(params Params) *SequenceModel {
	params = params.withDefaults()
	return &SequenceModel{params: params, state: sequenceState{Kind: Sequence, Window: params.Window}}
}

func (m *SequenceModel) Name() string { return Sequence }

func (m *SequenceModel) TrainedAt() time.Time { return m.state.TrainedAt }

func (m *SequenceModel) Horizon() int { return m.state.Horizon }

func (m *SequenceModel) trained() bool { return len(m.state.InputToHiddenWeights) > 0 }

// Train fits the network with per-sample SGD. Sample order is shuffled with a fixed seed,
// so the same rows always produce the same weights.
func (m *SequenceModel) Train(rows []calculate.FeatureRow, horizon int) (TrainReport, error) {
	sp, err := prepare(rows, m.params.Window, horizon, m.params.HoldoutRatio)
	if err != nil {
		return TrainReport{}, err
	}

	rng := rand.New(rand.NewSource(m.params.Seed))
	inputSize := len(sp.Train[0].X)
	hiddenSize := m.params.Hidden

	st := sequenceState{
		Kind:                  Sequence,
		Window:                m.params.Window,
		Horizon:               horizon,
		Scaler:                sp.Scaler,
		InputToHiddenWeights:  make([][]float64, hiddenSize),
		HiddenBiases:          make([]float64, hiddenSize),
		HiddenToOutputWeights: make([]float64, hiddenSize),
	}
	scale := 1 / math.Sqrt(float64(inputSize))
	for j := range st.InputToHiddenWeights {
		st.InputToHiddenWeights[j] = make([]float64, inputSize)
		for k := range st.InputToHiddenWeights[j] {
			st.InputToHiddenWeights[j][k] = (rng.Float64()*2 - 1) * scale
		}
		st.HiddenToOutputWeights[j] = (rng.Float64()*2 - 1) * 0.1
	}

	// Standardise the target so the learning rate does not depend on the asset's volatility
	for _, s := range sp.Train {
		st.TargetMean += s.Y
	}
	st.TargetMean /= float64(len(sp.Train))
	for _, s := range sp.Train {
		st.TargetStd += (s.Y - st.TargetMean) * (s.Y - st.TargetMean)
	}
	st.TargetStd = math.Sqrt(st.TargetStd / float64(len(sp.Train)))
	if st.TargetStd == 0 {
		st.TargetStd = 1
	}

	hidden := make([]float64, hiddenSize)
	order := make([]int, len(sp.Train))
	for i := range order {
		order[i] = i
	}
	lr := m.params.LearningRate

	for epoch := 0; epoch < m.params.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, idx := range order {
			s := sp.Train[idx]
			target := (s.Y - st.TargetMean) / st.TargetStd
			out := st.forward(s.X, hidden)

			delta := clamp(out-target, -5, 5)
			for j := 0; j < hiddenSize; j++ {
				gradHidden := delta * st.HiddenToOutputWeights[j] * (1 - hidden[j]*hidden[j])
				st.HiddenToOutputWeights[j] -= lr * delta * hidden[j]
				w := st.InputToHiddenWeights[j]
				for k, x := range s.X {
					w[k] -= lr * gradHidden * x
				}
				st.HiddenBiases[j] -= lr * gradHidden
			}
			st.OutputBias -= lr * delta
		}
	}

	st.TrainedAt = time.Now().UTC()
	m.state = st

	return TrainReport{
		Samples:   len(sp.Train),
		Holdout:   len(sp.Holdout),
		RMSE:      holdoutRMSE(sp.Holdout, m.state.predictReturn),
		TrainedAt: st.TrainedAt,
	}, nil
}

// Predict returns the price expected horizon periods after the last row.
func (m *SequenceModel) Predict(rows []calculate.FeatureRow) (float64, error) {
	if !m.trained() {
		return 0, ErrNotTrained
	}
	x, last, err := latestInput(&m.state.Scaler, rows, m.state.Window)
	if err != nil {
		return 0, err
	}
	if len(x) != len(m.state.InputToHiddenWeights[0]) {
		return 0, fmt.Errorf("feature count mismatch: expected %d, got %d", len(m.state.InputToHiddenWeights[0]), len(x))
	}
	return last * (1 + m.state.predictReturn(x)), nil
}

func (m *SequenceModel) Save(path string) error {
	if !m.trained() {
		return ErrNotTrained
	}
	return writeJSON(path, m.state)
}

func (m *SequenceModel) Load(path string) error {
	var st sequenceState
	if err := readJSON(path, &st); err != nil {
		return err
	}
	if st.Kind != Sequence || len(st.InputToHiddenWeights) == 0 {
		return fmt.Errorf("%s: not a %s model", path, Sequence)
	}
	m.state = st
	m.params.Window = st.Window
	return nil
}

func (st *sequenceState) forward(x, hidden []float64) float64 {
	out := st.OutputBias
	for j, w := range st.InputToHiddenWeights {
		sum := st.HiddenBiases[j]
		for k, v := range x {
			sum += w[k] * v
		}
		hidden[j] = math.Tanh(sum)
		out += st.HiddenToOutputWeights[j] * hidden[j]
	}
	return out
}

func (st *sequenceState) predictReturn(x []float64) float64 {
	hidden := make([]float64, len(st.InputToHiddenWeights))
	return st.forward(x, hidden)*st.TargetStd + st.TargetMean
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
