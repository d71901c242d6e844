package forecast

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Alias1177/StockPredictor/internal/calculate"
)

const (
	minLeafSamples = 5
	splitQuantiles = 10
)

// TreeNode is one node of a regression tree stored as a flat slice.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

type regressionTree []TreeNode

func (t regressionTree) predict(x []float64) (float64, error) {
	idx := 0
	for {
		if idx < 0 || idx >= len(t) {
			return 0, errors.New("invalid tree state")
		}
		node := t[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(x) {
			return 0, errors.New("feature index out of range")
		}
		if x[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

// BoostedTreesModel is a gradient-boosted ensemble of depth-limited regression trees
// over the most recent feature row.
type BoostedTreesModel struct {
	params Params
	state  boostedState
}

type boostedState struct {
	Kind      string           `json:"kind"`
	Horizon   int              `json:"horizon"`
	Scaler    MinMaxScaler     `json:"scaler"`
	Base      float64          `json:"base"`
	Shrinkage float64          `json:"shrinkage"`
	Trees     []regressionTree `json:"trees"`
	TrainedAt time.Time        `json:"trained_at"`
}

// NewBoostedTrees creates an untrained ensemble.
func NewBoostedTrees(params Params) *BoostedTreesModel {
	params = params.withDefaults()
	return &BoostedTreesModel{params: params, state: boostedState{Kind: BoostedTrees}}
}

func (m *BoostedTreesModel) Name() string { return BoostedTrees }

func (m *BoostedTreesModel) TrainedAt() time.Time { return m.state.TrainedAt }

func (m *BoostedTreesModel) Horizon() int { return m.state.Horizon }

// Train fits each tree to the residuals of the ensemble so far.
func (m *BoostedTreesModel) Train(rows []calculate.FeatureRow, horizon int) (TrainReport, error) {
	sp, err := prepare(rows, 1, horizon, m.params.HoldoutRatio)
	if err != nil {
		return TrainReport{}, err
	}

	features := make([][]float64, len(sp.Train))
	residuals := make([]float64, len(sp.Train))
	st := boostedState{
		Kind:      BoostedTrees,
		Horizon:   horizon,
		Scaler:    sp.Scaler,
		Shrinkage: m.params.Shrinkage,
	}
	for i, s := range sp.Train {
		features[i] = s.X
		st.Base += s.Y
	}
	st.Base /= float64(len(sp.Train))
	for i, s := range sp.Train {
		residuals[i] = s.Y - st.Base
	}

	all := make([]int, len(features))
	for i := range all {
		all[i] = i
	}

	for n := 0; n < m.params.Trees; n++ {
		var tree regressionTree
		tree = buildTree(tree, features, residuals, all, 0, m.params.MaxDepth)
		for i, x := range features {
			v, err := tree.predict(x)
			if err != nil {
				return TrainReport{}, err
			}
			residuals[i] -= st.Shrinkage * v
		}
		st.Trees = append(st.Trees, tree)
	}

	st.TrainedAt = time.Now().UTC()
	m.state = st

	return TrainReport{
		Samples: len(sp.Train),
		Holdout: len(sp.Holdout),
		RMSE: holdoutRMSE(sp.Holdout, func(x []float64) float64 {
			v, _ := m.state.predictReturn(x)
			return v
		}),
		TrainedAt: st.TrainedAt,
	}, nil
}

// Predict returns the price expected horizon periods after the last row.
func (m *BoostedTreesModel) Predict(rows []calculate.FeatureRow) (float64, error) {
	if len(m.state.Trees) == 0 {
		return 0, ErrNotTrained
	}
	x, last, err := latestInput(&m.state.Scaler, rows, 1)
	if err != nil {
		return 0, err
	}
	ret, err := m.state.predictReturn(x)
	if err != nil {
		return 0, err
	}
	return last * (1 + ret), nil
}

func (m *BoostedTreesModel) Save(path string) error {
	if len(m.state.Trees) == 0 {
		return ErrNotTrained
	}
	return writeJSON(path, m.state)
}

func (m *BoostedTreesModel) Load(path string) error {
	var st boostedState
	if err := readJSON(path, &st); err != nil {
		return err
	}
	if st.Kind != BoostedTrees || len(st.Trees) == 0 {
		return fmt.Errorf("%s: not a %s model", path, BoostedTrees)
	}
	m.state = st
	return nil
}

func (st *boostedState) predictReturn(x []float64) (float64, error) {
	out := st.Base
	for _, tree := range st.Trees {
		v, err := tree.predict(x)
		if err != nil {
			return 0, err
		}
		out += st.Shrinkage * v
	}
	return out, nil
}

// buildTree appends the subtree for idx to nodes and returns the extended slice.
// The subtree root is at the length of nodes on entry.
func buildTree(nodes regressionTree, features [][]float64, targets []float64, idx []int, depth, maxDepth int) regressionTree {
	self := len(nodes)
	nodes = append(nodes, TreeNode{IsLeaf: true, Value: mean(targets, idx)})

	if depth >= maxDepth || len(idx) < 2*minLeafSamples {
		return nodes
	}

	feature, threshold, ok := bestSplit(features, targets, idx)
	if !ok {
		return nodes
	}

	var left, right []int
	for _, i := range idx {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	nodes[self].IsLeaf = false
	nodes[self].FeatureIdx = feature
	nodes[self].Threshold = threshold
	nodes[self].LeftChild = len(nodes)
	nodes = buildTree(nodes, features, targets, left, depth+1, maxDepth)
	nodes[self].RightChild = len(nodes)
	nodes = buildTree(nodes, features, targets, right, depth+1, maxDepth)
	return nodes
}

// bestSplit picks the quantile threshold with the largest reduction in squared error.
func bestSplit(features [][]float64, targets []float64, idx []int) (int, float64, bool) {
	var (
		bestFeature   int
		bestThreshold float64
		bestGain      float64
		found         bool
	)

	var total, totalSq float64
	for _, i := range idx {
		total += targets[i]
		totalSq += targets[i] * targets[i]
	}
	n := float64(len(idx))
	parentSSE := totalSq - total*total/n

	values := make([]float64, len(idx))
	for f := range features[idx[0]] {
		for k, i := range idx {
			values[k] = features[i][f]
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		var prev float64
		for q := 1; q < splitQuantiles; q++ {
			threshold := sorted[q*len(sorted)/splitQuantiles]
			if q > 1 && threshold == prev {
				continue
			}
			prev = threshold

			var lSum, lSq, lN float64
			for k, i := range idx {
				if values[k] <= threshold {
					lSum += targets[i]
					lSq += targets[i] * targets[i]
					lN++
				}
			}
			rN := n - lN
			if lN < minLeafSamples || rN < minLeafSamples {
				continue
			}
			rSum, rSq := total-lSum, totalSq-lSq
			sse := (lSq - lSum*lSum/lN) + (rSq - rSum*rSum/rN)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain, bestFeature, bestThreshold, found = gain, f, threshold, true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func mean(values []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += values[i]
	}
	return sum / float64(len(idx))
}
