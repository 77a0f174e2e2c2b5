package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"sifra/internal/ml"
)

// stubClassifier returns a fixed probability or error.
type stubClassifier struct {
	n    int
	p    float64
	err  error
	rows [][]float64
}

func (s *stubClassifier) PredictProba(row []float64) (float64, error) {
	s.rows = append(s.rows, append([]float64(nil), row...))
	if s.err != nil {
		return 0, s.err
	}
	return s.p, nil
}
func (s *stubClassifier) NumFeatures() int { return s.n }
func (s *stubClassifier) Kind() string     { return "stub" }

var errBoom = errors.New("boom")

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

func leafTree(v float64) ml.Tree {
	return ml.Tree{Nodes: []ml.TreeNode{{Feature: -1, Value: v, Cover: 1}}}
}

// constantBank builds a bank over features in which every classifier returns
// 0.8 for any row. Entries in replace swap out individual slots.
func constantBank(t *testing.T, features []string, replace map[ml.Slot]ml.Classifier) *ml.Bank {
	t.Helper()
	n := len(features)
	zeros := make([]float64, n)
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	scaler, err := ml.NewScaler(zeros, ones)
	require.NoError(t, err)

	forest, err := ml.NewRandomForest(n, []ml.Tree{leafTree(0.8)})
	require.NoError(t, err)
	boosted, err := ml.NewGradientBoosting(n, logit(0.8), 1, []ml.Tree{leafTree(0)})
	require.NoError(t, err)
	linear, err := ml.NewLogisticRegression(make([]float64, n), logit(0.8))
	require.NoError(t, err)

	points := make([][]float64, 5)
	for i := range points {
		points[i] = make([]float64, n)
	}
	neighbor := &ml.KNN{K: 5, Points: points, Labels: []int{1, 1, 1, 1, 0}}

	half, err := ml.NewLogisticRegression(make([]float64, n), 0)
	require.NoError(t, err)
	final, err := ml.NewLogisticRegression([]float64{0}, logit(0.8))
	require.NoError(t, err)
	stacked, err := ml.NewStacking(n, []ml.Classifier{half}, final, false)
	require.NoError(t, err)

	classifiers := map[ml.Slot]ml.Classifier{
		ml.SlotTreeA:    forest,
		ml.SlotTreeB:    boosted,
		ml.SlotStacked:  stacked,
		ml.SlotLinear:   linear,
		ml.SlotNeighbor: neighbor,
	}
	for slot, c := range replace {
		classifiers[slot] = c
	}

	bank, err := ml.NewBank(ml.BankParts{
		Version:     "test",
		Features:    features,
		Scaler:      scaler,
		Classifiers: classifiers,
	})
	require.NoError(t, err)
	return bank
}

func demoBank(t *testing.T) *ml.Bank {
	t.Helper()
	bank, err := ml.NewDemoBank()
	require.NoError(t, err)
	return bank
}
