package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-15)
	assert.InDelta(t, 0.75, sigmoid(math.Log(3)), 1e-12)
	assert.InDelta(t, 0.25, sigmoid(-math.Log(3)), 1e-12)
	assert.False(t, math.IsNaN(sigmoid(-1000)))
	assert.Equal(t, 1.0, sigmoid(1000))
}

func TestCheckRow(t *testing.T) {
	assert.NoError(t, checkRow("x", []float64{1, 2}, 2))
	assert.Error(t, checkRow("x", []float64{1}, 2))
	assert.Error(t, checkRow("x", []float64{1, math.NaN()}, 2))
	assert.Error(t, checkRow("x", []float64{math.Inf(1), 0}, 2))
}

func TestLogisticRegression(t *testing.T) {
	lr, err := NewLogisticRegression([]float64{1, -1}, 0)
	require.NoError(t, err)

	p, err := lr.PredictProba([]float64{2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	p, err = lr.PredictProba([]float64{math.Log(3), 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, p, 1e-12)

	_, err = lr.PredictProba([]float64{1, 2, 3})
	assert.Error(t, err)

	lr, err = NewLogisticRegression([]float64{0.5, -2, 1}, -1)
	require.NoError(t, err)
	p, err = lr.PredictProba([]float64{2, 0.5, 3})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(2), p, 1e-12)

	_, err = NewLogisticRegression(nil, 0)
	assert.Error(t, err)
	_, err = NewLogisticRegression([]float64{math.NaN()}, 0)
	assert.Error(t, err)
}

func TestKNN(t *testing.T) {
	base := KNN{
		K:      3,
		Points: [][]float64{{0}, {1}, {2}, {10}},
		Labels: []int{0, 1, 1, 0},
	}

	t.Run("uniform", func(t *testing.T) {
		k := base
		require.NoError(t, k.validate())
		p, err := k.PredictProba([]float64{1.1})
		require.NoError(t, err)
		assert.InDelta(t, 2.0/3.0, p, 1e-12)
	})

	t.Run("distance", func(t *testing.T) {
		k := base
		k.Weights = "distance"
		require.NoError(t, k.validate())
		p, err := k.PredictProba([]float64{1.1})
		require.NoError(t, err)
		w1, w2, w0 := 1/0.1, 1/0.9, 1/1.1
		assert.InDelta(t, (w1+w2)/(w1+w2+w0), p, 1e-9)
	})

	t.Run("distance exact match", func(t *testing.T) {
		k := base
		k.Weights = "distance"
		p, err := k.PredictProba([]float64{1})
		require.NoError(t, err)
		assert.Equal(t, 1.0, p)
	})

	t.Run("equidistant keeps training order", func(t *testing.T) {
		k := KNN{K: 1, Points: [][]float64{{-1}, {1}}, Labels: []int{0, 1}}
		p, err := k.PredictProba([]float64{0})
		require.NoError(t, err)
		assert.Equal(t, 0.0, p)
	})

	t.Run("euclidean over several columns", func(t *testing.T) {
		k := KNN{K: 2, Points: [][]float64{{0, 0}, {3, 4}, {6, 8}}, Labels: []int{1, 0, 0}, Weights: "distance"}
		require.NoError(t, k.validate())
		// (1.5, 2) is 2.5 from both of the first two points
		p, err := k.PredictProba([]float64{1.5, 2})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, p, 1e-12)

		k.K = 1
		p, err = k.PredictProba([]float64{5.9, 8.2})
		require.NoError(t, err)
		assert.Equal(t, 0.0, p)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, k := range []KNN{
			{K: 1},
			{K: 0, Points: [][]float64{{0}}, Labels: []int{0}},
			{K: 2, Points: [][]float64{{0}}, Labels: []int{0}},
			{K: 1, Points: [][]float64{{0}}, Labels: []int{2}},
			{K: 1, Points: [][]float64{{0}, {1, 2}}, Labels: []int{0, 1}},
			{K: 1, Points: [][]float64{{0}}, Labels: []int{0}, Weights: "cosine"},
		} {
			assert.Error(t, k.validate())
		}
	})
}

func TestGaussianNB(t *testing.T) {
	nb := &GaussianNB{Priors: [2]float64{0.5, 0.5}}
	nb.Means[0], nb.Means[1] = []float64{0}, []float64{2}
	nb.Variances[0], nb.Variances[1] = []float64{1}, []float64{1}
	require.NoError(t, nb.validate())

	p, err := nb.PredictProba([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	p, err = nb.PredictProba([]float64{2})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(2), p, 1e-12)

	nb.Variances[1] = []float64{0}
	assert.Error(t, nb.validate())
}

func TestScaler(t *testing.T) {
	s, err := NewScaler([]float64{10, 5}, []float64{2, 0})
	require.NoError(t, err)

	row := []float64{12, 7}
	out, err := s.Transform(row)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, out, "zero scale is treated as 1")
	assert.Equal(t, []float64{12, 7}, row, "input is not modified")

	_, err = s.Transform([]float64{1})
	assert.Error(t, err)

	out, err = s.Transform([]float64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{-3, 0}, out)
	assert.Equal(t, []float64{2, 0}, s.Scale, "scale is not rewritten")

	_, err = NewScaler([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
	_, err = NewScaler([]float64{1}, []float64{-1})
	assert.Error(t, err)
}

func TestPipeline(t *testing.T) {
	s, err := NewScaler([]float64{10}, []float64{2})
	require.NoError(t, err)
	lr, err := NewLogisticRegression([]float64{1}, 0)
	require.NoError(t, err)

	p, err := NewPipeline(s, lr)
	require.NoError(t, err)
	prob, err := p.PredictProba([]float64{12})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(1), prob, 1e-12)

	wide, err := NewLogisticRegression([]float64{1, 1}, 0)
	require.NoError(t, err)
	_, err = NewPipeline(s, wide)
	assert.Error(t, err)
}

func TestStacking(t *testing.T) {
	half, err := NewLogisticRegression([]float64{0}, 0)
	require.NoError(t, err)

	final, err := NewLogisticRegression([]float64{2, 2}, -2)
	require.NoError(t, err)
	st, err := NewStacking(1, []Classifier{half, half}, final, false)
	require.NoError(t, err)
	p, err := st.PredictProba([]float64{42})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	pass, err := NewLogisticRegression([]float64{0, 0, 1}, 0)
	require.NoError(t, err)
	st, err = NewStacking(1, []Classifier{half, half}, pass, true)
	require.NoError(t, err)
	p, err = st.PredictProba([]float64{3})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(3), p, 1e-12)

	_, err = NewStacking(1, []Classifier{half}, final, false)
	assert.Error(t, err, "final estimator width must match base count")
	_, err = NewStacking(2, []Classifier{half, half}, final, false)
	assert.Error(t, err, "base estimators must match feature count")
	_, err = NewStacking(1, nil, final, false)
	assert.Error(t, err)
}
