// Package ml holds the model bank used by the risk scorer: the five trained
// binary classifiers, the fitted feature scaler and the canonical feature order.
//
// Classifiers are plain Go evaluators over versioned JSON artifacts. Every
// artifact declares the feature count it was fitted against, and the bank
// refuses to load when any of them disagrees with the canonical order, so a
// misaligned model fails at start-up instead of producing silently wrong scores.
//
// A loaded bank is immutable and safe for concurrent use without locking.
package ml

import (
	"fmt"
	"math"
)

// Classifier is a binary probability estimator over one aligned (or scaled) feature row.
type Classifier interface {
	// PredictProba returns the probability of the positive class.
	PredictProba(row []float64) (float64, error)

	// NumFeatures is the row length the classifier was fitted against.
	NumFeatures() int

	// Kind names the artifact kind, e.g. "random_forest".
	Kind() string
}

// TreeExplainer is implemented by tree ensembles that can decompose their raw
// output into additive per-feature contributions.
type TreeExplainer interface {
	Classifier

	// RawOutput is the model output the contributions add up to. For forests this
	// is the positive-class probability, for boosted trees the log-odds margin.
	RawOutput(row []float64) (float64, error)

	// Contributions returns one signed contribution per feature and the baseline
	// (expected value) such that baseline + sum(contributions) == RawOutput(row).
	Contributions(row []float64) ([]float64, float64, error)
}

// Artifact kinds understood by the loader.
const (
	KindRandomForest       = "random_forest"
	KindGradientBoosting   = "gradient_boosting"
	KindLogisticRegression = "logistic_regression"
	KindKNN                = "knn"
	KindGaussianNB         = "gaussian_nb"
	KindPipeline           = "pipeline"
	KindStacking           = "stacking"
)

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1.0 / (1.0 + math.Exp(-x))
	}
	// numerically stable for large negative margins
	e := math.Exp(x)
	return e / (1.0 + e)
}

func checkRow(kind string, row []float64, want int) error {
	if len(row) != want {
		return fmt.Errorf("%s: expected %d features, got %d", kind, want, len(row))
	}
	for i, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: feature %d is not finite", kind, i)
		}
	}
	return nil
}

func checkProbability(kind string, p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%s: invalid probability %f", kind, p)
	}
	return p, nil
}
