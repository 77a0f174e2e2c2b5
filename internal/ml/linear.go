package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression scores sigmoid(coef . row + intercept).
type LogisticRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// NewLogisticRegression returns a validated logistic model.
func NewLogisticRegression(coef []float64, intercept float64) (*LogisticRegression, error) {
	lr := &LogisticRegression{Coef: coef, Intercept: intercept}
	if err := lr.validate(); err != nil {
		return nil, err
	}
	return lr, nil
}

func (lr *LogisticRegression) validate() error {
	if len(lr.Coef) == 0 {
		return errors.New("logistic_regression: empty coefficients")
	}
	for i, c := range lr.Coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("logistic_regression: coefficient %d is not finite", i)
		}
	}
	return nil
}

func (lr *LogisticRegression) Kind() string     { return KindLogisticRegression }
func (lr *LogisticRegression) NumFeatures() int { return len(lr.Coef) }

func (lr *LogisticRegression) PredictProba(row []float64) (float64, error) {
	if err := checkRow(KindLogisticRegression, row, len(lr.Coef)); err != nil {
		return 0, err
	}
	z := floats.Dot(lr.Coef, row) + lr.Intercept
	return checkProbability(KindLogisticRegression, sigmoid(z))
}

// GaussianNB is a two-class Gaussian naive Bayes model. Index 0 is the negative
// class, index 1 the positive class.
type GaussianNB struct {
	Priors    [2]float64   `json:"priors"`
	Means     [2][]float64 `json:"means"`
	Variances [2][]float64 `json:"variances"`
}

func (nb *GaussianNB) validate() error {
	n := len(nb.Means[0])
	if n == 0 {
		return errors.New("gaussian_nb: empty means")
	}
	for c := 0; c < 2; c++ {
		if nb.Priors[c] <= 0 {
			return fmt.Errorf("gaussian_nb: prior %d must be positive", c)
		}
		if len(nb.Means[c]) != n || len(nb.Variances[c]) != n {
			return fmt.Errorf("gaussian_nb: class %d parameter length mismatch", c)
		}
		for i, v := range nb.Variances[c] {
			if v <= 0 {
				return fmt.Errorf("gaussian_nb: class %d variance %d must be positive", c, i)
			}
		}
	}
	return nil
}

func (nb *GaussianNB) Kind() string     { return KindGaussianNB }
func (nb *GaussianNB) NumFeatures() int { return len(nb.Means[0]) }

func (nb *GaussianNB) PredictProba(row []float64) (float64, error) {
	if err := checkRow(KindGaussianNB, row, nb.NumFeatures()); err != nil {
		return 0, err
	}
	var logLik [2]float64
	for c := 0; c < 2; c++ {
		ll := math.Log(nb.Priors[c])
		for i, x := range row {
			v := nb.Variances[c][i]
			d := x - nb.Means[c][i]
			ll += -0.5*math.Log(2*math.Pi*v) - d*d/(2*v)
		}
		logLik[c] = ll
	}
	// P(1|x) = 1 / (1 + exp(ll0 - ll1))
	return checkProbability(KindGaussianNB, sigmoid(logLik[1]-logLik[0]))
}
