package ml

import (
	"errors"
	"fmt"
)

// Pipeline scales the row before handing it to the wrapped estimator.
type Pipeline struct {
	Scaler    *Scaler
	Estimator Classifier
}

// NewPipeline checks that scaler and estimator agree on the feature count.
func NewPipeline(scaler *Scaler, est Classifier) (*Pipeline, error) {
	if scaler == nil || est == nil {
		return nil, errors.New("pipeline: scaler and estimator are required")
	}
	if scaler.NumFeatures() != est.NumFeatures() {
		return nil, fmt.Errorf("pipeline: scaler has %d features, estimator %d", scaler.NumFeatures(), est.NumFeatures())
	}
	return &Pipeline{Scaler: scaler, Estimator: est}, nil
}

func (p *Pipeline) Kind() string     { return KindPipeline }
func (p *Pipeline) NumFeatures() int { return p.Scaler.NumFeatures() }

func (p *Pipeline) PredictProba(row []float64) (float64, error) {
	if err := checkRow(KindPipeline, row, p.NumFeatures()); err != nil {
		return 0, err
	}
	scaled, err := p.Scaler.Transform(row)
	if err != nil {
		return 0, fmt.Errorf("pipeline: %w", err)
	}
	prob, err := p.Estimator.PredictProba(scaled)
	if err != nil {
		return 0, fmt.Errorf("pipeline: %w", err)
	}
	return prob, nil
}

// Stacking feeds the positive-class probabilities of its base estimators into a
// logistic final estimator. With Passthrough the raw row is appended after the
// base probabilities.
type Stacking struct {
	Estimators  []Classifier
	Final       *LogisticRegression
	Passthrough bool
	nFeatures   int
}

// NewStacking validates that every base estimator takes numFeatures columns and
// the final estimator takes one column per base estimator (plus the row on passthrough).
func NewStacking(numFeatures int, estimators []Classifier, final *LogisticRegression, passthrough bool) (*Stacking, error) {
	if len(estimators) == 0 {
		return nil, errors.New("stacking: no base estimators")
	}
	if final == nil {
		return nil, errors.New("stacking: final estimator is required")
	}
	for i, e := range estimators {
		if e.NumFeatures() != numFeatures {
			return nil, fmt.Errorf("stacking: estimator %d (%s) has %d features, want %d", i, e.Kind(), e.NumFeatures(), numFeatures)
		}
	}
	want := len(estimators)
	if passthrough {
		want += numFeatures
	}
	if final.NumFeatures() != want {
		return nil, fmt.Errorf("stacking: final estimator has %d inputs, want %d", final.NumFeatures(), want)
	}
	return &Stacking{Estimators: estimators, Final: final, Passthrough: passthrough, nFeatures: numFeatures}, nil
}

func (s *Stacking) Kind() string     { return KindStacking }
func (s *Stacking) NumFeatures() int { return s.nFeatures }

func (s *Stacking) PredictProba(row []float64) (float64, error) {
	if err := checkRow(KindStacking, row, s.nFeatures); err != nil {
		return 0, err
	}
	meta := make([]float64, 0, s.Final.NumFeatures())
	for i, e := range s.Estimators {
		p, err := e.PredictProba(row)
		if err != nil {
			return 0, fmt.Errorf("stacking: estimator %d: %w", i, err)
		}
		meta = append(meta, p)
	}
	if s.Passthrough {
		meta = append(meta, row...)
	}
	return s.Final.PredictProba(meta)
}
