package risk

import (
	"fmt"
	"math"

	"sifra/internal/ml"
)

// Consensus is the outcome of one scoring pass.
type Consensus struct {
	Probability float64
	Row         []float64
	Scaled      []float64
	Components  map[ml.Slot]float64
}

// Scorer blends the five bank classifiers into one probability.
type Scorer struct {
	bank    *ml.Bank
	weights Weights
}

// NewScorer binds a bank to a validated set of weights.
func NewScorer(bank *ml.Bank, weights Weights) (*Scorer, error) {
	if bank == nil {
		return nil, fmt.Errorf("scorer: model bank is required")
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}
	return &Scorer{bank: bank, weights: weights}, nil
}

// Weights returns the blend in use.
func (s *Scorer) Weights() Weights { return s.weights }

// Score aligns fv, scales a copy, and queries every classifier with the row form
// it was fitted on: raw for the tree ensembles and the stacked model, scaled for
// the linear and neighbour models. Any classifier failure aborts the whole score.
func (s *Scorer) Score(fv FeatureVector) (Consensus, error) {
	row := Align(fv, s.bank.Features())
	scaled, err := s.bank.Scale(row)
	if err != nil {
		return Consensus{}, &ScoringError{Err: err}
	}

	components := make(map[ml.Slot]float64, len(ml.Slots))
	for _, slot := range ml.Slots {
		input := row
		if ml.UsesScaledRow(slot) {
			input = scaled
		}
		p, err := s.bank.Classifier(slot).PredictProba(input)
		if err != nil {
			return Consensus{}, &ScoringError{Slot: slot, Err: err}
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			return Consensus{}, &ScoringError{Slot: slot, Err: fmt.Errorf("probability %v outside [0,1]", p)}
		}
		components[slot] = p
	}

	return Consensus{
		Probability: s.blend(components),
		Row:         row,
		Scaled:      scaled,
		Components:  components,
	}, nil
}

func (s *Scorer) blend(c map[ml.Slot]float64) float64 {
	p := s.weights.TreeA*c[ml.SlotTreeA] +
		s.weights.TreeB*c[ml.SlotTreeB] +
		s.weights.Linear*c[ml.SlotLinear] +
		s.weights.Stacked*c[ml.SlotStacked] +
		s.weights.Neighbor*c[ml.SlotNeighbor]
	// weights sum to 1 only within tolerance
	return math.Min(1, math.Max(0, p))
}
