package risk

import (
	"fmt"
	"math"

	"sifra/internal/ml"
)

const weightTolerance = 1e-9

// Weights are the per-slot blend coefficients of the consensus.
type Weights struct {
	TreeA    float64 `json:"tree_a" yaml:"tree_a"`
	TreeB    float64 `json:"tree_b" yaml:"tree_b"`
	Stacked  float64 `json:"stacked" yaml:"stacked"`
	Linear   float64 `json:"linear" yaml:"linear"`
	Neighbor float64 `json:"neighbor" yaml:"neighbor"`
}

// DefaultWeights is the production blend.
func DefaultWeights() Weights {
	return Weights{TreeA: 0.25, TreeB: 0.25, Stacked: 0.15, Linear: 0.20, Neighbor: 0.15}
}

// For returns the weight of slot.
func (w Weights) For(slot ml.Slot) float64 {
	switch slot {
	case ml.SlotTreeA:
		return w.TreeA
	case ml.SlotTreeB:
		return w.TreeB
	case ml.SlotStacked:
		return w.Stacked
	case ml.SlotLinear:
		return w.Linear
	case ml.SlotNeighbor:
		return w.Neighbor
	}
	return 0
}

// Sum adds the weights in consensus order.
func (w Weights) Sum() float64 {
	return w.TreeA + w.TreeB + w.Linear + w.Stacked + w.Neighbor
}

// Validate requires finite non-negative weights summing to 1.
func (w Weights) Validate() error {
	for _, slot := range ml.Slots {
		v := w.For(slot)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("weight for %s must be a non-negative number, got %v", slot, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}
