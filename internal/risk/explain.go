package risk

import (
	"fmt"
	"math"
	"sort"

	"sifra/internal/ml"
)

// TopN is how many attributions an explanation keeps.
const TopN = 5

// FeatureImpact is one feature's signed contribution to the reference model output.
type FeatureImpact struct {
	Feature string  `json:"feature"`
	Impact  float64 `json:"impact"`
}

// Attribution is the explanation for one aligned row.
type Attribution struct {
	Slot      ml.Slot         `json:"slot"`
	Top       []FeatureImpact `json:"top"`
	Baseline  float64         `json:"baseline"`
	RawOutput float64         `json:"raw_output"`
	// Sum is Baseline plus every feature's impact, not just the top ones.
	Sum float64 `json:"sum"`
}

// Explainer attributes the output of one reference tree ensemble.
type Explainer struct {
	slot     ml.Slot
	model    ml.TreeExplainer
	features []string
}

// NewExplainer uses the tree ensemble in slot as the reference model.
func NewExplainer(bank *ml.Bank, slot ml.Slot) (*Explainer, error) {
	if bank == nil {
		return nil, fmt.Errorf("explainer: model bank is required")
	}
	model, err := bank.Explainer(slot)
	if err != nil {
		return nil, fmt.Errorf("explainer: %w", err)
	}
	return &Explainer{slot: slot, model: model, features: bank.Features()}, nil
}

// Slot is the reference classifier slot.
func (e *Explainer) Slot() ml.Slot { return e.slot }

// Explain returns the TopN features by absolute impact, descending. Equal
// magnitudes keep canonical feature order.
func (e *Explainer) Explain(row []float64) (Attribution, error) {
	phi, baseline, err := e.model.Contributions(row)
	if err != nil {
		return Attribution{}, &ScoringError{Slot: e.slot, Err: err}
	}
	raw, err := e.model.RawOutput(row)
	if err != nil {
		return Attribution{}, &ScoringError{Slot: e.slot, Err: err}
	}

	impacts := make([]FeatureImpact, len(phi))
	sum := baseline
	for i, v := range phi {
		impacts[i] = FeatureImpact{Feature: e.features[i], Impact: v}
		sum += v
	}

	sort.SliceStable(impacts, func(a, b int) bool {
		return math.Abs(impacts[a].Impact) > math.Abs(impacts[b].Impact)
	})
	n := TopN
	if len(impacts) < n {
		n = len(impacts)
	}

	return Attribution{
		Slot:      e.slot,
		Top:       impacts[:n:n],
		Baseline:  baseline,
		RawOutput: raw,
		Sum:       sum,
	}, nil
}
