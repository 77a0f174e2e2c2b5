package ml

import (
	"errors"
	"fmt"
)

// RandomForest averages the positive-class probability stored in each tree's leaves.
type RandomForest struct {
	Trees       []Tree `json:"trees"`
	NFeatures   int    `json:"n_features"`
	baselineVal float64
}

// NewRandomForest validates the trees and precomputes the attribution baseline.
func NewRandomForest(numFeatures int, trees []Tree) (*RandomForest, error) {
	rf := &RandomForest{Trees: trees, NFeatures: numFeatures}
	if err := rf.init(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RandomForest) init() error {
	if len(rf.Trees) == 0 {
		return errors.New("random_forest: no trees")
	}
	total := 0.0
	for i := range rf.Trees {
		if err := rf.Trees[i].validate(rf.NFeatures); err != nil {
			return fmt.Errorf("random_forest: tree %d: %w", i, err)
		}
		for j, n := range rf.Trees[i].Nodes {
			if n.IsLeaf() && (n.Value < 0 || n.Value > 1) {
				return fmt.Errorf("random_forest: tree %d node %d: leaf value %f is not a probability", i, j, n.Value)
			}
		}
		total += rf.Trees[i].expectedValue()
	}
	rf.baselineVal = total / float64(len(rf.Trees))
	return nil
}

func (rf *RandomForest) Kind() string     { return KindRandomForest }
func (rf *RandomForest) NumFeatures() int { return rf.NFeatures }

func (rf *RandomForest) PredictProba(row []float64) (float64, error) {
	raw, err := rf.RawOutput(row)
	if err != nil {
		return 0, err
	}
	return checkProbability(KindRandomForest, raw)
}

func (rf *RandomForest) RawOutput(row []float64) (float64, error) {
	if err := checkRow(KindRandomForest, row, rf.NFeatures); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range rf.Trees {
		sum += rf.Trees[i].leafValue(row)
	}
	return sum / float64(len(rf.Trees)), nil
}

func (rf *RandomForest) Contributions(row []float64) ([]float64, float64, error) {
	if err := checkRow(KindRandomForest, row, rf.NFeatures); err != nil {
		return nil, 0, err
	}
	phi := make([]float64, rf.NFeatures)
	for i := range rf.Trees {
		rf.Trees[i].shap(row, phi)
	}
	scale := 1.0 / float64(len(rf.Trees))
	for i := range phi {
		phi[i] *= scale
	}
	return phi, rf.baselineVal, nil
}

// GradientBoosting is a binary boosted-tree model in log-odds space:
// margin = Init + LearningRate * sum(leaf values), probability = sigmoid(margin).
type GradientBoosting struct {
	Trees        []Tree  `json:"trees"`
	Init         float64 `json:"init"`
	LearningRate float64 `json:"learning_rate"`
	NFeatures    int     `json:"n_features"`
	baselineVal  float64
}

// NewGradientBoosting validates the trees and precomputes the attribution baseline.
func NewGradientBoosting(numFeatures int, init, learningRate float64, trees []Tree) (*GradientBoosting, error) {
	gb := &GradientBoosting{Trees: trees, Init: init, LearningRate: learningRate, NFeatures: numFeatures}
	if err := gb.init(); err != nil {
		return nil, err
	}
	return gb, nil
}

func (gb *GradientBoosting) init() error {
	if len(gb.Trees) == 0 {
		return errors.New("gradient_boosting: no trees")
	}
	if gb.LearningRate <= 0 {
		return fmt.Errorf("gradient_boosting: learning rate must be positive, got %f", gb.LearningRate)
	}
	total := 0.0
	for i := range gb.Trees {
		if err := gb.Trees[i].validate(gb.NFeatures); err != nil {
			return fmt.Errorf("gradient_boosting: tree %d: %w", i, err)
		}
		total += gb.Trees[i].expectedValue()
	}
	gb.baselineVal = gb.Init + gb.LearningRate*total
	return nil
}

func (gb *GradientBoosting) Kind() string     { return KindGradientBoosting }
func (gb *GradientBoosting) NumFeatures() int { return gb.NFeatures }

func (gb *GradientBoosting) PredictProba(row []float64) (float64, error) {
	margin, err := gb.RawOutput(row)
	if err != nil {
		return 0, err
	}
	return checkProbability(KindGradientBoosting, sigmoid(margin))
}

func (gb *GradientBoosting) RawOutput(row []float64) (float64, error) {
	if err := checkRow(KindGradientBoosting, row, gb.NFeatures); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range gb.Trees {
		sum += gb.Trees[i].leafValue(row)
	}
	return gb.Init + gb.LearningRate*sum, nil
}

func (gb *GradientBoosting) Contributions(row []float64) ([]float64, float64, error) {
	if err := checkRow(KindGradientBoosting, row, gb.NFeatures); err != nil {
		return nil, 0, err
	}
	phi := make([]float64, gb.NFeatures)
	for i := range gb.Trees {
		gb.Trees[i].shap(row, phi)
	}
	for i := range phi {
		phi[i] *= gb.LearningRate
	}
	return phi, gb.baselineVal, nil
}
