package ml

import "time"

// DemoFeatures is the BRFSS diabetes-indicator column order used by the demo bank.
var DemoFeatures = []string{
	"HighBP", "HighChol", "CholCheck", "BMI", "Smoker", "Stroke",
	"HeartDiseaseorAttack", "PhysActivity", "Fruits", "Veggies",
	"HvyAlcoholConsump", "AnyHealthcare", "NoDocbcCost", "GenHlth",
	"MentHlth", "PhysHlth", "DiffWalk", "Sex", "Age", "Education", "Income",
}

const (
	fHighBP   = 0
	fHighChol = 1
	fBMI      = 3
	fGenHlth  = 13
	fDiffWalk = 16
	fAge      = 18
)

var (
	demoMean = []float64{
		0.43, 0.42, 0.96, 28.4, 0.44, 0.04, 0.09, 0.76, 0.63, 0.81, 0.06,
		0.95, 0.08, 2.51, 3.18, 4.24, 0.17, 0.44, 8.03, 5.05, 6.05,
	}
	demoScale = []float64{
		0.49, 0.49, 0.19, 6.6, 0.5, 0.2, 0.29, 0.43, 0.48, 0.39, 0.23,
		0.22, 0.28, 1.07, 7.41, 8.72, 0.37, 0.5, 3.05, 0.99, 2.07,
	}
	demoLinearCoef = []float64{
		0.38, 0.28, 0.12, 0.45, 0.01, 0.03, 0.06, -0.02, -0.01, -0.01, -0.08,
		0.01, 0.01, 0.55, -0.02, -0.05, 0.04, 0.13, 0.42, -0.04, -0.10,
	}
)

func leaf(value, cover float64) TreeNode {
	return TreeNode{Feature: -1, Value: value, Cover: cover}
}

func split(feature int, threshold float64, left, right int, cover float64) TreeNode {
	return TreeNode{Feature: feature, Threshold: threshold, Left: left, Right: right, Cover: cover}
}

// demoProfile is a raw (unscaled) row built from the population means with a
// few columns overridden.
func demoProfile(overrides map[int]float64) []float64 {
	row := append([]float64(nil), demoMean...)
	for i, v := range overrides {
		row[i] = v
	}
	return row
}

// NewDemoBank builds a small hand-parameterised bank over DemoFeatures. It is
// not trained on data; it exists so the service can run end to end and so
// tests have a realistic bank with every classifier kind in it.
func NewDemoBank() (*Bank, error) {
	n := len(DemoFeatures)

	scaler, err := NewScaler(demoMean, demoScale)
	if err != nil {
		return nil, err
	}

	forest, err := NewRandomForest(n, []Tree{
		{Nodes: []TreeNode{
			split(fBMI, 30, 1, 4, 1000),
			split(fHighBP, 0.5, 2, 3, 600),
			leaf(0.08, 350),
			leaf(0.30, 250),
			split(fGenHlth, 3, 5, 6, 400),
			leaf(0.35, 220),
			leaf(0.62, 180),
		}},
		{Nodes: []TreeNode{
			split(fAge, 9, 1, 4, 1000),
			split(fHighChol, 0.5, 2, 3, 550),
			leaf(0.07, 300),
			leaf(0.22, 250),
			split(fBMI, 27, 5, 6, 450),
			leaf(0.28, 180),
			leaf(0.55, 270),
		}},
		{Nodes: []TreeNode{
			split(fGenHlth, 2, 1, 2, 1000),
			leaf(0.10, 450),
			split(fHighBP, 0.5, 3, 4, 550),
			leaf(0.25, 230),
			split(fDiffWalk, 0.5, 5, 6, 320),
			leaf(0.45, 200),
			leaf(0.68, 120),
		}},
	})
	if err != nil {
		return nil, err
	}

	boosted, err := NewGradientBoosting(n, -1.8, 0.5, []Tree{
		{Nodes: []TreeNode{
			split(fHighBP, 0.5, 1, 2, 1000),
			leaf(-0.6, 570),
			split(fBMI, 30, 3, 4, 430),
			leaf(0.5, 250),
			leaf(1.2, 180),
		}},
		{Nodes: []TreeNode{
			split(fAge, 8, 1, 2, 1000),
			leaf(-0.4, 500),
			leaf(0.7, 500),
		}},
		{Nodes: []TreeNode{
			split(fGenHlth, 3, 1, 4, 1000),
			split(fHighChol, 0.5, 2, 3, 700),
			leaf(-0.3, 380),
			leaf(0.2, 320),
			leaf(0.9, 300),
		}},
	})
	if err != nil {
		return nil, err
	}

	linear, err := NewLogisticRegression(demoLinearCoef, -1.35)
	if err != nil {
		return nil, err
	}

	neighbor, err := demoNeighbor(scaler)
	if err != nil {
		return nil, err
	}

	stacked, err := demoStacking(n, scaler)
	if err != nil {
		return nil, err
	}

	return NewBank(BankParts{
		Version:   "demo-1",
		TrainedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Features:  DemoFeatures,
		Scaler:    scaler,
		Classifiers: map[Slot]Classifier{
			SlotTreeA:    forest,
			SlotTreeB:    boosted,
			SlotStacked:  stacked,
			SlotLinear:   linear,
			SlotNeighbor: neighbor,
		},
	})
}

func demoNeighbor(scaler *Scaler) (*KNN, error) {
	profiles := []struct {
		row   []float64
		label int
	}{
		{demoProfile(map[int]float64{fHighBP: 0, fHighChol: 0, fBMI: 23, fGenHlth: 1, fAge: 4}), 0},
		{demoProfile(map[int]float64{fHighBP: 0, fHighChol: 0, fBMI: 25, fGenHlth: 2, fAge: 6}), 0},
		{demoProfile(map[int]float64{fHighBP: 0, fHighChol: 1, fBMI: 26, fGenHlth: 2, fAge: 9}), 0},
		{demoProfile(map[int]float64{fHighBP: 1, fHighChol: 0, fBMI: 27, fGenHlth: 3, fAge: 7}), 0},
		{demoProfile(map[int]float64{fHighBP: 1, fHighChol: 1, fBMI: 31, fGenHlth: 3, fAge: 10}), 1},
		{demoProfile(map[int]float64{fHighBP: 1, fHighChol: 1, fBMI: 35, fGenHlth: 4, fAge: 11}), 1},
		{demoProfile(map[int]float64{fHighBP: 1, fHighChol: 1, fBMI: 38, fGenHlth: 5, fAge: 12, fDiffWalk: 1}), 1},
		{demoProfile(map[int]float64{fHighBP: 0, fHighChol: 1, fBMI: 33, fGenHlth: 4, fAge: 10}), 1},
	}

	k := &KNN{K: 5, Weights: "distance"}
	for _, p := range profiles {
		scaled, err := scaler.Transform(p.row)
		if err != nil {
			return nil, err
		}
		k.Points = append(k.Points, scaled)
		k.Labels = append(k.Labels, p.label)
	}
	if err := k.validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func demoStacking(n int, scaler *Scaler) (*Stacking, error) {
	coef := make([]float64, n)
	for i, c := range demoLinearCoef {
		coef[i] = 0.8 * c
	}
	inner, err := NewLogisticRegression(coef, -1.2)
	if err != nil {
		return nil, err
	}
	scaledLinear, err := NewPipeline(scaler, inner)
	if err != nil {
		return nil, err
	}

	nb := &GaussianNB{Priors: [2]float64{0.86, 0.14}}
	nb.Means[0] = append([]float64(nil), demoMean...)
	nb.Means[1] = demoProfile(map[int]float64{fHighBP: 0.75, fHighChol: 0.67, fBMI: 31.9, fGenHlth: 3.29, fAge: 9.38, fDiffWalk: 0.37})
	nb.Variances[0] = make([]float64, n)
	nb.Variances[1] = make([]float64, n)
	for i, s := range demoScale {
		nb.Variances[0][i] = s * s
		nb.Variances[1][i] = s * s
	}
	if err := nb.validate(); err != nil {
		return nil, err
	}

	final, err := NewLogisticRegression([]float64{2.4, 1.6}, -2.0)
	if err != nil {
		return nil, err
	}
	return NewStacking(n, []Classifier{scaledLinear, nb}, final, false)
}
