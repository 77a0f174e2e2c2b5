package ml

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// KNN is a k-nearest-neighbour classifier over stored (already scaled) training
// points with Euclidean distance. With Weights == "distance" neighbours vote by
// inverse distance; an exact match takes the whole vote.
type KNN struct {
	K       int         `json:"k"`
	Points  [][]float64 `json:"points"`
	Labels  []int       `json:"labels"`
	Weights string      `json:"weights,omitempty"`
}

func (k *KNN) validate() error {
	if len(k.Points) == 0 {
		return errors.New("knn: no stored points")
	}
	if len(k.Points) != len(k.Labels) {
		return fmt.Errorf("knn: %d points but %d labels", len(k.Points), len(k.Labels))
	}
	if k.K < 1 || k.K > len(k.Points) {
		return fmt.Errorf("knn: k=%d outside [1,%d]", k.K, len(k.Points))
	}
	if k.Weights != "" && k.Weights != "uniform" && k.Weights != "distance" {
		return fmt.Errorf("knn: unknown weights %q", k.Weights)
	}
	n := len(k.Points[0])
	for i, p := range k.Points {
		if len(p) != n {
			return fmt.Errorf("knn: point %d has %d features, want %d", i, len(p), n)
		}
		if k.Labels[i] != 0 && k.Labels[i] != 1 {
			return fmt.Errorf("knn: label %d must be 0 or 1", i)
		}
	}
	return nil
}

func (k *KNN) Kind() string     { return KindKNN }
func (k *KNN) NumFeatures() int { return len(k.Points[0]) }

type neighbour struct {
	idx  int
	dist float64
}

func (k *KNN) PredictProba(row []float64) (float64, error) {
	if err := checkRow(KindKNN, row, k.NumFeatures()); err != nil {
		return 0, err
	}

	ns := make([]neighbour, len(k.Points))
	for i, p := range k.Points {
		ns[i] = neighbour{idx: i, dist: floats.Distance(row, p, 2)}
	}
	// stable so equidistant points keep training order
	sort.SliceStable(ns, func(a, b int) bool { return ns[a].dist < ns[b].dist })
	ns = ns[:k.K]

	if k.Weights == "distance" {
		for _, n := range ns {
			if n.dist == 0 {
				// exact matches dominate, as in inverse-distance voting
				pos, total := 0.0, 0.0
				for _, m := range ns {
					if m.dist == 0 {
						total++
						pos += float64(k.Labels[m.idx])
					}
				}
				return checkProbability(KindKNN, pos/total)
			}
		}
		pos, total := 0.0, 0.0
		for _, n := range ns {
			w := 1 / n.dist
			total += w
			pos += w * float64(k.Labels[n.idx])
		}
		return checkProbability(KindKNN, pos/total)
	}

	pos := 0
	for _, n := range ns {
		pos += k.Labels[n.idx]
	}
	return checkProbability(KindKNN, float64(pos)/float64(len(ns)))
}
