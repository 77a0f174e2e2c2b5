package ml

import (
	"errors"
	"fmt"
)

// TreeNode is one node of a fitted binary decision tree. Leaves have Feature == -1.
// Samples with row[Feature] <= Threshold go to Left.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Cover     float64 `json:"cover"`
}

// IsLeaf reports whether the node is terminal.
func (n TreeNode) IsLeaf() bool {
	return n.Feature < 0
}

// Tree is a flat node array rooted at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// validate checks structure against the feature count: child indices in range,
// children after their parent (no cycles) and strictly positive cover.
func (t *Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Cover <= 0 {
			return fmt.Errorf("node %d: cover must be positive, got %f", i, n.Cover)
		}
		if n.IsLeaf() {
			continue
		}
		if n.Feature >= numFeatures {
			return fmt.Errorf("node %d: feature index %d out of range [0,%d)", i, n.Feature, numFeatures)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

func (t *Tree) leafValue(row []float64) float64 {
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.IsLeaf() {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// expectedValue is the cover-weighted mean leaf value, the tree's output when no
// feature is known. Each branch is weighted by child cover over parent cover, the
// same fractions TreeSHAP uses.
func (t *Tree) expectedValue() float64 {
	return t.expectedFrom(0)
}

func (t *Tree) expectedFrom(idx int) float64 {
	n := t.Nodes[idx]
	if n.IsLeaf() {
		return n.Value
	}
	l, r := t.Nodes[n.Left], t.Nodes[n.Right]
	return l.Cover/n.Cover*t.expectedFrom(n.Left) + r.Cover/n.Cover*t.expectedFrom(n.Right)
}

// pathElement tracks one feature on the current root-to-node path for TreeSHAP.
type pathElement struct {
	feature  int
	zeroFrac float64
	oneFrac  float64
	weight   float64
}

// shap adds the exact path-dependent Shapley contributions of this tree for row
// into phi (Lundberg et al., Algorithm 2).
func (t *Tree) shap(row []float64, phi []float64) {
	t.recurse(row, phi, 0, nil, 1, 1, -1)
}

func (t *Tree) recurse(row, phi []float64, idx int, path []pathElement, zeroFrac, oneFrac float64, feature int) {
	path = extendPath(path, zeroFrac, oneFrac, feature)
	n := t.Nodes[idx]

	if n.IsLeaf() {
		for i := 1; i < len(path); i++ {
			w := sumWeights(unwindPath(path, i))
			el := path[i]
			phi[el.feature] += w * (el.oneFrac - el.zeroFrac) * n.Value
		}
		return
	}

	hot, cold := n.Left, n.Right
	if row[n.Feature] > n.Threshold {
		hot, cold = n.Right, n.Left
	}

	incomingZero, incomingOne := 1.0, 1.0
	for k := 1; k < len(path); k++ {
		if path[k].feature == n.Feature {
			incomingZero, incomingOne = path[k].zeroFrac, path[k].oneFrac
			path = unwindPath(path, k)
			break
		}
	}

	hotCover := t.Nodes[hot].Cover
	coldCover := t.Nodes[cold].Cover
	t.recurse(row, phi, hot, path, incomingZero*hotCover/n.Cover, incomingOne, n.Feature)
	t.recurse(row, phi, cold, path, incomingZero*coldCover/n.Cover, 0, n.Feature)
}

func extendPath(path []pathElement, zeroFrac, oneFrac float64, feature int) []pathElement {
	l := len(path)
	out := make([]pathElement, l+1)
	copy(out, path)

	w := 0.0
	if l == 0 {
		w = 1
	}
	out[l] = pathElement{feature: feature, zeroFrac: zeroFrac, oneFrac: oneFrac, weight: w}

	for i := l - 1; i >= 0; i-- {
		out[i+1].weight += oneFrac * out[i].weight * float64(i+1) / float64(l+1)
		out[i].weight = zeroFrac * out[i].weight * float64(l-i) / float64(l+1)
	}
	return out
}

// unwindPath undoes the extension of element i, returning a new shorter path.
func unwindPath(path []pathElement, i int) []pathElement {
	l := len(path) - 1
	oneFrac := path[i].oneFrac
	zeroFrac := path[i].zeroFrac

	out := make([]pathElement, l)
	copy(out, path[:l])

	next := path[l].weight
	for j := l - 1; j >= 0; j-- {
		if oneFrac != 0 {
			tmp := out[j].weight
			out[j].weight = next * float64(l+1) / (float64(j+1) * oneFrac)
			next = tmp - out[j].weight*zeroFrac*float64(l-j)/float64(l+1)
		} else {
			out[j].weight = out[j].weight * float64(l+1) / (zeroFrac * float64(l-j))
		}
	}

	for j := i; j < l; j++ {
		out[j].feature = path[j+1].feature
		out[j].zeroFrac = path[j+1].zeroFrac
		out[j].oneFrac = path[j+1].oneFrac
	}
	return out
}

func sumWeights(path []pathElement) float64 {
	total := 0.0
	for _, el := range path {
		total += el.weight
	}
	return total
}
