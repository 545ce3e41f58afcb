package model

import (
	"fmt"

	"github.com/Skufu/HeartGuard/internal/features"
)

const leaf = -1

// Tree is one decision tree in scikit-learn's flattened layout. Node i is a
// leaf when ChildrenLeft[i] == -1; Value[i] holds its per-class weights.
type Tree struct {
	ChildrenLeft  []int        `json:"children_left" yaml:"children_left"`
	ChildrenRight []int        `json:"children_right" yaml:"children_right"`
	Feature       []int        `json:"feature" yaml:"feature"`
	Threshold     []float64    `json:"threshold" yaml:"threshold"`
	Value         [][2]float64 `json:"value" yaml:"value"`
}

// Forest averages the class probabilities of its trees.
type Forest struct {
	Trees []Tree
}

// NewForest validates the tree structure before returning a usable forest.
func NewForest(trees []Tree) (*Forest, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	for i := range trees {
		if err := trees[i].validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &Forest{Trees: trees}, nil
}

// Predict returns the class with the highest mean probability. Ties go to 0.
func (f *Forest) Predict(v features.Vector) (int, error) {
	probs, err := f.PredictProbability(v)
	if err != nil {
		return 0, err
	}
	if probs[1] > probs[0] {
		return 1, nil
	}
	return 0, nil
}

// PredictProbability returns [p0, p1] averaged over all trees.
func (f *Forest) PredictProbability(v features.Vector) ([2]float64, error) {
	var sum [2]float64
	for i := range f.Trees {
		p, err := f.Trees[i].probability(v)
		if err != nil {
			return [2]float64{}, fmt.Errorf("tree %d: %w", i, err)
		}
		sum[0] += p[0]
		sum[1] += p[1]
	}
	n := float64(len(f.Trees))
	return [2]float64{sum[0] / n, sum[1] / n}, nil
}

func (t *Tree) probability(v features.Vector) ([2]float64, error) {
	node := 0
	// A valid tree reaches a leaf in at most len(nodes) steps.
	for steps := 0; steps <= len(t.ChildrenLeft); steps++ {
		if t.ChildrenLeft[node] == leaf {
			w := t.Value[node]
			total := w[0] + w[1]
			if total <= 0 {
				return [2]float64{}, fmt.Errorf("node %d: empty leaf", node)
			}
			return [2]float64{w[0] / total, w[1] / total}, nil
		}
		if v[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return [2]float64{}, fmt.Errorf("cycle detected")
}

func (t *Tree) validate() error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf {
			if r != leaf {
				return fmt.Errorf("node %d: half leaf", i)
			}
			if t.Value[i][0] < 0 || t.Value[i][1] < 0 || t.Value[i][0]+t.Value[i][1] <= 0 {
				return fmt.Errorf("node %d: invalid leaf value", i)
			}
			continue
		}
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d: child index out of range", i)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= features.Size {
			return fmt.Errorf("node %d: feature %d out of range", i, t.Feature[i])
		}
	}
	return nil
}
