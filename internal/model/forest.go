package model

import "fmt"

// Forest is an ensemble of binary decision trees. Predictions average the
// class distributions of the leaves each tree reaches.
type Forest struct {
	Trees []Tree `json:"trees"`
}

// Tree stores its nodes flat; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split when Feature >= 0 and a leaf otherwise. Samples with
// x[Feature] <= Threshold go Left.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Value     []float64 `json:"v,omitempty"`
}

// Leaf reports whether n is a leaf.
func (n Node) Leaf() bool { return n.Feature < 0 }

// Proba returns the mean class distribution over all trees.
func (f *Forest) Proba(x []float64, numClasses int) ([]float64, error) {
	out := make([]float64, numClasses)
	for i := range f.Trees {
		leaf, err := f.Trees[i].leaf(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		for c := 0; c < numClasses && c < len(leaf.Value); c++ {
			out[c] += leaf.Value[c]
		}
	}
	n := float64(len(f.Trees))
	for c := range out {
		out[c] /= n
	}
	return out, nil
}

func (t *Tree) leaf(x []float64) (Node, error) {
	if len(t.Nodes) == 0 {
		return Node{}, fmt.Errorf("empty tree")
	}
	i := 0
	// A well-formed tree reaches a leaf in at most len(Nodes) steps.
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.Leaf() {
			return n, nil
		}
		if n.Feature >= len(x) {
			return Node{}, fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, len(x))
		}
		next := n.Right
		if x[n.Feature] <= n.Threshold {
			next = n.Left
		}
		if next <= 0 || next >= len(t.Nodes) {
			return Node{}, fmt.Errorf("node %d points at %d", i, next)
		}
		i = next
	}
	return Node{}, fmt.Errorf("cycle detected")
}

type forestBackend struct {
	forest     *Forest
	numClasses int
}

func (b *forestBackend) Predict(x []float64) (int, []float64, error) {
	proba, err := b.forest.Proba(x, b.numClasses)
	if err != nil {
		return 0, nil, err
	}
	return argmax(proba), proba, nil
}

func (b *forestBackend) Close() error { return nil }

func argmax(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}
