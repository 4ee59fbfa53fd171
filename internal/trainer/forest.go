package trainer

import (
	"math"
	"math/rand"
	"sort"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/model"
)

// ForestParams are the random forest hyper-parameters.
type ForestParams struct {
	Trees    int
	MaxDepth int
	MinSplit int
	Seed     int64
}

// fitForest grows params.Trees CART trees on bootstrap resamples of (x, y),
// each split considering sqrt(features) random candidates. importance is
// the mean normalised Gini decrease per feature.
func fitForest(x [][]float64, y []int, numClasses int, params ForestParams) (*model.Forest, []float64) {
	numFeatures := 0
	if len(x) > 0 {
		numFeatures = len(x[0])
	}
	mtry := int(math.Max(1, math.Floor(math.Sqrt(float64(numFeatures)))))
	rng := rand.New(rand.NewSource(params.Seed))

	forest := &model.Forest{Trees: make([]model.Tree, 0, params.Trees)}
	importance := make([]float64, numFeatures)
	for t := 0; t < params.Trees; t++ {
		idx := make([]int, len(x))
		for i := range idx {
			idx[i] = rng.Intn(len(x))
		}
		b := &treeBuilder{
			x:          x,
			y:          y,
			numClasses: numClasses,
			maxDepth:   params.MaxDepth,
			minSplit:   params.MinSplit,
			mtry:       mtry,
			rng:        rng,
			importance: make([]float64, numFeatures),
		}
		b.grow(idx, 0)
		forest.Trees = append(forest.Trees, model.Tree{Nodes: b.nodes})

		var total float64
		for _, v := range b.importance {
			total += v
		}
		if total > 0 {
			for f, v := range b.importance {
				importance[f] += v / total
			}
		}
	}
	for f := range importance {
		importance[f] /= float64(max(1, params.Trees))
	}
	return forest, importance
}

type treeBuilder struct {
	x          [][]float64
	y          []int
	numClasses int
	maxDepth   int
	minSplit   int
	mtry       int
	rng        *rand.Rand
	importance []float64
	nodes      []model.Node
}

// grow appends the subtree for idx in preorder and returns its root index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	at := len(b.nodes)
	b.nodes = append(b.nodes, model.Node{Feature: -1})

	counts := b.counts(idx)
	if depth >= b.maxDepth || len(idx) < b.minSplit || pure(counts) {
		b.nodes[at].Value = distribution(counts, len(idx))
		return at
	}

	feature, threshold, gain := b.bestSplit(idx, counts)
	if feature < 0 {
		b.nodes[at].Value = distribution(counts, len(idx))
		return at
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[feature] += gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[at] = model.Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return at
}

// bestSplit returns the candidate split with the largest weighted Gini
// decrease, or feature -1 when no split improves on the parent.
func (b *treeBuilder) bestSplit(idx []int, parent []int) (int, float64, float64) {
	n := float64(len(idx))
	parentImpurity := gini(parent, len(idx))

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	candidates := b.rng.Perm(len(b.x[0]))[:b.mtry]

	sorted := make([]int, len(idx))
	for _, f := range candidates {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

		left := make([]int, b.numClasses)
		right := append([]int(nil), parent...)
		for k := 0; k < len(sorted)-1; k++ {
			c := b.y[sorted[k]]
			left[c]++
			right[c]--

			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nl, nr := k+1, len(sorted)-k-1
			impurity := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / n
			if gain := (parentImpurity - impurity) * n; gain > bestGain+1e-12 {
				bestFeature, bestThreshold, bestGain = f, (lo+hi)/2, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func (b *treeBuilder) counts(idx []int) []int {
	c := make([]int, b.numClasses)
	for _, i := range idx {
		c[b.y[i]]++
	}
	return c
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func pure(counts []int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func distribution(counts []int, n int) []float64 {
	out := make([]float64, len(counts))
	if n == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = float64(c) / float64(n)
	}
	return out
}
