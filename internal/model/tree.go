package model

import (
	"math"
	"math/rand"
	"sort"
)

// node is one CART node. Leaves have Left == -1 and carry Value: class
// proportions in classification trees, a single estimate in regression trees.
type node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t"`
	Left      int       `json:"l"`
	Right     int       `json:"r"`
	Value     []float64 `json:"v,omitempty"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// leaf returns the index of the leaf that x falls into.
func (t *tree) leaf(x []float64) int {
	i := 0
	for t.Nodes[i].Left >= 0 {
		n := &t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

func (t *tree) predict(x []float64) []float64 {
	return t.Nodes[t.leaf(x)].Value
}

// treeBuilder grows one tree. classes > 0 selects gini splits with class
// proportion leaves; classes == 0 selects variance splits with mean leaves.
type treeBuilder struct {
	maxDepth       int // 0 means unlimited
	minSplit       int
	minLeaf        int
	maxFeatures    int // 0 means all
	classes        int
	rng            *rand.Rand
	X              [][]float64
	y              []float64
	nodes          []node
	featureIndices []int
}

func (b *treeBuilder) build(idx []int) tree {
	b.nodes = b.nodes[:0]
	b.featureIndices = make([]int, len(b.X[0]))
	for i := range b.featureIndices {
		b.featureIndices[i] = i
	}
	b.grow(idx, 0)
	return tree{Nodes: append([]node(nil), b.nodes...)}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{Left: -1, Right: -1})

	if (b.maxDepth > 0 && depth >= b.maxDepth) || len(idx) < b.minSplit || len(idx) < 2*b.minLeaf || b.pure(idx) {
		b.nodes[id].Value = b.leafValue(idx)
		return id
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		b.nodes[id].Value = b.leafValue(idx)
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		b.nodes[id].Value = b.leafValue(idx)
		return id
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

func (b *treeBuilder) leafValue(idx []int) []float64 {
	if b.classes > 0 {
		v := make([]float64, b.classes)
		for _, i := range idx {
			v[int(b.y[i])]++
		}
		for c := range v {
			v[c] /= float64(len(idx))
		}
		return v
	}
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return []float64{sum / float64(len(idx))}
}

// candidates returns the features examined at one node.
func (b *treeBuilder) candidates() []int {
	if b.maxFeatures <= 0 || b.maxFeatures >= len(b.featureIndices) {
		return b.featureIndices
	}
	b.rng.Shuffle(len(b.featureIndices), func(i, j int) {
		b.featureIndices[i], b.featureIndices[j] = b.featureIndices[j], b.featureIndices[i]
	})
	return b.featureIndices[:b.maxFeatures]
}

// bestSplit maximizes the impurity decrease. For gini that is maximizing
// sum(count^2)/n over both children; for variance it is sum^2/n.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	parent := b.score(idx)
	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, n)
	var leftCounts, rightCounts []float64
	if b.classes > 0 {
		leftCounts = make([]float64, b.classes)
		rightCounts = make([]float64, b.classes)
	}

	for _, f := range b.candidates() {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })
		if b.X[sorted[0]][f] == b.X[sorted[n-1]][f] {
			continue
		}

		var leftSum, rightSum, leftSq, rightSq float64
		if b.classes > 0 {
			for c := range leftCounts {
				leftCounts[c], rightCounts[c] = 0, 0
			}
			for _, i := range sorted {
				rightCounts[int(b.y[i])]++
			}
			for _, c := range rightCounts {
				rightSq += c * c
			}
		} else {
			for _, i := range sorted {
				rightSum += b.y[i]
			}
		}

		for k := 0; k < n-1; k++ {
			i := sorted[k]
			if b.classes > 0 {
				c := int(b.y[i])
				leftSq += 2*leftCounts[c] + 1
				rightSq -= 2*rightCounts[c] - 1
				leftCounts[c]++
				rightCounts[c]--
			} else {
				leftSum += b.y[i]
				rightSum -= b.y[i]
			}

			nl := k + 1
			nr := n - nl
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			cur, next := b.X[i][f], b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}

			var s float64
			if b.classes > 0 {
				s = leftSq/float64(nl) + rightSq/float64(nr)
			} else {
				s = leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			}
			if gain := s - parent; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (b *treeBuilder) score(idx []int) float64 {
	n := float64(len(idx))
	if b.classes > 0 {
		counts := make([]float64, b.classes)
		for _, i := range idx {
			counts[int(b.y[i])]++
		}
		var sq float64
		for _, c := range counts {
			sq += c * c
		}
		return sq / n
	}
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum * sum / n
}

// sqrtFeatures is the classification default for features per split.
func sqrtFeatures(p int) int {
	return max(1, int(math.Sqrt(float64(p))))
}
