package gbm

import (
	"math/rand"
	"sort"
)

// Node is one entry of a flattened regression tree. Internal nodes send a
// row left when x[Feature] < Threshold.
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

// Tree stores nodes in pre-order; the root is index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// treeBuilder grows one tree against fixed gradients. Hessians are all 1
// under squared error so the hessian sum of a node is its row count.
type treeBuilder struct {
	x      [][]float64
	grad   []float64
	params Params
	rng    *rand.Rand
	nodes  []Node
	levels map[int][]int
}

func (b *treeBuilder) build(rows, cols []int) Tree {
	b.nodes = b.nodes[:0]
	b.levels = make(map[int][]int)
	b.grow(rows, cols, 0)
	nodes := make([]Node, len(b.nodes))
	copy(nodes, b.nodes)
	return Tree{Nodes: nodes}
}

func (b *treeBuilder) grow(rows, cols []int, depth int) int {
	var g float64
	for _, r := range rows {
		g += b.grad[r]
	}
	h := float64(len(rows))

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Leaf:  true,
		Value: b.params.LearningRate * leafWeight(g, h, b.params),
	})
	if depth >= b.params.MaxDepth || len(rows) < 2 {
		return idx
	}

	best, ok := b.bestSplit(rows, b.levelColumns(cols, depth), g, h)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.x[r][best.feature] < best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, cols, depth+1)
	r := b.grow(right, cols, depth+1)
	b.nodes[idx] = Node{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r}
	return idx
}

// levelColumns samples colsample_bylevel of the tree's columns once per depth
func (b *treeBuilder) levelColumns(cols []int, depth int) []int {
	if b.params.ColsampleByLevel >= 1 {
		return cols
	}
	if c, ok := b.levels[depth]; ok {
		return c
	}
	c := sampleIndices(b.rng, cols, b.params.ColsampleByLevel)
	b.levels[depth] = c
	return c
}

func (b *treeBuilder) bestSplit(rows, cols []int, g, h float64) (split, bool) {
	parent := structureScore(g, h, b.params)
	best := split{}
	found := false

	sorted := make([]int, len(rows))
	for _, f := range cols {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})

		var gl, hl float64
		for i := 0; i < len(sorted)-1; i++ {
			gl += b.grad[sorted[i]]
			hl++
			cur, next := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if cur == next {
				continue
			}
			hr := h - hl
			if hl < b.params.MinChildWeight || hr < b.params.MinChildWeight {
				continue
			}
			gain := 0.5*(structureScore(gl, hl, b.params)+structureScore(g-gl, hr, b.params)-parent) - b.params.Gamma
			if gain > best.gain {
				best = split{feature: f, threshold: (cur + next) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func softThreshold(g, alpha float64) float64 {
	switch {
	case g > alpha:
		return g - alpha
	case g < -alpha:
		return g + alpha
	}
	return 0
}

func structureScore(g, h float64, p Params) float64 {
	t := softThreshold(g, p.RegAlpha)
	return t * t / (h + p.RegLambda)
}

func leafWeight(g, h float64, p Params) float64 {
	return -softThreshold(g, p.RegAlpha) / (h + p.RegLambda)
}

// sampleIndices keeps round(len(from)*ratio) entries, at least one, in
// ascending order.
func sampleIndices(rng *rand.Rand, from []int, ratio float64) []int {
	if ratio >= 1 {
		return from
	}
	k := int(float64(len(from))*ratio + 0.5)
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(len(from))[:k]
	sort.Ints(perm)
	out := make([]int, k)
	for i, p := range perm {
		out[i] = from[p]
	}
	return out
}
