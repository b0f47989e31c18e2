package models

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const leaf = -1

// node is one entry of a flattened regression tree. Leaves have Feature set
// to leaf; split nodes send rows with x[Feature] <= Threshold to Left.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// validate checks that child links point forward within the tree, which also
// rules out cycles.
func (t *tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature == leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, width)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children (%d, %d)", i, n.Left, n.Right)
		}
	}
	return nil
}

// grower builds one tree. It is not safe for concurrent use.
type grower struct {
	cfg   ForestConfig
	x     [][]float64
	y     []float64
	width int
	rng   *rand.Rand
	nodes []node

	// gain accumulates the squared error removed by splits on each feature.
	gain []float64
}

func (g *grower) grow(sample []int) tree {
	g.nodes = g.nodes[:0]
	g.build(sample, 0)
	return tree{Nodes: slices.Clone(g.nodes)}
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

func (g *grower) build(idx []int, depth int) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, node{Feature: leaf, Value: g.mean(idx)})

	if len(idx) < g.cfg.MinSamplesSplit || len(idx) < 2*g.cfg.MinSamplesLeaf {
		return id
	}
	if g.cfg.MaxDepth > 0 && depth >= g.cfg.MaxDepth {
		return id
	}

	best, ok := g.bestSplit(idx)
	if !ok {
		return id
	}
	g.gain[best.feature] += best.gain

	left := g.build(best.left, depth+1)
	right := g.build(best.right, depth+1)
	g.nodes[id] = node{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      left,
		Right:     right,
		Value:     g.nodes[id].Value,
	}
	return id
}

func (g *grower) mean(idx []int) float64 {
	vals := make([]float64, len(idx))
	for i, j := range idx {
		vals[i] = g.y[j]
	}
	return stat.Mean(vals, nil)
}

// candidates returns the features to evaluate at one node.
func (g *grower) candidates() []int {
	if g.cfg.MaxFeatures <= 0 || g.cfg.MaxFeatures >= g.width {
		feats := make([]int, g.width)
		for i := range feats {
			feats[i] = i
		}
		return feats
	}
	return g.rng.Perm(g.width)[:g.cfg.MaxFeatures]
}

// bestSplit scans every candidate feature for the threshold that minimises
// the children's summed squared error. Ties keep the first split found.
func (g *grower) bestSplit(idx []int) (split, bool) {
	n := len(idx)
	var total, totalSq float64
	for _, j := range idx {
		total += g.y[j]
		totalSq += g.y[j] * g.y[j]
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return split{}, false
	}

	best := split{feature: leaf}
	order := make([]int, n)
	minLeaf := g.cfg.MinSamplesLeaf

	for _, feat := range g.candidates() {
		copy(order, idx)
		slices.SortFunc(order, func(a, b int) int {
			if c := compare(g.x[a][feat], g.x[b][feat]); c != 0 {
				return c
			}
			return a - b
		})

		var leftSum, leftSq float64
		for i := 0; i < n-1; i++ {
			yi := g.y[order[i]]
			leftSum += yi
			leftSq += yi * yi

			nl := i + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo, hi := g.x[order[i]][feat], g.x[order[i+1]][feat]
			if lo == hi {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			gain := parentSSE - sse
			if gain > best.gain+1e-12 {
				best.feature = feat
				best.threshold = lo + (hi-lo)/2
				if best.threshold >= hi {
					best.threshold = lo
				}
				best.gain = gain
			}
		}
	}

	if best.feature == leaf {
		return split{}, false
	}

	for _, j := range idx {
		if g.x[j][best.feature] <= best.threshold {
			best.left = append(best.left, j)
		} else {
			best.right = append(best.right, j)
		}
	}
	return best, true
}

func compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
