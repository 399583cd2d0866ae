package modeling

import (
	"math/rand"
	"sort"
)

type treeConfig struct {
	// classes is the number of target classes, zero for regression.
	classes     int
	maxFeatures int
	maxDepth    int
}

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	leaf      bool
	// value holds class probabilities, or a single mean for regression.
	value []float64
}

// tree is a CART decision tree using gini impurity for classification
// and variance for regression.
type tree struct {
	cfg        treeConfig
	nodes      []node
	importance []float64
}

func growTree(x [][]float64, y []float64, rows []int, cfg treeConfig, rng *rand.Rand) *tree {
	width := 0
	if len(x) > 0 {
		width = len(x[0])
	}
	if cfg.maxFeatures <= 0 || cfg.maxFeatures > width {
		cfg.maxFeatures = width
	}
	t := &tree{cfg: cfg, importance: make([]float64, width)}
	t.build(x, y, rows, 0, rng)
	return t
}

func (t *tree) build(x [][]float64, y []float64, rows []int, depth int, rng *rand.Rand) int {
	acc := newAccumulator(t.cfg.classes)
	for _, r := range rows {
		acc.add(y[r])
	}
	id := len(t.nodes)
	t.nodes = append(t.nodes, node{leaf: true, value: acc.value()})

	impurity := acc.impurity()
	if len(rows) < 2 || impurity <= 1e-12 || (t.cfg.maxDepth > 0 && depth >= t.cfg.maxDepth) {
		return id
	}
	s, ok := t.bestSplit(x, y, rows, impurity, rng)
	if !ok {
		return id
	}

	var left, right []int
	for _, r := range rows {
		if x[r][s.feature] <= s.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	t.importance[s.feature] += float64(len(rows)) * s.gain

	l := t.build(x, y, left, depth+1, rng)
	r := t.build(x, y, right, depth+1, rng)
	t.nodes[id] = node{feature: s.feature, threshold: s.threshold, left: l, right: r}
	return id
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit sweeps features in random order and returns the threshold
// with the largest impurity decrease. Features that are constant within
// the node do not count towards maxFeatures.
func (t *tree) bestSplit(x [][]float64, y []float64, rows []int, parent float64, rng *rand.Rand) (split, bool) {
	var best split
	found := false
	n := float64(len(rows))
	idx := make([]int, len(rows))

	visited := 0
	for _, f := range rng.Perm(len(t.importance)) {
		if visited == t.cfg.maxFeatures {
			break
		}
		copy(idx, rows)
		sort.Slice(idx, func(i, j int) bool { return x[idx[i]][f] < x[idx[j]][f] })
		if x[idx[0]][f] == x[idx[len(idx)-1]][f] {
			continue
		}
		visited++

		left := newAccumulator(t.cfg.classes)
		right := newAccumulator(t.cfg.classes)
		for _, r := range idx {
			right.add(y[r])
		}
		for i := 0; i < len(idx)-1; i++ {
			left.add(y[idx[i]])
			right.remove(y[idx[i]])
			lo, hi := x[idx[i]][f], x[idx[i+1]][f]
			if lo == hi {
				continue
			}
			gain := parent - (left.n*left.impurity()+right.n*right.impurity())/n
			if !found || gain > best.gain+1e-12 {
				best = split{feature: f, threshold: lo + (hi-lo)/2, gain: gain}
				found = true
			}
		}
	}
	return best, found && best.gain > 0
}

func (t *tree) predict(x []float64) []float64 {
	i := 0
	for !t.nodes[i].leaf {
		nd := t.nodes[i]
		if x[nd.feature] <= nd.threshold {
			i = nd.left
		} else {
			i = nd.right
		}
	}
	return t.nodes[i].value
}

type accumulator struct {
	counts []float64
	sum    float64
	sumSq  float64
	n      float64
}

func newAccumulator(classes int) *accumulator {
	if classes > 0 {
		return &accumulator{counts: make([]float64, classes)}
	}
	return &accumulator{}
}

func (a *accumulator) add(y float64) {
	a.n++
	if a.counts != nil {
		a.counts[int(y)]++
		return
	}
	a.sum += y
	a.sumSq += y * y
}

func (a *accumulator) remove(y float64) {
	a.n--
	if a.counts != nil {
		a.counts[int(y)]--
		return
	}
	a.sum -= y
	a.sumSq -= y * y
}

func (a *accumulator) impurity() float64 {
	if a.n == 0 {
		return 0
	}
	if a.counts != nil {
		g := 1.0
		for _, c := range a.counts {
			p := c / a.n
			g -= p * p
		}
		return g
	}
	mean := a.sum / a.n
	v := a.sumSq/a.n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

func (a *accumulator) value() []float64 {
	if a.counts == nil {
		if a.n == 0 {
			return []float64{0}
		}
		return []float64{a.sum / a.n}
	}
	out := make([]float64, len(a.counts))
	for i, c := range a.counts {
		if a.n > 0 {
			out[i] = c / a.n
		}
	}
	return out
}
