package modeling

import (
	"context"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

type forestConfig struct {
	trees   int
	seed    int64
	classes int
	workers int
}

// forest is a bagged ensemble of trees. Tree i is grown from its own
// generator seeded with seed+i, so results do not depend on scheduling.
type forest struct {
	trees   []*tree
	classes int
	width   int
}

func fitForest(ctx context.Context, x [][]float64, y []float64, cfg forestConfig) (*forest, error) {
	width := 0
	if len(x) > 0 {
		width = len(x[0])
	}
	maxFeatures := width
	if cfg.classes > 0 {
		maxFeatures = int(math.Sqrt(float64(width)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	f := &forest{trees: make([]*tree, cfg.trees), classes: cfg.classes, width: width}
	g, ctx := errgroup.WithContext(ctx)
	if cfg.workers > 0 {
		g.SetLimit(cfg.workers)
	}
	for i := range f.trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.seed + int64(i)))
			sample := make([]int, len(x))
			for j := range sample {
				sample[j] = rng.Intn(len(x))
			}
			f.trees[i] = growTree(x, y, sample, treeConfig{classes: cfg.classes, maxFeatures: maxFeatures}, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// predict returns the majority class by averaged probability, or the mean
// prediction for regression.
func (f *forest) predict(x []float64) float64 {
	if f.classes == 0 {
		sum := 0.0
		for _, t := range f.trees {
			sum += t.predict(x)[0]
		}
		return sum / float64(len(f.trees))
	}
	proba := make([]float64, f.classes)
	for _, t := range f.trees {
		for c, p := range t.predict(x) {
			proba[c] += p
		}
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return float64(best)
}

func (f *forest) predictAll(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = f.predict(row)
	}
	return out
}

// importances averages the per-tree impurity decrease, each tree
// normalized to sum to one, and renormalizes the result.
func (f *forest) importances() []float64 {
	out := make([]float64, f.width)
	for _, t := range f.trees {
		total := 0.0
		for _, v := range t.importance {
			total += v
		}
		if total == 0 {
			continue
		}
		for i, v := range t.importance {
			out[i] += v / total
		}
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for i := range out {
			out[i] /= total
		}
	}
	return out
}
