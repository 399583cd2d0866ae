package modeling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/lacquerai/cortex/internal/stats"
)

// Baseline is an in-process Service that cross-validates a random forest.
type Baseline struct {
	trees   int
	seed    int64
	folds   int
	workers int
}

// BaselineOption configures a Baseline.
type BaselineOption func(*Baseline)

// WithTrees sets the forest size.
func WithTrees(n int) BaselineOption {
	return func(b *Baseline) {
		if n > 0 {
			b.trees = n
		}
	}
}

// WithSeed sets the random seed.
func WithSeed(seed int64) BaselineOption {
	return func(b *Baseline) { b.seed = seed }
}

// WithFolds sets the number of cross-validation folds.
func WithFolds(k int) BaselineOption {
	return func(b *Baseline) {
		if k >= 2 {
			b.folds = k
		}
	}
}

// WithWorkers bounds the number of trees grown concurrently.
func WithWorkers(n int) BaselineOption {
	return func(b *Baseline) {
		if n > 0 {
			b.workers = n
		}
	}
}

// NewBaseline returns a Baseline with 100 trees, seed 42 and 5 folds.
func NewBaseline(opts ...BaselineOption) *Baseline {
	b := &Baseline{
		trees:   100,
		seed:    42,
		folds:   DefaultFolds,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Diagnose implements Service. Training failures are returned as *Error;
// context cancellation is returned unchanged.
func (b *Baseline) Diagnose(ctx context.Context, req Request) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("baseline model panicked")
			res, err = nil, cvFailed(fmt.Errorf("%v", r))
		}
	}()

	res, err = b.diagnose(ctx, req)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, cvFailed(err)
	}
	return res, err
}

func (b *Baseline) diagnose(ctx context.Context, req Request) (*Result, error) {
	m, err := newMatrix(req)
	if err != nil {
		return nil, err
	}
	if m.rows < b.folds {
		return nil, fmt.Errorf("cannot have number of splits n_splits=%d greater than the number of samples: n_samples=%d", b.folds, m.rows)
	}

	classes := 0
	var folds [][]int
	if req.Classification {
		classes = len(m.labels)
		if classes < 2 {
			return nil, fmt.Errorf("the target needs samples of at least 2 classes in the data, but it contains only %d class", classes)
		}
		folds = stratifiedFolds(m.y, b.folds)
	} else {
		folds = contiguousFolds(m.rows, b.folds)
	}
	cfg := forestConfig{trees: b.trees, seed: b.seed, classes: classes, workers: b.workers}

	scores := make([]float64, len(folds))
	for k, test := range folds {
		train := complement(m.rows, test)
		enc := fitEncoder(m, train)
		f, err := fitForest(ctx, enc.transform(m, train), m.targets(train), cfg)
		if err != nil {
			return nil, err
		}
		pred := f.predictAll(enc.transform(m, test))
		if req.Classification {
			scores[k] = accuracy(m.targets(test), pred)
		} else {
			scores[k] = r2(m.targets(test), pred)
		}
	}

	all := allRows(m.rows)
	enc := fitEncoder(m, all)
	f, err := fitForest(ctx, enc.transform(m, all), m.targets(all), cfg)
	if err != nil {
		return nil, err
	}

	mean := stats.Round(stats.Finite(stats.Mean(scores)), 4)
	res := &Result{
		ModelType:          ModelTypeRegression,
		MeanCVScore:        mean,
		CVScores:           make([]float64, len(scores)),
		LeakageWarning:     leakageWarning(mean),
		FeatureImportances: rankImportances(enc.names, f.importances()),
	}
	if req.Classification {
		res.ModelType = ModelTypeClassification
	}
	for i, s := range scores {
		res.CVScores[i] = stats.Round(stats.Finite(s), 4)
	}

	log.Debug().
		Str("model_type", res.ModelType).
		Float64("mean_cv_score", res.MeanCVScore).
		Int("rows", m.rows).
		Int("features", len(enc.names)).
		Msg("baseline model evaluated")
	return res, nil
}

func rankImportances(names []string, weights []float64) []Importance {
	out := make([]Importance, len(names))
	for i, n := range names {
		out[i] = Importance{Feature: n, Weight: weights[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	for i := range out {
		out[i].Weight = stats.Round(stats.Finite(out[i].Weight), 4)
	}
	return out
}

// stratifiedFolds deals the rows of each class round-robin across k folds
// so every fold sees roughly the same class mix.
func stratifiedFolds(y []float64, k int) [][]int {
	byClass := make(map[float64][]int)
	var classes []float64
	for i, c := range y {
		if _, ok := byClass[c]; !ok {
			classes = append(classes, c)
		}
		byClass[c] = append(byClass[c], i)
	}
	sort.Float64s(classes)

	folds := make([][]int, k)
	next := 0
	for _, c := range classes {
		for _, r := range byClass[c] {
			folds[next] = append(folds[next], r)
			next = (next + 1) % k
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds
}

// contiguousFolds splits n rows into k consecutive blocks, the first n%k
// blocks one row larger.
func contiguousFolds(n, k int) [][]int {
	folds := make([][]int, k)
	start := 0
	for i := range folds {
		size := n / k
		if i < n%k {
			size++
		}
		for r := start; r < start+size; r++ {
			folds[i] = append(folds[i], r)
		}
		start += size
	}
	return folds
}

func complement(n int, rows []int) []int {
	skip := make(map[int]struct{}, len(rows))
	for _, r := range rows {
		skip[r] = struct{}{}
	}
	out := make([]int, 0, n-len(rows))
	for i := 0; i < n; i++ {
		if _, ok := skip[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

func accuracy(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	hits := 0
	for i := range truth {
		if truth[i] == pred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}

// r2 is the coefficient of determination. A constant truth scores 1 when
// predicted exactly and 0 otherwise.
func r2(truth, pred []float64) float64 {
	mean := stats.Mean(truth)
	// residuals and deviations are divided by a common scale so that the
	// sums of squares of very large targets do not overflow
	scale := 0.0
	for i := range truth {
		scale = math.Max(scale, math.Max(math.Abs(truth[i]-mean), math.Abs(truth[i]-pred[i])))
	}
	if scale == 0 {
		return 1
	}
	var ssRes, ssTot float64
	for i := range truth {
		res := (truth[i] - pred[i]) / scale
		dev := (truth[i] - mean) / scale
		ssRes += res * res
		ssTot += dev * dev
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return stats.Finite(1 - ssRes/ssTot)
}
