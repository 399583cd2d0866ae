// Package remediate fills missing values to produce a healed copy of a
// dataset.
package remediate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/stats"
)

// Strategy selects how numeric gaps are filled.
type Strategy string

const (
	// StrategyMedian fills numeric gaps with the column median.
	StrategyMedian Strategy = "median"
	// StrategyKNN fills numeric gaps with the mean of the nearest rows.
	StrategyKNN Strategy = "knn"
)

const (
	MissingSentinel = "missing"
	UnknownSentinel = "unknown"

	// sparseThreshold is the missing fraction above which a text column is
	// filled with MissingSentinel rather than its mode.
	sparseThreshold = 0.5

	defaultNeighbors = 5
)

// Fill records how the gaps of one column were filled.
type Fill struct {
	Column string `json:"column" yaml:"column"`
	Method string `json:"method" yaml:"method"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
	Count  int    `json:"count" yaml:"count"`
}

// Summary describes what a Heal call changed.
type Summary struct {
	Strategy    Strategy `json:"strategy" yaml:"strategy"`
	DroppedRows int      `json:"dropped_rows" yaml:"dropped_rows"`
	Fills       []Fill   `json:"fills" yaml:"fills"`
}

// Option configures a Remediator.
type Option func(*Remediator)

// WithStrategy selects the numeric fill strategy.
func WithStrategy(s Strategy) Option {
	return func(r *Remediator) {
		r.strategy = s
	}
}

// WithNeighbors sets k for StrategyKNN.
func WithNeighbors(k int) Option {
	return func(r *Remediator) {
		if k > 0 {
			r.neighbors = k
		}
	}
}

// Remediator produces healed datasets. It holds no per-call state and is
// safe for concurrent use.
type Remediator struct {
	strategy  Strategy
	neighbors int
}

// New creates a Remediator. Median fill is the default.
func New(opts ...Option) *Remediator {
	r := &Remediator{
		strategy:  StrategyMedian,
		neighbors: defaultNeighbors,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMedian, "":
		return StrategyMedian, nil
	case StrategyKNN:
		return StrategyKNN, nil
	default:
		return "", fmt.Errorf("unknown remediation strategy %q", s)
	}
}

// Heal returns a copy of d with every null filled. Rows whose target is
// null are dropped first so the target is never imputed. The input is not
// modified; an empty dataset is returned as is.
func (r *Remediator) Heal(d *dataset.Dataset, target string) (*dataset.Dataset, *Summary, error) {
	summary := &Summary{Strategy: r.strategy, Fills: []Fill{}}
	if d.Len() == 0 {
		return d, summary, nil
	}

	healed := d
	if tc, ok := d.Column(target); ok && tc.NullCount() > 0 {
		healed = d.Filter(func(i int) bool { return !tc.Values[i].IsNull() })
		summary.DroppedRows = d.Len() - healed.Len()
		if healed.Len() == 0 {
			return healed, summary, nil
		}
	}

	source := healed
	for _, name := range source.Columns() {
		col, _ := source.Column(name)
		missing := col.NullCount()
		if missing == 0 {
			continue
		}

		var (
			values []dataset.Value
			fill   Fill
		)
		switch col.Type {
		case dataset.TypeNumeric:
			values, fill = r.fillNumeric(source, col)
		case dataset.TypeDatetime:
			values, fill = fillDatetime(col)
		default:
			values, fill = fillCategorical(col, healed.Len())
		}
		fill.Column = name
		fill.Count = missing

		next, err := healed.Replace(name, values)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fill column %q: %w", name, err)
		}
		healed = next
		summary.Fills = append(summary.Fills, fill)
	}

	return healed, summary, nil
}

func (r *Remediator) fillNumeric(d *dataset.Dataset, col *dataset.Column) ([]dataset.Value, Fill) {
	median := stats.Median(col.Floats())
	if r.strategy == StrategyKNN {
		return knnFill(d, col, r.neighbors, median), Fill{Method: string(StrategyKNN)}
	}

	values := make([]dataset.Value, len(col.Values))
	for i, v := range col.Values {
		if v.IsNull() {
			v = dataset.Number(median)
		}
		values[i] = v
	}
	return values, Fill{Method: string(StrategyMedian), Value: dataset.Number(median).String()}
}

func fillDatetime(col *dataset.Column) ([]dataset.Value, Fill) {
	present := col.NonNull()
	unix := make([]int64, len(present))
	for i, v := range present {
		unix[i] = v.Time().UnixNano()
	}
	// nanosecond timestamps exceed float64 precision, so the median stays in int64
	sort.Slice(unix, func(i, j int) bool { return unix[i] < unix[j] })
	mid := unix[len(unix)/2]
	if len(unix)%2 == 0 {
		lo := unix[len(unix)/2-1]
		mid = lo + (mid-lo)/2
	}
	median := dataset.Time(time.Unix(0, mid).UTC())

	values := make([]dataset.Value, len(col.Values))
	for i, v := range col.Values {
		if v.IsNull() {
			v = median
		}
		values[i] = v
	}
	return values, Fill{Method: string(StrategyMedian), Value: median.String()}
}

func fillCategorical(col *dataset.Column, rows int) ([]dataset.Value, Fill) {
	var fill Fill
	switch {
	case float64(col.NullCount())/float64(rows) > sparseThreshold:
		fill = Fill{Method: "sentinel", Value: MissingSentinel}
	default:
		if mode, ok := Mode(col.Values); ok {
			fill = Fill{Method: "mode", Value: mode.String()}
		} else {
			fill = Fill{Method: "sentinel", Value: UnknownSentinel}
		}
	}

	replacement := dataset.Text(fill.Value)
	values := make([]dataset.Value, len(col.Values))
	for i, v := range col.Values {
		if v.IsNull() {
			v = replacement
		}
		values[i] = v
	}
	return values, fill
}

// Mode returns the most frequent non-null value. Ties go to the smallest
// value. ok is false when there are no non-null values.
func Mode(values []dataset.Value) (dataset.Value, bool) {
	counts := make(map[string]int)
	first := make(map[string]dataset.Value)
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		k := v.Key()
		if _, seen := first[k]; !seen {
			first[k] = v
		}
		counts[k]++
	}
	if len(counts) == 0 {
		return dataset.Null(), false
	}

	candidates := make([]dataset.Value, 0, len(first))
	for _, v := range first {
		candidates = append(candidates, v)
	}
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := counts[candidates[i].Key()], counts[candidates[j].Key()]
		if ci != cj {
			return ci > cj
		}
		return candidates[i].Less(candidates[j])
	})
	return candidates[0], true
}

// knnFill replaces each gap with the mean of the k nearest rows that have
// a value in col. Distance is Euclidean over the other numeric columns,
// using only coordinates present in both rows and scaled up by the share
// of coordinates that were missing. Gaps without any comparable donor fall
// back to the median.
func knnFill(d *dataset.Dataset, col *dataset.Column, k int, fallback float64) []dataset.Value {
	var features []*dataset.Column
	for _, name := range d.Columns() {
		c, _ := d.Column(name)
		if c.Name != col.Name && c.Type == dataset.TypeNumeric {
			features = append(features, c)
		}
	}

	type neighbor struct {
		dist  float64
		value float64
	}

	values := make([]dataset.Value, len(col.Values))
	for i, v := range col.Values {
		if !v.IsNull() {
			values[i] = v
			continue
		}

		var neighbors []neighbor
		for j, donor := range col.Values {
			if donor.IsNull() {
				continue
			}
			if dist, ok := nanEuclidean(features, i, j); ok {
				neighbors = append(neighbors, neighbor{dist: dist, value: donor.Float()})
			}
		}
		if len(neighbors) == 0 {
			values[i] = dataset.Number(fallback)
			continue
		}

		sort.SliceStable(neighbors, func(a, b int) bool { return neighbors[a].dist < neighbors[b].dist })
		if len(neighbors) > k {
			neighbors = neighbors[:k]
		}
		sum := 0.0
		for _, n := range neighbors {
			sum += n.value
		}
		values[i] = dataset.Number(sum / float64(len(neighbors)))
	}
	return values
}

func nanEuclidean(features []*dataset.Column, a, b int) (float64, bool) {
	if len(features) == 0 {
		return 0, false
	}
	present, sum := 0, 0.0
	for _, f := range features {
		va, vb := f.Values[a], f.Values[b]
		if va.IsNull() || vb.IsNull() {
			continue
		}
		diff := va.Float() - vb.Float()
		sum += diff * diff
		present++
	}
	if present == 0 {
		return 0, false
	}
	return math.Sqrt(float64(len(features)) / float64(present) * sum), true
}
