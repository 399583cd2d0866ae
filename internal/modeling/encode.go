package modeling

import (
	"fmt"
	"math"
	"sort"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/stats"
)

const missingCategory = "missing"

// matrix is the raw, unencoded view of a request: continuous features as
// floats with NaN for gaps and categorical features as strings.
type matrix struct {
	rows        int
	continuous  []continuousFeature
	categorical []categoricalFeature
	labels      []string  // class names, classification only
	y           []float64 // class index or regression target
}

type continuousFeature struct {
	name   string
	values []float64
}

type categoricalFeature struct {
	name   string
	values []string
}

// newMatrix extracts the features named in req. Rows with a null target
// are skipped.
func newMatrix(req Request) (*matrix, error) {
	if req.Data == nil {
		return nil, fmt.Errorf("no data")
	}
	target, ok := req.Data.Column(req.Target)
	if !ok {
		return nil, fmt.Errorf("target column %q not found", req.Target)
	}

	var keep []int
	for i, v := range target.Values {
		if !v.IsNull() {
			keep = append(keep, i)
		}
	}
	m := &matrix{rows: len(keep)}

	if req.Classification {
		counts := dataset.ValueCounts(target.Values)
		vals := make([]dataset.Value, len(counts))
		for i, c := range counts {
			vals[i] = c.Value
		}
		sort.Slice(vals, func(i, j int) bool { return vals[i].Less(vals[j]) })
		index := make(map[string]int, len(vals))
		for i, v := range vals {
			index[v.Key()] = i
			m.labels = append(m.labels, v.String())
		}
		for _, r := range keep {
			m.y = append(m.y, float64(index[target.Values[r].Key()]))
		}
	} else {
		for _, r := range keep {
			v := target.Values[r]
			if v.Kind() != dataset.KindNumber {
				return nil, fmt.Errorf("regression target %q is not numeric", req.Target)
			}
			m.y = append(m.y, v.Float())
		}
	}

	for _, name := range append(append([]string(nil), req.Numeric...), req.Datetime...) {
		col, ok := req.Data.Column(name)
		if !ok {
			return nil, fmt.Errorf("feature column %q not found", name)
		}
		f := continuousFeature{name: name, values: make([]float64, len(keep))}
		for i, r := range keep {
			f.values[i] = toFloat(col.Values[r])
		}
		m.continuous = append(m.continuous, f)
	}
	for _, name := range req.Categorical {
		col, ok := req.Data.Column(name)
		if !ok {
			return nil, fmt.Errorf("feature column %q not found", name)
		}
		f := categoricalFeature{name: name, values: make([]string, len(keep))}
		for i, r := range keep {
			if col.Values[r].IsNull() {
				f.values[i] = missingCategory
				continue
			}
			f.values[i] = col.Values[r].String()
		}
		m.categorical = append(m.categorical, f)
	}
	if len(m.continuous)+len(m.categorical) == 0 {
		return nil, fmt.Errorf("no feature columns")
	}
	return m, nil
}

func toFloat(v dataset.Value) float64 {
	switch v.Kind() {
	case dataset.KindNumber:
		return v.Float()
	case dataset.KindTime:
		return float64(v.Time().Unix())
	default:
		return math.NaN()
	}
}

// encoder is fitted on training rows only so that imputation and scaling
// statistics never see the held-out fold.
type encoder struct {
	medians    []float64
	means      []float64
	scales     []float64
	categories [][]string
	names      []string
}

func fitEncoder(m *matrix, rows []int) *encoder {
	e := &encoder{}
	for _, f := range m.continuous {
		var present []float64
		for _, r := range rows {
			if !math.IsNaN(f.values[r]) {
				present = append(present, f.values[r])
			}
		}
		median := 0.0
		if len(present) > 0 {
			median = stats.Median(present)
		}
		filled := make([]float64, len(rows))
		for i, r := range rows {
			filled[i] = f.values[r]
			if math.IsNaN(filled[i]) {
				filled[i] = median
			}
		}
		scale := stats.PopulationStd(filled)
		if scale == 0 || math.IsNaN(scale) {
			scale = 1
		}
		e.medians = append(e.medians, median)
		e.means = append(e.means, stats.Mean(filled))
		e.scales = append(e.scales, scale)
		e.names = append(e.names, f.name)
	}
	for _, f := range m.categorical {
		seen := make(map[string]struct{})
		for _, r := range rows {
			seen[f.values[r]] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for c := range seen {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		e.categories = append(e.categories, cats)
		for _, c := range cats {
			e.names = append(e.names, f.name+"_"+c)
		}
	}
	return e
}

// transform encodes rows into a dense feature matrix. Categories unseen
// during fitting encode as all zeros.
func (e *encoder) transform(m *matrix, rows []int) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		x := make([]float64, 0, len(e.names))
		for j, f := range m.continuous {
			v := f.values[r]
			if math.IsNaN(v) {
				v = e.medians[j]
			}
			x = append(x, (v-e.means[j])/e.scales[j])
		}
		for j, f := range m.categorical {
			for _, c := range e.categories[j] {
				if f.values[r] == c {
					x = append(x, 1)
				} else {
					x = append(x, 0)
				}
			}
		}
		out[i] = x
	}
	return out
}

func (m *matrix) targets(rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = m.y[r]
	}
	return out
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
