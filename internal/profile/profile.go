// Package profile computes per-column descriptive statistics.
package profile

import (
	"time"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/schema"
	"github.com/lacquerai/cortex/internal/stats"
)

const (
	// TopCategories is how many of the most frequent values are listed.
	TopCategories = 10
	// NullLabel stands in for null cells among the top categories.
	NullLabel = "NaN"
)

type Numeric struct {
	Column   string  `json:"column" yaml:"column"`
	Count    int     `json:"count" yaml:"count"`
	Mean     float64 `json:"mean" yaml:"mean"`
	Std      float64 `json:"std" yaml:"std"`
	Min      float64 `json:"min" yaml:"min"`
	P25      float64 `json:"p25" yaml:"p25"`
	P50      float64 `json:"p50" yaml:"p50"`
	P75      float64 `json:"p75" yaml:"p75"`
	Max      float64 `json:"max" yaml:"max"`
	IQR      float64 `json:"iqr" yaml:"iqr"`
	Skewness float64 `json:"skewness" yaml:"skewness"`
}

type Category struct {
	Value   string  `json:"value" yaml:"value"`
	Count   int     `json:"count" yaml:"count"`
	Percent float64 `json:"percent" yaml:"percent"`
}

type Categorical struct {
	Column          string     `json:"column" yaml:"column"`
	Unique          int        `json:"unique_count" yaml:"unique_count"`
	Top             []Category `json:"top_categories" yaml:"top_categories"`
	HighCardinality bool       `json:"is_high_cardinality" yaml:"is_high_cardinality"`
}

type Datetime struct {
	Column string    `json:"column" yaml:"column"`
	Count  int       `json:"count" yaml:"count"`
	Min    time.Time `json:"min" yaml:"min"`
	Max    time.Time `json:"max" yaml:"max"`
}

// Profile holds the per-column statistics grouped by schema category.
type Profile struct {
	Numeric     []Numeric     `json:"numeric" yaml:"numeric"`
	Categorical []Categorical `json:"categorical" yaml:"categorical"`
	Datetime    []Datetime    `json:"datetime" yaml:"datetime"`
}

// Build profiles every column of d, the target included, using s to
// decide how each column is summarised.
func Build(d *dataset.Dataset, s *schema.Schema) *Profile {
	p := &Profile{Numeric: []Numeric{}, Categorical: []Categorical{}, Datetime: []Datetime{}}
	for _, name := range d.Columns() {
		col, _ := d.Column(name)
		info, ok := s.Lookup(name)
		if !ok {
			info = schema.Classify(col)
		}
		switch info.Type {
		case schema.Numeric:
			p.Numeric = append(p.Numeric, numeric(col))
		case schema.Datetime:
			p.Datetime = append(p.Datetime, datetime(col))
		default:
			p.Categorical = append(p.Categorical, categorical(col))
		}
	}
	return p
}

func numeric(col *dataset.Column) Numeric {
	x := col.Floats()
	n := Numeric{Column: col.Name, Count: len(x)}
	if len(x) == 0 {
		return n
	}
	q1, q2, q3 := stats.Quartiles(x)
	lo, hi := stats.MinMax(x)
	n.Mean = round2(stats.Mean(x))
	n.Std = round2(stats.Std(x))
	n.Min = round2(lo)
	n.P25 = round2(q1)
	n.P50 = round2(q2)
	n.P75 = round2(q3)
	n.Max = round2(hi)
	n.IQR = round2(q3 - q1)
	n.Skewness = round2(stats.Skewness(x))
	return n
}

// round2 rounds a statistic for the report. Values outside the float64
// range, such as the IQR of two extreme quartiles, are reported as 0.
func round2(v float64) float64 {
	return stats.Round(stats.Finite(v), 2)
}

func categorical(col *dataset.Column) Categorical {
	counts := dataset.ValueCounts(col.Values)
	c := Categorical{
		Column:          col.Name,
		Unique:          len(counts),
		HighCardinality: len(counts) > TopCategories*2,
		Top:             []Category{},
	}

	total := len(col.Values)
	entries := make([]Category, 0, len(counts)+1)
	for _, vc := range counts {
		entries = append(entries, Category{Value: vc.Value.String(), Count: vc.Count})
	}
	if nulls := col.NullCount(); nulls > 0 {
		// nulls rank among the values by frequency
		i := len(entries)
		for i > 0 && entries[i-1].Count < nulls {
			i--
		}
		entries = append(entries[:i], append([]Category{{Value: NullLabel, Count: nulls}}, entries[i:]...)...)
	}
	if len(entries) > TopCategories {
		entries = entries[:TopCategories]
	}
	for i := range entries {
		entries[i].Percent = stats.Round(stats.Percent(entries[i].Count, total), 2)
	}
	c.Top = entries
	return c
}

func datetime(col *dataset.Column) Datetime {
	d := Datetime{Column: col.Name}
	for _, v := range col.NonNull() {
		t := v.Time()
		if d.Count == 0 || t.Before(d.Min) {
			d.Min = t
		}
		if d.Count == 0 || t.After(d.Max) {
			d.Max = t
		}
		d.Count++
	}
	return d
}
