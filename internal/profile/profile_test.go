package profile

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/schema"
)

func texts(xs ...string) []dataset.Value {
	out := make([]dataset.Value, len(xs))
	for i, x := range xs {
		out[i] = dataset.Text(x)
	}
	return out
}

func nums(xs ...float64) []dataset.Value {
	out := make([]dataset.Value, len(xs))
	for i, x := range xs {
		out[i] = dataset.Number(x)
	}
	return out
}

func build(t *testing.T, d *dataset.Dataset, target string) *Profile {
	t.Helper()
	s, err := schema.Infer(d, target)
	require.NoError(t, err)
	return Build(d, s)
}

func TestBuild(t *testing.T) {
	d := dataset.MustNew(
		&dataset.Column{Name: "price", Values: nums(10, 20, 30, 40, 50, 60, 70, 80, 90, 100)},
		&dataset.Column{Name: "age", Values: nums(25, 30, 35, 40, 45, 50, 55, 60, 65, 70)},
		&dataset.Column{Name: "gender", Values: texts("M", "F", "M", "F", "M", "F", "M", "F", "M", "F")},
		&dataset.Column{Name: "city", Values: texts("NY", "LA", "SF", "NY", "LA", "SF", "NY", "LA", "SF", "Chicago")},
	)
	p := build(t, d, "city")

	require.Len(t, p.Numeric, 2)
	price := p.Numeric[0]
	assert.Equal(t, Numeric{
		Column: "price", Count: 10, Mean: 55, Std: 30.28, Min: 10,
		P25: 32.5, P50: 55, P75: 77.5, Max: 100, IQR: 45, Skewness: 0,
	}, price)

	require.Len(t, p.Categorical, 2)
	gender := p.Categorical[0]
	assert.Equal(t, 2, gender.Unique)
	assert.Equal(t, []Category{{Value: "M", Count: 5, Percent: 50}, {Value: "F", Count: 5, Percent: 50}}, gender.Top)

	city := p.Categorical[1]
	assert.Equal(t, "city", city.Column)
	assert.Equal(t, 30.0, city.Top[0].Percent)
	assert.False(t, city.HighCardinality)
}

func TestCategoricalCountsNullsAndCaps(t *testing.T) {
	values := make([]dataset.Value, 0, 30)
	for i := 0; i < 25; i++ {
		values = append(values, dataset.Text(string(rune('a'+i))))
	}
	for i := 0; i < 5; i++ {
		values = append(values, dataset.Null())
	}
	d := dataset.MustNew(
		&dataset.Column{Name: "code", Values: values},
		&dataset.Column{Name: "y", Values: nums(make([]float64, 30)...)},
	)
	p := build(t, d, "y")

	code := p.Categorical[0]
	assert.Equal(t, 25, code.Unique)
	assert.True(t, code.HighCardinality)
	require.Len(t, code.Top, TopCategories)
	assert.Equal(t, Category{Value: NullLabel, Count: 5, Percent: 16.67}, code.Top[0])
}

func TestDatetimeProfile(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d := dataset.MustNew(
		&dataset.Column{Name: "when", Values: []dataset.Value{dataset.Time(day.AddDate(0, 0, 5)), dataset.Null(), dataset.Time(day)}},
		&dataset.Column{Name: "y", Values: nums(1, 2, 3)},
	)
	p := build(t, d, "y")

	require.Len(t, p.Datetime, 1)
	assert.Equal(t, Datetime{Column: "when", Count: 2, Min: day, Max: day.AddDate(0, 0, 5)}, p.Datetime[0])
	require.Len(t, p.Numeric, 1)
	assert.Equal(t, "y", p.Numeric[0].Column)
}

func TestNumericProfileOfExtremeValues(t *testing.T) {
	d := dataset.MustNew(
		&dataset.Column{Name: "x", Type: dataset.TypeNumeric, Values: nums(1.7e308, -1.7e308, 0, 1)},
		&dataset.Column{Name: "y", Type: dataset.TypeText, Values: texts("a", "b", "a", "b")},
	)
	p := build(t, d, "y")
	require.Len(t, p.Numeric, 1)

	n := p.Numeric[0]
	assert.Equal(t, 1.7e308, n.Max)
	assert.Equal(t, -1.7e308, n.Min)
	for name, v := range map[string]float64{"mean": n.Mean, "std": n.Std, "iqr": n.IQR, "skewness": n.Skewness} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s = %v", name, v)
	}
}
