package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndVariance(t *testing.T) {
	x := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.Equal(t, 5.0, Mean(x))
	assert.InDelta(t, 4.5714, Variance(x), 1e-4)
	assert.InDelta(t, 2.0, PopulationStd(x), 1e-9)
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Variance([]float64{1}))
}

func TestQuantileLinear(t *testing.T) {
	x := []float64{4, 1, 3, 2}
	assert.Equal(t, 2.5, Median(x))
	assert.Equal(t, 1.75, Quantile(x, 0.25))
	assert.Equal(t, 3.25, Quantile(x, 0.75))
	assert.Equal(t, []float64{4, 1, 3, 2}, x, "input must not be reordered")

	q1, q2, q3 := Quartiles([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 2.0, q1)
	assert.Equal(t, 3.0, q2)
	assert.Equal(t, 4.0, q3)
}

func TestSkewness(t *testing.T) {
	assert.Equal(t, 0.0, Skewness([]float64{1, 2}))
	assert.Equal(t, 0.0, Skewness([]float64{3, 3, 3, 3}))
	assert.InDelta(t, 0.0, Skewness([]float64{1, 2, 3, 4, 5}), 1e-12)
	// matches the adjusted Fisher-Pearson value for this sample
	assert.InDelta(t, 2.1713, Skewness([]float64{1, 1, 1, 2, 10}), 1e-3)
	assert.Greater(t, Skewness([]float64{1, 1, 1, 1, 2, 2, 3, 50}), 1.0)
	assert.Less(t, Skewness([]float64{-50, 1, 1, 1, 2, 2, 3}), -1.0)
}

func TestOutliersIQR(t *testing.T) {
	assert.Equal(t, 0, OutliersIQR(nil))
	assert.Equal(t, 1, OutliersIQR([]float64{1, 2, 3, 4, 5, 6, 7, 8, 100}))
	assert.Equal(t, 2, OutliersIQR([]float64{-100, 1, 2, 3, 4, 5, 6, 7, 8, 100}))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.0526, Round(5.0/95.0, 4))
	assert.Equal(t, 66.67, Round(200.0/3.0, 2))
	assert.Equal(t, 8.0, Round(8.5, 0))
	assert.True(t, math.IsInf(Round(math.Inf(1), 2), 1))
}

func TestMinMaxAndPercent(t *testing.T) {
	lo, hi := MinMax([]float64{3, -1, 7})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 7.0, hi)
	assert.Equal(t, 25.0, Percent(1, 4))
	assert.Equal(t, 0.0, Percent(1, 0))
}

func TestLargeValuesStayFinite(t *testing.T) {
	// one extreme value dominates; the sample behaves like {1, 0, 0, 0, 0, 0}
	x := []float64{1e200, 0, 0, 0, 1, 2}
	assert.InDelta(t, math.Sqrt(6), Skewness(x), 1e-9)
	assert.InEpsilon(t, 1e200/6, Mean(x), 1e-12)
	assert.InEpsilon(t, 1e200/math.Sqrt(6), Std(x), 1e-9)

	// the plain sum overflows
	assert.InEpsilon(t, 1.5e308, Mean([]float64{1.5e308, 1.5e308}), 1e-12)

	// so do the deviations from the mean
	spread := []float64{1.7e308, -1.7e308, -1.7e308}
	assert.InEpsilon(t, 1.7e308*math.Sqrt(8.0/9.0), PopulationStd(spread), 1e-9)
	assert.InDelta(t, Skewness([]float64{1, -1, -1}), Skewness(spread), 1e-9)
}

func TestFinite(t *testing.T) {
	assert.Equal(t, 0.0, Finite(math.NaN()))
	assert.Equal(t, 0.0, Finite(math.Inf(-1)))
	assert.Equal(t, 2.5, Finite(2.5))
	assert.Equal(t, 1.7e308, Round(1.7e308, 2))
}
