// Package stats holds the descriptive statistics shared by the analyzers.
// Quantiles use linear interpolation between closest ranks and skewness is
// the adjusted Fisher-Pearson coefficient, so results line up with the
// figures data scientists get from the usual dataframe tooling.
package stats

import (
	"math"
	"sort"
)

// Mean computes the average of a slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	if math.IsInf(sum, 0) {
		// the sum of finite values overflowed; average them scaled down
		s := maxAbsDev(x, 0)
		sum = 0
		for _, v := range x {
			sum += v / s
		}
		return sum / float64(len(x)) * s
	}
	return sum / float64(len(x))
}

// maxAbsDev is the largest |v - center|.
func maxAbsDev(x []float64, center float64) float64 {
	m := 0.0
	for _, v := range x {
		m = math.Max(m, math.Abs(v-center))
	}
	return m
}

// standardized returns a scale s and the deviations (v-mean)/s, all within
// [-1, 1] (or [-2, 2] when the deviations themselves overflow). Sums of
// powers are taken over these so that squares and cubes of large finite
// values stay finite. s is 0 for constant data.
func standardized(x []float64, mean float64) (s float64, z []float64) {
	s = maxAbsDev(x, mean)
	if s == 0 || math.IsNaN(s) {
		return 0, nil
	}
	z = make([]float64, len(x))
	if math.IsInf(s, 0) {
		s = maxAbsDev(x, 0)
		for i, v := range x {
			z[i] = v/s - mean/s
		}
		return s, z
	}
	for i, v := range x {
		z[i] = (v - mean) / s
	}
	return s, z
}

// scaledSquares returns the scale s and the sum of ((v-mean)/s)^2.
func scaledSquares(x []float64) (s, ss float64) {
	s, z := standardized(x, Mean(x))
	for _, v := range z {
		ss += v * v
	}
	return s, ss
}

// Variance computes the sample variance (n-1 denominator). It is +Inf
// when the variance itself exceeds the float64 range.
func Variance(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	s, ss := scaledSquares(x)
	return s * s * ss / float64(n-1)
}

// Std computes the sample standard deviation.
func Std(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	s, ss := scaledSquares(x)
	return s * math.Sqrt(ss/float64(n-1))
}

// PopulationStd computes the standard deviation with an n denominator.
func PopulationStd(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	s, ss := scaledSquares(x)
	return s * math.Sqrt(ss/float64(n))
}

// Sorted returns a sorted copy.
func Sorted(x []float64) []float64 {
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	return s
}

// Median returns the middle value of a copy of x, or 0 for an empty slice.
func Median(x []float64) float64 {
	return Quantile(x, 0.5)
}

// Quantile returns the q-th quantile (0 <= q <= 1) using linear
// interpolation between the two nearest ranks.
func Quantile(x []float64, q float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return quantileSorted(Sorted(x), q)
}

// Quartiles returns Q1, the median and Q3 with a single sort.
func Quartiles(x []float64) (q1, q2, q3 float64) {
	if len(x) == 0 {
		return 0, 0, 0
	}
	s := Sorted(x)
	return quantileSorted(s, 0.25), quantileSorted(s, 0.5), quantileSorted(s, 0.75)
}

func quantileSorted(s []float64, q float64) float64 {
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}

// Skewness returns the bias-adjusted sample skewness. It is 0 for fewer
// than three values and for constant data.
func Skewness(x []float64) float64 {
	n := float64(len(x))
	if len(x) < 3 {
		return 0
	}
	mean := Mean(x)
	s, z := standardized(x, mean)
	if s == 0 || s < 1e-7*math.Abs(mean) {
		return 0
	}
	// the coefficient is scale free, so the moments of z give the same
	// value as those of the raw deviations
	var m2, m3 float64
	for _, v := range z {
		m2 += v * v
		m3 += v * v * v
	}
	m2 /= n
	m3 /= n
	g1 := m3 / math.Pow(m2, 1.5)
	return Finite(g1 * math.Sqrt(n*(n-1)) / (n - 2))
}

// OutliersIQR counts values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
func OutliersIQR(x []float64) int {
	if len(x) == 0 {
		return 0
	}
	q1, _, q3 := Quartiles(x)
	iqr := q3 - q1
	lower, upper := q1-1.5*iqr, q3+1.5*iqr
	n := 0
	for _, v := range x {
		if v < lower || v > upper {
			n++
		}
	}
	return n
}

// MinMax returns the smallest and largest value.
func MinMax(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Round rounds to the given number of decimal places, ties to even.
func Round(x float64, places int) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) || math.Abs(x) >= 1<<52 {
		// integral already, and x*p may overflow
		return x
	}
	p := math.Pow(10, float64(places))
	r := math.RoundToEven(x*p) / p
	if r == 0 {
		// avoid negative zero
		return 0
	}
	return r
}

// Finite returns x, or 0 when x is NaN or infinite. Figures that end up
// in a report pass through it because JSON has no encoding for them.
func Finite(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return 0
	}
	return x
}

// Percent returns part/total*100, or 0 when total is 0.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
