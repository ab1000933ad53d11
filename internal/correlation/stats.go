package correlation

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Pearson returns the sample correlation of x and y. Degenerate inputs
// (fewer than two pairs or a constant series) yield 0.
func Pearson(x, y []float64) float64 {
	n := min(len(x), len(y))
	if n < 2 {
		return 0
	}
	r := stat.Correlation(x[:n], y[:n], nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// PValue approximates the two-tailed p-value of r over n pairs with a coarse
// t-statistic lookup.
func PValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	t := math.Inf(1)
	if rr := r * r; rr < 1 {
		t = math.Abs(r) * math.Sqrt(float64(n-2)/(1-rr))
	}
	switch {
	case t > 3.5:
		return 0.001
	case t > 2.5:
		return 0.01
	case t > 2.0:
		return 0.05
	case t > 1.5:
		return 0.1
	}
	return 0.5
}
