// Package stats wraps gonum's stat package with the empty-input and
// closest-rank conventions the analytics engines share.
package stats

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Mean is stat.Mean with 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Percentile interpolates linearly between the closest ranks of sorted values,
// p in [0, 100]. An empty slice yields 0.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	p = math.Max(0, math.Min(100, p))
	return stat.Quantile(p/100, stat.LinInterp, sorted, rankWeights(len(sorted)))
}

// Median sorts a copy of values and returns its 50th percentile.
func Median(values []float64) float64 {
	return Percentile(slices.Sorted(slices.Values(values)), 50)
}

// rankWeights gives the first sample zero weight so LinInterp places sample i
// at cumulative position i of n-1.
func rankWeights(n int) []float64 {
	w := make([]float64, n)
	for i := 1; i < n; i++ {
		w[i] = 1
	}
	return w
}

// CoefficientOfVariation is the sample standard deviation over the mean, 0
// when the mean is zero or fewer than two values exist.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if mean == 0 {
		return 0
	}
	return std / mean
}
