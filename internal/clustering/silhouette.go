package clustering

// Silhouette is the mean silhouette coefficient over all points. It is 0 when
// k <= 1 or there are no more points than clusters. Points alone in their
// cluster score 0.
func Silhouette(points [][]float64, assignments []int, k int) float64 {
	n := len(points)
	if k <= 1 || n <= k {
		return 0
	}

	total := 0.0
	sums := make([]float64, k)
	counts := make([]int, k)
	for i, p := range points {
		for c := range sums {
			sums[c] = 0
			counts[c] = 0
		}
		for j, q := range points {
			if i == j {
				continue
			}
			c := assignments[j]
			sums[c] += distance(p, q)
			counts[c]++
		}

		own := assignments[i]
		if counts[own] == 0 {
			continue
		}
		a := sums[own] / float64(counts[own])

		b := -1.0
		for c := 0; c < k; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			mean := sums[c] / float64(counts[c])
			if b < 0 || mean < b {
				b = mean
			}
		}
		if b < 0 {
			continue
		}

		if denom := max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n)
}
