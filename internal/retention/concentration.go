package retention

import (
	"math"
	"sort"
)

type Concentration struct {
	CustomerCount int     `json:"customer_count"`
	TotalMRR      float64 `json:"total_mrr"`
	Top10Share    float64 `json:"top_10_share"`
	Top20Share    float64 `json:"top_20_share"`
	Gini          float64 `json:"gini"`
}

// Concentrate reports how much revenue the top 10% and 20% of customers hold.
func Concentrate(values []float64) Concentration {
	c := Concentration{CustomerCount: len(values)}
	if len(values) == 0 {
		return c
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	for _, v := range sorted {
		c.TotalMRR += v
	}
	c.Gini = Gini(values)
	if c.TotalMRR <= 0 {
		return c
	}
	c.Top10Share = topShare(sorted, 0.10, c.TotalMRR)
	c.Top20Share = topShare(sorted, 0.20, c.TotalMRR)
	return c
}

func topShare(desc []float64, fraction, total float64) float64 {
	n := max(int(math.Ceil(float64(len(desc))*fraction)), 1)
	sum := 0.0
	for _, v := range desc[:n] {
		sum += v
	}
	return sum / total
}

// Gini uses the pairwise-difference definition. O(n^2), fine for one
// organization's customer base.
func Gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return 0
	}
	mean := total / float64(n)

	diff := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			diff += math.Abs(values[i] - values[j])
		}
	}
	return diff / (2 * float64(n) * float64(n) * mean)
}
