// Package clustering groups customers with k-means++ over min-max normalized
// feature vectors and picks the cluster count by silhouette.
package clustering

import (
	"math"
	"math/rand/v2"
	"time"
)

type Options struct {
	// K fixes the cluster count; zero scans MinK..MaxK.
	K             int
	MinK          int
	MaxK          int
	MaxIterations int
	Restarts      int
	// SimplicityBonus is added per cluster below MaxK when scoring candidates.
	SimplicityBonus float64
	Rand            *rand.Rand
}

func DefaultOptions() Options {
	return Options{
		MinK:            2,
		MaxIterations:   100,
		Restarts:        10,
		SimplicityBonus: 0.1,
	}
}

// NewRand returns a deterministic source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.Restarts <= 0 {
		o.Restarts = def.Restarts
	}
	if o.MinK <= 0 {
		o.MinK = def.MinK
	}
	if o.SimplicityBonus == 0 {
		o.SimplicityBonus = def.SimplicityBonus
	}
	if o.Rand == nil {
		o.Rand = NewRand(uint64(time.Now().UnixNano()))
	}
	return o
}

type KMeansResult struct {
	K           int         `json:"k"`
	Centroids   [][]float64 `json:"centroids"`
	Assignments []int       `json:"assignments"`
	Inertia     float64     `json:"inertia"`
	Iterations  int         `json:"iterations"`
	Converged   bool        `json:"converged"`
}

// KMeans runs k-means++ seeding followed by Lloyd iterations, Restarts
// times, and keeps the run with the lowest inertia.
func KMeans(points [][]float64, k int, opts Options) KMeansResult {
	opts = opts.withDefaults()
	n := len(points)
	if n == 0 {
		return KMeansResult{}
	}
	k = max(1, min(k, n))

	var best KMeansResult
	for attempt := 0; attempt < opts.Restarts; attempt++ {
		res := lloyd(points, initPlusPlus(points, k, opts.Rand), opts.MaxIterations)
		if attempt == 0 || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best
}

// initPlusPlus picks the first centroid uniformly and each next one with
// probability proportional to its squared distance from the nearest chosen centroid.
func initPlusPlus(points [][]float64, k int, r *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[r.IntN(n)]))

	nearest := make([]float64, n)
	for i, p := range points {
		nearest[i] = squaredDistance(p, centroids[0])
	}

	for len(centroids) < k {
		total := 0.0
		for _, d := range nearest {
			total += d
		}

		next := -1
		if total > 0 {
			target := r.Float64() * total
			cumulative := 0.0
			for i, d := range nearest {
				cumulative += d
				if cumulative >= target && d > 0 {
					next = i
					break
				}
			}
		}
		if next < 0 {
			next = r.IntN(n)
		}

		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			if d := squaredDistance(p, c); d < nearest[i] {
				nearest[i] = d
			}
		}
	}
	return centroids
}

func lloyd(points [][]float64, centroids [][]float64, maxIterations int) KMeansResult {
	n := len(points)
	k := len(centroids)
	dims := len(points[0])
	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	res := KMeansResult{K: k}
	for iter := 0; iter < maxIterations; iter++ {
		res.Iterations = iter + 1

		changed := false
		for i, p := range points {
			c := nearestCentroid(p, centroids)
			if c != assignments[i] {
				assignments[i] = c
				changed = true
			}
		}
		if !changed {
			res.Converged = true
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}
		for c := range centroids {
			// an emptied cluster keeps its previous centroid
			if counts[c] == 0 {
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	for i, p := range points {
		res.Inertia += squaredDistance(p, centroids[assignments[i]])
	}
	res.Centroids = centroids
	res.Assignments = assignments
	return res
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func distance(a, b []float64) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
