package clustering

import (
	"sort"

	"github.com/google/uuid"

	"ontology/internal/shared/outcome"
)

// Dimension order of a feature vector.
const (
	DimMRR = iota
	DimTenure
	DimGrowth
	DimCompanySize
	DimUsage
	dimensions
)

// Features is one customer's clustering input.
type Features struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	MRR         float64   `json:"mrr"`
	Tenure      float64   `json:"tenure"`
	GrowthRate  float64   `json:"growth_rate"`
	CompanySize float64   `json:"company_size"`
	UsageScore  float64   `json:"usage_score"`
}

func (f Features) Vector() []float64 {
	v := make([]float64, dimensions)
	v[DimMRR] = f.MRR
	v[DimTenure] = f.Tenure
	v[DimGrowth] = f.GrowthRate
	v[DimCompanySize] = f.CompanySize
	v[DimUsage] = f.UsageScore
	return v
}

// Averages are raw (unnormalized) feature means of a cluster.
type Averages struct {
	MRR         float64 `json:"mrr"`
	Tenure      float64 `json:"tenure"`
	GrowthRate  float64 `json:"growth_rate"`
	CompanySize float64 `json:"company_size"`
	UsageScore  float64 `json:"usage_score"`
}

type Cluster struct {
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Size        int         `json:"size"`
	Centroid    []float64   `json:"centroid"`
	Averages    Averages    `json:"averages"`
	Levels      Levels      `json:"levels"`
	Members     []uuid.UUID `json:"members"`
}

// Candidate records how one k scored during the automatic scan.
type Candidate struct {
	K          int     `json:"k"`
	Silhouette float64 `json:"silhouette"`
	Inertia    float64 `json:"inertia"`
	Score      float64 `json:"score"`
}

type Model struct {
	K           int               `json:"k"`
	Clusters    []Cluster         `json:"clusters"`
	Silhouette  float64           `json:"silhouette"`
	Inertia     float64           `json:"inertia"`
	Converged   bool              `json:"converged"`
	Iterations  int               `json:"iterations"`
	Candidates  []Candidate       `json:"candidates,omitempty"`
	Bounds      Bounds            `json:"bounds"`
	Assignments map[uuid.UUID]int `json:"-"`
}

// ClusterOf returns the cluster index of a customer.
func (m Model) ClusterOf(id uuid.UUID) (int, bool) {
	c, ok := m.Assignments[id]
	return c, ok
}

// KRange resolves the candidate cluster counts for n points. MaxK defaults to
// min(8, n/10) and is clamped to [MinK, n].
func KRange(n int, opts Options) (int, int) {
	minK := opts.MinK
	if minK <= 0 {
		minK = DefaultOptions().MinK
	}
	maxK := opts.MaxK
	if maxK <= 0 {
		maxK = min(8, n/10)
	}
	maxK = max(maxK, minK)
	maxK = min(maxK, n)
	minK = min(minK, maxK)
	return minK, maxK
}

// Fit normalizes the features, picks k (fixed or by silhouette scan) and
// returns clusters ordered by descending average MRR.
func Fit(features []Features, opts Options) outcome.Outcome[Model] {
	n := len(features)
	if n < 2 {
		return outcome.Insufficient[Model]("clustering needs at least two customers", 2, n)
	}
	opts = opts.withDefaults()

	raw := make([][]float64, n)
	for i, f := range features {
		raw[i] = f.Vector()
	}
	points, bounds := Normalize(raw)

	var chosen KMeansResult
	var candidates []Candidate
	if opts.K > 0 {
		chosen = KMeans(points, opts.K, opts)
	} else {
		minK, maxK := KRange(n, opts)
		bestScore := 0.0
		for k := minK; k <= maxK; k++ {
			res := KMeans(points, k, opts)
			sil := Silhouette(points, res.Assignments, res.K)
			cand := Candidate{
				K:          res.K,
				Silhouette: sil,
				Inertia:    res.Inertia,
				Score:      sil + opts.SimplicityBonus*float64(maxK-k),
			}
			candidates = append(candidates, cand)
			if k == minK || cand.Score > bestScore {
				bestScore = cand.Score
				chosen = res
			}
		}
	}

	model := Model{
		K:          chosen.K,
		Silhouette: Silhouette(points, chosen.Assignments, chosen.K),
		Inertia:    chosen.Inertia,
		Converged:  chosen.Converged,
		Iterations: chosen.Iterations,
		Candidates: candidates,
		Bounds:     bounds,
	}
	model.Clusters, model.Assignments = buildClusters(features, chosen)
	model.K = len(model.Clusters)
	nameClusters(model.Clusters)
	return outcome.Sufficient(model)
}

func buildClusters(features []Features, res KMeansResult) ([]Cluster, map[uuid.UUID]int) {
	clusters := make([]Cluster, res.K)
	for c := range clusters {
		clusters[c].Centroid = res.Centroids[c]
	}
	for i, f := range features {
		c := &clusters[res.Assignments[i]]
		c.Size++
		c.Members = append(c.Members, f.CustomerID)
		c.Averages.MRR += f.MRR
		c.Averages.Tenure += f.Tenure
		c.Averages.GrowthRate += f.GrowthRate
		c.Averages.CompanySize += f.CompanySize
		c.Averages.UsageScore += f.UsageScore
	}

	kept := clusters[:0]
	for _, c := range clusters {
		if c.Size == 0 {
			continue
		}
		size := float64(c.Size)
		c.Averages.MRR /= size
		c.Averages.Tenure /= size
		c.Averages.GrowthRate /= size
		c.Averages.CompanySize /= size
		c.Averages.UsageScore /= size
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Averages.MRR > kept[j].Averages.MRR })

	assignments := make(map[uuid.UUID]int, len(features))
	for idx := range kept {
		kept[idx].Index = idx
		kept[idx].Levels = LevelsOf(kept[idx].Centroid)
		for _, id := range kept[idx].Members {
			assignments[id] = idx
		}
	}
	return kept, assignments
}
