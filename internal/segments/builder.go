// Package segments turns clustering and RFM output into named, economically
// described segments and maintains customer membership.
package segments

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"ontology/internal/clustering"
	"ontology/internal/customers"
	"ontology/internal/rfm"
	"ontology/internal/shared/stats"
)

const (
	// tenure above which the lower churn estimate applies
	loyalTenureMonths = 12
	loyalChurnRate    = 0.03
	defaultChurnRate  = 0.08
	ltvMargin         = 0.7
	curveMonths       = 12
	neutralUsageScore = 50
)

type Input struct {
	Customers    []customers.Customer
	Events       []customers.ExpansionEvent
	Transactions []customers.Transaction
	Usage        customers.UsageSource
	Now          time.Time
}

type Options struct {
	MinK               int
	MaxK               int
	GrowthWindowMonths int
	Rand               *rand.Rand
}

func DefaultOptions() Options {
	return Options{MinK: 3, MaxK: 6, GrowthWindowMonths: 6}
}

type Definition struct {
	Name           string                  `json:"name"`
	Description    string                  `json:"description"`
	ClusterIndex   int                     `json:"cluster_index"`
	CustomerCount  int                     `json:"customer_count"`
	TotalMRR       float64                 `json:"total_mrr"`
	AvgMRR         float64                 `json:"avg_mrr"`
	MinMRR         float64                 `json:"min_mrr"`
	MaxMRR         float64                 `json:"max_mrr"`
	AvgTenure      float64                 `json:"avg_tenure_months"`
	RevenueShare   float64                 `json:"revenue_share"`
	CompanySizes   []customers.CompanySize `json:"company_sizes"`
	RFMSegments    []rfm.Segment           `json:"rfm_segments"`
	ChurnRate      float64                 `json:"churn_rate"`
	LTV            float64                 `json:"ltv"`
	RetentionCurve []float64               `json:"retention_curve"`
	Centroid       []float64               `json:"centroid"`
	Criteria       Criteria                `json:"criteria"`
	Members        []uuid.UUID             `json:"-"`
}

type Quality struct {
	Silhouette        float64 `json:"silhouette"`
	SegmentCount      int     `json:"segment_count"`
	AvgSegmentSize    float64 `json:"avg_segment_size"`
	EconomicsVariance float64 `json:"economics_variance"`
}

type Result struct {
	Definitions []Definition          `json:"definitions"`
	Quality     Quality               `json:"quality"`
	RFM         []rfm.Score           `json:"-"`
	Features    []clustering.Features `json:"-"`
	Insights    []string              `json:"insights,omitempty"`
}

// RFMByCustomer indexes the run's RFM scores.
func (r Result) RFMByCustomer() map[uuid.UUID]rfm.Segment {
	out := make(map[uuid.UUID]rfm.Segment, len(r.RFM))
	for _, s := range r.RFM {
		out[s.CustomerID] = s.Segment
	}
	return out
}

// Build scores RFM over every customer, clusters the live ones and describes
// each cluster as a segment definition.
func Build(in Input, opts Options) Result {
	def := DefaultOptions()
	if opts.MinK <= 0 {
		opts.MinK = def.MinK
	}
	if opts.MaxK <= 0 {
		opts.MaxK = def.MaxK
	}
	if opts.GrowthWindowMonths <= 0 {
		opts.GrowthWindowMonths = def.GrowthWindowMonths
	}
	if in.Usage == nil {
		in.Usage = customers.NoUsage{}
	}

	res := Result{RFM: rfm.ScoreAll(in.Customers, in.Transactions, in.Now)}
	rfmSegments := res.RFMByCustomer()

	live := make([]customers.Customer, 0, len(in.Customers))
	for _, c := range in.Customers {
		if c.IsLive() {
			live = append(live, c)
		}
	}
	res.Features = ClusteringFeatures(live, in.Events, in.Usage, in.Now, opts.GrowthWindowMonths)

	fit := clustering.Fit(res.Features, clustering.Options{MinK: opts.MinK, MaxK: opts.MaxK, Rand: opts.Rand})
	model, ok := fit.Value()
	if !ok {
		res.Insights = append(res.Insights, fmt.Sprintf("Segmentation skipped: %s", fit.Insufficiency()))
		return res
	}

	byID := make(map[uuid.UUID]customers.Customer, len(live))
	for _, c := range live {
		byID[c.ID] = c
	}

	grandTotal := 0.0
	for _, c := range live {
		grandTotal += c.MRR
	}

	for _, cl := range model.Clusters {
		d := describeCluster(cl, byID, rfmSegments, in.Now)
		if grandTotal > 0 {
			d.RevenueShare = d.TotalMRR / grandTotal
		} else {
			d.RevenueShare = float64(d.CustomerCount) / float64(len(live))
		}
		res.Definitions = append(res.Definitions, d)
	}

	res.Quality = quality(model, res.Definitions)
	res.Insights = append(res.Insights, insights(res.Definitions, res.Quality)...)
	return res
}

// ClusteringFeatures derives the five clustering dimensions per customer.
// Growth is the net expansion delta over the trailing window divided by current MRR.
func ClusteringFeatures(live []customers.Customer, events []customers.ExpansionEvent, usage customers.UsageSource, now time.Time, windowMonths int) []clustering.Features {
	since := now.AddDate(0, -windowMonths, 0)
	net := make(map[uuid.UUID]float64)
	for _, e := range events {
		if e.IsReactivation() || e.OccurredAt.Before(since) || e.OccurredAt.After(now) {
			continue
		}
		net[e.CustomerID] += e.MRRDelta
	}

	out := make([]clustering.Features, 0, len(live))
	for _, c := range live {
		growth := 0.0
		if c.MRR > 0 {
			growth = net[c.ID] / c.MRR
		}
		score := float64(neutralUsageScore)
		if ratio, ok := usage.UsageRatio(c.ID); ok {
			score = max(0, min(100, ratio*100))
		}
		out = append(out, clustering.Features{
			CustomerID:  c.ID,
			MRR:         c.MRR,
			Tenure:      float64(c.TenureMonths(now)),
			GrowthRate:  growth,
			CompanySize: float64(c.CompanySize.Ordinal()),
			UsageScore:  score,
		})
	}
	return out
}

// EstimateChurnRate is a tenure heuristic standing in for per-segment cohort data.
func EstimateChurnRate(avgTenure float64) float64 {
	if avgTenure > loyalTenureMonths {
		return loyalChurnRate
	}
	return defaultChurnRate
}

// GeometricRetention returns (1-churn)^m for m in [0, months).
func GeometricRetention(churn float64, months int) []float64 {
	out := make([]float64, months)
	for m := range out {
		out[m] = math.Pow(1-churn, float64(m))
	}
	return out
}

func describeCluster(cl clustering.Cluster, byID map[uuid.UUID]customers.Customer, rfmSegments map[uuid.UUID]rfm.Segment, now time.Time) Definition {
	d := Definition{
		Name:         cl.Name,
		Description:  cl.Description,
		ClusterIndex: cl.Index,
		Centroid:     cl.Centroid,
		Members:      cl.Members,
		MinMRR:       math.Inf(1),
		MaxMRR:       math.Inf(-1),
	}

	sizes := map[customers.CompanySize]bool{}
	segs := map[rfm.Segment]bool{}
	minTenure, maxTenure := math.MaxInt, 0
	tenureSum := 0
	for _, id := range cl.Members {
		c := byID[id]
		d.CustomerCount++
		d.TotalMRR += c.MRR
		d.MinMRR = min(d.MinMRR, c.MRR)
		d.MaxMRR = max(d.MaxMRR, c.MRR)
		tenure := c.TenureMonths(now)
		tenureSum += tenure
		minTenure = min(minTenure, tenure)
		maxTenure = max(maxTenure, tenure)
		size := c.CompanySize
		if size == "" {
			size = customers.CompanySizeStartup
		}
		sizes[size] = true
		if s, ok := rfmSegments[id]; ok {
			segs[s] = true
		}
	}
	if d.CustomerCount == 0 {
		d.MinMRR, d.MaxMRR = 0, 0
		minTenure = 0
	} else {
		d.AvgMRR = d.TotalMRR / float64(d.CustomerCount)
		d.AvgTenure = float64(tenureSum) / float64(d.CustomerCount)
	}

	for s := range sizes {
		d.CompanySizes = append(d.CompanySizes, s)
	}
	slices.SortFunc(d.CompanySizes, func(a, b customers.CompanySize) int { return a.Ordinal() - b.Ordinal() })
	for s := range segs {
		d.RFMSegments = append(d.RFMSegments, s)
	}
	slices.Sort(d.RFMSegments)

	d.ChurnRate = EstimateChurnRate(d.AvgTenure)
	d.LTV = d.AvgMRR * 12 * (1 / d.ChurnRate) * ltvMargin
	d.RetentionCurve = GeometricRetention(d.ChurnRate, curveMonths)
	d.Criteria = Criteria{
		MRRRange{Min: d.MinMRR, Max: d.MaxMRR},
		TenureRange{Min: minTenure, Max: maxTenure},
		CompanySizes{Sizes: d.CompanySizes},
	}
	if len(d.RFMSegments) > 0 {
		d.Criteria = append(d.Criteria, RFMSegments{Segments: d.RFMSegments})
	}
	return d
}

func quality(model clustering.Model, defs []Definition) Quality {
	q := Quality{Silhouette: model.Silhouette, SegmentCount: len(defs)}
	if len(defs) == 0 {
		return q
	}
	total := 0
	avgs := make([]float64, len(defs))
	for i, d := range defs {
		total += d.CustomerCount
		avgs[i] = d.AvgMRR
	}
	q.AvgSegmentSize = float64(total) / float64(len(defs))
	q.EconomicsVariance = stats.CoefficientOfVariation(avgs)
	return q
}

func insights(defs []Definition, q Quality) []string {
	if len(defs) == 0 {
		return nil
	}
	ranked := make([]Definition, len(defs))
	copy(ranked, defs)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].RevenueShare > ranked[j].RevenueShare })

	out := []string{
		fmt.Sprintf("%d segments identified (silhouette %.2f)", q.SegmentCount, q.Silhouette),
		fmt.Sprintf("%s drives %.0f%% of MRR with %d customers", ranked[0].Name, ranked[0].RevenueShare*100, ranked[0].CustomerCount),
	}
	if q.Silhouette < 0.25 {
		out = append(out, "Segments overlap substantially; treat boundaries as soft")
	}
	if q.EconomicsVariance > 1 {
		out = append(out, "Segment economics differ sharply; price and package per segment")
	}
	return out
}
