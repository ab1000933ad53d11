// Package ltv estimates discounted customer lifetime value from a retention
// curve, or from observed churn when no curve is available.
package ltv

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"ontology/internal/customers"
	"ontology/internal/shared/stats"
)

type Method string

const (
	MethodRetentionCurve Method = "retention_curve"
	MethodChurnBased     Method = "churn_based"
)

type Config struct {
	GrossMargin         float64
	AnnualDiscountRate  float64
	MaxProjectionMonths int
	DefaultMonthlyChurn float64
	RetentionFloor      float64
}

func DefaultConfig() Config {
	return Config{
		GrossMargin:         0.70,
		AnnualDiscountRate:  0.10,
		MaxProjectionMonths: 60,
		DefaultMonthlyChurn: 0.05,
		RetentionFloor:      0.01,
	}
}

// Input carries the populations and the aggregate retention curve (index = month offset).
type Input struct {
	ActiveCustomers  []customers.Customer
	ChurnedCustomers []customers.Customer
	Retention        []float64
	SegmentNames     map[uuid.UUID]string
	Now              time.Time
}

type Distribution struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P90  float64 `json:"p90"`
}

type SegmentLTV struct {
	SegmentID     uuid.UUID `json:"segment_id"`
	Name          string    `json:"name"`
	CustomerCount int       `json:"customer_count"`
	ARPU          float64   `json:"arpu"`
	LTV           float64   `json:"ltv"`
}

type Result struct {
	Method           Method       `json:"method"`
	ARPU             float64      `json:"arpu"`
	AverageLTV       float64      `json:"average_ltv"`
	MonthlyChurnRate float64      `json:"monthly_churn_rate"`
	LifetimeFactor   float64      `json:"lifetime_factor"`
	ProjectedCurve   []float64    `json:"projected_curve,omitempty"`
	Distribution     Distribution `json:"distribution"`
	Segments         []SegmentLTV `json:"segments"`

	grossMargin float64
}

// Calculate values every active customer with the same lifetime factor: the
// discounted margin one unit of MRR earns over its expected life.
func Calculate(in Input, cfg Config) Result {
	cfg = withDefaults(cfg)

	var res Result
	if len(in.Retention) > 0 && in.Retention[0] > 0 {
		res.Method = MethodRetentionCurve
		res.ProjectedCurve = ProjectCurve(in.Retention, cfg.MaxProjectionMonths, cfg.RetentionFloor)
		res.LifetimeFactor = curveFactor(res.ProjectedCurve, cfg)
		res.MonthlyChurnRate = impliedChurn(res.ProjectedCurve)
	} else {
		res.Method = MethodChurnBased
		res.MonthlyChurnRate = ChurnRateFromTenure(in.ChurnedCustomers, in.Now, cfg.DefaultMonthlyChurn)
		res.LifetimeFactor = cfg.GrossMargin / res.MonthlyChurnRate
	}
	res.grossMargin = cfg.GrossMargin

	values := make([]float64, 0, len(in.ActiveCustomers))
	total := 0.0
	for _, c := range in.ActiveCustomers {
		values = append(values, res.ValueOf(c.MRR))
		total += c.MRR
	}
	if len(in.ActiveCustomers) > 0 {
		res.ARPU = total / float64(len(in.ActiveCustomers))
	}
	res.AverageLTV = res.ValueOf(res.ARPU)
	res.Distribution = distribution(values)
	res.Segments = segmentLTVs(in, res)
	return res
}

// ValueOf is the lifetime value of a customer paying arpu per month.
func (r Result) ValueOf(arpu float64) float64 {
	if r.Method == MethodChurnBased && r.MonthlyChurnRate > 0 {
		return arpu * r.grossMargin / r.MonthlyChurnRate
	}
	return arpu * r.LifetimeFactor
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.GrossMargin <= 0 {
		cfg.GrossMargin = def.GrossMargin
	}
	if cfg.AnnualDiscountRate < 0 {
		cfg.AnnualDiscountRate = def.AnnualDiscountRate
	}
	if cfg.MaxProjectionMonths <= 0 {
		cfg.MaxProjectionMonths = def.MaxProjectionMonths
	}
	if cfg.DefaultMonthlyChurn <= 0 {
		cfg.DefaultMonthlyChurn = def.DefaultMonthlyChurn
	}
	if cfg.RetentionFloor <= 0 {
		cfg.RetentionFloor = def.RetentionFloor
	}
	return cfg
}

// ProjectCurve extends observed retention to length months. Each projected
// point decays by the mean month-over-month ratio of the last three observed
// transitions and never drops below floor.
func ProjectCurve(observed []float64, length int, floor float64) []float64 {
	if len(observed) >= length {
		out := make([]float64, length)
		copy(out, observed[:length])
		return out
	}

	out := make([]float64, len(observed), length)
	copy(out, observed)

	decay := 0.95
	var ratios []float64
	for i := len(observed) - 1; i >= 1 && len(ratios) < 3; i-- {
		if observed[i-1] > 0 {
			ratios = append(ratios, observed[i]/observed[i-1])
		}
	}
	if len(ratios) > 0 {
		sum := 0.0
		for _, r := range ratios {
			sum += r
		}
		decay = min(sum/float64(len(ratios)), 1)
	}

	last := out[len(out)-1]
	for len(out) < length {
		last = max(last*decay, floor)
		out = append(out, last)
	}
	return out
}

func curveFactor(curve []float64, cfg Config) float64 {
	monthlyDiscount := cfg.AnnualDiscountRate / 12
	factor := 0.0
	for month, retained := range curve {
		factor += retained * cfg.GrossMargin / math.Pow(1+monthlyDiscount, float64(month))
	}
	return factor
}

// impliedChurn reports the average monthly loss across the first year of the curve.
func impliedChurn(curve []float64) float64 {
	n := min(len(curve), 13)
	if n < 2 || curve[0] <= 0 {
		return 0
	}
	survival := curve[n-1] / curve[0]
	if survival <= 0 {
		return 1
	}
	return 1 - math.Pow(survival, 1/float64(n-1))
}

// ChurnRateFromTenure is 1 / average tenure of churned customers, or fallback
// when nobody has churned yet.
func ChurnRateFromTenure(churned []customers.Customer, now time.Time, fallback float64) float64 {
	if len(churned) == 0 {
		return fallback
	}
	total := 0
	for _, c := range churned {
		total += c.TenureMonths(now)
	}
	avg := float64(total) / float64(len(churned))
	if avg < 1 {
		return 1
	}
	return 1 / avg
}

func distribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := slices.Sorted(slices.Values(values))
	return Distribution{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: stats.Mean(sorted),
		P25:  stats.Percentile(sorted, 25),
		P50:  stats.Percentile(sorted, 50),
		P75:  stats.Percentile(sorted, 75),
		P90:  stats.Percentile(sorted, 90),
	}
}

func segmentLTVs(in Input, res Result) []SegmentLTV {
	type acc struct {
		count int
		mrr   float64
	}
	groups := make(map[uuid.UUID]*acc)
	for _, c := range in.ActiveCustomers {
		if c.SegmentID == nil {
			continue
		}
		a := groups[*c.SegmentID]
		if a == nil {
			a = &acc{}
			groups[*c.SegmentID] = a
		}
		a.count++
		a.mrr += c.MRR
	}

	out := make([]SegmentLTV, 0, len(groups))
	for id, a := range groups {
		arpu := a.mrr / float64(a.count)
		out = append(out, SegmentLTV{
			SegmentID:     id,
			Name:          in.SegmentNames[id],
			CustomerCount: a.count,
			ARPU:          arpu,
			LTV:           res.ValueOf(arpu),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LTV != out[j].LTV {
			return out[i].LTV > out[j].LTV
		}
		return out[i].SegmentID.String() < out[j].SegmentID.String()
	})
	return out
}
