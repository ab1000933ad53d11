// Package cohort groups customers by acquisition month and measures how many
// of them, and how much of their revenue, survive each following month.
package cohort

import (
	"sort"
	"time"

	"ontology/internal/customers"
	"ontology/internal/shared/stats"
)

type Config struct {
	LookbackMonths   int
	MaxMonthsToTrack int
}

func DefaultConfig() Config {
	return Config{LookbackMonths: 24, MaxMonthsToTrack: 12}
}

// Row is one (cohort, month offset) observation.
type Row struct {
	CohortMonth          string  `json:"cohort_month"`
	MonthOffset          int     `json:"month_offset"`
	CohortSize           int     `json:"cohort_size"`
	RetainedCount        int     `json:"retained_count"`
	RetentionRate        float64 `json:"retention_rate"`
	StartingMRR          float64 `json:"starting_mrr"`
	RetainedMRR          float64 `json:"retained_mrr"`
	RevenueRetentionRate float64 `json:"revenue_retention_rate"`
}

// Curve is a cohort's retention indexed by month offset.
type Curve struct {
	CohortMonth      string    `json:"cohort_month"`
	CohortSize       int       `json:"cohort_size"`
	StartingMRR      float64   `json:"starting_mrr"`
	Retention        []float64 `json:"retention"`
	RevenueRetention []float64 `json:"revenue_retention"`
}

// Aggregate averages curves across cohorts. Index i holds offset i, computed
// over the cohorts old enough to have reached it.
type Aggregate struct {
	Mean        []float64 `json:"mean"`
	RevenueMean []float64 `json:"revenue_mean"`
	Median      []float64 `json:"median"`
	CohortCount int       `json:"cohort_count"`
}

type Result struct {
	Rows      []Row     `json:"rows"`
	Curves    []Curve   `json:"curves"`
	Aggregate Aggregate `json:"aggregate"`
}

// Analyze builds cohort rows, per-cohort curves and the cross-cohort aggregate
// for customers acquired within the lookback window ending at now.
func Analyze(all []customers.Customer, now time.Time, cfg Config) Result {
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = DefaultConfig().LookbackMonths
	}
	if cfg.MaxMonthsToTrack <= 0 {
		cfg.MaxMonthsToTrack = DefaultConfig().MaxMonthsToTrack
	}

	windowStart := customers.MonthStart(now).AddDate(0, -cfg.LookbackMonths, 0)
	groups := make(map[string][]customers.Customer)
	for _, c := range all {
		if c.CreatedAt.Before(windowStart) || c.CreatedAt.After(now) {
			continue
		}
		key := customers.MonthKey(c.CreatedAt)
		groups[key] = append(groups[key], c)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows []Row
	for _, key := range keys {
		rows = append(rows, cohortRows(key, groups[key], now, cfg.MaxMonthsToTrack)...)
	}

	curves := BuildCurves(rows)
	return Result{
		Rows:      rows,
		Curves:    curves,
		Aggregate: AggregateCurves(curves),
	}
}

func cohortRows(key string, members []customers.Customer, now time.Time, maxMonths int) []Row {
	start, err := time.Parse("2006-01", key)
	if err != nil {
		return nil
	}
	monthsSince := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	lastOffset := min(max(monthsSince, 0), maxMonths)

	startingMRR := 0.0
	for _, m := range members {
		startingMRR += m.MRR
	}

	rows := make([]Row, 0, lastOffset+1)
	for offset := 0; offset <= lastOffset; offset++ {
		row := Row{
			CohortMonth: key,
			MonthOffset: offset,
			CohortSize:  len(members),
			StartingMRR: startingMRR,
		}

		if offset == 0 {
			// acquisition month is the baseline every member starts from
			row.RetainedCount = len(members)
			row.RetainedMRR = startingMRR
		} else {
			checkDate := start.AddDate(0, offset, 0)
			for _, m := range members {
				if m.CreatedAt.After(checkDate) {
					continue
				}
				if retainedAt(m, checkDate) {
					row.RetainedCount++
					row.RetainedMRR += m.MRR
				}
			}
		}

		if row.CohortSize > 0 {
			row.RetentionRate = float64(row.RetainedCount) / float64(row.CohortSize)
			if offset == 0 {
				row.RevenueRetentionRate = 1
			}
		}
		if offset > 0 && row.StartingMRR > 0 {
			row.RevenueRetentionRate = min(row.RetainedMRR/row.StartingMRR, 1)
		}
		rows = append(rows, row)
	}
	return rows
}

func retainedAt(c customers.Customer, checkDate time.Time) bool {
	if c.ChurnedAt != nil {
		return c.ChurnedAt.After(checkDate)
	}
	return c.Status.IsLive()
}

// BuildCurves reshapes rows into one curve per cohort, ordered by cohort month.
func BuildCurves(rows []Row) []Curve {
	index := make(map[string]int)
	var curves []Curve
	for _, r := range rows {
		i, ok := index[r.CohortMonth]
		if !ok {
			i = len(curves)
			index[r.CohortMonth] = i
			curves = append(curves, Curve{
				CohortMonth: r.CohortMonth,
				CohortSize:  r.CohortSize,
				StartingMRR: r.StartingMRR,
			})
		}
		c := &curves[i]
		for len(c.Retention) <= r.MonthOffset {
			c.Retention = append(c.Retention, 0)
			c.RevenueRetention = append(c.RevenueRetention, 0)
		}
		c.Retention[r.MonthOffset] = r.RetentionRate
		c.RevenueRetention[r.MonthOffset] = r.RevenueRetentionRate
	}
	sort.Slice(curves, func(a, b int) bool { return curves[a].CohortMonth < curves[b].CohortMonth })
	return curves
}

// AggregateCurves averages non-empty cohort curves offset by offset.
func AggregateCurves(curves []Curve) Aggregate {
	longest := 0
	count := 0
	for _, c := range curves {
		if c.CohortSize == 0 {
			continue
		}
		count++
		longest = max(longest, len(c.Retention))
	}

	agg := Aggregate{
		Mean:        make([]float64, 0, longest),
		RevenueMean: make([]float64, 0, longest),
		Median:      make([]float64, 0, longest),
		CohortCount: count,
	}
	for offset := 0; offset < longest; offset++ {
		var rates, revenue []float64
		for _, c := range curves {
			if c.CohortSize == 0 || offset >= len(c.Retention) {
				continue
			}
			rates = append(rates, c.Retention[offset])
			revenue = append(revenue, c.RevenueRetention[offset])
		}
		if len(rates) == 0 {
			break
		}
		agg.Mean = append(agg.Mean, stats.Mean(rates))
		agg.RevenueMean = append(agg.RevenueMean, stats.Mean(revenue))
		agg.Median = append(agg.Median, stats.Median(rates))
	}
	return agg
}
