package patterns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"ontology/internal/customers"
	"ontology/internal/shared/outcome"
	"ontology/internal/shared/stats"
)

type SeasonalConfig struct {
	MinDataPoints     int
	HistoryMonths     int
	PeakThreshold     float64
	YearEndThreshold  float64
	HighlightedMonths int
}

func DefaultSeasonalConfig() SeasonalConfig {
	return SeasonalConfig{
		MinDataPoints:     12,
		HistoryMonths:     36,
		PeakThreshold:     0.15,
		YearEndThreshold:  0.2,
		HighlightedMonths: 3,
	}
}

// MonthlySnapshot is the state of the book at the end of one calendar month.
type MonthlySnapshot struct {
	Month        time.Time `json:"month"`
	MRR          float64   `json:"mrr"`
	Customers    int       `json:"customers"`
	NewCustomers int       `json:"new_customers"`
	Churned      int       `json:"churned"`
}

// BuildMonthlySnapshots reconstructs month-end snapshots for up to the last
// months calendar months, starting no earlier than the first acquisition.
// MRR at a month end is today's MRR with later expansion deltas rolled back.
func BuildMonthlySnapshots(all []customers.Customer, events []customers.ExpansionEvent, months int, now time.Time) []MonthlySnapshot {
	if len(all) == 0 || months <= 0 {
		return nil
	}
	first := all[0].CreatedAt
	for _, c := range all {
		if c.CreatedAt.Before(first) {
			first = c.CreatedAt
		}
	}
	current := customers.MonthStart(now)
	start := current.AddDate(0, -(months - 1), 0)
	if f := customers.MonthStart(first); f.After(start) {
		start = f
	}

	byCustomer := make(map[uuid.UUID][]customers.ExpansionEvent)
	for _, e := range events {
		byCustomer[e.CustomerID] = append(byCustomer[e.CustomerID], e)
	}

	var out []MonthlySnapshot
	for m := start; !m.After(current); m = m.AddDate(0, 1, 0) {
		end := m.AddDate(0, 1, 0).Add(-time.Nanosecond)
		if end.After(now) {
			end = now
		}
		snap := MonthlySnapshot{Month: m}
		for _, c := range all {
			if !c.CreatedAt.Before(m) && !c.CreatedAt.After(end) {
				snap.NewCustomers++
			}
			if c.ChurnedAt != nil && !c.ChurnedAt.Before(m) && !c.ChurnedAt.After(end) {
				snap.Churned++
			}
			if !c.IsActiveAt(end) {
				continue
			}
			mrr := c.MRR
			for _, e := range byCustomer[c.ID] {
				if e.OccurredAt.After(end) {
					mrr -= e.MRRDelta
				}
			}
			snap.Customers++
			snap.MRR += max(mrr, 0)
		}
		out = append(out, snap)
	}
	return out
}

type MonthIndex struct {
	Month   time.Month `json:"month"`
	Index   float64    `json:"index"`
	Samples int        `json:"samples"`
}

type SeasonalReport struct {
	DataPoints            int          `json:"data_points"`
	MonthlyIndex          []MonthIndex `json:"monthly_index"`
	PeakMonths            []time.Month `json:"peak_months"`
	TroughMonths          []time.Month `json:"trough_months"`
	QuarterlyIndex        [4]float64   `json:"quarterly_index"`
	PeakQuarters          []int        `json:"peak_quarters"`
	TroughQuarters        []int        `json:"trough_quarters"`
	YearEndVsMidYear      float64      `json:"year_end_vs_mid_year"`
	YearEndEffect         bool         `json:"year_end_effect"`
	Amplitude             float64      `json:"amplitude"`
	BestAcquisitionMonths []time.Month `json:"best_acquisition_months"`
	WorstChurnMonths      []time.Month `json:"worst_churn_months"`
	Confidence            float64      `json:"confidence"`
	Insights              []string     `json:"insights"`
}

// AnalyzeSeasonality derives calendar-month and quarter indexes from monthly
// snapshots. An index is the month's average MRR over the overall average.
func AnalyzeSeasonality(snapshots []MonthlySnapshot, cfg SeasonalConfig) outcome.Outcome[SeasonalReport] {
	def := DefaultSeasonalConfig()
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = def.MinDataPoints
	}
	if cfg.PeakThreshold <= 0 {
		cfg.PeakThreshold = def.PeakThreshold
	}
	if cfg.YearEndThreshold <= 0 {
		cfg.YearEndThreshold = def.YearEndThreshold
	}
	if cfg.HighlightedMonths <= 0 {
		cfg.HighlightedMonths = def.HighlightedMonths
	}
	if len(snapshots) < cfg.MinDataPoints {
		return outcome.Insufficient[SeasonalReport]("not enough monthly history for seasonality", cfg.MinDataPoints, len(snapshots))
	}

	total := 0.0
	sums := map[time.Month]float64{}
	samples := map[time.Month]int{}
	acquired := map[time.Month]int{}
	churned := map[time.Month]int{}
	for _, s := range snapshots {
		m := s.Month.Month()
		total += s.MRR
		sums[m] += s.MRR
		samples[m]++
		acquired[m] += s.NewCustomers
		churned[m] += s.Churned
	}
	overall := total / float64(len(snapshots))
	if overall <= 0 {
		return outcome.Insufficient[SeasonalReport]("no recurring revenue in the history", 1, 0)
	}

	r := SeasonalReport{DataPoints: len(snapshots)}
	index := map[time.Month]float64{}
	lo, hi := math.Inf(1), math.Inf(-1)
	for m := time.January; m <= time.December; m++ {
		if samples[m] == 0 {
			continue
		}
		idx := sums[m] / float64(samples[m]) / overall
		index[m] = idx
		lo, hi = min(lo, idx), max(hi, idx)
		r.MonthlyIndex = append(r.MonthlyIndex, MonthIndex{Month: m, Index: idx, Samples: samples[m]})
		switch {
		case idx > 1+cfg.PeakThreshold:
			r.PeakMonths = append(r.PeakMonths, m)
		case idx < 1-cfg.PeakThreshold:
			r.TroughMonths = append(r.TroughMonths, m)
		}
	}
	r.Amplitude = hi - lo

	for q := 0; q < 4; q++ {
		var vals []float64
		for m := time.Month(q*3 + 1); m <= time.Month(q*3+3); m++ {
			if v, ok := index[m]; ok {
				vals = append(vals, v)
			}
		}
		r.QuarterlyIndex[q] = stats.Mean(vals)
		if len(vals) == 0 {
			continue
		}
		switch {
		case r.QuarterlyIndex[q] > 1+cfg.PeakThreshold:
			r.PeakQuarters = append(r.PeakQuarters, q+1)
		case r.QuarterlyIndex[q] < 1-cfg.PeakThreshold:
			r.TroughQuarters = append(r.TroughQuarters, q+1)
		}
	}

	yearEnd := monthsMean(index, time.October, time.December)
	midYear := monthsMean(index, time.April, time.September)
	if midYear > 0 {
		r.YearEndVsMidYear = yearEnd/midYear - 1
		r.YearEndEffect = math.Abs(r.YearEndVsMidYear) > cfg.YearEndThreshold
	}

	r.BestAcquisitionMonths = topMonths(acquired, cfg.HighlightedMonths)
	r.WorstChurnMonths = topMonths(churned, cfg.HighlightedMonths)

	years := float64(len(snapshots)) / 12
	r.Confidence = math.Min(0.5+0.25*(years-1), 0.95)
	r.Insights = seasonalInsights(r)
	return outcome.Sufficient(r)
}

func monthsMean(index map[time.Month]float64, from, to time.Month) float64 {
	var vals []float64
	for m := from; m <= to; m++ {
		if v, ok := index[m]; ok {
			vals = append(vals, v)
		}
	}
	return stats.Mean(vals)
}

// topMonths returns up to n months with the highest non-zero counts.
func topMonths(counts map[time.Month]int, n int) []time.Month {
	var months []time.Month
	for m := time.January; m <= time.December; m++ {
		if counts[m] > 0 {
			months = append(months, m)
		}
	}
	sort.SliceStable(months, func(i, j int) bool { return counts[months[i]] > counts[months[j]] })
	if len(months) > n {
		months = months[:n]
	}
	return months
}

func seasonalInsights(r SeasonalReport) []string {
	var out []string
	if len(r.PeakMonths) == 0 && len(r.TroughMonths) == 0 {
		out = append(out, fmt.Sprintf("Revenue is steady through the year (amplitude %.0f%%)", r.Amplitude*100))
	}
	if len(r.PeakMonths) > 0 {
		out = append(out, fmt.Sprintf("Revenue peaks in %s", monthList(r.PeakMonths)))
	}
	if len(r.TroughMonths) > 0 {
		out = append(out, fmt.Sprintf("Revenue dips in %s", monthList(r.TroughMonths)))
	}
	if r.YearEndEffect {
		dir := "above"
		if r.YearEndVsMidYear < 0 {
			dir = "below"
		}
		out = append(out, fmt.Sprintf("Year-end revenue runs %.0f%% %s mid-year", math.Abs(r.YearEndVsMidYear)*100, dir))
	}
	if len(r.BestAcquisitionMonths) > 0 {
		out = append(out, fmt.Sprintf("Best acquisition months: %s", monthList(r.BestAcquisitionMonths)))
	}
	if len(r.WorstChurnMonths) > 0 {
		out = append(out, fmt.Sprintf("Churn concentrates in %s", monthList(r.WorstChurnMonths)))
	}
	if r.Confidence < 0.6 {
		out = append(out, "Less than two years of history; treat seasonal findings as tentative")
	}
	return out
}

func monthList(months []time.Month) string {
	s := ""
	for i, m := range months {
		if i > 0 {
			s += ", "
		}
		s += m.String()
	}
	return s
}

// ToPatterns emits rows for monthly peaks and troughs, quarterly swings and
// the year-end effect.
func (r SeasonalReport) ToPatterns(orgID uuid.UUID, now time.Time) []Pattern {
	row := func(name, desc, action string, freq float64, details map[string]any) Pattern {
		return Pattern{
			OrganizationID:    orgID,
			Type:              TypeSeasonal,
			Name:              name,
			Description:       desc,
			Frequency:         freq,
			Confidence:        r.Confidence,
			SampleSize:        r.DataPoints,
			RecommendedAction: action,
			Details:           details,
			IsActive:          true,
			DetectedAt:        now,
		}
	}

	var out []Pattern
	if len(r.PeakMonths) > 0 {
		out = append(out, row("Seasonal peak: "+monthList(r.PeakMonths),
			"Monthly revenue index above 1.15",
			"Staff sales and support for peak months and launch campaigns ahead of them",
			float64(len(r.PeakMonths))/12,
			map[string]any{"months": monthNumbers(r.PeakMonths), "amplitude": r.Amplitude}))
	}
	if len(r.TroughMonths) > 0 {
		out = append(out, row("Seasonal trough: "+monthList(r.TroughMonths),
			"Monthly revenue index below 0.85",
			"Schedule retention offers and annual-plan pushes before trough months",
			float64(len(r.TroughMonths))/12,
			map[string]any{"months": monthNumbers(r.TroughMonths), "amplitude": r.Amplitude}))
	}
	if len(r.PeakQuarters) > 0 || len(r.TroughQuarters) > 0 {
		out = append(out, row("Quarterly revenue swing",
			fmt.Sprintf("Peak quarters %v, trough quarters %v", r.PeakQuarters, r.TroughQuarters),
			"Align quarterly targets with the seasonal index",
			float64(len(r.PeakQuarters)+len(r.TroughQuarters))/4,
			map[string]any{"quarterly_index": r.QuarterlyIndex[:]}))
	}
	if r.YearEndEffect {
		out = append(out, row("Year-end effect",
			fmt.Sprintf("Q4 revenue index differs from mid-year by %.0f%%", r.YearEndVsMidYear*100),
			"Plan budget-cycle renewals and promotions around year end",
			0.25,
			map[string]any{"year_end_vs_mid_year": r.YearEndVsMidYear}))
	}
	return out
}

func monthNumbers(months []time.Month) []int {
	out := make([]int, len(months))
	for i, m := range months {
		out[i] = int(m)
	}
	return out
}
