// Package health scores live customers on usage, engagement and financial
// health and derives predictive probabilities and pattern tags.
package health

import (
	"math"
	"time"

	"github.com/google/uuid"

	"ontology/internal/customers"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

const (
	TagChurnSignal      = "churn_signal"
	TagExpansionReady   = "expansion_ready"
	TagOnboardingRisk   = "onboarding_risk"
	TagDowngradeRecent  = "downgrade_recent"
	TagChampionCustomer = "champion_customer"
)

const (
	baseSubScore     = 50
	trendThreshold   = 5
	recentWindow     = 90 * 24 * time.Hour
	HealthyFloor     = 70
	AtRiskFloor      = 40
	usageWeight      = 0.35
	engagementWeight = 0.35
	financialWeight  = 0.30
)

type Input struct {
	Customers []customers.Customer
	Events    []customers.ExpansionEvent
	// Prior holds yesterday's overall score per customer.
	Prior map[uuid.UUID]int
	Usage customers.UsageSource
}

type Probabilities struct {
	UpgradeReadiness   float64 `json:"upgrade_readiness"`
	ChurnRisk          float64 `json:"churn_risk"`
	ExpansionPotential float64 `json:"expansion_potential"`
}

type Score struct {
	CustomerID    uuid.UUID     `json:"customer_id"`
	Overall       int           `json:"overall"`
	Usage         float64       `json:"usage"`
	Engagement    float64       `json:"engagement"`
	Financial     float64       `json:"financial"`
	Trend         Trend         `json:"trend"`
	Velocity      int           `json:"velocity"`
	Probabilities Probabilities `json:"probabilities"`
	Patterns      []string      `json:"patterns"`
}

type Distribution struct {
	Healthy  int `json:"healthy"`
	AtRisk   int `json:"at_risk"`
	Critical int `json:"critical"`
}

func (d *Distribution) add(score int) {
	switch {
	case score >= HealthyFloor:
		d.Healthy++
	case score >= AtRiskFloor:
		d.AtRisk++
	default:
		d.Critical++
	}
}

type Result struct {
	Scores       []Score        `json:"scores"`
	Distribution Distribution   `json:"distribution"`
	Average      float64        `json:"average"`
	TagCounts    map[string]int `json:"tag_counts"`
}

type activity struct {
	expansion   float64
	contraction float64
}

// Calculate scores every live customer as of now.
func Calculate(in Input, now time.Time) Result {
	if in.Usage == nil {
		in.Usage = customers.NoUsage{}
	}
	recent := recentActivity(in.Events, now)

	res := Result{TagCounts: map[string]int{}}
	total := 0
	for _, c := range in.Customers {
		if !c.IsLive() {
			continue
		}
		s := scoreCustomer(c, recent[c.ID], in.Usage, now)
		if prior, ok := in.Prior[c.ID]; ok {
			s.Velocity = s.Overall - prior
			s.Trend = TrendFor(s.Velocity)
		} else {
			s.Trend = TrendStable
		}
		for _, tag := range s.Patterns {
			res.TagCounts[tag]++
		}
		res.Distribution.add(s.Overall)
		total += s.Overall
		res.Scores = append(res.Scores, s)
	}
	if len(res.Scores) > 0 {
		res.Average = float64(total) / float64(len(res.Scores))
	}
	return res
}

// TrendFor classifies a day-over-day change in the overall score.
func TrendFor(delta int) Trend {
	switch {
	case delta > trendThreshold:
		return TrendImproving
	case delta < -trendThreshold:
		return TrendDeclining
	}
	return TrendStable
}

func scoreCustomer(c customers.Customer, act activity, usage customers.UsageSource, now time.Time) Score {
	tenure := c.TenureMonths(now)
	u, e, f := float64(baseSubScore), float64(baseSubScore), float64(baseSubScore)

	switch {
	case c.MRR >= 1000:
		f += 20
	case c.MRR >= 500:
		f += 10
	case c.MRR < 100:
		f -= 10
	}

	switch {
	case tenure >= 24:
		e += 20
	case tenure >= 12:
		e += 10
	case tenure >= 6:
		e += 5
	case tenure <= 3:
		e -= 15
	}
	if c.Status == customers.StatusAtRisk {
		e -= 20
	}

	if act.expansion > 0 {
		u += 15
		e += 10
		f += 10
	}
	if act.contraction > 0 {
		u -= 15
		e -= 10
		f -= 15
	}

	if ratio, ok := usage.UsageRatio(c.ID); ok {
		u += (math.Min(ratio, 1) - 0.5) * 40
	}
	if decline, ok := usage.UsageDecline(c.ID); ok && decline > 0.3 {
		u -= 20
	}

	u, e, f = clamp(u, 0, 100), clamp(e, 0, 100), clamp(f, 0, 100)
	overall := int(math.Round(usageWeight*u + engagementWeight*e + financialWeight*f))

	s := Score{
		CustomerID: c.ID,
		Overall:    overall,
		Usage:      u,
		Engagement: e,
		Financial:  f,
	}
	s.Probabilities = probabilities(overall, act, tenure, c.MRR, c.Status)
	s.Patterns = tags(s, act, tenure)
	return s
}

func probabilities(score int, act activity, tenure int, mrr float64, status customers.Status) Probabilities {
	var p Probabilities

	switch {
	case score >= 80:
		p.UpgradeReadiness += 0.3
	case score >= 60:
		p.UpgradeReadiness += 0.15
	}
	if act.expansion > 0 {
		p.UpgradeReadiness += 0.3
	}
	if tenure >= 6 {
		p.UpgradeReadiness += 0.15
	}
	switch {
	case mrr < 500:
		p.UpgradeReadiness += 0.1
	case mrr >= 2000:
		p.UpgradeReadiness -= 0.1
	}

	switch {
	case score < AtRiskFloor:
		p.ChurnRisk += 0.4
	case score < 60:
		p.ChurnRisk += 0.2
	}
	if act.contraction > 0 {
		p.ChurnRisk += 0.3
	}
	if tenure <= 3 {
		p.ChurnRisk += 0.15
	}
	if mrr < 100 {
		p.ChurnRisk += 0.1
	}
	if status == customers.StatusAtRisk {
		p.ChurnRisk += 0.2
	}

	if score >= HealthyFloor {
		p.ExpansionPotential += 0.3
	}
	if act.expansion > 0 {
		p.ExpansionPotential += 0.25
	}
	if tenure >= 12 {
		p.ExpansionPotential += 0.15
	}
	if mrr >= 500 {
		p.ExpansionPotential += 0.15
	}

	p.UpgradeReadiness = clamp(p.UpgradeReadiness, 0, 1)
	p.ChurnRisk = clamp(p.ChurnRisk, 0, 1)
	p.ExpansionPotential = clamp(p.ExpansionPotential, 0, 1)
	return p
}

func tags(s Score, act activity, tenure int) []string {
	out := []string{}
	if s.Probabilities.ChurnRisk >= 0.5 {
		out = append(out, TagChurnSignal)
	}
	if s.Probabilities.ExpansionPotential >= 0.6 {
		out = append(out, TagExpansionReady)
	}
	if tenure <= 3 && s.Overall < 60 {
		out = append(out, TagOnboardingRisk)
	}
	if act.contraction > 0 {
		out = append(out, TagDowngradeRecent)
	}
	if s.Overall >= 80 && tenure >= 12 {
		out = append(out, TagChampionCustomer)
	}
	return out
}

func recentActivity(events []customers.ExpansionEvent, now time.Time) map[uuid.UUID]activity {
	since := now.Add(-recentWindow)
	out := make(map[uuid.UUID]activity)
	for _, e := range events {
		if e.IsReactivation() || e.OccurredAt.Before(since) || e.OccurredAt.After(now) {
			continue
		}
		a := out[e.CustomerID]
		if e.MRRDelta > 0 {
			a.expansion += e.MRRDelta
		} else {
			a.contraction -= e.MRRDelta
		}
		out[e.CustomerID] = a
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
