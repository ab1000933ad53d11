package patterns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"ontology/internal/customers"
	"ontology/internal/shared/stats"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight is the base risk contribution of a signal at this severity.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 75
	case SeverityHigh:
		return 50
	case SeverityMedium:
		return 30
	case SeverityLow:
		return 15
	}
	return 0
}

const (
	SignalDowngradeRecent = "downgrade_recent"
	SignalEngagementDrop  = "engagement_drop"
	SignalContractEnding  = "contract_ending"
	SignalUsageDecline    = "usage_decline"
)

type ChurnConfig struct {
	DowngradeWindowMonths int
	RenewalWindowMonths   int
	UsageDeclineThreshold float64
	RiskThreshold         int
	TopN                  int
}

func DefaultChurnConfig() ChurnConfig {
	return ChurnConfig{
		DowngradeWindowMonths: 3,
		RenewalWindowMonths:   2,
		UsageDeclineThreshold: 0.7,
		RiskThreshold:         30,
		TopN:                  20,
	}
}

type ChurnInput struct {
	Customers []customers.Customer
	Events    []customers.ExpansionEvent
	Usage     customers.UsageSource
	Now       time.Time
}

type ChurnRisk struct {
	CustomerID    uuid.UUID `json:"customer_id"`
	Name          string    `json:"name"`
	MRR           float64   `json:"mrr"`
	RiskScore     int       `json:"risk_score"`
	PrimaryReason string    `json:"primary_reason"`
	Signals       []Signal  `json:"signals"`
}

type ChurnReport struct {
	AtRisk       []ChurnRisk    `json:"at_risk"`
	TotalAtRisk  int            `json:"total_at_risk"`
	Analyzed     int            `json:"analyzed"`
	MRRAtRisk    float64        `json:"mrr_at_risk"`
	SignalCounts map[string]int `json:"signal_counts"`
	Insights     []string       `json:"insights"`

	signalConfidence map[string][]float64
}

// DetectChurnRisks scores live customers on churn signals and returns those
// whose risk score exceeds the threshold.
func DetectChurnRisks(in ChurnInput, cfg ChurnConfig) ChurnReport {
	if in.Usage == nil {
		in.Usage = customers.NoUsage{}
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultChurnConfig().TopN
	}
	contraction := trailingContraction(in.Events, in.Now, cfg.DowngradeWindowMonths)

	report := ChurnReport{
		SignalCounts:     map[string]int{},
		signalConfidence: map[string][]float64{},
	}
	var all []ChurnRisk
	for _, c := range in.Customers {
		if !c.IsLive() {
			continue
		}
		report.Analyzed++

		signals := churnSignals(c, contraction[c.ID], in.Usage, in.Now, cfg)
		if len(signals) == 0 {
			continue
		}
		score := RiskScore(signals)
		if score <= cfg.RiskThreshold {
			continue
		}
		risk := ChurnRisk{
			CustomerID:    c.ID,
			Name:          c.Name,
			MRR:           c.MRR,
			RiskScore:     score,
			PrimaryReason: primary(signals).Type,
			Signals:       signals,
		}
		for _, s := range signals {
			report.SignalCounts[s.Type]++
			report.signalConfidence[s.Type] = append(report.signalConfidence[s.Type], s.Confidence)
		}
		all = append(all, risk)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].RiskScore != all[j].RiskScore {
			return all[i].RiskScore > all[j].RiskScore
		}
		if all[i].MRR != all[j].MRR {
			return all[i].MRR > all[j].MRR
		}
		return all[i].CustomerID.String() < all[j].CustomerID.String()
	})

	report.TotalAtRisk = len(all)
	for _, r := range all {
		report.MRRAtRisk += r.MRR
	}
	if len(all) > cfg.TopN {
		all = all[:cfg.TopN]
	}
	report.AtRisk = all
	report.Insights = churnInsights(report)
	return report
}

func churnSignals(c customers.Customer, contracted float64, usage customers.UsageSource, now time.Time, cfg ChurnConfig) []Signal {
	var signals []Signal

	if contracted > 0 {
		fraction := contracted / (c.MRR + contracted)
		signals = append(signals, Signal{
			Type:       SignalDowngradeRecent,
			Severity:   downgradeSeverity(fraction),
			Confidence: 0.9,
			Detail:     fmt.Sprintf("MRR reduced by $%.0f (%.0f%%) in the last %d months", contracted, fraction*100, cfg.DowngradeWindowMonths),
		})
	}

	tenure := c.TenureMonths(now)
	switch {
	case tenure <= 3:
		signals = append(signals, Signal{
			Type:       SignalEngagementDrop,
			Severity:   SeverityMedium,
			Confidence: 0.6,
			Detail:     fmt.Sprintf("still onboarding at %d months", tenure),
		})
	case tenure > 12 && c.MRR < 100:
		signals = append(signals, Signal{
			Type:       SignalEngagementDrop,
			Severity:   SeverityLow,
			Confidence: 0.5,
			Detail:     fmt.Sprintf("long-tenured at only $%.0f MRR", c.MRR),
		})
	}

	if c.BillingInterval == customers.BillingAnnual {
		if left := monthsToRenewal(c.CreatedAt, now); left <= cfg.RenewalWindowMonths {
			sev := SeverityMedium
			if left <= 1 {
				sev = SeverityHigh
			}
			signals = append(signals, Signal{
				Type:       SignalContractEnding,
				Severity:   sev,
				Confidence: 0.7,
				Detail:     fmt.Sprintf("annual contract renews in %d months", left),
			})
		}
	}

	if decline, ok := usage.UsageDecline(c.ID); ok && decline > cfg.UsageDeclineThreshold {
		sev := SeverityHigh
		if decline > 0.9 {
			sev = SeverityCritical
		}
		signals = append(signals, Signal{
			Type:       SignalUsageDecline,
			Severity:   sev,
			Confidence: 0.8,
			Detail:     fmt.Sprintf("usage down %.0f%% versus the prior period", decline*100),
		})
	}
	return signals
}

// RiskScore is round(min((maxSeverityWeight + bonus) × avgConfidence, 100)),
// where each signal beyond the first adds 8 points up to 25.
func RiskScore(signals []Signal) int {
	if len(signals) == 0 {
		return 0
	}
	maxWeight := 0.0
	conf := make([]float64, len(signals))
	for i, s := range signals {
		maxWeight = max(maxWeight, s.Severity.Weight())
		conf[i] = s.Confidence
	}
	bonus := math.Min(float64(len(signals)-1)*8, 25)
	return int(math.Round(math.Min((maxWeight+bonus)*stats.Mean(conf), 100)))
}

func downgradeSeverity(fraction float64) Severity {
	switch {
	case fraction >= 0.5:
		return SeverityCritical
	case fraction >= 0.3:
		return SeverityHigh
	case fraction >= 0.15:
		return SeverityMedium
	}
	return SeverityLow
}

func monthsToRenewal(created, now time.Time) int {
	next := created
	for !next.After(now) {
		next = next.AddDate(1, 0, 0)
	}
	return customers.MonthsBetween(now, next)
}

func trailingContraction(events []customers.ExpansionEvent, now time.Time, months int) map[uuid.UUID]float64 {
	since := now.AddDate(0, -months, 0)
	out := make(map[uuid.UUID]float64)
	for _, e := range events {
		if e.MRRDelta >= 0 || e.OccurredAt.Before(since) || e.OccurredAt.After(now) {
			continue
		}
		out[e.CustomerID] += -e.MRRDelta
	}
	return out
}

func primary(signals []Signal) Signal {
	best := signals[0]
	for _, s := range signals[1:] {
		if s.Severity.Weight() > best.Severity.Weight() {
			best = s
		}
	}
	return best
}

func churnInsights(r ChurnReport) []string {
	if r.TotalAtRisk == 0 {
		return []string{"No customers above the churn risk threshold"}
	}
	out := []string{
		fmt.Sprintf("%d of %d customers are at risk, putting $%.0f MRR in play", r.TotalAtRisk, r.Analyzed, r.MRRAtRisk),
	}
	if top, n := dominant(r.SignalCounts); n > 0 {
		out = append(out, fmt.Sprintf("Leading churn signal: %s (%d customers)", top, n))
	}
	critical := 0
	for _, c := range r.AtRisk {
		if c.RiskScore >= 60 {
			critical++
		}
	}
	if critical > 0 {
		out = append(out, fmt.Sprintf("%d customers score 60 or higher and need outreach this week", critical))
	}
	return out
}

// ToPatterns emits one row per churn signal type observed among at-risk customers.
func (r ChurnReport) ToPatterns(orgID uuid.UUID, now time.Time) []Pattern {
	actions := map[string]string{
		SignalDowngradeRecent: "Run a success review with recently downgraded accounts",
		SignalEngagementDrop:  "Tighten onboarding and re-engagement for low-activity accounts",
		SignalContractEnding:  "Start renewal conversations before the contract end date",
		SignalUsageDecline:    "Contact accounts whose usage has collapsed",
	}
	var out []Pattern
	for _, kind := range sortedKeys(r.SignalCounts) {
		count := r.SignalCounts[kind]
		mrr := 0.0
		for _, c := range r.AtRisk {
			for _, s := range c.Signals {
				if s.Type == kind {
					mrr += c.MRR
					break
				}
			}
		}
		out = append(out, Pattern{
			OrganizationID:    orgID,
			Type:              TypeChurn,
			Name:              "Churn signal: " + kind,
			Description:       fmt.Sprintf("%d at-risk customers show %s", count, kind),
			Frequency:         share(count, r.Analyzed),
			Confidence:        stats.Mean(r.signalConfidence[kind]),
			SampleSize:        r.Analyzed,
			RecommendedAction: actions[kind],
			Details:           map[string]any{"signal": kind, "customers": count, "listed_mrr": mrr},
			IsActive:          true,
			DetectedAt:        now,
		})
	}
	return out
}
