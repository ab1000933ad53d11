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

const (
	SignalRapidGrowth           = "rapid_growth"
	SignalTenureMilestone       = "tenure_milestone"
	SignalUsageLimitApproaching = "usage_limit_approaching"
	SignalFeatureExploration    = "feature_exploration"
)

type UpgradeConfig struct {
	GrowthWindowMonths   int
	RapidGrowthThreshold float64
	Milestones           []int
	MilestoneWindow      int
	UsageLimitRatio      float64
	ExplorationMRR       float64
	TopN                 int
}

func DefaultUpgradeConfig() UpgradeConfig {
	return UpgradeConfig{
		GrowthWindowMonths:   3,
		RapidGrowthThreshold: 0.2,
		Milestones:           []int{6, 12, 18, 24},
		MilestoneWindow:      2,
		UsageLimitRatio:      0.8,
		ExplorationMRR:       500,
		TopN:                 20,
	}
}

type UpgradeInput struct {
	Customers []customers.Customer
	Events    []customers.ExpansionEvent
	Tiers     []customers.PricingTier
	Usage     customers.UsageSource
	Now       time.Time
}

type UpgradeCandidate struct {
	CustomerID           uuid.UUID `json:"customer_id"`
	Name                 string    `json:"name"`
	CurrentMRR           float64   `json:"current_mrr"`
	CurrentTier          string    `json:"current_tier,omitempty"`
	NextTier             string    `json:"next_tier,omitempty"`
	Signals              []Signal  `json:"signals"`
	Score                int       `json:"score"`
	PotentialMRRIncrease float64   `json:"potential_mrr_increase"`
}

type UpgradeReport struct {
	Candidates      []UpgradeCandidate `json:"candidates"`
	TotalCandidates int                `json:"total_candidates"`
	Analyzed        int                `json:"analyzed"`
	PotentialMRR    float64            `json:"potential_mrr"`
	SignalCounts    map[string]int     `json:"signal_counts"`
	Insights        []string           `json:"insights"`

	signalConfidence map[string][]float64
}

// DetectUpgrades scores every live customer on upgrade signals and keeps the
// top candidates. A customer without a tier is placed on the most expensive
// tier its MRR covers.
func DetectUpgrades(in UpgradeInput, cfg UpgradeConfig) UpgradeReport {
	if in.Usage == nil {
		in.Usage = customers.NoUsage{}
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultUpgradeConfig().TopN
	}
	tiers := customers.SortTiers(in.Tiers)
	growth := trailingGrowth(in.Events, in.Now, cfg.GrowthWindowMonths)

	report := UpgradeReport{
		SignalCounts:     map[string]int{},
		signalConfidence: map[string][]float64{},
	}
	var all []UpgradeCandidate
	for _, c := range in.Customers {
		if !c.IsLive() {
			continue
		}
		report.Analyzed++

		tierIdx := tierIndex(c, tiers)
		var signals []Signal

		base := c.MRR - growth[c.ID]
		if growth[c.ID] > 0 {
			rate := 1.0
			if base > 0 {
				rate = growth[c.ID] / base
			}
			if rate >= cfg.RapidGrowthThreshold {
				signals = append(signals, Signal{
					Type:       SignalRapidGrowth,
					Confidence: min(0.6+rate/2, 0.95),
					Detail:     fmt.Sprintf("MRR grew %.0f%% over the last %d months", rate*100, cfg.GrowthWindowMonths),
				})
			}
		}

		tenure := c.TenureMonths(in.Now)
		for _, m := range cfg.Milestones {
			if abs(tenure-m) <= cfg.MilestoneWindow {
				signals = append(signals, Signal{
					Type:       SignalTenureMilestone,
					Confidence: 0.6,
					Detail:     fmt.Sprintf("%d months tenure, near the %d-month milestone", tenure, m),
				})
				break
			}
		}

		if ratio, ok := in.Usage.UsageRatio(c.ID); ok && ratio > cfg.UsageLimitRatio {
			signals = append(signals, Signal{
				Type:       SignalUsageLimitApproaching,
				Confidence: min(0.7+(ratio-cfg.UsageLimitRatio), 0.95),
				Detail:     fmt.Sprintf("using %.0f%% of the tier limit", ratio*100),
			})
		}

		if tierIdx >= 0 && tierIdx < 2 && c.MRR >= cfg.ExplorationMRR {
			signals = append(signals, Signal{
				Type:       SignalFeatureExploration,
				Confidence: 0.5,
				Detail:     fmt.Sprintf("$%.0f MRR on the %s tier", c.MRR, tiers[tierIdx].Name),
			})
		}

		if len(signals) == 0 {
			continue
		}

		cand := UpgradeCandidate{
			CustomerID: c.ID,
			Name:       c.Name,
			CurrentMRR: c.MRR,
			Signals:    signals,
			Score:      upgradeScore(signals),
		}
		cand.PotentialMRRIncrease = c.MRR * 0.5
		if tierIdx >= 0 {
			cand.CurrentTier = tiers[tierIdx].Name
			if tierIdx+1 < len(tiers) {
				next := tiers[tierIdx+1]
				cand.NextTier = next.Name
				if diff := next.Price - c.MRR; diff > 0 {
					cand.PotentialMRRIncrease = diff
				}
			}
		}
		for _, s := range signals {
			report.SignalCounts[s.Type]++
			report.signalConfidence[s.Type] = append(report.signalConfidence[s.Type], s.Confidence)
		}
		all = append(all, cand)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		if all[i].PotentialMRRIncrease != all[j].PotentialMRRIncrease {
			return all[i].PotentialMRRIncrease > all[j].PotentialMRRIncrease
		}
		return all[i].CustomerID.String() < all[j].CustomerID.String()
	})

	report.TotalCandidates = len(all)
	for _, c := range all {
		report.PotentialMRR += c.PotentialMRRIncrease
	}
	if len(all) > cfg.TopN {
		all = all[:cfg.TopN]
	}
	report.Candidates = all
	report.Insights = upgradeInsights(report)
	return report
}

// upgradeScore is round(avgConfidence×70 + min(signals×10, 30)).
func upgradeScore(signals []Signal) int {
	conf := make([]float64, len(signals))
	for i, s := range signals {
		conf[i] = s.Confidence
	}
	return int(math.Round(stats.Mean(conf)*70 + math.Min(float64(len(signals))*10, 30)))
}

// trailingGrowth sums the non-reactivation deltas of the last months per customer.
func trailingGrowth(events []customers.ExpansionEvent, now time.Time, months int) map[uuid.UUID]float64 {
	since := now.AddDate(0, -months, 0)
	out := make(map[uuid.UUID]float64)
	for _, e := range events {
		if e.IsReactivation() || e.OccurredAt.Before(since) || e.OccurredAt.After(now) {
			continue
		}
		out[e.CustomerID] += e.MRRDelta
	}
	return out
}

func tierIndex(c customers.Customer, sorted []customers.PricingTier) int {
	if c.TierID != nil {
		for i, t := range sorted {
			if t.ID == *c.TierID {
				return i
			}
		}
	}
	idx := -1
	for i, t := range sorted {
		if t.Price <= c.MRR {
			idx = i
		}
	}
	if idx < 0 && len(sorted) > 0 {
		idx = 0
	}
	return idx
}

func upgradeInsights(r UpgradeReport) []string {
	if r.TotalCandidates == 0 {
		return []string{"No upgrade candidates detected"}
	}
	out := []string{
		fmt.Sprintf("%d of %d customers show upgrade signals worth $%.0f in potential MRR", r.TotalCandidates, r.Analyzed, r.PotentialMRR),
	}
	if top, n := dominant(r.SignalCounts); n > 0 {
		out = append(out, fmt.Sprintf("Most common upgrade signal: %s (%d customers)", top, n))
	}
	strong := 0
	for _, c := range r.Candidates {
		if c.Score >= 70 {
			strong++
		}
	}
	if strong > 0 {
		out = append(out, fmt.Sprintf("%d candidates score 70 or higher and are ready for an upgrade conversation", strong))
	}
	return out
}

// ToPatterns emits one row per signal type observed.
func (r UpgradeReport) ToPatterns(orgID uuid.UUID, now time.Time) []Pattern {
	actions := map[string]string{
		SignalRapidGrowth:           "Offer the next tier before growth hits plan limits",
		SignalTenureMilestone:       "Time an annual-plan or tier upgrade offer to the milestone",
		SignalUsageLimitApproaching: "Reach out with a higher usage tier before limits are hit",
		SignalFeatureExploration:    "Demo premium features to high-spending lower-tier accounts",
	}
	var out []Pattern
	for _, kind := range sortedKeys(r.SignalCounts) {
		count := r.SignalCounts[kind]
		var ids []string
		for _, c := range r.Candidates {
			for _, s := range c.Signals {
				if s.Type == kind {
					ids = append(ids, c.CustomerID.String())
					break
				}
			}
		}
		out = append(out, Pattern{
			OrganizationID:    orgID,
			Type:              TypeUpgrade,
			Name:              "Upgrade signal: " + kind,
			Description:       fmt.Sprintf("%d customers show %s", count, kind),
			Frequency:         share(count, r.Analyzed),
			Confidence:        stats.Mean(r.signalConfidence[kind]),
			SampleSize:        r.Analyzed,
			RecommendedAction: actions[kind],
			Details:           map[string]any{"signal": kind, "customers": count, "top_customer_ids": ids},
			IsActive:          true,
			DetectedAt:        now,
		})
	}
	return out
}

func dominant(counts map[string]int) (string, int) {
	best, n := "", 0
	for _, k := range sortedKeys(counts) {
		if counts[k] > n {
			best, n = k, counts[k]
		}
	}
	return best, n
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
