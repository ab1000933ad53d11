package pipeline

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"ontology/internal/customers"
	"ontology/internal/economics"
	"ontology/internal/patterns"
	"ontology/internal/segments"
)

func (o *Orchestrator) ontologySummary(ctx context.Context, rc *RunContext, st *runState) error {
	var (
		active []segments.Segment
		tiers  []customers.PricingTier
		prior  *economics.Snapshot
		top    []patterns.Pattern
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		active, err = o.repos.Segments.List(gctx, rc.OrgID, true)
		return err
	})
	g.Go(func() error {
		var err error
		tiers, err = o.repos.Customers.ListPricingTiers(gctx, rc.OrgID)
		return err
	})
	g.Go(func() error {
		var err error
		prior, err = o.repos.Economics.Latest(gctx, rc.OrgID)
		return err
	})
	g.Go(func() error {
		var err error
		top, err = o.repos.Patterns.ListActive(gctx, rc.OrgID, maxTopPatterns)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to gather summary inputs: %w", err)
	}

	snap := buildSnapshot(rc, st.result, st.ledger.live)
	if err := o.repos.Economics.Insert(ctx, snap); err != nil {
		return err
	}
	st.result.Economics = snap

	summary := OntologySummary{
		GeneratedAt:   rc.Now,
		CustomerCount: snap.CustomerCount,
		TotalMRR:      snap.TotalMRR,
		SegmentCount:  len(active),
		KeyInsights:   keyInsights(st.result, snap, prior, tierMix(st.ledger.live, tiers)),
		HealthDistribution: HealthDistribution{
			Healthy:  st.result.Health.Distribution.Healthy,
			AtRisk:   st.result.Health.Distribution.AtRisk,
			Critical: st.result.Health.Distribution.Critical,
		},
		TopPatterns: make([]string, 0, len(top)),
	}
	for _, p := range top {
		summary.TopPatterns = append(summary.TopPatterns, p.Name)
	}
	if r := st.result.ValueMetrics.Report; r != nil && r.Primary != nil {
		d := r.Primary.Describe()
		summary.PrimaryValueMetric = &d
	}
	st.result.Summary = summary
	return nil
}

func buildSnapshot(rc *RunContext, res *Result, live []customers.Customer) *economics.Snapshot {
	var total float64
	for _, c := range live {
		total += c.MRR
	}
	g := res.Retention.Growth
	var quick *float64
	if v := float64(g.QuickRatio); !math.IsInf(v, 0) && !math.IsNaN(v) {
		quick = &v
	}
	runID := rc.RunID
	return &economics.Snapshot{
		OrganizationID:   rc.OrgID,
		RunID:            &runID,
		SnapshotDate:     rc.Now,
		CustomerCount:    len(live),
		TotalMRR:         total,
		ARR:              total * 12,
		ARPU:             res.LTV.ARPU,
		AverageLTV:       res.LTV.AverageLTV,
		LTVMethod:        string(res.LTV.Method),
		NRR:              res.Retention.Trailing.NRR,
		GRR:              res.Retention.Trailing.GRR,
		LogoChurnRate:    res.Retention.Trailing.LogoChurnRate,
		RevenueChurnRate: res.Retention.Trailing.RevenueChurnRate,
		NetNewMRR:        g.NetNewMRR,
		GrowthRate:       g.GrowthRate,
		QuickRatio:       quick,
		Gini:             g.Concentration.Gini,
		Top10Share:       g.Concentration.Top10Share,
	}
}

// tierMix names the tier most live customers are on. Empty when no live
// customer has a known tier.
func tierMix(live []customers.Customer, tiers []customers.PricingTier) string {
	names := make(map[string]string, len(tiers))
	for _, t := range tiers {
		names[t.ID.String()] = t.Name
	}
	counts := map[string]int{}
	for _, c := range live {
		if c.TierID == nil {
			continue
		}
		if name, ok := names[c.TierID.String()]; ok {
			counts[name]++
		}
	}
	var best string
	for _, t := range customers.SortTiers(tiers) {
		if counts[t.Name] > counts[best] {
			best = t.Name
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("%d of %d live customers are on the %s tier", counts[best], len(live), best)
}

// keyInsights picks at most maxKeyInsights lines, highest priority first.
func keyInsights(res *Result, snap *economics.Snapshot, prior *economics.Snapshot, tiers string) []string {
	var candidates []string
	first := func(lines []string) {
		if len(lines) > 0 {
			candidates = append(candidates, lines[0])
		}
	}

	first(res.Segmentation.Insights)
	if snap.CustomerCount > 0 {
		candidates = append(candidates, fmt.Sprintf("Net revenue retention is %.0f%% (gross %.0f%%) over the trailing window",
			res.Retention.Trailing.NRR*100, res.Retention.Trailing.GRR*100))
	}
	first(res.Patterns.ChurnRisks.Insights)
	first(res.Patterns.Upgrades.Insights)
	first(res.ValueMetrics.Insights)
	if res.LTV.AverageLTV > 0 {
		candidates = append(candidates, fmt.Sprintf("Average customer lifetime value is $%.0f (%s)", res.LTV.AverageLTV, res.LTV.Method))
	}
	if res.Patterns.Seasonality != nil {
		first(res.Patterns.Seasonality.Insights)
	}
	if change, ok := snap.MRRChange(prior); ok {
		direction := "up"
		if change < 0 {
			direction = "down"
		}
		candidates = append(candidates, fmt.Sprintf("MRR is %s %.1f%% since the previous analysis", direction, math.Abs(change)*100))
	}
	if tiers != "" {
		candidates = append(candidates, tiers)
	}

	out := make([]string, 0, maxKeyInsights)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		out = append(out, c)
		if len(out) == maxKeyInsights {
			break
		}
	}
	return out
}
