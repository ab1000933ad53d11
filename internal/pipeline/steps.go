package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ontology/internal/clustering"
	"ontology/internal/cohort"
	"ontology/internal/correlation"
	"ontology/internal/customers"
	"ontology/internal/health"
	"ontology/internal/ltv"
	"ontology/internal/patterns"
	"ontology/internal/retention"
	"ontology/internal/segments"
)

// ledger is the organization's source data, read once per run.
type ledger struct {
	customers    []customers.Customer
	live         []customers.Customer
	churned      []customers.Customer
	events       []customers.ExpansionEvent
	transactions []customers.Transaction
	tiers        []customers.PricingTier
	usageMetrics []customers.UsageMetric
	usage        customers.UsageSource
}

type runState struct {
	ledger *ledger
	result *Result
}

func (o *Orchestrator) loadLedger(ctx context.Context, rc *RunContext) (*ledger, error) {
	l := &ledger{}
	repo := o.repos.Customers

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := repo.ListCustomers(gctx, rc.OrgID, customers.CustomerFilter{})
		l.customers = rows
		return err
	})
	g.Go(func() error {
		rows, err := repo.ListExpansionEvents(gctx, rc.OrgID, time.Time{})
		l.events = rows
		return err
	})
	g.Go(func() error {
		rows, err := repo.ListTransactions(gctx, rc.OrgID)
		l.transactions = rows
		return err
	})
	g.Go(func() error {
		rows, err := repo.ListPricingTiers(gctx, rc.OrgID)
		l.tiers = rows
		return err
	})
	g.Go(func() error {
		rows, err := repo.ListUsageMetrics(gctx, rc.OrgID, time.Time{})
		l.usageMetrics = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load customer ledger: %w", err)
	}

	for _, c := range l.customers {
		if c.IsLive() {
			l.live = append(l.live, c)
		} else {
			l.churned = append(l.churned, c)
		}
	}
	if len(l.usageMetrics) > 0 {
		l.usage = customers.NewMetricUsage(l.usageMetrics, l.customers, l.tiers, rc.Now, o.cfg.UsageWindow)
	} else {
		l.usage = customers.NoUsage{}
	}
	return l, nil
}

func (o *Orchestrator) cohortRetention(ctx context.Context, rc *RunContext, st *runState) error {
	l, err := o.loadLedger(ctx, rc)
	if err != nil {
		return err
	}
	st.ledger = l

	res := cohort.Analyze(l.customers, rc.Now, o.cfg.Cohort)
	if err := o.repos.Cohorts.UpsertRetention(ctx, rc.OrgID, res.Rows, rc.Now, o.cfg.BatchSize); err != nil {
		return err
	}
	st.result.Cohorts = res
	return nil
}

func (o *Orchestrator) lifetimeValue(ctx context.Context, rc *RunContext, st *runState) error {
	active, err := o.repos.Segments.List(ctx, rc.OrgID, true)
	if err != nil {
		return err
	}
	segmentNames := make(map[uuid.UUID]string, len(active))
	for _, s := range active {
		segmentNames[s.ID] = s.Name
	}

	in := ltv.Input{
		ActiveCustomers:  st.ledger.live,
		ChurnedCustomers: st.ledger.churned,
		Retention:        st.result.Cohorts.Aggregate.Mean,
		SegmentNames:     segmentNames,
		Now:              rc.Now,
	}
	st.result.LTV = ltv.Calculate(in, o.cfg.LTV)
	return nil
}

func (o *Orchestrator) retentionMetrics(_ context.Context, rc *RunContext, st *runState) error {
	l := st.ledger
	start := rc.Now.AddDate(0, -o.cfg.RetentionWindowMonths, 0)
	st.result.Retention = RetentionResult{
		Trailing:  retention.Calculate(l.customers, l.events, start, rc.Now),
		Growth:    retention.Growth(l.customers, l.events, start, rc.Now),
		Waterfall: retention.Waterfall(l.customers, l.events, o.cfg.WaterfallMonths, rc.Now),
	}
	return nil
}

func (o *Orchestrator) segmentation(ctx context.Context, rc *RunContext, st *runState) error {
	l := st.ledger
	opts := o.cfg.Segments
	opts.Rand = clustering.NewRand(o.seed(rc))

	res := segments.Build(segments.Input{
		Customers:    l.customers,
		Events:       l.events,
		Transactions: l.transactions,
		Usage:        l.usage,
		Now:          rc.Now,
	}, opts)

	applied, err := segments.Apply(ctx, o.repos.Segments, o.repos.Customers, rc.OrgID, res, rc.Now, o.cfg.BatchSize)
	if err != nil {
		return err
	}
	if err := o.repos.RFM.Upsert(ctx, rc.OrgID, res.RFM, rc.Now, o.cfg.BatchSize); err != nil {
		return err
	}
	st.result.Segmentation = SegmentationResult{Result: res, Applied: applied}
	return nil
}

// seed returns the configured clustering seed, or one derived from the
// organization id so reruns over unchanged data pick the same clusters.
func (o *Orchestrator) seed(rc *RunContext) uint64 {
	if o.cfg.Seed != 0 {
		return o.cfg.Seed
	}
	return binary.BigEndian.Uint64(rc.OrgID[:8]) ^ binary.BigEndian.Uint64(rc.OrgID[8:])
}

func (o *Orchestrator) patternDetection(ctx context.Context, rc *RunContext, st *runState) error {
	l := st.ledger
	upgrades := patterns.DetectUpgrades(patterns.UpgradeInput{
		Customers: l.customers,
		Events:    l.events,
		Tiers:     l.tiers,
		Usage:     l.usage,
		Now:       rc.Now,
	}, o.cfg.Upgrade)
	churn := patterns.DetectChurnRisks(patterns.ChurnInput{
		Customers: l.customers,
		Events:    l.events,
		Usage:     l.usage,
		Now:       rc.Now,
	}, o.cfg.Churn)
	snapshots := patterns.BuildMonthlySnapshots(l.customers, l.events, o.cfg.Seasonal.HistoryMonths, rc.Now)

	res := PatternResult{Upgrades: upgrades, ChurnRisks: churn, Snapshots: snapshots}
	res.Insights = append(res.Insights, upgrades.Insights...)
	res.Insights = append(res.Insights, churn.Insights...)

	var seasonalRows []patterns.Pattern
	seasonal := patterns.AnalyzeSeasonality(snapshots, o.cfg.Seasonal)
	if report, ok := seasonal.Value(); ok {
		res.Seasonality = &report
		res.Insights = append(res.Insights, report.Insights...)
		seasonalRows = report.ToPatterns(rc.OrgID, rc.Now)
	} else {
		res.Insights = append(res.Insights, fmt.Sprintf("Seasonality analysis skipped: %s", seasonal.Insufficiency()))
	}

	writes := []struct {
		kind patterns.Type
		rows []patterns.Pattern
	}{
		{patterns.TypeUpgrade, upgrades.ToPatterns(rc.OrgID, rc.Now)},
		{patterns.TypeChurn, churn.ToPatterns(rc.OrgID, rc.Now)},
		{patterns.TypeSeasonal, seasonalRows},
	}
	for _, w := range writes {
		if err := o.repos.Patterns.Insert(ctx, rc.OrgID, w.kind, w.rows, o.cfg.BatchSize); err != nil {
			return err
		}
	}
	st.result.Patterns = res
	return nil
}

func (o *Orchestrator) valueMetrics(ctx context.Context, rc *RunContext, st *runState) error {
	l := st.ledger
	out := correlation.Analyze(correlation.Input{
		Customers: l.customers,
		Events:    l.events,
		Usage:     l.usageMetrics,
		Now:       rc.Now,
	}, o.cfg.Correlation)

	report, ok := out.Value()
	if !ok {
		st.result.ValueMetrics = ValueMetricResult{
			Insights: []string{fmt.Sprintf("Value metric discovery skipped: %s", out.Insufficiency())},
		}
		return nil
	}
	if err := o.repos.Correlations.Upsert(ctx, rc.OrgID, report, rc.Now); err != nil {
		return err
	}
	st.result.ValueMetrics = ValueMetricResult{Report: &report, Insights: report.Insights}
	return nil
}

func (o *Orchestrator) healthScoring(ctx context.Context, rc *RunContext, st *runState) error {
	l := st.ledger
	prior, err := o.repos.Health.PriorScores(ctx, rc.OrgID, rc.Now)
	if err != nil {
		return err
	}
	res := health.Calculate(health.Input{
		Customers: l.customers,
		Events:    l.events,
		Prior:     prior,
		Usage:     l.usage,
	}, rc.Now)
	if err := o.repos.Health.Upsert(ctx, rc.OrgID, res.Scores, rc.Now, o.cfg.BatchSize); err != nil {
		return err
	}
	st.result.Health = res
	return nil
}
