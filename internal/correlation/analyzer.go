// Package correlation discovers which customer metrics move with retention,
// expansion and churn, and ranks them as candidate value metrics.
package correlation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ontology/internal/customers"
	"ontology/internal/shared/outcome"
)

type Outcome string

const (
	OutcomeRetention Outcome = "retention"
	OutcomeExpansion Outcome = "expansion"
	OutcomeChurn     Outcome = "churn"
)

var outcomes = []Outcome{OutcomeRetention, OutcomeExpansion, OutcomeChurn}

const (
	MetricMRR             = "mrr"
	MetricTenure          = "tenure_months"
	MetricCompanySize     = "company_size"
	MetricMRRPerEmployee  = "mrr_per_employee"
	significanceLevel     = 0.05
	nonSignificantPenalty = 0.5
)

var weights = map[Outcome]float64{
	OutcomeRetention: 0.4,
	OutcomeExpansion: 0.35,
	OutcomeChurn:     0.25,
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type Actionability string

const (
	ActionabilityHigh   Actionability = "high"
	ActionabilityMedium Actionability = "medium"
	ActionabilityLow    Actionability = "low"
)

var (
	highActionKeywords   = []string{"usage", "engagement", "login", "session", "feature", "active", "api", "seat", "adoption"}
	mediumActionKeywords = []string{"mrr", "revenue", "spend", "price", "tenure", "billing", "contract"}
)

type Config struct {
	MinSampleSize       int
	LookbackMonths      int
	TopDrivers          int
	ImportanceThreshold float64
}

func DefaultConfig() Config {
	return Config{MinSampleSize: 30, LookbackMonths: 12, TopDrivers: 5, ImportanceThreshold: 0.3}
}

type Input struct {
	Customers []customers.Customer
	Events    []customers.ExpansionEvent
	Usage     []customers.UsageMetric
	Now       time.Time
}

type Coefficient struct {
	R float64 `json:"r"`
	P float64 `json:"p"`
}

func (c Coefficient) Significant() bool {
	return c.P < significanceLevel
}

type MetricCorrelation struct {
	Metric        string                  `json:"metric"`
	SampleSize    int                     `json:"sample_size"`
	Outcomes      map[Outcome]Coefficient `json:"outcomes"`
	Significant   bool                    `json:"significant"`
	Importance    float64                 `json:"importance"`
	Confidence    Confidence              `json:"confidence"`
	Actionability Actionability           `json:"actionability"`
	Rank          int                     `json:"rank"`
}

// Describe renders the metric for summaries.
func (m MetricCorrelation) Describe() string {
	return fmt.Sprintf("%s (importance %.2f, %s confidence)", m.Metric, m.Importance, m.Confidence)
}

type Driver struct {
	Metric string  `json:"metric"`
	R      float64 `json:"r"`
	P      float64 `json:"p"`
}

// Report holds only metrics significant for at least one outcome; Evaluated
// counts every metric with enough samples to be tested.
type Report struct {
	Cutoff     time.Time            `json:"cutoff"`
	SampleSize int                  `json:"sample_size"`
	Evaluated  int                  `json:"metrics_evaluated"`
	Metrics    []MetricCorrelation  `json:"metrics"`
	Drivers    map[Outcome][]Driver `json:"drivers"`
	Primary    *MetricCorrelation   `json:"primary_value_metric"`
	Insights   []string             `json:"insights"`
}

// Analyze measures metrics as of the lookback cutoff and correlates them with
// what happened to each customer afterwards.
func Analyze(in Input, cfg Config) outcome.Outcome[Report] {
	def := DefaultConfig()
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = def.MinSampleSize
	}
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = def.LookbackMonths
	}
	if cfg.TopDrivers <= 0 {
		cfg.TopDrivers = def.TopDrivers
	}
	if cfg.ImportanceThreshold <= 0 {
		cfg.ImportanceThreshold = def.ImportanceThreshold
	}

	cutoff := in.Now.AddDate(0, -cfg.LookbackMonths, 0)
	var population []customers.Customer
	for _, c := range in.Customers {
		if c.IsActiveAt(cutoff) {
			population = append(population, c)
		}
	}
	if len(population) < cfg.MinSampleSize {
		return outcome.Insufficient[Report]("not enough customers active at the correlation cutoff", cfg.MinSampleSize, len(population))
	}

	metrics := metricTable(population, in.Events, in.Usage, cutoff)
	results := outcomeTable(population, in.Events, cutoff, in.Now)

	report := Report{Cutoff: cutoff, SampleSize: len(population), Drivers: map[Outcome][]Driver{}}
	for _, name := range sortedMetricNames(metrics) {
		values := metrics[name]
		if len(values) < cfg.MinSampleSize {
			continue
		}
		mc := MetricCorrelation{Metric: name, SampleSize: len(values), Outcomes: map[Outcome]Coefficient{}}
		for _, o := range outcomes {
			x := make([]float64, 0, len(values))
			y := make([]float64, 0, len(values))
			for _, c := range population {
				if v, ok := values[c.ID]; ok {
					x = append(x, v)
					y = append(y, results[o][c.ID])
				}
			}
			r := Pearson(x, y)
			coef := Coefficient{R: r, P: PValue(r, len(x))}
			mc.Outcomes[o] = coef
			if coef.Significant() {
				mc.Significant = true
			}
		}
		report.Evaluated++
		if !mc.Significant {
			continue
		}
		mc.Importance = Importance(mc.Outcomes)
		mc.Confidence = ConfidenceFor(mc.SampleSize, mc.Outcomes)
		mc.Actionability = ActionabilityOf(name)
		report.Metrics = append(report.Metrics, mc)
	}

	Rank(report.Metrics)
	for _, o := range outcomes {
		report.Drivers[o] = drivers(report.Metrics, o, cfg.TopDrivers)
	}
	for i := range report.Metrics {
		m := report.Metrics[i]
		if m.Importance >= cfg.ImportanceThreshold && m.Confidence != ConfidenceLow {
			report.Primary = &m
			break
		}
	}
	report.Insights = insights(report)
	return outcome.Sufficient(report)
}

// Importance weights correlation magnitudes by outcome and halves the
// contribution of directions that are not significant.
func Importance(coefs map[Outcome]Coefficient) float64 {
	total := 0.0
	for _, o := range outcomes {
		c := coefs[o]
		w := weights[o]
		if !c.Significant() {
			w *= nonSignificantPenalty
		}
		total += math.Abs(c.R) * w
	}
	return total
}

func ConfidenceFor(n int, coefs map[Outcome]Coefficient) Confidence {
	minP := 1.0
	for _, c := range coefs {
		minP = math.Min(minP, c.P)
	}
	switch {
	case n >= 100 && minP <= 0.01:
		return ConfidenceHigh
	case n >= 50 && minP <= 0.05:
		return ConfidenceMedium
	}
	return ConfidenceLow
}

func ActionabilityOf(metric string) Actionability {
	name := strings.ToLower(metric)
	for _, k := range highActionKeywords {
		if strings.Contains(name, k) {
			return ActionabilityHigh
		}
	}
	for _, k := range mediumActionKeywords {
		if strings.Contains(name, k) {
			return ActionabilityMedium
		}
	}
	return ActionabilityLow
}

// Rank orders metrics by importance and numbers them from 1.
func Rank(metrics []MetricCorrelation) {
	sort.SliceStable(metrics, func(i, j int) bool {
		if metrics[i].Importance != metrics[j].Importance {
			return metrics[i].Importance > metrics[j].Importance
		}
		return metrics[i].Metric < metrics[j].Metric
	})
	for i := range metrics {
		metrics[i].Rank = i + 1
	}
}

func drivers(metrics []MetricCorrelation, o Outcome, limit int) []Driver {
	var out []Driver
	for _, m := range metrics {
		c := m.Outcomes[o]
		if c.R > 0 && c.Significant() {
			out = append(out, Driver{Metric: m.Metric, R: c.R, P: c.P})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].R > out[j].R })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// metricTable returns metric -> customer -> value as of the cutoff.
func metricTable(population []customers.Customer, events []customers.ExpansionEvent, usage []customers.UsageMetric, cutoff time.Time) map[string]map[uuid.UUID]float64 {
	later := make(map[uuid.UUID]float64)
	for _, e := range events {
		if e.OccurredAt.After(cutoff) {
			later[e.CustomerID] += e.MRRDelta
		}
	}

	table := map[string]map[uuid.UUID]float64{
		MetricMRR:            {},
		MetricTenure:         {},
		MetricCompanySize:    {},
		MetricMRRPerEmployee: {},
	}
	inPopulation := make(map[uuid.UUID]bool, len(population))
	for _, c := range population {
		inPopulation[c.ID] = true
		mrr := max(c.MRR-later[c.ID], 0)
		table[MetricMRR][c.ID] = mrr
		table[MetricTenure][c.ID] = float64(customers.MonthsBetween(c.CreatedAt, cutoff))
		table[MetricCompanySize][c.ID] = float64(c.CompanySize.Ordinal())
		table[MetricMRRPerEmployee][c.ID] = mrr / c.CompanySize.EstimatedEmployees()
	}

	sums := map[string]map[uuid.UUID]float64{}
	counts := map[string]map[uuid.UUID]int{}
	for _, u := range usage {
		if !inPopulation[u.CustomerID] || u.RecordedAt.After(cutoff) {
			continue
		}
		name := u.MetricName
		if _, base := table[name]; base {
			name = "usage_" + name
		}
		if sums[name] == nil {
			sums[name] = map[uuid.UUID]float64{}
			counts[name] = map[uuid.UUID]int{}
		}
		sums[name][u.CustomerID] += u.Value
		counts[name][u.CustomerID]++
	}
	for name, byCustomer := range sums {
		table[name] = make(map[uuid.UUID]float64, len(byCustomer))
		for id, s := range byCustomer {
			table[name][id] = s / float64(counts[name][id])
		}
	}
	return table
}

// outcomeTable returns outcome -> customer -> observed value after the cutoff.
func outcomeTable(population []customers.Customer, events []customers.ExpansionEvent, cutoff, now time.Time) map[Outcome]map[uuid.UUID]float64 {
	expanded := make(map[uuid.UUID]float64)
	for _, e := range events {
		if e.MRRDelta > 0 && !e.IsReactivation() && e.OccurredAt.After(cutoff) && !e.OccurredAt.After(now) {
			expanded[e.CustomerID] += e.MRRDelta
		}
	}
	out := map[Outcome]map[uuid.UUID]float64{
		OutcomeRetention: {},
		OutcomeExpansion: {},
		OutcomeChurn:     {},
	}
	for _, c := range population {
		retained := 0.0
		if c.IsActiveAt(now) {
			retained = 1
		}
		out[OutcomeRetention][c.ID] = retained
		out[OutcomeExpansion][c.ID] = expanded[c.ID]
		out[OutcomeChurn][c.ID] = 1 - retained
	}
	return out
}

func sortedMetricNames(table map[string]map[uuid.UUID]float64) []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func insights(r Report) []string {
	var out []string
	out = append(out, fmt.Sprintf("%d of %d metrics correlate significantly with customer outcomes (n=%d)", len(r.Metrics), r.Evaluated, r.SampleSize))
	if r.Primary != nil {
		out = append(out, fmt.Sprintf("Primary value metric: %s", r.Primary.Describe()))
	} else {
		out = append(out, "No metric is strong and reliable enough to serve as the primary value metric")
	}
	if d := r.Drivers[OutcomeRetention]; len(d) > 0 {
		out = append(out, fmt.Sprintf("Strongest retention driver: %s (r=%.2f)", d[0].Metric, d[0].R))
	}
	if d := r.Drivers[OutcomeChurn]; len(d) > 0 {
		out = append(out, fmt.Sprintf("Strongest churn predictor: %s (r=%.2f)", d[0].Metric, d[0].R))
	}
	return out
}
