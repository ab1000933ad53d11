// Package retention measures revenue and logo retention over a period and
// decomposes MRR movement into new, expansion, contraction, churn and
// reactivation.
package retention

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"ontology/internal/customers"
)

type ChurnedCustomer struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	Name        string    `json:"name"`
	StartingMRR float64   `json:"starting_mrr"`
	ChurnedAt   time.Time `json:"churned_at"`
}

type Metrics struct {
	PeriodStart        time.Time         `json:"period_start"`
	PeriodEnd          time.Time         `json:"period_end"`
	StartingMRR        float64           `json:"starting_mrr"`
	StartingCustomers  int               `json:"starting_customers"`
	EndingMRR          float64           `json:"ending_mrr"`
	EndingCustomers    int               `json:"ending_customers"`
	ExpansionMRR       float64           `json:"expansion_mrr"`
	ContractionMRR     float64           `json:"contraction_mrr"`
	LogoChurnCount     int               `json:"logo_churn_count"`
	RevenueChurnAmount float64           `json:"revenue_churn_amount"`
	LogoChurnRate      float64           `json:"logo_churn_rate"`
	RevenueChurnRate   float64           `json:"revenue_churn_rate"`
	NRR                float64           `json:"nrr"`
	GRR                float64           `json:"grr"`
	ChurnedInPeriod    []ChurnedCustomer `json:"churned_in_period"`
}

// Calculate computes retention over (start, end]. MRR history is not stored,
// so starting MRR uses each customer's current MRR.
func Calculate(all []customers.Customer, events []customers.ExpansionEvent, start, end time.Time) Metrics {
	m := Metrics{PeriodStart: start, PeriodEnd: end}

	for _, c := range all {
		if c.IsActiveAt(start) {
			m.StartingMRR += c.MRR
			m.StartingCustomers++
			if c.ChurnedAt != nil && c.ChurnedAt.After(start) && !c.ChurnedAt.After(end) {
				m.LogoChurnCount++
				m.RevenueChurnAmount += c.MRR
				m.ChurnedInPeriod = append(m.ChurnedInPeriod, ChurnedCustomer{
					CustomerID:  c.ID,
					Name:        c.Name,
					StartingMRR: c.MRR,
					ChurnedAt:   *c.ChurnedAt,
				})
			}
		}
		if c.IsActiveAt(end) {
			m.EndingMRR += c.MRR
			m.EndingCustomers++
		}
	}

	exp, contr, _ := eventTotals(events, start, end)
	m.ExpansionMRR = exp
	m.ContractionMRR = contr

	if m.StartingCustomers > 0 {
		m.LogoChurnRate = float64(m.LogoChurnCount) / float64(m.StartingCustomers)
	}
	if m.StartingMRR > 0 {
		m.RevenueChurnRate = m.RevenueChurnAmount / m.StartingMRR
		m.NRR = (m.StartingMRR + m.ExpansionMRR - m.ContractionMRR - m.RevenueChurnAmount) / m.StartingMRR
		m.GRR = (m.StartingMRR - m.ContractionMRR - m.RevenueChurnAmount) / m.StartingMRR
	} else {
		m.NRR = 1
		m.GRR = 1
	}
	return m
}

// eventTotals sums expansion, contraction and reactivation deltas with
// occurred_at inside (start, end], the same bounds new and churned customers
// use, so adjacent periods never count an event twice.
func eventTotals(events []customers.ExpansionEvent, start, end time.Time) (expansion, contraction, reactivation float64) {
	for _, e := range events {
		if !e.OccurredAt.After(start) || e.OccurredAt.After(end) {
			continue
		}
		switch {
		case e.IsReactivation():
			reactivation += math.Abs(e.MRRDelta)
		case e.MRRDelta > 0:
			expansion += e.MRRDelta
		case e.MRRDelta < 0:
			contraction += -e.MRRDelta
		}
	}
	return expansion, contraction, reactivation
}

// QuickRatio marshals +Inf as null since JSON has no infinity.
type QuickRatio float64

func (q QuickRatio) IsInf() bool {
	return math.IsInf(float64(q), 1)
}

func (q QuickRatio) MarshalJSON() ([]byte, error) {
	if q.IsInf() || math.IsNaN(float64(q)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(q))
}

type GrowthMetrics struct {
	PeriodStart     time.Time     `json:"period_start"`
	PeriodEnd       time.Time     `json:"period_end"`
	StartingMRR     float64       `json:"starting_mrr"`
	EndingMRR       float64       `json:"ending_mrr"`
	NewMRR          float64       `json:"new_mrr"`
	NewCustomers    int           `json:"new_customers"`
	ExpansionMRR    float64       `json:"expansion_mrr"`
	ReactivationMRR float64       `json:"reactivation_mrr"`
	ContractionMRR  float64       `json:"contraction_mrr"`
	ChurnedMRR      float64       `json:"churned_mrr"`
	NetNewMRR       float64       `json:"net_new_mrr"`
	GrowthRate      float64       `json:"growth_rate"`
	QuickRatio      QuickRatio    `json:"quick_ratio"`
	Concentration   Concentration `json:"concentration"`
}

// Growth extends Calculate with new-customer MRR, reactivations, the quick
// ratio and the revenue concentration of customers active at end.
func Growth(all []customers.Customer, events []customers.ExpansionEvent, start, end time.Time) GrowthMetrics {
	base := Calculate(all, events, start, end)
	_, _, reactivation := eventTotals(events, start, end)

	g := GrowthMetrics{
		PeriodStart:     start,
		PeriodEnd:       end,
		StartingMRR:     base.StartingMRR,
		EndingMRR:       base.EndingMRR,
		ExpansionMRR:    base.ExpansionMRR,
		ReactivationMRR: reactivation,
		ContractionMRR:  base.ContractionMRR,
		ChurnedMRR:      base.RevenueChurnAmount,
	}

	var endingValues []float64
	for _, c := range all {
		if c.CreatedAt.After(start) && !c.CreatedAt.After(end) {
			g.NewMRR += c.MRR
			g.NewCustomers++
		}
		if c.IsActiveAt(end) {
			endingValues = append(endingValues, c.MRR)
		}
	}

	gains := g.NewMRR + g.ExpansionMRR + g.ReactivationMRR
	losses := g.ContractionMRR + g.ChurnedMRR
	g.NetNewMRR = gains - losses
	g.QuickRatio = quickRatio(gains, losses)
	if g.StartingMRR > 0 {
		g.GrowthRate = (g.EndingMRR - g.StartingMRR) / g.StartingMRR
	}
	g.Concentration = Concentrate(endingValues)
	return g
}

func quickRatio(gains, losses float64) QuickRatio {
	switch {
	case losses > 0:
		return QuickRatio(gains / losses)
	case gains > 0:
		return QuickRatio(math.Inf(1))
	default:
		return 0
	}
}

type WaterfallMonth struct {
	Month           string  `json:"month"`
	StartingMRR     float64 `json:"starting_mrr"`
	NewMRR          float64 `json:"new_mrr"`
	ExpansionMRR    float64 `json:"expansion_mrr"`
	ReactivationMRR float64 `json:"reactivation_mrr"`
	ContractionMRR  float64 `json:"contraction_mrr"`
	ChurnedMRR      float64 `json:"churned_mrr"`
	EndingMRR       float64 `json:"ending_mrr"`
	NetChange       float64 `json:"net_change"`
}

// Waterfall builds a month-by-month MRR bridge for the last months calendar
// months, oldest first; the current month ends at now. Each month ends where
// the next one starts, so ending MRR always equals the next starting MRR.
func Waterfall(all []customers.Customer, events []customers.ExpansionEvent, months int, now time.Time) []WaterfallMonth {
	if months <= 0 {
		months = 12
	}
	current := customers.MonthStart(now)
	out := make([]WaterfallMonth, 0, months)
	for i := months - 1; i >= 0; i-- {
		start := current.AddDate(0, -i, 0)
		from, to := monthBounds(start, now)
		g := Growth(all, events, from, to)
		out = append(out, WaterfallMonth{
			Month:           customers.MonthKey(start),
			StartingMRR:     g.StartingMRR,
			NewMRR:          g.NewMRR,
			ExpansionMRR:    g.ExpansionMRR,
			ReactivationMRR: g.ReactivationMRR,
			ContractionMRR:  g.ContractionMRR,
			ChurnedMRR:      g.ChurnedMRR,
			EndingMRR:       g.EndingMRR,
			NetChange:       g.EndingMRR - g.StartingMRR,
		})
	}
	return out
}

// monthBounds returns the (from, to] instants covering the calendar month that
// opens at start. Both bounds sit one nanosecond before a month start so a row
// stamped at 00:00 on the 1st belongs to the month it opens.
func monthBounds(start, now time.Time) (from, to time.Time) {
	from = start.Add(-time.Nanosecond)
	to = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	if to.After(now) {
		to = now
	}
	return from, to
}
