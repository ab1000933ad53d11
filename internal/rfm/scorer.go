// Package rfm scores customers on recency, frequency and monetary value and
// classifies them into behavioral segments.
package rfm

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"ontology/internal/customers"
)

// MaxRecencyDays is used for customers without any qualifying transaction.
const MaxRecencyDays = 365

type Score struct {
	CustomerID     uuid.UUID `json:"customer_id"`
	RecencyDays    int       `json:"recency_days"`
	Frequency      float64   `json:"frequency"`
	Monetary       float64   `json:"monetary"`
	RecencyScore   int       `json:"recency_score"`
	FrequencyScore int       `json:"frequency_score"`
	MonetaryScore  int       `json:"monetary_score"`
	Segment        Segment   `json:"segment"`
}

// Thresholds are the 20/40/60/80/100th percentile cut points of one dimension.
type Thresholds [5]float64

// ScoreAll computes RFM for every customer. Customers are scored from the
// transaction log when the organization has one; otherwise tenure and MRR
// stand in for frequency and monetary value.
func ScoreAll(all []customers.Customer, transactions []customers.Transaction, now time.Time) []Score {
	if len(all) == 0 {
		return nil
	}

	raw := make([]Score, len(all))
	if len(transactions) > 0 {
		fromTransactions(all, transactions, now, raw)
	} else {
		fromBilling(all, now, raw)
	}

	recency := make([]float64, len(raw))
	frequency := make([]float64, len(raw))
	monetary := make([]float64, len(raw))
	for i, s := range raw {
		recency[i] = float64(s.RecencyDays)
		frequency[i] = s.Frequency
		monetary[i] = s.Monetary
	}
	rq := Quintiles(recency)
	fq := Quintiles(frequency)
	mq := Quintiles(monetary)

	for i := range raw {
		raw[i].RecencyScore = 6 - rq.Score(recency[i])
		raw[i].FrequencyScore = fq.Score(frequency[i])
		raw[i].MonetaryScore = mq.Score(monetary[i])
		raw[i].Segment = Classify(raw[i].RecencyScore, raw[i].FrequencyScore, raw[i].MonetaryScore)
	}
	return raw
}

func fromTransactions(all []customers.Customer, transactions []customers.Transaction, now time.Time, out []Score) {
	type acc struct {
		last  time.Time
		count int
		sum   float64
	}
	byCustomer := make(map[uuid.UUID]*acc)
	for _, t := range transactions {
		if t.Amount <= 0 || t.OccurredAt.After(now) {
			continue
		}
		a := byCustomer[t.CustomerID]
		if a == nil {
			a = &acc{}
			byCustomer[t.CustomerID] = a
		}
		if t.OccurredAt.After(a.last) {
			a.last = t.OccurredAt
		}
		a.count++
		a.sum += t.Amount
	}

	for i, c := range all {
		out[i] = Score{CustomerID: c.ID, RecencyDays: MaxRecencyDays}
		a, ok := byCustomer[c.ID]
		if !ok {
			continue
		}
		out[i].RecencyDays = min(daysBetween(a.last, now), MaxRecencyDays)
		out[i].Frequency = float64(a.count)
		out[i].Monetary = a.sum
	}
}

func fromBilling(all []customers.Customer, now time.Time, out []Score) {
	for i, c := range all {
		tenure := c.TenureMonths(now)
		out[i] = Score{
			CustomerID:  c.ID,
			RecencyDays: billingRecency(c, now),
			Frequency:   float64(tenure),
			Monetary:    c.MRR * float64(tenure),
		}
	}
}

// billingRecency treats each monthly anniversary of a live subscription as a
// payment; churned customers last paid when they churned.
func billingRecency(c customers.Customer, now time.Time) int {
	if c.CreatedAt.After(now) {
		return 0
	}
	if !c.IsLive() {
		if c.ChurnedAt == nil {
			return MaxRecencyDays
		}
		return min(daysBetween(*c.ChurnedAt, now), MaxRecencyDays)
	}
	anniversary := c.CreatedAt.AddDate(0, customers.MonthsBetween(c.CreatedAt, now), 0)
	if anniversary.After(now) {
		anniversary = c.CreatedAt
	}
	return min(daysBetween(anniversary, now), MaxRecencyDays)
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

// Quintiles computes nearest-rank percentile thresholds.
func Quintiles(values []float64) Thresholds {
	var q Thresholds
	n := len(values)
	if n == 0 {
		return q
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	for i, p := range []int{20, 40, 60, 80, 100} {
		rank := max((p*n+99)/100, 1)
		q[i] = sorted[rank-1]
	}
	return q
}

// Score maps v onto 1..5, higher values scoring higher.
func (q Thresholds) Score(v float64) int {
	for i := 0; i < 4; i++ {
		if v <= q[i] {
			return i + 1
		}
	}
	return 5
}

// Distribution counts scores per segment.
func Distribution(scores []Score) map[Segment]int {
	out := make(map[Segment]int)
	for _, s := range scores {
		out[s.Segment]++
	}
	return out
}
