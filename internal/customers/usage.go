package customers

import (
	"time"

	"github.com/google/uuid"
)

// PrimaryUsageMetric is the telemetry series compared against tier usage limits.
const PrimaryUsageMetric = "usage"

// UsageSource answers usage questions for customers. Implementations report
// ok=false when they have no data for a customer.
type UsageSource interface {
	// UsageRatio is current usage divided by the customer's tier limit.
	UsageRatio(customerID uuid.UUID) (float64, bool)
	// UsageDecline is the fractional drop of recent usage versus the prior window, in [0,1].
	UsageDecline(customerID uuid.UUID) (float64, bool)
}

// NoUsage is a UsageSource with no telemetry.
type NoUsage struct{}

func (NoUsage) UsageRatio(uuid.UUID) (float64, bool)   { return 0, false }
func (NoUsage) UsageDecline(uuid.UUID) (float64, bool) { return 0, false }

// MetricUsage derives usage signals from usage_metrics rows.
type MetricUsage struct {
	ratio   map[uuid.UUID]float64
	decline map[uuid.UUID]float64
}

// NewMetricUsage builds a UsageSource from the PrimaryUsageMetric series.
// The ratio uses the latest reading against the customer's tier usage limit;
// the decline compares the mean of the last window with the window before it.
func NewMetricUsage(metrics []UsageMetric, customers []Customer, tiers []PricingTier, now time.Time, window time.Duration) *MetricUsage {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	limits := make(map[uuid.UUID]float64, len(tiers))
	for _, t := range tiers {
		if t.UsageLimit != nil && *t.UsageLimit > 0 {
			limits[t.ID] = *t.UsageLimit
		}
	}
	customerLimit := make(map[uuid.UUID]float64, len(customers))
	for _, c := range customers {
		if c.TierID == nil {
			continue
		}
		if limit, ok := limits[*c.TierID]; ok {
			customerLimit[c.ID] = limit
		}
	}

	type acc struct {
		latest     float64
		latestAt   time.Time
		recentSum  float64
		recentN    int
		priorSum   float64
		priorN     int
		hasReading bool
	}
	byCustomer := make(map[uuid.UUID]*acc)
	recentStart := now.Add(-window)
	priorStart := now.Add(-2 * window)

	for _, m := range metrics {
		if m.MetricName != PrimaryUsageMetric || m.RecordedAt.After(now) {
			continue
		}
		a := byCustomer[m.CustomerID]
		if a == nil {
			a = &acc{}
			byCustomer[m.CustomerID] = a
		}
		if !a.hasReading || !m.RecordedAt.Before(a.latestAt) {
			a.latest = m.Value
			a.latestAt = m.RecordedAt
			a.hasReading = true
		}
		switch {
		case !m.RecordedAt.Before(recentStart):
			a.recentSum += m.Value
			a.recentN++
		case !m.RecordedAt.Before(priorStart):
			a.priorSum += m.Value
			a.priorN++
		}
	}

	u := &MetricUsage{
		ratio:   make(map[uuid.UUID]float64),
		decline: make(map[uuid.UUID]float64),
	}
	for id, a := range byCustomer {
		if limit, ok := customerLimit[id]; ok && a.hasReading {
			u.ratio[id] = a.latest / limit
		}
		if a.recentN > 0 && a.priorN > 0 {
			prior := a.priorSum / float64(a.priorN)
			recent := a.recentSum / float64(a.recentN)
			if prior > 0 {
				d := (prior - recent) / prior
				u.decline[id] = max(0, min(1, d))
			}
		}
	}
	return u
}

func (u *MetricUsage) UsageRatio(customerID uuid.UUID) (float64, bool) {
	v, ok := u.ratio[customerID]
	return v, ok
}

func (u *MetricUsage) UsageDecline(customerID uuid.UUID) (float64, bool) {
	v, ok := u.decline[customerID]
	return v, ok
}
