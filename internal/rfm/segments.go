package rfm

type Segment string

const (
	SegmentChampions          Segment = "champions"
	SegmentLoyalCustomers     Segment = "loyal_customers"
	SegmentPotentialLoyalists Segment = "potential_loyalists"
	SegmentRecentCustomers    Segment = "recent_customers"
	SegmentPromising          Segment = "promising"
	SegmentNeedsAttention     Segment = "needs_attention"
	SegmentAboutToSleep       Segment = "about_to_sleep"
	SegmentAtRisk             Segment = "at_risk"
	SegmentCantLoseThem       Segment = "cant_lose_them"
	SegmentHibernating        Segment = "hibernating"
	SegmentLost               Segment = "lost"
)

func (s Segment) String() string {
	return string(s)
}

func (s Segment) IsValid() bool {
	for _, known := range AllSegments {
		if s == known {
			return true
		}
	}
	return false
}

var AllSegments = []Segment{
	SegmentChampions,
	SegmentLoyalCustomers,
	SegmentPotentialLoyalists,
	SegmentRecentCustomers,
	SegmentPromising,
	SegmentNeedsAttention,
	SegmentAboutToSleep,
	SegmentAtRisk,
	SegmentCantLoseThem,
	SegmentHibernating,
	SegmentLost,
}

type rule struct {
	segment Segment
	match   func(r, f, m int) bool
}

// rules overlap; they are evaluated in order and the first match wins.
var rules = []rule{
	{SegmentChampions, func(r, f, m int) bool { return r >= 4 && f >= 4 && m >= 4 }},
	{SegmentCantLoseThem, func(r, f, m int) bool { return r <= 2 && f >= 4 && m >= 4 }},
	{SegmentLoyalCustomers, func(r, f, m int) bool { return r >= 3 && f >= 3 && m >= 3 }},
	{SegmentAtRisk, func(r, f, m int) bool { return r <= 2 && f >= 3 && m >= 2 }},
	{SegmentPotentialLoyalists, func(r, f, m int) bool { return r >= 4 && f >= 2 && m >= 2 }},
	{SegmentRecentCustomers, func(r, f, m int) bool { return r >= 4 && f <= 1 }},
	{SegmentPromising, func(r, f, m int) bool { return r >= 3 && f <= 2 }},
	{SegmentNeedsAttention, func(r, f, m int) bool { return r == 3 }},
	{SegmentAboutToSleep, func(r, f, m int) bool { return r == 2 && f <= 2 }},
	{SegmentHibernating, func(r, f, m int) bool { return r <= 2 && f >= 2 }},
	{SegmentLost, func(r, f, m int) bool { return r == 1 && f == 1 }},
}

// Classify returns the first segment whose rule matches (r, f, m).
func Classify(r, f, m int) Segment {
	for _, rl := range rules {
		if rl.match(r, f, m) {
			return rl.segment
		}
	}
	return SegmentNeedsAttention
}

// Description is a short label for reports.
func (s Segment) Description() string {
	switch s {
	case SegmentChampions:
		return "Recent, frequent and high-spending"
	case SegmentLoyalCustomers:
		return "Consistent spenders with steady engagement"
	case SegmentPotentialLoyalists:
		return "Recent customers with growing spend"
	case SegmentRecentCustomers:
		return "Newly acquired with little history"
	case SegmentPromising:
		return "Recent activity, low frequency so far"
	case SegmentAboutToSleep:
		return "Declining recency and low frequency"
	case SegmentAtRisk:
		return "Valuable customers who have gone quiet"
	case SegmentCantLoseThem:
		return "Top spenders who have not been active recently"
	case SegmentHibernating:
		return "Long inactive with moderate history"
	case SegmentLost:
		return "Lowest recency, frequency and spend"
	default:
		return "Average recency that needs re-engagement"
	}
}
