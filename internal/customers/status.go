package customers

type Status string

const (
	StatusActive  Status = "active"
	StatusChurned Status = "churned"
	StatusAtRisk  Status = "at_risk"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusChurned, StatusAtRisk:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// IsLive reports whether the customer still pays (active or at risk).
func (s Status) IsLive() bool {
	return s == StatusActive || s == StatusAtRisk
}

type CompanySize string

const (
	CompanySizeStartup    CompanySize = "startup"
	CompanySizeSMB        CompanySize = "smb"
	CompanySizeMidMarket  CompanySize = "mid_market"
	CompanySizeEnterprise CompanySize = "enterprise"
)

// Ordinal maps the size category onto 1..4. Unknown categories count as the smallest.
func (c CompanySize) Ordinal() int {
	switch c {
	case CompanySizeSMB:
		return 2
	case CompanySizeMidMarket:
		return 3
	case CompanySizeEnterprise:
		return 4
	default:
		return 1
	}
}

// EstimatedEmployees is a bucket midpoint used where no headcount is recorded.
func (c CompanySize) EstimatedEmployees() float64 {
	switch c {
	case CompanySizeSMB:
		return 50
	case CompanySizeMidMarket:
		return 250
	case CompanySizeEnterprise:
		return 1000
	default:
		return 10
	}
}

func (c CompanySize) Label() string {
	switch c {
	case CompanySizeSMB:
		return "Small Business"
	case CompanySizeMidMarket:
		return "Mid-Market"
	case CompanySizeEnterprise:
		return "Enterprise"
	default:
		return "Startup"
	}
}

// CompanySizeFromOrdinal is the inverse of Ordinal, rounding to the nearest bucket.
func CompanySizeFromOrdinal(v float64) CompanySize {
	switch {
	case v >= 3.5:
		return CompanySizeEnterprise
	case v >= 2.5:
		return CompanySizeMidMarket
	case v >= 1.5:
		return CompanySizeSMB
	default:
		return CompanySizeStartup
	}
}

type BillingInterval string

const (
	BillingMonthly BillingInterval = "monthly"
	BillingAnnual  BillingInterval = "annual"
)

type EventKind string

const (
	// EventKindChange is an expansion or contraction, decided by the sign of the delta.
	EventKindChange       EventKind = ""
	EventKindReactivation EventKind = "reactivation"
)
