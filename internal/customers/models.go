package customers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Customer struct {
	ID                 uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID     uuid.UUID       `json:"organization_id" gorm:"type:uuid;not null;index"`
	Name               string          `json:"name" gorm:"size:255"`
	MRR                float64         `json:"mrr" gorm:"not null;default:0"`
	Status             Status          `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null;index"`
	ChurnedAt          *time.Time      `json:"churned_at"`
	StoredTenureMonths *int            `json:"tenure_months,omitempty" gorm:"column:tenure_months"`
	SegmentID          *uuid.UUID      `json:"segment_id" gorm:"type:uuid;index"`
	TierID             *uuid.UUID      `json:"tier_id" gorm:"type:uuid"`
	CompanySize        CompanySize     `json:"company_size" gorm:"type:varchar(20)"`
	BillingInterval    BillingInterval `json:"billing_interval" gorm:"type:varchar(20);default:'monthly'"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TenureMonths prefers the stored value and otherwise counts whole months
// from acquisition to churn (or to now for live customers).
func (c Customer) TenureMonths(now time.Time) int {
	if c.StoredTenureMonths != nil {
		return *c.StoredTenureMonths
	}
	end := now
	if c.ChurnedAt != nil && c.ChurnedAt.Before(now) {
		end = *c.ChurnedAt
	}
	return MonthsBetween(c.CreatedAt, end)
}

// IsActiveAt reports whether the customer was paying at t.
func (c Customer) IsActiveAt(t time.Time) bool {
	if c.CreatedAt.After(t) {
		return false
	}
	if c.ChurnedAt == nil {
		return c.Status.IsLive()
	}
	return c.ChurnedAt.After(t)
}

func (c Customer) IsLive() bool {
	return c.Status.IsLive()
}

type ExpansionEvent struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
	CustomerID     uuid.UUID `json:"customer_id" gorm:"type:uuid;not null;index"`
	MRRDelta       float64   `json:"mrr_delta" gorm:"not null"`
	Kind           EventKind `json:"kind" gorm:"type:varchar(20);default:''"`
	OccurredAt     time.Time `json:"occurred_at" gorm:"not null;index"`
}

func (e *ExpansionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (e ExpansionEvent) IsReactivation() bool {
	return e.Kind == EventKindReactivation
}

type Transaction struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
	CustomerID     uuid.UUID `json:"customer_id" gorm:"type:uuid;not null;index"`
	Amount         float64   `json:"amount" gorm:"not null"`
	OccurredAt     time.Time `json:"occurred_at" gorm:"not null"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type PricingTier struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
	Name           string    `json:"name" gorm:"not null;size:100"`
	Price          float64   `json:"price" gorm:"not null"`
	SortOrder      int       `json:"sort_order"`
	UsageLimit     *float64  `json:"usage_limit"`
}

func (p *PricingTier) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type UsageMetric struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
	CustomerID     uuid.UUID `json:"customer_id" gorm:"type:uuid;not null;index"`
	MetricName     string    `json:"metric_name" gorm:"not null;size:100"`
	Value          float64   `json:"value"`
	RecordedAt     time.Time `json:"recorded_at" gorm:"not null"`
}

func (u *UsageMetric) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// CustomerFilter narrows ListCustomers. Zero values mean "no constraint".
type CustomerFilter struct {
	Statuses     []Status
	CreatedAfter *time.Time
}

// MonthsBetween counts whole calendar months from a to b (0 when b precedes a).
func MonthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// MonthStart truncates t to the first instant of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthKey formats the acquisition month as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// SortTiers orders tiers from cheapest to most expensive; ties fall back to SortOrder.
func SortTiers(tiers []PricingTier) []PricingTier {
	out := make([]PricingTier, len(tiers))
	copy(out, tiers)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && tierLess(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func tierLess(a, b PricingTier) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.SortOrder < b.SortOrder
}
