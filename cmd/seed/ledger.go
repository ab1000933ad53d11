package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"ontology/internal/customers"
)

// LedgerFile is the on-disk shape of an organization's customer ledger.
// Events, payments and usage nest under their customer so no cross-row
// references are needed.
type LedgerFile struct {
	Tiers     []TierEntry     `yaml:"tiers"`
	Customers []CustomerEntry `yaml:"customers"`
}

type TierEntry struct {
	Name       string   `yaml:"name"`
	Price      float64  `yaml:"price"`
	SortOrder  int      `yaml:"sort_order"`
	UsageLimit *float64 `yaml:"usage_limit"`
}

type CustomerEntry struct {
	Name            string             `yaml:"name"`
	MRR             float64            `yaml:"mrr"`
	Status          string             `yaml:"status"`
	CreatedAt       string             `yaml:"created_at"`
	ChurnedAt       string             `yaml:"churned_at"`
	TenureMonths    *int               `yaml:"tenure_months"`
	Tier            string             `yaml:"tier"`
	CompanySize     string             `yaml:"company_size"`
	BillingInterval string             `yaml:"billing_interval"`
	Events          []EventEntry       `yaml:"events"`
	Transactions    []TransactionEntry `yaml:"transactions"`
	Usage           []UsageEntry       `yaml:"usage"`
}

type EventEntry struct {
	MRRDelta   float64 `yaml:"mrr_delta"`
	Kind       string  `yaml:"kind"`
	OccurredAt string  `yaml:"occurred_at"`
}

type TransactionEntry struct {
	Amount     float64 `yaml:"amount"`
	OccurredAt string  `yaml:"occurred_at"`
}

type UsageEntry struct {
	Metric     string  `yaml:"metric"`
	Value      float64 `yaml:"value"`
	RecordedAt string  `yaml:"recorded_at"`
}

// Dataset is everything the seeder writes for one organization.
type Dataset struct {
	Tiers        []customers.PricingTier
	Customers    []customers.Customer
	Events       []customers.ExpansionEvent
	Transactions []customers.Transaction
	Usage        []customers.UsageMetric
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ReadLedger decodes a ledger file and resolves it into rows for org.
func ReadLedger(r io.Reader, org uuid.UUID) (Dataset, error) {
	var file LedgerFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Dataset{}, fmt.Errorf("failed to decode ledger: %w", err)
	}
	return file.Resolve(org)
}

// Resolve validates the file and turns it into rows. Every problem found is
// reported, not just the first.
func (f LedgerFile) Resolve(org uuid.UUID) (Dataset, error) {
	var ds Dataset
	var errs []error

	tierIDs := make(map[string]uuid.UUID, len(f.Tiers))
	for i, t := range f.Tiers {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tier %d: name is required", i))
			continue
		}
		if _, dup := tierIDs[t.Name]; dup {
			errs = append(errs, fmt.Errorf("tier %q: duplicate name", t.Name))
			continue
		}
		row := customers.PricingTier{
			ID:             uuid.New(),
			OrganizationID: org,
			Name:           t.Name,
			Price:          t.Price,
			SortOrder:      t.SortOrder,
			UsageLimit:     t.UsageLimit,
		}
		tierIDs[t.Name] = row.ID
		ds.Tiers = append(ds.Tiers, row)
	}

	for i, entry := range f.Customers {
		label := entry.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		c, err := entry.customer(org, tierIDs)
		if err != nil {
			errs = append(errs, fmt.Errorf("customer %s: %w", label, err))
			continue
		}
		ds.Customers = append(ds.Customers, c)

		for _, e := range entry.Events {
			at, err := parseDate(e.OccurredAt)
			if err != nil {
				errs = append(errs, fmt.Errorf("customer %s event: %w", label, err))
				continue
			}
			kind := customers.EventKind(e.Kind)
			if kind != customers.EventKindChange && kind != customers.EventKindReactivation {
				errs = append(errs, fmt.Errorf("customer %s event: unknown kind %q", label, e.Kind))
				continue
			}
			ds.Events = append(ds.Events, customers.ExpansionEvent{
				ID:             uuid.New(),
				OrganizationID: org,
				CustomerID:     c.ID,
				MRRDelta:       e.MRRDelta,
				Kind:           kind,
				OccurredAt:     at,
			})
		}
		for _, t := range entry.Transactions {
			at, err := parseDate(t.OccurredAt)
			if err != nil {
				errs = append(errs, fmt.Errorf("customer %s transaction: %w", label, err))
				continue
			}
			ds.Transactions = append(ds.Transactions, customers.Transaction{
				ID:             uuid.New(),
				OrganizationID: org,
				CustomerID:     c.ID,
				Amount:         t.Amount,
				OccurredAt:     at,
			})
		}
		for _, u := range entry.Usage {
			at, err := parseDate(u.RecordedAt)
			if err != nil {
				errs = append(errs, fmt.Errorf("customer %s usage: %w", label, err))
				continue
			}
			metric := u.Metric
			if metric == "" {
				metric = customers.PrimaryUsageMetric
			}
			ds.Usage = append(ds.Usage, customers.UsageMetric{
				ID:             uuid.New(),
				OrganizationID: org,
				CustomerID:     c.ID,
				MetricName:     metric,
				Value:          u.Value,
				RecordedAt:     at,
			})
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func (e CustomerEntry) customer(org uuid.UUID, tierIDs map[string]uuid.UUID) (customers.Customer, error) {
	c := customers.Customer{
		ID:                 uuid.New(),
		OrganizationID:     org,
		Name:               e.Name,
		MRR:                e.MRR,
		Status:             customers.StatusActive,
		StoredTenureMonths: e.TenureMonths,
		CompanySize:        customers.CompanySize(e.CompanySize),
		BillingInterval:    customers.BillingMonthly,
	}
	if e.MRR < 0 {
		return c, fmt.Errorf("mrr must not be negative")
	}
	if e.Status != "" {
		c.Status = customers.Status(e.Status)
		if !c.Status.IsValid() {
			return c, fmt.Errorf("unknown status %q", e.Status)
		}
	}
	if e.BillingInterval != "" {
		c.BillingInterval = customers.BillingInterval(e.BillingInterval)
	}

	created, err := parseDate(e.CreatedAt)
	if err != nil {
		return c, fmt.Errorf("created_at: %w", err)
	}
	c.CreatedAt = created

	if e.ChurnedAt != "" {
		churned, err := parseDate(e.ChurnedAt)
		if err != nil {
			return c, fmt.Errorf("churned_at: %w", err)
		}
		if churned.Before(created) {
			return c, fmt.Errorf("churned_at precedes created_at")
		}
		c.ChurnedAt = &churned
	}
	if c.Status == customers.StatusChurned && c.ChurnedAt == nil {
		return c, fmt.Errorf("churned customers need churned_at")
	}
	if c.Status.IsLive() && c.ChurnedAt != nil {
		return c, fmt.Errorf("status %s conflicts with churned_at", c.Status)
	}

	if e.Tier != "" {
		id, ok := tierIDs[e.Tier]
		if !ok {
			return c, fmt.Errorf("unknown tier %q", e.Tier)
		}
		c.TierID = &id
	}
	return c, nil
}
