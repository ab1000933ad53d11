// Command seed loads an organization's customer ledger from a YAML file into
// the store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"gorm.io/gorm"

	"ontology/internal/customers"
	"ontology/internal/pipeline"
	"ontology/internal/shared/config"
	"ontology/internal/shared/constants"
	"ontology/internal/shared/database"
	"ontology/pkg/cache"
)

type Seeder struct {
	db    *database.DB
	repo  customers.Repository
	orgID uuid.UUID
}

func main() {
	_ = godotenv.Load()

	orgFlag := flag.String("org", "", "organization id (a new one is generated when empty)")
	file := flag.String("file", "", "ledger YAML file")
	clean := flag.Bool("clean", false, "delete the organization's existing rows first")
	flag.Parse()

	if *file == "" {
		log.Fatal("Usage: seed -file <ledger.yaml> [-org <uuid>] [-clean]")
	}
	orgID := uuid.New()
	if *orgFlag != "" {
		parsed, err := uuid.Parse(*orgFlag)
		if err != nil {
			log.Fatalf("Invalid -org: %v", err)
		}
		orgID = parsed
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	ds, err := ReadLedger(f, orgID)
	f.Close()
	if err != nil {
		log.Fatalf("Invalid ledger:\n%v", err)
	}

	fmt.Println("🌱 Starting Ontology Ledger Seeder...")

	cfg, err := config.LoadWithOverlay()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db, repo: customers.NewRepository(db.SQL), orgID: orgID}

	if *clean {
		fmt.Printf("\n🧹 Cleaning organization %s...\n", orgID)
		if err := seeder.CleanOrganization(ctx); err != nil {
			log.Fatalf("Failed to clean organization: %v", err)
		}
	}

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(ctx, ds); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	fmt.Printf("\n🎉 Seeding completed! Run: go run ./cmd/analyze -org %s\n", orgID)
}

// CleanOrganization removes every row the organization owns, derived tables
// first.
func (s *Seeder) CleanOrganization(ctx context.Context) error {
	models := pipeline.Models()
	return s.db.SQL.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := len(models) - 1; i >= 0; i-- {
			if err := tx.Where("organization_id = ?", s.orgID).Delete(models[i]).Error; err != nil {
				return fmt.Errorf("failed to clean %T: %w", models[i], err)
			}
		}
		return nil
	})
}

// SeedAll writes the dataset in dependency order and drops cached analytics
// for the organization.
func (s *Seeder) SeedAll(ctx context.Context, ds Dataset) error {
	batches := []struct {
		label string
		count int
		write func() error
	}{
		{"pricing tiers", len(ds.Tiers), func() error { return s.repo.CreatePricingTiers(ctx, ds.Tiers) }},
		{"customers", len(ds.Customers), func() error { return s.repo.CreateCustomers(ctx, ds.Customers) }},
		{"expansion events", len(ds.Events), func() error { return s.repo.CreateExpansionEvents(ctx, ds.Events) }},
		{"transactions", len(ds.Transactions), func() error { return s.repo.CreateTransactions(ctx, ds.Transactions) }},
		{"usage readings", len(ds.Usage), func() error { return s.repo.CreateUsageMetrics(ctx, ds.Usage) }},
	}

	bar := progressbar.Default(int64(len(batches)))
	for _, b := range batches {
		bar.Describe(b.label)
		if err := b.write(); err != nil {
			return fmt.Errorf("failed to seed %s: %w", b.label, err)
		}
		_ = bar.Add(1)
		fmt.Printf("    ✅ Created %d %s\n", b.count, b.label)
	}

	if s.db.Redis != nil {
		svc := cache.NewService(s.db.Redis)
		if err := svc.DeletePattern(ctx, constants.BuildAnalyticsOrgPattern(s.orgID.String())); err != nil {
			log.Printf("Warning: Failed to clear analytics cache: %v", err)
		}
	}
	return nil
}
