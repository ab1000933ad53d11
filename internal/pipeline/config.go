package pipeline

import (
	"time"

	"ontology/internal/cohort"
	"ontology/internal/correlation"
	"ontology/internal/ltv"
	"ontology/internal/patterns"
	"ontology/internal/segments"
	"ontology/internal/shared/config"
)

type Config struct {
	// BatchSize bounds every batched write.
	BatchSize int
	// Seed drives clustering; 0 derives a per-organization seed.
	Seed                  uint64
	RetentionWindowMonths int
	WaterfallMonths       int
	UsageWindow           time.Duration

	Cohort      cohort.Config
	LTV         ltv.Config
	Segments    segments.Options
	Upgrade     patterns.UpgradeConfig
	Churn       patterns.ChurnConfig
	Seasonal    patterns.SeasonalConfig
	Correlation correlation.Config
}

func DefaultConfig() Config {
	return Config{
		BatchSize:             100,
		RetentionWindowMonths: 1,
		WaterfallMonths:       12,
		UsageWindow:           30 * 24 * time.Hour,
		Cohort:                cohort.DefaultConfig(),
		LTV:                   ltv.DefaultConfig(),
		Segments:              segments.DefaultOptions(),
		Upgrade:               patterns.DefaultUpgradeConfig(),
		Churn:                 patterns.DefaultChurnConfig(),
		Seasonal:              patterns.DefaultSeasonalConfig(),
		Correlation:           correlation.DefaultConfig(),
	}
}

// ConfigFrom maps the service settings onto the analyzers' configs.
func ConfigFrom(a config.AnalyticsConfig) Config {
	cfg := DefaultConfig()
	if a.WriteBatchSize > 0 {
		cfg.BatchSize = a.WriteBatchSize
	}
	cfg.Seed = a.ClusterSeed
	if a.RetentionWindowMonths > 0 {
		cfg.RetentionWindowMonths = a.RetentionWindowMonths
	}
	if a.CohortLookbackMonths > 0 {
		cfg.Cohort.LookbackMonths = a.CohortLookbackMonths
	}
	if a.MaxMonthsToTrack > 0 {
		cfg.Cohort.MaxMonthsToTrack = a.MaxMonthsToTrack
	}
	if a.GrossMargin > 0 {
		cfg.LTV.GrossMargin = a.GrossMargin
	}
	if a.AnnualDiscountRate > 0 {
		cfg.LTV.AnnualDiscountRate = a.AnnualDiscountRate
	}
	if a.ProjectionMonths > 0 {
		cfg.LTV.MaxProjectionMonths = a.ProjectionMonths
	}
	if a.MinSegments > 0 {
		cfg.Segments.MinK = a.MinSegments
	}
	if a.MaxSegments > 0 {
		cfg.Segments.MaxK = a.MaxSegments
	}
	if a.ChurnRiskThreshold > 0 {
		cfg.Churn.RiskThreshold = a.ChurnRiskThreshold
	}
	if a.CorrelationMinSample > 0 {
		cfg.Correlation.MinSampleSize = a.CorrelationMinSample
	}
	if a.CorrelationLookbackMonths > 0 {
		cfg.Correlation.LookbackMonths = a.CorrelationLookbackMonths
	}
	if a.SeasonalMinDataPoints > 0 {
		cfg.Seasonal.MinDataPoints = a.SeasonalMinDataPoints
	}
	return cfg
}
