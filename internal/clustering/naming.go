package clustering

import (
	"fmt"
	"strings"

	"ontology/internal/customers"
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

func levelOf(v float64) Level {
	switch {
	case v >= 0.66:
		return LevelHigh
	case v >= 0.33:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Levels bucket a normalized centroid per dimension.
type Levels struct {
	MRR    Level `json:"mrr"`
	Tenure Level `json:"tenure"`
	Growth Level `json:"growth"`
	Size   Level `json:"size"`
	Usage  Level `json:"usage"`
}

func LevelsOf(centroid []float64) Levels {
	if len(centroid) < dimensions {
		return Levels{LevelLow, LevelLow, LevelLow, LevelLow, LevelLow}
	}
	return Levels{
		MRR:    levelOf(centroid[DimMRR]),
		Tenure: levelOf(centroid[DimTenure]),
		Growth: levelOf(centroid[DimGrowth]),
		Size:   levelOf(centroid[DimCompanySize]),
		Usage:  levelOf(centroid[DimUsage]),
	}
}

type namingRule struct {
	name    string
	summary string
	match   func(l Levels) bool
}

// first match wins
var namingRules = []namingRule{
	{
		name:    "Enterprise Champions",
		summary: "Large, high-revenue accounts that anchor the business",
		match:   func(l Levels) bool { return l.MRR == LevelHigh && l.Size == LevelHigh },
	},
	{
		name:    "High-Growth Power Users",
		summary: "High-revenue accounts that keep expanding",
		match:   func(l Levels) bool { return l.MRR == LevelHigh && l.Growth == LevelHigh },
	},
	{
		name:    "High-Value Accounts",
		summary: "Top revenue contributors",
		match:   func(l Levels) bool { return l.MRR == LevelHigh },
	},
	{
		name:    "Loyal Core",
		summary: "Long-tenured customers with solid revenue",
		match:   func(l Levels) bool { return l.Tenure == LevelHigh && l.MRR == LevelMedium },
	},
	{
		name:    "Rising Stars",
		summary: "Accounts growing faster than the rest of the base",
		match:   func(l Levels) bool { return l.Growth == LevelHigh },
	},
	{
		name:    "New Explorers",
		summary: "Recently acquired, low-revenue customers still finding their fit",
		match:   func(l Levels) bool { return l.Tenure == LevelLow && l.MRR == LevelLow },
	},
	{
		name:    "Long-Tail Loyalists",
		summary: "Small accounts that have stayed for a long time",
		match:   func(l Levels) bool { return l.MRR == LevelLow && l.Tenure == LevelHigh },
	},
	{
		name:    "Mid-Market Steady",
		summary: "Mid-sized accounts with steady revenue",
		match:   func(l Levels) bool { return l.MRR == LevelMedium && l.Size == LevelMedium },
	},
}

// NameFor returns the name and lead sentence for a cluster.
func NameFor(l Levels, avgCompanySize float64) (string, string) {
	for _, r := range namingRules {
		if r.match(l) {
			return r.name, r.summary
		}
	}
	label := customers.CompanySizeFromOrdinal(avgCompanySize).Label()
	return label + " Segment", fmt.Sprintf("Typical %s customers", strings.ToLower(label))
}

func nameClusters(clusters []Cluster) {
	seen := make(map[string]int)
	for i := range clusters {
		c := &clusters[i]
		name, summary := NameFor(c.Levels, c.Averages.CompanySize)
		seen[name]++
		if seen[name] > 1 {
			name = fmt.Sprintf("%s (%d)", name, seen[name])
		}
		c.Name = name
		c.Description = describe(summary, *c)
	}
}

func describe(summary string, c Cluster) string {
	return fmt.Sprintf(
		"%s: %d customers averaging $%.0f MRR, %.1f months tenure and %.0f%% six-month growth; mostly %s.",
		summary,
		c.Size,
		c.Averages.MRR,
		c.Averages.Tenure,
		c.Averages.GrowthRate*100,
		customers.CompanySizeFromOrdinal(c.Averages.CompanySize).Label(),
	)
}
